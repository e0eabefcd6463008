package types

import (
	"cmp"
	"slices"
)

// CountRecord is a word together with the number of times it was seen.
// Count is always >= 1 for records that leave a combiner or a merger.
type CountRecord struct {
	Word  string
	Count int64
}

// Merge sums the counts of two records for the same word.
func (r CountRecord) Merge(other CountRecord) CountRecord {
	return CountRecord{Word: r.Word, Count: r.Count + other.Count}
}

// SortByWord sorts records in place by word.
func SortByWord(records []CountRecord) {
	slices.SortFunc(records, func(a, b CountRecord) int {
		return cmp.Compare(a.Word, b.Word)
	})
}

// Combiner consumes a token stream and produces locally aggregated records.
type Combiner interface {
	// Add counts one token. It returns true once the combiner holds as many
	// distinct words as it is willing to buffer; the caller should Flush.
	Add(token []byte) bool
	// Flush returns everything accumulated so far and resets the combiner.
	Flush() []CountRecord
}

// Merger merges records for one shard and produces the final totals.
type Merger interface {
	Merge(rec CountRecord)
	Totals() []CountRecord
}
