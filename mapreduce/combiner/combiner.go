// Package combiner pre-sums word counts on the map side so that fewer
// records cross the shuffle.
package combiner

import "wordcount/mapreduce/types"

// Aggregator accumulates word counts in memory until it is flushed.
// It is not safe for concurrent use; each map worker owns one.
type Aggregator struct {
	counts map[string]int64
	limit  int
}

var _ types.Combiner = (*Aggregator)(nil)

// New creates an Aggregator that asks to be flushed once it holds limit
// distinct words. A limit <= 0 never asks.
func New(limit int) *Aggregator {
	return &Aggregator{
		counts: make(map[string]int64),
		limit:  limit,
	}
}

// Add counts one occurrence of token.
func (a *Aggregator) Add(token []byte) bool {
	a.counts[string(token)]++
	return a.limit > 0 && len(a.counts) >= a.limit
}

// Len returns the number of distinct words buffered.
func (a *Aggregator) Len() int {
	return len(a.counts)
}

// Flush returns the buffered records sorted by word and empties the buffer.
func (a *Aggregator) Flush() []types.CountRecord {
	if len(a.counts) == 0 {
		return nil
	}
	records := make([]types.CountRecord, 0, len(a.counts))
	for word, count := range a.counts {
		records = append(records, types.CountRecord{Word: word, Count: count})
	}
	types.SortByWord(records)
	clear(a.counts)
	return records
}
