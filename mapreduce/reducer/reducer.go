// Package reducer merges the count batches of one shard into final totals.
package reducer

import (
	"context"
	"errors"
	"fmt"

	"wordcount/mapreduce/types"
	"wordcount/message"
)

var ErrWrongShard = errors.New("batch addressed to another shard")

// Merger sums the counts of one shard. It is not safe for concurrent use.
type Merger struct {
	totals map[string]int64
}

var _ types.Merger = (*Merger)(nil)

// New creates an empty Merger.
func New() *Merger {
	return &Merger{totals: make(map[string]int64)}
}

// Merge adds rec to the running total of its word.
func (m *Merger) Merge(rec types.CountRecord) {
	m.totals[rec.Word] += rec.Count
}

// Totals returns one record per distinct word, sorted by word.
func (m *Merger) Totals() []types.CountRecord {
	records := make([]types.CountRecord, 0, len(m.totals))
	for word, count := range m.totals {
		records = append(records, types.CountRecord{Word: word, Count: count})
	}
	types.SortByWord(records)
	return records
}

// Stats counts what Consume merged.
type Stats struct {
	Batches int
	Records int
}

// Consume decodes every batch read from frames and merges its records into
// m until the channel is closed. It returns early when ctx is cancelled or
// a batch is invalid or addressed to a shard other than shard.
func Consume(ctx context.Context, shard int, frames <-chan []byte, m types.Merger) (Stats, error) {
	var stats Stats
	for {
		select {
		case frame, ok := <-frames:
			if !ok {
				return stats, nil
			}
			var batch message.CountBatch
			if err := batch.Unmarshal(frame); err != nil {
				return stats, fmt.Errorf("decode batch for shard %d: %w", shard, err)
			}
			if int(batch.Shard) != shard {
				return stats, fmt.Errorf("%w: got shard %d from producer %d, want %d", ErrWrongShard, batch.Shard, batch.Producer, shard)
			}
			for _, rec := range batch.Records {
				m.Merge(rec)
			}
			stats.Batches++
			stats.Records += len(batch.Records)
		case <-ctx.Done():
			return stats, ctx.Err()
		}
	}
}
