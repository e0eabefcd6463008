// Package shuffle moves encoded count batches from map workers to the
// reduce shard that owns them.
//
// Each shard has an inbox and a completion latch set to the number of
// producers. Finish counts a producer down on every shard; the inbox of a
// shard is closed once all producers have finished, which is the barrier a
// reducer waits on before it may emit anything.
package shuffle

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
)

var (
	ErrFinished = errors.New("producer already finished")
	ErrRange    = errors.New("id out of range")
)

// Stats counts the traffic delivered to one shard.
type Stats struct {
	Frames int64
	Bytes  int64
}

type shard struct {
	inbox     chan []byte
	remaining atomic.Int32
	frames    atomic.Int64
	bytes     atomic.Int64
}

// Exchange connects producers to shards.
type Exchange struct {
	shards   []*shard
	finished []atomic.Bool
}

// New creates an exchange for shardCount shards fed by producers
// producers. Every inbox buffers up to buffer frames.
func New(shardCount, producers, buffer int) *Exchange {
	e := &Exchange{
		shards:   make([]*shard, shardCount),
		finished: make([]atomic.Bool, producers),
	}
	for i := range e.shards {
		s := &shard{inbox: make(chan []byte, buffer)}
		s.remaining.Store(int32(producers))
		e.shards[i] = s
	}
	if producers == 0 {
		for _, s := range e.shards {
			close(s.inbox)
		}
	}
	return e
}

// ShardCount returns the number of shards.
func (e *Exchange) ShardCount() int {
	return len(e.shards)
}

func (e *Exchange) checkProducer(producer int) error {
	if producer < 0 || producer >= len(e.finished) {
		return fmt.Errorf("%w: producer %d", ErrRange, producer)
	}
	if e.finished[producer].Load() {
		return fmt.Errorf("%w: producer %d", ErrFinished, producer)
	}
	return nil
}

// Send delivers frame to shard, blocking while the inbox is full.
// A producer must not call Send concurrently with its own Finish.
func (e *Exchange) Send(ctx context.Context, producer, shardID int, frame []byte) error {
	if err := e.checkProducer(producer); err != nil {
		return err
	}
	if shardID < 0 || shardID >= len(e.shards) {
		return fmt.Errorf("%w: shard %d", ErrRange, shardID)
	}
	s := e.shards[shardID]
	select {
	case s.inbox <- frame:
		s.frames.Add(1)
		s.bytes.Add(int64(len(frame)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Finish records that producer has sent everything it had for every shard.
func (e *Exchange) Finish(producer int) error {
	if err := e.checkProducer(producer); err != nil {
		return err
	}
	if e.finished[producer].Swap(true) {
		return fmt.Errorf("%w: producer %d", ErrFinished, producer)
	}
	for _, s := range e.shards {
		if s.remaining.Add(-1) == 0 {
			close(s.inbox)
		}
	}
	return nil
}

// Frames returns the inbox of shard. It is closed once every producer has
// finished.
func (e *Exchange) Frames(shardID int) <-chan []byte {
	return e.shards[shardID].inbox
}

// Stats returns the traffic delivered to every shard so far.
func (e *Exchange) Stats() []Stats {
	stats := make([]Stats, len(e.shards))
	for i, s := range e.shards {
		stats[i] = Stats{Frames: s.frames.Load(), Bytes: s.bytes.Load()}
	}
	return stats
}
