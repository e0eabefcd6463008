package job

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"wordcount/mapreduce/input"
	"wordcount/mapreduce/partition"
	"wordcount/mapreduce/reducer"
	"wordcount/mapreduce/shuffle"
	"wordcount/mapreduce/taskmgr"
	"wordcount/mapreduce/tokenizer"
	"wordcount/mapreduce/types"
	"wordcount/message"
)

// execution is the state shared by the tasks of one run.
type execution struct {
	job      *Job
	exchange *shuffle.Exchange

	tokens  atomic.Int64
	records atomic.Int64
	rows    atomic.Int64
}

// mapWorker is the per-worker context of the map task manager. Its
// combiner is reused across the splits the worker runs.
type mapWorker struct {
	agg types.Combiner
}

// execute runs the map and reduce pools over splits and waits for both.
func (j *Job) execute(ctx context.Context, splits []input.Split) (Stats, error) {
	shards := j.config.ShardCount
	e := &execution{
		job:      j,
		exchange: shuffle.New(shards, len(splits), j.config.ShuffleBuffer),
	}

	mapMgr := taskmgr.NewTaskManager(e.mapTask)
	workers := min(j.config.MapParallelism, len(splits))
	for i := range workers {
		mapMgr.AddContext(workerKey(i), &mapWorker{agg: j.newCombiner()})
	}
	for _, split := range splits {
		mapMgr.AddTask(workerKey(split.Index%workers), split)
	}
	reduceMgr := taskmgr.NewTaskManager(e.reduceTask)
	for shard := range shards {
		reduceMgr.AddTask(fmt.Sprintf("reducer-%d", shard), shard)
	}

	var mapErr, reduceErr error
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		mapErr = mapMgr.Run(gctx)
		return mapErr
	})
	g.Go(func() error {
		reduceErr = reduceMgr.Run(gctx)
		return reduceErr
	})
	g.Wait()

	stats := Stats{
		Splits:          len(splits),
		Tokens:          e.tokens.Load(),
		ShuffledRecords: e.records.Load(),
		RowsWritten:     e.rows.Load(),
	}
	for _, s := range e.exchange.Stats() {
		stats.ShuffledBatches += s.Frames
		stats.ShuffledBytes += s.Bytes
	}
	return stats, rootCause(mapErr, reduceErr)
}

func workerKey(i int) string {
	return fmt.Sprintf("mapper-%d", i)
}

// rootCause prefers the error that started a failure over the
// cancellations it caused in the other pool.
func rootCause(errs ...error) error {
	for _, err := range errs {
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
	}
	return errors.Join(errs...)
}

// mapTask tokenizes one split, combines the tokens and ships the combined
// records to their shards.
func (e *execution) mapTask(ctx context.Context, keyCtx any, task any) error {
	worker := keyCtx.(*mapWorker)
	split := task.(input.Split)
	// a failed split must not leak counts into the next one
	defer worker.agg.Flush()

	var tokens int64
	err := input.ReadLines(ctx, split, func(line []byte) error {
		for token := range tokenizer.Tokens(line) {
			tokens++
			if worker.agg.Add(token) {
				if err := e.ship(ctx, split.Index, worker.agg.Flush()); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err == nil {
		err = e.ship(ctx, split.Index, worker.agg.Flush())
	}
	if err == nil {
		err = e.exchange.Finish(split.Index)
	}
	if err != nil {
		return &StageError{Stage: StageMap, Task: split.String(), Err: err}
	}
	e.tokens.Add(tokens)
	return nil
}

// ship partitions records and sends one batch per shard that has any.
func (e *execution) ship(ctx context.Context, producer int, records []types.CountRecord) error {
	if len(records) == 0 {
		return nil
	}
	byShard := make([][]types.CountRecord, e.exchange.ShardCount())
	for _, rec := range records {
		shard := partition.ShardString(rec.Word, len(byShard))
		byShard[shard] = append(byShard[shard], rec)
	}
	for shard, recs := range byShard {
		if len(recs) == 0 {
			continue
		}
		batch := &message.CountBatch{Producer: uint32(producer), Shard: uint32(shard), Records: recs}
		if err := e.exchange.Send(ctx, producer, shard, batch.Marshal()); err != nil {
			return err
		}
	}
	return nil
}

// reduceTask waits for the barrier of one shard, then writes its totals.
func (e *execution) reduceTask(ctx context.Context, _ any, task any) error {
	shard := task.(int)
	name := fmt.Sprintf("shard %d", shard)
	m := e.job.newMerger()
	consumed, err := reducer.Consume(ctx, shard, e.exchange.Frames(shard), m)
	if err != nil {
		return &StageError{Stage: StageReduce, Task: name, Err: err}
	}
	e.records.Add(int64(consumed.Records))
	totals := m.Totals()
	for _, rec := range totals {
		if err := e.job.writer.Write(ctx, rec); err != nil {
			return &StageError{Stage: StageReduce, Task: name, Err: err}
		}
		e.rows.Add(1)
	}
	e.job.logger.Printf("%s committed %d rows from %d batches", name, len(totals), consumed.Batches)
	return nil
}
