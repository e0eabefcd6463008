// Package job drives a word-count run: it discovers the input, runs the map
// and reduce pools side by side over a shuffle exchange, and commits the
// totals to the output table.
package job

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"wordcount/mapreduce/combiner"
	"wordcount/mapreduce/input"
	"wordcount/mapreduce/reducer"
	"wordcount/mapreduce/types"
	"wordcount/table"
)

// State is the lifecycle state of a job.
type State int32

const (
	Configured State = iota
	Running
	Succeeded
	Failed
)

func (s State) String() string {
	switch s {
	case Configured:
		return "CONFIGURED"
	case Running:
		return "RUNNING"
	case Succeeded:
		return "SUCCEEDED"
	case Failed:
		return "FAILED"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Stage names used in StageError.
const (
	StageCreateTable = "create-table"
	StageInput       = "input"
	StageMap         = "map"
	StageReduce      = "reduce"
)

// StageError reports which stage of the job failed, and on what.
type StageError struct {
	Stage string
	Task  string
	Err   error
}

func (e *StageError) Error() string {
	if e.Task == "" {
		return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("%s stage failed on %s: %v", e.Stage, e.Task, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Stats summarises a run.
type Stats struct {
	Splits          int
	Tokens          int64
	ShuffledBatches int64
	ShuffledRecords int64
	ShuffledBytes   int64
	RowsWritten     int64
	Duration        time.Duration
}

// Job is one word-count run. A Job can be run once.
type Job struct {
	config Config
	tbl    table.Table
	writer *table.Writer
	logger *log.Logger

	newCombiner func() types.Combiner
	newMerger   func() types.Merger

	mutex sync.Mutex
	state State
}

// New validates config and returns a job in the Configured state.
func New(config Config, tbl table.Table) (*Job, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if tbl == nil {
		return nil, errors.New("job needs an output table store")
	}
	if config.MapParallelism < 1 {
		config.MapParallelism = 1
	}
	if config.ShuffleBuffer < 0 {
		config.ShuffleBuffer = 0
	}
	logger := config.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Job{
		config: config,
		tbl:    tbl,
		logger: logger,
		writer: table.NewWriter(tbl, table.WriterConfig{
			Table:   config.OutputTable,
			Retries: config.WriteRetries,
			Backoff: config.RetryBackoff,
			Logger:  logger,
		}),
		newCombiner: func() types.Combiner { return combiner.New(config.FlushThreshold) },
		newMerger:   func() types.Merger { return reducer.New() },
		state:       Configured,
	}, nil
}

// State returns the current lifecycle state.
func (j *Job) State() State {
	j.mutex.Lock()
	defer j.mutex.Unlock()
	return j.state
}

func (j *Job) setState(s State) {
	j.mutex.Lock()
	j.state = s
	j.mutex.Unlock()
}

// Run executes the job. Cancelling ctx fails the run; rows already written
// stay in the table.
func (j *Job) Run(ctx context.Context) (Stats, error) {
	j.mutex.Lock()
	if j.state != Configured {
		state := j.state
		j.mutex.Unlock()
		return Stats{}, fmt.Errorf("job cannot run in state %s", state)
	}
	j.state = Running
	j.mutex.Unlock()

	started := time.Now()
	stats, err := j.run(ctx)
	stats.Duration = time.Since(started)
	if err != nil {
		j.setState(Failed)
		j.logger.Printf("job failed after %s: %v", stats.Duration.Round(time.Millisecond), err)
		return stats, err
	}
	j.setState(Succeeded)
	j.logger.Printf("job succeeded in %s: %d splits, %d tokens, %d batches (%d records, %d bytes) shuffled, %d rows written",
		stats.Duration.Round(time.Millisecond), stats.Splits, stats.Tokens,
		stats.ShuffledBatches, stats.ShuffledRecords, stats.ShuffledBytes, stats.RowsWritten)
	return stats, nil
}

func (j *Job) run(ctx context.Context) (Stats, error) {
	j.logger.Printf("job started: input %v, output table %s, %d shards", j.config.InputPaths, j.config.OutputTable, j.config.ShardCount)
	if err := j.writer.EnsureTable(ctx); err != nil {
		if !j.config.LenientTableCreate {
			return Stats{}, &StageError{Stage: StageCreateTable, Task: j.config.OutputTable, Err: err}
		}
		j.logger.Printf("create table %s failed, continuing: %v", j.config.OutputTable, err)
	}

	splits, err := input.Discover(j.config.InputPaths, j.config.SplitSize, j.logger)
	if err != nil {
		return Stats{}, &StageError{Stage: StageInput, Err: err}
	}
	return j.execute(ctx, splits)
}
