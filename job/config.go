package job

import (
	"errors"
	"fmt"
	"log"
	"runtime"
	"time"

	"wordcount/table"
)

var ErrUsage = errors.New("usage error")

// Config holds everything a job needs. It is passed explicitly; there is no
// global configuration.
type Config struct {
	InputPaths  []string
	OutputTable string
	// ShardCount is the number of reduce shards.
	ShardCount int
	// MapParallelism bounds how many map tasks run at once.
	MapParallelism int
	// FlushThreshold is the number of distinct words a map worker buffers
	// before shipping them; <= 0 buffers a whole split.
	FlushThreshold int
	// SplitSize cuts input files into splits of at most this many bytes;
	// <= 0 reads every file as a single split.
	SplitSize int64
	// ShuffleBuffer is the number of batches a shard inbox holds before
	// producers block.
	ShuffleBuffer int
	// WriteRetries and RetryBackoff configure the table writer.
	WriteRetries int
	RetryBackoff time.Duration
	// LenientTableCreate logs a failure to create the output table and
	// carries on instead of failing the job.
	LenientTableCreate bool
	Logger             *log.Logger
}

// DefaultConfig returns a configuration with the tuning options set.
func DefaultConfig() Config {
	return Config{
		ShardCount:     4,
		MapParallelism: runtime.NumCPU(),
		FlushThreshold: 10000,
		ShuffleBuffer:  16,
		WriteRetries:   3,
		RetryBackoff:   100 * time.Millisecond,
	}
}

// Validate checks the configuration. Every failure wraps ErrUsage.
func (c *Config) Validate() error {
	if len(c.InputPaths) == 0 {
		return fmt.Errorf("%w: at least one input path is required", ErrUsage)
	}
	for _, p := range c.InputPaths {
		if p == "" {
			return fmt.Errorf("%w: empty input path", ErrUsage)
		}
	}
	if c.OutputTable == "" {
		return fmt.Errorf("%w: output table name is required", ErrUsage)
	}
	if err := table.ValidateName("table", c.OutputTable); err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}
	if c.ShardCount < 1 {
		return fmt.Errorf("%w: shard count must be at least 1, got %d", ErrUsage, c.ShardCount)
	}
	if c.WriteRetries < 0 {
		return fmt.Errorf("%w: write retries must not be negative, got %d", ErrUsage, c.WriteRetries)
	}
	return nil
}
