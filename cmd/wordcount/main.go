package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"wordcount/job"
	"wordcount/table"
	"wordcount/table/remote"
)

func printUsage(w io.Writer, name string) {
	fmt.Fprintf(w, `Usage of %s: %s [OPTIONS] <input-path>... <output-table-name>
Counts the words of the input files and directories and writes every total
into column cf:count of the output table.
Options:
  -store <dir>               Local table store directory (default "tables").
  -tsa <address>             Table server address; overrides -store.
  -shards <number>           Number of reduce shards (default 4).
  -mappers <number>          Map tasks running at once (default: number of CPUs).
  -flush <number>            Distinct words a mapper buffers before shipping them (default 10000).
  -split-size <bytes>        Cut input files into splits of this size (default 0, one split per file).
  -buffer <number>           Batches buffered per shard before mappers block (default 16).
  -retries <number>          Retries of a failed table write (default 3).
  -backoff <duration>        Delay before the first write retry, doubled on every retry (default 100ms).
  -lenient-create            Carry on when the output table cannot be created.
  -h                         Print this help message.
`, name, name)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes the command line in args and returns the exit code.
func run(ctx context.Context, args []string, stderr io.Writer) int {
	name := args[0]
	flagSet := flag.NewFlagSet(name, flag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.Usage = func() { printUsage(stderr, name) }
	storeDir := flagSet.String("store", "tables", "Local table store directory")
	serverAddr := flagSet.String("tsa", "", "Table server address")
	shards := flagSet.Uint("shards", 4, "Number of reduce shards")
	mappers := flagSet.Uint("mappers", uint(runtime.NumCPU()), "Map tasks running at once")
	flush := flagSet.Int("flush", 10000, "Distinct words a mapper buffers before shipping them")
	splitSize := flagSet.Int64("split-size", 0, "Split size in bytes")
	buffer := flagSet.Uint("buffer", 16, "Batches buffered per shard")
	retries := flagSet.Uint("retries", 3, "Retries of a failed table write")
	backoff := flagSet.Duration("backoff", 0, "Delay before the first write retry")
	lenient := flagSet.Bool("lenient-create", false, "Carry on when the output table cannot be created")
	if err := flagSet.Parse(args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	positional := flagSet.Args()
	if len(positional) < 2 {
		fmt.Fprintln(stderr, "at least one input path and an output table name are required")
		printUsage(stderr, name)
		return 2
	}

	cfg := job.DefaultConfig()
	cfg.InputPaths = positional[:len(positional)-1]
	cfg.OutputTable = positional[len(positional)-1]
	cfg.ShardCount = int(*shards)
	cfg.MapParallelism = int(*mappers)
	cfg.FlushThreshold = *flush
	cfg.SplitSize = *splitSize
	cfg.ShuffleBuffer = int(*buffer)
	cfg.WriteRetries = int(*retries)
	if *backoff > 0 {
		cfg.RetryBackoff = *backoff
	}
	cfg.LenientTableCreate = *lenient
	cfg.Logger = log.New(stderr, "[wordcount] ", log.LstdFlags|log.Lmsgprefix)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(stderr, err)
		printUsage(stderr, name)
		return 2
	}

	var tbl table.Table
	if *serverAddr != "" {
		remoteTable, err := remote.Dial(ctx, *serverAddr)
		if err != nil {
			fmt.Fprintf(stderr, "connect to table server failed: %v\n", err)
			return 1
		}
		defer remoteTable.Close()
		tbl = remoteTable
	} else {
		store, err := table.Open(*storeDir)
		if err != nil {
			fmt.Fprintf(stderr, "open table store failed: %v\n", err)
			return 1
		}
		defer store.Close()
		tbl = store
	}

	j, err := job.New(cfg, tbl)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	if _, err := j.Run(ctx); err != nil {
		fmt.Fprintf(stderr, "wordcount failed: %v\n", err)
		return 1
	}
	return 0
}
