package job_test

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"wordcount/job"
	"wordcount/table"
)

// Example_wordCount counts the words of a small file into an in-memory table.
func Example_wordCount() {
	dir, err := os.MkdirTemp("", "wordcount")
	if err != nil {
		panic(err)
	}
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "hamlet.txt")
	text := "to be or not to be\nthat is the question\nto be\n"
	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		panic(err)
	}

	cfg := job.DefaultConfig()
	cfg.InputPaths = []string{path}
	cfg.OutputTable = "hamlet"
	cfg.Logger = log.New(io.Discard, "", 0)
	store := table.NewMemStore()
	j, err := job.New(cfg, store)
	if err != nil {
		panic(err)
	}
	ctx := context.Background()
	if _, err := j.Run(ctx); err != nil {
		panic(err)
	}

	cells, err := store.Scan(ctx, "hamlet", nil, 0)
	if err != nil {
		panic(err)
	}
	for _, c := range cells {
		n, _ := table.DecodeCount(c.Value)
		fmt.Printf("%s %d\n", c.Row, n)
	}
	fmt.Println(j.State())
	// Output:
	// be 3
	// is 1
	// not 1
	// or 1
	// question 1
	// that 1
	// the 1
	// to 3
	// SUCCEEDED
}
