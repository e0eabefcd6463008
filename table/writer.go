package table

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"

	"wordcount/mapreduce/types"
)

const (
	// CountFamily and CountColumn address the cell holding a word's total.
	CountFamily = "cf"
	CountColumn = "count"
)

// EncodeCount serializes a total as an 8-byte big-endian integer.
func EncodeCount(count int64) []byte {
	return binary.BigEndian.AppendUint64(nil, uint64(count))
}

// DecodeCount is the inverse of EncodeCount.
func DecodeCount(value []byte) (int64, error) {
	if len(value) != 8 {
		return 0, fmt.Errorf("%w: count value has %d bytes, want 8", ErrInvalidArgument, len(value))
	}
	return int64(binary.BigEndian.Uint64(value)), nil
}

// WriteError is returned when a row could not be written after retrying.
type WriteError struct {
	Row      string
	Attempts int
	Err      error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write row %q failed after %d attempts: %v", e.Row, e.Attempts, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// WriterConfig configures a Writer.
type WriterConfig struct {
	Table string
	// Retries is the number of retries after a failed put.
	Retries int
	// Backoff is the delay before the first retry; it doubles on every
	// further retry.
	Backoff time.Duration
	Logger  *log.Logger
}

// Writer commits count records to the output table.
type Writer struct {
	tbl    Table
	config WriterConfig
	logger *log.Logger
}

// NewWriter creates a Writer for tbl.
func NewWriter(tbl Table, config WriterConfig) *Writer {
	logger := config.Logger
	if logger == nil {
		logger = log.Default()
	}
	if config.Backoff <= 0 {
		config.Backoff = 100 * time.Millisecond
	}
	return &Writer{tbl: tbl, config: config, logger: logger}
}

// EnsureTable creates the output table with the count family. A table that
// already exists is fine.
func (w *Writer) EnsureTable(ctx context.Context) error {
	err := w.tbl.CreateTable(ctx, w.config.Table, []string{CountFamily})
	if errors.Is(err, ErrTableExists) {
		w.logger.Printf("table %s already exists", w.config.Table)
		return nil
	}
	if err == nil {
		w.logger.Printf("created table %s", w.config.Table)
	}
	return err
}

// Write upserts the total of rec, retrying transient failures.
func (w *Writer) Write(ctx context.Context, rec types.CountRecord) error {
	if rec.Count <= 0 {
		return fmt.Errorf("%w: non-positive count %d for %q", ErrInvalidArgument, rec.Count, rec.Word)
	}
	value := EncodeCount(rec.Count)
	attempts := 0
	op := func() error {
		attempts++
		err := w.tbl.Put(ctx, w.config.Table, []byte(rec.Word), CountFamily, CountColumn, value)
		if err != nil && (IsPermanent(err) || ctx.Err() != nil) {
			return backoff.Permanent(err)
		}
		return err
	}
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = w.config.Backoff
	policy.Multiplier = 2
	policy.RandomizationFactor = 0
	policy.MaxElapsedTime = 0
	notify := func(err error, next time.Duration) {
		w.logger.Printf("put %q into %s failed (attempt %d): %v, retrying in %s", rec.Word, w.config.Table, attempts, err, next)
	}
	retries := uint64(max(w.config.Retries, 0))
	err := backoff.RetryNotify(op, backoff.WithContext(backoff.WithMaxRetries(policy, retries), ctx), notify)
	if err != nil {
		return &WriteError{Row: rec.Word, Attempts: attempts, Err: err}
	}
	return nil
}
