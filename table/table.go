// Package table is the key-value table the word counts are written to.
//
// A table has named column families fixed at creation time. Cells are
// addressed by (row, family, column) and hold opaque bytes; a put replaces
// the previous value of its cell, so writes are idempotent.
package table

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

// Table is the contract the job needs from a table store.
type Table interface {
	// CreateTable creates name with the given column families. It returns
	// an error wrapping ErrTableExists when the table is already there.
	CreateTable(ctx context.Context, name string, families []string) error
	// Put sets the value of one cell.
	Put(ctx context.Context, name string, row []byte, family, column string, value []byte) error
	// Get returns the value of one cell and whether it exists.
	Get(ctx context.Context, name string, row []byte, family, column string) ([]byte, bool, error)
}

// Cell is one value of a scan result.
type Cell struct {
	Row    []byte
	Family string
	Column string
	Value  []byte
}

// Scanner is implemented by stores that can list rows.
type Scanner interface {
	// Scan returns the cells of the rows starting with prefix, ordered by
	// row, family and column. limit <= 0 means no limit.
	Scan(ctx context.Context, name string, prefix []byte, limit int) ([]Cell, error)
}

// codedError is an error that keeps its classification across the wire.
type codedError struct {
	code string
	msg  string
}

func (e *codedError) Error() string { return e.msg }
func (e *codedError) Code() string  { return e.code }

var (
	ErrTableExists     error = &codedError{"TABLE_EXISTS", "table already exists"}
	ErrTableNotFound   error = &codedError{"TABLE_NOT_FOUND", "table not found"}
	ErrFamilyNotFound  error = &codedError{"FAMILY_NOT_FOUND", "column family not found"}
	ErrInvalidArgument error = &codedError{"INVALID_ARGUMENT", "invalid argument"}
	ErrStoreLocked           = errors.New("table store is locked by another process")
	ErrClosed                = errors.New("table store is closed")
	ErrLogBroken             = errors.New("table log is unusable")
)

var sentinels = []error{ErrTableExists, ErrTableNotFound, ErrFamilyNotFound, ErrInvalidArgument}

// remoteError carries the message of a server side error while matching
// its sentinel with errors.Is.
type remoteError struct {
	sentinel error
	msg      string
}

func (e *remoteError) Error() string { return e.msg }
func (e *remoteError) Unwrap() error { return e.sentinel }

// FromCode returns an error wrapping the sentinel registered for code, or
// nil if the code is unknown.
func FromCode(code, msg string) error {
	for _, s := range sentinels {
		if s.(*codedError).code == code {
			return &remoteError{sentinel: s, msg: msg}
		}
	}
	return nil
}

// IsPermanent reports whether retrying an operation that failed with err
// cannot succeed.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrTableNotFound) ||
		errors.Is(err, ErrFamilyNotFound) ||
		errors.Is(err, ErrInvalidArgument) ||
		errors.Is(err, ErrClosed) ||
		errors.Is(err, ErrLogBroken)
}

var namePattern = regexp.MustCompile(`^[A-Za-z0-9_-][A-Za-z0-9_.-]*$`)

// ValidateName checks a table or column family name. Names are used as
// directory names by Store, so path separators are rejected.
func ValidateName(kind, name string) error {
	if len(name) > 255 || !namePattern.MatchString(name) {
		return fmt.Errorf("%w: bad %s name %q", ErrInvalidArgument, kind, name)
	}
	return nil
}
