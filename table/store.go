package table

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sys/unix"
	"google.golang.org/protobuf/encoding/protowire"

	"wordcount/message"
	"wordcount/utils"
)

var (
	errNoSchema   = errors.New("table directory has no schema")
	errCorruptLog = errors.New("corrupt cell log")
)

const (
	lockFileName   = "LOCK"
	schemaFileName = "schema"
	logFileName    = "cells.log"
)

type cellKey struct {
	family string
	column string
}

// logFile is the cell log of a table; *os.File in practice.
type logFile interface {
	io.WriteSeeker
	io.Closer
	Truncate(size int64) error
	Fd() uintptr
}

type tableData struct {
	name     string
	families []string
	rows     map[string]map[cellKey][]byte
	keys     *utils.OrderedList[string]
	log      logFile
	// logErr is set when a failed append could not be rolled back; the
	// table refuses further writes.
	logErr error
}

func newTableData(name string, families []string) *tableData {
	return &tableData{
		name:     name,
		families: families,
		rows:     make(map[string]map[cellKey][]byte),
		keys:     utils.NewOrderedList[string](),
	}
}

func (t *tableData) hasFamily(family string) bool {
	_, found := slices.BinarySearch(t.families, family)
	return found
}

func (t *tableData) apply(c *message.Cell) {
	row := string(c.Row)
	cells, ok := t.rows[row]
	if !ok {
		cells = make(map[cellKey][]byte)
		t.rows[row] = cells
		t.keys.Add(row)
	}
	cells[cellKey{c.Family, c.Column}] = c.Value
}

// sortedCells returns the cells of row ordered by family and column.
func (t *tableData) sortedCells(row string) []Cell {
	cells := t.rows[row]
	out := make([]Cell, 0, len(cells))
	for k, v := range cells {
		out = append(out, Cell{Row: []byte(row), Family: k.family, Column: k.column, Value: bytes.Clone(v)})
	}
	slices.SortFunc(out, func(a, b Cell) int {
		if c := cmp.Compare(a.Family, b.Family); c != 0 {
			return c
		}
		return cmp.Compare(a.Column, b.Column)
	})
	return out
}

// Store is a Table kept in memory and, when opened on a directory,
// persisted as one schema file and one append-only cell log per table.
type Store struct {
	mu        sync.RWMutex
	dir       string
	lock      *os.File
	tables    map[string]*tableData
	startedAt time.Time
	closed    bool
}

var (
	_ Table   = (*Store)(nil)
	_ Scanner = (*Store)(nil)
)

// NewMemStore creates a Store that is not persisted.
func NewMemStore() *Store {
	return &Store{
		tables:    make(map[string]*tableData),
		startedAt: time.Now(),
	}
}

// Open opens or creates the store in dir and replays its tables. The
// directory stays locked until Close.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	lock, err := os.OpenFile(filepath.Join(dir, lockFileName), os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}
	if err := unix.Flock(int(lock.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		lock.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%w: %s", ErrStoreLocked, dir)
		}
		return nil, fmt.Errorf("lock %s: %w", dir, err)
	}
	s := NewMemStore()
	s.dir = dir
	s.lock = lock

	entries, err := os.ReadDir(dir)
	if err != nil {
		s.Close()
		return nil, err
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		t, err := s.loadTable(entry.Name())
		if errors.Is(err, errNoSchema) {
			// left behind by a CreateTable that did not complete
			log.Printf("[table store] skip %s: %v", filepath.Join(dir, entry.Name()), err)
			continue
		}
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("load table %s: %w", entry.Name(), err)
		}
		s.tables[t.name] = t
	}
	return s, nil
}

// loadTable reads the schema of a table directory and replays its log.
func (s *Store) loadTable(name string) (*tableData, error) {
	tableDir := filepath.Join(s.dir, name)
	raw, err := os.ReadFile(filepath.Join(tableDir, schemaFileName))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, errNoSchema
	}
	if err != nil {
		return nil, err
	}
	var schema message.CreateTableRequest
	if err := schema.Unmarshal(raw); err != nil {
		return nil, err
	}
	if schema.Table != name {
		return nil, fmt.Errorf("schema names table %q", schema.Table)
	}
	t := newTableData(name, schema.Families)

	logPath := filepath.Join(tableDir, logFileName)
	data, err := os.ReadFile(logPath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	valid, err := replay(t, data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", logPath, err)
	}
	f, err := os.OpenFile(logPath, os.O_WRONLY|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}
	if err := f.Truncate(valid); err != nil {
		f.Close()
		return nil, err
	}
	if _, err := f.Seek(valid, io.SeekStart); err != nil {
		f.Close()
		return nil, err
	}
	t.log = f
	return t, nil
}

// replay applies the records of a cell log to t and returns the length of
// the valid prefix. Only a record cut short by the end of the log is
// dropped; a bad record followed by more data is corruption.
func replay(t *tableData, data []byte) (int64, error) {
	valid := 0
	for valid < len(data) {
		record, n := protowire.ConsumeBytes(data[valid:])
		if n < 0 {
			err := protowire.ParseError(n)
			if err == io.ErrUnexpectedEOF {
				// torn write at the tail of the log
				break
			}
			return 0, fmt.Errorf("%w at offset %d: %v", errCorruptLog, valid, err)
		}
		var c message.Cell
		if err := c.Unmarshal(record); err != nil {
			return 0, fmt.Errorf("%w at offset %d: %v", errCorruptLog, valid, err)
		}
		t.apply(&c)
		valid += n
	}
	return int64(valid), nil
}

func (s *Store) checkOpen(ctx context.Context) error {
	if s.closed {
		return ErrClosed
	}
	return ctx.Err()
}

// CreateTable creates a table with the given column families.
func (s *Store) CreateTable(ctx context.Context, name string, families []string) error {
	if err := ValidateName("table", name); err != nil {
		return err
	}
	if len(families) == 0 {
		return fmt.Errorf("%w: table %s needs at least one column family", ErrInvalidArgument, name)
	}
	for _, family := range families {
		if err := ValidateName("family", family); err != nil {
			return err
		}
	}
	families = slices.Compact(slices.Sorted(slices.Values(families)))

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(ctx); err != nil {
		return err
	}
	if _, ok := s.tables[name]; ok {
		return fmt.Errorf("%w: %s", ErrTableExists, name)
	}
	t := newTableData(name, families)
	if s.dir != "" {
		if err := s.persistSchema(t); err != nil {
			return fmt.Errorf("create table %s: %w", name, err)
		}
	}
	s.tables[name] = t
	return nil
}

// persistSchema writes the schema file atomically and opens the cell log.
func (s *Store) persistSchema(t *tableData) (err error) {
	tableDir := filepath.Join(s.dir, t.name)
	if err := os.MkdirAll(tableDir, 0755); err != nil {
		return err
	}
	defer func() {
		if err != nil {
			os.RemoveAll(tableDir)
		}
	}()
	schema := &message.CreateTableRequest{Table: t.name, Families: t.families}
	tmp := filepath.Join(tableDir, schemaFileName+".tmp")
	if err := os.WriteFile(tmp, schema.Marshal(), 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, filepath.Join(tableDir, schemaFileName)); err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(tableDir, logFileName), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	t.log = f
	return nil
}

// appendRecord writes one framed cell to the log. A failed write is cut
// back off the log so that the next record starts at a record boundary.
func (t *tableData) appendRecord(c *message.Cell) error {
	if t.logErr != nil {
		return fmt.Errorf("%w: %s: %v", ErrLogBroken, t.name, t.logErr)
	}
	offset, err := t.log.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	record := protowire.AppendBytes(nil, c.Marshal())
	if _, err := t.log.Write(record); err != nil {
		if rerr := t.rollback(offset); rerr != nil {
			t.logErr = rerr
			return fmt.Errorf("%w: %s: append: %v, rollback: %v", ErrLogBroken, t.name, err, rerr)
		}
		return fmt.Errorf("append to %s log: %w", t.name, err)
	}
	return nil
}

func (t *tableData) rollback(offset int64) error {
	if err := t.log.Truncate(offset); err != nil {
		return err
	}
	_, err := t.log.Seek(offset, io.SeekStart)
	return err
}

func (s *Store) lookup(name string) (*tableData, error) {
	t, ok := s.tables[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, name)
	}
	return t, nil
}

// Put sets the value of a cell, replacing any previous value.
func (s *Store) Put(ctx context.Context, name string, row []byte, family, column string, value []byte) error {
	if len(row) == 0 {
		return fmt.Errorf("%w: empty row key", ErrInvalidArgument)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(ctx); err != nil {
		return err
	}
	t, err := s.lookup(name)
	if err != nil {
		return err
	}
	if !t.hasFamily(family) {
		return fmt.Errorf("%w: %s in table %s", ErrFamilyNotFound, family, name)
	}
	c := &message.Cell{Row: bytes.Clone(row), Family: family, Column: column, Value: bytes.Clone(value)}
	if t.log != nil {
		if err := t.appendRecord(c); err != nil {
			return err
		}
	}
	t.apply(c)
	return nil
}

// Get returns the value of a cell.
func (s *Store) Get(ctx context.Context, name string, row []byte, family, column string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(ctx); err != nil {
		return nil, false, err
	}
	t, err := s.lookup(name)
	if err != nil {
		return nil, false, err
	}
	if !t.hasFamily(family) {
		return nil, false, fmt.Errorf("%w: %s in table %s", ErrFamilyNotFound, family, name)
	}
	v, ok := t.rows[string(row)][cellKey{family, column}]
	return bytes.Clone(v), ok, nil
}

// Scan returns the cells of the rows starting with prefix.
func (s *Store) Scan(ctx context.Context, name string, prefix []byte, limit int) ([]Cell, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(ctx); err != nil {
		return nil, err
	}
	t, err := s.lookup(name)
	if err != nil {
		return nil, err
	}
	var out []Cell
	for row := range t.keys.Ascend(string(prefix)) {
		if !strings.HasPrefix(row, string(prefix)) {
			break
		}
		for _, c := range t.sortedCells(row) {
			if limit > 0 && len(out) >= limit {
				return out, nil
			}
			out = append(out, c)
		}
	}
	return out, nil
}

// Stats describes every table, ordered by name.
func (s *Store) Stats(ctx context.Context) ([]message.TableStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(ctx); err != nil {
		return nil, err
	}
	stats := make([]message.TableStats, 0, len(s.tables))
	for _, t := range s.tables {
		hasher := utils.NewFieldHasher()
		for row := range t.keys.Ascend("") {
			for _, c := range t.sortedCells(row) {
				hasher.Add(c.Row, []byte(c.Family), []byte(c.Column), c.Value)
			}
		}
		stats = append(stats, message.TableStats{
			Table:    t.name,
			Families: slices.Clone(t.families),
			Rows:     uint64(t.keys.Len()),
			Digest:   hasher.Sum(),
		})
	}
	slices.SortFunc(stats, func(a, b message.TableStats) int {
		return cmp.Compare(a.Table, b.Table)
	})
	return stats, nil
}

// StartedAt returns when the store was opened.
func (s *Store) StartedAt() time.Time {
	return s.startedAt
}

// FreeSpace returns the space available to the store directory. It is 0
// for memory stores.
func (s *Store) FreeSpace() (uint64, error) {
	if s.dir == "" {
		return 0, nil
	}
	var stat unix.Statfs_t
	if err := unix.Statfs(s.dir, &stat); err != nil {
		return 0, err
	}
	return stat.Bavail * uint64(stat.Bsize), nil
}

// Sync flushes the cell logs to disk.
func (s *Store) Sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.syncLocked()
}

func (s *Store) syncLocked() error {
	var errs []error
	for _, t := range s.tables {
		if t.log == nil {
			continue
		}
		if err := unix.Fdatasync(int(t.log.Fd())); err != nil {
			errs = append(errs, fmt.Errorf("sync %s: %w", t.name, err))
		}
	}
	return errors.Join(errs...)
}

// Close syncs and closes the store and releases the directory lock.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	errs := []error{s.syncLocked()}
	for _, t := range s.tables {
		if t.log != nil {
			errs = append(errs, t.log.Close())
		}
	}
	if s.lock != nil {
		errs = append(errs, unix.Flock(int(s.lock.Fd()), unix.LOCK_UN), s.lock.Close())
	}
	return errors.Join(errs...)
}
