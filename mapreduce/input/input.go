// Package input turns input paths into byte-range splits and reads the
// lines of a split.
package input

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

var ErrNoInput = errors.New("input path does not exist")

// Split is the part of a file read by one map task. It owns the lines whose
// first byte lies in [Start, End).
type Split struct {
	Index int
	Path  string
	Start int64
	End   int64
}

func (s Split) String() string {
	return fmt.Sprintf("%s:%d+%d", s.Path, s.Start, s.End-s.Start)
}

// hidden reports whether a directory entry is skipped during discovery.
func hidden(name string) bool {
	return strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".")
}

// Discover expands paths into splits. Directories are walked recursively,
// skipping entries whose name starts with "_" or "."; files named directly
// are always read. Files larger than splitSize are cut into several splits;
// splitSize <= 0 means one split per file.
func Discover(paths []string, splitSize int64, logger *log.Logger) ([]Split, error) {
	if logger == nil {
		logger = log.Default()
	}
	var files []string
	for _, p := range paths {
		fi, err := os.Stat(p)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s", ErrNoInput, p)
			}
			return nil, err
		}
		if !fi.IsDir() {
			files = append(files, p)
			continue
		}
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if path != p && hidden(d.Name()) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.Type().IsRegular() {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	var splits []Split
	for _, f := range files {
		fi, err := os.Stat(f)
		if err != nil {
			return nil, err
		}
		if ok, err := IsTextFile(f); err != nil {
			return nil, err
		} else if !ok {
			logger.Printf("warning: %s does not look like a text file", f)
		}
		size := fi.Size()
		if splitSize <= 0 || size <= splitSize {
			splits = append(splits, Split{Index: len(splits), Path: f, Start: 0, End: size})
			continue
		}
		for start := int64(0); start < size; start += splitSize {
			splits = append(splits, Split{Index: len(splits), Path: f, Start: start, End: min(start+splitSize, size)})
		}
	}
	return splits, nil
}

// IsTextFile checks if the beginning of the file looks like text.
// It reads up to 1024 bytes and checks for null bytes or invalid UTF-8 sequences.
func IsTextFile(filename string) (bool, error) {
	f, err := os.Open(filename)
	if err != nil {
		return false, err
	}
	defer f.Close()

	buffer := make([]byte, 1024)
	n, err := io.ReadFull(f, buffer)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return false, err
	}
	buffer = buffer[:n]
	if n == 0 {
		return true, nil
	}
	if bytes.IndexByte(buffer, 0) >= 0 {
		return false, nil
	}
	if n == 1024 {
		buffer = trimPartialRune(buffer)
	}
	return utf8.Valid(buffer), nil
}

// trimPartialRune drops a multi-byte rune cut off at the end of b.
func trimPartialRune(b []byte) []byte {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if utf8.RuneStart(b[i]) {
			if !utf8.FullRune(b[i:]) {
				return b[:i]
			}
			break
		}
	}
	return b
}

// ReadLines calls fn with every line owned by s, without its line
// terminator. The slice passed to fn is only valid until fn returns.
func ReadLines(ctx context.Context, s Split, fn func(line []byte) error) error {
	f, err := os.Open(s.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	pos := s.Start
	if s.Start > 0 {
		// the line that crosses Start belongs to the previous split
		pos = s.Start - 1
		if _, err := f.Seek(pos, io.SeekStart); err != nil {
			return err
		}
	}
	r := bufio.NewReaderSize(f, 64*1024)
	var long []byte
	readLine := func() ([]byte, error) {
		long = long[:0]
		for {
			chunk, err := r.ReadSlice('\n')
			if err == bufio.ErrBufferFull {
				long = append(long, chunk...)
				continue
			}
			if len(long) > 0 {
				long = append(long, chunk...)
				return long, err
			}
			return chunk, err
		}
	}

	if s.Start > 0 {
		skipped, err := readLine()
		pos += int64(len(skipped))
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
	for pos < s.End {
		if err := ctx.Err(); err != nil {
			return err
		}
		raw, err := readLine()
		if err != nil && err != io.EOF {
			return err
		}
		if len(raw) == 0 {
			return nil
		}
		pos += int64(len(raw))
		line := bytes.TrimSuffix(raw, []byte{'\n'})
		line = bytes.TrimSuffix(line, []byte{'\r'})
		if ferr := fn(line); ferr != nil {
			return ferr
		}
		if err == io.EOF {
			return nil
		}
	}
	return nil
}
