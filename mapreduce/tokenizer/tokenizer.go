// Package tokenizer splits lines of text into whitespace separated tokens.
package tokenizer

import "iter"

// isDelim reports whether c separates tokens. The set is the one used by
// java.util.StringTokenizer by default: space, tab, newline, carriage return
// and form feed.
func isDelim(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\f':
		return true
	}
	return false
}

// Tokens returns the tokens of line. The sequence can be ranged over any
// number of times. Yielded slices alias line, so copy them before keeping.
func Tokens(line []byte) iter.Seq[[]byte] {
	return func(yield func([]byte) bool) {
		i := 0
		for i < len(line) {
			for i < len(line) && isDelim(line[i]) {
				i++
			}
			start := i
			for i < len(line) && !isDelim(line[i]) {
				i++
			}
			if start < i {
				if !yield(line[start:i]) {
					return
				}
			}
		}
	}
}

// Count returns the number of tokens in line.
func Count(line []byte) int {
	n := 0
	for range Tokens(line) {
		n++
	}
	return n
}
