package tokenizer

import (
	"slices"
	"testing"
)

func collect(line string) []string {
	var out []string
	for tok := range Tokens([]byte(line)) {
		out = append(out, string(tok))
	}
	return out
}

func TestTokens(t *testing.T) {
	tests := []struct {
		name string
		line string
		want []string
	}{
		{"empty", "", nil},
		{"only spaces", "   \t\r\n\f", nil},
		{"simple", "a a b", []string{"a", "a", "b"}},
		{"mixed delimiters", "\tfoo\r\nbar\fbaz  ", []string{"foo", "bar", "baz"}},
		{"punctuation kept", "Hello, world!", []string{"Hello,", "world!"}},
		{"case kept", "Go go GO", []string{"Go", "go", "GO"}},
		{"vertical tab is not a delimiter", "a\vb", []string{"a\vb"}},
		{"utf8", "héllo wörld", []string{"héllo", "wörld"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := collect(tt.line)
			if !slices.Equal(got, tt.want) {
				t.Errorf("Tokens(%q) = %q, want %q", tt.line, got, tt.want)
			}
			if n := Count([]byte(tt.line)); n != len(tt.want) {
				t.Errorf("Count(%q) = %d, want %d", tt.line, n, len(tt.want))
			}
		})
	}
}

func TestTokensRestartable(t *testing.T) {
	seq := Tokens([]byte("x y z"))
	var first, second []string
	for tok := range seq {
		first = append(first, string(tok))
	}
	for tok := range seq {
		second = append(second, string(tok))
	}
	if !slices.Equal(first, second) {
		t.Fatalf("second pass %q differs from first %q", second, first)
	}
}

func TestTokensEarlyStop(t *testing.T) {
	n := 0
	for range Tokens([]byte("a b c d")) {
		n++
		if n == 2 {
			break
		}
	}
	if n != 2 {
		t.Fatalf("got %d tokens before break, want 2", n)
	}
}
