package utils

import (
	"slices"
	"testing"
)

func TestOrderedList(t *testing.T) {
	l := NewOrderedList[string]()
	for _, s := range []string{"pear", "apple", "fig", "apple", "banana"} {
		l.Add(s)
	}
	if l.Add("fig") {
		t.Error("Add of an existing item reported a change")
	}
	if l.Len() != 4 {
		t.Fatalf("Len() = %d, want 4", l.Len())
	}
	collect := func(from string) []string {
		var out []string
		for s := range l.Ascend(from) {
			out = append(out, s)
		}
		return out
	}
	if got, want := collect(""), []string{"apple", "banana", "fig", "pear"}; !slices.Equal(got, want) {
		t.Fatalf("Ascend(\"\") = %v, want %v", got, want)
	}
	if got, want := collect("b"), []string{"banana", "fig", "pear"}; !slices.Equal(got, want) {
		t.Fatalf("Ascend(b) = %v, want %v", got, want)
	}
}

func TestFieldHasher(t *testing.T) {
	a := NewFieldHasher()
	a.Add([]byte("ab"), []byte("c"))
	b := NewFieldHasher()
	b.Add([]byte("a"), []byte("bc"))
	if a.Sum() == b.Sum() {
		t.Fatal("field boundaries do not change the hash")
	}
	c := NewFieldHasher()
	c.Add([]byte("ab"))
	c.Add([]byte("c"))
	if a.Sum() != c.Sum() {
		t.Fatal("hash depends on how fields were batched")
	}
	if empty := NewFieldHasher().Sum(); empty != "d41d8cd98f00b204e9800998ecf8427e" {
		t.Fatalf("empty Sum() = %q, want the MD5 of no input", empty)
	}
}
