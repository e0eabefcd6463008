package utils

import (
	"crypto/md5"
	"encoding/binary"
	"encoding/hex"
	"hash"
)

// FieldHasher computes an MD5 over a sequence of fields. Every field is
// length prefixed, so ("ab", "c") and ("a", "bc") hash differently.
type FieldHasher struct {
	h hash.Hash
}

// NewFieldHasher creates an empty FieldHasher.
func NewFieldHasher() *FieldHasher {
	return &FieldHasher{h: md5.New()}
}

// Add appends fields to the hash.
func (f *FieldHasher) Add(fields ...[]byte) {
	var prefix [binary.MaxVarintLen64]byte
	for _, field := range fields {
		n := binary.PutUvarint(prefix[:], uint64(len(field)))
		f.h.Write(prefix[:n])
		f.h.Write(field)
	}
}

// Sum returns the hex encoded hash of the fields added so far.
func (f *FieldHasher) Sum() string {
	return hex.EncodeToString(f.h.Sum(nil))
}
