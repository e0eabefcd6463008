package partition

import "hash/fnv"

// Shard assigns word to one of n reduce shards using FNV-1a of its bytes.
// The result only depends on word and n, so every map worker agrees on it.
func Shard(word []byte, n int) int {
	if n <= 0 {
		panic("partition: shard count must be positive")
	}
	hasher := fnv.New32a()
	hasher.Write(word)
	return int(hasher.Sum32() % uint32(n))
}

// ShardString is Shard for a string word.
func ShardString(word string, n int) int {
	return Shard([]byte(word), n)
}
