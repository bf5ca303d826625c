package util

import (
	"crypto/rand"
	"encoding/binary"
	"time"
)

// --------------------------------------------------------------------------
// Seeds
// --------------------------------------------------------------------------

// GenerateSeed returns a random seed for spreading lock paths over shards.
// If the system randomness source fails, the current time is used instead.
func GenerateSeed() uint64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return uint64(time.Now().UnixNano())
	}
	return binary.LittleEndian.Uint64(b[:])
}

// --------------------------------------------------------------------------
// Hashing
// --------------------------------------------------------------------------

// UintKey is a hashed lock path or node name.
type UintKey uint64

const (
	fnvOffset64 = 14695981039346656037
	fnvPrime64  = 1099511628211
)

// HashString is seeded 64-bit FNV-1a. The same (s, seed) pair always yields the same key,
// so a path maps to one shard for the lifetime of a table.
func HashString(s string, seed uint64) UintKey {
	h := uint64(fnvOffset64) ^ seed
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= fnvPrime64
	}
	return UintKey(h)
}

// ReplicaID derives a stable raft replica id from a node name. Every node in a cluster
// must compute the same id for the same name, so the hash is unseeded.
func ReplicaID(name string) uint64 {
	return uint64(HashString(name, 0))
}
