package util

import "testing"

func TestHashString(t *testing.T) {
	tests := []struct {
		name string
		s    string
		seed uint64
		want UintKey
	}{
		// published FNV-1a 64 vectors
		{"empty", "", 0, 0xcbf29ce484222325},
		{"a", "a", 0, 0xaf63dc4c8601ec8c},
		{"foobar", "foobar", 0, 0x85944171f73967e8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HashString(tt.s, tt.seed); got != tt.want {
				t.Errorf("HashString(%q, %d) = %#x, want %#x", tt.s, tt.seed, got, tt.want)
			}
		})
	}

	if HashString("/docs/a.txt", 1) == HashString("/docs/a.txt", 2) {
		t.Error("different seeds should give different keys")
	}
	if HashString("/docs/a.txt", 7) != HashString("/docs/a.txt", 7) {
		t.Error("same seed should give the same key")
	}
}

func TestReplicaID(t *testing.T) {
	if ReplicaID("node-1") != uint64(HashString("node-1", 0)) {
		t.Error("ReplicaID should be the unseeded hash of the name")
	}
	if ReplicaID("node-1") == ReplicaID("node-2") {
		t.Error("distinct node names should give distinct ids")
	}
}
