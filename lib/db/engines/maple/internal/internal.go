package internal

import (
	"fmt"
	"sync"

	"github.com/ValentinKolb/davlock/lib/db"
	"github.com/ValentinKolb/davlock/lib/db/util"
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Entry Type (one lock record with metadata)
// --------------------------------------------------------------------------

// Entry stores one record of a path
type Entry struct {
	Token    string
	Value    []byte
	ExpireAt uint64 // expiration time (epoch seconds), 0 = never
	Index    uint64 // clock value when this entry was written
}

// Expired returns whether the entry is expired at the given time
func (e Entry) Expired(now uint64) bool {
	return e.ExpireAt != 0 && now >= e.ExpireAt
}

// Record converts the entry to a db.Record with a copied value
func (e Entry) Record(path string) db.Record {
	value := make([]byte, len(e.Value))
	copy(value, e.Value)
	return db.Record{
		Path:     path,
		Token:    e.Token,
		Value:    value,
		ExpireAt: e.ExpireAt,
	}
}

// Live returns the entries that are not expired at now.
// The input slice is never modified.
func Live(entries []Entry, now uint64) []Entry {
	live := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if !e.Expired(now) {
			live = append(live, e)
		}
	}
	return live
}

// --------------------------------------------------------------------------
// Ref Type (key of the expiry heap)
// --------------------------------------------------------------------------

// Ref addresses one record
type Ref struct {
	Path  string
	Token string
}

func (r Ref) String() string {
	return fmt.Sprintf("Ref{Path: %s, Token: %s}", r.Path, r.Token)
}

// --------------------------------------------------------------------------
// Shard Type (partition of the database)
// --------------------------------------------------------------------------

// Shard represents a partition of the lock table.
// Entries of a path are stored as a copy-on-write slice so that a
// xsync.MapOf.Compute call can inspect and replace them atomically.
type Shard struct {
	Data *xsync.MapOf[string, []Entry]

	heapMu     sync.Mutex
	ExpireHeap *util.MapHeap[Ref]
}

// NewShard creates a new empty shard
func NewShard() *Shard {
	return &Shard{
		Data:       xsync.NewMapOf[string, []Entry](),
		ExpireHeap: util.NewMapHeap[Ref](),
	}
}

// Schedule adds the record to the expiry heap, or removes it if it never expires
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (s *Shard) Schedule(ref Ref, expireAt uint64) {
	s.heapMu.Lock()
	defer s.heapMu.Unlock()
	if expireAt == 0 {
		s.ExpireHeap.RemoveByKey(ref)
		return
	}
	s.ExpireHeap.AddItem(ref, expireAt)
}

// Unschedule removes the record from the expiry heap
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (s *Shard) Unschedule(ref Ref) {
	s.heapMu.Lock()
	defer s.heapMu.Unlock()
	s.ExpireHeap.RemoveByKey(ref)
}

// Due pops all records with an expiry time <= now from the expiry heap
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (s *Shard) Due(now uint64) []Ref {
	s.heapMu.Lock()
	defer s.heapMu.Unlock()
	return s.ExpireHeap.PopUntil(now)
}

// Scheduled returns the number of records waiting for expiry
func (s *Shard) Scheduled() int {
	s.heapMu.Lock()
	defer s.heapMu.Unlock()
	return s.ExpireHeap.Len()
}

// GetShard returns the appropriate shard for a given key hash
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func GetShard[T any](key util.UintKey, shards []*T) *T {
	// Shift right by 7 bits to use higher-quality bits for distribution
	shiftedKey := uint64(key) >> 7
	shardPos := shiftedKey % uint64(len(shards))
	return shards[shardPos]
}
