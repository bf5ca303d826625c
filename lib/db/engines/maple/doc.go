// Package maple implements the db.KVDB lock table as a sharded in-memory
// database.
//
// Paths are distributed over shards by a seeded hash. Every shard stores the
// records of its paths in a xsync.MapOf keyed by path; the value is an ordered
// copy-on-write slice of entries. All writes go through MapOf.Compute, so the
// PutCondition of a conditional Put observes and replaces the records of a path
// in one atomic step. This is what lets the lock stores refuse a second
// exclusive lock without any further locking.
//
// Expiry:
//
//   - Records carry an absolute expiry time (epoch seconds). Reads take the
//     current time as an argument and never return expired records.
//   - The database clock is the highest time passed to a write or SetClock.
//     A per-shard garbage collector periodically removes records whose expiry
//     time lies behind the clock. Records are scheduled in a util.MapHeap so a
//     refresh reschedules and a delete unschedules them.
//
// Persistence:
//
// Save writes a fuzzy snapshot of all live records:
//
//	"MAPLEDB\x00" | version (uint8) | seed (uint64) | clock (uint64) | count (uint64)
//	count x ( len|path  len|token  expireAt (uint64)  index (uint64)  len|value )
//
// Lengths are uint32, all integers little endian. Load replaces the content
// of the database and restores the clock.
package maple
