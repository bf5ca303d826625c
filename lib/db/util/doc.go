// Package util provides utility components for
// lock table implementations that satisfy the db.KVDB interface.
//
// The package contains:
//   - functions: the seeded FNV-1a hash used to distribute paths over shards
//   - mapheap: a generic min-heap with key based access, used as the expiry queue
package util
