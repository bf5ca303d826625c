// Package db defines the storage interface of the lock table.
//
// A lock table maps slash-rooted paths ("/", "/a", "/a/b") to an ordered list
// of records. A record is identified by its path and token and carries an
// opaque value (an encoded lock) and an absolute expiry time.
//
// Key Components:
//
//   - KVDB Interface: the operations every engine implements. Put inserts or
//     replaces a record and can be guarded by a PutCondition that is evaluated
//     atomically with the write. Delete removes a record. Get and Scan read
//     records that are live at a given time; Scan can visit the path itself,
//     its ancestors and its descendants.
//
//   - Feature Flags: engines advertise their capabilities through
//     SupportsFeature so that stores can reject unsupported operations with a
//     clear error instead of failing silently.
//
//   - DatabaseInfo: size estimate, implementation type and engine specific
//     metadata for monitoring.
//
// Note on Time:
//   - Every write takes a write time in epoch seconds which advances the
//     database clock. The clock is monotonic; SetClock ignores older values.
//   - Reads take the time to evaluate expiry against explicitly, so a read
//     never mutates the engine.
//   - Expired records must never be returned, even if they are still
//     physically present and waiting for garbage collection.
//
// Related Packages:
//
// The engines/maple package provides the in-memory sharded implementation.
// The util package contains the expiry heap and hash helpers. The testing
// package provides the conformance suite (RunKVDBTests) and benchmarks
// (RunKVDBBenchmarks) every engine is expected to pass.
package db
