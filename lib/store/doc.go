// Package store defines the lock store used by the lock manager: a persistence
// layer that stores lock.LockInfo records by path and answers hierarchical
// lookups.
//
// Key Components:
//
//   - ILockStore: GetLocks (ancestors with infinite depth, the path itself and
//     optionally descendants, expired locks excluded), Lock (insert or refresh,
//     atomically refusing conflicting scopes), Unlock and GetDBInfo.
//
//   - Lock table helpers (locktable.go): the operations every implementation
//     performs on a db.KVDB, shared so that the local store and the raft state
//     machine behave identically.
//
//   - Error: a return code plus message. Implementations return *Error values.
//
// Implementations:
//
//   - lstore: single node, in memory.
//   - dstore: replicated with Dragonboat RAFT.
//   - rpc/client: a remote store served by the rpc server.
//
// The storetest package contains the conformance suite all of them are tested with.
package store
