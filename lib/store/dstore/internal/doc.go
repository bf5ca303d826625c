// Package internal provides the protocol structures used between the dstore
// client and the raft state machine.
//
//   - Command: a write (lock or unlock). Commands are serialized into the raft log:
//
//     type (1 byte) | time (8 bytes) | len(key) (4 bytes) | key | value
//
//     For CommandTLock the value is the encoded lock.LockInfo, for CommandTUnlock
//     it is the lock token.
//
//   - Query: a read (GetLocks, GetDBInfo). Queries are executed by the local
//     replica and are never serialized.
package internal
