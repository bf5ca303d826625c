// Package common provides the data structures shared by the rpc client and
// server of the remote lock store.
//
// Key Components:
//
//   - Message: the single request and response type of the protocol. Locks
//     travel in their binary record format (lock.LockInfo.Serialize), store
//     errors keep their return code so the client can rebuild a *store.Error.
//
//   - MessageType: the supported operations, one per store.ILockStore method.
//
//   - ServerConfig: configuration of a davlock server process (WebDAV server,
//     lock store shards, rpc endpoint, RAFT parameters). Provides the
//     conversion to Dragonboat configurations.
//
//   - ClientConfig: endpoints, timeouts and retries of rpc clients.
//
//   - Logger: a dragonboat logger factory with a uniform
//     "LEVEL | name | message" line format used by all packages.
package common
