// Package rpc exposes lock stores over the network so that several WebDAV
// front ends can share one lock table.
//
// The package is organized into several subpackages:
//
//   - common: the Message protocol, configuration structures and logging.
//
//   - serializer: Message encodings (Binary, JSON, GOB).
//
//   - transport: the network layer. The http transport posts serialized
//     messages to /{shardId}.
//
//   - server: hosts lock store shards (local or raft replicated) and answers
//     the messages of remote clients.
//
//   - client: a store.ILockStore implementation that forwards every call to a
//     server.
package rpc
