// Package transport defines how serialized rpc messages travel between the
// lock store client and server. Requests are addressed to a shard, the
// transport does not look into the payload.
//
// The http subpackage is the only implementation.
package transport
