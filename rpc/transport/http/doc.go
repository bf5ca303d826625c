// Package http carries rpc messages over HTTP.
//
// The server accepts POST /{shardId} with the serialized request as body and
// answers with the serialized response. Unknown shards and undecodable
// messages are reported inside the response message, HTTP errors only signal
// transport problems (bad shard id, unreadable body).
//
// The client spreads requests round-robin over all endpoints and moves on to
// the next endpoint when a request fails, up to RetryCount attempts. It is safe
// for concurrent use.
package http
