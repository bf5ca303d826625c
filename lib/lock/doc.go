// Package lock contains the WebDAV lock data model and the parser for the
// If request header.
//
// A LockInfo describes one lock: its owner, an opaque token (a random UUID
// that is exposed as "opaquelocktoken:<uuid>"), the requested timeout in
// seconds (or TimeoutInfinite), its creation time, scope, depth and the path
// the lock is registered against.
//
// Lock records are stored by the lock stores in a compact binary format
// produced by LockInfo.Serialize:
//
//	version (1 byte) | scope (1 byte) | depth (1 byte)
//	timeout (8 bytes) | created (8 bytes)
//	len(owner) (4 bytes) | owner | len(token) (4 bytes) | token | len(uri) (4 bytes) | uri
//
// All integers are big endian.
//
// ParseIfHeader turns an If header into a list of Conditions. Each
// parenthesized group becomes a ConditionToken; groups without a resource tag
// are appended to the preceding condition.
package lock
