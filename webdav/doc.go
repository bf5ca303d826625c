// Package webdav is the HTTP layer of davlock.
//
// Handler serves a tree.ITree and delegates LOCK, UNLOCK and the lock
// pre-checks of all write methods to a lockmgr.LockManager. Besides locking it
// supports the methods a WebDAV client needs to work with locked resources:
// GET, HEAD, PUT, DELETE, MKCOL, MOVE, COPY, OPTIONS, PROPFIND (depth 0, live
// properties only) and PROPPATCH (every property is rejected with 403).
//
// Lock manager errors are mapped to status codes:
//
//	Locked, ConflictingLock     423
//	PreconditionFailed          412
//	BadRequest                  400
//	LockTokenMatchesRequestURI  409
//	MethodNotAllowed            405
//	Forbidden                   403
//
// and answered with a DAV:error document.
//
// Server puts request logging, rate limiting and a connection cap in front of
// the handler and exposes the process metrics in the prometheus text format.
package webdav
