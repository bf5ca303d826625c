// Package lockmgr implements WebDAV write locks (RFC 4918) on top of a
// store.ILockStore and a tree.ITree.
//
// The lock manager only ever stores in the provided ILockStore and has no other
// internal state. It is therefore safe to create it multiple times on the same
// store, for example once per WebDAV front-end node sharing a distributed store.
//
// Core Functionality:
//   - LOCK: create new exclusive or shared locks, refresh existing ones
//   - UNLOCK: release a lock by its token
//   - Pre-checks for DELETE, MKCOL, PROPPATCH, PUT, MOVE and COPY
//   - The lock properties supportedlock and lockdiscovery
//
// Validation:
//
//	Validate parses the If header once and checks it against the locks of every
//	affected path (including inherited locks of ancestors). Each lock whose token
//	is submitted in a positive condition is taken out of the working set. If a
//	condition applies to a path but none of its alternatives holds, validation
//	fails with a KindPreconditionFailed error. If locks remain after all
//	conditions were evaluated, the path is denied and the first remaining lock
//	is reported.
//
//	A negated token (Not <token>) holds as soon as one lock of the path has a
//	different token, even if a later lock carries the negated token.
//
// Atomicity:
//
//	Validation and storage are separate steps. The store refuses conflicting
//	new locks atomically, a LOCK that loses such a race fails with
//	KindConflictingLock.
//
// Hooks:
//
//	IHooks can veto lock creation, unlock and the creation of empty resources.
//	A veto does not fail the request, the mutation is just skipped.
//
// Usage Example:
//
//	mgr := lockmgr.NewLockManager(lstore.NewLocalStore(factory, nil), tree.NewMemTree(), nil, lockmgr.Config{})
//
//	res, err := mgr.HandleLock(lockmgr.NewRequest("LOCK", "/doc.txt", nil, body))
//	if err != nil {
//	    // map err to a status code
//	}
//	// res.Status, res.LockTokenHeader(), res.Body
package lockmgr
