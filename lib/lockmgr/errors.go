package lockmgr

import (
	"fmt"

	"github.com/ValentinKolb/davlock/lib/lock"
)

// --------------------------------------------------------------------------
// Error Kinds
// --------------------------------------------------------------------------

// ErrorKind classifies the rejections of the lock manager.
type ErrorKind uint8

const (
	KindLocked                     ErrorKind = iota + 1 // write blocked by a lock the client did not submit
	KindConflictingLock                                 // LOCK collides with an existing lock
	KindPreconditionFailed                              // If header present but no alternative holds
	KindBadRequest                                      // malformed request
	KindLockTokenMatchesRequestURI                      // UNLOCK token is not a lock of the request URI
	KindMethodNotAllowed                                // locking is disabled (no store)
	KindForbidden                                       // URI outside of the base URI
	KindConflict                                        // parent collection of the resource is missing
)

func (k ErrorKind) String() string {
	switch k {
	case KindLocked:
		return "Locked"
	case KindConflictingLock:
		return "ConflictingLock"
	case KindPreconditionFailed:
		return "PreconditionFailed"
	case KindBadRequest:
		return "BadRequest"
	case KindLockTokenMatchesRequestURI:
		return "LockTokenMatchesRequestURI"
	case KindMethodNotAllowed:
		return "MethodNotAllowed"
	case KindForbidden:
		return "Forbidden"
	case KindConflict:
		return "Conflict"
	default:
		return "Unknown"
	}
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is returned by all operations of the lock manager that reject a request.
// Lock carries the conflicting lock (Locked, ConflictingLock), Header the name of
// the request header that caused the failure (PreconditionFailed).
type Error struct {
	Kind   ErrorKind
	Msg    string
	Lock   *lock.LockInfo
	Header string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("LockManagerError (kind %s): %s", e.Kind, e.Msg)
}

// Is matches errors of the same kind, so errors.Is(err, ErrLocked) works
// regardless of message and payload.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// NewError creates a new lock manager error.
func NewError(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func lockedError(l *lock.LockInfo) *Error {
	return &Error{Kind: KindLocked, Msg: "resource is locked", Lock: l}
}

func conflictingLockError(l *lock.LockInfo) *Error {
	return &Error{Kind: KindConflictingLock, Msg: "resource is locked by a conflicting lock", Lock: l}
}

var (
	ErrLocked                     = NewError(KindLocked, "locked")
	ErrConflictingLock            = NewError(KindConflictingLock, "conflicting lock")
	ErrPreconditionFailed         = NewError(KindPreconditionFailed, "precondition failed")
	ErrBadRequest                 = NewError(KindBadRequest, "bad request")
	ErrLockTokenMatchesRequestURI = NewError(KindLockTokenMatchesRequestURI, "lock token does not match request uri")
	ErrMethodNotAllowed           = NewError(KindMethodNotAllowed, "method not allowed")
	ErrForbidden                  = NewError(KindForbidden, "forbidden")
	ErrConflict                   = NewError(KindConflict, "conflict")
)
