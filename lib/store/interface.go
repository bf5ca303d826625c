package store

import (
	"fmt"
	"time"

	"github.com/ValentinKolb/davlock/lib/db"
	"github.com/ValentinKolb/davlock/lib/lock"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// DBFactory is a function type that creates a new db used by the store.
// This is used to abstract the creation of the db from the store implementation.
type DBFactory func() db.KVDB

// DefaultLockTimeout is the lifetime in seconds of a lock that was stored without a timeout.
const DefaultLockTimeout int64 = 1800

// ILockStore persists and queries locks by path.
// All methods return a *Error on failure.
type ILockStore interface {
	// GetLocks returns all locks that apply to uri: locks on ancestors with infinite
	// depth (root first), locks directly on uri and, if returnChildLocks is set,
	// all locks on descendants of uri. Expired locks are never returned.
	GetLocks(uri string, returnChildLocks bool) (locks []*lock.LockInfo, err error)
	// Lock stores info on uri. It stamps info.Created and info.URI and applies the
	// default timeout if info.Timeout is 0. A lock with a known token is replaced (refresh).
	// A new lock is refused (false, nil) if an exclusive lock exists on uri or if info is
	// exclusive and any lock exists on uri.
	Lock(uri string, info *lock.LockInfo) (ok bool, err error)
	// Unlock removes the lock with info.Token from uri and reports whether it existed.
	Unlock(uri string, info *lock.LockInfo) (ok bool, err error)
	// GetDBInfo returns metadata about the database underlying the store.
	// It is not guaranteed that all fields are filled in or that the information is up-to-date!
	GetDBInfo() (info db.DatabaseInfo, err error)
}

// Options configure the lock semantics shared by all store implementations.
type Options struct {
	DefaultTimeout int64            // seconds, used when a lock has no timeout (0 = DefaultLockTimeout)
	Now            func() time.Time // clock source (nil = time.Now)
}

// DefaultOptions returns the default store options
func DefaultOptions() *Options {
	return &Options{
		DefaultTimeout: DefaultLockTimeout,
		Now:            time.Now,
	}
}

// Normalize fills in defaults for unset fields. A nil receiver yields DefaultOptions.
func (o *Options) Normalize() *Options {
	if o == nil {
		return DefaultOptions()
	}
	n := *o
	if n.DefaultTimeout == 0 {
		n.DefaultTimeout = DefaultLockTimeout
	}
	if n.Now == nil {
		n.Now = time.Now
	}
	return &n
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a return code (of type RetCode)
// and an error message.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message.
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("LockStoreError (code %s): %s", e.Code, e.Msg)
}

// NewError creates a new lock store error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess              RetCode = iota // 0: Command executed successfully.
	RetCInternalError                       // 1: Command failed due to an internal error.
	RetCUnsupportedOperation                // 2: Operation is not supported by underlying database.
	RetCInvalidOperation                    // 3: Invalid operation.
	RetCConflict                            // 4: Lock refused because of a conflicting lock.
	RetCNotFound                            // 5: Lock to remove does not exist.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCInternalError:
		return "InternalError"
	case RetCUnsupportedOperation:
		return "UnsupportedOperation"
	case RetCInvalidOperation:
		return "InvalidOperation"
	case RetCConflict:
		return "Conflict"
	case RetCNotFound:
		return "NotFound"
	default:
		return "Unknown"
	}
}
