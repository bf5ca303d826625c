package lockmgr

import (
	"encoding/xml"

	"github.com/ValentinKolb/davlock/lib/lock"
)

// ILockManager is the lock management surface the HTTP layer consumes.
// All methods return a *Error for rejections and pass through store and tree errors.
type ILockManager interface {
	// BeforeMethod runs the lock pre-check for write methods (DELETE, MKCOL, PROPPATCH,
	// PUT, MOVE and COPY). Other methods always pass.
	BeforeMethod(req *Request) error

	// HandleLock creates or refreshes a lock on req.URI.
	HandleLock(req *Request) (*LockResponse, error)

	// HandleUnlock removes the lock named by the Lock-Token header and returns the response status.
	HandleUnlock(req *Request) (status int, err error)

	// Validate checks the If header of req against the locks on paths.
	Validate(req *Request, paths []string, checkChildLocks bool) (ValidationResult, error)

	// AfterGetProperties returns the lock properties among names for path.
	AfterGetProperties(path string, names []xml.Name) (map[xml.Name]Property, error)

	// GetLocks returns the active locks that apply to path.
	GetLocks(path string, returnChildLocks bool) ([]*lock.LockInfo, error)

	// Features returns the DAV compliance classes contributed by locking.
	Features() []string

	// AllowedMethods returns the methods contributed by locking.
	AllowedMethods() []string
}

// LockResponse is the result of a successful LOCK request.
type LockResponse struct {
	Status  int            // 201 if the resource was created by the request, 200 otherwise
	Lock    *lock.LockInfo // the created or refreshed lock
	Created bool
	Body    []byte // lockdiscovery document
}

// LockTokenHeader returns the value of the Lock-Token response header.
func (r *LockResponse) LockTokenHeader() string {
	return r.Lock.CodedURL()
}
