package lockmgr

import "github.com/ValentinKolb/davlock/lib/lock"

// IHooks are notified before the lock manager mutates state.
// Returning false vetoes the operation. A veto is silent: the request still
// completes, but the lock is not stored or removed, or the file is not created.
type IHooks interface {
	// BeforeLock is called before a new or refreshed lock is stored on path.
	BeforeLock(path string, info *lock.LockInfo) bool
	// BeforeUnlock is called before info is removed.
	BeforeUnlock(path string, info *lock.LockInfo) bool
	// BeforeWriteContent is called before an empty resource is created at path by a LOCK request.
	BeforeWriteContent(path string) bool
}

// NopHooks allows every operation.
type NopHooks struct{}

func (NopHooks) BeforeLock(string, *lock.LockInfo) bool   { return true }
func (NopHooks) BeforeUnlock(string, *lock.LockInfo) bool { return true }
func (NopHooks) BeforeWriteContent(string) bool           { return true }

// HookFuncs adapts plain functions to IHooks. Nil functions allow the operation.
type HookFuncs struct {
	Lock         func(path string, info *lock.LockInfo) bool
	Unlock       func(path string, info *lock.LockInfo) bool
	WriteContent func(path string) bool
}

func (h HookFuncs) BeforeLock(path string, info *lock.LockInfo) bool {
	return h.Lock == nil || h.Lock(path, info)
}

func (h HookFuncs) BeforeUnlock(path string, info *lock.LockInfo) bool {
	return h.Unlock == nil || h.Unlock(path, info)
}

func (h HookFuncs) BeforeWriteContent(path string) bool {
	return h.WriteContent == nil || h.WriteContent(path)
}
