package lstore

import (
	"github.com/ValentinKolb/davlock/lib/db"
	"github.com/ValentinKolb/davlock/lib/lock"
	"github.com/ValentinKolb/davlock/lib/store"
)

type storeImpl struct {
	db   db.KVDB
	opts *store.Options
}

// NewLocalStore creates a new local lock store instance.
// This store implementation is not distributed and only works on a single node.
// It works on the db engine returned by factory directly.
func NewLocalStore(factory store.DBFactory, opts *store.Options) store.ILockStore {
	return &storeImpl{
		db:   factory(),
		opts: opts.Normalize(),
	}
}

// now returns the current time in epoch seconds and advances the database clock,
// so the engine's garbage collector keeps up with wall time even without writes.
func (s *storeImpl) now() int64 {
	now := s.opts.Now().Unix()
	s.db.SetClock(uint64(now))
	return now
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) GetLocks(uri string, returnChildLocks bool) ([]*lock.LockInfo, error) {
	return store.ReadLocks(s.db, uri, returnChildLocks, s.now())
}

func (s *storeImpl) Lock(uri string, info *lock.LockInfo) (bool, error) {
	return store.WriteLock(s.db, uri, info, s.now(), s.opts.DefaultTimeout)
}

func (s *storeImpl) Unlock(uri string, info *lock.LockInfo) (bool, error) {
	return store.RemoveLock(s.db, uri, info, s.now())
}

func (s *storeImpl) GetDBInfo() (db.DatabaseInfo, error) {
	return s.db.GetInfo(), nil
}
