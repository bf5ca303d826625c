package store

import (
	"fmt"

	"github.com/ValentinKolb/davlock/lib/db"
	"github.com/ValentinKolb/davlock/lib/lock"
)

// --------------------------------------------------------------------------
// Lock table operations shared by all store implementations
// --------------------------------------------------------------------------

// PrepareLock stamps info for storage on uri at time now (epoch seconds)
// and returns the record to write. info is modified in place.
func PrepareLock(uri string, info *lock.LockInfo, now, defaultTimeout int64) db.Record {
	info.Created = now
	info.URI = uri
	if info.Timeout == 0 {
		info.Timeout = defaultTimeout
	}
	return db.Record{
		Path:     uri,
		Token:    info.Token,
		Value:    info.Serialize(),
		ExpireAt: uint64(info.ExpiresAt()),
	}
}

// ConflictCondition returns the PutCondition that protects the scope invariant:
// at most one exclusive lock per path and no shared lock next to an exclusive one.
// A lock whose token is already stored on the path is a refresh and always passes.
func ConflictCondition(info *lock.LockInfo) db.PutCondition {
	return func(existing []db.Record) bool {
		for _, r := range existing {
			if r.Token == info.Token {
				return true
			}
		}
		for _, r := range existing {
			other, err := lock.Decode(r.Value)
			if err != nil {
				// an unreadable record blocks the path rather than being ignored
				return false
			}
			if other.Scope == lock.ScopeExclusive || info.Scope == lock.ScopeExclusive {
				return false
			}
		}
		return true
	}
}

// WriteLock performs the conditional write of a lock into database.
func WriteLock(database db.KVDB, uri string, info *lock.LockInfo, now, defaultTimeout int64) (bool, error) {
	if !database.SupportsFeature(db.FeatureConditionalPut) {
		return false, NewError(RetCUnsupportedOperation, "conditional Put operation is not supported")
	}
	if info == nil || info.Token == "" {
		return false, NewError(RetCInvalidOperation, "lock without token")
	}
	rec := PrepareLock(uri, info, now, defaultTimeout)
	return database.Put(rec, uint64(now), ConflictCondition(info)), nil
}

// RemoveLock deletes the lock with info.Token from uri.
func RemoveLock(database db.KVDB, uri string, info *lock.LockInfo, now int64) (bool, error) {
	if !database.SupportsFeature(db.FeatureDelete) {
		return false, NewError(RetCUnsupportedOperation, "Delete operation is not supported")
	}
	if info == nil || info.Token == "" {
		return false, NewError(RetCInvalidOperation, "lock without token")
	}
	return database.Delete(uri, info.Token, uint64(now)), nil
}

// ReadLocks collects the locks that apply to uri at time now (see ILockStore.GetLocks).
func ReadLocks(database db.KVDB, uri string, returnChildLocks bool, now int64) ([]*lock.LockInfo, error) {
	if !database.SupportsFeature(db.FeatureScan) {
		return nil, NewError(RetCUnsupportedOperation, "Scan operation is not supported")
	}
	t := uint64(now)

	var locks []*lock.LockInfo

	inherited, err := decodeAll(database.Scan(uri, db.ScanAncestors, t))
	if err != nil {
		return nil, err
	}
	for _, l := range inherited {
		if l.Depth == lock.DepthInfinity {
			locks = append(locks, l)
		}
	}

	direct, err := decodeAll(database.Scan(uri, db.ScanExact, t))
	if err != nil {
		return nil, err
	}
	locks = append(locks, direct...)

	if returnChildLocks {
		children, err := decodeAll(database.Scan(uri, db.ScanDescendants, t))
		if err != nil {
			return nil, err
		}
		locks = append(locks, children...)
	}

	// expiry is evaluated on the decoded lock as well, records without a
	// stored expiry (infinite timeout) never expire
	live := locks[:0]
	for _, l := range locks {
		if !l.Expired(now) {
			live = append(live, l)
		}
	}
	return live, nil
}

func decodeAll(recs []db.Record) ([]*lock.LockInfo, error) {
	res := make([]*lock.LockInfo, 0, len(recs))
	for _, r := range recs {
		l, err := lock.Decode(r.Value)
		if err != nil {
			return nil, NewError(RetCInternalError, fmt.Sprintf("corrupt lock record at %s: %v", r.Path, err))
		}
		res = append(res, l)
	}
	return res, nil
}
