package dstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ValentinKolb/davlock/lib/db"
	"github.com/ValentinKolb/davlock/lib/lock"
	"github.com/ValentinKolb/davlock/lib/store"
	"github.com/ValentinKolb/davlock/lib/store/dstore/internal"
	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/client"
	"github.com/lni/dragonboat/v4/logger"
)

var (
	retries = 5
	log     = logger.GetLogger("store")
)

// storeImpl is the raft backed implementation of store.ILockStore.
// It encapsulates a Dragonboat NodeHost which is used to communicate with the state machine.
type storeImpl struct {
	nh      *dragonboat.NodeHost
	shardID uint64
	cs      *client.Session
	timeout time.Duration
	opts    *store.Options
}

// NewDistributedStore creates a new distributed lock store which uses raft consensus to ensure strict linearizability
// across multiple nodes.
func NewDistributedStore(nh *dragonboat.NodeHost, shardID uint64, timeout time.Duration, opts *store.Options) store.ILockStore {
	return &storeImpl{
		nh:      nh,
		shardID: shardID,
		cs:      nh.GetNoOPSession(shardID),
		timeout: timeout,
		opts:    opts.Normalize(),
	}
}

// --------------------------------------------------------------------------
// Internal write and read operations (used by interface methods)
// --------------------------------------------------------------------------

// write serializes a Command and sends it via SyncPropose.
// It returns the return code of the state machine, or an error if the proposal failed.
func (s *storeImpl) write(cmd internal.Command) (store.RetCode, error) {
	for i := 0; i < retries; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)

		res, err := s.nh.SyncPropose(ctx, s.cs, cmd.Serialize())
		cancel()

		// Check for system busy errors
		if errors.Is(err, dragonboat.ErrSystemBusy) {
			log.Infof("SyncPropose: System busy, retrying (%d/%d)...", i+1, retries)
			time.Sleep(s.timeout / 10)
			continue
		}

		if err != nil {
			return store.RetCInternalError, store.NewError(store.RetCInternalError, err.Error())
		}
		return store.RetCode(res.Value), nil
	}
	return store.RetCInternalError, store.NewError(store.RetCInternalError, "timeout")
}

// read is a generic helper function that queries the state machine
// and attempts to convert the response into the expected type R.
//
// This function uses the SyncRead function (dragonboat) by default to query the state machine.
// If linearizability is not required, the stale parameter can be set to true to use the faster StaleRead function.
//
// If the read operation fails due to a system busy error, the function retries up to 5 times.
func read[R any](r *storeImpl, q internal.Query, stale bool) (R, error) {
	var zero R
	for i := 0; i < retries; i++ {

		var res interface{}
		var err error

		if stale {
			res, err = r.nh.StaleRead(r.shardID, q)
		} else {
			ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
			res, err = r.nh.SyncRead(ctx, r.shardID, q)
			cancel()
		}

		if errors.Is(err, dragonboat.ErrSystemBusy) {
			log.Infof("SyncRead: System busy, retrying (%d/%d)...", i+1, retries)
			time.Sleep(r.timeout / 10)
			continue
		}

		if err != nil {
			var se *store.Error
			if errors.As(err, &se) {
				return zero, se
			}
			return zero, store.NewError(store.RetCInternalError, err.Error())
		}

		casted, ok := res.(R)
		if !ok {
			return zero, store.NewError(store.RetCInternalError,
				fmt.Sprintf("unexpected type: received %T, expected %T", res, zero))
		}
		return casted, nil
	}
	return zero, store.NewError(store.RetCInternalError, "timeout")
}

// resultToBool maps the return code of a lock or unlock command to the interface result
func resultToBool(code store.RetCode, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	switch code {
	case store.RetCSuccess:
		return true, nil
	case store.RetCConflict, store.RetCNotFound:
		return false, nil
	default:
		return false, store.NewError(code, "command rejected by state machine")
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docs see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) GetLocks(uri string, returnChildLocks bool) ([]*lock.LockInfo, error) {
	return read[[]*lock.LockInfo](s, internal.Query{
		Type:     internal.QueryTGetLocks,
		Key:      uri,
		Children: returnChildLocks,
		Time:     s.opts.Now().Unix(),
	}, false)
}

func (s *storeImpl) Lock(uri string, info *lock.LockInfo) (bool, error) {
	if info == nil || info.Token == "" {
		return false, store.NewError(store.RetCInvalidOperation, "lock without token")
	}
	now := s.opts.Now().Unix()
	rec := store.PrepareLock(uri, info, now, s.opts.DefaultTimeout)
	return resultToBool(s.write(internal.Command{
		Type:  internal.CommandTLock,
		Time:  uint64(now),
		Key:   uri,
		Value: rec.Value,
	}))
}

func (s *storeImpl) Unlock(uri string, info *lock.LockInfo) (bool, error) {
	if info == nil || info.Token == "" {
		return false, store.NewError(store.RetCInvalidOperation, "lock without token")
	}
	return resultToBool(s.write(internal.Command{
		Type:  internal.CommandTUnlock,
		Time:  uint64(s.opts.Now().Unix()),
		Key:   uri,
		Value: []byte(info.Token),
	}))
}

func (s *storeImpl) GetDBInfo() (db.DatabaseInfo, error) {
	return read[db.DatabaseInfo](
		s,
		internal.Query{
			Type: internal.QueryTGetDBInfo,
		},
		true, // Note: allow for stale reads
	)
}
