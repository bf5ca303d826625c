package server

import (
	"encoding/json"
	"fmt"

	"github.com/ValentinKolb/davlock/lib/lock"
	"github.com/ValentinKolb/davlock/lib/store"
	"github.com/ValentinKolb/davlock/rpc/common"
)

// NewLockStoreServerAdapter creates the adapter for store.ILockStore shards.
func NewLockStoreServerAdapter() IRPCServerAdapter {
	return &lockStoreServerAdapter{}
}

type lockStoreServerAdapter struct{}

func (adapter *lockStoreServerAdapter) Handle(req *common.Message, s store.ILockStore) *common.Message {
	if s == nil {
		return common.NewErrorResponse("handler: store is nil")
	}

	switch req.MsgType {
	case common.MsgTLCKGetLocks:
		locks, err := s.GetLocks(req.Path, req.Children)
		return common.NewGetLocksResponse(locks, err)

	case common.MsgTLCKLock:
		info, err := lock.Decode(req.Lock)
		if err != nil {
			return common.NewErrorResponse(fmt.Sprintf("invalid lock record: %v", err))
		}
		ok, err := s.Lock(req.Path, info)
		return common.NewLockResponse(ok, info, err)

	case common.MsgTLCKUnlock:
		info, err := lock.Decode(req.Lock)
		if err != nil {
			return common.NewErrorResponse(fmt.Sprintf("invalid lock record: %v", err))
		}
		ok, err := s.Unlock(req.Path, info)
		return common.NewUnlockResponse(ok, err)

	case common.MsgTLCKDBInfo:
		info, err := s.GetDBInfo()
		if err != nil {
			return common.NewDBInfoResponse(nil, err)
		}
		meta, err := json.Marshal(info)
		return common.NewDBInfoResponse(meta, err)

	default:
		return common.NewErrorResponse(fmt.Sprintf("RPC LockStoreAdapter - Unsupported message type: %s", req.MsgType))
	}
}
