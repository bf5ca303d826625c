package client

import (
	"encoding/json"
	"fmt"

	"github.com/ValentinKolb/davlock/lib/db"
	"github.com/ValentinKolb/davlock/lib/lock"
	"github.com/ValentinKolb/davlock/lib/store"
	"github.com/ValentinKolb/davlock/rpc/common"
	"github.com/ValentinKolb/davlock/rpc/serializer"
	"github.com/ValentinKolb/davlock/rpc/transport"
)

// NewRPCLockStore connects the transport and returns a lock store that
// forwards every call to the shard on the server.
func NewRPCLockStore(
	shardId uint64,
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) (store.ILockStore, error) {
	if err := transport.Connect(config); err != nil {
		return nil, err
	}

	return &rpcLockStore{
		rpcClientAdapter{
			shardId:    shardId,
			config:     config,
			transport:  transport,
			serializer: serializer,
		},
	}, nil
}

type rpcLockStore struct {
	rpcClientAdapter
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store.ILockStore)
// --------------------------------------------------------------------------

func (c *rpcLockStore) GetLocks(uri string, returnChildLocks bool) ([]*lock.LockInfo, error) {
	resp, err := c.invoke(common.NewGetLocksRequest(uri, returnChildLocks))
	if err != nil {
		return nil, err
	}
	locks, err := resp.DecodeLocks()
	if err != nil {
		return nil, store.NewError(store.RetCInternalError, err.Error())
	}
	return locks, nil
}

func (c *rpcLockStore) Lock(uri string, info *lock.LockInfo) (bool, error) {
	resp, err := c.invoke(common.NewLockRequest(uri, info))
	if err != nil {
		return false, err
	}
	// the server stamps Created, URI and the default timeout
	if resp.Ok && resp.Lock != nil {
		if err := info.Deserialize(resp.Lock); err != nil {
			return false, store.NewError(store.RetCInternalError, err.Error())
		}
	}
	return resp.Ok, nil
}

func (c *rpcLockStore) Unlock(uri string, info *lock.LockInfo) (bool, error) {
	resp, err := c.invoke(common.NewUnlockRequest(uri, info))
	if err != nil {
		return false, err
	}
	return resp.Ok, nil
}

func (c *rpcLockStore) GetDBInfo() (db.DatabaseInfo, error) {
	resp, err := c.invoke(common.NewDBInfoRequest())
	if err != nil {
		return db.DatabaseInfo{}, err
	}
	var info db.DatabaseInfo
	if err := json.Unmarshal(resp.Meta, &info); err != nil {
		return db.DatabaseInfo{}, store.NewError(store.RetCInternalError, fmt.Sprintf("invalid db info: %v", err))
	}
	return info, nil
}
