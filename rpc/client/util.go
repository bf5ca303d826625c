package client

import (
	"fmt"

	"github.com/ValentinKolb/davlock/lib/store"
	"github.com/ValentinKolb/davlock/rpc/common"
	"github.com/ValentinKolb/davlock/rpc/serializer"
	"github.com/ValentinKolb/davlock/rpc/transport"
)

// rpcClientAdapter stores everything an rpc client needs to reach its shard
type rpcClientAdapter struct {
	shardId    uint64
	config     common.ClientConfig
	transport  transport.IRPCClientTransport
	serializer serializer.IRPCSerializer
}

// invoke sends req to the shard and returns the response.
// Error responses are converted into *store.Error values and a response of
// another type than the request is rejected.
func (a *rpcClientAdapter) invoke(req *common.Message) (*common.Message, error) {
	reqBytes, err := a.serializer.Serialize(*req)
	if err != nil {
		return nil, err
	}

	respBytes, err := a.transport.Send(a.shardId, reqBytes)
	if err != nil {
		return nil, store.NewError(store.RetCInternalError, fmt.Sprintf("rpc %s failed: %v", req.MsgType, err))
	}

	resp := &common.Message{}
	if err := a.serializer.Deserialize(respBytes, resp); err != nil {
		return nil, store.NewError(store.RetCInternalError, fmt.Sprintf("invalid rpc response: %v", err))
	}

	if err := resp.StoreError(); err != nil {
		return nil, err
	}

	if resp.MsgType != req.MsgType {
		return nil, store.NewError(store.RetCInternalError,
			fmt.Sprintf("unexpected message type: %s, expected %s", resp.MsgType, req.MsgType))
	}

	return resp, nil
}
