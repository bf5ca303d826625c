package transport

import (
	"context"

	"github.com/ValentinKolb/davlock/rpc/common"
)

// --------------------------------------------------------------------------
// Server Transport
// --------------------------------------------------------------------------

// ServerHandleFunc handles one serialized request addressed to a shard and
// returns the serialized response.
type ServerHandleFunc func(shardId uint64, req []byte) (resp []byte)

// IRPCServerTransport receives requests and routes them to the registered handler.
type IRPCServerTransport interface {
	// RegisterHandler sets the handler that is called for every request.
	RegisterHandler(handler ServerHandleFunc)
	// Listen serves config.RPCEndpoint until Shutdown is called.
	Listen(config common.ServerConfig) error
	// Shutdown stops a running Listen call.
	Shutdown(ctx context.Context) error
}

// --------------------------------------------------------------------------
// Client Transport
// --------------------------------------------------------------------------

// IRPCClientTransport sends serialized requests to a server.
type IRPCClientTransport interface {
	// Connect initializes the transport with the given configuration
	Connect(config common.ClientConfig) error
	// Send sends a request to the server and returns the response
	Send(shardId uint64, req []byte) (resp []byte, err error)
	// Close releases all connections
	Close() error
}
