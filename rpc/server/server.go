package server

import (
	"context"
	"fmt"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/ValentinKolb/davlock/rpc/common"
	"github.com/ValentinKolb/davlock/rpc/serializer"
	"github.com/ValentinKolb/davlock/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
	gometrics "github.com/rcrowley/go-metrics"
)

var log = logger.GetLogger("rpc")

// statsInterval is the period in which the request timers are logged at debug level.
const statsInterval = time.Minute

// NewRPCServer creates a server that answers lock store requests for the given shards.
//
// Usage:
//
//	shards, err := server.OpenShards(config)
//	...
//	s := server.NewRPCServer(config, shards, http.NewHttpServerTransport(), serializer.NewBinarySerializer())
//	if err := s.Serve(); err != nil {
//		panic(err)
//	}
func NewRPCServer(
	config common.ServerConfig,
	shards *Shards,
	transport transport.IRPCServerTransport,
	serializer serializer.IRPCSerializer,
) *RPCServer {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	s := &RPCServer{
		config:     config,
		shards:     shards,
		transport:  transport,
		serializer: serializer,
		adapter:    NewLockStoreServerAdapter(),
		registry:   gometrics.NewRegistry(),
	}
	transport.RegisterHandler(s.Handle)
	return s
}

// RPCServer routes requests from a transport to the lock store shards.
type RPCServer struct {
	config     common.ServerConfig
	shards     *Shards
	transport  transport.IRPCServerTransport
	serializer serializer.IRPCSerializer
	adapter    IRPCServerAdapter
	registry   gometrics.Registry
}

// Handle decodes a request, executes it on the shard and returns the encoded response.
func (s *RPCServer) Handle(shardId uint64, req []byte) []byte {
	start := time.Now()
	var msg common.Message
	var respMsg *common.Message

	if st, ok := s.shards.Get(shardId); !ok {
		respMsg = common.NewErrorResponse(fmt.Sprintf("shard %d not found", shardId))
	} else if err := s.serializer.Deserialize(req, &msg); err != nil {
		respMsg = common.NewErrorResponse(fmt.Sprintf("failed to deserialize request: %s", err))
	} else {
		respMsg = s.adapter.Handle(&msg, st)
	}

	val, err := s.serializer.Serialize(*respMsg)
	if err != nil {
		log.Errorf("failed to serialize response: %v", err)
		val, _ = s.serializer.Serialize(*common.NewErrorResponse(fmt.Sprintf("failed to serialize response: %s", err)))
	}

	gometrics.GetOrRegisterTimer("rpc."+msg.MsgType.String(), s.registry).UpdateSince(start)
	if respMsg.Err != "" {
		gometrics.GetOrRegisterCounter("rpc.errors", s.registry).Inc(1)
	}
	return val
}

// Registry returns the request timers and counters of the server.
func (s *RPCServer) Registry() gometrics.Registry {
	return s.registry
}

// Serve listens on the configured rpc endpoint until Shutdown is called.
func (s *RPCServer) Serve() error {
	log.Infof("Created RPC Server")
	if s.config.LogLevel == "debug" {
		go gometrics.LogScaled(s.registry, statsInterval, time.Millisecond, statsLogger{})
	}
	return s.transport.Listen(s.config)
}

// Shutdown stops the transport. The shards stay open.
func (s *RPCServer) Shutdown(ctx context.Context) error {
	return s.transport.Shutdown(ctx)
}

// statsLogger writes the periodic metric dumps to the rpc logger
type statsLogger struct{}

func (statsLogger) Printf(format string, v ...interface{}) {
	log.Debugf(format, v...)
}
