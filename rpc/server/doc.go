// Package server answers lock store requests received by an rpc transport.
//
// Shards is the registry of the lock stores hosted by the process. OpenShards
// creates them from a common.ServerConfig: "lstore" shards keep their lock table
// in a local maple database, "dstore" shards replicate it with raft through a
// shared dragonboat NodeHost. The WebDAV handler and the rpc server of a
// process use the same registry.
//
// RPCServer decodes a request, routes it by shard id to the lockStoreServerAdapter
// and encodes the response. Store errors travel back with their return code.
// Every request is timed in a go-metrics registry which is logged periodically
// at debug level.
//
// Usage:
//
//	shards, err := server.OpenShards(config)
//	if err != nil {
//		return err
//	}
//	defer shards.Close()
//
//	s := server.NewRPCServer(config, shards, http.NewHttpServerTransport(), serializer.NewBinarySerializer())
//	go s.Serve()
//	...
//	s.Shutdown(ctx)
package server
