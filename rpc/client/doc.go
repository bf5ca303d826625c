// Package client implements store.ILockStore on top of the rpc layer, so a
// WebDAV front end can use the lock table of another davlock process.
//
// Usage Example:
//
//	config := common.ClientConfig{
//		Endpoints:     []string{"http://lockservice:9090"},
//		TimeoutSecond: 5,
//		RetryCount:    3,
//	}
//	locks, err := client.NewRPCLockStore(1, config, http.NewHttpClientTransport(), serializer.NewBinarySerializer())
//	if err != nil {
//		return err
//	}
//	mgr := lockmgr.NewLockManager(locks, tree.NewMemTree(), nil, lockmgr.Config{})
//
// Errors of the remote store arrive as *store.Error with their original return
// code. Transport and decoding problems are reported as RetCInternalError.
// The client is safe for concurrent use.
package client
