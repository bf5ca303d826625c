// Package dstore implements a distributed, fault-tolerant lock store using
// the Dragonboat RAFT consensus library. It provides a strongly consistent
// implementation of store.ILockStore that operates across multiple nodes.
//
// Architecture:
//
//   - Store Client (store.go): implements store.ILockStore. Lock and Unlock are
//     serialized into Commands and proposed via SyncPropose; GetLocks and
//     GetDBInfo are Queries answered by the local replica.
//
//   - State Machine (statemachine.go): a Dragonboat IConcurrentStateMachine that
//     holds one replica of the lock table (a db.KVDB). The scope check of a Lock
//     command runs inside the state machine as a conditional Put, so two nodes
//     that propose conflicting exclusive locks at the same time are ordered by the
//     raft log and exactly one of them wins.
//
//   - Protocol (internal): binary Command encoding and Query structures.
//
// Time:
//
//	The proposer stamps each command with its wall clock (epoch seconds). The
//	state machine uses only this time, never its own clock, so that all replicas
//	compute identical expiry times and identical lock tables. Queries carry the
//	reader's clock, which is used to hide expired locks.
//
// Read Operations:
//
//   - GetLocks uses SyncRead (linearizable): the replica has applied all committed
//     entries before the query runs.
//   - GetDBInfo uses StaleRead, which may return slightly outdated information.
//
// Error Handling and Retries:
//
//	When Dragonboat returns ErrSystemBusy the operation is retried after a short
//	delay, up to five attempts. Every attempt is bounded by the configured timeout.
//	Refused locks (RetCConflict) and unknown tokens (RetCNotFound) are reported as
//	false results, all other non-success codes as *store.Error.
//
// Snapshotting and Recovery:
//
//	SaveSnapshot writes a fuzzy snapshot through db.KVDB.Save; RecoverFromSnapshot
//	restores it with db.KVDB.Load. Afterwards the replica catches up from the raft log.
//
// Example:
//
//	nh, err := dragonboat.NewNodeHost(nodeHostConfig)
//	if err != nil { ... }
//
//	dbFactory := func() db.KVDB { return maple.NewMapleDB(nil) }
//	err = nh.StartConcurrentReplica(members, false, dstore.CreateStateMachineFactory(dbFactory), shardConfig)
//	if err != nil { ... }
//
//	locks := dstore.NewDistributedStore(nh, shardID, 5*time.Second, nil)
package dstore
