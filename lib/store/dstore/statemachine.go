package dstore

import (
	"fmt"
	"io"
	"time"

	"github.com/ValentinKolb/davlock/lib/db"
	"github.com/ValentinKolb/davlock/lib/lock"
	"github.com/ValentinKolb/davlock/lib/store"
	"github.com/ValentinKolb/davlock/lib/store/dstore/internal"
	sm "github.com/lni/dragonboat/v4/statemachine"
)

// --------------------------------------------------------------------------
// State Machine Implementation
// --------------------------------------------------------------------------

// LockStateMachine is a state machine implementation for Dragonboat RAFT
// holding one replica of the lock table.
type LockStateMachine struct {
	replicaID uint64
	shardID   uint64
	database  db.KVDB // the actual lock table
}

// CreateStateMachineFactory returns a function that can be used by dragonboat to create a new state machine for a node host
// The factory pattern is used to enable the caller to pass an interchangeable dbFactory
func CreateStateMachineFactory(dbFactory store.DBFactory) func(shardID uint64, replicaID uint64) sm.IConcurrentStateMachine {
	return func(shardID uint64, replicaID uint64) sm.IConcurrentStateMachine {
		return &LockStateMachine{
			replicaID: replicaID,
			shardID:   shardID,
			database:  dbFactory(),
		}
	}
}

// Lookup handles read-only queries.
func (fsm *LockStateMachine) Lookup(itf interface{}) (interface{}, error) {
	q, ok := itf.(internal.Query)
	if !ok {
		return nil, store.NewError(store.RetCInternalError, fmt.Sprintf("invalid Query type: %T", itf))
	}

	switch q.Type {
	case internal.QueryTGetLocks:
		return store.ReadLocks(fsm.database, q.Key, q.Children, q.Time)
	case internal.QueryTGetDBInfo:
		return fsm.database.GetInfo(), nil
	default:
		return nil, store.NewError(store.RetCInvalidOperation, fmt.Sprintf("unknown Query operation: %d", q.Type))
	}
}

// Update applies lock and unlock commands to the lock table.
// All timestamps come from the command, never from the local clock, so every replica reaches the same state.
func (fsm *LockStateMachine) Update(entries []sm.Entry) ([]sm.Entry, error) {
	if len(entries) == 0 {
		return entries, nil
	}

	start := time.Now()

	for idx, e := range entries {
		entries[idx].Result = fsm.apply(e.Cmd)
	}

	if elapsed := time.Since(start); elapsed > time.Millisecond {
		log.Infof("State machine took long to update. Batch updated %d entries, took %.2fms", len(entries), float64(elapsed)/float64(time.Millisecond))
	}
	return entries, nil
}

// apply executes a single serialized command
func (fsm *LockStateMachine) apply(data []byte) sm.Result {
	if len(data) == 0 {
		return sm.Result{Value: uint64(store.RetCInvalidOperation), Data: []byte("empty command ignored")}
	}

	cmd := internal.Command{}
	if err := cmd.Deserialize(data); err != nil {
		return sm.Result{Value: uint64(store.RetCInternalError), Data: []byte(fmt.Sprintf("failed to deserialize command: %v", err))}
	}

	feat, err := cmd.Type.ToDBFeature()
	if err != nil {
		return sm.Result{Value: uint64(store.RetCInvalidOperation), Data: []byte(fmt.Sprintf("unknown Command operation: %s", cmd.Type))}
	}
	if !fsm.database.SupportsFeature(feat) {
		return sm.Result{Value: uint64(store.RetCUnsupportedOperation), Data: []byte(fmt.Sprintf("%s operation is not supported", cmd.Type))}
	}

	switch cmd.Type {
	case internal.CommandTLock:
		info, err := lock.Decode(cmd.Value)
		if err != nil {
			return sm.Result{Value: uint64(store.RetCInvalidOperation), Data: []byte(err.Error())}
		}
		rec := db.Record{Path: cmd.Key, Token: info.Token, Value: cmd.Value, ExpireAt: uint64(info.ExpiresAt())}
		if !fsm.database.Put(rec, cmd.Time, store.ConflictCondition(info)) {
			return sm.Result{Value: uint64(store.RetCConflict), Data: []byte(fmt.Sprintf("conflicting lock on %s", cmd.Key))}
		}
		return sm.Result{Value: uint64(store.RetCSuccess), Data: []byte(fmt.Sprintf("lock: path=%s", cmd.Key))}

	case internal.CommandTUnlock:
		if !fsm.database.Delete(cmd.Key, string(cmd.Value), cmd.Time) {
			return sm.Result{Value: uint64(store.RetCNotFound), Data: []byte(fmt.Sprintf("no lock %s on %s", cmd.Value, cmd.Key))}
		}
		return sm.Result{Value: uint64(store.RetCSuccess), Data: []byte(fmt.Sprintf("unlock: path=%s", cmd.Key))}

	default:
		return sm.Result{Value: uint64(store.RetCInvalidOperation), Data: []byte(fmt.Sprintf("unknown Command operation: %s", cmd.Type))}
	}
}

// PrepareSnapshot is not used. We don't need to prepare anything since we use fuzzy snapshotting
func (fsm *LockStateMachine) PrepareSnapshot() (interface{}, error) {
	return nil, nil
}

// SaveSnapshot saves a fuzzy db snapshot to the writer
func (fsm *LockStateMachine) SaveSnapshot(_ interface{}, writer io.Writer, _ sm.ISnapshotFileCollection, _ <-chan struct{}) error {
	if !fsm.database.SupportsFeature(db.FeatureSave) {
		return fmt.Errorf("the used KVDB implementation does not support Save() operations")
	}
	return fsm.database.Save(writer)
}

// RecoverFromSnapshot restores the lock table from a snapshot.
func (fsm *LockStateMachine) RecoverFromSnapshot(r io.Reader, _ []sm.SnapshotFile, _ <-chan struct{}) error {
	if !fsm.database.SupportsFeature(db.FeatureLoad) {
		return fmt.Errorf("the used KVDB implementation does not support Load() operations")
	}
	return fsm.database.Load(r)
}

// Close performs any necessary cleanup.
func (fsm *LockStateMachine) Close() error {
	return fsm.database.Close()
}
