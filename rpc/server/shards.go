package server

import (
	"fmt"
	"time"

	"github.com/ValentinKolb/davlock/lib/db"
	"github.com/ValentinKolb/davlock/lib/db/engines/maple"
	"github.com/ValentinKolb/davlock/lib/store"
	"github.com/ValentinKolb/davlock/lib/store/dstore"
	"github.com/ValentinKolb/davlock/lib/store/lstore"
	"github.com/ValentinKolb/davlock/rpc/common"
	"github.com/lni/dragonboat/v4"
	"github.com/puzpuzpuz/xsync/v3"
)

// Shards holds the lock stores hosted by one process. Raft replicated shards
// share a single dragonboat NodeHost.
type Shards struct {
	nodeHost *dragonboat.NodeHost
	stores   *xsync.MapOf[uint64, store.ILockStore]
	closers  []func() error
}

// NewShards returns an empty registry. Stores are added with Add.
func NewShards() *Shards {
	return &Shards{stores: xsync.NewMapOf[uint64, store.ILockStore]()}
}

// OpenShards creates the lock store of every shard in config.
func OpenShards(config common.ServerConfig) (*Shards, error) {
	s := NewShards()
	opts := &store.Options{DefaultTimeout: config.DefaultTimeout}

	var err error
	if config.HasRaftShard() {
		// Only create the NodeHost if we have replicated shards
		s.nodeHost, err = dragonboat.NewNodeHost(config.ToNodeHostConfig())
		if err != nil {
			return nil, fmt.Errorf("failed to create node host: %w", err)
		}
	}

	timeout := time.Duration(config.TimeoutSecond) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	for _, shardConfig := range config.Shards {
		if _, exists := s.Get(shardConfig.ShardID); exists {
			s.Close()
			return nil, fmt.Errorf("shard %d is configured twice", shardConfig.ShardID)
		}

		switch shardConfig.Type {
		case common.ShardTypeLocalLockStore:
			var engine db.KVDB
			st := lstore.NewLocalStore(func() db.KVDB {
				engine = maple.NewMapleDB(nil)
				return engine
			}, opts)
			s.closers = append(s.closers, engine.Close)
			s.stores.Store(shardConfig.ShardID, st)
			log.Infof("created local lock store for shard %d", shardConfig.ShardID)

		case common.ShardTypeRaftLockStore:
			factory := dstore.CreateStateMachineFactory(func() db.KVDB { return maple.NewMapleDB(nil) })
			if err := s.nodeHost.StartConcurrentReplica(config.ClusterMembers, false, factory, config.ToDragonboatConfig(shardConfig.ShardID)); err != nil {
				s.Close()
				return nil, fmt.Errorf("failed to start shard %d: %w", shardConfig.ShardID, err)
			}
			s.stores.Store(shardConfig.ShardID, dstore.NewDistributedStore(s.nodeHost, shardConfig.ShardID, timeout, opts))
			log.Infof("started raft lock store for shard %d", shardConfig.ShardID)

		default:
			s.Close()
			return nil, fmt.Errorf("invalid shard type: %s", shardConfig.Type)
		}
	}

	return s, nil
}

// Add registers st under shardID. It returns false if the id is taken.
func (s *Shards) Add(shardID uint64, st store.ILockStore) bool {
	_, loaded := s.stores.LoadOrStore(shardID, st)
	return !loaded
}

// Get returns the lock store of a shard.
func (s *Shards) Get(shardID uint64) (store.ILockStore, bool) {
	return s.stores.Load(shardID)
}

// Close stops all shards.
func (s *Shards) Close() {
	if s.nodeHost != nil {
		s.nodeHost.Close()
		s.nodeHost = nil
	}
	for _, c := range s.closers {
		if err := c(); err != nil {
			log.Warningf("failed to close lock table: %v", err)
		}
	}
	s.closers = nil
}
