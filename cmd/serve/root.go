package serve

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	cmdUtil "github.com/ValentinKolb/davlock/cmd/util"
	"github.com/ValentinKolb/davlock/lib/db/util"
	"github.com/ValentinKolb/davlock/lib/lockmgr"
	"github.com/ValentinKolb/davlock/lib/policy"
	"github.com/ValentinKolb/davlock/lib/store"
	"github.com/ValentinKolb/davlock/lib/tree"
	"github.com/ValentinKolb/davlock/rpc/client"
	"github.com/ValentinKolb/davlock/rpc/common"
	"github.com/ValentinKolb/davlock/rpc/serializer"
	"github.com/ValentinKolb/davlock/rpc/server"
	"github.com/ValentinKolb/davlock/rpc/transport/http"
	"github.com/ValentinKolb/davlock/webdav"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var log = logger.GetLogger("cli")

// shutdownTimeout bounds the graceful shutdown of the servers
const shutdownTimeout = 10 * time.Second

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:   "serve",
		Short: "Start the davlock WebDAV server",
		Long: `Start the davlock WebDAV server with the specified configuration. The configuration can be set via command line flags or environment variables. ` +
			`The format of the environment variables is DAVLOCK_<flag> (e.g. DAVLOCK_BASE_URI=/dav/)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	cobra.OnInitialize(cmdUtil.InitConfig)

	// WebDAV
	key := "endpoint"
	ServeCmd.PersistentFlags().String(key, "0.0.0.0:8080", cmdUtil.WrapString("The address on which the WebDAV server will listen"))

	key = "base-uri"
	ServeCmd.PersistentFlags().String(key, "/", cmdUtil.WrapString("URL path prefix under which the resource tree is served"))

	key = "root-dir"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Directory to serve. If empty an in-memory tree is used"))

	key = "default-timeout"
	ServeCmd.PersistentFlags().Int64(key, store.DefaultLockTimeout, cmdUtil.WrapString("Lock timeout in seconds for LOCK requests without Timeout header"))

	key = "policy-file"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Rego policy consulted before every lock, unlock and write. If empty everything is allowed"))

	key = "policy-query"
	ServeCmd.PersistentFlags().String(key, policy.DefaultQuery, cmdUtil.WrapString("Query evaluated against the policy"))

	key = "metrics-path"
	ServeCmd.PersistentFlags().String(key, "/metrics", cmdUtil.WrapString("Path of the prometheus metrics endpoint. Empty disables it"))

	key = "rate-limit"
	ServeCmd.PersistentFlags().Float64(key, 0, cmdUtil.WrapString("Maximum number of WebDAV requests per second (0 disables the limit)"))

	key = "rate-burst"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("Burst size of the rate limiter"))

	key = "max-connections"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("Maximum number of concurrent WebDAV connections (0 means unlimited)"))

	// lock store
	key = "shards"
	ServeCmd.PersistentFlags().String(key, "1=lstore", cmdUtil.WrapString("Comma-separated list of lock store shards to host. Format: ID=TYPE where TYPE is one of: lstore, dstore"))

	key = "store-shard"
	ServeCmd.PersistentFlags().Uint64(key, 1, cmdUtil.WrapString("Shard that holds the locks of the WebDAV server"))

	key = "remote-stores"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Comma-separated rpc endpoints of a davlock lock service. If set, locks are kept there instead of in a local shard"))

	key = "rpc-endpoint"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("The address on which the rpc lock service will listen. Empty disables it"))

	// raft
	key = "rtt-millisecond"
	ServeCmd.PersistentFlags().Int(key, 100, cmdUtil.WrapString("(dstore) RTTMillisecond defines the average Round Trip Time (RTT) in milliseconds between two NodeHost instances. \nOther raft configuration parameters (ElectionRTT=value*10, HeartbeatRTT=value) are derived from this value"))

	key = "snapshot-entries"
	ServeCmd.PersistentFlags().Int(key, 10, cmdUtil.WrapString("(dstore) SnapshotEntries defines how often the lock table should be snapshotted automatically, in applied Raft log entries. 0 disables automatic snapshots (not recommended)"))

	key = "compaction-overhead"
	ServeCmd.PersistentFlags().Int(key, 5, cmdUtil.WrapString("(dstore) CompactionOverhead defines the number of log entries to keep after a snapshot. Recommended value is about 1/2 of SnapshotEntries"))

	key = "data-dir"
	ServeCmd.PersistentFlags().String(key, "data", cmdUtil.WrapString("(dstore) DataDir is the directory used for the raft log and snapshots"))

	key = "replica-id"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("(dstore) ReplicaID is the unique identifier for this NodeHost instance (e.g. 'node-1')"))

	key = "cluster-members"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("(dstore) ClusterMembers is a comma-separated list of NodeHost addresses in the format 'node-1=localhost:63001,node-2=localhost:63002,...'"))

	key = "timeout"
	ServeCmd.PersistentFlags().Int64(key, 5, cmdUtil.WrapString("Timeout in seconds of raft proposals and remote lock store calls"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	if err := cmdUtil.BindCommandFlags(cmd); err != nil {
		return err
	}

	shards, err := parseShards(viper.GetString("shards"))
	if err != nil {
		return err
	}
	serveCmdConfig.Shards = shards

	serveCmdConfig.Endpoint = viper.GetString("endpoint")
	serveCmdConfig.BaseURI = viper.GetString("base-uri")
	serveCmdConfig.RootDir = viper.GetString("root-dir")
	serveCmdConfig.DefaultTimeout = viper.GetInt64("default-timeout")
	serveCmdConfig.PolicyFile = viper.GetString("policy-file")
	serveCmdConfig.MetricsPath = viper.GetString("metrics-path")
	serveCmdConfig.RateLimit = viper.GetFloat64("rate-limit")
	serveCmdConfig.RateBurst = viper.GetInt("rate-burst")
	serveCmdConfig.MaxConnections = viper.GetInt("max-connections")
	serveCmdConfig.StoreShard = viper.GetUint64("store-shard")
	serveCmdConfig.RemoteStores = cmdUtil.SplitList(viper.GetString("remote-stores"))
	serveCmdConfig.RPCEndpoint = viper.GetString("rpc-endpoint")
	serveCmdConfig.RTTMillisecond = viper.GetUint64("rtt-millisecond")
	serveCmdConfig.SnapshotEntries = viper.GetUint64("snapshot-entries")
	serveCmdConfig.CompactionOverhead = viper.GetUint64("compaction-overhead")
	serveCmdConfig.DataDir = viper.GetString("data-dir")
	serveCmdConfig.TimeoutSecond = viper.GetInt64("timeout")
	serveCmdConfig.LogLevel = viper.GetString("log-level")

	if serveCmdConfig.DefaultTimeout <= 0 {
		return fmt.Errorf("default-timeout must be positive")
	}

	// parse replica id
	if id := viper.GetString("replica-id"); id != "" {
		serveCmdConfig.ReplicaID = util.ReplicaID(id)
	} else if serveCmdConfig.HasRaftShard() {
		return fmt.Errorf("ReplicaId is required for dstore shards")
	}

	// parse cluster members
	if clusterMembers := viper.GetString("cluster-members"); clusterMembers != "" {
		if serveCmdConfig.ClusterMembers, err = parseClusterMembers(clusterMembers); err != nil {
			return err
		}
	} else if serveCmdConfig.HasRaftShard() {
		return fmt.Errorf("ClusterMembers is required for dstore shards")
	}

	if _, ok := serveCmdConfig.ClusterMembers[serveCmdConfig.ReplicaID]; !ok && serveCmdConfig.HasRaftShard() {
		return fmt.Errorf("no address found for replica ID %d in cluster members", serveCmdConfig.ReplicaID)
	}

	if len(serveCmdConfig.RemoteStores) == 0 && !hasShard(serveCmdConfig.Shards, serveCmdConfig.StoreShard) {
		return fmt.Errorf("store-shard %d is not one of the hosted shards", serveCmdConfig.StoreShard)
	}
	return nil
}

// parseShards parses the ID=TYPE list of the shards flag
func parseShards(s string) ([]common.ServerShard, error) {
	var shards []common.ServerShard
	for _, shardConfig := range cmdUtil.SplitList(s) {
		parts := strings.Split(shardConfig, "=")
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid shard format: %s (expected ID=TYPE)", shardConfig)
		}

		shardID, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid shard ID %s: %v", parts[0], err)
		}

		shardType, err := common.ParseShardType(parts[1])
		if err != nil {
			return nil, err
		}

		shards = append(shards, common.ServerShard{ShardID: shardID, Type: shardType})
	}
	return shards, nil
}

// parseClusterMembers parses the NAME=ADDRESS list of the cluster-members flag.
// Names are hashed into replica ids.
func parseClusterMembers(s string) (map[uint64]string, error) {
	members := make(map[uint64]string)
	for _, member := range cmdUtil.SplitList(s) {
		parts := strings.Split(member, "=")
		if len(parts) != 2 || parts[1] == "" {
			return nil, fmt.Errorf("invalid cluster member format: %s (expected ID=address)", member)
		}
		members[util.ReplicaID(strings.TrimSpace(parts[0]))] = strings.TrimSpace(parts[1])
	}
	return members, nil
}

func hasShard(shards []common.ServerShard, id uint64) bool {
	for _, s := range shards {
		if s.ShardID == id {
			return true
		}
	}
	return false
}

// run starts the WebDAV server and, if configured, the rpc lock service
func run(_ *cobra.Command, _ []string) error {
	if err := common.InitLoggers(serveCmdConfig.LogLevel); err != nil {
		return err
	}
	log.Infof("starting davlock with configuration:%s", serveCmdConfig.String())

	s, err := serializer.ByName(viper.GetString("serializer"))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shards, err := server.OpenShards(*serveCmdConfig)
	if err != nil {
		return err
	}
	defer shards.Close()

	lockStore, err := openLockStore(shards, s)
	if err != nil {
		return err
	}

	var resources tree.ITree
	if serveCmdConfig.RootDir == "" {
		log.Warningf("no root-dir configured, serving an in-memory tree")
		resources = tree.NewMemTree()
	} else {
		if err := os.MkdirAll(serveCmdConfig.RootDir, 0o755); err != nil {
			return fmt.Errorf("failed to create root dir: %w", err)
		}
		resources = tree.NewDirTree(serveCmdConfig.RootDir)
	}

	var hooks lockmgr.IHooks
	if serveCmdConfig.PolicyFile != "" {
		regoHooks, err := policy.LoadRegoHooks(ctx, serveCmdConfig.PolicyFile, viper.GetString("policy-query"))
		if err != nil {
			return err
		}
		hooks = regoHooks
	}

	mgr := lockmgr.NewLockManager(lockStore, resources, hooks, lockmgr.Config{
		BaseURI:        serveCmdConfig.BaseURI,
		DefaultTimeout: serveCmdConfig.DefaultTimeout,
	})
	davServer := webdav.NewServer(webdav.NewHandler(mgr, resources, webdav.HandlerConfig{Hooks: hooks}), webdav.ServerConfig{
		Endpoint:       serveCmdConfig.Endpoint,
		MetricsPath:    serveCmdConfig.MetricsPath,
		RateLimit:      serveCmdConfig.RateLimit,
		RateBurst:      serveCmdConfig.RateBurst,
		MaxConnections: serveCmdConfig.MaxConnections,
		LogLevel:       serveCmdConfig.LogLevel,
	})

	errs := make(chan error, 2)
	go func() { errs <- davServer.ListenAndServe() }()

	var rpcServer *server.RPCServer
	if serveCmdConfig.RPCEndpoint != "" {
		rpcServer = server.NewRPCServer(*serveCmdConfig, shards, http.NewHttpServerTransport(), s)
		go func() { errs <- rpcServer.Serve() }()
	}

	select {
	case <-ctx.Done():
		log.Infof("shutting down")
	case err = <-errs:
		if err != nil {
			log.Errorf("server stopped: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	shutdownErr := davServer.Shutdown(shutdownCtx)
	if rpcServer != nil {
		shutdownErr = errors.Join(shutdownErr, rpcServer.Shutdown(shutdownCtx))
	}
	return errors.Join(err, shutdownErr)
}

// openLockStore returns the lock store used by the WebDAV server
func openLockStore(shards *server.Shards, s serializer.IRPCSerializer) (store.ILockStore, error) {
	if len(serveCmdConfig.RemoteStores) > 0 {
		log.Infof("using remote lock store shard %d at %v", serveCmdConfig.StoreShard, serveCmdConfig.RemoteStores)
		return client.NewRPCLockStore(serveCmdConfig.StoreShard, common.ClientConfig{
			Endpoints:     serveCmdConfig.RemoteStores,
			TimeoutSecond: int(serveCmdConfig.TimeoutSecond),
			RetryCount:    3,
		}, http.NewHttpClientTransport(), s)
	}

	lockStore, ok := shards.Get(serveCmdConfig.StoreShard)
	if !ok {
		return nil, fmt.Errorf("shard %d not found", serveCmdConfig.StoreShard)
	}
	return lockStore, nil
}
