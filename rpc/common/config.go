package common

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/lni/dragonboat/v4/config"
)

// --------------------------------------------------------------------------
// helper functions for to interface with Dragonboat (for the server util)
// --------------------------------------------------------------------------

// Dragonboat uses RTT (Round Trip Time) to determine the timing of elections and heartbeats.
// These default values are selected according to the RAFT Paper
const (
	electionRTTFactor  = 10
	heartbeatRTTFactor = 1
)

// ToDragonboatConfig converts the ServerConfig to Dragonboat Config
func (c *ServerConfig) ToDragonboatConfig(shardId uint64) config.Config {
	return config.Config{
		ReplicaID:          c.ReplicaID,
		ShardID:            shardId,
		ElectionRTT:        electionRTTFactor,
		HeartbeatRTT:       heartbeatRTTFactor,
		CheckQuorum:        true,
		SnapshotEntries:    c.SnapshotEntries,
		CompactionOverhead: c.CompactionOverhead,
		MaxInMemLogSize:    0,
	}
}

// ToNodeHostConfig creates a NodeHostConfig for Dragonboat
func (c *ServerConfig) ToNodeHostConfig() config.NodeHostConfig {
	return config.NodeHostConfig{
		WALDir:         c.DataDir,
		NodeHostDir:    c.DataDir,
		RTTMillisecond: c.RTTMillisecond,
		RaftAddress:    c.ClusterMembers[c.ReplicaID],
	}
}

// --------------------------------------------------------------------------
// Server configuration struct
// --------------------------------------------------------------------------

type ServerShardType string

const (
	ShardTypeLocalLockStore ServerShardType = "lstore" // lock table in this process
	ShardTypeRaftLockStore  ServerShardType = "dstore" // lock table replicated with raft
)

// ParseShardType parses the shard type names used on the command line.
func ParseShardType(s string) (ServerShardType, error) {
	switch t := ServerShardType(strings.TrimSpace(s)); t {
	case ShardTypeLocalLockStore, ShardTypeRaftLockStore:
		return t, nil
	default:
		return "", fmt.Errorf("invalid shard type: %s (expected one of: lstore, dstore)", s)
	}
}

type ServerShard struct {
	// ShardID is the ID of the shard
	ShardID uint64
	// Type selects the lock store backing the shard
	Type ServerShardType
}

// ServerConfig holds all configuration parameters of a davlock server process.
type ServerConfig struct {
	// WebDAV settings
	Endpoint       string  // listen address of the WebDAV server
	BaseURI        string  // URL prefix the tree is served under
	RootDir        string  // served directory, empty for an in-memory tree
	DefaultTimeout int64   // lock timeout in seconds when the client sends none
	PolicyFile     string  // rego policy consulted before lock, unlock and write, empty disables it
	MetricsPath    string  // path of the prometheus endpoint, empty disables it
	RateLimit      float64 // requests per second, 0 disables the limiter
	RateBurst      int
	MaxConnections int

	// Lock store selection
	Shards       []ServerShard // lock store shards hosted by this process
	StoreShard   uint64        // shard used by the WebDAV server
	RemoteStores []string      // rpc endpoints of a remote lock service, replaces the local shard

	// RPC api settings, an empty endpoint disables the rpc server
	RPCEndpoint string

	// Dragonboat parameters
	RTTMillisecond     uint64
	SnapshotEntries    uint64
	CompactionOverhead uint64
	DataDir            string
	ReplicaID          uint64
	ClusterMembers     map[uint64]string

	// raft request timeout
	TimeoutSecond int64

	// Logging configuration
	LogLevel string
}

// HasRaftShard checks if the configuration contains any raft replicated shards
func (c *ServerConfig) HasRaftShard() bool {
	for _, shard := range c.Shards {
		if shard.Type == ShardTypeRaftLockStore {
			return true
		}
	}
	return false
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	orDisabled := func(s string) string {
		if s == "" {
			return "disabled"
		}
		return s
	}

	// WebDAV settings
	addSection("WebDAV Server")
	addField("Endpoint", c.Endpoint)
	addField("Base URI", c.BaseURI)
	if c.RootDir == "" {
		addField("Root", "in memory")
	} else {
		addField("Root", c.RootDir)
	}
	addField("Default Lock Timeout", fmt.Sprintf("%d sec", c.DefaultTimeout))
	addField("Policy", orDisabled(c.PolicyFile))
	addField("Metrics", orDisabled(c.MetricsPath))
	if c.RateLimit > 0 {
		addField("Rate Limit", fmt.Sprintf("%.1f req/sec (burst %d)", c.RateLimit, c.RateBurst))
	} else {
		addField("Rate Limit", "disabled")
	}
	if c.MaxConnections > 0 {
		addField("Max Connections", strconv.Itoa(c.MaxConnections))
	} else {
		addField("Max Connections", "unlimited")
	}

	// Lock store
	addSection("Lock Store")
	if len(c.RemoteStores) > 0 {
		addField("Remote", strings.Join(c.RemoteStores, ", "))
	}
	addField("Shard", strconv.FormatUint(c.StoreShard, 10))

	// RPC settings
	addSection("RPC Server")
	addField("Endpoint", orDisabled(c.RPCEndpoint))

	// Logging configuration
	addSection("Logging")
	addField("Log Level", c.LogLevel)

	// Shards
	addSection("Shards")
	for _, shard := range c.Shards {
		addField(strconv.FormatUint(shard.ShardID, 10), string(shard.Type))
	}

	if c.HasRaftShard() {
		// Node Identity
		addSection("Node Identity")
		addField("RAFT Address", c.ClusterMembers[c.ReplicaID])
		addField("Node ID", strconv.FormatUint(c.ReplicaID, 10))

		// RAFT parameters
		addSection("RAFT Parameters")
		addField("Round Trip Time (ms)", fmt.Sprintf("%d ms", c.RTTMillisecond))
		addField("Election RTT (ms)", fmt.Sprintf("%d", c.RTTMillisecond*electionRTTFactor))
		addField("Heartbeat RTT (ms)", fmt.Sprintf("%d", c.RTTMillisecond*heartbeatRTTFactor))
		addField("Snapshot Entries", fmt.Sprintf("%d", c.SnapshotEntries))
		addField("Compaction Overhead", fmt.Sprintf("%d", c.CompactionOverhead))
		addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))

		// Storage
		addSection("Storage")
		addField("Data Directory", c.DataDir)

		// Cluster
		addSection("Cluster")
		sb.WriteString("  Initial Members:\n")

		// Sort keys for consistent output
		var keys []uint64
		for k := range c.ClusterMembers {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

		for _, k := range keys {
			sb.WriteString(fmt.Sprintf("    Node %d: %s\n", k, c.ClusterMembers[k]))
		}
	}
	return sb.String()
}

// --------------------------------------------------------------------------
// RPC client configuration struct
// --------------------------------------------------------------------------

type ClientConfig struct {
	Endpoints              []string
	TimeoutSecond          int
	RetryCount             int
	ConnectionsPerEndpoint int
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Client Configuration")
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Retry Count", strconv.Itoa(c.RetryCount))
	addField("Connections Per Endpoint", strconv.Itoa(int(math.Max(1, float64(c.ConnectionsPerEndpoint)))))

	addSection("Endpoints")
	for i, endpoint := range c.Endpoints {
		addField(strconv.Itoa(i), endpoint)
	}

	return sb.String()
}
