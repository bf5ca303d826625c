package maple

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/davlock/lib/db"
	"github.com/ValentinKolb/davlock/lib/db/engines/maple/internal"
	"github.com/ValentinKolb/davlock/lib/db/util"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

// Constants for database behavior and structure
const (
	magicNum          = "MAPLEDB\x00" // File format identifier
	mapleVersion      = 4             // Database version (4 = path indexed lock records)
	defaultGCInterval = time.Second   // Default interval between GC runs
)

// --------------------------------------------------------------------------
// Core Maple database structure
// --------------------------------------------------------------------------

// mapleImpl implements a lock table with sharded data
type mapleImpl struct {
	numShards int               // Number of shards
	seed      uint64            // Seed for hash function
	shards    []*internal.Shard // Array of shards
	clock     atomic.Uint64     // Highest observed time (epoch seconds)

	// garbage collection
	gcInterval  time.Duration
	gcIsRunning atomic.Bool
	gcStop      chan struct{}
	gcDone      sync.WaitGroup
}

// DBOptions configures the mapleImpl behavior during initialization
type DBOptions struct {
	NumShards  int           // Number of shards (0 = number of CPUs)
	GCInterval time.Duration // Time between GC runs (0 = use default: 1 sec)
}

// DefaultOptions returns the default mapleImpl options
func DefaultOptions() *DBOptions {
	return &DBOptions{
		NumShards:  runtime.NumCPU(),
		GCInterval: defaultGCInterval,
	}
}

// --------------------------------------------------------------------------
// Initialization and Setup
// --------------------------------------------------------------------------

// NewMapleDB creates a new MapleDB instance with the specified options (optional)
func NewMapleDB(opts *DBOptions) db.KVDB {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.NumShards <= 0 {
		opts.NumShards = runtime.NumCPU()
	}
	if opts.GCInterval <= 0 {
		opts.GCInterval = defaultGCInterval
	}

	newDB := &mapleImpl{
		numShards:  opts.NumShards,
		seed:       util.GenerateSeed(),
		shards:     newShards(opts.NumShards),
		gcInterval: opts.GCInterval,
	}

	newDB.startGC()
	return newDB
}

func newShards(n int) []*internal.Shard {
	shards := make([]*internal.Shard, n)
	for i := range shards {
		shards[i] = internal.NewShard()
	}
	return shards
}

// shardFor returns the shard responsible for a path
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) shardFor(path string) *internal.Shard {
	return internal.GetShard(util.HashString(path, maple.seed), maple.shards)
}

// --------------------------------------------------------------------------
// Core KVDB Interface Methods - Write Operations
// --------------------------------------------------------------------------

// Put inserts or replaces a record. See db.KVDB for the semantics of cond.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
// The condition is evaluated inside the atomic compute of the path.
func (maple *mapleImpl) Put(rec db.Record, writeTime uint64, cond db.PutCondition) bool {
	maple.SetClock(writeTime)
	now := maple.clock.Load()

	value := make([]byte, len(rec.Value))
	copy(value, rec.Value)
	newEntry := internal.Entry{
		Token:    rec.Token,
		Value:    value,
		ExpireAt: rec.ExpireAt,
		Index:    now,
	}

	shard := maple.shardFor(rec.Path)
	applied := false
	var dropped []string

	shard.Data.Compute(rec.Path, func(old []internal.Entry, loaded bool) ([]internal.Entry, bool) {
		live := internal.Live(old, now)
		for _, e := range old {
			if e.Expired(now) {
				dropped = append(dropped, e.Token)
			}
		}

		if cond != nil {
			existing := make([]db.Record, len(live))
			for i, e := range live {
				existing[i] = e.Record(rec.Path)
			}
			if !cond(existing) {
				dropped = nil
				if !loaded {
					return old, true // don't create an empty path
				}
				return old, false
			}
		}

		applied = true
		for i, e := range live {
			if e.Token == rec.Token {
				live[i] = newEntry
				return live, false
			}
		}
		return append(live, newEntry), false
	})

	for _, token := range dropped {
		shard.Unschedule(internal.Ref{Path: rec.Path, Token: token})
	}
	if applied {
		shard.Schedule(internal.Ref{Path: rec.Path, Token: rec.Token}, rec.ExpireAt)
	}
	return applied
}

// Delete removes the record with the given token from path.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Delete(path, token string, writeTime uint64) bool {
	maple.SetClock(writeTime)
	now := maple.clock.Load()

	shard := maple.shardFor(path)
	removed := false

	shard.Data.Compute(path, func(old []internal.Entry, loaded bool) ([]internal.Entry, bool) {
		if !loaded {
			return old, true // set delete to true because else the value will be created
		}
		rest := make([]internal.Entry, 0, len(old))
		for _, e := range old {
			if e.Token == token {
				removed = !e.Expired(now)
				continue
			}
			rest = append(rest, e)
		}
		return rest, len(rest) == 0
	})

	shard.Unschedule(internal.Ref{Path: path, Token: token})
	return removed
}

// --------------------------------------------------------------------------
// Core KVDB Interface Methods - Read Operations
// --------------------------------------------------------------------------

// Get returns a copy of the record with the given token on path.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Get(path, token string, now uint64) (db.Record, bool) {
	entries, ok := maple.shardFor(path).Data.Load(path)
	if !ok {
		return db.Record{}, false
	}
	for _, e := range entries {
		if e.Token == token && !e.Expired(now) {
			return e.Record(path), true
		}
	}
	return db.Record{}, false
}

// Scan returns copies of all live records on the selected paths.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
// Descendant scans visit every shard and see a fuzzy snapshot under concurrent writes.
func (maple *mapleImpl) Scan(path string, mode db.ScanMode, now uint64) []db.Record {
	var recs []db.Record

	collect := func(p string) {
		if entries, ok := maple.shardFor(p).Data.Load(p); ok {
			for _, e := range entries {
				if !e.Expired(now) {
					recs = append(recs, e.Record(p))
				}
			}
		}
	}

	if mode&db.ScanAncestors != 0 {
		for _, p := range db.Ancestors(path) {
			collect(p)
		}
	}
	if mode&db.ScanExact != 0 {
		collect(path)
	}
	if mode&db.ScanDescendants != 0 {
		var children []string
		for _, shard := range maple.shards {
			shard.Data.Range(func(p string, _ []internal.Entry) bool {
				if db.IsDescendant(path, p) {
					children = append(children, p)
				}
				return true
			})
		}
		sort.Strings(children)
		for _, p := range children {
			collect(p)
		}
	}
	return recs
}

// --------------------------------------------------------------------------
// Garbage Collection
// --------------------------------------------------------------------------

// startGC starts one garbage collection goroutine per shard.
// If the GC is already running, this function does nothing.
func (maple *mapleImpl) startGC() {
	if !maple.gcIsRunning.CompareAndSwap(false, true) {
		return
	}
	maple.gcStop = make(chan struct{})
	maple.gcDone.Add(len(maple.shards))
	for _, shard := range maple.shards {
		go maple.garbageCollector(shard, maple.gcStop)
	}
}

// stopGC stops the garbage collector and waits until all goroutines returned.
// If the GC is not running, this function does nothing.
func (maple *mapleImpl) stopGC() {
	if maple.gcIsRunning.CompareAndSwap(true, false) {
		close(maple.gcStop)
		maple.gcDone.Wait()
	}
}

// garbageCollector removes expired records of one shard.
// Expired records are already invisible to readers; the collector only frees memory.
func (maple *mapleImpl) garbageCollector(shard *internal.Shard, stop <-chan struct{}) {
	defer maple.gcDone.Done()

	ticker := time.NewTicker(maple.gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		/*
			Note: We only get the clock once per cycle. Records that were refreshed in the
			meantime have been rescheduled with a later expiry and are skipped by the
			double-check below.
		*/
		now := maple.clock.Load()

		for _, ref := range shard.Due(now) {
			shard.Data.Compute(ref.Path, func(old []internal.Entry, loaded bool) ([]internal.Entry, bool) {
				if !loaded {
					return old, true
				}
				rest := make([]internal.Entry, 0, len(old))
				for _, e := range old {
					// double-check the entry is still the expired one
					if e.Token == ref.Token && e.Expired(now) {
						continue
					}
					rest = append(rest, e)
				}
				return rest, len(rest) == 0
			})
		}
	}
}

// --------------------------------------------------------------------------
// Persistence Operations
// --------------------------------------------------------------------------

// Save persists all live records to the writer.
//
// Thread-safety: This function allows concurrent operations with all other functions
// except Load. It takes a fuzzy snapshot of the data without blocking modifications.
func (maple *mapleImpl) Save(w io.Writer) error {
	bw := bufio.NewWriterSize(w, 64*1024)
	now := maple.clock.Load()

	type entryToSave struct {
		path  string
		entry internal.Entry
	}
	var entries []entryToSave

	for _, shard := range maple.shards {
		shard.Data.Range(func(path string, list []internal.Entry) bool {
			for _, e := range list {
				if !e.Expired(now) {
					entries = append(entries, entryToSave{path, e})
				}
			}
			return true
		})
	}

	// Write file header
	if _, err := bw.WriteString(magicNum); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint8(mapleVersion)); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, maple.seed); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, now); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint64(len(entries))); err != nil {
		return err
	}

	for _, item := range entries {
		if err := writeBytes(bw, []byte(item.path)); err != nil {
			return err
		}
		if err := writeBytes(bw, []byte(item.entry.Token)); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, item.entry.ExpireAt); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, item.entry.Index); err != nil {
			return err
		}
		if err := writeBytes(bw, item.entry.Value); err != nil {
			return err
		}
	}

	return bw.Flush()
}

// Load replaces the database content with a snapshot written by Save.
//
// Thread-safety: This function is not thread-safe and should not be called concurrently
func (maple *mapleImpl) Load(r io.Reader) error {
	maple.stopGC()
	defer maple.startGC()

	br := bufio.NewReaderSize(r, 64*1024)

	magicBytes := make([]byte, len(magicNum))
	if _, err := io.ReadFull(br, magicBytes); err != nil {
		return err
	}
	if string(magicBytes) != magicNum {
		return fmt.Errorf("invalid file format: magic number mismatch")
	}

	var version uint8
	if err := binary.Read(br, binary.LittleEndian, &version); err != nil {
		return err
	}
	if int(version) != mapleVersion {
		return fmt.Errorf("unsupported version: %d (expected %d)", version, mapleVersion)
	}

	var seed, clock, count uint64
	for _, v := range []*uint64{&seed, &clock, &count} {
		if err := binary.Read(br, binary.LittleEndian, v); err != nil {
			return err
		}
	}

	maple.seed = seed
	maple.shards = newShards(maple.numShards)
	maple.clock.Store(0)

	for i := uint64(0); i < count; i++ {
		path, err := readBytes(br)
		if err != nil {
			return err
		}
		token, err := readBytes(br)
		if err != nil {
			return err
		}
		var expireAt, index uint64
		if err := binary.Read(br, binary.LittleEndian, &expireAt); err != nil {
			return err
		}
		if err := binary.Read(br, binary.LittleEndian, &index); err != nil {
			return err
		}
		value, err := readBytes(br)
		if err != nil {
			return err
		}

		p := string(path)
		e := internal.Entry{Token: string(token), Value: value, ExpireAt: expireAt, Index: index}
		shard := maple.shardFor(p)
		list, _ := shard.Data.Load(p)
		shard.Data.Store(p, append(list, e))
		if expireAt != 0 {
			shard.Schedule(internal.Ref{Path: p, Token: e.Token}, expireAt)
		}
	}

	maple.SetClock(clock)
	return nil
}

func writeBytes(w io.Writer, b []byte) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readBytes(r io.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

// --------------------------------------------------------------------------
// KVDB Interface Implementation - Features and Metadata
// --------------------------------------------------------------------------

// GetInfo returns statistics about the database
func (maple *mapleImpl) GetInfo() db.DatabaseInfo {
	now := maple.clock.Load()

	var (
		paths, records, expired, scheduled int
		sizeBytes                          int
	)
	for _, shard := range maple.shards {
		shard.Data.Range(func(path string, list []internal.Entry) bool {
			paths++
			sizeBytes += len(path)
			for _, e := range list {
				records++
				sizeBytes += len(e.Token) + len(e.Value) + 16 // expireAt + index
				if e.Expired(now) {
					expired++
				}
			}
			return true
		})
		scheduled += shard.Scheduled()
	}

	meta := &struct {
		Clock          uint64 `json:"clock"`
		ShardCount     int    `json:"shard_count"`
		PathCount      int    `json:"path_count"`
		RecordCount    int    `json:"record_count"`
		ExpiredBacklog int    `json:"expired_backlog"`
		Scheduled      int    `json:"scheduled"`
	}{
		Clock:          now,
		ShardCount:     len(maple.shards),
		PathCount:      paths,
		RecordCount:    records,
		ExpiredBacklog: expired,
		Scheduled:      scheduled,
	}

	return db.DatabaseInfo{
		SizeBytes: sizeBytes,
		DbType:    db.ImplMaple,
		SupportedFeatures: []db.Feature{
			db.FeaturePut, db.FeatureConditionalPut,
			db.FeatureGet, db.FeatureScan, db.FeatureDelete,
			db.FeatureSave, db.FeatureLoad,
			db.FeatureGarbageCollect,
		},
		Metadata: meta,
	}
}

// SupportsFeature checks if this implementation supports a specific KVDB feature
func (maple *mapleImpl) SupportsFeature(feature db.Feature) bool {
	supportedFeatures := db.FeaturePut |
		db.FeatureConditionalPut |
		db.FeatureGet |
		db.FeatureScan |
		db.FeatureDelete |
		db.FeatureSave |
		db.FeatureLoad |
		db.FeatureGarbageCollect
	return supportedFeatures&feature == feature
}

// Close stops the garbage collector
func (maple *mapleImpl) Close() error {
	maple.stopGC()
	return nil
}

// --------------------------------------------------------------------------
// Clock Management
// --------------------------------------------------------------------------

// SetClock safely advances the clock.
// It only updates if the new time is greater than the current one.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) SetClock(t uint64) {
	for {
		curr := maple.clock.Load()
		if t <= curr {
			return
		}
		if maple.clock.CompareAndSwap(curr, t) {
			return
		}
	}
}

// Clock returns the current clock of the database
func (maple *mapleImpl) Clock() uint64 {
	return maple.clock.Load()
}
