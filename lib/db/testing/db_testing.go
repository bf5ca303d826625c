package testing

import (
	"bytes"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/davlock/lib/db"
)

// DBFactory is a function that creates a new instance of a KVDB implementation
type DBFactory func() db.KVDB

// base is the clock value used by the tests, any realistic epoch second works
const base uint64 = 1_700_000_000

// RunKVDBTests runs a comprehensive test suite for a KVDB implementation.
func RunKVDBTests(t *testing.T, name string, factory DBFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Put&Get", func(t *testing.T) {
			testPutGet(t, factory())
		})

		t.Run("ReplaceKeepsOrder", func(t *testing.T) {
			testReplaceKeepsOrder(t, factory())
		})

		t.Run("Delete", func(t *testing.T) {
			testDelete(t, factory())
		})

		t.Run("ConditionalPut", func(t *testing.T) {
			testConditionalPut(t, factory())
		})

		t.Run("ScanModes", func(t *testing.T) {
			testScanModes(t, factory())
		})

		t.Run("Expiry", func(t *testing.T) {
			testExpiry(t, factory())
		})

		t.Run("GarbageCollection", func(t *testing.T) {
			testGarbageCollection(t, factory())
		})

		t.Run("SaveLoad", func(t *testing.T) {
			testSaveLoad(t, factory)
		})

		t.Run("Clock", func(t *testing.T) {
			testClock(t, factory())
		})

		t.Run("ConcurrentExclusivePut", func(t *testing.T) {
			testConcurrentExclusivePut(t, factory())
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// Checks if the database supports the specified feature
// Skip the test if it is not supported
func requireFeature(t testing.TB, database db.KVDB, feature db.Feature) {
	if !database.SupportsFeature(feature) {
		t.Skip()
	}
}

func rec(path, token string, expireAt uint64) db.Record {
	return db.Record{Path: path, Token: token, Value: []byte("value-" + token), ExpireAt: expireAt}
}

func tokens(recs []db.Record) []string {
	res := make([]string, len(recs))
	for i, r := range recs {
		res[i] = r.Token
	}
	return res
}

func equalTokens(t *testing.T, what string, got []db.Record, want ...string) {
	t.Helper()
	g := tokens(got)
	if len(g) != len(want) {
		t.Errorf("%s: got tokens %v, want %v", what, g, want)
		return
	}
	for i := range g {
		if g[i] != want[i] {
			t.Errorf("%s: got tokens %v, want %v", what, g, want)
			return
		}
	}
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testPutGet(t *testing.T, database db.KVDB) {
	defer database.Close()
	requireFeature(t, database, db.FeaturePut|db.FeatureGet)

	if !database.Put(rec("/a", "t1", 0), base, nil) {
		t.Fatal("unconditional Put must be applied")
	}

	got, ok := database.Get("/a", "t1", base)
	if !ok {
		t.Fatal("expected record to exist after Put")
	}
	if got.Path != "/a" || got.Token != "t1" || !bytes.Equal(got.Value, []byte("value-t1")) {
		t.Errorf("unexpected record %+v", got)
	}

	// returned values are copies
	got.Value[0] = 'X'
	again, _ := database.Get("/a", "t1", base)
	if again.Value[0] == 'X' {
		t.Error("modifying a returned value must not change the stored record")
	}

	if _, ok := database.Get("/a", "missing", base); ok {
		t.Error("expected unknown token to be absent")
	}
	if _, ok := database.Get("/b", "t1", base); ok {
		t.Error("expected token on another path to be absent")
	}
}

func testReplaceKeepsOrder(t *testing.T, database db.KVDB) {
	defer database.Close()
	requireFeature(t, database, db.FeaturePut|db.FeatureScan)

	database.Put(rec("/a", "t1", 0), base, nil)
	database.Put(rec("/a", "t2", 0), base, nil)
	database.Put(rec("/a", "t3", 0), base, nil)

	replaced := rec("/a", "t2", base+100)
	replaced.Value = []byte("new")
	database.Put(replaced, base+1, nil)

	recs := database.Scan("/a", db.ScanExact, base+1)
	equalTokens(t, "after replace", recs, "t1", "t2", "t3")
	if !bytes.Equal(recs[1].Value, []byte("new")) || recs[1].ExpireAt != base+100 {
		t.Errorf("replaced record not updated: %+v", recs[1])
	}
}

func testDelete(t *testing.T, database db.KVDB) {
	defer database.Close()
	requireFeature(t, database, db.FeaturePut|db.FeatureDelete|db.FeatureScan)

	database.Put(rec("/a", "t1", 0), base, nil)
	database.Put(rec("/a", "t2", 0), base, nil)

	if !database.Delete("/a", "t1", base) {
		t.Error("Delete of an existing record must report true")
	}
	if database.Delete("/a", "t1", base) {
		t.Error("second Delete must report false")
	}
	if database.Delete("/b", "t2", base) {
		t.Error("Delete on the wrong path must report false")
	}
	equalTokens(t, "after delete", database.Scan("/a", db.ScanExact, base), "t2")

	database.Delete("/a", "t2", base)
	if recs := database.Scan("/", db.ScanExact|db.ScanDescendants, base); len(recs) != 0 {
		t.Errorf("expected empty table, got %v", tokens(recs))
	}
}

func testConditionalPut(t *testing.T, database db.KVDB) {
	defer database.Close()
	requireFeature(t, database, db.FeatureConditionalPut|db.FeatureScan)

	onlyIfEmpty := func(existing []db.Record) bool { return len(existing) == 0 }

	if !database.Put(rec("/a", "t1", 0), base, onlyIfEmpty) {
		t.Fatal("condition on empty path must pass")
	}
	if database.Put(rec("/a", "t2", 0), base, onlyIfEmpty) {
		t.Fatal("condition on occupied path must fail")
	}
	equalTokens(t, "after rejected put", database.Scan("/a", db.ScanExact, base), "t1")

	// a rejected put on an unknown path must not leave anything behind
	never := func([]db.Record) bool { return false }
	if database.Put(rec("/b", "t3", 0), base, never) {
		t.Fatal("rejecting condition must fail")
	}
	if recs := database.Scan("/b", db.ScanExact, base); len(recs) != 0 {
		t.Errorf("rejected put created records: %v", tokens(recs))
	}

	// the condition sees the existing records
	var seen []string
	database.Put(rec("/a", "t4", 0), base, func(existing []db.Record) bool {
		seen = tokens(existing)
		return true
	})
	if len(seen) != 1 || seen[0] != "t1" {
		t.Errorf("condition saw %v, want [t1]", seen)
	}

	// expired records are invisible to the condition
	database.Put(rec("/c", "old", base+10), base, nil)
	if !database.Put(rec("/c", "new", 0), base+10, onlyIfEmpty) {
		t.Error("expired record must not block the condition")
	}
}

func testScanModes(t *testing.T, database db.KVDB) {
	defer database.Close()
	requireFeature(t, database, db.FeaturePut|db.FeatureScan)

	for _, r := range []db.Record{
		rec("/", "root", 0),
		rec("/a", "a", 0),
		rec("/a/b", "ab", 0),
		rec("/a/b/c", "abc", 0),
		rec("/a/bc", "abc2", 0),
		rec("/ab", "ab-sibling", 0),
		rec("/a/b/d", "abd", 0),
	} {
		database.Put(r, base, nil)
	}

	tests := []struct {
		name string
		path string
		mode db.ScanMode
		want []string
	}{
		{"exact", "/a/b", db.ScanExact, []string{"ab"}},
		{"ancestors", "/a/b", db.ScanAncestors, []string{"root", "a"}},
		{"ancestors of root", "/", db.ScanAncestors, nil},
		{"descendants", "/a/b", db.ScanDescendants, []string{"abc", "abd"}},
		{"descendants of root", "/", db.ScanDescendants, []string{"a", "ab", "abc", "abd", "abc2", "ab-sibling"}},
		{"all", "/a/b", db.ScanAncestors | db.ScanExact | db.ScanDescendants, []string{"root", "a", "ab", "abc", "abd"}},
		{"missing path", "/zzz", db.ScanExact, nil},
		{"ancestors of missing path", "/a/x/y", db.ScanAncestors, []string{"root", "a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			equalTokens(t, tt.name, database.Scan(tt.path, tt.mode, base), tt.want...)
		})
	}
}

func testExpiry(t *testing.T, database db.KVDB) {
	defer database.Close()
	requireFeature(t, database, db.FeaturePut|db.FeatureGet|db.FeatureScan)

	database.Put(rec("/a", "short", base+10), base, nil)
	database.Put(rec("/a", "forever", 0), base, nil)

	equalTokens(t, "before expiry", database.Scan("/a", db.ScanExact, base+9), "short", "forever")
	equalTokens(t, "at expiry", database.Scan("/a", db.ScanExact, base+10), "forever")

	if _, ok := database.Get("/a", "short", base+10); ok {
		t.Error("expired record must not be returned by Get")
	}

	// refreshing moves the expiry
	database.Put(rec("/a", "short", base+100), base+5, nil)
	equalTokens(t, "after refresh", database.Scan("/a", db.ScanExact, base+50), "short", "forever")
}

func testGarbageCollection(t *testing.T, database db.KVDB) {
	defer database.Close()
	requireFeature(t, database, db.FeatureGarbageCollect)

	for i := 0; i < 100; i++ {
		database.Put(rec(fmt.Sprintf("/gc/%d", i), fmt.Sprintf("t%d", i), base+1), base, nil)
	}
	database.Put(rec("/gc/keep", "keep", 0), base, nil)

	// advance the clock past the expiry, the collector only uses the database clock
	database.SetClock(base + 2)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if len(database.Scan("/gc", db.ScanDescendants, 0)) == 1 {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	// scanning with now=0 shows physically present records only
	equalTokens(t, "after gc", database.Scan("/gc", db.ScanDescendants, 0), "keep")
}

func testSaveLoad(t *testing.T, factory DBFactory) {
	source := factory()
	defer source.Close()
	requireFeature(t, source, db.FeatureSave|db.FeatureLoad)

	source.Put(rec("/a", "t1", 0), base, nil)
	source.Put(rec("/a", "t2", base+1000), base, nil)
	source.Put(rec("/a/b", "t3", base+5), base, nil)
	source.SetClock(base + 10) // t3 is expired and must not be saved

	var buf bytes.Buffer
	if err := source.Save(&buf); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	target := factory()
	defer target.Close()
	target.Put(rec("/other", "gone", 0), base, nil)

	if err := target.Load(&buf); err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if target.Clock() != base+10 {
		t.Errorf("Clock() after Load = %d, want %d", target.Clock(), base+10)
	}
	equalTokens(t, "loaded", target.Scan("/", db.ScanExact|db.ScanDescendants, base+10), "t1", "t2")

	got, ok := target.Get("/a", "t2", base+10)
	if !ok || got.ExpireAt != base+1000 || !bytes.Equal(got.Value, []byte("value-t2")) {
		t.Errorf("loaded record mismatch: %+v (found %v)", got, ok)
	}

	if err := target.Load(bytes.NewReader([]byte("NOTMAPLE"))); err == nil {
		t.Error("Load of an invalid snapshot must fail")
	}
}

func testClock(t *testing.T, database db.KVDB) {
	defer database.Close()

	database.SetClock(base + 10)
	database.SetClock(base + 5)
	if database.Clock() != base+10 {
		t.Errorf("clock must be monotonic, got %d", database.Clock())
	}

	database.Put(rec("/a", "t", 0), base+20, nil)
	if database.Clock() != base+20 {
		t.Errorf("Put must advance the clock, got %d", database.Clock())
	}
}

func testConcurrentExclusivePut(t *testing.T, database db.KVDB) {
	defer database.Close()
	requireFeature(t, database, db.FeatureConditionalPut)

	const workers = 32
	var (
		wg      sync.WaitGroup
		winners atomic.Int32
	)
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer wg.Done()
			ok := database.Put(rec("/contended", fmt.Sprintf("t%d", i), 0), base, func(existing []db.Record) bool {
				return len(existing) == 0
			})
			if ok {
				winners.Add(1)
			}
		}(i)
	}
	wg.Wait()

	if winners.Load() != 1 {
		t.Errorf("exactly one conditional put must win, got %d", winners.Load())
	}
}
