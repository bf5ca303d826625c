package testing

import (
	"bytes"
	"fmt"
	"math/rand"
	"sync/atomic"
	"testing"

	"github.com/ValentinKolb/davlock/lib/db"
)

// RunKVDBBenchmarks runs all benchmarks for a lock table implementation
func RunKVDBBenchmarks(b *testing.B, name string, factory DBFactory) {
	b.Run(name, func(b *testing.B) {
		b.Run("Put", func(b *testing.B) {
			benchmarkPut(b, factory())
		})

		b.Run("PutExclusive", func(b *testing.B) {
			benchmarkPutExclusive(b, factory())
		})

		b.Run("Refresh", func(b *testing.B) {
			benchmarkRefresh(b, factory())
		})

		b.Run("ScanAncestors", func(b *testing.B) {
			benchmarkScanAncestors(b, factory())
		})

		b.Run("ScanDescendants", func(b *testing.B) {
			benchmarkScanDescendants(b, factory())
		})

		b.Run("SaveLoad", func(b *testing.B) {
			benchmarkSaveLoad(b, factory)
		})

		b.Run("MixedUsage", func(b *testing.B) {
			benchmarkMixedUsage(b, factory())
		})
	})
}

// deepPath returns a path with the given depth, e.g. /d0/d1/d2
func deepPath(prefix string, depth int) string {
	p := prefix
	for i := 0; i < depth; i++ {
		p += fmt.Sprintf("/d%d", i)
	}
	return p
}

func benchmarkPut(b *testing.B, database db.KVDB) {
	defer database.Close()
	requireFeature(b, database, db.FeaturePut)

	var counter atomic.Uint64
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			i := counter.Add(1)
			database.Put(rec(fmt.Sprintf("/bench/%d", i), fmt.Sprintf("t%d", i), base+3600), base, nil)
		}
	})
}

func benchmarkPutExclusive(b *testing.B, database db.KVDB) {
	defer database.Close()
	requireFeature(b, database, db.FeatureConditionalPut)

	onlyIfEmpty := func(existing []db.Record) bool { return len(existing) == 0 }
	var counter atomic.Uint64
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			i := counter.Add(1)
			database.Put(rec(fmt.Sprintf("/bench/%d", i%1000), fmt.Sprintf("t%d", i), 0), base, onlyIfEmpty)
		}
	})
}

func benchmarkRefresh(b *testing.B, database db.KVDB) {
	defer database.Close()
	requireFeature(b, database, db.FeaturePut)

	database.Put(rec("/refresh", "t", base+10), base, nil)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		database.Put(rec("/refresh", "t", base+uint64(i)+10), base, nil)
	}
}

func benchmarkScanAncestors(b *testing.B, database db.KVDB) {
	defer database.Close()
	requireFeature(b, database, db.FeatureScan)

	for depth := 0; depth < 10; depth++ {
		database.Put(rec(deepPath("", depth), fmt.Sprintf("t%d", depth), 0), base, nil)
	}
	target := deepPath("", 12)
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			database.Scan(target, db.ScanAncestors|db.ScanExact, base)
		}
	})
}

func benchmarkScanDescendants(b *testing.B, database db.KVDB) {
	defer database.Close()
	requireFeature(b, database, db.FeatureScan)

	for i := 0; i < 1000; i++ {
		database.Put(rec(fmt.Sprintf("/tree/%d/%d", i%10, i), fmt.Sprintf("t%d", i), 0), base, nil)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		database.Scan(fmt.Sprintf("/tree/%d", i%10), db.ScanDescendants, base)
	}
}

func benchmarkSaveLoad(b *testing.B, factory DBFactory) {
	database := factory()
	defer database.Close()
	requireFeature(b, database, db.FeatureSave|db.FeatureLoad)

	for i := 0; i < 10_000; i++ {
		database.Put(rec(fmt.Sprintf("/snap/%d", i), fmt.Sprintf("t%d", i), base+3600), base, nil)
	}

	var buf bytes.Buffer
	b.Run("Save", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			buf.Reset()
			if err := database.Save(&buf); err != nil {
				b.Fatal(err)
			}
		}
	})

	snapshot := buf.Bytes()
	b.Run("Load", func(b *testing.B) {
		target := factory()
		defer target.Close()
		for i := 0; i < b.N; i++ {
			if err := target.Load(bytes.NewReader(snapshot)); err != nil {
				b.Fatal(err)
			}
		}
	})
}

func benchmarkMixedUsage(b *testing.B, database db.KVDB) {
	defer database.Close()
	requireFeature(b, database, db.FeaturePut|db.FeatureScan|db.FeatureDelete)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewSource(rand.Int63()))
		for pb.Next() {
			n := r.Intn(100)
			path := fmt.Sprintf("/mixed/%d", n)
			token := fmt.Sprintf("t%d", n)
			switch r.Intn(10) {
			case 0, 1:
				database.Put(rec(path, token, base+60), base, nil)
			case 2:
				database.Delete(path, token, base)
			default:
				database.Scan(path, db.ScanAncestors|db.ScanExact, base)
			}
		}
	})
}
