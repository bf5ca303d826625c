// Package storetest provides a conformance suite for store.ILockStore implementations.
package storetest

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/davlock/lib/lock"
	"github.com/ValentinKolb/davlock/lib/store"
)

// Clock is a manually advanced time source for store.Options.Now
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a clock set to a fixed point in time
func NewClock() *Clock {
	return &Clock{now: time.Unix(1_700_000_000, 0)}
}

// Now returns the current fake time
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Factory creates a fresh, empty store whose options use the given clock.
// The default timeout must be store.DefaultLockTimeout.
type Factory func(t *testing.T, clock *Clock) store.ILockStore

// RunLockStoreTests runs the conformance suite against a store implementation.
func RunLockStoreTests(t *testing.T, name string, factory Factory) {
	t.Run(name, func(t *testing.T) {
		t.Run("LockAndGet", func(t *testing.T) { testLockAndGet(t, factory) })
		t.Run("Inheritance", func(t *testing.T) { testInheritance(t, factory) })
		t.Run("ScopeConflicts", func(t *testing.T) { testScopeConflicts(t, factory) })
		t.Run("Refresh", func(t *testing.T) { testRefresh(t, factory) })
		t.Run("Unlock", func(t *testing.T) { testUnlock(t, factory) })
		t.Run("Expiry", func(t *testing.T) { testExpiry(t, factory) })
		t.Run("ConcurrentExclusive", func(t *testing.T) { testConcurrentExclusive(t, factory) })
	})
}

func newLock(t *testing.T, token string, scope lock.Scope, depth lock.Depth) *lock.LockInfo {
	t.Helper()
	l, err := lock.NewLockInfo("owner-"+token, token, scope, depth, "")
	if err != nil {
		t.Fatalf("NewLockInfo: %v", err)
	}
	return l
}

func mustLock(t *testing.T, s store.ILockStore, uri string, l *lock.LockInfo) {
	t.Helper()
	ok, err := s.Lock(uri, l)
	if err != nil || !ok {
		t.Fatalf("Lock(%s, %s) = %v, %v; want true, nil", uri, l.Token, ok, err)
	}
}

func tokensOf(locks []*lock.LockInfo) []string {
	res := make([]string, len(locks))
	for i, l := range locks {
		res[i] = l.Token
	}
	return res
}

func expectTokens(t *testing.T, s store.ILockStore, uri string, children bool, want ...string) []*lock.LockInfo {
	t.Helper()
	locks, err := s.GetLocks(uri, children)
	if err != nil {
		t.Fatalf("GetLocks(%s): %v", uri, err)
	}
	got := tokensOf(locks)
	if len(got) != len(want) {
		t.Fatalf("GetLocks(%s, %v) = %v, want %v", uri, children, got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("GetLocks(%s, %v) = %v, want %v", uri, children, got, want)
		}
	}
	return locks
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testLockAndGet(t *testing.T, factory Factory) {
	clock := NewClock()
	s := factory(t, clock)

	l := newLock(t, "t1", lock.ScopeExclusive, lock.DepthZero)
	mustLock(t, s, "/doc.txt", l)

	locks := expectTokens(t, s, "/doc.txt", false, "t1")
	got := locks[0]
	if got.URI != "/doc.txt" {
		t.Errorf("URI = %q, want /doc.txt", got.URI)
	}
	if got.Created != clock.Now().Unix() {
		t.Errorf("Created = %d, want %d", got.Created, clock.Now().Unix())
	}
	if got.Timeout != store.DefaultLockTimeout {
		t.Errorf("Timeout = %d, want default %d", got.Timeout, store.DefaultLockTimeout)
	}
	if got.Owner != "owner-t1" || got.Scope != lock.ScopeExclusive || got.Depth != lock.DepthZero {
		t.Errorf("unexpected lock %v", got)
	}

	expectTokens(t, s, "/other.txt", false)
	if _, err := s.GetDBInfo(); err != nil {
		t.Errorf("GetDBInfo: %v", err)
	}
}

func testInheritance(t *testing.T, factory Factory) {
	s := factory(t, NewClock())

	mustLock(t, s, "/a", newLock(t, "deep", lock.ScopeShared, lock.DepthInfinity))
	mustLock(t, s, "/a/b", newLock(t, "flat", lock.ScopeShared, lock.DepthZero))
	mustLock(t, s, "/a/b/c", newLock(t, "child", lock.ScopeExclusive, lock.DepthZero))
	mustLock(t, s, "/a/bc", newLock(t, "sibling", lock.ScopeExclusive, lock.DepthZero))

	tests := []struct {
		name     string
		uri      string
		children bool
		want     []string
	}{
		{"inherits depth infinity", "/a/b", false, []string{"deep", "flat"}},
		{"depth zero is not inherited", "/a/b/c", false, []string{"deep", "child"}},
		{"with children", "/a/b", true, []string{"deep", "flat", "child"}},
		{"root with children", "/", true, []string{"deep", "flat", "child", "sibling"}},
		{"unlocked path below lock", "/a/x", false, []string{"deep"}},
		{"unrelated path", "/z", true, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectTokens(t, s, tt.uri, tt.children, tt.want...)
		})
	}
}

func testScopeConflicts(t *testing.T, factory Factory) {
	tests := []struct {
		name     string
		existing []lock.Scope
		request  lock.Scope
		wantOK   bool
	}{
		{"exclusive on empty path", nil, lock.ScopeExclusive, true},
		{"second exclusive", []lock.Scope{lock.ScopeExclusive}, lock.ScopeExclusive, false},
		{"shared on exclusive", []lock.Scope{lock.ScopeExclusive}, lock.ScopeShared, false},
		{"exclusive on shared", []lock.Scope{lock.ScopeShared}, lock.ScopeExclusive, false},
		{"shared on shared", []lock.Scope{lock.ScopeShared, lock.ScopeShared}, lock.ScopeShared, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := factory(t, NewClock())
			var want []string
			for i, scope := range tt.existing {
				l := newLock(t, "existing-"+string(rune('a'+i)), scope, lock.DepthZero)
				mustLock(t, s, "/p", l)
				want = append(want, l.Token)
			}

			ok, err := s.Lock("/p", newLock(t, "new", tt.request, lock.DepthZero))
			if err != nil {
				t.Fatalf("Lock: %v", err)
			}
			if ok != tt.wantOK {
				t.Fatalf("Lock() = %v, want %v", ok, tt.wantOK)
			}
			if ok {
				want = append(want, "new")
			}
			expectTokens(t, s, "/p", false, want...)
		})
	}
}

func testRefresh(t *testing.T, factory Factory) {
	clock := NewClock()
	s := factory(t, clock)

	l := newLock(t, "t1", lock.ScopeExclusive, lock.DepthInfinity)
	l.Timeout = 60
	mustLock(t, s, "/doc", l)

	clock.Advance(30 * time.Second)

	refreshed := l.Clone()
	refreshed.Timeout = 120
	mustLock(t, s, "/doc", refreshed) // an exclusive refresh must not conflict with itself

	clock.Advance(100 * time.Second) // past the original expiry
	locks := expectTokens(t, s, "/doc", false, "t1")
	if locks[0].Timeout != 120 || locks[0].Created != clock.Now().Add(-100*time.Second).Unix() {
		t.Errorf("refresh not applied: %v (created %d)", locks[0], locks[0].Created)
	}
}

func testUnlock(t *testing.T, factory Factory) {
	s := factory(t, NewClock())

	a := newLock(t, "a", lock.ScopeShared, lock.DepthZero)
	b := newLock(t, "b", lock.ScopeShared, lock.DepthZero)
	mustLock(t, s, "/f", a)
	mustLock(t, s, "/f", b)

	if ok, err := s.Unlock("/f", a); err != nil || !ok {
		t.Fatalf("Unlock(a) = %v, %v", ok, err)
	}
	expectTokens(t, s, "/f", false, "b")

	if ok, _ := s.Unlock("/f", a); ok {
		t.Error("second Unlock must report false")
	}
	if ok, _ := s.Unlock("/g", b); ok {
		t.Error("Unlock on another path must report false")
	}
}

func testExpiry(t *testing.T, factory Factory) {
	clock := NewClock()
	s := factory(t, clock)

	short := newLock(t, "short", lock.ScopeShared, lock.DepthZero)
	short.Timeout = 10
	forever := newLock(t, "forever", lock.ScopeShared, lock.DepthZero)
	forever.Timeout = lock.TimeoutInfinite
	mustLock(t, s, "/e", short)
	mustLock(t, s, "/e", forever)

	clock.Advance(9 * time.Second)
	expectTokens(t, s, "/e", false, "short", "forever")

	clock.Advance(time.Second)
	expectTokens(t, s, "/e", false, "forever")

	clock.Advance(100 * 365 * 24 * time.Hour)
	expectTokens(t, s, "/e", false, "forever")

	// an expired exclusive lock no longer blocks
	ex := newLock(t, "ex", lock.ScopeExclusive, lock.DepthZero)
	ex.Timeout = 5
	mustLock(t, s, "/x", ex)
	clock.Advance(5 * time.Second)
	mustLock(t, s, "/x", newLock(t, "ex2", lock.ScopeExclusive, lock.DepthZero))
}

func testConcurrentExclusive(t *testing.T, factory Factory) {
	s := factory(t, NewClock())

	const workers = 16
	var (
		wg      sync.WaitGroup
		winners atomic.Int32
	)
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer wg.Done()
			l := &lock.LockInfo{Token: "w" + string(rune('a'+i)), Scope: lock.ScopeExclusive}
			ok, err := s.Lock("/race", l)
			if err != nil {
				t.Errorf("Lock: %v", err)
				return
			}
			if ok {
				winners.Add(1)
			}
		}(i)
	}
	wg.Wait()

	if winners.Load() != 1 {
		t.Errorf("exactly one exclusive lock must win, got %d", winners.Load())
	}
}
