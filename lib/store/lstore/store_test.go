package lstore

import (
	"testing"
	"time"

	"github.com/ValentinKolb/davlock/lib/db"
	"github.com/ValentinKolb/davlock/lib/db/engines/maple"
	"github.com/ValentinKolb/davlock/lib/lock"
	"github.com/ValentinKolb/davlock/lib/store"
	"github.com/ValentinKolb/davlock/lib/store/storetest"
)

func newTestStore(t *testing.T, clock *storetest.Clock) store.ILockStore {
	var engine db.KVDB
	s := NewLocalStore(func() db.KVDB {
		engine = maple.NewMapleDB(&maple.DBOptions{NumShards: 2, GCInterval: 10 * time.Millisecond})
		return engine
	}, &store.Options{Now: clock.Now})
	t.Cleanup(func() { _ = engine.Close() })
	return s
}

func TestLocalStore(t *testing.T) {
	storetest.RunLockStoreTests(t, "LocalStore", newTestStore)
}

func TestCustomDefaultTimeout(t *testing.T) {
	clock := storetest.NewClock()
	s := NewLocalStore(func() db.KVDB { return maple.NewMapleDB(nil) }, &store.Options{DefaultTimeout: 5, Now: clock.Now})

	if ok, err := s.Lock("/f", &lock.LockInfo{Token: "t"}); !ok || err != nil {
		t.Fatalf("Lock() = %v, %v", ok, err)
	}
	locks, _ := s.GetLocks("/f", false)
	if len(locks) != 1 || locks[0].Timeout != 5 {
		t.Fatalf("expected lock with timeout 5, got %v", locks)
	}

	clock.Advance(5 * time.Second)
	if locks, _ := s.GetLocks("/f", false); len(locks) != 0 {
		t.Errorf("lock must expire after the default timeout, got %v", locks)
	}
}

func TestRejectsLockWithoutToken(t *testing.T) {
	s := NewLocalStore(func() db.KVDB { return maple.NewMapleDB(nil) }, nil)
	_, err := s.Lock("/f", &lock.LockInfo{})
	serr, ok := err.(*store.Error)
	if !ok || serr.Code != store.RetCInvalidOperation {
		t.Errorf("expected RetCInvalidOperation, got %v", err)
	}
}
