package lock

import (
	"bytes"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/davlock/lib/db"
	"github.com/ValentinKolb/davlock/lib/db/engines/maple"
	"github.com/ValentinKolb/davlock/lib/lock"
	"github.com/ValentinKolb/davlock/lib/lockmgr"
	"github.com/ValentinKolb/davlock/lib/store/lstore"
	"github.com/ValentinKolb/davlock/lib/tree"
	"github.com/ValentinKolb/davlock/webdav"
)

var tokenPattern = regexp.MustCompile(`token=(opaquelocktoken:[0-9a-f-]+)`)

func newTestClient(t *testing.T) (*davClient, *bytes.Buffer, string) {
	t.Helper()
	var engine db.KVDB
	st := lstore.NewLocalStore(func() db.KVDB {
		engine = maple.NewMapleDB(nil)
		return engine
	}, nil)
	t.Cleanup(func() { _ = engine.Close() })

	resources := tree.NewMemTree()
	mgr := lockmgr.NewLockManager(st, resources, nil, lockmgr.Config{})
	ts := httptest.NewServer(webdav.NewHandler(mgr, resources, webdav.HandlerConfig{}))
	t.Cleanup(ts.Close)

	out := &bytes.Buffer{}
	return newDavClient(5*time.Second, out), out, ts.URL
}

func TestLockLifecycle(t *testing.T) {
	c, out, url := newTestClient(t)

	if err := c.Acquire(url+"/doc.txt", acquireOptions{Owner: "alice", Depth: lock.DepthZero, Timeout: 60}); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	m := tokenPattern.FindStringSubmatch(out.String())
	if m == nil {
		t.Fatalf("no token in output %q", out.String())
	}
	token := m[1]
	if !strings.Contains(out.String(), "timeout=Second-60") || !strings.Contains(out.String(), `owner="alice"`) {
		t.Errorf("unexpected acquire output %q", out.String())
	}

	out.Reset()
	if err := c.Acquire(url+"/doc.txt", acquireOptions{Scope: lock.ScopeShared}); err != nil {
		t.Fatalf("conflicting Acquire: %v", err)
	}
	if !strings.Contains(out.String(), "acquired=false") {
		t.Errorf("conflicting lock must not be acquired: %q", out.String())
	}

	out.Reset()
	if err := c.Refresh(url+"/doc.txt", "<"+token+">", lock.TimeoutInfinite); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if !strings.Contains(out.String(), "refreshed=true") || !strings.Contains(out.String(), "timeout=Infinite") {
		t.Errorf("unexpected refresh output %q", out.String())
	}

	out.Reset()
	if err := c.Discover(url + "/doc.txt"); err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if !strings.Contains(out.String(), "locks=1") || !strings.Contains(out.String(), token) {
		t.Errorf("unexpected discover output %q", out.String())
	}

	out.Reset()
	if err := c.Release(url+"/doc.txt", token); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if !strings.Contains(out.String(), "released=true") {
		t.Errorf("unexpected release output %q", out.String())
	}

	out.Reset()
	if err := c.Release(url+"/doc.txt", token); err != nil {
		t.Fatalf("second Release: %v", err)
	}
	if !strings.Contains(out.String(), "released=false") {
		t.Errorf("released lock must not be released again: %q", out.String())
	}

	out.Reset()
	if err := c.Discover(url + "/doc.txt"); err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if !strings.Contains(out.String(), "locks=0") {
		t.Errorf("expected no locks: %q", out.String())
	}
}

func TestClientErrors(t *testing.T) {
	c, _, url := newTestClient(t)

	if err := c.Acquire(url+"/missing/doc.txt", acquireOptions{}); err == nil || !strings.Contains(err.Error(), "409") {
		t.Errorf("expected a 409 error, got %v", err)
	}
	if err := c.Refresh(url+"/doc.txt", "opaquelocktoken:unknown", 0); err == nil {
		t.Error("refreshing an unknown lock must fail")
	}
	if err := c.Discover(url + "/missing.txt"); err == nil {
		t.Error("discover on a missing resource must fail")
	}
}

func TestHelpers(t *testing.T) {
	tests := []struct {
		timeout int64
		want    string
	}{
		{0, ""},
		{lock.TimeoutInfinite, "Infinite"},
		{30, "Second-30"},
	}
	for _, tt := range tests {
		if got := timeoutHeader(tt.timeout); got != tt.want {
			t.Errorf("timeoutHeader(%d) = %q, want %q", tt.timeout, got, tt.want)
		}
	}

	if got := codedURL(" <opaquelocktoken:x> "); got != "<opaquelocktoken:x>" {
		t.Errorf("codedURL() = %q", got)
	}

	body := lockInfoBody(acquireOptions{Scope: lock.ScopeShared, Owner: "a&b"})
	info, err := lockmgr.ParseLockRequest([]byte(body))
	if err != nil {
		t.Fatalf("ParseLockRequest: %v", err)
	}
	if info.Scope != lock.ScopeShared || info.Owner != "a&b" {
		t.Errorf("lock body not understood: %v", info)
	}
}
