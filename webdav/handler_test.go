package webdav

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/davlock/lib/db"
	"github.com/ValentinKolb/davlock/lib/db/engines/maple"
	"github.com/ValentinKolb/davlock/lib/lockmgr"
	"github.com/ValentinKolb/davlock/lib/store/lstore"
	"github.com/ValentinKolb/davlock/lib/tree"
)

// --------------------------------------------------------------------------
// Fixture
// --------------------------------------------------------------------------

const exclusiveBody = `<?xml version="1.0" encoding="utf-8"?>
<D:lockinfo xmlns:D="DAV:">
  <D:lockscope><D:exclusive/></D:lockscope>
  <D:locktype><D:write/></D:locktype>
  <D:owner><D:href>alice</D:href></D:owner>
</D:lockinfo>`

const sharedBody = `<D:lockinfo xmlns:D="DAV:"><D:lockscope><D:shared/></D:lockscope><D:locktype><D:write/></D:locktype></D:lockinfo>`

type testServer struct {
	*httptest.Server
	tree tree.ITree
}

func newTestServer(t *testing.T, baseURI string, hooks lockmgr.IHooks) *testServer {
	t.Helper()
	var engine db.KVDB
	s := lstore.NewLocalStore(func() db.KVDB {
		engine = maple.NewMapleDB(&maple.DBOptions{NumShards: 2, GCInterval: 10 * time.Millisecond})
		return engine
	}, nil)
	tr := tree.NewMemTree()
	mgr := lockmgr.NewLockManager(s, tr, hooks, lockmgr.Config{BaseURI: baseURI})

	srv := httptest.NewServer(NewHandler(mgr, tr, HandlerConfig{Hooks: hooks}))
	t.Cleanup(func() {
		srv.Close()
		_ = engine.Close()
	})
	return &testServer{Server: srv, tree: tr}
}

type call struct {
	method string
	path   string
	header map[string]string
	body   string
}

func (s *testServer) do(t *testing.T, c call) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(c.method, s.URL+c.path, strings.NewReader(c.body))
	if err != nil {
		t.Fatal(err)
	}
	for k, v := range c.header {
		req.Header.Set(k, v)
	}
	resp, err := s.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", c.method, c.path, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp, string(body)
}

func (s *testServer) expect(t *testing.T, c call, want int) (*http.Response, string) {
	t.Helper()
	resp, body := s.do(t, c)
	if resp.StatusCode != want {
		t.Fatalf("%s %s: status %d, want %d\n%s", c.method, c.path, resp.StatusCode, want, body)
	}
	return resp, body
}

func (s *testServer) put(t *testing.T, p, content string) {
	t.Helper()
	if _, err := s.tree.Write(context.Background(), p, strings.NewReader(content)); err != nil {
		t.Fatalf("Write(%s): %v", p, err)
	}
}

// lock locks p exclusively and returns the Lock-Token header
func (s *testServer) lock(t *testing.T, p string) string {
	t.Helper()
	resp, _ := s.expect(t, call{method: "LOCK", path: p, body: exclusiveBody}, http.StatusOK)
	token := resp.Header.Get("Lock-Token")
	if !strings.HasPrefix(token, "<opaquelocktoken:") {
		t.Fatalf("unexpected Lock-Token %q", token)
	}
	return token
}

func contains(t *testing.T, body string, parts ...string) {
	t.Helper()
	for _, p := range parts {
		if !strings.Contains(body, p) {
			t.Errorf("body does not contain %q:\n%s", p, body)
		}
	}
}

// --------------------------------------------------------------------------
// Locking
// --------------------------------------------------------------------------

func TestLockAndUnlock(t *testing.T) {
	s := newTestServer(t, "/", nil)

	resp, body := s.expect(t, call{method: "LOCK", path: "/new.txt", header: map[string]string{"Timeout": "Second-600"}, body: exclusiveBody}, http.StatusCreated)
	token := resp.Header.Get("Lock-Token")
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/xml") {
		t.Errorf("Content-Type = %q", ct)
	}
	contains(t, body, "<D:lockdiscovery>", "<D:exclusive/>", "Second-600", "<D:href>/new.txt</D:href>", strings.Trim(token, "<>"))

	if ok, _ := s.tree.Exists(context.Background(), "/new.txt"); !ok {
		t.Fatal("LOCK on an unmapped url must create an empty resource")
	}

	// writing without the token is refused
	_, body = s.expect(t, call{method: "PUT", path: "/new.txt", body: "x"}, StatusLocked)
	contains(t, body, "<D:lock-token-submitted>", "<D:href>/new.txt</D:href>")

	// with the token the write succeeds
	s.expect(t, call{method: "PUT", path: "/new.txt", header: map[string]string{"If": "(" + token + ")"}, body: "x"}, http.StatusNoContent)

	s.expect(t, call{method: "UNLOCK", path: "/new.txt", header: map[string]string{"Lock-Token": token}}, http.StatusNoContent)
	s.expect(t, call{method: "PUT", path: "/new.txt", body: "y"}, http.StatusNoContent)
}

func TestLockConflicts(t *testing.T) {
	s := newTestServer(t, "/", nil)
	s.put(t, "/doc.txt", "content")

	s.lock(t, "/doc.txt")

	tests := []struct {
		name string
		body string
	}{
		{"second exclusive", exclusiveBody},
		{"shared on exclusive", sharedBody},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, body := s.expect(t, call{method: "LOCK", path: "/doc.txt", body: tt.body}, StatusLocked)
			contains(t, body, "<D:no-conflicting-lock>", "<D:href>/doc.txt</D:href>")
		})
	}
}

func TestSharedLocks(t *testing.T) {
	s := newTestServer(t, "/", nil)
	s.put(t, "/doc.txt", "content")

	s.expect(t, call{method: "LOCK", path: "/doc.txt", body: sharedBody}, http.StatusOK)
	s.expect(t, call{method: "LOCK", path: "/doc.txt", body: sharedBody}, http.StatusOK)

	_, body := s.expect(t, call{method: "PROPFIND", path: "/doc.txt", header: map[string]string{"Depth": "0"}}, http.StatusMultiStatus)
	if n := strings.Count(body, "<D:activelock>"); n != 2 {
		t.Errorf("expected 2 active locks, got %d:\n%s", n, body)
	}
}

func TestLockRefresh(t *testing.T) {
	s := newTestServer(t, "/", nil)
	s.put(t, "/doc.txt", "content")
	token := s.lock(t, "/doc.txt")

	resp, body := s.expect(t, call{method: "LOCK", path: "/doc.txt", header: map[string]string{
		"If":      "(" + token + ")",
		"Timeout": "Infinite, Second-4100000000",
	}}, http.StatusOK)
	if got := resp.Header.Get("Lock-Token"); got != token {
		t.Errorf("refresh returned token %q, want %q", got, token)
	}
	contains(t, body, "<D:timeout>Infinite</D:timeout>")

	// a locked path without token conflicts, an unlocked one has nothing to refresh
	s.expect(t, call{method: "LOCK", path: "/doc.txt"}, StatusLocked)
	s.expect(t, call{method: "LOCK", path: "/free.txt"}, http.StatusBadRequest)
}

func TestLockErrors(t *testing.T) {
	s := newTestServer(t, "/", nil)

	tests := []struct {
		name   string
		c      call
		status int
		parts  []string
	}{
		{"missing parent", call{method: "LOCK", path: "/missing/doc.txt", body: exclusiveBody}, http.StatusConflict, nil},
		{"invalid timeout", call{method: "LOCK", path: "/x.txt", header: map[string]string{"Timeout": "Second-abc"}, body: exclusiveBody}, http.StatusBadRequest, nil},
		{"invalid body", call{method: "LOCK", path: "/x.txt", body: "<D:lockinfo"}, http.StatusBadRequest, nil},
		{"unlock without token", call{method: "UNLOCK", path: "/x.txt"}, http.StatusBadRequest, []string{"<s:message>"}},
		{"unlock unknown token", call{method: "UNLOCK", path: "/x.txt", header: map[string]string{"Lock-Token": "<opaquelocktoken:nope>"}}, http.StatusConflict, []string{"<D:lock-token-matches-request-uri/>"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, body := s.expect(t, tt.c, tt.status)
			contains(t, body, tt.parts...)
		})
	}
}

func TestPreconditionFailed(t *testing.T) {
	s := newTestServer(t, "/", nil)
	s.put(t, "/doc.txt", "content")

	_, body := s.expect(t, call{method: "PUT", path: "/doc.txt", header: map[string]string{
		"If": "(<opaquelocktoken:unknown>)",
	}, body: "x"}, http.StatusPreconditionFailed)
	contains(t, body, "<s:header>If</s:header>")

	etag, err := s.tree.ETag(context.Background(), "/doc.txt")
	if err != nil {
		t.Fatal(err)
	}
	s.expect(t, call{method: "PUT", path: "/doc.txt", header: map[string]string{"If": `(["nope"])`}, body: "x"}, http.StatusPreconditionFailed)
	s.expect(t, call{method: "PUT", path: "/doc.txt", header: map[string]string{"If": "([" + etag + "])"}, body: "x"}, http.StatusNoContent)
}

func TestCollectionLocks(t *testing.T) {
	s := newTestServer(t, "/", nil)
	ctx := context.Background()
	if err := s.tree.Mkdir(ctx, "/dir"); err != nil {
		t.Fatal(err)
	}
	s.put(t, "/dir/a.txt", "a")
	s.put(t, "/other.txt", "o")

	token := s.lock(t, "/dir")

	// depth infinity locks protect the members
	s.expect(t, call{method: "PUT", path: "/dir/a.txt", body: "x"}, StatusLocked)
	s.expect(t, call{method: "DELETE", path: "/dir/a.txt"}, StatusLocked)
	s.expect(t, call{method: "PUT", path: "/dir/b.txt", body: "x"}, StatusLocked)

	// moving a resource into the locked collection needs the token
	s.expect(t, call{method: "MOVE", path: "/other.txt", header: map[string]string{
		"Destination": s.URL + "/dir/other.txt",
	}}, StatusLocked)
	s.expect(t, call{method: "MOVE", path: "/other.txt", header: map[string]string{
		"Destination": s.URL + "/dir/other.txt",
		"If":          "<" + s.URL + "/dir> (" + token + ")",
	}}, http.StatusCreated)

	// locks are released through any member
	s.expect(t, call{method: "UNLOCK", path: "/dir/a.txt", header: map[string]string{"Lock-Token": token}}, http.StatusNoContent)
	s.expect(t, call{method: "DELETE", path: "/dir/a.txt"}, http.StatusNoContent)
}

func TestMoveSourceWithLockedChild(t *testing.T) {
	s := newTestServer(t, "/", nil)
	if err := s.tree.Mkdir(context.Background(), "/dir"); err != nil {
		t.Fatal(err)
	}
	s.put(t, "/dir/a.txt", "a")
	s.lock(t, "/dir/a.txt")

	s.expect(t, call{method: "MOVE", path: "/dir", header: map[string]string{"Destination": "/moved"}}, StatusLocked)
	s.expect(t, call{method: "COPY", path: "/dir", header: map[string]string{"Destination": "/copy"}}, http.StatusCreated)
	s.expect(t, call{method: "COPY", path: "/dir"}, http.StatusBadRequest)
}

func TestBaseURI(t *testing.T) {
	s := newTestServer(t, "/dav/", nil)

	resp, body := s.expect(t, call{method: "LOCK", path: "/dav/new.txt", body: exclusiveBody}, http.StatusCreated)
	contains(t, body, "<D:href>/dav/new.txt</D:href>")

	if ok, _ := s.tree.Exists(context.Background(), "/new.txt"); !ok {
		t.Error("resource must be created relative to the base uri")
	}
	s.expect(t, call{method: "PUT", path: "/dav/new.txt", header: map[string]string{"If": "(" + resp.Header.Get("Lock-Token") + ")"}, body: "x"}, http.StatusNoContent)
	s.expect(t, call{method: "PUT", path: "/elsewhere.txt", body: "x"}, http.StatusForbidden)
}

func TestWriteVeto(t *testing.T) {
	hooks := lockmgr.HookFuncs{WriteContent: func(p string) bool { return p != "/vetoed.txt" }}
	s := newTestServer(t, "/", hooks)

	s.expect(t, call{method: "PUT", path: "/vetoed.txt", body: "x"}, http.StatusForbidden)
	s.expect(t, call{method: "PUT", path: "/fine.txt", body: "x"}, http.StatusCreated)

	// a vetoed creation still grants the lock
	s.expect(t, call{method: "LOCK", path: "/vetoed.txt", body: exclusiveBody}, http.StatusOK)
	if ok, _ := s.tree.Exists(context.Background(), "/vetoed.txt"); ok {
		t.Error("vetoed resource must not be created")
	}
}

// --------------------------------------------------------------------------
// Resource methods
// --------------------------------------------------------------------------

func TestOptions(t *testing.T) {
	s := newTestServer(t, "/", nil)
	resp, _ := s.expect(t, call{method: http.MethodOptions, path: "/"}, http.StatusOK)

	if dav := resp.Header.Get("DAV"); dav != "1, 2" {
		t.Errorf("DAV = %q", dav)
	}
	allow := resp.Header.Get("Allow")
	for _, m := range []string{"LOCK", "UNLOCK", "PROPFIND", "PUT"} {
		if !strings.Contains(allow, m) {
			t.Errorf("Allow %q misses %s", allow, m)
		}
	}
}

func TestResourceMethods(t *testing.T) {
	s := newTestServer(t, "/", nil)

	s.expect(t, call{method: "PUT", path: "/a.txt", body: "hello"}, http.StatusCreated)
	resp, body := s.expect(t, call{method: "GET", path: "/a.txt"}, http.StatusOK)
	if body != "hello" {
		t.Errorf("GET body = %q", body)
	}
	if resp.Header.Get("ETag") == "" {
		t.Error("GET must set an ETag")
	}

	s.expect(t, call{method: "MKCOL", path: "/col"}, http.StatusCreated)
	s.expect(t, call{method: "MKCOL", path: "/col"}, http.StatusMethodNotAllowed)
	s.expect(t, call{method: "MKCOL", path: "/other", body: "x"}, http.StatusUnsupportedMediaType)
	s.expect(t, call{method: "GET", path: "/col"}, http.StatusMethodNotAllowed)

	s.expect(t, call{method: "COPY", path: "/a.txt", header: map[string]string{"Destination": "/col/b.txt"}}, http.StatusCreated)
	s.expect(t, call{method: "COPY", path: "/a.txt", header: map[string]string{"Destination": "/col/b.txt", "Overwrite": "F"}}, http.StatusPreconditionFailed)
	s.expect(t, call{method: "COPY", path: "/a.txt", header: map[string]string{"Destination": "/col/b.txt"}}, http.StatusNoContent)
	s.expect(t, call{method: "MOVE", path: "/col", header: map[string]string{"Destination": "/col/inner"}}, http.StatusForbidden)
	s.expect(t, call{method: "MOVE", path: "/col", header: map[string]string{"Destination": "/moved"}}, http.StatusCreated)

	_, body = s.expect(t, call{method: "GET", path: "/moved/b.txt"}, http.StatusOK)
	if body != "hello" {
		t.Errorf("moved content = %q", body)
	}

	s.expect(t, call{method: "GET", path: "/col/b.txt"}, http.StatusNotFound)
	s.expect(t, call{method: "DELETE", path: "/moved"}, http.StatusNoContent)
	s.expect(t, call{method: "DELETE", path: "/"}, http.StatusForbidden)
	s.expect(t, call{method: "DELETE", path: "/moved"}, http.StatusNotFound)
	s.expect(t, call{method: "TRACE", path: "/a.txt"}, http.StatusMethodNotAllowed)
}

func TestPropfind(t *testing.T) {
	s := newTestServer(t, "/", nil)
	s.put(t, "/doc.txt", "content")
	token := s.lock(t, "/doc.txt")

	_, body := s.expect(t, call{method: "PROPFIND", path: "/doc.txt"}, http.StatusMultiStatus)
	contains(t, body,
		"<D:href>/doc.txt</D:href>",
		"<D:getcontentlength>7</D:getcontentlength>",
		"<D:supportedlock>",
		"<D:lockdiscovery><D:activelock>",
		strings.Trim(token, "<>"),
		"HTTP/1.1 200 OK",
	)

	propfind := `<?xml version="1.0"?><D:propfind xmlns:D="DAV:"><D:prop><D:lockdiscovery/><D:displayname/></D:prop></D:propfind>`
	_, body = s.expect(t, call{method: "PROPFIND", path: "/doc.txt", body: propfind}, http.StatusMultiStatus)
	contains(t, body, "<D:lockdiscovery><D:activelock>", "<D:displayname></D:displayname>", "HTTP/1.1 404 Not Found")
	if strings.Contains(body, "<D:supportedlock>") {
		t.Error("only the requested properties must be returned")
	}

	s.expect(t, call{method: "PROPFIND", path: "/missing.txt"}, http.StatusNotFound)
	s.expect(t, call{method: "PROPFIND", path: "/doc.txt", body: "<nope"}, http.StatusBadRequest)
}

func TestProppatch(t *testing.T) {
	s := newTestServer(t, "/", nil)
	s.put(t, "/doc.txt", "content")

	patch := `<?xml version="1.0"?><D:propertyupdate xmlns:D="DAV:" xmlns:Z="urn:z"><D:set><D:prop><Z:color>red</Z:color></D:prop></D:set></D:propertyupdate>`
	_, body := s.expect(t, call{method: "PROPPATCH", path: "/doc.txt", body: patch}, http.StatusMultiStatus)
	contains(t, body, `<x:color xmlns:x="urn:z"></x:color>`, "HTTP/1.1 403 Forbidden")

	token := s.lock(t, "/doc.txt")
	s.expect(t, call{method: "PROPPATCH", path: "/doc.txt", body: patch}, StatusLocked)
	s.expect(t, call{method: "PROPPATCH", path: "/doc.txt", header: map[string]string{"If": "(" + token + ")"}, body: patch}, http.StatusMultiStatus)
}
