package lockmgr

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/ValentinKolb/davlock/lib/lock"
)

// lockDirect stores a lock without going through HandleLock
func (f *fixture) lockDirect(t *testing.T, uri, token string, scope lock.Scope, depth lock.Depth) *lock.LockInfo {
	t.Helper()
	l, err := lock.NewLockInfo("", token, scope, depth, "")
	if err != nil {
		t.Fatal(err)
	}
	if ok, err := f.store.Lock(uri, l); !ok || err != nil {
		t.Fatalf("Lock(%s, %s) = %v, %v", uri, token, ok, err)
	}
	return l
}

func validate(f *fixture, uri, ifHeader string, paths ...string) (ValidationResult, error) {
	h := http.Header{}
	if ifHeader != "" {
		h.Set("If", ifHeader)
	}
	return f.mgr.Validate(NewRequest(http.MethodPut, uri, h, nil), paths, false)
}

func TestValidate(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_ = f.tree.Mkdir(ctx, "/dir")
	_, _ = f.tree.Write(ctx, "/dir/doc.txt", strings.NewReader("content"))
	_, _ = f.tree.Write(ctx, "/free.txt", strings.NewReader("other content"))
	etag, err := f.tree.ETag(ctx, "/dir/doc.txt")
	if err != nil {
		t.Fatal(err)
	}

	// /dir carries an inherited lock, /dir/doc.txt two shared locks of its own
	f.lockDirect(t, "/dir", "dirtok", lock.ScopeShared, lock.DepthInfinity)
	f.lockDirect(t, "/dir/doc.txt", "a", lock.ScopeShared, lock.DepthZero)
	f.lockDirect(t, "/dir/doc.txt", "b", lock.ScopeShared, lock.DepthZero)

	const p = "/dir/doc.txt"
	tok := func(s string) string { return "<" + lock.TokenPrefix + s + ">" }

	tests := []struct {
		name        string
		uri         string
		ifHeader    string
		paths       []string
		wantOutcome Outcome
		wantLock    string // token of the reported lock, "" for none
	}{
		{
			name: "no conditions and no locks", uri: "/free.txt",
			paths: []string{"/free.txt"}, wantOutcome: OutcomeAllowed,
		},
		{
			name: "no conditions with locks", uri: p,
			paths: []string{p}, wantOutcome: OutcomeDenied, wantLock: "dirtok",
		},
		{
			name: "all tokens as alternatives of one condition", uri: p,
			ifHeader: "(" + tok("dirtok") + ") (" + tok("a") + ") (" + tok("b") + ")",
			paths:    []string{p}, wantOutcome: OutcomeDenied, wantLock: "a",
		},
		{
			name: "all tokens as separate conditions", uri: p,
			ifHeader: "<" + p + "> (" + tok("dirtok") + ") <" + p + "> (" + tok("a") + ") <" + p + "> (" + tok("b") + ")",
			paths:    []string{p}, wantOutcome: OutcomeAllowed, wantLock: "b",
		},
		{
			name: "one of three tokens", uri: p,
			ifHeader: "(" + tok("a") + ")",
			paths:    []string{p}, wantOutcome: OutcomeDenied, wantLock: "dirtok",
		},
		{
			name: "unknown token", uri: p,
			ifHeader: "(" + tok("zzz") + ")",
			paths:    []string{p}, wantOutcome: OutcomePreconditionFailed,
		},
		{
			name: "matching etag without token", uri: "/dir/doc.txt",
			ifHeader: "([" + etag + "])",
			paths:    []string{p}, wantOutcome: OutcomeDenied, wantLock: "dirtok",
		},
		{
			name: "wrong etag", uri: p,
			ifHeader: `(["nope"])`,
			paths:    []string{p}, wantOutcome: OutcomePreconditionFailed,
		},
		{
			name: "token with wrong etag", uri: "/free.txt",
			ifHeader: "(" + tok("zzz") + ` ["nope"])`,
			paths:    []string{"/free.txt"}, wantOutcome: OutcomePreconditionFailed,
		},
		{
			name: "etag of the condition uri", uri: "/free.txt",
			ifHeader: "<" + p + "> ([" + etag + "])",
			paths:    []string{p}, wantOutcome: OutcomeDenied, wantLock: "dirtok",
		},
		{
			name: "etag of missing resource", uri: "/missing.txt",
			ifHeader: `(["x"])`,
			paths:    []string{"/missing.txt"}, wantOutcome: OutcomePreconditionFailed,
		},
		{
			name: "condition for another resource is skipped", uri: p,
			ifHeader: "</free.txt> (" + tok("zzz") + ")",
			paths:    []string{p}, wantOutcome: OutcomeDenied, wantLock: "dirtok",
		},
		{
			name: "condition on an ancestor applies", uri: "/free.txt",
			ifHeader: "</dir> (" + tok("dirtok") + ") </dir> (" + tok("a") + ") </dir> (" + tok("b") + ")",
			paths:    []string{p}, wantOutcome: OutcomeAllowed, wantLock: "b",
		},
		{
			name: "absolute condition uri", uri: "/free.txt",
			ifHeader: "<http://localhost/dir> (" + tok("dirtok") + ")",
			paths:    []string{"/dir"}, wantOutcome: OutcomeAllowed, wantLock: "dirtok",
		},
		{
			name: "first failing path decides", uri: "/free.txt",
			paths:       []string{"/free.txt", p, "/dir"},
			wantOutcome: OutcomeDenied, wantLock: "dirtok",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := validate(f, tt.uri, tt.ifHeader, tt.paths...)

			if tt.wantOutcome == OutcomePreconditionFailed {
				lerr := expectKind(t, err, KindPreconditionFailed)
				if lerr.Header != "If" {
					t.Errorf("header = %q, want If", lerr.Header)
				}
				if res.Outcome != OutcomePreconditionFailed {
					t.Errorf("outcome = %s, want PreconditionFailed", res.Outcome)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate: %v", err)
			}
			if res.Outcome != tt.wantOutcome {
				t.Fatalf("outcome = %s, want %s", res.Outcome, tt.wantOutcome)
			}
			got := ""
			if res.Lock != nil {
				got = res.Lock.Token
			}
			if got != tt.wantLock {
				t.Errorf("reported lock = %q, want %q", got, tt.wantLock)
			}
		})
	}
}

func TestValidateIsRepeatable(t *testing.T) {
	f := newFixture(t, nil)
	f.lockDirect(t, "/doc.txt", "a", lock.ScopeShared, lock.DepthZero)
	f.lockDirect(t, "/doc.txt", "b", lock.ScopeShared, lock.DepthZero)

	for _, header := range []string{"", ifToken("a"), ifToken("zzz"), "<http://x/doc.txt> (<opaquelocktoken:a>) </doc.txt> (<opaquelocktoken:b>)"} {
		first, err1 := validate(f, "/doc.txt", header, "/doc.txt")
		second, err2 := validate(f, "/doc.txt", header, "/doc.txt")
		if first.Outcome != second.Outcome || (err1 == nil) != (err2 == nil) {
			t.Errorf("If %q: outcomes differ (%s/%v vs %s/%v)", header, first.Outcome, err1, second.Outcome, err2)
		}
		if locks := f.locksOn(t, "/doc.txt"); len(locks) != 2 {
			t.Fatalf("Validate must not modify the store, got %v", locks)
		}
	}
}

func TestValidateNegatedTokens(t *testing.T) {
	f := newFixture(t, nil)
	f.lockDirect(t, "/dir", "outer", lock.ScopeShared, lock.DepthInfinity)
	f.lockDirect(t, "/dir/doc.txt", "inner", lock.ScopeShared, lock.DepthZero)
	f.lockDirect(t, "/single.txt", "only", lock.ScopeExclusive, lock.DepthZero)

	t.Run("negated other token holds", func(t *testing.T) {
		// the condition holds, but the lock itself was not submitted
		res, err := validate(f, "/single.txt", "(Not <opaquelocktoken:other>)", "/single.txt")
		if err != nil {
			t.Fatalf("Validate: %v", err)
		}
		if res.Outcome != OutcomeDenied || res.Lock.Token != "only" {
			t.Errorf("got %s with %v, want Denied by only", res.Outcome, res.Lock)
		}
	})

	t.Run("negated other token plus submitted lock", func(t *testing.T) {
		header := "</single.txt> (Not <opaquelocktoken:other>) </single.txt> (<opaquelocktoken:only>)"
		res, err := validate(f, "/single.txt", header, "/single.txt")
		if err != nil || res.Outcome != OutcomeAllowed {
			t.Errorf("got %s, %v; want Allowed", res.Outcome, err)
		}
	})

	t.Run("negated token of the only lock fails", func(t *testing.T) {
		_, err := validate(f, "/single.txt", "(Not <opaquelocktoken:only>)", "/single.txt")
		if !errors.Is(err, ErrPreconditionFailed) {
			t.Errorf("expected PreconditionFailed, got %v", err)
		}
	})

	t.Run("negated token holds on first divergent lock", func(t *testing.T) {
		// locks on /dir/doc.txt are [outer, inner]. The negated token names
		// inner, but outer differs and is checked first, so the condition holds
		// although a lock with the negated token exists. Both locks remain.
		res, err := validate(f, "/dir/doc.txt", "(Not <opaquelocktoken:inner>)", "/dir/doc.txt")
		if err != nil {
			t.Fatalf("first divergence must satisfy the negation, got %v", err)
		}
		if res.Outcome != OutcomeDenied || res.Lock.Token != "outer" {
			t.Errorf("got %s with %v, want Denied by outer", res.Outcome, res.Lock)
		}
	})

	t.Run("negated token without locks fails", func(t *testing.T) {
		_, err := validate(f, "/nothing.txt", "(Not <opaquelocktoken:x>)", "/nothing.txt")
		if !errors.Is(err, ErrPreconditionFailed) {
			t.Errorf("expected PreconditionFailed, got %v", err)
		}
	})
}

func TestValidateChildLocks(t *testing.T) {
	f := newFixture(t, nil)
	f.lockDirect(t, "/dir/sub/doc.txt", "child", lock.ScopeExclusive, lock.DepthZero)

	req := NewRequest("MOVE", "/dir", nil, nil)
	if res, err := f.mgr.Validate(req, []string{"/dir"}, false); err != nil || !res.Allowed() {
		t.Errorf("without child locks: %s, %v", res.Outcome, err)
	}
	res, err := f.mgr.Validate(req, []string{"/dir"}, true)
	if err != nil || res.Outcome != OutcomeDenied || res.Lock.Token != "child" {
		t.Errorf("with child locks: %s, %v, %v", res.Outcome, res.Lock, err)
	}
}
