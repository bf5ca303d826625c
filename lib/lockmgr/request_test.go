package lockmgr

import (
	"errors"
	"testing"

	"github.com/ValentinKolb/davlock/lib/lock"
)

func TestResolveURI(t *testing.T) {
	tests := []struct {
		name    string
		base    string
		uri     string
		want    string
		wantErr error
	}{
		{"root base", "/", "/doc.txt", "/doc.txt", nil},
		{"trailing slash trimmed", "/", "/dir/", "/dir", nil},
		{"root itself", "/", "/", "/", nil},
		{"sub base", "/dav/", "/dav/a/b.txt", "/a/b.txt", nil},
		{"base without slash", "/dav", "/dav/a", "/a", nil},
		{"base accessed without slash", "/dav/", "/dav", "/", nil},
		{"absolute url", "/dav/", "http://example.com/dav/a%20b.txt", "/a b.txt", nil},
		{"double slashes", "/dav/", "/dav//a//b", "/a/b", nil},
		{"percent decoded", "/", "/f%C3%BCr.txt", "/für.txt", nil},
		{"outside of base", "/dav/", "/other/a", "", ErrForbidden},
		{"absolute url outside of base", "/dav/", "https://example.com/x", "", ErrForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveURI(tt.base, tt.uri)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ResolveURI(%q, %q) error = %v, want %v", tt.base, tt.uri, err, tt.wantErr)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("ResolveURI(%q, %q) = %q, %v; want %q", tt.base, tt.uri, got, err, tt.want)
			}
		})
	}
}

func TestHrefFor(t *testing.T) {
	tests := []struct {
		base, path, want string
	}{
		{"/", "/doc.txt", "/doc.txt"},
		{"/dav/", "/doc.txt", "/dav/doc.txt"},
		{"/dav", "/", "/dav"},
		{"/", "/a b.txt", "/a%20b.txt"},
	}
	for _, tt := range tests {
		if got := HrefFor(tt.base, tt.path); got != tt.want {
			t.Errorf("HrefFor(%q, %q) = %q, want %q", tt.base, tt.path, got, tt.want)
		}
	}
}

func TestParseTimeout(t *testing.T) {
	tests := []struct {
		header  string
		want    int64
		wantErr bool
	}{
		{"", 0, false},
		{"Second-3600", 3600, false},
		{"second-60", 60, false},
		{"SECOND-1", 1, false},
		{"Infinite", lock.TimeoutInfinite, false},
		{"infinite", lock.TimeoutInfinite, false},
		{"Second-60, Infinite", 60, false},
		{"Infinite, Second-4100000000", lock.TimeoutInfinite, false},
		{"Second-", 0, true},
		{"Second-abc", 0, true},
		{"Second--5", 0, true},
		{"Second-4294967295", lock.MaxTimeout, false},
		{"Second-4294967296", 0, true},
		{"Second-9223372036854775000", 0, true},
		{"60", 0, true},
		{"forever", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			got, err := ParseTimeout(tt.header)
			if tt.wantErr {
				if !errors.Is(err, ErrBadRequest) {
					t.Fatalf("ParseTimeout(%q) error = %v, want BadRequest", tt.header, err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("ParseTimeout(%q) = %d, %v; want %d", tt.header, got, err, tt.want)
			}
		})
	}
}

func TestParseLockRequest(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantScope lock.Scope
		wantOwner string
		wantErr   bool
	}{
		{
			name:      "exclusive with plain owner",
			body:      `<?xml version="1.0"?><d:lockinfo xmlns:d="DAV:"><d:lockscope><d:exclusive/></d:lockscope><d:locktype><d:write/></d:locktype><d:owner>alice</d:owner></d:lockinfo>`,
			wantScope: lock.ScopeExclusive,
			wantOwner: "alice",
		},
		{
			name:      "shared with href owner",
			body:      `<lockinfo xmlns="DAV:"><lockscope><shared/></lockscope><locktype><write/></locktype><owner><href>mailto:bob@example.com</href></owner></lockinfo>`,
			wantScope: lock.ScopeShared,
			wantOwner: "mailto:bob@example.com",
		},
		{
			name:      "missing scope is shared",
			body:      `<D:lockinfo xmlns:D="DAV:"><D:locktype><D:write/></D:locktype></D:lockinfo>`,
			wantScope: lock.ScopeShared,
			wantOwner: "",
		},
		{
			name:    "malformed xml",
			body:    `<D:lockinfo xmlns:D="DAV:"><D:lockscope>`,
			wantErr: true,
		},
		{
			name:    "wrong root element",
			body:    `<D:propfind xmlns:D="DAV:"/>`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := ParseLockRequest([]byte(tt.body))
			if tt.wantErr {
				if !errors.Is(err, ErrBadRequest) {
					t.Fatalf("expected BadRequest, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseLockRequest: %v", err)
			}
			if info.Scope != tt.wantScope {
				t.Errorf("scope = %s, want %s", info.Scope, tt.wantScope)
			}
			if info.Owner != tt.wantOwner {
				t.Errorf("owner = %q, want %q", info.Owner, tt.wantOwner)
			}
			if info.Token == "" {
				t.Error("a fresh token must be generated")
			}
		})
	}

	a, _ := ParseLockRequest([]byte(`<lockinfo xmlns="DAV:"/>`))
	b, _ := ParseLockRequest([]byte(`<lockinfo xmlns="DAV:"/>`))
	if a.Token == b.Token {
		t.Error("tokens must be unique")
	}
}

func TestRequestHasBody(t *testing.T) {
	tests := []struct {
		body string
		want bool
	}{
		{"", false},
		{" \n\t", false},
		{"<lockinfo/>", true},
	}
	for _, tt := range tests {
		if got := NewRequest("LOCK", "/", nil, []byte(tt.body)).HasBody(); got != tt.want {
			t.Errorf("HasBody(%q) = %v, want %v", tt.body, got, tt.want)
		}
	}
}
