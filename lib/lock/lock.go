package lock

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	// TokenPrefix is the URI scheme under which lock tokens are exposed on the wire.
	TokenPrefix = "opaquelocktoken:"

	// TimeoutInfinite marks a lock that never expires.
	TimeoutInfinite int64 = -1

	// MaxTimeout is the largest timeout in seconds a client may request (2^32-1).
	MaxTimeout int64 = 1<<32 - 1

	recordVersion = 1
)

var (
	ErrInvalidLockInfo = errors.New("invalid lock info")
	ErrInvalidRecord   = errors.New("invalid lock record")
)

// --------------------------------------------------------------------------
// Scope and Depth
// --------------------------------------------------------------------------

// Scope is the lock scope. The zero value is ScopeExclusive.
type Scope uint8

const (
	ScopeExclusive Scope = iota
	ScopeShared
)

func (s Scope) String() string {
	switch s {
	case ScopeExclusive:
		return "exclusive"
	case ScopeShared:
		return "shared"
	default:
		return fmt.Sprintf("Unknown(%d)", s)
	}
}

// ParseScope parses "exclusive" or "shared" (case-insensitive).
func ParseScope(s string) (Scope, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "exclusive", "":
		return ScopeExclusive, nil
	case "shared":
		return ScopeShared, nil
	default:
		return ScopeExclusive, fmt.Errorf("unknown lock scope %q", s)
	}
}

// Depth is the lock depth. DepthInfinity also covers all descendants.
type Depth uint8

const (
	DepthZero Depth = iota
	DepthInfinity
)

func (d Depth) String() string {
	if d == DepthZero {
		return "0"
	}
	return "infinity"
}

// ParseDepth interprets a Depth header for lock requests.
// An empty or unparsable value yields DepthInfinity, only "0" yields DepthZero.
func ParseDepth(s string) Depth {
	if strings.TrimSpace(s) == "0" {
		return DepthZero
	}
	return DepthInfinity
}

// --------------------------------------------------------------------------
// LockInfo
// --------------------------------------------------------------------------

// LockInfo describes one active lock.
type LockInfo struct {
	Owner   string `json:"owner"`
	Token   string `json:"token"`
	Timeout int64  `json:"timeout"` // seconds, TimeoutInfinite or 0 (unspecified)
	Created int64  `json:"created"` // epoch seconds
	Scope   Scope  `json:"scope"`
	Depth   Depth  `json:"depth"`
	URI     string `json:"uri"`
}

// NewLockInfo creates a lock record. The token must not be empty.
func NewLockInfo(owner, token string, scope Scope, depth Depth, uri string) (*LockInfo, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: empty token", ErrInvalidLockInfo)
	}
	if scope > ScopeShared {
		return nil, fmt.Errorf("%w: scope %d", ErrInvalidLockInfo, scope)
	}
	if depth > DepthInfinity {
		return nil, fmt.Errorf("%w: depth %d", ErrInvalidLockInfo, depth)
	}
	return &LockInfo{
		Owner: owner,
		Token: token,
		Scope: scope,
		Depth: depth,
		URI:   uri,
	}, nil
}

// NewToken generates a fresh lock token (a random UUID, without prefix).
func NewToken() string {
	return uuid.NewString()
}

// FormatToken returns the token with the opaquelocktoken scheme.
func (l *LockInfo) FormatToken() string {
	return TokenPrefix + l.Token
}

// CodedURL returns the token as it appears in Lock-Token and If headers.
func (l *LockInfo) CodedURL() string {
	return "<" + l.FormatToken() + ">"
}

// ExpiresAt returns the epoch second at which the lock expires, 0 for locks that never expire.
// The sum saturates at math.MaxInt64.
func (l *LockInfo) ExpiresAt() int64 {
	if l.Timeout == TimeoutInfinite || l.Timeout <= 0 {
		return 0
	}
	if l.Created > math.MaxInt64-l.Timeout {
		return math.MaxInt64
	}
	return l.Created + l.Timeout
}

// Expired reports whether the lock is no longer valid at the given time.
func (l *LockInfo) Expired(now int64) bool {
	exp := l.ExpiresAt()
	return exp != 0 && exp <= now
}

// Clone returns a copy that can be modified without affecting the original.
func (l *LockInfo) Clone() *LockInfo {
	c := *l
	return &c
}

func (l *LockInfo) String() string {
	return fmt.Sprintf("LockInfo{Token: %s, URI: %s, Scope: %s, Depth: %s, Timeout: %d, Owner: %q}",
		l.Token, l.URI, l.Scope, l.Depth, l.Timeout, l.Owner)
}

// --------------------------------------------------------------------------
// Binary Encoding
// --------------------------------------------------------------------------

// SizeBytes returns the exact number of bytes needed to serialize this lock:
// version + scope + depth (1 byte each), timeout + created (8 bytes each)
// and the owner, token and uri each prefixed by a 4 byte length.
func (l *LockInfo) SizeBytes() int {
	return 3 + 8 + 8 + 4*3 + len(l.Owner) + len(l.Token) + len(l.URI)
}

// Serialize encodes the lock into its binary record format (big endian).
func (l *LockInfo) Serialize() []byte {
	buf := make([]byte, l.SizeBytes())
	buf[0] = recordVersion
	buf[1] = byte(l.Scope)
	buf[2] = byte(l.Depth)
	binary.BigEndian.PutUint64(buf[3:11], uint64(l.Timeout))
	binary.BigEndian.PutUint64(buf[11:19], uint64(l.Created))

	off := 19
	for _, s := range []string{l.Owner, l.Token, l.URI} {
		binary.BigEndian.PutUint32(buf[off:off+4], uint32(len(s)))
		off += 4
		off += copy(buf[off:], s)
	}
	return buf
}

// Deserialize decodes a record produced by Serialize.
func (l *LockInfo) Deserialize(data []byte) error {
	if len(data) < 19+12 {
		return fmt.Errorf("%w: data too short", ErrInvalidRecord)
	}
	if data[0] != recordVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrInvalidRecord, data[0])
	}
	l.Scope = Scope(data[1])
	l.Depth = Depth(data[2])
	l.Timeout = int64(binary.BigEndian.Uint64(data[3:11]))
	l.Created = int64(binary.BigEndian.Uint64(data[11:19]))

	off := 19
	var fields [3]string
	for i := range fields {
		if len(data) < off+4 {
			return fmt.Errorf("%w: missing length of field %d", ErrInvalidRecord, i)
		}
		n := int(binary.BigEndian.Uint32(data[off : off+4]))
		off += 4
		if len(data) < off+n {
			return fmt.Errorf("%w: field %d of length %d exceeds data", ErrInvalidRecord, i, n)
		}
		fields[i] = string(data[off : off+n])
		off += n
	}
	l.Owner, l.Token, l.URI = fields[0], fields[1], fields[2]
	return nil
}

// Decode is a convenience wrapper around Deserialize.
func Decode(data []byte) (*LockInfo, error) {
	l := &LockInfo{}
	if err := l.Deserialize(data); err != nil {
		return nil, err
	}
	return l, nil
}
