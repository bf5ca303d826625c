package db

import (
	"io"
	"strings"
)

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

type Implementation string

const (
	ImplMaple Implementation = "maple"
)

// Feature represents database features as bit flags
type Feature uint64

const (
	FeaturePut            Feature = 1 << iota // Support for Put operations
	FeatureConditionalPut                     // Support for Put operations guarded by a PutCondition
	FeatureGet                                // Support for Get operations
	FeatureScan                               // Support for Scan operations
	FeatureDelete                             // Support for Delete operations
	FeatureSave                               // Support for Save operations
	FeatureLoad                               // Support for Load operations
	FeatureGarbageCollect                     // Support for background removal of expired records
)

func (f Feature) String() string {
	switch f {
	case FeaturePut:
		return "Put"
	case FeatureConditionalPut:
		return "ConditionalPut"
	case FeatureGet:
		return "Get"
	case FeatureScan:
		return "Scan"
	case FeatureDelete:
		return "Delete"
	case FeatureSave:
		return "Save"
	case FeatureLoad:
		return "Load"
	case FeatureGarbageCollect:
		return "GarbageCollect"
	default:
		return "Unknown"
	}
}

type DatabaseInfo struct {
	SizeBytes         int            `json:"size_bytes"`
	DbType            Implementation `json:"db_type"`
	SupportedFeatures []Feature      `json:"supported_features"`
	Metadata          interface{}    `json:"metadata"`
}

// Record is one row of the lock table. Records are identified by (Path, Token).
type Record struct {
	Path     string `json:"path"`
	Token    string `json:"token"`
	Value    []byte `json:"value"`
	ExpireAt uint64 `json:"expire_at"` // epoch seconds, 0 = never
}

// Expired reports whether the record is no longer visible at the given time.
func (r Record) Expired(now uint64) bool {
	return r.ExpireAt != 0 && now >= r.ExpireAt
}

// PutCondition is evaluated atomically against the live records of a path
// before a Put is applied. Returning false rejects the Put.
type PutCondition func(existing []Record) bool

// ScanMode selects which paths a Scan visits. Modes can be combined with |.
type ScanMode uint8

const (
	ScanExact       ScanMode = 1 << iota // the path itself
	ScanAncestors                        // all strict ancestors of the path
	ScanDescendants                      // all paths below the path
)

// --------------------------------------------------------------------------
// Database Interface
// --------------------------------------------------------------------------

// KVDB defines an interface for path indexed lock tables.
// Every path holds an ordered list of records, each identified by a token.
// Implementations can vary in their feature support, which can be queried with SupportsFeature.
type KVDB interface {

	// --------------------------------------------------------------------------
	// Write Operations
	// --------------------------------------------------------------------------

	// Put inserts rec or replaces the record with the same token on rec.Path.
	// A replaced record keeps its position in the path's record list.
	// If cond is not nil it is called with the live records of the path and the
	// Put is only applied if it returns true. The check and the write are atomic.
	// The writeTime parameter advances the database clock.
	Put(rec Record, writeTime uint64, cond PutCondition) (ok bool)

	// Delete removes the record with the given token from path.
	// It returns whether a live record was removed.
	Delete(path, token string, writeTime uint64) (ok bool)

	// --------------------------------------------------------------------------
	// Query Operations
	// --------------------------------------------------------------------------

	// Get returns the record with the given token on path if it is live at now.
	Get(path, token string, now uint64) (rec Record, loaded bool)

	// Scan returns all records live at now on the paths selected by mode.
	// Ancestors are returned root first, then the path itself, then
	// descendants ordered by path. Records of one path keep their insertion order.
	Scan(path string, mode ScanMode, now uint64) (recs []Record)

	// --------------------------------------------------------------------------
	// Persistence Operations
	// --------------------------------------------------------------------------

	// Save persists the current state of the database to the provided io.Writer.
	Save(w io.Writer) (err error)

	// Load restores the database state data provided by an io.Reader.
	Load(r io.Reader) (err error)

	// --------------------------------------------------------------------------
	// Feature Support
	// --------------------------------------------------------------------------

	// SupportsFeature checks if the database implementation supports the specified feature.
	// Multiple features can be checked at once using bitwise OR (|) operator.
	SupportsFeature(feature Feature) (ok bool)

	// GetInfo returns information about the database.
	GetInfo() (info DatabaseInfo)

	// --------------------------------------------------------------------------
	// Clock Operations
	// --------------------------------------------------------------------------

	// SetClock advances the database clock (epoch seconds) if t is greater than the current value.
	// The clock drives the garbage collection of expired records.
	SetClock(t uint64)

	// Clock returns the current database clock.
	Clock() (t uint64)

	// Close closes the database.
	Close() (err error)
}

// --------------------------------------------------------------------------
// Path Helpers
// --------------------------------------------------------------------------

// Ancestors returns the strict ancestors of a slash-rooted path, root first.
// Ancestors("/a/b") is ["/", "/a"]; the root has no ancestors.
func Ancestors(path string) []string {
	if path == "/" || path == "" {
		return nil
	}
	res := []string{"/"}
	for i := 1; i < len(path); i++ {
		if path[i] == '/' {
			res = append(res, path[:i])
		}
	}
	return res
}

// IsDescendant reports whether child lies strictly below parent.
func IsDescendant(parent, child string) bool {
	if parent == "/" {
		return child != "/" && strings.HasPrefix(child, "/")
	}
	return strings.HasPrefix(child, parent+"/")
}
