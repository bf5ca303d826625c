package internal

// QueryType defines the possible queries for the state machine.
type QueryType uint8

const (
	QueryTGetLocks  QueryType = iota // Retrieve the locks that apply to a path.
	QueryTGetDBInfo                  // Retrieve metadata about the database underlying the machine.
)

func (q QueryType) String() string {
	switch q {
	case QueryTGetLocks:
		return "GetLocks"
	case QueryTGetDBInfo:
		return "GetDBInfo"
	default:
		return "Unknown"
	}
}

// Query defines the structure for lookup requests (read-only) sent via SyncRead or StaleRead.
// The result of QueryTGetLocks is a []*lock.LockInfo, of QueryTGetDBInfo a db.DatabaseInfo.
type Query struct {
	Type     QueryType // The type of Query to perform.
	Key      string    // The path for the Query (empty for some queries).
	Children bool      // Include locks on descendants of Key.
	Time     int64     // Reader's clock (epoch seconds) used for the expiry check.
}
