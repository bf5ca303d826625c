package lockmgr

import "github.com/VictoriaMetrics/metrics"

var (
	locksCreated   = metrics.NewCounter("davlock_locks_created_total")
	locksRefreshed = metrics.NewCounter("davlock_locks_refreshed_total")
	locksReleased  = metrics.NewCounter("davlock_locks_released_total")
	hookVetoes     = metrics.NewCounter("davlock_hook_vetoes_total")

	deniedLocked       = metrics.NewCounter(`davlock_requests_denied_total{reason="locked"}`)
	deniedConflict     = metrics.NewCounter(`davlock_requests_denied_total{reason="conflict"}`)
	deniedPrecondition = metrics.NewCounter(`davlock_requests_denied_total{reason="precondition"}`)
)
