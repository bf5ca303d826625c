package policy

import (
	"context"
	"fmt"
	"os"

	"github.com/ValentinKolb/davlock/lib/lock"
	"github.com/ValentinKolb/davlock/lib/lockmgr"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/open-policy-agent/opa/rego"
)

// DefaultQuery is the decision evaluated when no query is given.
const DefaultQuery = "data.davlock.allow"

var log = logger.GetLogger("policy")

// Actions passed as input.action
const (
	ActionLock   = "lock"
	ActionUnlock = "unlock"
	ActionWrite  = "write"
)

// RegoHooks implements lockmgr.IHooks by evaluating a rego policy.
// Only a decision of exactly true allows an operation. Undefined decisions,
// non boolean results and evaluation errors veto it.
type RegoHooks struct {
	query rego.PreparedEvalQuery
	name  string
}

var _ lockmgr.IHooks = (*RegoHooks)(nil)

// NewRegoHooks compiles module and prepares query for evaluation.
func NewRegoHooks(ctx context.Context, module, query string) (*RegoHooks, error) {
	return newRegoHooks(ctx, "policy.rego", module, query)
}

// LoadRegoHooks reads a rego module from file.
func LoadRegoHooks(ctx context.Context, file, query string) (*RegoHooks, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy: %w", err)
	}
	return newRegoHooks(ctx, file, string(data), query)
}

func newRegoHooks(ctx context.Context, name, module, query string) (*RegoHooks, error) {
	if query == "" {
		query = DefaultQuery
	}
	prepared, err := rego.New(
		rego.Query(query),
		rego.Module(name, module),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare policy %s: %w", name, err)
	}
	return &RegoHooks{query: prepared, name: name}, nil
}

// --------------------------------------------------------------------------
// Interface Methods (docs see lockmgr.IHooks)
// --------------------------------------------------------------------------

func (h *RegoHooks) BeforeLock(path string, info *lock.LockInfo) bool {
	return h.allow(lockInput(ActionLock, path, info))
}

func (h *RegoHooks) BeforeUnlock(path string, info *lock.LockInfo) bool {
	return h.allow(lockInput(ActionUnlock, path, info))
}

func (h *RegoHooks) BeforeWriteContent(path string) bool {
	return h.allow(map[string]interface{}{
		"action": ActionWrite,
		"path":   path,
	})
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

func lockInput(action, path string, info *lock.LockInfo) map[string]interface{} {
	return map[string]interface{}{
		"action":  action,
		"path":    path,
		"owner":   info.Owner,
		"scope":   info.Scope.String(),
		"depth":   info.Depth.String(),
		"timeout": info.Timeout,
	}
}

func (h *RegoHooks) allow(input map[string]interface{}) bool {
	results, err := h.query.Eval(context.Background(), rego.EvalInput(input))
	if err != nil {
		log.Errorf("evaluation of %s failed for %v: %v", h.name, input, err)
		return false
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		log.Debugf("policy %s undefined for %s %v", h.name, input["action"], input["path"])
		return false
	}
	allowed, ok := results[0].Expressions[0].Value.(bool)
	if !ok {
		log.Warningf("policy %s returned %T instead of a boolean", h.name, results[0].Expressions[0].Value)
		return false
	}
	return allowed
}
