package lockmgr

import (
	"context"
	"encoding/xml"
	"errors"
	"net/http"

	"github.com/ValentinKolb/davlock/lib/lock"
	"github.com/ValentinKolb/davlock/lib/store"
	"github.com/ValentinKolb/davlock/lib/tree"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("lockmgr")

// Config configures a LockManager.
type Config struct {
	BaseURI        string // URL path prefix the resource tree is served under (default "/")
	DefaultTimeout int64  // seconds, applied to locks requested without Timeout header (default 1800)
}

// LockManager coordinates lock store, resource tree and hooks for the lock
// related parts of WebDAV requests. It keeps no state of its own, all locks
// live in the store.
type LockManager struct {
	store store.ILockStore
	tree  tree.ITree
	hooks IHooks
	cfg   Config
}

// NewLockManager creates a lock manager. A nil lockStore disables locking,
// a nil hooks value allows every operation.
func NewLockManager(lockStore store.ILockStore, resources tree.ITree, hooks IHooks, cfg Config) *LockManager {
	if hooks == nil {
		hooks = NopHooks{}
	}
	if cfg.BaseURI == "" {
		cfg.BaseURI = "/"
	}
	if cfg.DefaultTimeout == 0 {
		cfg.DefaultTimeout = store.DefaultLockTimeout
	}
	return &LockManager{
		store: lockStore,
		tree:  resources,
		hooks: hooks,
		cfg:   cfg,
	}
}

// Config returns the effective configuration.
func (m *LockManager) Config() Config {
	return m.cfg
}

// --------------------------------------------------------------------------
// Interface Methods (docs see ILockManager)
// --------------------------------------------------------------------------

func (m *LockManager) BeforeMethod(req *Request) error {
	var (
		res ValidationResult
		err error
	)

	switch req.Method {
	case http.MethodDelete, "MKCOL", "PROPPATCH", http.MethodPut:
		res, err = m.Validate(req, []string{req.URI}, false)
	case "MOVE":
		dest, derr := m.destination(req)
		if derr != nil {
			return derr
		}
		res, err = m.Validate(req, []string{req.URI, dest}, true)
	case "COPY":
		dest, derr := m.destination(req)
		if derr != nil {
			return derr
		}
		res, err = m.Validate(req, []string{dest}, true)
	default:
		return nil
	}

	if err != nil {
		return err
	}
	if !res.Allowed() {
		deniedLocked.Inc()
		log.Debugf("%s %s denied by lock %s", req.Method, req.URI, res.Lock)
		return lockedError(res.Lock)
	}
	return nil
}

func (m *LockManager) HandleLock(req *Request) (*LockResponse, error) {
	if m.store == nil {
		return nil, NewError(KindMethodNotAllowed, "locking is not enabled, no lock store is configured")
	}
	uri := req.URI

	res, err := m.Validate(req, []string{uri}, false)
	if err != nil {
		return nil, err
	}
	lastLock := res.Lock
	if !res.Allowed() && (lastLock == nil || lastLock.Scope == lock.ScopeExclusive) {
		deniedConflict.Inc()
		return nil, conflictingLockError(lastLock)
	}

	var (
		info    *lock.LockInfo
		refresh bool
	)
	switch {
	case req.HasBody():
		if info, err = ParseLockRequest(req.Body); err != nil {
			return nil, err
		}
		info.Depth = lock.ParseDepth(req.Header.Get("Depth"))
		info.URI = uri
		if lastLock != nil && info.Scope != lock.ScopeShared {
			deniedConflict.Inc()
			return nil, conflictingLockError(lastLock)
		}
	case lastLock != nil:
		// the lock may be refreshed through a path below its registration path
		info = lastLock.Clone()
		uri = info.URI
		refresh = true
	default:
		return nil, NewError(KindBadRequest, "an xml body is required for lock requests")
	}

	timeout, err := ParseTimeout(req.Header.Get("Timeout"))
	if err != nil {
		return nil, err
	}
	if timeout != 0 {
		info.Timeout = timeout
	}
	if info.Timeout == 0 {
		info.Timeout = m.cfg.DefaultTimeout
	}

	created, err := m.ensureResource(uri)
	if err != nil {
		return nil, err
	}

	if err := m.lockNode(uri, info, refresh); err != nil {
		return nil, err
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	return &LockResponse{
		Status:  status,
		Lock:    info,
		Created: created,
		Body:    LockResponseBody(m.cfg.BaseURI, info),
	}, nil
}

func (m *LockManager) HandleUnlock(req *Request) (int, error) {
	if m.store == nil {
		return 0, NewError(KindMethodNotAllowed, "locking is not enabled, no lock store is configured")
	}
	header := req.Header.Get("Lock-Token")
	if header == "" {
		return 0, NewError(KindBadRequest, "no lock token was supplied")
	}
	token := normalizeLockToken(header)

	locks, err := m.store.GetLocks(req.URI, false)
	if err != nil {
		return 0, err
	}
	for _, l := range locks {
		if l.CodedURL() != token {
			continue
		}
		if !m.hooks.BeforeUnlock(req.URI, l) {
			hookVetoes.Inc()
			log.Infof("unlock of %s on %s vetoed", l.Token, req.URI)
			return http.StatusNoContent, nil
		}
		// inherited locks are removed from the path they are registered on
		if _, err := m.store.Unlock(l.URI, l); err != nil {
			return 0, err
		}
		locksReleased.Inc()
		log.Debugf("released lock %s", l)
		return http.StatusNoContent, nil
	}

	return 0, NewError(KindLockTokenMatchesRequestURI, "the lock token does not match any lock on the request uri")
}

func (m *LockManager) AfterGetProperties(path string, names []xml.Name) (map[xml.Name]Property, error) {
	props := make(map[xml.Name]Property, 2)
	for _, name := range names {
		switch name {
		case PropSupportedLock:
			inner := ""
			if m.store != nil {
				inner = supportedLockXML
			}
			props[name] = Property{Name: name, InnerXML: inner}
		case PropLockDiscovery:
			locks, err := m.GetLocks(path, false)
			if err != nil {
				return nil, err
			}
			props[name] = Property{Name: name, InnerXML: LockDiscoveryXML(m.cfg.BaseURI, locks)}
		}
	}
	return props, nil
}

func (m *LockManager) GetLocks(path string, returnChildLocks bool) ([]*lock.LockInfo, error) {
	if m.store == nil {
		return nil, nil
	}
	return m.store.GetLocks(path, returnChildLocks)
}

func (m *LockManager) Features() []string {
	if m.store == nil {
		return nil
	}
	return []string{"1", "2"}
}

func (m *LockManager) AllowedMethods() []string {
	if m.store == nil {
		return nil
	}
	return []string{"LOCK", "UNLOCK"}
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

// destination resolves the Destination header of MOVE and COPY requests.
func (m *LockManager) destination(req *Request) (string, error) {
	dest := req.Header.Get("Destination")
	if dest == "" {
		return "", NewError(KindBadRequest, "the destination header was not supplied")
	}
	return ResolveURI(m.cfg.BaseURI, dest)
}

// ensureResource creates an empty resource at uri if there is none and reports whether it did.
func (m *LockManager) ensureResource(uri string) (bool, error) {
	ctx := context.Background()
	ok, err := m.tree.Exists(ctx, uri)
	if err != nil {
		return false, err
	}
	if ok {
		return false, nil
	}
	if !m.hooks.BeforeWriteContent(uri) {
		hookVetoes.Inc()
		log.Infof("creation of %s vetoed", uri)
		return false, nil
	}
	if err := m.tree.CreateEmpty(ctx, uri); err != nil {
		if errors.Is(err, tree.ErrConflict) {
			return false, &Error{Kind: KindConflict, Msg: err.Error()}
		}
		return false, err
	}
	return true, nil
}

// lockNode stores info on uri unless a hook vetoes it.
func (m *LockManager) lockNode(uri string, info *lock.LockInfo, refresh bool) error {
	if !m.hooks.BeforeLock(uri, info) {
		hookVetoes.Inc()
		log.Infof("lock on %s vetoed", uri)
		return nil
	}
	ok, err := m.store.Lock(uri, info)
	if err != nil {
		return err
	}
	if !ok {
		// a concurrent request took the path between validation and storage
		deniedConflict.Inc()
		var current *lock.LockInfo
		if locks, err := m.store.GetLocks(uri, false); err == nil && len(locks) > 0 {
			current = locks[0]
		}
		return conflictingLockError(current)
	}
	if refresh {
		locksRefreshed.Inc()
		log.Debugf("refreshed lock %s", info)
	} else {
		locksCreated.Inc()
		log.Debugf("created lock %s", info)
	}
	return nil
}
