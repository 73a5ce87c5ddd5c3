package rbac

import (
	"fmt"
	"time"

	"github.com/oarkflow/rbac/logger"
)

// Observer receives one call per public decision. check names the query kind
// (for example "has_permission"); it must be cheap and safe for concurrent use.
type Observer interface {
	ObserveDecision(check string, allowed bool)
}

// Engine answers authorization questions over a Store. Every answer is
// computed from the current tables; nothing is cached. The engine never
// returns errors from a check: missing or ambiguous data means deny.
type Engine struct {
	store    *Store
	logger   logger.Logger
	observer Observer
	now      func() time.Time
}

type EngineOption func(*Engine) error

// WithLogger installs a Logger on the Engine.
func WithLogger(l logger.Logger) EngineOption {
	return func(e *Engine) error {
		if l == nil {
			return fmt.Errorf("nil logger")
		}
		e.logger = l
		return nil
	}
}

// WithObserver installs a decision observer, typically metrics.PrometheusObserver.
func WithObserver(o Observer) EngineOption {
	return func(e *Engine) error {
		e.observer = o
		return nil
	}
}

// WithClock overrides the time source used for report and decision timestamps.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) error {
		if now == nil {
			return fmt.Errorf("nil clock")
		}
		e.now = now
		return nil
	}
}

func NewEngine(store *Store, opts ...EngineOption) *Engine {
	if store == nil {
		store = NewStore()
	}
	e := &Engine{
		store:  store,
		logger: logger.NewNullLogger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			e.logger.Error("ignoring engine option", "error", err)
		}
	}
	return e
}

// Store returns the store the engine reads from.
func (e *Engine) Store() *Store { return e.store }

func (e *Engine) observe(check string, allowed bool) {
	if e.observer != nil {
		e.observer.ObserveDecision(check, allowed)
	}
}

// ============================================================================
// PERMISSION CHECKS
// ============================================================================

// HasPermission reports whether any of the identity's roles grants
// permissionID with both the role's and the permission's conditions holding
// under ac. An unknown permission id is logged and denied.
func (e *Engine) HasPermission(identity, permissionID string, ac *AccessContext) bool {
	s := e.store
	s.mu.RLock()
	ok, _ := e.checkLocked(identity, permissionID, ac, nil)
	s.mu.RUnlock()
	e.observe("has_permission", ok)
	return ok
}

// HasAnyPermission is the OR of HasPermission over permissionIDs. An empty
// list is denied.
func (e *Engine) HasAnyPermission(identity string, permissionIDs []string, ac *AccessContext) bool {
	s := e.store
	s.mu.RLock()
	ok := e.anyLocked(identity, permissionIDs, ac)
	s.mu.RUnlock()
	e.observe("has_any_permission", ok)
	return ok
}

// HasAllPermissions is the AND of HasPermission over permissionIDs. An empty
// list is denied rather than vacuously allowed.
func (e *Engine) HasAllPermissions(identity string, permissionIDs []string, ac *AccessContext) bool {
	s := e.store
	s.mu.RLock()
	ok := len(permissionIDs) > 0
	for _, pid := range permissionIDs {
		if granted, _ := e.checkLocked(identity, pid, ac, nil); !granted {
			ok = false
			break
		}
	}
	s.mu.RUnlock()
	e.observe("has_all_permissions", ok)
	return ok
}

// CanAccessResource resolves every permission granting action on resource and
// checks them as HasAnyPermission would. Callers use it to avoid depending on
// permission id naming.
func (e *Engine) CanAccessResource(identity, resource, action string, ac *AccessContext) bool {
	s := e.store
	s.mu.RLock()
	ids := s.byPair[resourceAction{resource: resource, action: action}]
	ok := e.anyLocked(identity, ids, ac)
	s.mu.RUnlock()
	e.observe("can_access_resource", ok)
	return ok
}

func (e *Engine) anyLocked(identity string, permissionIDs []string, ac *AccessContext) bool {
	for _, pid := range permissionIDs {
		if granted, _ := e.checkLocked(identity, pid, ac, nil); granted {
			return true
		}
	}
	return false
}

// checkLocked walks the identity's roles in assignment order and stops at the
// first role whose conditions and the permission's conditions all pass. When
// trace is non-nil every step is recorded. Caller holds the read lock.
func (e *Engine) checkLocked(identity, permissionID string, ac *AccessContext, trace *[]string) (bool, string) {
	s := e.store
	perm, ok := s.permissions[permissionID]
	if !ok {
		e.logger.Warn("permission check against unknown permission", "identity", identity, "permission", permissionID)
		appendTrace(trace, "permission=%s not_found", permissionID)
		return false, ""
	}
	roles := s.assignments[identity]
	if len(roles) == 0 {
		appendTrace(trace, "identity=%s has no roles", identity)
		return false, ""
	}
	// permission conditions do not depend on the role; evaluate at most once
	permState := 0
	for _, rid := range roles {
		role, ok := s.roles[rid]
		if !ok || !containsString(role.Permissions, permissionID) {
			appendTrace(trace, "role=%s does not grant %s", rid, permissionID)
			continue
		}
		if passed, idx := evaluateAll(role.Conditions, ac); !passed {
			appendTrace(trace, "role=%s condition failed: %s", rid, role.Conditions[idx].String())
			continue
		}
		if permState == 0 {
			permState = 1
			if passed, idx := evaluateAll(perm.Conditions, ac); !passed {
				permState = -1
				appendTrace(trace, "permission=%s condition failed: %s", permissionID, perm.Conditions[idx].String())
			}
		}
		if permState < 0 {
			continue
		}
		appendTrace(trace, "role=%s grants %s", rid, permissionID)
		return true, rid
	}
	return false, ""
}

func appendTrace(trace *[]string, format string, args ...any) {
	if trace == nil {
		return
	}
	*trace = append(*trace, fmt.Sprintf(format, args...))
}

// ============================================================================
// ROLE CHECKS
// ============================================================================

// HasRole is plain membership; conditions are not evaluated.
func (e *Engine) HasRole(identity, roleID string) bool {
	s := e.store
	s.mu.RLock()
	ok := containsString(s.assignments[identity], roleID)
	s.mu.RUnlock()
	e.observe("has_role", ok)
	return ok
}

func (e *Engine) HasAnyRole(identity string, roleIDs []string) bool {
	s := e.store
	s.mu.RLock()
	held := s.assignments[identity]
	ok := false
	for _, rid := range roleIDs {
		if containsString(held, rid) {
			ok = true
			break
		}
	}
	s.mu.RUnlock()
	e.observe("has_any_role", ok)
	return ok
}

// HasRoleHierarchy reports whether the identity's most senior role ranks at
// least requiredRank. An identity without roles ranks 0.
func (e *Engine) HasRoleHierarchy(identity string, requiredRank int) bool {
	ok := e.MaxHierarchy(identity) >= requiredRank
	e.observe("has_role_hierarchy", ok)
	return ok
}

// MaxHierarchy returns the highest hierarchy among the identity's roles, or 0.
func (e *Engine) MaxHierarchy(identity string) int {
	s := e.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	rank, found := 0, false
	for _, rid := range s.assignments[identity] {
		role, ok := s.roles[rid]
		if !ok {
			continue
		}
		if !found || role.Hierarchy > rank {
			rank, found = role.Hierarchy, true
		}
	}
	return rank
}

// ============================================================================
// BATCH
// ============================================================================

// CheckRequest is one entry of a BatchCheck. PermissionID wins when set;
// otherwise Resource and Action are resolved as in CanAccessResource.
type CheckRequest struct {
	Identity     string         `json:"identity"`
	PermissionID string         `json:"permission_id,omitempty"`
	Resource     string         `json:"resource,omitempty"`
	Action       string         `json:"action,omitempty"`
	Context      *AccessContext `json:"context,omitempty"`
}

// BatchCheck evaluates requests in order and returns one result per request.
func (e *Engine) BatchCheck(requests []CheckRequest) []bool {
	out := make([]bool, len(requests))
	for i, req := range requests {
		if req.PermissionID != "" {
			out[i] = e.HasPermission(req.Identity, req.PermissionID, req.Context)
			continue
		}
		out[i] = e.CanAccessResource(req.Identity, req.Resource, req.Action, req.Context)
	}
	return out
}
