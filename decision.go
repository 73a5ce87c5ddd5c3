package rbac

import (
	"fmt"
	"time"
)

// Decision is the explained form of a permission check.
type Decision struct {
	Allowed   bool      `json:"allowed"`
	Reason    string    `json:"reason"`
	MatchedBy string    `json:"matched_by,omitempty"` // role id that granted access
	Trace     []string  `json:"trace"`
	Timestamp time.Time `json:"timestamp"`
}

// Explain runs the same evaluation as HasPermission and records why it
// allowed or denied.
func (e *Engine) Explain(identity, permissionID string, ac *AccessContext) *Decision {
	d := &Decision{Trace: make([]string, 0), Timestamp: e.now()}
	s := e.store
	s.mu.RLock()
	d.Allowed, d.MatchedBy = e.checkLocked(identity, permissionID, ac, &d.Trace)
	_, known := s.permissions[permissionID]
	roleCount := len(s.assignments[identity])
	s.mu.RUnlock()
	switch {
	case d.Allowed:
		d.Reason = "role grant"
	case !known:
		d.Reason = "unknown permission"
	case roleCount == 0:
		d.Reason = "no roles assigned"
	default:
		d.Reason = "no role grants permission under context"
	}
	e.observe("has_permission", d.Allowed)
	return d
}

// ExplainResource explains CanAccessResource. The trace covers every
// candidate permission up to the first that is granted.
func (e *Engine) ExplainResource(identity, resource, action string, ac *AccessContext) *Decision {
	d := &Decision{Trace: make([]string, 0), Timestamp: e.now()}
	s := e.store
	s.mu.RLock()
	ids := s.byPair[resourceAction{resource: resource, action: action}]
	if len(ids) == 0 {
		d.Trace = append(d.Trace, fmt.Sprintf("no permission grants %s on %s", action, resource))
	}
	for _, pid := range ids {
		d.Trace = append(d.Trace, fmt.Sprintf("candidate permission=%s", pid))
		if ok, rid := e.checkLocked(identity, pid, ac, &d.Trace); ok {
			d.Allowed = true
			d.MatchedBy = rid
			break
		}
	}
	s.mu.RUnlock()
	switch {
	case d.Allowed:
		d.Reason = "role grant"
	case len(ids) == 0:
		d.Reason = "no matching permission"
	default:
		d.Reason = "no role grants any matching permission under context"
	}
	e.observe("can_access_resource", d.Allowed)
	return d
}

// AccessReport is the potential access of an identity: every permission its
// roles list, with conditions ignored.
type AccessReport struct {
	Identity       string              `json:"identity"`
	Roles          []*Role             `json:"roles"`
	Permissions    []*Permission       `json:"permissions"`
	ResourceAccess map[string][]string `json:"resource_access"` // resource -> actions
	GeneratedAt    time.Time           `json:"generated_at"`
}

// GenerateAccessReport resolves the identity's roles, the de-duplicated union
// of their permissions and a resource -> actions index. Unknown identities get
// an empty report.
func (e *Engine) GenerateAccessReport(identity string) *AccessReport {
	report := &AccessReport{
		Identity:       identity,
		Roles:          make([]*Role, 0),
		Permissions:    make([]*Permission, 0),
		ResourceAccess: make(map[string][]string),
		GeneratedAt:    e.now(),
	}
	s := e.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{})
	for _, rid := range s.assignments[identity] {
		role, ok := s.roles[rid]
		if !ok {
			continue
		}
		report.Roles = append(report.Roles, role.clone())
		for _, pid := range role.Permissions {
			if _, dup := seen[pid]; dup {
				continue
			}
			perm, ok := s.permissions[pid]
			if !ok {
				continue
			}
			seen[pid] = struct{}{}
			report.Permissions = append(report.Permissions, perm.clone())
		}
	}
	for _, p := range report.Permissions {
		actions := report.ResourceAccess[p.Resource]
		if !containsString(actions, p.Action) {
			report.ResourceAccess[p.Resource] = append(actions, p.Action)
		}
	}
	return report
}
