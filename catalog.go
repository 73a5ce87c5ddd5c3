package rbac

import (
	"fmt"
	"sort"
)

// ============================================================================
// PERMISSION CATALOG
// ============================================================================

// RegisterPermission inserts p or overwrites the permission with the same id.
// Resource and action are opaque; only the id is validated.
func (s *Store) RegisterPermission(p *Permission) error {
	if p == nil || p.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidPermission)
	}
	stored := p.clone()
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.permissions[stored.ID]; ok {
		s.unindex(old)
	}
	s.permissions[stored.ID] = stored
	key := resourceAction{resource: stored.Resource, action: stored.Action}
	s.byPair[key] = append(s.byPair[key], stored.ID)
	return nil
}

func (s *Store) unindex(p *Permission) {
	key := resourceAction{resource: p.Resource, action: p.Action}
	ids := s.byPair[key]
	for i, id := range ids {
		if id == p.ID {
			ids = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	if len(ids) == 0 {
		delete(s.byPair, key)
		return
	}
	s.byPair[key] = ids
}

func (s *Store) GetPermission(id string) (*Permission, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.permissions[id]
	if !ok {
		return nil, false
	}
	return p.clone(), true
}

// ListPermissions returns every permission ordered by id.
func (s *Store) ListPermissions() []*Permission {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Permission, 0, len(s.permissions))
	for _, p := range s.permissions {
		out = append(out, p.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListPermissionsByResource returns the permissions of one resource type ordered by id.
func (s *Store) ListPermissionsByResource(resource string) []*Permission {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Permission, 0)
	for _, p := range s.permissions {
		if p.Resource == resource {
			out = append(out, p.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// PermissionIDsFor returns the ids of every permission granting action on resource.
func (s *Store) PermissionIDsFor(resource, action string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byPair[resourceAction{resource: resource, action: action}]
	return append([]string(nil), ids...)
}

// ============================================================================
// ROLE CATALOG
// ============================================================================

// RegisterRole stores r after dropping permission ids that are not in the
// permission catalog. Each dropped id is logged as a warning; a typo in one
// permission never blocks the whole role.
func (s *Store) RegisterRole(r *Role) error {
	if r == nil || r.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidRole)
	}
	stored := r.clone()
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := make([]string, 0, len(stored.Permissions))
	seen := make(map[string]struct{}, len(stored.Permissions))
	for _, pid := range stored.Permissions {
		if _, dup := seen[pid]; dup {
			continue
		}
		seen[pid] = struct{}{}
		if _, ok := s.permissions[pid]; !ok {
			s.logger.Warn("dropping unknown permission from role", "role", stored.ID, "permission", pid)
			continue
		}
		kept = append(kept, pid)
	}
	stored.Permissions = kept
	s.roles[stored.ID] = stored
	return nil
}

func (s *Store) GetRole(id string) (*Role, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.roles[id]
	if !ok {
		return nil, false
	}
	return r.clone(), true
}

// ListRoles returns every role ordered by hierarchy, then id.
func (s *Store) ListRoles() []*Role {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Role, 0, len(s.roles))
	for _, r := range s.roles {
		out = append(out, r.clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Hierarchy != out[j].Hierarchy {
			return out[i].Hierarchy < out[j].Hierarchy
		}
		return out[i].ID < out[j].ID
	})
	return out
}
