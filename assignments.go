package rbac

import "sort"

// SetRoles replaces the identity's role set. Role ids missing from the
// catalog are discarded and duplicates collapse, keeping first-seen order.
// An empty result removes the identity from the table.
func (s *Store) SetRoles(identity string, roleIDs []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := make([]string, 0, len(roleIDs))
	for _, rid := range roleIDs {
		if _, ok := s.roles[rid]; !ok {
			s.logger.Debug("discarding unknown role", "identity", identity, "role", rid)
			continue
		}
		if !containsString(kept, rid) {
			kept = append(kept, rid)
		}
	}
	if len(kept) == 0 {
		delete(s.assignments, identity)
		return
	}
	s.assignments[identity] = kept
}

// AddRole grants one role. It is the only mutation that fails loudly: an
// unknown role id is a programming error in the caller.
func (s *Store) AddRole(identity, roleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[roleID]; !ok {
		return &UnknownRoleError{Identity: identity, RoleID: roleID}
	}
	cur := s.assignments[identity]
	if containsString(cur, roleID) {
		return nil
	}
	s.assignments[identity] = append(cur[:len(cur):len(cur)], roleID)
	return nil
}

// RemoveRole revokes one role; revoking a role that was never held is a no-op.
func (s *Store) RemoveRole(identity, roleID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.assignments[identity]
	if !ok {
		return
	}
	kept := make([]string, 0, len(cur))
	for _, r := range cur {
		if r != roleID {
			kept = append(kept, r)
		}
	}
	if len(kept) == 0 {
		delete(s.assignments, identity)
		return
	}
	s.assignments[identity] = kept
}

// GetRoles returns a copy of the identity's roles; never nil.
func (s *Store) GetRoles(identity string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append(make([]string, 0, len(s.assignments[identity])), s.assignments[identity]...)
}

// Identities lists identities holding at least one role, sorted.
func (s *Store) Identities() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.assignments))
	for id := range s.assignments {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
