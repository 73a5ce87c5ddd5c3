package rbac

import (
	"sort"
	"sync"

	"github.com/oarkflow/rbac/logger"
)

// resourceAction indexes permissions by the pair they grant.
type resourceAction struct {
	resource string
	action   string
}

// Store owns the permission catalog, the role catalog and the assignment
// table. Decision queries take the read lock; registration and assignment
// changes take the write lock. A Store is created per application (or per
// test) and injected into the Engine.
type Store struct {
	mu          sync.RWMutex
	permissions map[string]*Permission
	byPair      map[resourceAction][]string
	roles       map[string]*Role
	assignments map[string][]string
	logger      logger.Logger
}

type StoreOption func(*Store)

// WithStoreLogger sets the logger used for catalog warnings.
func WithStoreLogger(l logger.Logger) StoreOption {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		permissions: make(map[string]*Permission),
		byPair:      make(map[resourceAction][]string),
		roles:       make(map[string]*Role),
		assignments: make(map[string][]string),
		logger:      logger.NewNullLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewStoreWithDefaults returns a store seeded with the built-in catalog.
func NewStoreWithDefaults(opts ...StoreOption) *Store {
	s := NewStore(opts...)
	SeedDefaults(s)
	return s
}

// Snapshot copies the three tables into their flat persistable form.
func (s *Store) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := &Snapshot{
		Permissions: make([]*Permission, 0, len(s.permissions)),
		Roles:       make([]*Role, 0, len(s.roles)),
		Assignments: make([]Assignment, 0, len(s.assignments)),
	}
	for _, p := range s.permissions {
		snap.Permissions = append(snap.Permissions, p.clone())
	}
	for _, r := range s.roles {
		snap.Roles = append(snap.Roles, r.clone())
	}
	for id, roles := range s.assignments {
		snap.Assignments = append(snap.Assignments, Assignment{Identity: id, Roles: append([]string(nil), roles...)})
	}
	sort.Slice(snap.Permissions, func(i, j int) bool { return snap.Permissions[i].ID < snap.Permissions[j].ID })
	sort.Slice(snap.Roles, func(i, j int) bool { return snap.Roles[i].ID < snap.Roles[j].ID })
	sort.Slice(snap.Assignments, func(i, j int) bool { return snap.Assignments[i].Identity < snap.Assignments[j].Identity })
	return snap
}

// Restore loads a snapshot on top of the current contents. Entries go through
// the normal registration paths, so unknown permission ids in roles are
// dropped with a warning and unknown roles in assignments are discarded.
func (s *Store) Restore(snap *Snapshot) error {
	if snap == nil {
		return nil
	}
	for _, p := range snap.Permissions {
		if err := s.RegisterPermission(p); err != nil {
			return err
		}
	}
	for _, r := range snap.Roles {
		if err := s.RegisterRole(r); err != nil {
			return err
		}
	}
	for _, a := range snap.Assignments {
		s.SetRoles(a.Identity, a.Roles)
	}
	return nil
}
