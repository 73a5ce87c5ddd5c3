package rbac

import "github.com/oarkflow/rbac/logger"

// Identity is what the identity provider tells us at sign-in: the declared
// user type plus any extra role grants it knows about.
type Identity struct {
	ID    string   `json:"id"`
	Type  string   `json:"type"`
	Roles []string `json:"roles,omitempty"`
}

// Syncer mirrors identity-provider role claims into the assignment table.
type Syncer struct {
	store     *Store
	typeRoles map[string]string
	logger    logger.Logger
}

type SyncerOption func(*Syncer)

// WithTypeMapping maps declared user types to role ids. Types without a
// mapping are used as role ids verbatim.
func WithTypeMapping(m map[string]string) SyncerOption {
	return func(s *Syncer) {
		for k, v := range m {
			s.typeRoles[k] = v
		}
	}
}

func WithSyncLogger(l logger.Logger) SyncerOption {
	return func(s *Syncer) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewSyncer(store *Store, opts ...SyncerOption) *Syncer {
	s := &Syncer{store: store, typeRoles: make(map[string]string), logger: logger.NewNullLogger()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SyncIdentity replaces the identity's roles with its declared type's role
// plus its extra grants and returns the stored set. Repeated calls with the
// same identity converge on the same set; duplicates in the input are fine.
func (s *Syncer) SyncIdentity(id Identity) []string {
	if id.ID == "" {
		s.logger.Warn("skipping role sync for identity without id")
		return []string{}
	}
	roles := make([]string, 0, len(id.Roles)+1)
	if id.Type != "" {
		if mapped, ok := s.typeRoles[id.Type]; ok {
			roles = append(roles, mapped)
		} else {
			roles = append(roles, id.Type)
		}
	}
	roles = append(roles, id.Roles...)
	s.store.SetRoles(id.ID, roles)
	stored := s.store.GetRoles(id.ID)
	s.logger.Debug("synced identity roles", "identity", id.ID, "roles", stored)
	return stored
}
