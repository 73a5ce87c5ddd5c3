package stores

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oarkflow/rbac"
	"github.com/oarkflow/squealx"
)

// SQLSnapshotStore persists snapshots in SQL (squealx). Each catalog has its
// own table; conditions and role permission lists are stored as JSON.
type SQLSnapshotStore struct {
	db  *squealx.DB
	now func() time.Time
}

func NewSQLSnapshotStore(db *squealx.DB) *SQLSnapshotStore {
	return &SQLSnapshotStore{db: db, now: time.Now}
}

func (s *SQLSnapshotStore) Save(ctx context.Context, snap *rbac.Snapshot) error {
	for _, table := range []string{"rbac_assignments", "rbac_roles", "rbac_permissions"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	now := s.now().UTC().Format(time.RFC3339Nano)
	for _, p := range snap.Permissions {
		q := `INSERT INTO rbac_permissions(id, resource, action, description, conditions_json, updated_at) VALUES(:id, :resource, :action, :description, :conditions_json, :updated_at)`
		_, err := s.db.NamedExecContext(ctx, q, map[string]any{
			"id":              p.ID,
			"resource":        p.Resource,
			"action":          p.Action,
			"description":     p.Description,
			"conditions_json": encodeConditions(p.Conditions),
			"updated_at":      now,
		})
		if err != nil {
			return fmt.Errorf("save permission %s: %w", p.ID, err)
		}
	}
	for _, r := range snap.Roles {
		perms, _ := json.Marshal(r.Permissions)
		q := `INSERT INTO rbac_roles(id, name, description, hierarchy, is_system, permissions_json, conditions_json, updated_at) VALUES(:id, :name, :description, :hierarchy, :is_system, :permissions_json, :conditions_json, :updated_at)`
		_, err := s.db.NamedExecContext(ctx, q, map[string]any{
			"id":               r.ID,
			"name":             r.Name,
			"description":      r.Description,
			"hierarchy":        r.Hierarchy,
			"is_system":        boolToInt(r.IsSystem),
			"permissions_json": string(perms),
			"conditions_json":  encodeConditions(r.Conditions),
			"updated_at":       now,
		})
		if err != nil {
			return fmt.Errorf("save role %s: %w", r.ID, err)
		}
	}
	for _, a := range snap.Assignments {
		for i, rid := range a.Roles {
			q := `INSERT OR IGNORE INTO rbac_assignments(identity, role_id, position) VALUES(:identity, :role_id, :position)`
			_, err := s.db.NamedExecContext(ctx, q, map[string]any{"identity": a.Identity, "role_id": rid, "position": i})
			if err != nil {
				return fmt.Errorf("save assignment %s: %w", a.Identity, err)
			}
		}
	}
	q := `INSERT OR REPLACE INTO rbac_snapshots(id, saved_at) VALUES(1, :saved_at)`
	if _, err := s.db.NamedExecContext(ctx, q, map[string]any{"saved_at": now}); err != nil {
		return fmt.Errorf("mark snapshot: %w", err)
	}
	return nil
}

// SavedAt returns when Save last completed, or ErrNoSnapshot.
func (s *SQLSnapshotStore) SavedAt(ctx context.Context) (time.Time, error) {
	r, err := s.db.NamedQueryContext(ctx, `SELECT saved_at FROM rbac_snapshots WHERE id = 1`, map[string]any{})
	if err != nil {
		return time.Time{}, err
	}
	defer r.Close()
	if !r.Next() {
		return time.Time{}, ErrNoSnapshot
	}
	var raw any
	if err := r.Scan(&raw); err != nil {
		return time.Time{}, err
	}
	t, ok := scanTime(raw)
	if !ok {
		return time.Time{}, fmt.Errorf("unreadable saved_at %v", raw)
	}
	return t, nil
}

func (s *SQLSnapshotStore) Load(ctx context.Context) (*rbac.Snapshot, error) {
	if _, err := s.SavedAt(ctx); err != nil {
		return nil, err
	}
	snap := &rbac.Snapshot{
		Permissions: make([]*rbac.Permission, 0),
		Roles:       make([]*rbac.Role, 0),
		Assignments: make([]rbac.Assignment, 0),
	}
	var err error
	if snap.Permissions, err = s.loadPermissions(ctx); err != nil {
		return nil, err
	}
	if snap.Roles, err = s.loadRoles(ctx); err != nil {
		return nil, err
	}
	if snap.Assignments, err = s.loadAssignments(ctx); err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *SQLSnapshotStore) loadPermissions(ctx context.Context) ([]*rbac.Permission, error) {
	q := `SELECT id, resource, action, description, conditions_json FROM rbac_permissions ORDER BY id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{})
	if err != nil {
		return nil, fmt.Errorf("load permissions: %w", err)
	}
	defer r.Close()
	out := make([]*rbac.Permission, 0)
	for r.Next() {
		var id, resource, action, desc, condJSON string
		if err := r.Scan(&id, &resource, &action, &desc, &condJSON); err != nil {
			return nil, err
		}
		conds, err := decodeConditions(condJSON)
		if err != nil {
			return nil, fmt.Errorf("permission %s conditions: %w", id, err)
		}
		out = append(out, &rbac.Permission{ID: id, Resource: resource, Action: action, Description: desc, Conditions: conds})
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("load permissions: %w", err)
	}
	return out, nil
}

func (s *SQLSnapshotStore) loadRoles(ctx context.Context) ([]*rbac.Role, error) {
	q := `SELECT id, name, description, hierarchy, is_system, permissions_json, conditions_json FROM rbac_roles ORDER BY id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{})
	if err != nil {
		return nil, fmt.Errorf("load roles: %w", err)
	}
	defer r.Close()
	out := make([]*rbac.Role, 0)
	for r.Next() {
		var id, name, desc, permsJSON, condJSON string
		var hierarchy, isSystem int
		if err := r.Scan(&id, &name, &desc, &hierarchy, &isSystem, &permsJSON, &condJSON); err != nil {
			return nil, err
		}
		role := &rbac.Role{ID: id, Name: name, Description: desc, Hierarchy: hierarchy, IsSystem: isSystem == 1}
		if err := json.Unmarshal([]byte(permsJSON), &role.Permissions); err != nil {
			return nil, fmt.Errorf("role %s permissions: %w", id, err)
		}
		if role.Conditions, err = decodeConditions(condJSON); err != nil {
			return nil, fmt.Errorf("role %s conditions: %w", id, err)
		}
		out = append(out, role)
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("load roles: %w", err)
	}
	return out, nil
}

func (s *SQLSnapshotStore) loadAssignments(ctx context.Context) ([]rbac.Assignment, error) {
	q := `SELECT identity, role_id FROM rbac_assignments ORDER BY identity, position`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{})
	if err != nil {
		return nil, fmt.Errorf("load assignments: %w", err)
	}
	defer r.Close()
	out := make([]rbac.Assignment, 0)
	for r.Next() {
		var identity, roleID string
		if err := r.Scan(&identity, &roleID); err != nil {
			return nil, err
		}
		if n := len(out); n > 0 && out[n-1].Identity == identity {
			out[n-1].Roles = append(out[n-1].Roles, roleID)
			continue
		}
		out = append(out, rbac.Assignment{Identity: identity, Roles: []string{roleID}})
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("load assignments: %w", err)
	}
	return out, nil
}
