package stores

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/oarkflow/rbac"
	"github.com/redis/go-redis/v9"
)

// RedisSnapshotStore keeps catalogs in hashes (id -> JSON) and each
// identity's roles in a set (key: {prefix}rolemem:{identity}). Sets carry no
// order, so loaded role lists are sorted.
type RedisSnapshotStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisSnapshotStore(client redis.UniversalClient, prefix string) *RedisSnapshotStore {
	if prefix == "" {
		prefix = "rbac:"
	}
	return &RedisSnapshotStore{client: client, prefix: prefix}
}

func (r *RedisSnapshotStore) permissionsKey() string { return r.prefix + "permissions" }
func (r *RedisSnapshotStore) rolesKey() string       { return r.prefix + "roles" }
func (r *RedisSnapshotStore) identitiesKey() string  { return r.prefix + "identities" }
func (r *RedisSnapshotStore) memberKey(identity string) string {
	return fmt.Sprintf("%srolemem:%s", r.prefix, identity)
}

func (r *RedisSnapshotStore) Save(ctx context.Context, snap *rbac.Snapshot) error {
	previous, err := r.client.SMembers(ctx, r.identitiesKey()).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("list identities: %w", err)
	}
	perms := make(map[string]any, len(snap.Permissions))
	for _, p := range snap.Permissions {
		b, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("encode permission %s: %w", p.ID, err)
		}
		perms[p.ID] = string(b)
	}
	roles := make(map[string]any, len(snap.Roles))
	for _, role := range snap.Roles {
		b, err := json.Marshal(role)
		if err != nil {
			return fmt.Errorf("encode role %s: %w", role.ID, err)
		}
		roles[role.ID] = string(b)
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range previous {
			pipe.Del(ctx, r.memberKey(id))
		}
		pipe.Del(ctx, r.permissionsKey(), r.rolesKey(), r.identitiesKey())
		if len(perms) > 0 {
			pipe.HSet(ctx, r.permissionsKey(), perms)
		}
		if len(roles) > 0 {
			pipe.HSet(ctx, r.rolesKey(), roles)
		}
		for _, a := range snap.Assignments {
			if len(a.Roles) == 0 {
				continue
			}
			members := make([]any, len(a.Roles))
			for i, rid := range a.Roles {
				members[i] = rid
			}
			pipe.SAdd(ctx, r.identitiesKey(), a.Identity)
			pipe.SAdd(ctx, r.memberKey(a.Identity), members...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

func (r *RedisSnapshotStore) Load(ctx context.Context) (*rbac.Snapshot, error) {
	permsRaw, err := r.client.HGetAll(ctx, r.permissionsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("load permissions: %w", err)
	}
	rolesRaw, err := r.client.HGetAll(ctx, r.rolesKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("load roles: %w", err)
	}
	identities, err := r.client.SMembers(ctx, r.identitiesKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("load identities: %w", err)
	}
	if len(permsRaw) == 0 && len(rolesRaw) == 0 && len(identities) == 0 {
		return nil, ErrNoSnapshot
	}
	snap := &rbac.Snapshot{
		Permissions: make([]*rbac.Permission, 0, len(permsRaw)),
		Roles:       make([]*rbac.Role, 0, len(rolesRaw)),
		Assignments: make([]rbac.Assignment, 0, len(identities)),
	}
	for id, raw := range permsRaw {
		p := &rbac.Permission{}
		if err := json.Unmarshal([]byte(raw), p); err != nil {
			return nil, fmt.Errorf("decode permission %s: %w", id, err)
		}
		snap.Permissions = append(snap.Permissions, p)
	}
	for id, raw := range rolesRaw {
		role := &rbac.Role{}
		if err := json.Unmarshal([]byte(raw), role); err != nil {
			return nil, fmt.Errorf("decode role %s: %w", id, err)
		}
		snap.Roles = append(snap.Roles, role)
	}
	for _, identity := range identities {
		roles, err := r.client.SMembers(ctx, r.memberKey(identity)).Result()
		if err != nil {
			return nil, fmt.Errorf("load roles of %s: %w", identity, err)
		}
		sort.Strings(roles)
		snap.Assignments = append(snap.Assignments, rbac.Assignment{Identity: identity, Roles: roles})
	}
	sortSnapshot(snap)
	return snap, nil
}
