package stores

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/oarkflow/date"
	"github.com/oarkflow/rbac"
)

func parseFlexibleTime(s string) (time.Time, error) {
	return date.Parse(s)
}

// scanTime accepts the shapes sqlite drivers return for timestamp columns.
func scanTime(raw any) (time.Time, bool) {
	switch v := raw.(type) {
	case time.Time:
		return v, true
	case string:
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return t, true
		}
		if t, err := parseFlexibleTime(v); err == nil {
			return t, true
		}
	case []byte:
		if t, err := parseFlexibleTime(string(v)); err == nil {
			return t, true
		}
	case int64:
		return time.Unix(v, 0), true
	}
	return time.Time{}, false
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// cloneSnapshot deep-copies through JSON, the same encoding the SQL and
// Redis stores use, so every store hands back equivalent values.
func cloneSnapshot(snap *rbac.Snapshot) *rbac.Snapshot {
	if snap == nil {
		return &rbac.Snapshot{}
	}
	b, err := json.Marshal(snap)
	if err != nil {
		return &rbac.Snapshot{}
	}
	out := &rbac.Snapshot{}
	_ = json.Unmarshal(b, out)
	return out
}

func sortSnapshot(snap *rbac.Snapshot) {
	sort.Slice(snap.Permissions, func(i, j int) bool { return snap.Permissions[i].ID < snap.Permissions[j].ID })
	sort.Slice(snap.Roles, func(i, j int) bool { return snap.Roles[i].ID < snap.Roles[j].ID })
	sort.Slice(snap.Assignments, func(i, j int) bool { return snap.Assignments[i].Identity < snap.Assignments[j].Identity })
}

func encodeConditions(conds []rbac.Condition) string {
	if len(conds) == 0 {
		return "[]"
	}
	b, err := json.Marshal(conds)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func decodeConditions(raw string) ([]rbac.Condition, error) {
	if raw == "" || raw == "[]" || raw == "null" {
		return nil, nil
	}
	var conds []rbac.Condition
	if err := json.Unmarshal([]byte(raw), &conds); err != nil {
		return nil, err
	}
	return conds, nil
}
