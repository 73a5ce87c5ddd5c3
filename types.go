package rbac

// ============================================================================
// CATALOG OBJECTS
// ============================================================================

// Permission is one fine-grained capability: an action on a resource type,
// optionally gated by conditions that must all hold.
type Permission struct {
	ID          string      `json:"id" yaml:"id"`
	Resource    string      `json:"resource" yaml:"resource"`
	Action      string      `json:"action" yaml:"action"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty"`
	Conditions  []Condition `json:"conditions,omitempty" yaml:"conditions,omitempty"`
}

// Role is a named, ranked bundle of permission ids. A higher Hierarchy means a
// more senior role; seniority never implies the permissions of junior roles.
type Role struct {
	ID          string      `json:"id" yaml:"id"`
	Name        string      `json:"name" yaml:"name"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty"`
	Permissions []string    `json:"permissions" yaml:"permissions"`
	Hierarchy   int         `json:"hierarchy" yaml:"hierarchy"`
	Conditions  []Condition `json:"conditions,omitempty" yaml:"conditions,omitempty"`
	IsSystem    bool        `json:"is_system,omitempty" yaml:"is_system,omitempty"`
}

// Assignment is the role set held by one identity.
type Assignment struct {
	Identity string   `json:"identity" yaml:"identity"`
	Roles    []string `json:"roles" yaml:"roles"`
}

// Snapshot is the flat, persistable form of a Store. Cross references are by id.
type Snapshot struct {
	Permissions []*Permission `json:"permissions" yaml:"permissions"`
	Roles       []*Role       `json:"roles" yaml:"roles"`
	Assignments []Assignment  `json:"assignments" yaml:"assignments"`
}

func (p *Permission) clone() *Permission {
	if p == nil {
		return nil
	}
	dup := *p
	dup.Conditions = cloneConditions(p.Conditions)
	return &dup
}

func (r *Role) clone() *Role {
	if r == nil {
		return nil
	}
	dup := *r
	dup.Permissions = append([]string(nil), r.Permissions...)
	dup.Conditions = cloneConditions(r.Conditions)
	return &dup
}

func cloneConditions(in []Condition) []Condition {
	if len(in) == 0 {
		return nil
	}
	out := make([]Condition, len(in))
	for i, c := range in {
		out[i] = copyCondition(c)
	}
	return out
}

// cloneValue copies list and map condition values so that no slice is shared
// between the catalog and its callers.
func cloneValue(v any) any {
	switch vv := v.(type) {
	case []any:
		out := make([]any, len(vv))
		for i := range vv {
			out[i] = cloneValue(vv[i])
		}
		return out
	case []string:
		return append([]string(nil), vv...)
	case []int:
		return append([]int(nil), vv...)
	case []float64:
		return append([]float64(nil), vv...)
	case map[string]any:
		out := make(map[string]any, len(vv))
		for k, x := range vv {
			out[k] = cloneValue(x)
		}
		return out
	}
	return v
}
