package rbac

import "time"

// AccessContext is the per-call bundle of facts conditions are evaluated against.
// It is never stored.
type AccessContext struct {
	User        UserContext         `json:"user"`
	Resource    *ResourceContext    `json:"resource,omitempty"`
	Environment *EnvironmentContext `json:"environment,omitempty"`
}

// UserContext describes who is asking. Roles is the identity provider's hint,
// not the assignment table.
type UserContext struct {
	ID             string         `json:"id"`
	Type           string         `json:"type,omitempty"`
	Roles          []string       `json:"roles,omitempty"`
	OrganizationID string         `json:"organization_id,omitempty"`
	DepartmentID   string         `json:"department_id,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// ResourceContext describes the object being acted on.
type ResourceContext struct {
	ID             string         `json:"id,omitempty"`
	Type           string         `json:"type,omitempty"`
	OwnerID        string         `json:"owner_id,omitempty"`
	OrganizationID string         `json:"organization_id,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// EnvironmentContext holds request-time facts.
type EnvironmentContext struct {
	IP        string    `json:"ip,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
}

// NewAccessContext starts a context for user id.
func NewAccessContext(userID string) *AccessContext {
	return &AccessContext{User: UserContext{ID: userID}}
}

func (ac *AccessContext) WithResource(r ResourceContext) *AccessContext {
	ac.Resource = &r
	return ac
}

func (ac *AccessContext) WithEnvironment(e EnvironmentContext) *AccessContext {
	ac.Environment = &e
	return ac
}
