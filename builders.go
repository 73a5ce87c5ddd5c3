package rbac

// Builders provide a fluent API for creating Permissions and Roles

// PermissionBuilder builds a Permission
type PermissionBuilder struct {
	p   *Permission
	err error
}

func NewPermissionBuilder(id string) *PermissionBuilder {
	return &PermissionBuilder{p: &Permission{ID: id}}
}

func (b *PermissionBuilder) Resource(r string) *PermissionBuilder    { b.p.Resource = r; return b }
func (b *PermissionBuilder) Action(a string) *PermissionBuilder      { b.p.Action = a; return b }
func (b *PermissionBuilder) Description(d string) *PermissionBuilder { b.p.Description = d; return b }
func (b *PermissionBuilder) When(field string, op Operator, value any) *PermissionBuilder {
	b.p.Conditions = append(b.p.Conditions, Condition{Field: field, Operator: op, Value: value})
	return b
}

// WhenExpr adds a condition in compact form. A parse error is reported by Build.
func (b *PermissionBuilder) WhenExpr(expr string) *PermissionBuilder {
	c, err := ParseCondition(expr)
	if err != nil {
		if b.err == nil {
			b.err = err
		}
		return b
	}
	b.p.Conditions = append(b.p.Conditions, c)
	return b
}

func (b *PermissionBuilder) Build() (*Permission, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.p, nil
}

// RoleBuilder builds a Role
type RoleBuilder struct {
	r   *Role
	err error
}

func NewRoleBuilder(id string) *RoleBuilder {
	return &RoleBuilder{r: &Role{ID: id, Permissions: []string{}}}
}
func (b *RoleBuilder) Name(n string) *RoleBuilder        { b.r.Name = n; return b }
func (b *RoleBuilder) Description(d string) *RoleBuilder { b.r.Description = d; return b }
func (b *RoleBuilder) Hierarchy(rank int) *RoleBuilder   { b.r.Hierarchy = rank; return b }
func (b *RoleBuilder) System() *RoleBuilder              { b.r.IsSystem = true; return b }
func (b *RoleBuilder) Permissions(ids ...string) *RoleBuilder {
	b.r.Permissions = append(b.r.Permissions, ids...)
	return b
}
func (b *RoleBuilder) When(field string, op Operator, value any) *RoleBuilder {
	b.r.Conditions = append(b.r.Conditions, Condition{Field: field, Operator: op, Value: value})
	return b
}
func (b *RoleBuilder) WhenExpr(expr string) *RoleBuilder {
	c, err := ParseCondition(expr)
	if err != nil {
		if b.err == nil {
			b.err = err
		}
		return b
	}
	b.r.Conditions = append(b.r.Conditions, c)
	return b
}
func (b *RoleBuilder) Build() (*Role, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.r, nil
}
