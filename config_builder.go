package rbac

// ConfigBuilder provides fluent API for building configurations
type ConfigBuilder struct {
	cfg *Config
}

func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{
		cfg: &Config{
			Version:     1,
			Permissions: []*Permission{},
			Roles:       []*Role{},
			Assignments: []Assignment{},
		},
	}
}

func (b *ConfigBuilder) Version(v uint16) *ConfigBuilder {
	b.cfg.Version = v
	return b
}

func (b *ConfigBuilder) AddPermission(p *Permission) *ConfigBuilder {
	b.cfg.Permissions = append(b.cfg.Permissions, p)
	return b
}

// Permission is shorthand for an unconditional permission.
func (b *ConfigBuilder) Permission(id, resource, action string) *ConfigBuilder {
	return b.AddPermission(&Permission{ID: id, Resource: resource, Action: action})
}

func (b *ConfigBuilder) AddRole(r *Role) *ConfigBuilder {
	b.cfg.Roles = append(b.cfg.Roles, r)
	return b
}

// Assign appends an assignment; repeated calls for one identity accumulate.
func (b *ConfigBuilder) Assign(identity string, roleIDs ...string) *ConfigBuilder {
	for i := range b.cfg.Assignments {
		if b.cfg.Assignments[i].Identity == identity {
			b.cfg.Assignments[i].Roles = append(b.cfg.Assignments[i].Roles, roleIDs...)
			return b
		}
	}
	b.cfg.Assignments = append(b.cfg.Assignments, Assignment{Identity: identity, Roles: append([]string(nil), roleIDs...)})
	return b
}

func (b *ConfigBuilder) SeedDefaults(on bool) *ConfigBuilder {
	b.cfg.Engine.SeedDefaults = on
	return b
}

func (b *ConfigBuilder) MapType(userType, roleID string) *ConfigBuilder {
	if b.cfg.Engine.TypeMapping == nil {
		b.cfg.Engine.TypeMapping = make(map[string]string)
	}
	b.cfg.Engine.TypeMapping[userType] = roleID
	return b
}

func (b *ConfigBuilder) EngineSettings(fn func(*EngineConfig)) *ConfigBuilder {
	fn(&b.cfg.Engine)
	return b
}

func (b *ConfigBuilder) Build() *Config {
	return b.cfg
}

func (b *ConfigBuilder) ToYAML() ([]byte, error) {
	return b.cfg.ToYAML()
}

func (b *ConfigBuilder) ToJSON() ([]byte, error) {
	return b.cfg.ToJSON()
}

func (b *ConfigBuilder) ToDSL() ([]byte, error) {
	return NewDSLEncoder().Encode(b.cfg)
}
