package rbac

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the declarative form of a catalog plus assignments. It is what
// config files, the DSL and the rbac-config tool exchange.
type Config struct {
	Version     uint16        `json:"version" yaml:"version"`
	Permissions []*Permission `json:"permissions" yaml:"permissions"`
	Roles       []*Role       `json:"roles" yaml:"roles"`
	Assignments []Assignment  `json:"assignments" yaml:"assignments"`
	Engine      EngineConfig  `json:"engine" yaml:"engine"`
}

type EngineConfig struct {
	// SeedDefaults registers the built-in catalog before the config's own entries.
	SeedDefaults bool `json:"seed_defaults" yaml:"seed_defaults"`
	// TypeMapping maps identity-provider user types to role ids for the Syncer.
	TypeMapping map[string]string `json:"type_mapping,omitempty" yaml:"type_mapping,omitempty"`
}

// ConfigLoader loads configuration from various formats
type ConfigLoader struct{}

func NewConfigLoader() *ConfigLoader {
	return &ConfigLoader{}
}

func (l *ConfigLoader) LoadYAML(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("decode yaml config: %w", err)
	}
	return cfg, nil
}

func (l *ConfigLoader) LoadJSON(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("decode json config: %w", err)
	}
	return cfg, nil
}

func (l *ConfigLoader) LoadDSL(data []byte) (*Config, error) {
	return NewDSLParser().Parse(data)
}

func (l *ConfigLoader) LoadBinary(data []byte) (*Config, error) {
	return NewBinaryDecoder(data).Decode()
}

// LoadFile picks the decoder from the file extension: .yaml/.yml, .json,
// .rbac/.dsl or .bin.
func (l *ConfigLoader) LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return l.LoadYAML(data)
	case ".json":
		return l.LoadJSON(data)
	case ".rbac", ".dsl":
		return l.LoadDSL(data)
	case ".bin":
		return l.LoadBinary(data)
	}
	return nil, fmt.Errorf("unsupported config format: %s", filepath.Ext(path))
}

// SaveFile writes cfg in the format implied by path's extension.
func (c *Config) SaveFile(path string) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = c.ToYAML()
	case ".json":
		data, err = c.ToJSON()
	case ".rbac", ".dsl":
		data, err = NewDSLEncoder().Encode(c)
	case ".bin":
		data, err = NewBinaryEncoder().Encode(c)
	default:
		return fmt.Errorf("unsupported config format: %s", filepath.Ext(path))
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ToYAML exports config to YAML
func (c *Config) ToYAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// ToJSON exports config to JSON
func (c *Config) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// Validate reports structural problems that ApplyConfig would reject:
// missing ids, duplicate ids, assignments naming unknown roles and unsupported
// operators. Role permissions naming unknown ids are not errors; they are
// dropped with a warning on apply.
func (c *Config) Validate() error {
	perms := make(map[string]struct{}, len(c.Permissions))
	for i, p := range c.Permissions {
		if p == nil || p.ID == "" {
			return fmt.Errorf("permission #%d: %w: empty id", i, ErrInvalidPermission)
		}
		if _, dup := perms[p.ID]; dup {
			return fmt.Errorf("permission %s: duplicate id", p.ID)
		}
		perms[p.ID] = struct{}{}
		if err := validateConditions(p.Conditions); err != nil {
			return fmt.Errorf("permission %s: %w", p.ID, err)
		}
	}
	roles := make(map[string]struct{}, len(c.Roles))
	for i, r := range c.Roles {
		if r == nil || r.ID == "" {
			return fmt.Errorf("role #%d: %w: empty id", i, ErrInvalidRole)
		}
		if _, dup := roles[r.ID]; dup {
			return fmt.Errorf("role %s: duplicate id", r.ID)
		}
		roles[r.ID] = struct{}{}
		if err := validateConditions(r.Conditions); err != nil {
			return fmt.Errorf("role %s: %w", r.ID, err)
		}
	}
	if c.Engine.SeedDefaults {
		for _, r := range DefaultRoles() {
			roles[r.ID] = struct{}{}
		}
	}
	for _, a := range c.Assignments {
		if a.Identity == "" {
			return fmt.Errorf("assignment without identity")
		}
		for _, rid := range a.Roles {
			if _, ok := roles[rid]; !ok {
				return &UnknownRoleError{Identity: a.Identity, RoleID: rid}
			}
		}
	}
	return nil
}

func validateConditions(conds []Condition) error {
	for _, c := range conds {
		if !c.Operator.Valid() {
			return fmt.Errorf("condition %q: unsupported operator %q", c.Field, c.Operator)
		}
		if !ParseField(c.Field).Known() {
			return fmt.Errorf("condition: unknown field %q", c.Field)
		}
	}
	return nil
}

// ApplyConfig registers the config's permissions, roles and assignments into s.
// Assignments are applied with SetRoles after checking every role exists, so a
// config naming a missing role fails with ErrUnknownRole instead of being
// silently narrowed.
func (s *Store) ApplyConfig(cfg *Config) error {
	if cfg == nil {
		return nil
	}
	if cfg.Engine.SeedDefaults {
		SeedDefaults(s)
	}
	for _, p := range cfg.Permissions {
		if err := s.RegisterPermission(p); err != nil {
			return fmt.Errorf("register permission: %w", err)
		}
	}
	for _, r := range cfg.Roles {
		if err := s.RegisterRole(r); err != nil {
			return fmt.Errorf("register role: %w", err)
		}
	}
	for _, a := range cfg.Assignments {
		for _, rid := range a.Roles {
			if _, ok := s.GetRole(rid); !ok {
				return fmt.Errorf("assign %s: %w", a.Identity, &UnknownRoleError{Identity: a.Identity, RoleID: rid})
			}
		}
		s.SetRoles(a.Identity, a.Roles)
	}
	return nil
}

// ConfigFromStore exports the store's current contents.
func ConfigFromStore(s *Store) *Config {
	snap := s.Snapshot()
	return &Config{
		Version:     1,
		Permissions: snap.Permissions,
		Roles:       snap.Roles,
		Assignments: snap.Assignments,
	}
}
