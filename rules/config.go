package rules

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/veildb/veil/rls"
)

// Config is a declarative security policy, typically loaded from YAML:
//
//	tables:
//	  notes:
//	    owner_field: owner
//	    insert: viewer
//	    modify: owner
//	  announcements:
//	    public_read: true
//	    insert: role:editor
//	    modify: role:editor
//
// Config covers the common ownership/tenancy/role policies; anything richer
// is written directly as rls.Predicate code.
type Config struct {
	Tables map[string]TableConfig `yaml:"tables"`
}

// TableConfig is the policy for one table.
type TableConfig struct {
	// OwnerField names the document field holding the owning viewer's ID.
	// When set, reads and owner-gated writes compare it to the viewer.
	OwnerField string `yaml:"owner_field"`

	// TenantField names the document field holding the tenant ID. When
	// set, it is required to match the viewer's tenant in addition to any
	// owner check.
	TenantField string `yaml:"tenant_field"`

	// PublicRead disables read filtering for the table.
	PublicRead bool `yaml:"public_read"`

	// Insert gates document creation: "any", "viewer", "owner",
	// "role:<name>", or "deny". Empty means "any".
	Insert string `yaml:"insert"`

	// Modify gates patch/replace/delete with the same vocabulary as
	// Insert. Empty means "owner" when OwnerField is set, "any" otherwise.
	Modify string `yaml:"modify"`
}

// LoadConfig reads and parses a policy file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rules: read policy %s: %w", path, err)
	}
	return ParseConfig(data)
}

// ParseConfig parses a YAML policy document.
func ParseConfig(data []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("rules: parse policy: %w", err)
	}
	return &c, nil
}

// Registry compiles the config into an rls.Registry.
func (c *Config) Registry() (rls.Registry, error) {
	reg := make(rls.Registry, len(c.Tables))
	for table, tc := range c.Tables {
		rules, err := tc.compile()
		if err != nil {
			return nil, fmt.Errorf("rules: table %q: %w", table, err)
		}
		reg[table] = rules
	}
	return reg, nil
}

func (tc TableConfig) compile() (rls.Rules, error) {
	var rules rls.Rules
	if !tc.PublicRead {
		rules.Read = tc.scopePredicate()
	}
	insert := tc.Insert
	if insert == "" {
		insert = "any"
	}
	p, err := tc.gatePredicate(insert)
	if err != nil {
		return rls.Rules{}, fmt.Errorf("insert: %w", err)
	}
	rules.Insert = p
	modify := tc.Modify
	if modify == "" {
		if tc.OwnerField != "" {
			modify = "owner"
		} else {
			modify = "any"
		}
	}
	p, err = tc.gatePredicate(modify)
	if err != nil {
		return rls.Rules{}, fmt.Errorf("modify: %w", err)
	}
	rules.Modify = p
	return rules, nil
}

// scopePredicate builds the read-visibility predicate: tenant isolation when
// a tenant field is declared, ownership when an owner field is declared,
// both when both are.
func (tc TableConfig) scopePredicate() rls.Predicate {
	var preds []rls.Predicate
	if tc.TenantField != "" {
		preds = append(preds, TenantField(tc.TenantField))
	}
	if tc.OwnerField != "" {
		preds = append(preds, OwnerField(tc.OwnerField))
	}
	switch len(preds) {
	case 0:
		return nil
	case 1:
		return preds[0]
	default:
		return And(preds...)
	}
}

// gatePredicate builds a write gate from the config vocabulary.
func (tc TableConfig) gatePredicate(gate string) (rls.Predicate, error) {
	switch {
	case gate == "any":
		return nil, nil
	case gate == "viewer":
		return RequireViewer(), nil
	case gate == "owner":
		if tc.OwnerField == "" {
			return nil, fmt.Errorf("gate %q requires owner_field", gate)
		}
		p := OwnerField(tc.OwnerField)
		if tc.TenantField != "" {
			p = And(TenantField(tc.TenantField), p)
		}
		return p, nil
	case gate == "deny":
		return AlwaysDeny(), nil
	case len(gate) > len("role:") && gate[:len("role:")] == "role:":
		return HasRole(gate[len("role:"):]), nil
	default:
		return nil, fmt.Errorf("unknown gate %q", gate)
	}
}
