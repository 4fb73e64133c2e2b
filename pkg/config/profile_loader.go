package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Profile is a named YAML overlay for deployment-specific settings.
// Only non-zero fields override the environment-derived config.
type Profile struct {
	Name string `yaml:"name"`

	AllowedRoot  string `yaml:"allowed_root,omitempty"`
	ChangeLogDir string `yaml:"change_log_dir,omitempty"`

	ExplainPolicy      string `yaml:"explain_policy,omitempty"`
	RequireExplanation *bool  `yaml:"require_explanation,omitempty"`
	AutoExplain        *bool  `yaml:"auto_explain,omitempty"`

	UseSQLite  *bool `yaml:"use_sqlite,omitempty"`
	AuditChain *bool `yaml:"audit_chain,omitempty"`
}

// profilesDir is overridable for tests.
var profilesDir = "profiles"

// LoadProfile reads profiles/profile_<name>.yaml.
func LoadProfile(name string) (*Profile, error) {
	name = strings.ToLower(name)
	path := filepath.Join(profilesDir, fmt.Sprintf("profile_%s.yaml", name))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load profile %q: %w", name, err)
	}

	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse profile %q: %w", name, err)
	}
	if p.Name == "" {
		p.Name = name
	}
	return &p, nil
}

func (p *Profile) apply(cfg *Config) {
	if p.AllowedRoot != "" {
		cfg.AllowedRoot = p.AllowedRoot
	}
	if p.ChangeLogDir != "" {
		cfg.ChangeLogDir = p.ChangeLogDir
	}
	if p.ExplainPolicy != "" {
		cfg.ExplainPolicy = p.ExplainPolicy
	}
	if p.RequireExplanation != nil {
		cfg.RequireExplanation = *p.RequireExplanation
	}
	if p.AutoExplain != nil {
		cfg.AutoExplain = *p.AutoExplain
	}
	if p.UseSQLite != nil {
		cfg.UseSQLite = *p.UseSQLite
	}
	if p.AuditChain != nil {
		cfg.AuditChain = *p.AuditChain
	}
}
