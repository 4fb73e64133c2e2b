// Package config loads service configuration from the environment,
// optionally overlaid with a YAML profile selected by COCKPIT_PROFILE.
package config

import "os"

// Config holds all runtime configuration for the admission service.
type Config struct {
	Port     string
	LogLevel string

	AllowedRoot  string
	ChangeLogDir string

	ExplainPolicy      string
	RequireExplanation bool
	AutoExplain        bool

	KillSwitchPath string

	SnapshotKeyHex string
	SnapshotKeyID  string
	SigningKeyHex  string

	UseSQLite  bool
	AuditChain bool
}

// Load reads configuration from environment variables, applying
// defaults. The explanation gate defaults to strict enforcement;
// loose policy must be asked for explicitly.
func Load() *Config {
	cfg := &Config{
		Port:               getenv("PORT", "8080"),
		LogLevel:           getenv("LOG_LEVEL", "INFO"),
		AllowedRoot:        getenv("ALLOWED_ROOT", "."),
		ChangeLogDir:       getenv("CHANGE_LOG_DIR", "logs/changes"),
		ExplainPolicy:      getenv("EXPLAIN_POLICY", "strict"),
		RequireExplanation: getenv("REQUIRE_EXPLANATION", "on") != "off",
		AutoExplain:        os.Getenv("AUTO_EXPLAIN") == "on",
		KillSwitchPath:     getenv("KILL_SWITCH_PATH", "KILL_SWITCH"),
		SnapshotKeyHex:     os.Getenv("SNAPSHOT_KEY_HEX"),
		SnapshotKeyID:      os.Getenv("SNAPSHOT_KEY_ID"),
		SigningKeyHex:      os.Getenv("ED25519_PRIV_HEX"),
		UseSQLite:          os.Getenv("CHANGE_USE_SQLITE") == "on",
		AuditChain:         os.Getenv("AUDIT_CHAIN") != "off",
	}
	if name := os.Getenv("COCKPIT_PROFILE"); name != "" {
		// A broken profile must not take the service down with a
		// half-applied config; Load keeps env values on error.
		if p, err := LoadProfile(name); err == nil {
			p.apply(cfg)
		}
	}
	return cfg
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
