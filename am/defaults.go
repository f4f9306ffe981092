package am

import (
	"github.com/spf13/viper"

	"github.com/teranos/healthtwin/twin"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.path", "twin.db")

	// Registry defaults: built-in table only
	v.SetDefault("registry.path", "")
	v.SetDefault("registry.builtin", true)

	// Validation defaults
	v.SetDefault("validation.plausibility_factor", 10.0)
	v.SetDefault("validation.future_tolerance_seconds", 300) // 5 minutes of clock skew

	// Reasoning defaults
	v.SetDefault("reasoning.max_tokens", 2000)
	v.SetDefault("reasoning.chars_per_token", 4.0)
	v.SetDefault("reasoning.history_limit", 5)
	v.SetDefault("reasoning.domain_order", twin.KnownDomains)
	v.SetDefault("reasoning.stable_threshold", 1.0)

	// Schema defaults
	v.SetDefault("schema.domains", twin.KnownDomains)
	v.SetDefault("schema.include_registry", true)

	// Log defaults
	v.SetDefault("log.json", false)
	v.SetDefault("log.level", "info")
}

// BindSensitiveEnvVars binds environment variables that do not follow the
// TWIN_SECTION_KEY pattern.
func BindSensitiveEnvVars(v *viper.Viper) {
	// TWIN_DB_PATH is shorter to type than TWIN_DATABASE_PATH
	v.BindEnv("database.path", "TWIN_DATABASE_PATH", "TWIN_DB_PATH")
	v.BindEnv("registry.path", "TWIN_REGISTRY_PATH", "TWIN_BIOMARKERS")
}
