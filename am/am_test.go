package am

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/healthtwin/twin"
)

func defaultConfig(t *testing.T) *Config {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	cfg, err := LoadWithViper(v)
	require.NoError(t, err)
	return cfg
}

// isolate points HOME and the working directory at empty temp dirs.
func isolate(t *testing.T) (home, project string) {
	t.Helper()
	Reset()
	t.Cleanup(Reset)
	home, project = t.TempDir(), t.TempDir()
	t.Setenv("HOME", home)
	t.Chdir(project)
	return home, project
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestLoad_Defaults(t *testing.T) {
	cfg := defaultConfig(t)

	assert.Equal(t, "twin.db", cfg.Database.Path)
	assert.True(t, cfg.Registry.Builtin)
	assert.Empty(t, cfg.Registry.Path)
	assert.Equal(t, 10.0, cfg.Validation.PlausibilityFactor)
	assert.Equal(t, 300, cfg.Validation.FutureToleranceSeconds)
	assert.Equal(t, 2000, cfg.Reasoning.MaxTokens)
	assert.Equal(t, twin.KnownDomains, cfg.Reasoning.DomainOrder)
	assert.Equal(t, twin.KnownDomains, cfg.Schema.Domains)
	assert.True(t, cfg.Schema.IncludeRegistry)
	assert.Equal(t, "info", cfg.Log.Level)

	require.NoError(t, cfg.Validate())
}

func TestLoad_Precedence(t *testing.T) {
	home, project := isolate(t)
	writeFile(t, filepath.Join(home, ".twin", "am.toml"), `
[database]
path = "user.db"

[reasoning]
max_tokens = 500
`)
	writeFile(t, filepath.Join(project, "am.toml"), `
[database]
path = "project.db"
`)
	t.Setenv("TWIN_REASONING_HISTORY_LIMIT", "2")
	t.Setenv("TWIN_REASONING_MAX_TOKENS", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "project.db", cfg.Database.Path, "project config wins over user config")
	assert.Equal(t, 500, cfg.Reasoning.MaxTokens, "untouched user keys survive")
	assert.Equal(t, 2, cfg.Reasoning.HistoryLimit, "environment overrides defaults")
	assert.Equal(t, 4.0, cfg.Reasoning.CharsPerToken, "defaults fill the rest")

	assert.Equal(t, SourceProject, ConfigSources["database.path"].Source)
	assert.Equal(t, SourceUser, ConfigSources["reasoning.max_tokens"].Source)

	// Environment outranks files.
	Reset()
	t.Setenv("TWIN_DATABASE_PATH", "env.db")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, "env.db", cfg.Database.Path)

	// Cached until Reset.
	again, err := Load()
	require.NoError(t, err)
	assert.Same(t, cfg, again)
}

func TestLoad_ShortDatabaseEnv(t *testing.T) {
	isolate(t)
	t.Setenv("TWIN_DB_PATH", "/tmp/elsewhere.db")

	path, err := GetDatabasePath()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/elsewhere.db", path)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.toml")
	writeFile(t, path, `
[registry]
path = "markers.yaml"
builtin = false

[validation]
plausibility_factor = 4.0
`)
	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "markers.yaml", cfg.Registry.Path)
	assert.False(t, cfg.Registry.Builtin)
	assert.Equal(t, 4.0, cfg.Validation.PlausibilityFactor)
	assert.Equal(t, "twin.db", cfg.Database.Path)

	_, err = LoadFromFile(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"empty database path", func(c *Config) { c.Database.Path = "" }, "database.path"},
		{"unknown table extension", func(c *Config) { c.Registry.Path = "markers.csv" }, "unrecognised table extension"},
		{"yaml table", func(c *Config) { c.Registry.Path = "markers.yml" }, ""},
		{"narrowing factor", func(c *Config) { c.Validation.PlausibilityFactor = 0.5 }, "plausibility_factor"},
		{"negative tolerance", func(c *Config) { c.Validation.FutureToleranceSeconds = -1 }, "future_tolerance_seconds"},
		{"zero max tokens", func(c *Config) { c.Reasoning.MaxTokens = 0 }, "max_tokens"},
		{"zero chars per token", func(c *Config) { c.Reasoning.CharsPerToken = 0 }, "chars_per_token"},
		{"negative history", func(c *Config) { c.Reasoning.HistoryLimit = -1 }, "history_limit"},
		{"duplicate domain order", func(c *Config) { c.Reasoning.DomainOrder = []string{"biomarkers", "biomarkers"} }, "twice"},
		{"empty schema domain", func(c *Config) { c.Schema.Domains = []string{""} }, "empty name"},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSectionConversions(t *testing.T) {
	cfg := defaultConfig(t)

	vc := cfg.Validation.ValidatorConfig()
	assert.Equal(t, 10.0, vc.PlausibilityFactor)
	assert.Equal(t, 5*time.Minute, vc.FutureTolerance)

	cfg.Reasoning.MaxTokens = 750
	cfg.Reasoning.DomainOrder = []string{"lifestyle"}
	gc := cfg.Reasoning.GeneratorConfig()
	assert.Equal(t, 750, gc.MaxTokens)
	assert.Equal(t, []string{"lifestyle"}, gc.DomainOrder)
	assert.Equal(t, 5, gc.HistoryLimit)

	// Zero values keep the reasoning defaults.
	gc = ReasoningConfig{HistoryLimit: -1}.GeneratorConfig()
	assert.Equal(t, 2000, gc.MaxTokens)
	assert.Equal(t, 5, gc.HistoryLimit)
}

func TestIntrospection(t *testing.T) {
	home, _ := isolate(t)
	writeFile(t, filepath.Join(home, ".twin", "am.toml"), "[log]\nlevel = \"debug\"\n")
	t.Setenv("TWIN_REASONING_MAX_TOKENS", "900")

	ci, err := GetConfigIntrospection()
	require.NoError(t, err)

	byKey := map[string]SettingInfo{}
	for _, s := range ci.Settings {
		byKey[s.Key] = s
	}
	assert.Equal(t, SourceUser, byKey["log.level"].Source)
	assert.Equal(t, filepath.Join(home, ".twin", "am.toml"), byKey["log.level"].SourcePath)
	assert.Equal(t, SourceDefault, byKey["database.path"].Source)
	assert.Equal(t, SourceEnvironment, byKey["reasoning.max_tokens"].Source)
	assert.Equal(t, "TWIN_REASONING_MAX_TOKENS", byKey["reasoning.max_tokens"].SourcePath)

	counts := ci.CountBySource()
	assert.Equal(t, 1, counts[SourceUser])
	assert.Equal(t, 1, counts[SourceEnvironment])

	for i := 1; i < len(ci.Settings); i++ {
		assert.Less(t, ci.Settings[i-1].Key, ci.Settings[i].Key, "settings are sorted")
	}
}

func TestMarkSettingsFromSource(t *testing.T) {
	settings := map[string]interface{}{
		"database": map[string]interface{}{"path": "a.db"},
		"log":      map[string]interface{}{"json": true, "level": "warn"},
	}
	sourceMap := map[string]SourceInfo{}
	markSettingsFromSource(settings, "", SourceProject, "/p/am.toml", sourceMap)

	assert.Len(t, sourceMap, 3)
	assert.Equal(t, SourceInfo{Source: SourceProject, Path: "/p/am.toml"}, sourceMap["log.json"])
}

func TestSetUserValue(t *testing.T) {
	home, _ := isolate(t)

	require.NoError(t, SetUserValue("reasoning.max_tokens", 1200))
	require.NoError(t, SetUserValue("database.path", "mine.db"))

	path := filepath.Join(home, ".twin", "am.toml")
	assert.Equal(t, path, UserConfigPath())

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1200, cfg.Reasoning.MaxTokens)
	assert.Equal(t, "mine.db", cfg.Database.Path)

	// The first write had nothing to back up; the second backed up the first.
	backup, err := os.ReadFile(path + ".back1")
	require.NoError(t, err)
	assert.Contains(t, string(backup), "max_tokens")
	assert.NotContains(t, string(backup), "mine.db")

	assert.Error(t, SetUserValue("", 1))
}

func TestCreateBackup_Rotates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "am.toml")
	for _, content := range []string{"one", "two", "three", "four", "five"} {
		writeFile(t, path, content)
		require.NoError(t, createBackup(path))
	}

	for suffix, want := range map[string]string{".back1": "five", ".back2": "four", ".back3": "three"} {
		got, err := os.ReadFile(path + suffix)
		require.NoError(t, err)
		assert.Equal(t, want, string(got), suffix)
	}
}
