package am

import (
	"os"
	"sort"
	"strings"

	"github.com/teranos/healthtwin/errors"
)

// ConfigSource represents where a configuration value came from
type ConfigSource string

const (
	SourceDefault     ConfigSource = "default"
	SourceSystem      ConfigSource = "system"      // /etc/twin/am.toml
	SourceUser        ConfigSource = "user"        // ~/.twin/am.toml
	SourceProject     ConfigSource = "project"     // nearest am.toml above the working directory
	SourceEnvironment ConfigSource = "environment" // TWIN_* env vars
)

// SettingInfo contains metadata about a configuration setting
type SettingInfo struct {
	Key        string       `json:"key" yaml:"key"`
	Value      interface{}  `json:"value" yaml:"value"`
	Source     ConfigSource `json:"source" yaml:"source"`
	SourcePath string       `json:"source_path,omitempty" yaml:"source_path,omitempty"` // File path or env var name
}

// ConfigIntrospection provides metadata about the active configuration
type ConfigIntrospection struct {
	Settings []SettingInfo `json:"settings" yaml:"settings"`
}

// GetConfigIntrospection lists every effective setting with the source that
// set it.
func GetConfigIntrospection() (*ConfigIntrospection, error) {
	v := GetViper()
	if _, err := Load(); err != nil {
		return nil, errors.Wrap(err, "failed to load config for introspection")
	}

	configSourcesMu.Lock()
	sources := make(map[string]SourceInfo, len(ConfigSources))
	for k, si := range ConfigSources {
		sources[k] = si
	}
	configSourcesMu.Unlock()

	introspection := &ConfigIntrospection{Settings: make([]SettingInfo, 0)}
	flattenSettingsWithSources(v.AllSettings(), "", introspection, sources)
	return introspection, nil
}

// SourceInfo tracks where a configuration value originated
type SourceInfo struct {
	Source ConfigSource
	Path   string // File path or environment variable name
}

// EnvKey returns the environment variable that overrides key.
func EnvKey(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// flattenSettingsWithSources flattens settings and assigns sources from sourceMap
func flattenSettingsWithSources(settings map[string]interface{}, prefix string, introspection *ConfigIntrospection, sourceMap map[string]SourceInfo) {
	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := settings[key]
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}

		if nestedMap, ok := value.(map[string]interface{}); ok {
			flattenSettingsWithSources(nestedMap, fullKey, introspection, sourceMap)
			continue
		}

		sourceInfo := SourceInfo{Source: SourceDefault, Path: "built-in default"}
		if si, ok := sourceMap[fullKey]; ok {
			sourceInfo = si
		}

		// Environment wins over every file
		envKey := EnvKey(fullKey)
		if envValue := os.Getenv(envKey); envValue != "" {
			sourceInfo = SourceInfo{Source: SourceEnvironment, Path: envKey}
		}

		introspection.Settings = append(introspection.Settings, SettingInfo{
			Key:        fullKey,
			Value:      value,
			Source:     sourceInfo.Source,
			SourcePath: sourceInfo.Path,
		})
	}
}

// CountBySource summarises how many settings each source contributed.
func (ci *ConfigIntrospection) CountBySource() map[ConfigSource]int {
	counts := make(map[ConfigSource]int)
	for _, s := range ci.Settings {
		counts[s.Source]++
	}
	return counts
}
