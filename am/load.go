package am

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/viper"

	"github.com/teranos/healthtwin/errors"
)

// EnvPrefix prefixes every environment override, e.g. TWIN_DATABASE_PATH.
const EnvPrefix = "TWIN"

var (
	globalConfig  *Config
	viperInstance *viper.Viper

	// ConfigSources records which source set each key during the last load.
	ConfigSources   = make(map[string]SourceInfo)
	configSourcesMu sync.Mutex
)

// Load reads the healthtwin configuration using Viper
func Load() (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	config, err := LoadWithViper(initViper())
	if err != nil {
		return nil, err
	}

	globalConfig = config
	return globalConfig, nil
}

// GetViper returns the Viper instance for advanced configuration access
func GetViper() *viper.Viper {
	return initViper()
}

// LoadWithViper loads configuration using a provided Viper instance
func LoadWithViper(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	return &config, nil
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")

	// Defaults only; environment is not consulted for an explicit file
	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", configPath)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal config from %s", configPath)
	}

	return &config, nil
}

// Reset clears the cached configuration (useful for testing)
func Reset() {
	globalConfig = nil
	viperInstance = nil

	configSourcesMu.Lock()
	ConfigSources = make(map[string]SourceInfo)
	configSourcesMu.Unlock()
}

// initViper initializes Viper with configuration sources and defaults
func initViper() *viper.Viper {
	if viperInstance != nil {
		return viperInstance
	}

	v := viper.New()

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	BindSensitiveEnvVars(v)

	SetDefaults(v)

	// system -> user -> project -> env vars
	mergeConfigFiles(v)

	viperInstance = v
	return v
}

// UserConfigDir returns ~/.twin, or "" when the home directory is unknown.
func UserConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".twin")
}

// findProjectConfig walks up from the working directory looking for am.toml
// and returns the first one found, or "".
func findProjectConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		amPath := filepath.Join(dir, "am.toml")
		if _, err := os.Stat(amPath); err == nil {
			return amPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// configFile is one candidate file in precedence order.
type configFile struct {
	path   string
	source ConfigSource
}

// configFiles lists candidate files, lowest precedence first.
func configFiles() []configFile {
	files := []configFile{{path: "/etc/twin/am.toml", source: SourceSystem}}
	if dir := UserConfigDir(); dir != "" {
		files = append(files, configFile{path: filepath.Join(dir, "am.toml"), source: SourceUser})
	}
	if project := findProjectConfig(); project != "" {
		files = append(files, configFile{path: project, source: SourceProject})
	}
	return files
}

// mergeConfigFiles merges every existing config file into v.
// Precedence (lowest to highest): system < user < project < env vars.
// v.Set outranks the environment in viper, so keys with an env override are
// not copied.
func mergeConfigFiles(v *viper.Viper) {
	configSourcesMu.Lock()
	defer configSourcesMu.Unlock()

	for _, cf := range configFiles() {
		if _, err := os.Stat(cf.path); err != nil {
			continue
		}

		tempViper := viper.New()
		tempViper.SetConfigFile(cf.path)
		tempViper.SetConfigType("toml")
		if err := tempViper.ReadInConfig(); err != nil {
			continue
		}

		// Leaf keys, so a later file only replaces what it names
		for _, key := range tempViper.AllKeys() {
			if os.Getenv(EnvKey(key)) != "" {
				continue
			}
			v.Set(key, tempViper.Get(key))
		}
		markSettingsFromSource(tempViper.AllSettings(), "", cf.source, cf.path, ConfigSources)
	}
}

// markSettingsFromSource records source for every leaf key in settings,
// flattening nested tables into dotted keys.
func markSettingsFromSource(settings map[string]interface{}, prefix string, source ConfigSource, path string, sourceMap map[string]SourceInfo) {
	for key, value := range settings {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}
		if nested, ok := value.(map[string]interface{}); ok {
			markSettingsFromSource(nested, fullKey, source, path, sourceMap)
			continue
		}
		sourceMap[fullKey] = SourceInfo{Source: source, Path: path}
	}
}

// Get returns a configuration value using dot notation
func Get(key string) interface{} {
	return initViper().Get(key)
}

// GetDatabasePath returns the configured database path
func GetDatabasePath() (string, error) {
	config, err := Load()
	if err != nil {
		return "", err
	}
	return config.Database.Path, nil
}
