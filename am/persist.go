package am

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/teranos/healthtwin/errors"
	"github.com/teranos/healthtwin/logger"
)

// UserConfigPath returns ~/.twin/am.toml, or "" when the home directory is
// unknown.
func UserConfigPath() string {
	dir := UserConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "am.toml")
}

// SetUserValue writes key (dot notation) into the user config file, keeping
// three rotating backups of the previous content. The cached configuration is
// reset so the next Load sees the change.
func SetUserValue(key string, value interface{}) error {
	path := UserConfigPath()
	if path == "" {
		return errors.New("could not determine home directory")
	}
	if err := setValueInFile(path, key, value); err != nil {
		return err
	}
	Reset()
	return nil
}

func setValueInFile(path, key string, value interface{}) error {
	if key == "" {
		return errors.New("config key cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return errors.Wrapf(err, "failed to create %s", filepath.Dir(path))
	}

	config := make(map[string]interface{})
	if data, err := os.ReadFile(path); err == nil {
		if err := toml.Unmarshal(data, &config); err != nil {
			return errors.Wrapf(err, "failed to parse %s", path)
		}
	} else if !os.IsNotExist(err) {
		return errors.Wrapf(err, "failed to read %s", path)
	}

	parts := strings.Split(key, ".")
	table := config
	for _, part := range parts[:len(parts)-1] {
		next, ok := table[part].(map[string]interface{})
		if !ok {
			next = make(map[string]interface{})
			table[part] = next
		}
		table = next
	}
	table[parts[len(parts)-1]] = value

	if err := createBackup(path); err != nil {
		return errors.Wrap(err, "failed to create backup")
	}

	data, err := toml.Marshal(config)
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}
	if err := os.WriteFile(path, data, DefaultFilePermissions); err != nil {
		return errors.Wrapf(err, "failed to write %s", path)
	}
	return nil
}

// createBackup rotates .back1 -> .back2 -> .back3 and copies the current file
// to .back1.
func createBackup(configPath string) error {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil
	}

	back1 := configPath + ".back1"
	back2 := configPath + ".back2"
	back3 := configPath + ".back3"

	if err := os.Remove(back3); err != nil && !os.IsNotExist(err) {
		// Not fatal, the rename below overwrites it anyway
		logger.Warnw("failed to delete old config backup", logger.FieldPath, back3, logger.FieldError, err)
	}

	for _, step := range [][2]string{{back2, back3}, {back1, back2}} {
		if _, err := os.Stat(step[0]); err == nil {
			if err := os.Rename(step[0], step[1]); err != nil {
				return errors.Wrapf(err, "failed to rotate %s", filepath.Base(step[0]))
			}
		}
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		return errors.Wrap(err, "failed to read config for backup")
	}
	if err := os.WriteFile(back1, content, DefaultFilePermissions); err != nil {
		return errors.Wrap(err, "failed to create .back1")
	}
	return nil
}
