package config

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/viper"

	"github.com/fernwall/mainspring/errors"
)

var (
	globalConfig  *Config
	viperInstance *viper.Viper
	mu            sync.Mutex
)

// Load reads the Mainspring configuration using Viper.
// The result is cached; use Reset to clear it (tests).
func Load() (*Config, error) {
	mu.Lock()
	defer mu.Unlock()

	if globalConfig != nil {
		return globalConfig, nil
	}

	v := initViper()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}

	globalConfig = &cfg
	return globalConfig, nil
}

// LoadFromFile loads configuration from a specific file path.
func LoadFromFile(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")
	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "read config file %s", configPath)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrapf(err, "unmarshal config from %s", configPath)
	}

	return &cfg, nil
}

// GetViper returns the Viper instance for advanced configuration access.
func GetViper() *viper.Viper {
	mu.Lock()
	defer mu.Unlock()
	return initViper()
}

// Reset clears the cached configuration (useful for testing).
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	globalConfig = nil
	viperInstance = nil
}

// initViper initializes Viper with configuration sources and defaults.
// Callers must hold mu.
func initViper() *viper.Viper {
	if viperInstance != nil {
		return viperInstance
	}

	v := viper.New()

	v.SetEnvPrefix("MAINSPRING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	// Merge config files in precedence order: user < project
	if home, err := os.UserHomeDir(); err == nil {
		userPath := filepath.Join(home, ".mainspring", "config.toml")
		if _, err := os.Stat(userPath); err == nil {
			v.SetConfigFile(userPath)
			v.SetConfigType("toml")
			_ = v.MergeInConfig()
		}
	}
	if projectPath := findProjectConfig(); projectPath != "" {
		v.SetConfigFile(projectPath)
		v.SetConfigType("toml")
		_ = v.MergeInConfig()
	}

	viperInstance = v
	return v
}

// ProjectConfigPath returns the path of the project-level mainspring.toml
// in effect, or empty string when none exists. The serve command watches
// this file for hot reload.
func ProjectConfigPath() string {
	return findProjectConfig()
}

// findProjectConfig searches for mainspring.toml by walking up the directory
// tree from the working directory. Returns empty string if none found.
func findProjectConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		path := filepath.Join(dir, "mainspring.toml")
		if _, err := os.Stat(path); err == nil {
			return path
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}
