package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/Ning0612/filesync/internal/domain"
)

// DefaultConfigPaths returns the default paths to search for config files
func DefaultConfigPaths() []string {
	paths := []string{
		".",
		"./configs",
	}

	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		paths = append(paths, filepath.Join(xdg, "filesync"))
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(homeDir, ".config", "filesync"))
	}

	return paths
}

// DefaultStateDir is <UserConfigDir>/filesync
func DefaultStateDir() string {
	if configDir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(configDir, "filesync")
	}
	return filepath.Join(os.TempDir(), "filesync-state")
}

// DefaultStagingRoot is <TempDir>/filesync
func DefaultStagingRoot() string {
	return filepath.Join(os.TempDir(), "filesync")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("update_interval", DefaultUpdateInterval)
	v.SetDefault("port", DefaultPort)
	v.SetDefault("bind", "")
	v.SetDefault("peer_timeout", DefaultPeerTimeout)
	v.SetDefault("max_index_size", DefaultMaxIndexSize)
	v.SetDefault("checksum", "sha256")
	v.SetDefault("notifications", true)
	v.SetDefault("state_dir", DefaultStateDir())
	v.SetDefault("staging_root", DefaultStagingRoot())
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("log.max_backups", 5)
}

// Load reads and parses a configuration file (JSON or YAML, by extension).
// If path is empty, searches the default locations for config.{json,yaml}.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		for _, p := range DefaultConfigPaths() {
			v.AddConfigPath(p)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
			return nil, domain.ErrConfigNotFound
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrConfigInvalid, err)
	}

	return decode(v)
}

// LoadFromString parses configuration content; format is "json" or "yaml"
func LoadFromString(content, format string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigType(format)

	if err := v.ReadConfig(strings.NewReader(content)); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfigInvalid, err)
	}

	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfigInvalid, err)
	}

	cfg.expandPaths()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
