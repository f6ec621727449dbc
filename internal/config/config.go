package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Ning0612/filesync/internal/core/checksum"
	"github.com/Ning0612/filesync/internal/domain"
	"github.com/Ning0612/filesync/internal/logger"
)

// Defaults
const (
	DefaultUpdateInterval = 15 // minutes
	DefaultPort           = 6688
	DefaultPeerTimeout    = 10 * time.Second
	DefaultMaxIndexSize   = 256 << 20
)

// Config represents the complete configuration for filesync
type Config struct {
	// Aliases name the peers remotes may pull from
	Aliases []domain.Peer `mapstructure:"aliases"`

	// Remotes are the local directories kept in sync
	Remotes []domain.RemoteConfig `mapstructure:"remotes"`

	// UpdateInterval between cycles, in minutes
	UpdateInterval int `mapstructure:"update_interval"`

	// Port and Bind of the request server
	Port int    `mapstructure:"port"`
	Bind string `mapstructure:"bind"`

	PeerTimeout  time.Duration `mapstructure:"peer_timeout"`
	MaxIndexSize int64         `mapstructure:"max_index_size"`

	// Checksum is "sha256" or "md5"
	Checksum string `mapstructure:"checksum"`

	// Notifications enables desktop notifications per installed file
	Notifications bool `mapstructure:"notifications"`

	// StateDir holds the history database and the instance lock
	StateDir string `mapstructure:"state_dir"`

	// StagingRoot receives staged downloads and backups; it is never cleaned
	StagingRoot string `mapstructure:"staging_root"`

	Log LogConfig `mapstructure:"log"`
}

// LogConfig configures console and optional file logging
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
	NoColor    bool   `mapstructure:"no_color"`
}

// Validate checks if the configuration is complete and consistent
func (c *Config) Validate() error {
	if c.UpdateInterval <= 0 {
		return fmt.Errorf("%w: update_interval must be positive, got %d", domain.ErrConfigInvalid, c.UpdateInterval)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port: %d", domain.ErrConfigInvalid, c.Port)
	}
	if c.PeerTimeout <= 0 {
		return fmt.Errorf("%w: peer_timeout must be positive", domain.ErrConfigInvalid)
	}
	if _, err := checksum.ParseAlgorithm(c.Checksum); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrConfigInvalid, err)
	}

	// Check alias uniqueness and addresses
	aliases := make(map[string]bool)
	for _, a := range c.Aliases {
		if a.Name == "" {
			return fmt.Errorf("%w: alias name cannot be empty", domain.ErrConfigInvalid)
		}
		if aliases[a.Name] {
			return fmt.Errorf("%w: duplicate alias name: %s", domain.ErrConfigInvalid, a.Name)
		}
		if a.HostOrName() == "" {
			return fmt.Errorf("%w: alias %s has no ip_address or host", domain.ErrConfigInvalid, a.Name)
		}
		if a.Port <= 0 || a.Port > 65535 {
			return fmt.Errorf("%w: alias %s has invalid port: %d", domain.ErrConfigInvalid, a.Name, a.Port)
		}
		aliases[a.Name] = true
	}

	// Check remote names, peer references and local directories
	remotes := make(map[string]bool)
	for _, r := range c.Remotes {
		if r.Name == "" {
			return fmt.Errorf("%w: remote name cannot be empty", domain.ErrConfigInvalid)
		}
		if remotes[r.Name] {
			return fmt.Errorf("%w: duplicate remote name: %s", domain.ErrConfigInvalid, r.Name)
		}
		if r.LocalPath == "" {
			return fmt.Errorf("%w: remote %s has no local_path", domain.ErrConfigInvalid, r.Name)
		}
		info, err := os.Stat(r.LocalPath)
		if err != nil {
			return fmt.Errorf("%w: remote %s: %v", domain.ErrConfigInvalid, r.Name, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("%w: remote %s: %s is not a directory", domain.ErrConfigInvalid, r.Name, r.LocalPath)
		}
		for _, p := range r.Peers {
			if !aliases[p] {
				return fmt.Errorf("%w: %w: remote %s references %s",
					domain.ErrConfigInvalid, domain.ErrUnknownAlias, r.Name, p)
			}
		}
		remotes[r.Name] = true
	}

	return nil
}

// Interval returns UpdateInterval as a duration
func (c *Config) Interval() time.Duration {
	return time.Duration(c.UpdateInterval) * time.Minute
}

// Algorithm returns the parsed checksum algorithm
func (c *Config) Algorithm() checksum.Algorithm {
	algo, err := checksum.ParseAlgorithm(c.Checksum)
	if err != nil {
		return checksum.SHA256
	}
	return algo
}

// GetRemote returns a remote by name
func (c *Config) GetRemote(name string) (*domain.RemoteConfig, error) {
	for i := range c.Remotes {
		if c.Remotes[i].Name == name {
			return &c.Remotes[i], nil
		}
	}
	return nil, fmt.Errorf("%w: unknown remote: %s", domain.ErrConfigInvalid, name)
}

// RemoteNames returns remote names in configuration order
func (c *Config) RemoteNames() []string {
	names := make([]string, 0, len(c.Remotes))
	for _, r := range c.Remotes {
		names = append(names, r.Name)
	}
	return names
}

// LoggerConfig converts the log section into a logger.Config. Console output
// goes to stderr; a file output is added when log.file is set.
func (c *Config) LoggerConfig() logger.Config {
	cfg := logger.Config{
		Level:   logger.ParseLevel(c.Log.Level),
		Format:  logger.ParseFormat(c.Log.Format),
		Outputs: []logger.OutputConfig{{Type: logger.OutputStderr}},
		NoColor: c.Log.NoColor,
	}
	if c.Log.File != "" {
		cfg.Outputs = append(cfg.Outputs, logger.OutputConfig{Type: logger.OutputFile})
		cfg.File = logger.FileConfig{
			Path:       c.Log.File,
			MaxSizeMB:  c.Log.MaxSizeMB,
			MaxAgeDays: c.Log.MaxAgeDays,
			MaxBackups: c.Log.MaxBackups,
			Compress:   c.Log.Compress,
		}
	}
	return cfg
}

// expandPaths applies ExpandPath to every path-valued field
func (c *Config) expandPaths() {
	for i := range c.Remotes {
		if c.Remotes[i].LocalPath != "" {
			c.Remotes[i].LocalPath = ExpandPath(c.Remotes[i].LocalPath)
		}
	}
	if c.StateDir != "" {
		c.StateDir = ExpandPath(c.StateDir)
	}
	if c.StagingRoot != "" {
		c.StagingRoot = ExpandPath(c.StagingRoot)
	}
	if c.Log.File != "" {
		c.Log.File = ExpandPath(c.Log.File)
	}
}

// ExpandPath expands ~ and environment variables in a path
func ExpandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err == nil {
			if len(path) > 1 && (path[1] == '/' || path[1] == filepath.Separator) {
				path = filepath.Join(home, path[2:])
			} else if len(path) == 1 {
				path = home
			}
		}
	}
	path = os.ExpandEnv(path)
	return filepath.Clean(path)
}
