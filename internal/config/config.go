package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values
const (
	DefaultSourceURL  = "https://github.com/microsoft/LightGBM.git"
	DefaultSourceRef  = "v4.5.0"
	DefaultProfileDir = "profiles"
	DefaultLogLevel   = "info"

	// DefaultBudget is the coarse wall-clock budget for a whole run.
	// Exceeding it is treated as a hung build.
	DefaultBudget = 45 * time.Minute
)

// Holds the configuration options for boostpack
type Config struct {
	// URL of the wrapped library's git repository
	SourceURL string

	// Ref (tag, branch or hash) pinned for this run
	SourceRef string

	// Directory containing toolchain profile files (*.hcl)
	ProfileDir string

	// Arena directory for artifact hand-off (empty means the default
	// under the working directory)
	ArenaDir string

	// Cap on compile parallelism (0 means detected core count)
	Jobs int

	// Wall-clock budget for the whole run
	Budget time.Duration

	// Log level (trace, debug, info, warn, error)
	LogLevel string

	// Re-run stages even when the arena already holds their output
	NoCache bool
}

func Load() (*Config, error) {
	cfg := &Config{
		SourceURL:  viper.GetString("source_url"),
		SourceRef:  viper.GetString("source_ref"),
		ProfileDir: viper.GetString("profile_dir"),
		ArenaDir:   viper.GetString("arena_dir"),
		Jobs:       viper.GetInt("jobs"),
		Budget:     viper.GetDuration("budget"),
		LogLevel:   viper.GetString("log_level"),
		NoCache:    viper.GetBool("no-cache"),
	}

	if cfg.SourceURL == "" {
		cfg.SourceURL = DefaultSourceURL
	}

	if cfg.SourceRef == "" {
		cfg.SourceRef = DefaultSourceRef
	}

	if cfg.Budget <= 0 {
		cfg.Budget = DefaultBudget
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.ProfileDir == "" {
		c.ProfileDir = DefaultProfileDir
	}

	abs, err := filepath.Abs(c.ProfileDir)
	if err != nil {
		return fmt.Errorf("invalid profile directory: %v", err)
	}

	c.ProfileDir = abs

	if c.ArenaDir != "" {
		abs, err := filepath.Abs(c.ArenaDir)
		if err != nil {
			return fmt.Errorf("invalid arena directory: %v", err)
		}

		c.ArenaDir = abs
	}

	if c.Jobs < 0 {
		return fmt.Errorf("jobs must not be negative: %d", c.Jobs)
	}

	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}

	return nil
}
