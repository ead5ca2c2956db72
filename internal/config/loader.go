package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Loader handles configuration loading from various sources
type Loader struct{}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{}
}

// LoadForRun loads configuration for a pipeline run: defaults, then the
// global config file, then a local one found by walking up from the current
// directory, then command-line flags.
func (l *Loader) LoadForRun(cmd *cobra.Command) (*Config, error) {
	l.setupViperDefaults()
	l.loadGlobalConfig()
	l.loadLocalConfig()
	l.bindCommandFlags(cmd)

	return Load()
}

// setupViperDefaults sets up default values for viper
func (l *Loader) setupViperDefaults() {
	viper.SetDefault("source_url", DefaultSourceURL)
	viper.SetDefault("source_ref", DefaultSourceRef)
	viper.SetDefault("profile_dir", DefaultProfileDir)
	viper.SetDefault("budget", DefaultBudget)
	viper.SetDefault("log_level", DefaultLogLevel)
}

// loadGlobalConfig loads global configuration from the user config directory
func (l *Loader) loadGlobalConfig() {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return
	}

	globalDir := filepath.Join(configDir, "boostpack")

	for _, ext := range []string{"yml", "yaml", "json", "toml"} {
		globalPath := filepath.Join(globalDir, "config."+ext)

		if _, err := os.Stat(globalPath); err == nil {
			viper.SetConfigFile(globalPath)

			if err := viper.ReadInConfig(); err == nil {
				break
			}
		}
	}
}

// loadLocalConfig loads local configuration from the working directory
func (l *Loader) loadLocalConfig() {
	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	localPath := findLocalConfig(cwd)
	if localPath != "" {
		viper.SetConfigFile(localPath)
		_ = viper.ReadInConfig()
	}
}

// localConfigNames are the project-level config file names, probed in
// precedence order in each directory.
var localConfigNames = []string{
	".boostpack.yml",
	".boostpack.yaml",
	".boostpack.json",
	".boostpack.toml",
}

// findLocalConfig walks from dir up to the filesystem root and returns the
// first project config file it finds, or "" when there is none.
func findLocalConfig(dir string) string {
	for {
		for _, name := range localConfigNames {
			candidate := filepath.Join(dir, name)
			if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
				return candidate
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}

		dir = parent
	}
}

// bindCommandFlags binds command flags to viper
func (l *Loader) bindCommandFlags(cmd *cobra.Command) {
	_ = viper.BindPFlag("source_url", cmd.Flags().Lookup("source-url"))
	_ = viper.BindPFlag("source_ref", cmd.Flags().Lookup("source-ref"))
	_ = viper.BindPFlag("profile_dir", cmd.Flags().Lookup("profiles"))
	_ = viper.BindPFlag("arena_dir", cmd.Flags().Lookup("arena"))
	_ = viper.BindPFlag("jobs", cmd.Flags().Lookup("jobs"))
	_ = viper.BindPFlag("budget", cmd.Flags().Lookup("budget"))
	_ = viper.BindPFlag("log_level", cmd.Flags().Lookup("log-level"))
	_ = viper.BindPFlag("no-cache", cmd.Flags().Lookup("no-cache"))
}
