// Package fetchcfg persists the engine's default configuration options as
// a YAML file, with load/save/init operations mirroring a typical CLI
// tool's user-level config file.
package fetchcfg

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kagedl/fetchengine/internal/coordinator"
	"github.com/kagedl/fetchengine/internal/session"
)

const (
	ConfigFileName = "fetchengine.yml"
	AppDirName     = "fetchengine"
)

// ConfigDir returns the standard config directory: ~/.config/fetchengine/
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", AppDirName), nil
}

// ConfigPath returns the path to the config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ConfigFileName), nil
}

// Config holds the engine-wide defaults applied to any session that does
// not explicitly override them. Fields mirror the subset of
// session.Options that make sense as a persisted default.
type Config struct {
	Chunks               int      `yaml:"chunks,omitempty"`
	MaxBPS               int64    `yaml:"max_bps,omitempty"`
	BufferSize           int      `yaml:"buffer_size,omitempty"`
	ExcludedExtensions   []string `yaml:"excluded_extensions,omitempty"`
	WriteMode            string   `yaml:"write_mode,omitempty"`
	MinReloadSize        int64    `yaml:"min_reload_size,omitempty"`
	Attempts             int      `yaml:"attempts,omitempty"`
	UserAgent            string   `yaml:"user_agent,omitempty"`
	TimeoutSeconds       int      `yaml:"timeout_seconds,omitempty"`
	MergeWhileProgress   bool     `yaml:"merge_while_progress,omitempty"`
	DeleteOnFailure      bool     `yaml:"delete_on_failure,omitempty"`
	SupportsHeadRequest  bool     `yaml:"supports_head_request,omitempty"`
}

// DefaultConfig returns a Config with the engine's built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Chunks:              4,
		BufferSize:          1024,
		WriteMode:           "append_or_truncate",
		Attempts:            5,
		UserAgent:           "fetchengine/1.0",
		TimeoutSeconds:      30,
		MergeWhileProgress:  true,
		SupportsHeadRequest: true,
	}
}

// Exists checks if the config file exists.
func Exists() bool {
	path, err := ConfigPath()
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// Load reads the config from ~/.config/fetchengine/fetchengine.yml.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to ~/.config/fetchengine/fetchengine.yml, creating the
// directory if needed.
func Save(cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}

	configPath, err := ConfigPath()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	header := "# fetchengine configuration file\n# Run 'fetchctl config init' to regenerate with defaults\n\n"
	return os.WriteFile(configPath, []byte(header+string(data)), 0o644)
}

// Init creates a new config file with default values; it refuses to
// overwrite an existing one.
func Init() error {
	if Exists() {
		path, _ := ConfigPath()
		return fmt.Errorf("%s already exists", path)
	}
	return Save(DefaultConfig())
}

// LoadOrDefault loads the persisted config if present, otherwise returns
// the built-in defaults.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return DefaultConfig()
	}
	return cfg
}

var writeModeByName = map[string]coordinator.WriteMode{
	"overwrite":           coordinator.Overwrite,
	"create_new":          coordinator.CreateNew,
	"append_or_truncate":  coordinator.AppendOrTruncate,
	"append_strict":       coordinator.AppendStrict,
}

// ToOptions converts the persisted defaults into a session.Options
// skeleton. Callers set URL, DstDir, and any per-request overrides before
// passing the result to session.New.
func (c *Config) ToOptions() session.Options {
	mode, ok := writeModeByName[c.WriteMode]
	if !ok {
		mode = coordinator.AppendOrTruncate
	}

	return session.Options{
		Chunks:              c.Chunks,
		MaxBPS:              c.MaxBPS,
		BufferSize:          c.BufferSize,
		ExcludedExtensions:  c.ExcludedExtensions,
		WriteMode:           mode,
		MinReloadSize:       c.MinReloadSize,
		Attempts:            c.Attempts,
		UserAgent:           c.UserAgent,
		Timeout:             time.Duration(c.TimeoutSeconds) * time.Second,
		MergeWhileProgress:  c.MergeWhileProgress,
		DeleteOnFailure:     c.DeleteOnFailure,
		SupportsHeadRequest: c.SupportsHeadRequest,
	}
}
