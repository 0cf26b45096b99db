// Package config handles Tasker inbox configuration loading and validation.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tOgg1/tasker/internal/models"
)

// Config is the root configuration structure.
type Config struct {
	// Global settings
	Global GlobalConfig `yaml:"global" mapstructure:"global"`

	// API holds backend connection settings.
	API APIConfig `yaml:"api" mapstructure:"api"`

	// User identifies the authenticated caller.
	User UserConfig `yaml:"user" mapstructure:"user"`

	// Poll controls the background message poller.
	Poll PollConfig `yaml:"poll" mapstructure:"poll"`

	// Inbox controls selection and scrolling behavior.
	Inbox InboxConfig `yaml:"inbox" mapstructure:"inbox"`

	// Cache controls the local message snapshot database.
	Cache CacheConfig `yaml:"cache" mapstructure:"cache"`

	// Logging settings
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`

	// TUI settings
	TUI TUIConfig `yaml:"tui" mapstructure:"tui"`
}

// GlobalConfig contains directory settings.
type GlobalConfig struct {
	// DataDir is where the inbox stores its data (default: ~/.local/share/tasker).
	DataDir string `yaml:"data_dir" mapstructure:"data_dir"`

	// ConfigDir is where config files are stored (default: ~/.config/tasker).
	ConfigDir string `yaml:"config_dir" mapstructure:"config_dir"`
}

// APIConfig contains backend settings.
type APIConfig struct {
	// BaseURL is the root of the Tasker REST API.
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`

	// Token is the bearer credential sent with every request.
	Token string `yaml:"token" mapstructure:"token"`

	// Timeout bounds each individual request.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`

	// TasksPath is the endpoint listing the caller's tasks.
	TasksPath string `yaml:"tasks_path" mapstructure:"tasks_path"`
}

// UserConfig identifies the caller.
type UserConfig struct {
	ID   int64       `yaml:"id" mapstructure:"id"`
	Name string      `yaml:"name" mapstructure:"name"`
	Role models.Role `yaml:"role" mapstructure:"role"`
}

// PollConfig contains poller and retry settings.
type PollConfig struct {
	// Interval is the time between incremental refreshes.
	Interval time.Duration `yaml:"interval" mapstructure:"interval"`

	// SilentFailures is how many consecutive failures are tolerated without a notice.
	SilentFailures int `yaml:"silent_failures" mapstructure:"silent_failures"`

	// MaxFailures is the last failure count that keeps polling alive.
	MaxFailures int `yaml:"max_failures" mapstructure:"max_failures"`
}

// InboxConfig contains selection settings.
type InboxConfig struct {
	// ReadReceiptConcurrency bounds parallel mark-as-read calls.
	ReadReceiptConcurrency int `yaml:"read_receipt_concurrency" mapstructure:"read_receipt_concurrency"`

	// ScrollThreshold is the distance from the bottom still considered at-bottom.
	ScrollThreshold int `yaml:"scroll_threshold" mapstructure:"scroll_threshold"`
}

// CacheConfig contains local snapshot settings.
type CacheConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// Path is the SQLite database file path.
	Path string `yaml:"path" mapstructure:"path"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `yaml:"level" mapstructure:"level"`

	// Format is the output format (json, console).
	Format string `yaml:"format" mapstructure:"format"`

	// File is an optional log file path. The TUI always logs to a file.
	File string `yaml:"file" mapstructure:"file"`

	// EnableCaller adds caller information to logs.
	EnableCaller bool `yaml:"enable_caller" mapstructure:"enable_caller"`
}

// TUIConfig contains TUI settings.
type TUIConfig struct {
	// Theme is the color theme (default, high-contrast).
	Theme string `yaml:"theme" mapstructure:"theme"`

	// ScrollThreshold is the at-bottom threshold in rows.
	ScrollThreshold int `yaml:"scroll_threshold" mapstructure:"scroll_threshold"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		Global: GlobalConfig{
			DataDir:   filepath.Join(homeDir, ".local", "share", "tasker"),
			ConfigDir: filepath.Join(homeDir, ".config", "tasker"),
		},
		API: APIConfig{
			BaseURL:   "http://localhost:8000",
			Timeout:   10 * time.Second,
			TasksPath: "/tasks/user/my-tasks",
		},
		User: UserConfig{
			Role: models.RoleCustomer,
		},
		Poll: PollConfig{
			Interval:       5 * time.Second,
			SilentFailures: 3,
			MaxFailures:    10,
		},
		Inbox: InboxConfig{
			ReadReceiptConcurrency: 4,
			ScrollThreshold:        50,
		},
		Cache: CacheConfig{
			Enabled: true,
			Path:    "", // Will be set to DataDir/inbox.db
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		TUI: TUIConfig{
			Theme:           "default",
			ScrollThreshold: 2,
		},
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.API.BaseURL) == "" {
		return fmt.Errorf("api.base_url is required")
	}
	parsed, err := url.Parse(c.API.BaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("api.base_url must be an absolute URL")
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be positive")
	}
	if !strings.HasPrefix(c.API.TasksPath, "/") {
		return fmt.Errorf("api.tasks_path must start with /")
	}

	if c.User.Role != "" && !c.User.Role.Valid() {
		return fmt.Errorf("user.role must be customer or tasker")
	}

	if c.Poll.Interval < 100*time.Millisecond {
		return fmt.Errorf("poll.interval must be at least 100ms")
	}
	if c.Poll.SilentFailures < 0 {
		return fmt.Errorf("poll.silent_failures must not be negative")
	}
	if c.Poll.MaxFailures < c.Poll.SilentFailures {
		return fmt.Errorf("poll.max_failures must be at least poll.silent_failures")
	}

	if c.Inbox.ReadReceiptConcurrency < 1 {
		return fmt.Errorf("inbox.read_receipt_concurrency must be at least 1")
	}
	if c.Inbox.ScrollThreshold < 0 || c.TUI.ScrollThreshold < 0 {
		return fmt.Errorf("scroll thresholds must not be negative")
	}

	return nil
}

// ValidateUser checks that a caller identity is configured. Commands that
// talk to the backend call it; `config` inspection does not.
func (c *Config) ValidateUser() error {
	if c.User.ID <= 0 {
		return fmt.Errorf("user.id is required (set TASKER_USER_ID or --user-id)")
	}
	return nil
}

// Me returns the configured caller.
func (c *Config) Me() models.User {
	return models.User{ID: c.User.ID, Name: c.User.Name, Role: c.User.Role}
}

// EnsureDirectories creates required directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Global.DataDir, c.Global.ConfigDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the full cache database path.
func (c *Config) DatabasePath() string {
	if c.Cache.Path != "" {
		return c.Cache.Path
	}
	return filepath.Join(c.Global.DataDir, "inbox.db")
}

// LogFilePath returns the log file used when stderr is owned by the TUI.
func (c *Config) LogFilePath() string {
	if c.Logging.File != "" {
		return c.Logging.File
	}
	return filepath.Join(c.Global.DataDir, "tasker-inbox.log")
}
