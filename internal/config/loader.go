package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment variable overrides.
const EnvPrefix = "TASKER"

// Loader handles configuration loading with Viper.
type Loader struct {
	v          *viper.Viper
	configFile string
	envFile    string
	overrides  map[string]any
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		v:         viper.New(),
		envFile:   ".env",
		overrides: make(map[string]any),
	}
}

// SetConfigFile sets an explicit config file path.
func (l *Loader) SetConfigFile(path string) {
	l.configFile = path
}

// SetEnvFile sets the dotenv file read before environment bindings.
// An empty path disables dotenv loading.
func (l *Loader) SetEnvFile(path string) {
	l.envFile = path
}

// Override forces a key to a value, taking precedence over every other source.
// CLI flags use this.
func (l *Loader) Override(key string, value any) {
	l.overrides[key] = value
}

// Load loads configuration with proper precedence:
// defaults < config file < .env < env vars < CLI flags
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if err := l.loadEnvFile(); err != nil {
		return nil, err
	}

	l.setupViper(cfg)

	if err := l.loadConfigFile(); err != nil {
		// Config file is optional, only error if explicitly specified
		if l.configFile != "" {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	for key, value := range l.overrides {
		l.v.Set(key, value)
	}

	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	expandPaths(cfg)
	cfg.API.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.API.BaseURL), "/")

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// loadEnvFile reads KEY=value pairs into the process environment without
// replacing variables that are already set.
func (l *Loader) loadEnvFile() error {
	if strings.TrimSpace(l.envFile) == "" {
		return nil
	}
	if _, err := os.Stat(l.envFile); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to stat env file: %w", err)
	}
	if err := godotenv.Load(l.envFile); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", l.envFile, err)
	}
	return nil
}

func expandTilde(path string) string {
	if path == "" {
		return path
	}
	if path == "~" {
		home, _ := os.UserHomeDir()
		return home
	}
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

func expandPaths(cfg *Config) {
	cfg.Global.DataDir = expandTilde(cfg.Global.DataDir)
	cfg.Global.ConfigDir = expandTilde(cfg.Global.ConfigDir)
	cfg.Cache.Path = expandTilde(cfg.Cache.Path)
	cfg.Logging.File = expandTilde(cfg.Logging.File)
}

func (l *Loader) setupViper(cfg *Config) {
	v := l.v

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		v.AddConfigPath(filepath.Join(xdgConfig, "tasker"))
	}
	if homeDir, _ := os.UserHomeDir(); homeDir != "" {
		v.AddConfigPath(filepath.Join(homeDir, ".config", "tasker"))
	}
	v.AddConfigPath(".")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	l.setDefaults(cfg)

	// Viper's Unmarshal ignores env vars on nested keys unless they are bound.
	bindEnvVars(v)
	v.AutomaticEnv()
}

func (l *Loader) setDefaults(cfg *Config) {
	v := l.v

	v.SetDefault("global.data_dir", cfg.Global.DataDir)
	v.SetDefault("global.config_dir", cfg.Global.ConfigDir)

	v.SetDefault("api.base_url", cfg.API.BaseURL)
	v.SetDefault("api.token", cfg.API.Token)
	v.SetDefault("api.timeout", cfg.API.Timeout)
	v.SetDefault("api.tasks_path", cfg.API.TasksPath)

	v.SetDefault("user.id", cfg.User.ID)
	v.SetDefault("user.name", cfg.User.Name)
	v.SetDefault("user.role", string(cfg.User.Role))

	v.SetDefault("poll.interval", cfg.Poll.Interval)
	v.SetDefault("poll.silent_failures", cfg.Poll.SilentFailures)
	v.SetDefault("poll.max_failures", cfg.Poll.MaxFailures)

	v.SetDefault("inbox.read_receipt_concurrency", cfg.Inbox.ReadReceiptConcurrency)
	v.SetDefault("inbox.scroll_threshold", cfg.Inbox.ScrollThreshold)

	v.SetDefault("cache.enabled", cfg.Cache.Enabled)
	v.SetDefault("cache.path", cfg.Cache.Path)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.enable_caller", cfg.Logging.EnableCaller)

	v.SetDefault("tui.theme", cfg.TUI.Theme)
	v.SetDefault("tui.scroll_threshold", cfg.TUI.ScrollThreshold)
}

func (l *Loader) loadConfigFile() error {
	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
	}

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return err
	}
	return nil
}

// ConfigFileUsed returns the config file that was loaded.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// configKeys lists every key that accepts a TASKER_* environment override.
var configKeys = []string{
	"global.data_dir",
	"global.config_dir",
	"api.base_url",
	"api.token",
	"api.timeout",
	"api.tasks_path",
	"user.id",
	"user.name",
	"user.role",
	"poll.interval",
	"poll.silent_failures",
	"poll.max_failures",
	"inbox.read_receipt_concurrency",
	"inbox.scroll_threshold",
	"cache.enabled",
	"cache.path",
	"logging.level",
	"logging.format",
	"logging.file",
	"logging.enable_caller",
	"tui.theme",
	"tui.scroll_threshold",
}

// EnvVarName converts a config key to its environment variable: api.base_url -> TASKER_API_BASE_URL.
func EnvVarName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

func bindEnvVars(v *viper.Viper) {
	for _, key := range configKeys {
		_ = v.BindEnv(key, EnvVarName(key))
	}
}
