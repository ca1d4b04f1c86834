package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete autopilot configuration
type Config struct {
	Executor     ExecutorConfig     `mapstructure:"executor" yaml:"executor"`
	Recovery     RecoveryConfig     `mapstructure:"recovery" yaml:"recovery"`
	RunLoop      RunLoopConfig      `mapstructure:"runloop" yaml:"runloop"`
	Snapshot     SnapshotConfig     `mapstructure:"snapshot" yaml:"snapshot"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator" yaml:"orchestrator"`
	Git          GitConfig          `mapstructure:"git" yaml:"git"`
	Ledger       LedgerConfig       `mapstructure:"ledger" yaml:"ledger"`
	Logging      LoggingConfig      `mapstructure:"logging" yaml:"logging"`
}

// ExecutorConfig controls how individual actions run
type ExecutorConfig struct {
	// CommandTimeoutSeconds bounds each RunCommand action that does not carry its own timeout
	CommandTimeoutSeconds int `mapstructure:"command_timeout_seconds" yaml:"command_timeout_seconds"`
	// MaxOutputBytes caps how much of a command's stdout and stderr is kept (the tail is kept)
	MaxOutputBytes int `mapstructure:"max_output_bytes" yaml:"max_output_bytes"`
	// Shell runs command lines as `<shell> -c <line>`
	Shell string `mapstructure:"shell" yaml:"shell"`
}

// RecoveryConfig controls the retry and auto-correction loop
type RecoveryConfig struct {
	// MaxAttempts is the number of executions a step gets, including the first
	MaxAttempts int `mapstructure:"max_attempts" yaml:"max_attempts"`
	// ConfidenceThreshold is the confidence a correction must exceed to be retried
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold" yaml:"confidence_threshold"`
	// AllowSudo lets permission failures be retried with a non-interactive sudo prefix
	AllowSudo bool `mapstructure:"allow_sudo" yaml:"allow_sudo"`
}

// RunLoopConfig controls parallel dispatch and global budgets
type RunLoopConfig struct {
	// Workers is the worker pool size (0 = detect from hardware)
	Workers int `mapstructure:"workers" yaml:"workers"`
	// MaxSteps is the number of step dispatches allowed per run
	MaxSteps int `mapstructure:"max_steps" yaml:"max_steps"`
	// MaxDurationMinutes bounds how long a run may keep dispatching waves
	MaxDurationMinutes int `mapstructure:"max_duration_minutes" yaml:"max_duration_minutes"`
}

// SnapshotConfig controls checkpoints taken before destructive waves
type SnapshotConfig struct {
	// Enabled turns checkpointing on (default: true)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Dir is where snapshots are stored (empty = ~/.autopilot/snapshots)
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// OrchestratorConfig controls confirmation and rollback behavior
type OrchestratorConfig struct {
	// ConfirmEachWave asks before every destructive wave, not just once per plan
	ConfirmEachWave bool `mapstructure:"confirm_each_wave" yaml:"confirm_each_wave"`
	// AutoRollback restores the last snapshot after a failure without asking
	AutoRollback bool `mapstructure:"auto_rollback" yaml:"auto_rollback"`
}

// GitConfig sets the identity used by GitCommit actions
type GitConfig struct {
	AuthorName  string `mapstructure:"author_name" yaml:"author_name"`
	AuthorEmail string `mapstructure:"author_email" yaml:"author_email"`
}

// LedgerConfig controls persistence of runs and correction records
type LedgerConfig struct {
	// Enabled records every finished run (default: true)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Path is the SQLite database file (empty = ~/.autopilot/ledger.db)
	Path string `mapstructure:"path" yaml:"path"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Enabled controls whether logging is active (default: true)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Level sets the minimum log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level" yaml:"level"`
	// Dir is where autopilot.log is written (empty = ~/.autopilot/logs)
	Dir string `mapstructure:"dir" yaml:"dir"`
	// MaxSizeMB is the maximum log file size in megabytes before rotation (default: 10)
	MaxSizeMB int `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	// MaxBackups is the number of rotated backup files to keep (default: 3)
	MaxBackups int `mapstructure:"max_backups" yaml:"max_backups"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Executor: ExecutorConfig{
			CommandTimeoutSeconds: 120,
			MaxOutputBytes:        1 << 20, // 1MiB
			Shell:                 "sh",
		},
		Recovery: RecoveryConfig{
			MaxAttempts:         3,
			ConfidenceThreshold: 0.6,
			AllowSudo:           true,
		},
		RunLoop: RunLoopConfig{
			Workers:            0,
			MaxSteps:           50,
			MaxDurationMinutes: 30,
		},
		Snapshot: SnapshotConfig{
			Enabled: true,
			Dir:     "",
		},
		Orchestrator: OrchestratorConfig{
			ConfirmEachWave: false,
			AutoRollback:    false,
		},
		Git: GitConfig{
			AuthorName:  "autopilot",
			AuthorEmail: "autopilot@localhost",
		},
		Ledger: LedgerConfig{
			Enabled: true,
			Path:    "",
		},
		Logging: LoggingConfig{
			Enabled:    true,
			Level:      "info",
			Dir:        "",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// CommandTimeout returns the default command timeout as a time.Duration
func (c *ExecutorConfig) CommandTimeout() time.Duration {
	return time.Duration(c.CommandTimeoutSeconds) * time.Second
}

// MaxDuration returns the run's wall-clock budget as a time.Duration
func (c *RunLoopConfig) MaxDuration() time.Duration {
	return time.Duration(c.MaxDurationMinutes) * time.Minute
}

// ResolveDir returns the snapshot directory, expanding ~ and falling back
// to the data directory.
func (c *SnapshotConfig) ResolveDir() string {
	return resolvePath(c.Dir, filepath.Join(DataDir(), "snapshots"))
}

// ResolvePath returns the ledger database path, expanding ~ and falling
// back to the data directory.
func (c *LedgerConfig) ResolvePath() string {
	return resolvePath(c.Path, filepath.Join(DataDir(), "ledger.db"))
}

// ResolveDir returns the log directory, expanding ~ and falling back to
// the data directory.
func (c *LoggingConfig) ResolveDir() string {
	return resolvePath(c.Dir, filepath.Join(DataDir(), "logs"))
}

// resolvePath expands a leading ~ and returns fallback for an empty path.
// Relative paths are resolved against the working directory.
func resolvePath(path, fallback string) string {
	if path == "" {
		return fallback
	}

	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	} else if path == "~" {
		home, err := os.UserHomeDir()
		if err == nil {
			path = home
		}
	}

	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return path
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	viper.SetDefault("executor.command_timeout_seconds", defaults.Executor.CommandTimeoutSeconds)
	viper.SetDefault("executor.max_output_bytes", defaults.Executor.MaxOutputBytes)
	viper.SetDefault("executor.shell", defaults.Executor.Shell)

	viper.SetDefault("recovery.max_attempts", defaults.Recovery.MaxAttempts)
	viper.SetDefault("recovery.confidence_threshold", defaults.Recovery.ConfidenceThreshold)
	viper.SetDefault("recovery.allow_sudo", defaults.Recovery.AllowSudo)

	viper.SetDefault("runloop.workers", defaults.RunLoop.Workers)
	viper.SetDefault("runloop.max_steps", defaults.RunLoop.MaxSteps)
	viper.SetDefault("runloop.max_duration_minutes", defaults.RunLoop.MaxDurationMinutes)

	viper.SetDefault("snapshot.enabled", defaults.Snapshot.Enabled)
	viper.SetDefault("snapshot.dir", defaults.Snapshot.Dir)

	viper.SetDefault("orchestrator.confirm_each_wave", defaults.Orchestrator.ConfirmEachWave)
	viper.SetDefault("orchestrator.auto_rollback", defaults.Orchestrator.AutoRollback)

	viper.SetDefault("git.author_name", defaults.Git.AuthorName)
	viper.SetDefault("git.author_email", defaults.Git.AuthorEmail)

	viper.SetDefault("ledger.enabled", defaults.Ledger.Enabled)
	viper.SetDefault("ledger.path", defaults.Ledger.Path)

	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.dir", defaults.Logging.Dir)
	viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// EnvPrefix is the prefix for environment overrides, e.g.
// AUTOPILOT_RECOVERY_MAX_ATTEMPTS.
const EnvPrefix = "AUTOPILOT"

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "autopilot")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".autopilot"
	}
	return filepath.Join(home, ".config", "autopilot")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// DataDir returns where snapshots and the ledger live by default
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".autopilot"
	}
	return filepath.Join(home, ".autopilot")
}
