package config

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "recovery.max_attempts")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateExecutor()...)
	errors = append(errors, c.validateRecovery()...)
	errors = append(errors, c.validateRunLoop()...)
	errors = append(errors, c.validatePaths()...)
	errors = append(errors, c.validateGit()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

// validateExecutor validates the ExecutorConfig
func (c *Config) validateExecutor() []ValidationError {
	var errors []ValidationError

	if c.Executor.CommandTimeoutSeconds <= 0 {
		errors = append(errors, ValidationError{
			Field:   "executor.command_timeout_seconds",
			Value:   c.Executor.CommandTimeoutSeconds,
			Message: "must be positive",
		})
	}

	// Output is held in memory per running command
	const minOutputBytes = 1024
	const maxOutputBytes = 64 << 20
	if c.Executor.MaxOutputBytes < minOutputBytes || c.Executor.MaxOutputBytes > maxOutputBytes {
		errors = append(errors, ValidationError{
			Field:   "executor.max_output_bytes",
			Value:   c.Executor.MaxOutputBytes,
			Message: fmt.Sprintf("must be between %d and %d", minOutputBytes, maxOutputBytes),
		})
	}

	if strings.TrimSpace(c.Executor.Shell) == "" {
		errors = append(errors, ValidationError{
			Field:   "executor.shell",
			Value:   c.Executor.Shell,
			Message: "must not be empty",
		})
	}

	return errors
}

// validateRecovery validates the RecoveryConfig
func (c *Config) validateRecovery() []ValidationError {
	var errors []ValidationError

	const maxAttempts = 10
	if c.Recovery.MaxAttempts < 1 || c.Recovery.MaxAttempts > maxAttempts {
		errors = append(errors, ValidationError{
			Field:   "recovery.max_attempts",
			Value:   c.Recovery.MaxAttempts,
			Message: fmt.Sprintf("must be between 1 and %d", maxAttempts),
		})
	}

	if c.Recovery.ConfidenceThreshold < 0 || c.Recovery.ConfidenceThreshold >= 1 {
		errors = append(errors, ValidationError{
			Field:   "recovery.confidence_threshold",
			Value:   c.Recovery.ConfidenceThreshold,
			Message: "must be in [0, 1)",
		})
	}

	return errors
}

// validateRunLoop validates the RunLoopConfig
func (c *Config) validateRunLoop() []ValidationError {
	var errors []ValidationError

	const maxWorkers = 64
	if c.RunLoop.Workers < 0 || c.RunLoop.Workers > maxWorkers {
		errors = append(errors, ValidationError{
			Field:   "runloop.workers",
			Value:   c.RunLoop.Workers,
			Message: fmt.Sprintf("must be between 0 (auto) and %d", maxWorkers),
		})
	}

	if c.RunLoop.MaxSteps <= 0 {
		errors = append(errors, ValidationError{
			Field:   "runloop.max_steps",
			Value:   c.RunLoop.MaxSteps,
			Message: "must be positive",
		})
	}

	if c.RunLoop.MaxDurationMinutes <= 0 {
		errors = append(errors, ValidationError{
			Field:   "runloop.max_duration_minutes",
			Value:   c.RunLoop.MaxDurationMinutes,
			Message: "must be positive",
		})
	}

	return errors
}

// validatePaths validates configured storage locations
func (c *Config) validatePaths() []ValidationError {
	var errors []ValidationError

	paths := []struct {
		field string
		value string
	}{
		{"snapshot.dir", c.Snapshot.Dir},
		{"ledger.path", c.Ledger.Path},
		{"logging.dir", c.Logging.Dir},
	}
	for _, p := range paths {
		errors = append(errors, validatePath(p.field, p.value)...)
	}

	return errors
}

func validatePath(field, path string) []ValidationError {
	if path == "" {
		return nil
	}
	var errors []ValidationError

	// Check for null bytes which are invalid in paths
	if strings.ContainsRune(path, '\x00') {
		errors = append(errors, ValidationError{
			Field:   field,
			Value:   path,
			Message: "path contains invalid null character",
		})
	}

	// Reasonable path length limit (most filesystems have limits around 4096)
	const maxPathLength = 4096
	if len(path) > maxPathLength {
		errors = append(errors, ValidationError{
			Field:   field,
			Value:   path,
			Message: fmt.Sprintf("path exceeds maximum length of %d characters", maxPathLength),
		})
	}

	return errors
}

// validateGit validates the GitConfig
func (c *Config) validateGit() []ValidationError {
	var errors []ValidationError

	if strings.TrimSpace(c.Git.AuthorName) == "" {
		errors = append(errors, ValidationError{
			Field:   "git.author_name",
			Value:   c.Git.AuthorName,
			Message: "must not be empty",
		})
	}

	if email := c.Git.AuthorEmail; !strings.Contains(email, "@") || strings.ContainsAny(email, " <>") {
		errors = append(errors, ValidationError{
			Field:   "git.author_email",
			Value:   email,
			Message: "must be an email address",
		})
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	// Validate log level
	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	// Max size must be positive
	if c.Logging.MaxSizeMB <= 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be positive",
		})
	}

	// Reasonable upper bound for log file size
	const maxLogSizeMB = 1000 // 1GB
	if c.Logging.MaxSizeMB > maxLogSizeMB {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: fmt.Sprintf("exceeds maximum of %dMB", maxLogSizeMB),
		})
	}

	// Max backups must be non-negative
	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	return errors
}
