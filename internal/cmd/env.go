package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/afero"

	"github.com/Iron-Ham/autopilot/internal/config"
	"github.com/Iron-Ham/autopilot/internal/ledger"
	"github.com/Iron-Ham/autopilot/internal/logging"
	"github.com/Iron-Ham/autopilot/internal/snapshot"
	"github.com/Iron-Ham/autopilot/internal/sysinfo"
)

// loadConfig reads and validates the active configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// createLogger creates a logger if logging is enabled in config.
// Returns a NopLogger if logging is disabled or if creation fails.
func createLogger(cfg *config.Config) *logging.Logger {
	if !cfg.Logging.Enabled {
		return logging.NopLogger()
	}

	rotationConfig := logging.RotationConfig{
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	}

	logger, err := logging.NewLoggerWithRotation(cfg.Logging.ResolveDir(), cfg.Logging.Level, rotationConfig)
	if err != nil {
		// Log creation failure shouldn't prevent the command from running
		fmt.Fprintf(os.Stderr, "Warning: failed to create logger: %v\n", err)
		return logging.NopLogger()
	}
	return logger
}

func openSnapshotStore(cfg *config.Config, logger *logging.Logger) (*snapshot.Store, error) {
	store, err := snapshot.NewStore(afero.NewOsFs(), cfg.Snapshot.ResolveDir(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot store: %w", err)
	}
	return store, nil
}

func openLedger(cfg *config.Config) (*ledger.Store, error) {
	store, err := ledger.Open(cfg.Ledger.ResolvePath())
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	return store, nil
}

// workerCount returns the configured pool size, or one sized to the host
// when the configuration leaves it at zero.
func workerCount(cfg *config.Config, logger *logging.Logger) int {
	if cfg.RunLoop.Workers > 0 {
		return cfg.RunLoop.Workers
	}
	host := sysinfo.Detect()
	n := sysinfo.RecommendedWorkers(host)
	logger.Debug("worker pool sized from host", "host", host.String(), "workers", n)
	return n
}
