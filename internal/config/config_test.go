package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg == nil {
		t.Fatal("Default() returned nil")
	}

	if cfg.Executor.CommandTimeoutSeconds != 120 {
		t.Errorf("Executor.CommandTimeoutSeconds = %d, want 120", cfg.Executor.CommandTimeoutSeconds)
	}
	if cfg.Executor.MaxOutputBytes != 1<<20 {
		t.Errorf("Executor.MaxOutputBytes = %d, want %d", cfg.Executor.MaxOutputBytes, 1<<20)
	}
	if cfg.Executor.Shell != "sh" {
		t.Errorf("Executor.Shell = %q, want %q", cfg.Executor.Shell, "sh")
	}

	if cfg.Recovery.MaxAttempts != 3 {
		t.Errorf("Recovery.MaxAttempts = %d, want 3", cfg.Recovery.MaxAttempts)
	}
	if cfg.Recovery.ConfidenceThreshold != 0.6 {
		t.Errorf("Recovery.ConfidenceThreshold = %f, want 0.6", cfg.Recovery.ConfidenceThreshold)
	}
	if !cfg.Recovery.AllowSudo {
		t.Error("Recovery.AllowSudo should be true by default")
	}

	if cfg.RunLoop.Workers != 0 {
		t.Errorf("RunLoop.Workers = %d, want 0 (auto)", cfg.RunLoop.Workers)
	}
	if cfg.RunLoop.MaxSteps != 50 {
		t.Errorf("RunLoop.MaxSteps = %d, want 50", cfg.RunLoop.MaxSteps)
	}
	if cfg.RunLoop.MaxDurationMinutes != 30 {
		t.Errorf("RunLoop.MaxDurationMinutes = %d, want 30", cfg.RunLoop.MaxDurationMinutes)
	}

	if !cfg.Snapshot.Enabled {
		t.Error("Snapshot.Enabled should be true by default")
	}
	if cfg.Orchestrator.ConfirmEachWave || cfg.Orchestrator.AutoRollback {
		t.Error("orchestrator confirmations should default to off")
	}
	if !cfg.Ledger.Enabled {
		t.Error("Ledger.Enabled should be true by default")
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "info")
	}
}

func TestDurations(t *testing.T) {
	e := ExecutorConfig{CommandTimeoutSeconds: 90}
	if got := e.CommandTimeout(); got != 90*time.Second {
		t.Errorf("CommandTimeout() = %v, want 90s", got)
	}
	r := RunLoopConfig{MaxDurationMinutes: 5}
	if got := r.MaxDuration(); got != 5*time.Minute {
		t.Errorf("MaxDuration() = %v, want 5m", got)
	}
}

func TestResolvePaths(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"default snapshot dir", (&SnapshotConfig{}).ResolveDir(), filepath.Join(home, ".autopilot", "snapshots")},
		{"default ledger path", (&LedgerConfig{}).ResolvePath(), filepath.Join(home, ".autopilot", "ledger.db")},
		{"default log dir", (&LoggingConfig{}).ResolveDir(), filepath.Join(home, ".autopilot", "logs")},
		{"tilde snapshot dir", (&SnapshotConfig{Dir: "~/snaps"}).ResolveDir(), filepath.Join(home, "snaps")},
		{"absolute ledger path", (&LedgerConfig{Path: "/var/lib/autopilot.db"}).ResolvePath(), "/var/lib/autopilot.db"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}

	rel := (&SnapshotConfig{Dir: "snaps"}).ResolveDir()
	if !filepath.IsAbs(rel) {
		t.Errorf("relative dir should resolve to an absolute path, got %q", rel)
	}
}

func TestConfigDir(t *testing.T) {
	t.Run("with XDG_CONFIG_HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "/custom/config")
		if got := ConfigDir(); got != "/custom/config/autopilot" {
			t.Errorf("ConfigDir() = %q, want %q", got, "/custom/config/autopilot")
		}
		if got := ConfigFile(); got != "/custom/config/autopilot/config.yaml" {
			t.Errorf("ConfigFile() = %q", got)
		}
	})

	t.Run("without XDG_CONFIG_HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "")
		home, _ := os.UserHomeDir()
		expected := filepath.Join(home, ".config", "autopilot")
		if got := ConfigDir(); got != expected {
			t.Errorf("ConfigDir() = %q, want %q", got, expected)
		}
	})
}

func TestLoad(t *testing.T) {
	t.Cleanup(viper.Reset)

	t.Run("defaults", func(t *testing.T) {
		viper.Reset()
		SetDefaults()
		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if cfg.Recovery.MaxAttempts != 3 {
			t.Errorf("Recovery.MaxAttempts = %d, want 3", cfg.Recovery.MaxAttempts)
		}
	})

	t.Run("yaml file", func(t *testing.T) {
		viper.Reset()
		SetDefaults()
		path := filepath.Join(t.TempDir(), "config.yaml")
		data := "recovery:\n  max_attempts: 5\nrunloop:\n  workers: 2\norchestrator:\n  auto_rollback: true\n"
		if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
			t.Fatal(err)
		}
		viper.SetConfigFile(path)
		if err := viper.ReadInConfig(); err != nil {
			t.Fatalf("ReadInConfig() error = %v", err)
		}

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if cfg.Recovery.MaxAttempts != 5 || cfg.RunLoop.Workers != 2 || !cfg.Orchestrator.AutoRollback {
			t.Errorf("file values not applied: %+v", cfg)
		}
		if cfg.Executor.Shell != "sh" {
			t.Errorf("unset keys should keep defaults, Executor.Shell = %q", cfg.Executor.Shell)
		}
	})

	t.Run("invalid values", func(t *testing.T) {
		viper.Reset()
		SetDefaults()
		viper.Set("recovery.max_attempts", 0)

		_, err := Load()
		if err == nil {
			t.Fatal("Load() should reject max_attempts = 0")
		}
		if _, ok := err.(ValidationErrors); !ok {
			t.Errorf("error type = %T, want ValidationErrors", err)
		}
		if got := Get(); got.Recovery.MaxAttempts != 3 {
			t.Errorf("Get() should fall back to defaults, got %d", got.Recovery.MaxAttempts)
		}
	})
}
