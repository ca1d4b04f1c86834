// Package logging provides structured logging for autopilot runs.
//
// It wraps log/slog with a JSON handler and carries persistent context
// attributes so every line written while a plan executes can be filtered by
// plan id, wave and step afterwards.
//
// # Basic Usage
//
//	logger, err := logging.NewLoggerWithRotation(dir, "INFO", logging.RotationConfig{MaxSizeMB: 10, MaxBackups: 3})
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	planLog := logger.WithPlan(p.ID)
//	planLog.WithWave(1).Info("wave dispatched", "steps", 2)
//
// Components accept a *Logger and fall back to [NopLogger] when given nil
// (see [OrNop]).
//
// # Rotation
//
// [RotatingWriter] rotates the log file by size, keeping a bounded number of
// numbered backups that may be gzip-compressed.
package logging
