// Package logging provides structured logging with per-module log level
// configuration.
//
// The package wraps Go's slog with automatic output routing: records go to
// the systemd journal when journald accepts writes, to stdout when it is
// connected to something useful, and always to an in-memory ring buffer that
// backs the recent-logs API endpoint.
//
// Initialize once at startup:
//
//	logging.Initialize(logging.Config{
//		Level:  "info",
//		Format: "text",
//		Modules: map[string]string{
//			"ingest": "debug",
//			"api":    "warn",
//		},
//	})
//
// Then get per-module loggers anywhere:
//
//	logger := logging.GetLogger("ingest")
//	logger.Info("Worker started", "stream", name)
//
// Loggers are cached per module; module-specific levels override the global
// level and can be raised or lowered without restarting because each module
// logger holds a slog.LevelVar.
//
// When running under systemd:
//
//	journalctl -t nvrnode -f
//	journalctl -t nvrnode MODULE=ingest
//	journalctl -t nvrnode -p err
package logging
