// Package logger provides a small, thread-safe leveled logger.
//
// Each entry carries a timestamp, a level, an optional scope (for example
// "worker-3" or "httpd") and the formatted message.
//
// # Basic Usage
//
//	logger.Info("", "server listening on %s", addr)
//	logger.Warn("worker-1", "job %d panicked: %v", seq, r)
//
// A dedicated logger writes anywhere:
//
//	l := logger.New(os.Stderr, logger.LevelDebug)
//	l.Debug("httpd", "accepted %s", conn.RemoteAddr())
//
// # Log Levels
//
// Messages below the configured level are dropped:
//   - LevelDebug: all messages
//   - LevelInfo: Info, Warn, Error
//   - LevelWarn: Warn, Error
//   - LevelError: Error only
//
// ParseLevel converts the configuration spelling ("debug", "info", "warn",
// "error") into a Level.
package logger
