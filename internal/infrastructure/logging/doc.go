// Package logging provides structured logging for the Deebot integration core.
//
// It wraps log/slog so every record carries the service name and build
// version, and so the format and level come from config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("entry loaded", "entry_id", id)
//
// Never log account passwords or broker credentials.
package logging
