// Package logging provides structured logging for AccessGuard Core.
//
// It wraps log/slog so every component logs with the same default fields
// (service, version) and the same level filtering.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("reading processed", "card_id", uid, "authorized", ok)
//
// Never log MQTT passwords, JWT secrets or S3 keys. Card UIDs are logged;
// they are the audit subject.
package logging
