// Package logging provides structured logging for the Kasa bridge.
//
// It wraps log/slog so every component logs with the same default
// fields (service, version) and the same level filtering.
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
//	logger := logging.New(cfg.Logging, version)
//	logger.Component("dispatch").Info("job executed", "action", "turn_on")
//
// Never log secrets: MQTT passwords, InfluxDB tokens or JWTs.
package logging
