// Package logging provides structured logging for Gray Logic FX.
//
// Logger embeds *slog.Logger and stamps every entry with service and
// version. JSON is the default format; "text" is meant for a terminal.
//
// Domain packages do not import this package. Each declares the handful of
// methods it needs (effect, routing, journal, events) and receives a
// component-scoped *Logger through SetLogger:
//
//	log := logging.New(cfg.Logging, version)
//	registry.SetLogger(log.Component("effect"))
//	panel.SetLogger(log.Component("routing"))
//
// Configuration:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Client tokens and the JWT secret are never logged; log the client ID
// (the token subject) instead.
package logging
