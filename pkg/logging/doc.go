// Package logging provides subsystem-tagged structured logging for gadgethost.
//
// The package wraps log/slog with a small, printf-style API so call sites stay
// short and every entry carries the subsystem that produced it:
//
//	logging.Init(logging.LevelInfo, os.Stderr, logging.FormatJSON)
//
//	logging.Info("Proxy", "Relaying %s %s", method, target)
//	logging.Error("OAuth", err, "Access token exchange failed for service=%s", service)
//
// # Subsystems
//
//   - Bootstrap: composition root and startup
//   - Config: configuration loading and validation
//   - OAuth: token acquisition, callback handling, signing
//   - Consumer: consumer registration stores
//   - Gadget: gadget OAuth service declarations
//   - Proxy: makeRequest and concat proxying
//   - Server: HTTP listener lifecycle
//
// # Audit Logging
//
// Security relevant transitions (token granted, callback rejected, revocation)
// are logged through Audit at INFO level with an [AUDIT] prefix. Owner ids are
// truncated with TruncateID. Token and secret values are never logged.
package logging
