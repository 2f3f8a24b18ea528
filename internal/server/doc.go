// Package server exposes the gadget container endpoints over HTTP.
//
// All gadget routes are mounted under the configured path prefix
// (default /gadgets):
//
//   - {prefix}/makeRequest     - proxied, optionally signed, gadget fetches
//   - {prefix}/concat          - all-or-nothing script concatenation
//   - {prefix}/oauth/authorize - explicit authorization without a fetch
//   - {prefix}/oauthcallback   - provider redirect target (configurable)
//
// /healthz is served outside the prefix for load balancer probes.
//
// Every request passes through an OpenTelemetry handler and an access log.
// The access log records method, path, status and duration only; query
// strings are never logged because they carry security tokens.
package server
