// Package app is the composition root of gadgethost.
//
// NewApplication loads configuration (file, then GADGETHOST_* environment),
// initializes logging and builds the services in dependency order:
//
//  1. Telemetry (OTLP/HTTP trace export when configured)
//  2. Client state codec, with the secret optionally read from Secret Manager
//  3. Consumer store (YAML file or SQLite) and gadget registry
//  4. Token cache and OAuth manager, sharing one cache across both flows
//  5. makeRequest, concat and authorize handlers mounted on the HTTP server
//
// Run serves until the context is cancelled or the process receives SIGINT
// or SIGTERM. The HTTP server drains first; the cache, consumer store and
// trace exporter are closed afterwards.
package app
