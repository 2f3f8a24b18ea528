// Package config provides configuration management for gadgethost.
//
// Configuration is read from a single YAML file (config.yaml when a directory
// is given), layered over GetDefaultConfig, and then overridden by
// environment variables prefixed with GADGETHOST_:
//
//	server:
//	  port: 8080
//	  publicUrl: https://gadgets.example.com
//	oauth:
//	  callbackPath: /oauthcallback
//	  cacheTTL: 24h
//	  stateTTL: 10m
//	  bindBrowser: true
//	consumers:
//	  backend: sqlite
//	  path: /var/lib/gadgethost/consumers.db
//
//	GADGETHOST_SERVER_PORT=9090 GADGETHOST_CLIENT_STATE_SECRET=... gadgethost serve
//
// The merged configuration is validated before use; all field problems are
// reported together as ValidationErrors.
package config
