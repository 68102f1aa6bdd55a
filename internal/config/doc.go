// Package config handles configuration loading for fleetgate.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from FLEETGATE_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/fleetgate/fleetgate.yaml
//  3. ~/.config/fleetgate/fleetgate.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	database:
//	  path: "${FLEETGATE_DB_PATH}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	ingest:
//	  interval: "10s"
//	  stale_after: "1h"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  ws_addr: "0.0.0.0:8765"    # Agent websocket connections
//	  http_addr: "0.0.0.0:5001"  # Administrative JSON API
//
// Database:
//
//	database:
//	  path: "/var/lib/fleetgate/fleetgate.db"
//
// Scripts:
//
//	scripts:
//	  dir: "scriptfile"
//
// Ingestion:
//
//	ingest:
//	  interval: "10s"
//	  reset_stale_running: false
//	  stale_after: "1h"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
package config
