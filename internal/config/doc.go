// Package config handles configuration loading for coven-chat.
//
// # Configuration File
//
// Location (in order):
//
//  1. Path from COVEN_CHAT_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/coven/chat.yaml
//  3. ~/.config/coven/chat.yaml
//
// Files ending in .toml are parsed as TOML; anything else as YAML. Values
// missing from the file keep the values from Default().
//
// # Environment Variable Expansion
//
//	backend:
//	  base_url: "${COVEN_BACKEND_URL}"
//
// # Duration Parsing
//
// Durations use time.ParseDuration syntax:
//
//	backend:
//	  timeout: "60s"
//	server:
//	  idempotency_ttl: "10m"
//
// # Configuration Sections
//
//	backend:
//	  base_url: "http://localhost:8080"
//	  timeout: "60s"
//	  user_id: ""
//	  token: "${COVEN_TOKEN}"      # bearer JWT, when the backend requires one
//
//	history:
//	  ingestion_markers: ["[document ingested]"]
//	  refresh_after_send: false
//
//	session:
//	  retract_on_failure: false
//
//	upload:
//	  max_document_chars: 20000
//	  max_question_chars: 6000
//
//	server:                      # reference backend only
//	  http_addr: "localhost:8080"
//	  idempotency_ttl: "10m"
//
//	auth:                        # reference backend only
//	  jwt_secret: "${COVEN_CHAT_JWT_SECRET}"  # at least 32 bytes; empty disables auth
//
//	tailscale:                   # reference backend only
//	  enabled: false
//	  hostname: "coven-chat"
//	  auth_key: "${TS_AUTHKEY}"
//	  state_dir: ""              # default ~/.local/share/coven-chat/tailscale
//	  ephemeral: false
//
//	database:                    # reference backend only
//	  driver: "sqlite"           # sqlite (pure Go) or sqlite3 (cgo)
//	  path: "~/.local/share/coven/chat.db"
//
//	logging:
//	  level: "info"              # debug, info, warn, error
//	  format: "text"             # text, json
package config
