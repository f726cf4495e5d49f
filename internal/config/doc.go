// Package config loads kblayout configuration.
//
// Configuration is layered: built-in defaults, then an optional file
// (TOML or YAML, chosen by extension), then KBLAYOUT_* environment
// variables. A missing file is not an error.
//
// Example config.toml:
//
//	[log]
//	level = "debug"
//
//	[source]
//	kind = "file"
//	debounce = "200ms"
//
//	[dispatch]
//	queue_size = 64
//	post_timeout = "250ms"
//
//	[metrics]
//	enabled = true
//	addr = "127.0.0.1:9464"
package config
