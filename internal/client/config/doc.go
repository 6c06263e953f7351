// Package config loads runtime configuration for the sync agent.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional config file selected with -c or -config. A .yaml/.yml file is
//     read as YAML, anything else as JSON.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// # File format
//
// Durations accept Go duration strings or integer nanoseconds:
//
//	server_endpoint_addr: sync.home.lan:50051
//	database_path: /var/lib/financehub/ledger.db
//	trusted_networks: [HomeWiFi, "Office 5G"]
//	check_interval: 15m
//	retention: 2160h
//
// The package does not read environment variables.
package config
