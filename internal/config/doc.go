// Package config provides user configuration management for rotelhex.
//
// This package manages a YAML-based configuration file holding the serial
// link settings, the receiver model and character map, preferred source
// labels, logging and the HTTP bridge settings. The configuration follows
// OS-specific conventions for storage location.
//
// # Configuration File Location
//
//   - Linux: $XDG_CONFIG_HOME/rotelhex/config.yaml or $HOME/.config/rotelhex/config.yaml
//   - macOS: $HOME/.config/rotelhex/config.yaml
//   - Windows: %LOCALAPPDATA%\rotelhex\config.yaml
//
// # Example
//
//	version: 1
//	serial:
//	  port: /dev/ttyUSB0
//	  baud_rate: 2400
//	  read_timeout: 5s
//	receiver:
//	  model: standard
//	  command_gap: 40ms
//	  restart_on_connect: false
//	labels:
//	  aux1: PC
//	server:
//	  addr: ":8080"
//	  rate_limit: 5
//	  burst: 10
//	  advertise: true
//
// Missing values take their defaults; command line flags override the file.
//
// # Thread Safety
//
// The global config uses sync.Once for safe initialization across goroutines.
// File writes are protected by a mutex and are atomic (write then rename).
package config
