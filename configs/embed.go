package configs

import _ "embed"

// DefaultConfig is the configuration file written on first run.
//
//go:embed default.yaml
var DefaultConfig []byte
