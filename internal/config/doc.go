// Package config assembles the cfproxy configuration.
//
// Values are layered: built-in defaults, then the config file (JSON or YAML),
// then the .env file, then CFPROXY_* environment variables, then command-line
// flags. Each layer only overrides the keys it sets.
package config
