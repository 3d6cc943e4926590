// Package config loads lhctl settings from a YAML file, the environment and
// built-in defaults.
//
// Precedence, lowest to highest: defaults, config file, environment
// variables, command-line flags (applied by the caller after Load).
package config
