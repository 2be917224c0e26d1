// Package config defines the warden configuration model: YAML file loading,
// default application, environment variable overrides, and validation.
package config
