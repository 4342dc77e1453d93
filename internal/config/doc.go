// Package config handles YAML configuration loading with environment variable substitution.
//
// Configuration files support ${VAR} syntax for environment variable interpolation.
// Watch reloads the file on change; callers decide which settings apply live.
package config
