// Package config holds command-line settings and the environment-driven
// OTEL and runtime configuration.
package config
