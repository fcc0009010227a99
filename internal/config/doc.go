// Package config loads, validates, and normalizes the TOML configuration
// driving the daemon: directory layout, provider credentials, pipeline
// concurrency limits, VAD tuning, and logging options.
package config
