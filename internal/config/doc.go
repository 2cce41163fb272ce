// Package config is the configuration source of the update engine.
//
// Settings live in a single YAML file read through viper. Environment
// variables prefixed with SWUPDATE_ override file values. Per-target records
// are kept under the "checks" key and are opaque here: built-in default
// records are merged under them at read time and never written back, and the
// only values the engine writes are the pending per-target edits recorded
// with SetCheckField.
package config
