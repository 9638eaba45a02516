// Package config loads, normalizes, and validates photoline configuration.
//
// Load resolves the config path (explicit, ~/.config/photoline/config.toml,
// then ./photoline.toml), decodes TOML over Default, expands paths, pulls
// secrets from the environment and validates every section. Storage settings
// are only required by commands that upload, through ValidateStorage.
// CreateSample writes the embedded sample file for `photoline config init`.
package config
