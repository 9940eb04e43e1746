// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config holds the two kinds of meei configuration.
//
// Settings is the encrypted settings store: one JSON document, sealed by the
// credential store and addressed with dotted keys such as "openai.api_key".
// Config is the plain runtime configuration read from meei.toml, which never
// contains secrets.
//
// # Key Types
//
//   - Settings: dotted-path get/set/delete over config.enc
//   - Document: the decrypted settings document
//   - Config: runtime options (default provider, timeout, logging, db path)
//
// # Configuration Precedence
//
// Runtime options are resolved (in order of precedence):
//   - Environment variables (MEEI_*)
//   - <home>/meei.toml
//   - Built-in defaults
//
// The home directory is MEEI_HOME when set, otherwise ~/.meei.
//
// # Usage
//
//	cfg, err := config.Load("")
//	settings := config.NewSettings(security.NewCredentialStore(cfg.Home), cfg.Home)
//	if err := settings.Set("deepseek.api_key", "sk-..."); err != nil {
//	    return err
//	}
//	key, err := settings.GetString("deepseek.api_key", "")
package config
