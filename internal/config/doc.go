// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for regtech.
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (REGTECH_*), including values from a .env file
//   - ~/.regtech/config.toml
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    return err
//	}
//	client := answer.NewClient(cfg.Service.BaseURL)
//
// Watch the file for edits while the TUI runs:
//
//	go config.Watch(ctx, path, func(cfg *config.Config, err error) { ... })
package config
