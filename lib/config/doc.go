// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for the resource
// compilation server.
//
// Configuration is loaded from a single file specified by either the
// RESOURCED_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There are no fallbacks, no ~/.config discovery, and
// no automatic file search. This ensures deterministic, auditable
// configuration with no hidden overrides.
//
// The configuration file supports environment-specific sections
// (development, staging, production) that override base values when
// [Config].Environment matches. When the environment is production and
// the file has no production section, a built-in override raises the
// worker pool to 16; the tick interval is left unchanged.
//
// Variable expansion is performed on path fields after loading:
// ${HOME}, ${RESOURCED_ROOT}, and ${VAR:-default} patterns are expanded.
// No other environment variables override config values.
//
// Key exports:
//
//   - [Config] -- master struct with Paths, Compiler, Server
//   - [Default] -- returns a Config with development defaults
//   - [Load] and [LoadFile] -- the two entry points for loading
//
// This package depends on no other resourced packages.
package config
