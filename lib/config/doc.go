// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the YAML configuration shared by bootsign and
// bootsignd.
//
// The file is named by the BOOTSIGN_CONFIG environment variable ([Load])
// or a --config flag ([LoadFile]). There is no search path. A file may
// carry development, staging and production sections that override the
// base values when [Config].Environment matches; production without an
// explicit section turns bubblewrap isolation on.
//
// Path fields are expanded after loading: ${HOME}, ${BOOTSIGN_ROOT} and
// ${VAR:-default}. Nothing else reads the environment.
package config
