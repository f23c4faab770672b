/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package version reports the build version of the gateway.
package version

import (
	"fmt"
	"runtime"
)

// Set with -ldflags "-X github.com/barnlink/ingress/pkg/version.version=...".
//
//nolint:gochecknoglobals // ldflags targets
var (
	version = "dev"
	commit  = "unknown"
)

// GetVersion is the release tag, or "dev" for local builds.
func GetVersion() string {
	return version
}

// GetFullVersion is printed by --version.
func GetFullVersion() string {
	return fmt.Sprintf("ingress-gateway %s (commit %s, %s)", version, commit, runtime.Version())
}
