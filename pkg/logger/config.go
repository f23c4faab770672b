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

package logger

import (
	"os"
	"strconv"
)

// Environment overrides consulted by DefaultConfig.
const (
	EnvLevel      = "INGRESS_LOG_LEVEL"
	EnvDebug      = "INGRESS_DEBUG"
	EnvOutput     = "INGRESS_LOG_OUTPUT"
	EnvTimeFormat = "INGRESS_LOG_TIME_FORMAT"
	EnvConsole    = "INGRESS_LOG_CONSOLE"
)

// DefaultConfig is the logging setup used before the config file is read
// and whenever the file has no logging block.
func DefaultConfig() *Config {
	cfg := &Config{
		Level:  "info",
		Output: "stdout",
	}

	if v := os.Getenv(EnvLevel); v != "" {
		cfg.Level = v
	}

	if v := os.Getenv(EnvOutput); v != "" {
		cfg.Output = v
	}

	cfg.TimeFormat = os.Getenv(EnvTimeFormat)
	cfg.Debug = envFlag(EnvDebug)
	cfg.Console = envFlag(EnvConsole)

	return cfg
}

// envFlag accepts anything strconv.ParseBool does plus "yes" and "on".
func envFlag(key string) bool {
	v := os.Getenv(key)

	switch v {
	case "":
		return false
	case "yes", "on", "YES", "ON":
		return true
	}

	b, err := strconv.ParseBool(v)

	return err == nil && b
}
