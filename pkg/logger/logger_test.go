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
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithWriter_Levels(t *testing.T) {
	var buf bytes.Buffer

	log, err := NewWithWriter(&Config{Level: "warn"}, &buf)
	require.NoError(t, err)

	log.Info().Msg("dropped")
	log.Warn().Str("tenant_id", "t-1").Msg("kept")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "kept", entry["message"])
	assert.Equal(t, "t-1", entry["tenant_id"])
	assert.Equal(t, "warn", entry["level"])
}

func TestNewWithWriter_DebugOverridesLevel(t *testing.T) {
	var buf bytes.Buffer

	log, err := NewWithWriter(&Config{Level: "error", Debug: true}, &buf)
	require.NoError(t, err)

	log.Debug().Msg("visible")
	assert.Contains(t, buf.String(), "visible")
}

func TestNewWithWriter_BadLevel(t *testing.T) {
	_, err := NewWithWriter(&Config{Level: "loud"}, &bytes.Buffer{})
	require.Error(t, err)
}

func TestNew_UnknownOutput(t *testing.T) {
	_, err := New(&Config{Output: "syslog"})
	require.ErrorIs(t, err, errUnknownOutput)
}

func TestSetDebug(t *testing.T) {
	var buf bytes.Buffer

	log, err := NewWithWriter(&Config{Level: "info"}, &buf)
	require.NoError(t, err)

	log.SetDebug(true)
	log.Debug().Msg("one")
	log.SetDebug(false)
	log.Debug().Msg("two")

	assert.Contains(t, buf.String(), "one")
	assert.NotContains(t, buf.String(), "two")
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer

	log, err := NewWithWriter(&Config{}, &buf)
	require.NoError(t, err)

	componentLogger := log.WithComponent("dedupe")
	assert.NotEqual(t, zerolog.Disabled, componentLogger.GetLevel())

	componentLogger.Info().Msg("hello")
	assert.Contains(t, buf.String(), `"component":"dedupe"`)
}

func TestDefaultConfig(t *testing.T) {
	t.Setenv(EnvLevel, "debug")
	t.Setenv(EnvConsole, "yes")
	t.Setenv(EnvDebug, "nope")

	config := DefaultConfig()
	assert.Equal(t, "debug", config.Level)
	assert.Equal(t, "stdout", config.Output)
	assert.True(t, config.Console)
	assert.False(t, config.Debug)
}

func TestInitializeTracing_NoExporter(t *testing.T) {
	tp, err := InitializeTracing(context.Background(), TracingConfig{}, NewTestLogger())
	require.NoError(t, err)

	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	_, span := GetTracer("test").Start(context.Background(), "op")
	defer span.End()

	assert.True(t, span.SpanContext().IsValid())
}
