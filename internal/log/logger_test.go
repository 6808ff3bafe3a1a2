// SPDX-License-Identifier: MIT

package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigureAttachesServiceAndVersion(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Level: "debug", Output: &buf, Service: "pagevault-test", Version: "v1.2.3"})

	logger := WithComponent("crawler")
	logger.Info().Str(FieldEvent, "run.start").Msg("starting")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "pagevault-test", entry["service"])
	assert.Equal(t, "v1.2.3", entry["version"])
	assert.Equal(t, "crawler", entry["component"])
	assert.Equal(t, "run.start", entry["event"])
}

func TestWithComponentFromContextCarriesIdentity(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Level: "debug", Output: &buf, Service: "pagevault-test"})

	ctx := ContextWithRunID(ContextWithRequestID(t.Context(), "req-1"), "run-9")
	logger := WithComponentFromContext(ctx, "api")
	logger.Info().Msg("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "req-1", entry[FieldRequestID])
	assert.Equal(t, "run-9", entry[FieldRunID])
	assert.Equal(t, "api", entry[FieldComponent])
}

func TestFromContextFallsBackToBase(t *testing.T) {
	Configure(Config{Level: "info"})
	l := FromContext(t.Context())
	require.NotNil(t, l)
}
