package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_JSONAttributes(t *testing.T) {
	var buf bytes.Buffer
	log := Setup(&Options{JSON: true, UID: true, Service: "kmsagent", Version: "1.2.3", Output: &buf})
	log.Info("hello", "k", "v")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "hello", rec["msg"])
	assert.Equal(t, "kmsagent", rec["service"])
	assert.Equal(t, "1.2.3", rec["version"])
	assert.Equal(t, "v", rec["k"])

	uid, ok := rec["uid"].(string)
	require.True(t, ok)
	_, err := uuid.Parse(uid)
	assert.NoError(t, err)
}

func TestSetup_DebugLevel(t *testing.T) {
	var buf bytes.Buffer
	Setup(&Options{Output: &buf}).Debug("hidden")
	assert.Empty(t, buf.String())

	Setup(&Options{Debug: true, Output: &buf}).Debug("shown")
	assert.True(t, strings.Contains(buf.String(), "msg=shown"))
	assert.False(t, strings.Contains(buf.String(), "uid="))
}

func TestDiscard(t *testing.T) {
	assert.False(t, Discard().Enabled(t.Context(), 12))
}
