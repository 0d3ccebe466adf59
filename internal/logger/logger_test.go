package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializeWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	InitializeWithWriter(&buf, "debug", "json")
	defer Initialize("info", "text")

	EnterMethod("svc.Do", "requestID", 7)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "svc.Do", entry["method"])
	assert.Equal(t, "enter", entry["event"])
	assert.Equal(t, "bloodlink", entry["app"])
	assert.EqualValues(t, 7, entry["requestID"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	InitializeWithWriter(&buf, "warn", "text")
	defer Initialize("info", "text")

	Info("hidden")
	DatabaseCall("SELECT", "donors")
	assert.Empty(t, buf.String())

	ExternalServiceResult("fcm", "send", errors.New("boom"))
	assert.Contains(t, buf.String(), "External service call failed")
	assert.Contains(t, buf.String(), "boom")
}
