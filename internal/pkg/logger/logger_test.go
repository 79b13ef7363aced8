package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedactEmail(t *testing.T) {
	assert.Equal(t, "jo***@example.com", RedactEmail("john.doe@example.com"))
	assert.Equal(t, "***@example.com", RedactEmail("ab@example.com"))
	assert.Equal(t, "***@***", RedactEmail("garbage"))
}

func TestRedactPhone(t *testing.T) {
	assert.Equal(t, "***2671", RedactPhone("+14155552671"))
	assert.Equal(t, "***", RedactPhone("123"))
}

func TestLog_RedactsPIIFields(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stderr)

	Info("dispatch sent", "email", "jane.doe@example.com", "phone", "+14155552671",
		"note", "called +442079460958 about jane.doe@example.com")

	var entry map[string]string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "ja***@example.com", entry["email"])
	assert.Equal(t, "***2671", entry["phone"])
	assert.Equal(t, "called ***0958 about ja***@example.com", entry["note"])
}

func TestLog_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(WARN)
	defer func() {
		SetOutput(os.Stderr)
		SetLevel(INFO)
	}()

	Info("ignored")
	assert.Zero(t, buf.Len())

	Component("pool").Warn("resource degraded", "resource_id", "res-1")
	var entry map[string]string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "pool", entry["component"])
	assert.Equal(t, "res-1", entry["resource_id"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLevel("debug"))
	assert.Equal(t, WARN, ParseLevel("WARNING"))
	assert.Equal(t, ERROR, ParseLevel("error"))
	assert.Equal(t, INFO, ParseLevel("nonsense"))
}
