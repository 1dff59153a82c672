package audit

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledEmitsNothing(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, false, true, 100)
	callID := w.ToolStart("fp", "demo", "echo", []byte(`{"a":1}`))
	w.ToolEnd(callID, "fp", "demo", "echo", true, time.Millisecond, nil)
	assert.Empty(t, buf.String())
}

func TestArgumentsOmittedWhenLogArgumentsFalse(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, true, false, 100)
	w.ToolStart("fp", "demo", "echo", []byte(`{"secret":"x"}`))
	assert.NotContains(t, buf.String(), "secret")
}

func TestArgumentsTruncated(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, true, true, 5)
	w.ToolStart("fp", "demo", "echo", []byte(`{"message":"hello world"}`))

	line := strings.TrimSpace(buf.String())
	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &decoded))
	assert.Len(t, decoded["arguments"], 5)
}

func TestToolEndIncludesErrorMessage(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, true, true, 100)
	w.ToolEnd("call-1", "fp", "demo", "echo", false, time.Second, assertErr{})

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "tool_end", decoded["event"])
	assert.Equal(t, "call-1", decoded["callId"])
	assert.Equal(t, "boom", decoded["error"])
	assert.Equal(t, false, decoded["ok"])
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }
