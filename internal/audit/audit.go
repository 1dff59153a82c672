// Package audit emits tool_start/tool_end audit log entries, gated by
// audit.enabled/audit.logArguments (spec §4.8), grounded on
// nuetzliches-hookaido's audit-writer pattern in internal/mcp/server.go.
package audit

import (
	"encoding/json"
	"io"
	"time"

	"github.com/google/uuid"
)

// Writer emits one JSON line per audit event to an underlying io.Writer.
type Writer struct {
	out              io.Writer
	enabled          bool
	logArguments     bool
	maxArgumentChars int
}

func NewWriter(out io.Writer, enabled, logArguments bool, maxArgumentChars int) *Writer {
	if maxArgumentChars <= 0 {
		maxArgumentChars = 2048
	}
	return &Writer{out: out, enabled: enabled, logArguments: logArguments, maxArgumentChars: maxArgumentChars}
}

type event struct {
	Event      string `json:"event"`
	CallID     string `json:"callId"`
	Time       string `json:"time"`
	Principal  string `json:"principal"`
	Upstream   string `json:"upstream"`
	Tool       string `json:"tool"`
	Arguments  string `json:"arguments,omitempty"`
	OK         *bool  `json:"ok,omitempty"`
	DurationMs int64  `json:"durationMs,omitempty"`
	Error      string `json:"error,omitempty"`
}

// ToolStart emits a tool_start entry and returns a call id that the
// caller must pass to the matching ToolEnd, so the two entries for one
// call can be correlated in log aggregation even when calls to the same
// upstream/tool interleave. arguments is the raw JSON of the call's
// arguments; it is only included when logArguments is enabled, and
// truncated to maxArgumentChars.
func (w *Writer) ToolStart(principalFingerprint, upstream, tool string, arguments []byte) string {
	callID := uuid.NewString()
	if !w.enabled {
		return callID
	}
	e := event{
		Event:     "tool_start",
		CallID:    callID,
		Time:      time.Now().UTC().Format(time.RFC3339Nano),
		Principal: principalFingerprint,
		Upstream:  upstream,
		Tool:      tool,
	}
	if w.logArguments {
		e.Arguments = w.truncate(string(arguments))
	}
	w.write(e)
	return callID
}

// ToolEnd emits a tool_end entry for the call id ToolStart returned.
func (w *Writer) ToolEnd(callID, principalFingerprint, upstream, tool string, ok bool, duration time.Duration, callErr error) {
	if !w.enabled {
		return
	}
	e := event{
		Event:      "tool_end",
		CallID:     callID,
		Time:       time.Now().UTC().Format(time.RFC3339Nano),
		Principal:  principalFingerprint,
		Upstream:   upstream,
		Tool:       tool,
		OK:         &ok,
		DurationMs: duration.Milliseconds(),
	}
	if callErr != nil {
		e.Error = callErr.Error()
	}
	w.write(e)
}

func (w *Writer) truncate(s string) string {
	if len(s) <= w.maxArgumentChars {
		return s
	}
	return s[:w.maxArgumentChars]
}

func (w *Writer) write(e event) {
	b, err := json.Marshal(e)
	if err != nil {
		return
	}
	b = append(b, '\n')
	_, _ = w.out.Write(b)
}
