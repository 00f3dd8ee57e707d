package audit

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sqlgate-mcp/internal/db"
	"sqlgate-mcp/internal/guard"
)

func lastEvent(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.NotEmpty(t, lines)
	var m map[string]any
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &m))
	return m
}

func TestValidation_approved(t *testing.T) {
	var buf bytes.Buffer
	r := NewRecorder(&buf)

	r.Validation("warehouse", "agent-1", guard.Classify("SELECT 1"), nil)

	m := lastEvent(t, &buf)
	assert.Equal(t, "validation", m["stage"])
	assert.Equal(t, "warehouse", m["connection"])
	assert.Equal(t, "agent-1", m["caller"])
	assert.Equal(t, "SELECT", m["statement"])
	assert.Equal(t, "approved", m["decision"])
	assert.NotEmpty(t, m["time"])
}

func TestValidation_rejected(t *testing.T) {
	var buf bytes.Buffer
	r := NewRecorder(&buf)

	rej := &guard.Rejection{Reason: guard.ReasonBlockedKeyword, Token: "DROP"}
	r.Validation("warehouse", "agent-1", guard.StatementKind{}, rej)

	m := lastEvent(t, &buf)
	assert.Equal(t, "rejected", m["decision"])
	assert.Equal(t, "blocked_keyword", m["reason"])
	assert.Equal(t, "DROP", m["token"])
}

func TestExecution_success(t *testing.T) {
	var buf bytes.Buffer
	r := NewRecorder(&buf)

	r.Execution("warehouse", "agent-1", guard.Classify("SELECT 1"), 42, 15*time.Millisecond, nil)

	m := lastEvent(t, &buf)
	assert.Equal(t, "execution", m["stage"])
	assert.Equal(t, true, m["success"])
	assert.Equal(t, float64(42), m["rows"])
}

func TestExecution_readOnlyViolationIsLoud(t *testing.T) {
	var buf bytes.Buffer
	r := NewRecorder(&buf)

	execErr := &db.ExecError{Kind: db.ErrKindReadOnly, Err: errors.New("cannot execute INSERT in a read-only transaction")}
	r.Execution("warehouse", "agent-1", guard.Classify("SELECT 1"), 0, time.Millisecond, execErr)

	m := lastEvent(t, &buf)
	assert.Equal(t, "error", m["level"])
	assert.Equal(t, "read_only_violation", m["error_kind"])
	assert.Contains(t, m["message"], "deny-list")
}

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder
	// Must not panic.
	r.Validation("c", "u", guard.StatementKind{}, nil)
	r.Execution("c", "u", guard.StatementKind{}, 0, 0, errors.New("x"))
}
