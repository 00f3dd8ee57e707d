// Package audit emits one structured event per query attempt: a flat JSON
// record with the statement classification, the decision or error kind, and
// a timestamp. Recording is best-effort by contract — a failing sink must
// never abort or block query handling — so nothing here returns an error.
package audit

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"sqlgate-mcp/internal/db"
	"sqlgate-mcp/internal/guard"
)

// Recorder writes audit events as JSON lines. A nil *Recorder is valid and
// records nothing.
type Recorder struct {
	log zerolog.Logger
}

// NewRecorder returns a Recorder writing to w.
func NewRecorder(w io.Writer) *Recorder {
	return &Recorder{log: zerolog.New(w).With().Timestamp().Logger()}
}

// Open returns a Recorder appending to the JSONL file at path, plus a close
// func. An empty path records to stderr (stdout carries the MCP protocol).
func Open(path string) (*Recorder, func(), error) {
	if path == "" {
		return NewRecorder(os.Stderr), func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("audit log %s: %w", path, err)
	}
	return NewRecorder(f), func() { f.Close() }, nil
}

// Validation records a gatekeeper decision. err is nil for approval or the
// *guard.Rejection returned by Validate.
func (r *Recorder) Validation(connection, caller string, kind guard.StatementKind, err error) {
	if r == nil {
		return
	}
	if err == nil {
		r.log.Info().
			Str("stage", "validation").
			Str("connection", connection).
			Str("caller", caller).
			Str("statement", kind.Token).
			Str("decision", "approved").
			Msg("query validated")
		return
	}
	ev := r.log.Warn().
		Str("stage", "validation").
		Str("connection", connection).
		Str("caller", caller).
		Str("decision", "rejected")
	var rej *guard.Rejection
	if errors.As(err, &rej) {
		ev = ev.Str("reason", rej.Reason.String())
		if rej.Token != "" {
			ev = ev.Str("token", rej.Token)
		}
	}
	ev.Msg("query rejected")
}

// Execution records the outcome of running an approved query through the
// gateway. A read-only violation is logged at error level: the database
// caught a write the policy missed, and the deny-list needs tightening.
func (r *Recorder) Execution(connection, caller string, kind guard.StatementKind, rows int, elapsed time.Duration, err error) {
	if r == nil {
		return
	}
	if err == nil {
		r.log.Info().
			Str("stage", "execution").
			Str("connection", connection).
			Str("caller", caller).
			Str("statement", kind.Token).
			Bool("success", true).
			Int("rows", rows).
			Dur("elapsed", elapsed).
			Msg("query executed")
		return
	}
	ev := r.log.Error().
		Str("stage", "execution").
		Str("connection", connection).
		Str("caller", caller).
		Str("statement", kind.Token).
		Bool("success", false).
		Dur("elapsed", elapsed)
	msg := "query failed"
	var execErr *db.ExecError
	if errors.As(err, &execErr) {
		ev = ev.Str("error_kind", execErr.Kind.String())
		if execErr.Kind == db.ErrKindReadOnly {
			msg = "read-only violation reached the database; deny-list has a gap"
		}
	}
	ev.Msg(msg)
}
