// Package db provides the execution gateway and metadata drivers for
// PostgreSQL, MySQL, SQLite and SQL Server. Approved queries run in fresh,
// exclusively-owned sessions that are forced into database-level read-only
// mode before any statement executes: keyword validation alone is never
// trusted to be complete, so the engine's own transactional guarantee is the
// second, independent barrier.
package db

import (
	"context"
	"database/sql"
	"fmt"

	"sqlgate-mcp/internal/guard"
)

// Driver is the interface for database operations used by MCP tools.
// Implementations are backend-specific (Postgres, MySQL, SQLite, SQL Server).
type Driver interface {
	// Ping verifies the connection is alive.
	Ping(ctx context.Context) error
	// ListTables returns table names in the given schema (e.g. "public").
	ListTables(ctx context.Context, schema string) ([]string, error)
	// DescribeTable returns column metadata for the given schema and table.
	DescribeTable(ctx context.Context, schema, table string) ([]ColumnInfo, error)
	// Query executes an approved statement in a fresh session with
	// read-only enforcement imposed at the database level. The session is
	// never shared with other calls and is released on every exit path.
	// Errors are *ExecError.
	Query(ctx context.Context, q guard.Query) (*ResultTable, error)
	// Close releases the metadata connection. Caller should call once when done.
	Close() error
}

// ColumnInfo describes one column for describe_table.
type ColumnInfo struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
	IsPK     bool   `json:"is_pk"`
}

// ResultTable is the materialized outcome of a successfully executed
// approved query: ordered column names and ordered rows. It is only ever
// produced from an approved query and is owned by the caller that ran it.
type ResultTable struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// ExecErrorKind classifies execution-gateway failures.
type ExecErrorKind int

const (
	// ErrKindConnection covers failures to acquire or prepare a session.
	// Transient; safe to retry with backoff at a layer above the gateway.
	ErrKindConnection ExecErrorKind = iota
	// ErrKindReadOnly means the database itself refused a write that had
	// passed validation. This indicates a policy gap and must be surfaced
	// loudly, never downgraded to an empty result.
	ErrKindReadOnly
	// ErrKindStatement is any other database-reported error (syntax,
	// missing object, ...), passed through verbatim and not retried.
	ErrKindStatement
)

// String implements fmt.Stringer for audit events.
func (k ExecErrorKind) String() string {
	switch k {
	case ErrKindConnection:
		return "connection_failure"
	case ErrKindReadOnly:
		return "read_only_violation"
	case ErrKindStatement:
		return "statement_error"
	default:
		return "unknown"
	}
}

// ExecError wraps a database error with its gateway classification.
type ExecError struct {
	Kind ExecErrorKind
	Err  error
}

// Error implements error.
func (e *ExecError) Error() string { return fmt.Sprintf("%s: %v", e.Kind, e.Err) }

// Unwrap exposes the underlying driver error.
func (e *ExecError) Unwrap() error { return e.Err }

func connFailure(err error) *ExecError {
	return &ExecError{Kind: ErrKindConnection, Err: err}
}

// scanRows materializes database/sql rows into a ResultTable, preserving
// column order. []byte values become strings (MySQL returns raw bytes for
// text columns).
func scanRows(rows *sql.Rows) (*ResultTable, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	table := &ResultTable{Columns: cols}
	for rows.Next() {
		scan := make([]any, len(cols))
		for i := range scan {
			scan[i] = new(any)
		}
		if err := rows.Scan(scan...); err != nil {
			return nil, err
		}
		vals := make([]any, len(cols))
		for i := range scan {
			v := *(scan[i].(*any))
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			vals[i] = v
		}
		table.Rows = append(table.Rows, vals)
	}
	return table, rows.Err()
}
