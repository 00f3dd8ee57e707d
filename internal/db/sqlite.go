package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"sqlgate-mcp/internal/guard"
)

// SQLiteDriver implements Driver for SQLite using modernc.org/sqlite (pure
// Go, no CGO). A long-lived handle serves metadata lookups; each Query call
// opens its own session on the same database file.
type SQLiteDriver struct {
	db  *sql.DB
	uri string
}

// NewSQLiteDriver opens a SQLite database at the given path (or URI such as "file:path?mode=...").
func NewSQLiteDriver(_ context.Context, uri string) (*SQLiteDriver, error) {
	db, err := sql.Open("sqlite", uri)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite ping: %w", err)
	}
	return &SQLiteDriver{db: db, uri: uri}, nil
}

// Ping implements Driver.
func (d *SQLiteDriver) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// ListTables implements Driver. Schema is ignored for SQLite (single schema).
func (d *SQLiteDriver) ListTables(ctx context.Context, _ string) ([]string, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// DescribeTable implements Driver.
func (d *SQLiteDriver) DescribeTable(ctx context.Context, _, table string) ([]ColumnInfo, error) {
	// table_info returns: cid, name, type, notnull, dflt_value, pk
	rows, err := d.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quoteSQLiteIdentifier(table)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []ColumnInfo
	for rows.Next() {
		var cid int
		var name, colType string
		var notnull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &colType, &notnull, &dflt, &pk); err != nil {
			return nil, err
		}
		cols = append(cols, ColumnInfo{
			Name:     name,
			Type:     colType,
			Nullable: notnull == 0,
			IsPK:     pk > 0,
		})
	}
	return cols, rows.Err()
}

// Query implements Driver.
func (d *SQLiteDriver) Query(ctx context.Context, q guard.Query) (*ResultTable, error) {
	return d.query(ctx, q.SQL())
}

// query runs one statement on a fresh single-connection session with
// PRAGMA query_only on, so SQLite itself rejects any write even if the
// statement slipped past validation. Split out from Query so tests can drive
// the database barrier with statements validation would never approve.
func (d *SQLiteDriver) query(ctx context.Context, stmt string) (*ResultTable, error) {
	sess, err := sql.Open("sqlite", d.uri)
	if err != nil {
		return nil, connFailure(fmt.Errorf("sqlite open: %w", err))
	}
	defer sess.Close()
	sess.SetMaxOpenConns(1)

	conn, err := sess.Conn(ctx)
	if err != nil {
		return nil, connFailure(fmt.Errorf("sqlite connect: %w", err))
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "PRAGMA query_only = ON"); err != nil {
		return nil, connFailure(fmt.Errorf("set query_only: %w", err))
	}

	rows, err := conn.QueryContext(ctx, stmt)
	if err != nil {
		return nil, classifySQLiteError(err)
	}
	defer rows.Close()

	table, err := scanRows(rows)
	if err != nil {
		return nil, classifySQLiteError(err)
	}
	return table, nil
}

// classifySQLiteError maps "attempt to write a readonly database" (raised
// under PRAGMA query_only) to a read-only violation.
func classifySQLiteError(err error) *ExecError {
	if strings.Contains(err.Error(), "readonly database") {
		return &ExecError{Kind: ErrKindReadOnly, Err: err}
	}
	return &ExecError{Kind: ErrKindStatement, Err: err}
}

var sqliteIdentReplacer = strings.NewReplacer(`"`, `""`)

func quoteSQLiteIdentifier(name string) string {
	return `"` + sqliteIdentReplacer.Replace(name) + `"`
}

// Close implements Driver.
func (d *SQLiteDriver) Close() error {
	return d.db.Close()
}

var _ Driver = (*SQLiteDriver)(nil)
