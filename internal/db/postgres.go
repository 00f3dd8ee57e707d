package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"sqlgate-mcp/internal/guard"
)

// SQLSTATE 25006: read_only_sql_transaction.
const pgErrReadOnly = "25006"

// PostgresDriver implements Driver for PostgreSQL using pgx. The long-lived
// connection serves metadata lookups only; each Query call opens its own
// session.
type PostgresDriver struct {
	conn *pgx.Conn
	uri  string
}

// NewPostgresDriver connects to PostgreSQL using the given URI.
func NewPostgresDriver(ctx context.Context, uri string) (*PostgresDriver, error) {
	conn, err := pgx.Connect(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	return &PostgresDriver{conn: conn, uri: uri}, nil
}

// Ping implements Driver.
func (d *PostgresDriver) Ping(ctx context.Context) error {
	return d.conn.Ping(ctx)
}

// ListTables implements Driver. Schema defaults to "public" if empty.
func (d *PostgresDriver) ListTables(ctx context.Context, schema string) ([]string, error) {
	if schema == "" {
		schema = "public"
	}
	rows, err := d.conn.Query(ctx,
		`SELECT table_name FROM information_schema.tables
		 WHERE table_schema = $1 AND table_type = 'BASE TABLE'
		 ORDER BY table_name`,
		schema)
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
func (d *PostgresDriver) DescribeTable(ctx context.Context, schema, table string) ([]ColumnInfo, error) {
	if schema == "" {
		schema = "public"
	}
	rows, err := d.conn.Query(ctx, `
		SELECT c.column_name, c.data_type, c.is_nullable = 'YES',
		       EXISTS (
		         SELECT 1 FROM information_schema.table_constraints tc
		         JOIN information_schema.key_column_usage kcu
		           ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
		         WHERE tc.table_schema = c.table_schema AND tc.table_name = c.table_name
		           AND tc.constraint_type = 'PRIMARY KEY' AND kcu.column_name = c.column_name
		       )
		FROM information_schema.columns c
		WHERE c.table_schema = $1 AND c.table_name = $2
		ORDER BY c.ordinal_position`,
		schema, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var cols []ColumnInfo
	for rows.Next() {
		var c ColumnInfo
		if err := rows.Scan(&c.Name, &c.Type, &c.Nullable, &c.IsPK); err != nil {
			return nil, err
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

// Query implements Driver.
func (d *PostgresDriver) Query(ctx context.Context, q guard.Query) (*ResultTable, error) {
	return d.query(ctx, q.SQL())
}

// query runs one statement on a fresh connection inside a READ ONLY
// transaction, so Postgres itself rejects any write (SQLSTATE 25006) even if
// the statement slipped past validation.
func (d *PostgresDriver) query(ctx context.Context, stmt string) (*ResultTable, error) {
	conn, err := pgx.Connect(ctx, d.uri)
	if err != nil {
		return nil, connFailure(fmt.Errorf("postgres connect: %w", err))
	}
	defer conn.Close(context.Background())

	tx, err := conn.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, connFailure(fmt.Errorf("begin read-only tx: %w", err))
	}
	defer tx.Rollback(context.Background())

	rows, err := tx.Query(ctx, stmt)
	if err != nil {
		return nil, classifyPostgresError(err)
	}
	table, err := pgxRowsToTable(rows)
	if err != nil {
		return nil, classifyPostgresError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, classifyPostgresError(err)
	}
	return table, nil
}

// pgxRowsToTable materializes pgx rows preserving column order. It always
// drains and closes rows.
func pgxRowsToTable(rows pgx.Rows) (*ResultTable, error) {
	defer rows.Close()
	fields := rows.FieldDescriptions()
	table := &ResultTable{Columns: make([]string, len(fields))}
	for i, f := range fields {
		name := string(f.Name)
		if name == "" {
			name = fmt.Sprintf("column_%d", i+1)
		}
		table.Columns[i] = name
	}
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, err
		}
		table.Rows = append(table.Rows, vals)
	}
	return table, rows.Err()
}

func classifyPostgresError(err error) *ExecError {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgErrReadOnly {
		return &ExecError{Kind: ErrKindReadOnly, Err: err}
	}
	return &ExecError{Kind: ErrKindStatement, Err: err}
}

// Close implements Driver.
func (d *PostgresDriver) Close() error {
	return d.conn.Close(context.Background())
}

var _ Driver = (*PostgresDriver)(nil)
