package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"sqlgate-mcp/internal/guard"
)

// ER_CANT_EXECUTE_IN_READ_ONLY_TRANSACTION: MySQL refused a write inside a
// read-only transaction.
const mysqlErrReadOnly = 1792

// MySQLDriver implements Driver for MySQL using go-sql-driver/mysql. A
// long-lived handle serves metadata lookups; each Query call opens its own
// session.
type MySQLDriver struct {
	db  *sql.DB
	dsn string
}

// NewMySQLDriver connects to MySQL using the given DSN
// (e.g. "user:password@tcp(localhost:3306)/dbname").
func NewMySQLDriver(ctx context.Context, dsn string) (*MySQLDriver, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("mysql open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("mysql ping: %w", err)
	}
	return &MySQLDriver{db: db, dsn: dsn}, nil
}

// Ping implements Driver.
func (d *MySQLDriver) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// ListTables implements Driver. Schema maps to the MySQL database; if empty
// the current database (from the DSN) is used.
func (d *MySQLDriver) ListTables(ctx context.Context, schema string) ([]string, error) {
	var query string
	var args []any
	if schema == "" {
		query = `SELECT TABLE_NAME FROM INFORMATION_SCHEMA.TABLES
			WHERE TABLE_SCHEMA = DATABASE() AND TABLE_TYPE = 'BASE TABLE'
			ORDER BY TABLE_NAME`
	} else {
		query = `SELECT TABLE_NAME FROM INFORMATION_SCHEMA.TABLES
			WHERE TABLE_SCHEMA = ? AND TABLE_TYPE = 'BASE TABLE'
			ORDER BY TABLE_NAME`
		args = []any{schema}
	}
	rows, err := d.db.QueryContext(ctx, query, args...)
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

// DescribeTable implements Driver. Schema maps to MySQL database; if empty
// the current database is used.
func (d *MySQLDriver) DescribeTable(ctx context.Context, schema, table string) ([]ColumnInfo, error) {
	var query string
	var args []any
	if schema == "" {
		query = `
		SELECT c.COLUMN_NAME, c.DATA_TYPE,
		       c.IS_NULLABLE = 'YES',
		       CASE WHEN c.COLUMN_KEY = 'PRI' THEN 1 ELSE 0 END
		FROM INFORMATION_SCHEMA.COLUMNS c
		WHERE c.TABLE_SCHEMA = DATABASE() AND c.TABLE_NAME = ?
		ORDER BY c.ORDINAL_POSITION`
		args = []any{table}
	} else {
		query = `
		SELECT c.COLUMN_NAME, c.DATA_TYPE,
		       c.IS_NULLABLE = 'YES',
		       CASE WHEN c.COLUMN_KEY = 'PRI' THEN 1 ELSE 0 END
		FROM INFORMATION_SCHEMA.COLUMNS c
		WHERE c.TABLE_SCHEMA = ? AND c.TABLE_NAME = ?
		ORDER BY c.ORDINAL_POSITION`
		args = []any{schema, table}
	}
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var cols []ColumnInfo
	for rows.Next() {
		var c ColumnInfo
		var nullable, isPK int
		if err := rows.Scan(&c.Name, &c.Type, &nullable, &isPK); err != nil {
			return nil, err
		}
		c.Nullable = nullable == 1
		c.IsPK = isPK == 1
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

// Query implements Driver.
func (d *MySQLDriver) Query(ctx context.Context, q guard.Query) (*ResultTable, error) {
	return d.query(ctx, q.SQL())
}

// query runs one statement on a fresh single-connection session with
// SET SESSION TRANSACTION READ ONLY issued first, so MySQL itself rejects any
// write (error 1792) even if the statement slipped past validation. Split
// out from Query so tests can drive the database barrier with statements
// validation would never approve.
func (d *MySQLDriver) query(ctx context.Context, stmt string) (*ResultTable, error) {
	sess, err := sql.Open("mysql", d.dsn)
	if err != nil {
		return nil, connFailure(fmt.Errorf("mysql open: %w", err))
	}
	defer sess.Close()
	sess.SetMaxOpenConns(1)

	conn, err := sess.Conn(ctx)
	if err != nil {
		return nil, connFailure(fmt.Errorf("mysql connect: %w", err))
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "SET SESSION TRANSACTION READ ONLY"); err != nil {
		return nil, connFailure(fmt.Errorf("set read-only session: %w", err))
	}

	rows, err := conn.QueryContext(ctx, stmt)
	if err != nil {
		return nil, classifyMySQLError(err)
	}
	defer rows.Close()

	table, err := scanRows(rows)
	if err != nil {
		return nil, classifyMySQLError(err)
	}
	return table, nil
}

func classifyMySQLError(err error) *ExecError {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == mysqlErrReadOnly {
		return &ExecError{Kind: ErrKindReadOnly, Err: err}
	}
	return &ExecError{Kind: ErrKindStatement, Err: err}
}

// Close implements Driver.
func (d *MySQLDriver) Close() error {
	return d.db.Close()
}

var _ Driver = (*MySQLDriver)(nil)
