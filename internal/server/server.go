// Package server builds the MCP server and registers tools. Every query
// tool funnels through the same gatekeeper and execution gateway; there is
// no tool that reaches a connection without validation.
package server

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"sqlgate-mcp/internal/audit"
	"sqlgate-mcp/internal/config"
	"sqlgate-mcp/internal/db"
	"sqlgate-mcp/internal/guard"
)

const (
	ServerName    = "sqlgate-mcp"
	ServerVersion = "1.0.0"
)

// New returns an MCP server with all tools registered, enforcing the policy
// built from cfg. A policy error (empty allow-list, allow/deny overlap) fails
// here, at startup. cfg may be nil (only ping works without config); rec may
// be nil to disable audit events.
func New(cfg *config.Config, rec *audit.Recorder) (*mcp.Server, error) {
	var policy *guard.Policy
	if cfg != nil {
		p, err := cfg.BuildPolicy()
		if err != nil {
			return nil, err
		}
		policy = p
	}
	gate := guard.NewGatekeeper(policy)

	s := mcp.NewServer(&mcp.Implementation{
		Name:    ServerName,
		Version: ServerVersion,
	}, nil)

	var mgr *db.Manager
	if cfg != nil {
		mgr = db.NewManager(cfg)
	}

	mcp.AddTool(s, &mcp.Tool{
		Name:        "ping",
		Description: "Simple health check. Returns pong.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, _ any) (*mcp.CallToolResult, PingOutput, error) {
		return nil, PingOutput{Message: "pong"}, nil
	})

	mcp.AddTool(s, &mcp.Tool{
		Name:        "list_connections",
		Description: "List configured database connection IDs and their types. No credentials in response.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, _ any) (*mcp.CallToolResult, ListConnectionsOutput, error) {
		out := ListConnectionsOutput{Connections: nil}
		if cfg != nil {
			out.Connections = cfg.ConnectionInfos()
		}
		return nil, out, nil
	})

	if mgr != nil {
		mcp.AddTool(s, &mcp.Tool{
			Name:        "list_tables",
			Description: "List table names in a given connection and optional schema.",
		}, func(ctx context.Context, req *mcp.CallToolRequest, in ListTablesInput) (*mcp.CallToolResult, ListTablesOutput, error) {
			if in.ConnectionID == "" {
				return nil, ListTablesOutput{}, fmt.Errorf("connection_id is required")
			}
			driver, err := mgr.Driver(ctx, in.ConnectionID)
			if err != nil {
				return nil, ListTablesOutput{}, err
			}
			tables, err := driver.ListTables(ctx, in.Schema)
			if err != nil {
				return nil, ListTablesOutput{}, err
			}
			return nil, ListTablesOutput{Tables: tables}, nil
		})

		mcp.AddTool(s, &mcp.Tool{
			Name:        "describe_table",
			Description: "Describe columns of a table (name, type, nullable, primary key).",
		}, func(ctx context.Context, req *mcp.CallToolRequest, in DescribeTableInput) (*mcp.CallToolResult, DescribeTableOutput, error) {
			if in.ConnectionID == "" {
				return nil, DescribeTableOutput{}, fmt.Errorf("connection_id is required")
			}
			if in.Table == "" {
				return nil, DescribeTableOutput{}, fmt.Errorf("table is required")
			}
			driver, err := mgr.Driver(ctx, in.ConnectionID)
			if err != nil {
				return nil, DescribeTableOutput{}, err
			}
			cols, err := driver.DescribeTable(ctx, in.Schema, in.Table)
			if err != nil {
				return nil, DescribeTableOutput{}, err
			}
			return nil, DescribeTableOutput{Columns: cols}, nil
		})

		mcp.AddTool(s, &mcp.Tool{
			Name:        "run_query",
			Description: "Run a read-only SQL query (SELECT/SHOW/DESCRIBE/EXPLAIN). Any write or admin statement is rejected before it reaches a connection, and the session itself is read-only.",
		}, func(ctx context.Context, req *mcp.CallToolRequest, in RunQueryInput) (*mcp.CallToolResult, RunQueryOutput, error) {
			if in.ConnectionID == "" {
				return nil, RunQueryOutput{}, fmt.Errorf("connection_id is required")
			}
			table, err := runApproved(ctx, gate, mgr, rec, in.ConnectionID, in.Caller, in.SQL)
			if err != nil {
				return nil, RunQueryOutput{}, err
			}
			return nil, RunQueryOutput{
				Columns:  table.Columns,
				Rows:     table.Rows,
				RowCount: len(table.Rows),
			}, nil
		})

		mcp.AddTool(s, &mcp.Tool{
			Name:        "export_query",
			Description: "Run a read-only SQL query and write the result to a local CSV file. Same validation and read-only enforcement as run_query.",
		}, func(ctx context.Context, req *mcp.CallToolRequest, in ExportQueryInput) (*mcp.CallToolResult, ExportQueryOutput, error) {
			if in.ConnectionID == "" {
				return nil, ExportQueryOutput{}, fmt.Errorf("connection_id is required")
			}
			table, err := runApproved(ctx, gate, mgr, rec, in.ConnectionID, in.Caller, in.SQL)
			if err != nil {
				return nil, ExportQueryOutput{}, err
			}
			abs, err := exportCSV(in.Path, table)
			if err != nil {
				return nil, ExportQueryOutput{}, err
			}
			return nil, ExportQueryOutput{Path: abs, RowCount: len(table.Rows)}, nil
		})
	}

	return s, nil
}

// runApproved is the single validate-then-execute path shared by the query
// tools: gatekeeper decision, audit event, fresh read-only session, audit
// event. Rejections never reach the manager.
func runApproved(ctx context.Context, gate *guard.Gatekeeper, mgr *db.Manager, rec *audit.Recorder, connectionID, caller, sql string) (*db.ResultTable, error) {
	q, err := gate.Validate(sql)
	rec.Validation(connectionID, caller, q.Kind(), err)
	if err != nil {
		return nil, err
	}

	driver, err := mgr.Driver(ctx, connectionID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	table, err := driver.Query(ctx, q)
	rows := 0
	if table != nil {
		rows = len(table.Rows)
	}
	rec.Execution(connectionID, caller, q.Kind(), rows, time.Since(start), err)
	if err != nil {
		return nil, err
	}
	return table, nil
}

// PingOutput is the structured result of the ping tool.
type PingOutput struct {
	Message string `json:"message"`
}

// ListConnectionsOutput is the result of list_connections.
type ListConnectionsOutput struct {
	Connections []config.ConnectionInfo `json:"connections"`
}

// ListTablesInput is the input for list_tables.
type ListTablesInput struct {
	ConnectionID string `json:"connection_id,omitempty"`
	Schema       string `json:"schema,omitempty"`
}

// ListTablesOutput is the result of list_tables.
type ListTablesOutput struct {
	Tables []string `json:"tables"`
}

// DescribeTableInput is the input for describe_table.
type DescribeTableInput struct {
	ConnectionID string `json:"connection_id,omitempty"`
	Schema       string `json:"schema,omitempty"`
	Table        string `json:"table"`
}

// DescribeTableOutput is the result of describe_table.
type DescribeTableOutput struct {
	Columns []db.ColumnInfo `json:"columns"`
}

// RunQueryInput is the input for run_query. Caller is an opaque identifier
// recorded in audit events.
type RunQueryInput struct {
	ConnectionID string `json:"connection_id,omitempty"`
	SQL          string `json:"sql"`
	Caller       string `json:"caller,omitempty"`
}

// RunQueryOutput is the result of run_query.
type RunQueryOutput struct {
	Columns  []string `json:"columns"`
	Rows     [][]any  `json:"rows"`
	RowCount int      `json:"row_count"`
}

// ExportQueryInput is the input for export_query.
type ExportQueryInput struct {
	ConnectionID string `json:"connection_id,omitempty"`
	SQL          string `json:"sql"`
	Path         string `json:"path"`
	Caller       string `json:"caller,omitempty"`
}

// ExportQueryOutput is the result of export_query.
type ExportQueryOutput struct {
	Path     string `json:"path"`
	RowCount int    `json:"row_count"`
}
