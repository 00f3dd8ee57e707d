package server

import (
	"context"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"sqlgate-mcp/internal/config"
)

// seedSQLite creates a temp-file database with a small users table and
// returns its path.
func seedSQLite(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "server_test.db")
	handle, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer handle.Close()

	_, err = handle.Exec(`CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT NOT NULL, email TEXT)`)
	require.NoError(t, err)
	_, err = handle.Exec(`INSERT INTO users (id, name, email) VALUES (1, 'Alice', 'alice@example.com'), (2, 'Bob', NULL)`)
	require.NoError(t, err)
	return path
}

// connect wires s to an in-memory client session and returns the session.
func connect(t *testing.T, s *mcp.Server) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()
	clientTransport, serverTransport := mcp.NewInMemoryTransports()

	serverSession, err := s.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { serverSession.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	clientSession, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { clientSession.Close() })
	return clientSession
}

func textContent(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok, "expected text content")
	return tc.Text
}

func TestPingTool(t *testing.T) {
	s, err := New(nil, nil)
	require.NoError(t, err)
	cs := connect(t, s)

	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{Name: "ping"})
	require.NoError(t, err)
	require.False(t, res.IsError)
	assert.JSONEq(t, `{"message":"pong"}`, textContent(t, res))
}

func TestListConnections(t *testing.T) {
	cfg := config.NewStatic(map[string]config.Connection{
		"local": {Type: "sqlite", URI: filepath.Join(t.TempDir(), "x.db")},
	})
	s, err := New(cfg, nil)
	require.NoError(t, err)
	cs := connect(t, s)

	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{Name: "list_connections"})
	require.NoError(t, err)
	require.False(t, res.IsError)

	var out ListConnectionsOutput
	require.NoError(t, json.Unmarshal([]byte(textContent(t, res)), &out))
	require.Len(t, out.Connections, 1)
	assert.Equal(t, "local", out.Connections[0].ID)
	assert.Equal(t, "sqlite", out.Connections[0].Type)
}

func TestRunQuery(t *testing.T) {
	path := seedSQLite(t)
	cfg := config.NewStatic(map[string]config.Connection{
		"local": {Type: "sqlite", URI: path},
	})
	s, err := New(cfg, nil)
	require.NoError(t, err)
	cs := connect(t, s)

	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name: "run_query",
		Arguments: map[string]any{
			"connection_id": "local",
			"sql":           "SELECT id, name FROM users ORDER BY id",
		},
	})
	require.NoError(t, err)
	require.False(t, res.IsError, "run_query: %s", textContent(t, res))

	var out RunQueryOutput
	require.NoError(t, json.Unmarshal([]byte(textContent(t, res)), &out))
	assert.Equal(t, []string{"id", "name"}, out.Columns)
	assert.Equal(t, 2, out.RowCount)
	require.Len(t, out.Rows, 2)
	assert.Equal(t, "Alice", out.Rows[0][1])
}

func TestRunQuery_rejectsWrites(t *testing.T) {
	path := seedSQLite(t)
	cfg := config.NewStatic(map[string]config.Connection{
		"local": {Type: "sqlite", URI: path},
	})
	s, err := New(cfg, nil)
	require.NoError(t, err)
	cs := connect(t, s)

	for _, stmt := range []string{
		"DROP TABLE users",
		"INSERT INTO users (id, name) VALUES (3, 'Mallory')",
		"SELECT 1; DROP TABLE users",
	} {
		res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
			Name: "run_query",
			Arguments: map[string]any{
				"connection_id": "local",
				"sql":           stmt,
			},
		})
		require.NoError(t, err)
		assert.True(t, res.IsError, "expected rejection for %q", stmt)
	}

	// The table is intact after every rejected attempt.
	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name: "run_query",
		Arguments: map[string]any{
			"connection_id": "local",
			"sql":           "SELECT count(*) FROM users",
		},
	})
	require.NoError(t, err)
	require.False(t, res.IsError)
	var out RunQueryOutput
	require.NoError(t, json.Unmarshal([]byte(textContent(t, res)), &out))
	assert.Equal(t, float64(2), out.Rows[0][0])
}

func TestRunQuery_missingConnectionID(t *testing.T) {
	s, err := New(config.NewStatic(nil), nil)
	require.NoError(t, err)
	cs := connect(t, s)

	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "run_query",
		Arguments: map[string]any{"sql": "SELECT 1"},
	})
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestExportQuery(t *testing.T) {
	path := seedSQLite(t)
	cfg := config.NewStatic(map[string]config.Connection{
		"local": {Type: "sqlite", URI: path},
	})
	s, err := New(cfg, nil)
	require.NoError(t, err)
	cs := connect(t, s)

	outPath := filepath.Join(t.TempDir(), "users.csv")
	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name: "export_query",
		Arguments: map[string]any{
			"connection_id": "local",
			"sql":           "SELECT id, name, email FROM users ORDER BY id",
			"path":          outPath,
		},
	})
	require.NoError(t, err)
	require.False(t, res.IsError, "export_query: %s", textContent(t, res))

	var out ExportQueryOutput
	require.NoError(t, json.Unmarshal([]byte(textContent(t, res)), &out))
	assert.Equal(t, 2, out.RowCount)

	f, err := os.Open(out.Path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"id", "name", "email"}, records[0])
	assert.Equal(t, "Alice", records[1][1])
	assert.Equal(t, "", records[2][2]) // NULL email exports as empty
}
