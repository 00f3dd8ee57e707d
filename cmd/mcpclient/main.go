// Package main is a one-off MCP client for manual testing: it spawns the
// sqlgate-mcp server over stdio, calls a single tool, and prints the result.
// Run from the repo root:
//
//	go run ./cmd/mcpclient <tool_name>             # no args, e.g. ping
//	go run ./cmd/mcpclient <tool_name> '<json>'    # with arguments
//
// Examples:
//
//	go run ./cmd/mcpclient ping
//	go run ./cmd/mcpclient list_connections
//	go run ./cmd/mcpclient run_query '{"connection_id":"sqlite","sql":"SELECT 1"}'
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	if len(os.Args) < 2 {
		return fmt.Errorf("usage: %s <tool_name> [json_arguments]", os.Args[0])
	}
	toolName := os.Args[1]
	var args any
	if len(os.Args) >= 3 && os.Args[2] != "" {
		if err := json.Unmarshal([]byte(os.Args[2]), &args); err != nil {
			return fmt.Errorf("invalid json arguments: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	root, err := findRepoRoot()
	if err != nil {
		return fmt.Errorf("find repo root: %w", err)
	}

	text, err := callTool(ctx, root, toolName, args)
	if err != nil {
		return err
	}
	fmt.Println(text)
	return nil
}

// callTool spawns the server as a child process, connects over its stdio, and
// invokes one tool.
func callTool(ctx context.Context, repoRoot, toolName string, args any) (string, error) {
	cmd := exec.CommandContext(ctx, "go", "run", "./cmd/server")
	cmd.Dir = repoRoot
	cmd.Env = os.Environ() // pass through so the server sees SQLGATE_DB_* etc.
	cmd.Stderr = os.Stderr

	session, err := connectStdio(ctx, cmd)
	if err != nil {
		return "", err
	}
	defer session.close()

	return session.call(ctx, toolName, args)
}

func findRepoRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found")
		}
		dir = parent
	}
}
