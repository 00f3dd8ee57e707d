// Package main runs the sqlgate-mcp server: an MCP server that lets agents
// run read-only SQL against configured databases. Every query is validated
// lexically and executed in a read-only session; credentials never appear in
// tool responses.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"sqlgate-mcp/internal/audit"
	"sqlgate-mcp/internal/config"
	"sqlgate-mcp/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	rec, closeAudit, err := audit.Open(cfg.AuditLogPath())
	if err != nil {
		log.Fatalf("audit: %v", err)
	}
	defer closeAudit()

	srv, err := server.New(cfg, rec)
	if err != nil {
		log.Fatalf("server: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := srv.Run(ctx, &mcp.StdioTransport{}); err != nil && context.Cause(ctx) != context.Canceled {
		log.Fatalf("server: %v", err)
	}
}
