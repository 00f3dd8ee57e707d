package main

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// stdioSession is an MCP client session bound to a child server process.
type stdioSession struct {
	cs   *mcp.ClientSession
	cmd  *exec.Cmd
	done func()
}

// connectStdio starts cmd, wires its stdin/stdout into an MCP transport, and
// completes the client handshake.
func connectStdio(ctx context.Context, cmd *exec.Cmd) (*stdioSession, error) {
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start server: %w", err)
	}

	transport := &mcp.IOTransport{
		Reader: stdout,
		Writer: stdin,
	}
	client := mcp.NewClient(&mcp.Implementation{Name: "mcpclient", Version: "0.1.0"}, nil)
	cs, err := client.Connect(ctx, transport, nil)
	if err != nil {
		stdin.Close()
		_ = cmd.Wait()
		return nil, fmt.Errorf("connect: %w", err)
	}
	return &stdioSession{
		cs:  cs,
		cmd: cmd,
		done: func() {
			stdin.Close()
			_ = cmd.Wait()
		},
	}, nil
}

// call invokes one tool and returns its text content.
func (s *stdioSession) call(ctx context.Context, toolName string, args any) (string, error) {
	res, err := s.cs.CallTool(ctx, &mcp.CallToolParams{
		Name:      toolName,
		Arguments: args,
	})
	if err != nil {
		return "", fmt.Errorf("call tool: %w", err)
	}
	if res.IsError {
		return "", fmt.Errorf("tool error: %v", res.Content)
	}
	if len(res.Content) > 0 {
		if tc, ok := res.Content[0].(*mcp.TextContent); ok {
			return tc.Text, nil
		}
	}
	return "", nil
}

func (s *stdioSession) close() {
	s.cs.Close()
	s.done()
}
