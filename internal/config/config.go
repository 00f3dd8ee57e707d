// Package config loads connection and policy configuration from environment
// variables and an optional config file. Connection URIs are never logged or
// exposed to tool responses. Policy configuration is resolved once at
// startup; a policy that could never approve anything fails here, not per
// query.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"sqlgate-mcp/internal/guard"
)

// Env var names for connection strings. If set, they define connections with
// fixed IDs "postgres", "mysql", "sqlserver" and "sqlite".
const (
	EnvPostgresURI  = "SQLGATE_DB_POSTGRES_URI"
	EnvMySQLURI     = "SQLGATE_DB_MYSQL_URI"
	EnvSQLServerURI = "SQLGATE_DB_SQLSERVER_URI"
	EnvSQLiteURI    = "SQLGATE_DB_SQLITE_URI"
	// EnvAuditLog overrides the audit log path from the config file.
	EnvAuditLog = "SQLGATE_AUDIT_LOG"
)

// DefaultConfigDir is the directory for the optional config file.
// Config file path: ~/.sqlgate-mcp/config.yaml
const DefaultConfigDir = ".sqlgate-mcp"
const ConfigFileName = "config.yaml"

// Config holds loaded connection and policy configuration. URIs are stored
// but never included in logs or tool output.
type Config struct {
	connections map[string]connectionEntry
	policy      PolicyConfig
	auditLog    string
}

type connectionEntry struct {
	Type string // "postgres", "mysql", "sqlserver" or "sqlite"
	uri  string
}

// Connection is a typed connection definition for NewStatic.
type Connection struct {
	Type string
	URI  string
}

// PolicyConfig is the optional policy section of the config file. All token
// matching is case-insensitive.
type PolicyConfig struct {
	// AllowedStatements replaces the default allow-list when non-empty.
	AllowedStatements []string `yaml:"allowed_statements"`
	// ExtraBlockedKeywords extends the default deny-list.
	ExtraBlockedKeywords []string `yaml:"extra_blocked_keywords"`
	// UnblockedKeywords removes tokens from the default deny-list, for
	// schemas whose identifiers collide with a blocked verb.
	UnblockedKeywords []string `yaml:"unblocked_keywords"`
}

// ConnectionInfo is safe to log or return to tools: no credentials.
type ConnectionInfo struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// Load reads configuration from the environment and, if present,
// ~/.sqlgate-mcp/config.yaml. Env vars override file values for the same
// connection ID.
func Load() (*Config, error) {
	c := &Config{connections: make(map[string]connectionEntry)}

	// 1) Optional config file (base)
	configPath, err := configFilePath()
	if err != nil {
		return nil, fmt.Errorf("config path: %w", err)
	}
	if configPath != "" {
		if err := c.loadFile(configPath); err != nil {
			return nil, fmt.Errorf("config file %s: %w", configPath, err)
		}
	}

	// 2) Env overrides
	envConns := []struct{ env, id, typ string }{
		{EnvPostgresURI, "postgres", "postgres"},
		{EnvMySQLURI, "mysql", "mysql"},
		{EnvSQLServerURI, "sqlserver", "sqlserver"},
		{EnvSQLiteURI, "sqlite", "sqlite"},
	}
	for _, ec := range envConns {
		if v := os.Getenv(ec.env); v != "" {
			c.connections[ec.id] = connectionEntry{Type: ec.typ, uri: v}
		}
	}
	if v := os.Getenv(EnvAuditLog); v != "" {
		c.auditLog = v
	}

	return c, nil
}

// NewStatic builds a Config from explicit connection definitions. Used by
// tests and embedding callers that do not read the environment.
func NewStatic(conns map[string]Connection) *Config {
	c := &Config{connections: make(map[string]connectionEntry, len(conns))}
	for id, conn := range conns {
		typ := conn.Type
		if typ == "" {
			typ = uriType(conn.URI)
		}
		c.connections[id] = connectionEntry{Type: typ, uri: conn.URI}
	}
	return c
}

func configFilePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	p := filepath.Join(home, DefaultConfigDir, ConfigFileName)
	_, err = os.Stat(p)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return p, nil
}

type fileFormat struct {
	Connections map[string]fileConnection `yaml:"connections"`
	Policy      PolicyConfig              `yaml:"policy"`
	AuditLog    string                    `yaml:"audit_log"`
}

type fileConnection struct {
	Type string `yaml:"type"`
	URI  string `yaml:"uri"`
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return c.parse(data)
}

func (c *Config) parse(data []byte) error {
	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return err
	}
	for id, conn := range f.Connections {
		if conn.URI == "" {
			continue
		}
		typ := conn.Type
		if typ == "" {
			typ = uriType(conn.URI)
		}
		c.connections[id] = connectionEntry{Type: typ, uri: conn.URI}
	}
	c.policy = f.Policy
	c.auditLog = f.AuditLog
	return nil
}

// uriType guesses the backend from the URI shape when the config omits an
// explicit type.
func uriType(uri string) string {
	switch {
	case strings.HasPrefix(uri, "postgres://"), strings.HasPrefix(uri, "postgresql://"):
		return "postgres"
	case strings.HasPrefix(uri, "sqlserver://"):
		return "sqlserver"
	case strings.Contains(uri, "@tcp("), strings.Contains(uri, "@unix("):
		return "mysql"
	default:
		return "sqlite"
	}
}

// BuildPolicy resolves the configured policy into an immutable guard.Policy.
// The allow-list defaults to guard.DefaultAllowedStatements; the deny-list is
// the default set plus extra_blocked_keywords minus unblocked_keywords.
// Construction errors (empty allow-list, allow/deny overlap) are startup
// failures.
func (c *Config) BuildPolicy() (*guard.Policy, error) {
	allowed := c.policy.AllowedStatements
	if len(allowed) == 0 {
		allowed = guard.DefaultAllowedStatements
	}

	unblocked := make(map[string]bool, len(c.policy.UnblockedKeywords))
	for _, t := range c.policy.UnblockedKeywords {
		unblocked[strings.ToUpper(strings.TrimSpace(t))] = true
	}
	var blocked []string
	for _, t := range guard.DefaultBlockedKeywords {
		if !unblocked[t] {
			blocked = append(blocked, t)
		}
	}
	blocked = append(blocked, c.policy.ExtraBlockedKeywords...)

	return guard.NewPolicy(allowed, blocked)
}

// AuditLogPath returns the configured audit log path, or "" for stderr.
func (c *Config) AuditLogPath() string {
	return c.auditLog
}

// ConnectionIDs returns all configured connection IDs, sorted. Safe to log.
func (c *Config) ConnectionIDs() []string {
	ids := make([]string, 0, len(c.connections))
	for id := range c.connections {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ConnectionInfos returns connection id and type for each connection. Safe to return from tools.
func (c *Config) ConnectionInfos() []ConnectionInfo {
	infos := make([]ConnectionInfo, 0, len(c.connections))
	for _, id := range c.ConnectionIDs() {
		infos = append(infos, ConnectionInfo{ID: id, Type: c.connections[id].Type})
	}
	return infos
}

// URI returns the connection URI for the given ID. For use only by the db layer; never log the result.
func (c *Config) URI(id string) (uri string, ok bool) {
	e, ok := c.connections[id]
	if !ok {
		return "", false
	}
	return e.uri, true
}

// Type returns the backend type for the given connection ID.
func (c *Config) Type(id string) (string, bool) {
	e, ok := c.connections[id]
	if !ok {
		return "", false
	}
	return e.Type, true
}

// HasConnection returns whether the given connection ID is configured.
func (c *Config) HasConnection(id string) bool {
	_, ok := c.connections[id]
	return ok
}
