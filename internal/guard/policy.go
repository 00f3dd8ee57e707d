package guard

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// DefaultAllowedStatements are the head tokens permitted to execute: data
// retrieval, metadata listing, structure description, and execution-plan
// inspection.
var DefaultAllowedStatements = []string{
	"SELECT",
	"SHOW",
	"DESCRIBE",
	"DESC",
	"EXPLAIN",
}

// DefaultBlockedKeywords are tokens that forbid execution wherever they
// appear in a statement body. The set spans DML, DDL, access control, and
// administrative or session-mutating verbs, including variable assignment and
// stored-procedure invocation since those can have arbitrary side effects.
// It is a starting point, not provably complete for every dialect; the
// session-level read-only enforcement in the execution gateway is the real
// last line of defense.
var DefaultBlockedKeywords = []string{
	// DML
	"INSERT", "UPDATE", "DELETE", "REPLACE", "MERGE", "UPSERT",
	// DDL
	"DROP", "ALTER", "CREATE", "TRUNCATE", "RENAME",
	// DCL
	"GRANT", "REVOKE",
	// Administrative and session-mutating
	"LOCK", "UNLOCK", "CALL", "LOAD", "IMPORT", "SET",
	"KILL", "FLUSH", "RESET", "PURGE", "HANDLER", "DO",
	// Prepared statements can construct and run SQL that static
	// validation never sees.
	"PREPARE", "EXECUTE", "DEALLOCATE",
}

// Policy holds the two immutable token sets a statement must satisfy: the
// allow-list of permitted head tokens and the deny-list scanned across the
// whole body. Build one at startup with NewPolicy; it is never mutated
// afterwards, so concurrent evaluations need no locking.
type Policy struct {
	allowed map[string]bool
	blocked *regexp.Regexp
}

// NewPolicy builds a Policy from case-insensitive token sets. It fails on an
// empty allow-list (nothing could ever be approved) and on any token present
// in both sets (every query using it would be rejected); both are
// configuration errors that must surface at startup, not per query.
func NewPolicy(allowed, blocked []string) (*Policy, error) {
	p := &Policy{allowed: make(map[string]bool, len(allowed))}
	for _, t := range allowed {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t != "" {
			p.allowed[t] = true
		}
	}
	if len(p.allowed) == 0 {
		return nil, fmt.Errorf("policy: allow-list is empty; no statement could ever be approved")
	}

	seen := make(map[string]bool, len(blocked))
	words := make([]string, 0, len(blocked))
	for _, t := range blocked {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		if p.allowed[t] {
			return nil, fmt.Errorf("policy: %q is both allowed and blocked", t)
		}
		seen[t] = true
		words = append(words, regexp.QuoteMeta(t))
	}
	sort.Strings(words)

	if len(words) > 0 {
		p.blocked = regexp.MustCompile(`(?i)\b(` + strings.Join(words, "|") + `)\b`)
	}
	return p, nil
}

// MustPolicy is NewPolicy for hard-coded sets; it panics on error.
func MustPolicy(allowed, blocked []string) *Policy {
	p, err := NewPolicy(allowed, blocked)
	if err != nil {
		panic(err)
	}
	return p
}

// DefaultPolicy returns the policy built from the default sets.
func DefaultPolicy() *Policy {
	return MustPolicy(DefaultAllowedStatements, DefaultBlockedKeywords)
}

// AllowedStatements returns the allow-list tokens, sorted. Safe to log.
func (p *Policy) AllowedStatements() []string {
	out := make([]string, 0, len(p.allowed))
	for t := range p.allowed {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Evaluate checks one classified statement fragment against both sets. The
// head token must be allowed, and no blocked token may appear anywhere in the
// body on a word boundary (so an identifier that merely contains a blocked
// token as a substring does not trip it). A head-only check would miss writes
// embedded in subqueries or CTE bodies, which is why the whole fragment is
// scanned.
func (p *Policy) Evaluate(fragment string, kind StatementKind) error {
	if !p.allowed[kind.Token] {
		return &Rejection{Reason: ReasonDisallowedStatement, Token: kind.Token}
	}
	if p.blocked != nil {
		if m := p.blocked.FindString(fragment); m != "" {
			return &Rejection{Reason: ReasonBlockedKeyword, Token: strings.ToUpper(m)}
		}
	}
	return nil
}
