package guard

import "fmt"

// Reason identifies why validation rejected a query. Rejections are terminal:
// this layer never retries a rejected query in any form.
type Reason int

const (
	// ReasonEmptyQuery: no executable content after normalization.
	ReasonEmptyQuery Reason = iota
	// ReasonMultiStatement: more than one non-empty statement fragment.
	ReasonMultiStatement
	// ReasonDisallowedStatement: head token not in the allow-list.
	ReasonDisallowedStatement
	// ReasonBlockedKeyword: a forbidden token somewhere in the body.
	ReasonBlockedKeyword
)

// String implements fmt.Stringer for audit events.
func (r Reason) String() string {
	switch r {
	case ReasonEmptyQuery:
		return "empty_query"
	case ReasonMultiStatement:
		return "multi_statement"
	case ReasonDisallowedStatement:
		return "disallowed_statement"
	case ReasonBlockedKeyword:
		return "blocked_keyword"
	default:
		return "unknown"
	}
}

// Rejection is the error returned when validation refuses a query. Token
// holds the single offending token where one exists (the head verb or the
// blocked keyword); the policy's full token lists are never included in the
// message.
type Rejection struct {
	Reason Reason
	Token  string
}

// Error implements error.
func (e *Rejection) Error() string {
	switch e.Reason {
	case ReasonEmptyQuery:
		return "query is empty after removing comments"
	case ReasonMultiStatement:
		return "multi-statement queries are not allowed; send one statement at a time"
	case ReasonDisallowedStatement:
		return fmt.Sprintf("statement type %q is not allowed; only read-only queries are permitted", e.Token)
	case ReasonBlockedKeyword:
		return fmt.Sprintf("query contains blocked keyword %q; only read-only queries are permitted", e.Token)
	default:
		return "query rejected"
	}
}

// Query is a validated, canonical SQL statement. The only way to obtain a
// usable Query is a successful Gatekeeper.Validate, so execution code is
// structurally unable to receive SQL that skipped validation.
type Query struct {
	sql  string
	kind StatementKind
}

// SQL returns the canonical statement text.
func (q Query) SQL() string { return q.sql }

// Kind returns the statement's lexical kind.
func (q Query) Kind() StatementKind { return q.kind }

// IsZero reports whether q was never produced by Validate.
func (q Query) IsZero() bool { return q.sql == "" }

// Gatekeeper is the single entry point for SQL validation. It composes
// normalize, split, classify, and policy evaluation strictly in that order;
// callers must not invoke the stages individually, which would open a
// bypassable partial-validation path. Validate is deterministic and
// idempotent: the same input always yields the same outcome.
type Gatekeeper struct {
	policy *Policy
}

// NewGatekeeper returns a Gatekeeper enforcing the given policy, or the
// default policy if p is nil.
func NewGatekeeper(p *Policy) *Gatekeeper {
	if p == nil {
		p = DefaultPolicy()
	}
	return &Gatekeeper{policy: p}
}

// Validate decides whether raw is safe to run. On approval it returns the
// Query to execute; otherwise the error is a *Rejection and the input must
// never reach a connection.
func (g *Gatekeeper) Validate(raw string) (Query, error) {
	canonical := Normalize(raw)
	frags := Split(canonical)
	switch {
	case len(frags) == 0:
		return Query{}, &Rejection{Reason: ReasonEmptyQuery}
	case len(frags) > 1:
		return Query{}, &Rejection{Reason: ReasonMultiStatement}
	}

	frag := frags[0]
	kind := Classify(frag)
	if err := g.policy.Evaluate(frag, kind); err != nil {
		return Query{}, err
	}
	return Query{sql: frag, kind: kind}, nil
}
