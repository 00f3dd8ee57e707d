package guard

import "strings"

// StatementClass is the coarse category of a statement's head verb.
type StatementClass int

const (
	ClassOther StatementClass = iota
	ClassSelect
	ClassShow
	ClassDescribe
	ClassExplain
)

// String implements fmt.Stringer for audit events.
func (c StatementClass) String() string {
	switch c {
	case ClassSelect:
		return "select"
	case ClassShow:
		return "show"
	case ClassDescribe:
		return "describe"
	case ClassExplain:
		return "explain"
	default:
		return "other"
	}
}

// StatementKind is the lexical kind of a single statement: its class plus the
// uppercased head token the class was derived from. For ClassOther the token
// carries whatever verb was actually found (e.g. "DELETE", "VACUUM").
type StatementKind struct {
	Class StatementClass
	Token string
}

// statement verbs recognized when skipping a CTE header. Write verbs are
// included so that "WITH cte AS (...) DELETE ..." classifies as DELETE and
// fails the allow-list check on its real verb.
var cteFollowVerbs = map[string]bool{
	"SELECT": true, "INSERT": true, "UPDATE": true, "DELETE": true,
	"MERGE": true, "REPLACE": true, "TABLE": true, "VALUES": true,
}

// Classify determines the kind of one statement fragment from its first
// lexical token. A leading WITH [RECURSIVE] header is skipped by scanning for
// the verb that follows the CTE definitions at parenthesis depth zero; if no
// such verb is found the head stays "WITH", which no allow-list admits.
// Classification of the head is necessary but not sufficient — the policy's
// full-body scan is the safety net for verbs buried deeper in the statement.
func Classify(fragment string) StatementKind {
	tok := headToken(fragment)
	if tok == "WITH" {
		if verb := verbAfterCTE(fragment); verb != "" {
			tok = verb
		}
	}
	switch tok {
	case "SELECT":
		return StatementKind{Class: ClassSelect, Token: tok}
	case "SHOW":
		return StatementKind{Class: ClassShow, Token: tok}
	case "DESCRIBE", "DESC":
		return StatementKind{Class: ClassDescribe, Token: tok}
	case "EXPLAIN":
		return StatementKind{Class: ClassExplain, Token: tok}
	}
	return StatementKind{Class: ClassOther, Token: tok}
}

// headToken returns the first keyword-shaped token of the fragment,
// uppercased. Leading parentheses are skipped so "(SELECT 1)" classifies as
// SELECT.
func headToken(fragment string) string {
	s := fragment
	for len(s) > 0 && (s[0] == '(' || s[0] == ' ') {
		s = s[1:]
	}
	end := 0
	for end < len(s) && isWordByte(s[end]) {
		end++
	}
	return strings.ToUpper(s[:end])
}

// verbAfterCTE scans past the WITH header's parenthesized CTE bodies and
// returns the first recognized statement verb at depth zero, or "".
func verbAfterCTE(fragment string) string {
	depth := 0
	inSingle, inDouble, inBacktick := false, false, false
	var prev byte

	i := 0
	for i < len(fragment) {
		c := fragment[i]
		switch {
		case inSingle:
			if c == '\'' && prev != '\\' {
				inSingle = false
			}
		case inDouble:
			if c == '"' && prev != '\\' {
				inDouble = false
			}
		case inBacktick:
			if c == '`' {
				inBacktick = false
			}
		case c == '\'':
			inSingle = true
		case c == '"':
			inDouble = true
		case c == '`':
			inBacktick = true
		case c == '(':
			depth++
		case c == ')':
			depth--
		case depth == 0 && isWordByte(c):
			start := i
			for i < len(fragment) && isWordByte(fragment[i]) {
				i++
			}
			word := strings.ToUpper(fragment[start:i])
			if cteFollowVerbs[word] {
				return word
			}
			prev = fragment[i-1]
			continue
		}
		prev = c
		i++
	}
	return ""
}

func isWordByte(c byte) bool {
	return c == '_' ||
		('a' <= c && c <= 'z') ||
		('A' <= c && c <= 'Z') ||
		('0' <= c && c <= '9')
}
