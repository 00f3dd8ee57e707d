// Package guard decides whether a candidate SQL string is safe to run
// against a read-only connection. Validation is pure and stateless: a
// Gatekeeper holds only an immutable Policy and may be shared freely across
// goroutines.
package guard

import (
	"strings"
	"unicode"
)

// Normalize strips SQL comments and collapses whitespace, producing the
// canonical form every later check operates on. Line comments (-- to end of
// line) and block comments (/* ... */) are replaced by a single space; runs
// of whitespace outside string literals collapse to one space; the result is
// trimmed. Quoted bodies ('...', "...", `...`) are copied verbatim so a
// comment marker inside a literal does not truncate the statement.
//
// Normalization must run before any keyword inspection: a verb hidden inside
// a comment is inert to a naive scanner but may not be to the database, and a
// blocked keyword split across a comment boundary would otherwise evade the
// word-boundary scan.
func Normalize(raw string) string {
	const (
		stNormal = iota
		stSingle
		stDouble
		stBacktick
		stLineComment
		stBlockComment
	)

	var b strings.Builder
	b.Grow(len(raw))
	state := stNormal
	pendingSpace := false
	var prev rune

	emit := func(r rune) {
		if pendingSpace && b.Len() > 0 {
			b.WriteByte(' ')
		}
		pendingSpace = false
		b.WriteRune(r)
	}

	runes := []rune(raw)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch state {
		case stNormal:
			switch {
			case r == '-' && i+1 < len(runes) && runes[i+1] == '-':
				state = stLineComment
				pendingSpace = true
				i++
			case r == '/' && i+1 < len(runes) && runes[i+1] == '*':
				state = stBlockComment
				pendingSpace = true
				i++
			case r == '\'':
				emit(r)
				state = stSingle
				prev = 0
			case r == '"':
				emit(r)
				state = stDouble
				prev = 0
			case r == '`':
				emit(r)
				state = stBacktick
			case unicode.IsSpace(r):
				pendingSpace = true
			default:
				emit(r)
			}
		case stSingle:
			b.WriteRune(r)
			if r == '\'' && prev != '\\' {
				state = stNormal
			}
			prev = r
		case stDouble:
			b.WriteRune(r)
			if r == '"' && prev != '\\' {
				state = stNormal
			}
			prev = r
		case stBacktick:
			b.WriteRune(r)
			if r == '`' {
				state = stNormal
			}
		case stLineComment:
			if r == '\n' {
				state = stNormal
			}
		case stBlockComment:
			if r == '*' && i+1 < len(runes) && runes[i+1] == '/' {
				state = stNormal
				i++
			}
		}
	}
	return strings.TrimSpace(b.String())
}
