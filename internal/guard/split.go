package guard

import "strings"

// Split partitions a canonical query into top-level statements on semicolon
// boundaries and drops fragments that are blank after trimming. Semicolons
// inside quoted literals do not split. More than one surviving fragment means
// a multi-statement payload; zero means the input had no executable content.
func Split(canonical string) []string {
	const (
		stNormal = iota
		stSingle
		stDouble
		stBacktick
	)

	var frags []string
	var b strings.Builder
	state := stNormal
	var prev rune

	flush := func() {
		if s := strings.TrimSpace(b.String()); s != "" {
			frags = append(frags, s)
		}
		b.Reset()
	}

	for _, r := range canonical {
		switch state {
		case stNormal:
			switch r {
			case ';':
				flush()
				continue
			case '\'':
				state = stSingle
				prev = 0
			case '"':
				state = stDouble
				prev = 0
			case '`':
				state = stBacktick
			}
		case stSingle:
			if r == '\'' && prev != '\\' {
				state = stNormal
			}
			prev = r
		case stDouble:
			if r == '"' && prev != '\\' {
				state = stNormal
			}
			prev = r
		case stBacktick:
			if r == '`' {
				state = stNormal
			}
		}
		b.WriteRune(r)
	}
	flush()
	return frags
}
