package config

import (
	"fmt"
	"strings"
	"unicode"
)

// shellSplit tokenizes an include directive the way a POSIX shell splits a
// command line: whitespace separates tokens, single quotes preserve
// everything literally, double quotes preserve everything except backslash
// escapes, and a bare backslash escapes the next rune.
func shellSplit(input string) ([]string, error) {
	var tokens []string
	var current strings.Builder
	inToken := false

	const (
		stateNone = iota
		stateSingle
		stateDouble
	)
	state := stateNone
	escaped := false

	for _, r := range input {
		if escaped {
			current.WriteRune(r)
			escaped = false
			inToken = true
			continue
		}
		switch state {
		case stateSingle:
			if r == '\'' {
				state = stateNone
			} else {
				current.WriteRune(r)
			}
		case stateDouble:
			switch r {
			case '"':
				state = stateNone
			case '\\':
				escaped = true
			default:
				current.WriteRune(r)
			}
		default:
			switch {
			case r == '\'':
				state = stateSingle
				inToken = true
			case r == '"':
				state = stateDouble
				inToken = true
			case r == '\\':
				escaped = true
			case unicode.IsSpace(r):
				if inToken {
					tokens = append(tokens, current.String())
					current.Reset()
					inToken = false
				}
			default:
				current.WriteRune(r)
				inToken = true
			}
		}
	}

	if state != stateNone {
		return nil, fmt.Errorf("unterminated quote in %q", input)
	}
	if escaped {
		return nil, fmt.Errorf("trailing backslash in %q", input)
	}
	if inToken {
		tokens = append(tokens, current.String())
	}
	return tokens, nil
}
