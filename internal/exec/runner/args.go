package runner

import (
	"fmt"
	"strings"
)

// splitCommandLine splits a command line into arguments for a direct
// (shell-less) spawn. Single and double quotes group words; a backslash
// escapes the next character outside single quotes.
func splitCommandLine(commandLine string) ([]string, error) {
	var args []string
	var cur strings.Builder
	var quote rune
	escaped := false
	inWord := false

	for _, r := range commandLine {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case quote == '\'':
			if r == '\'' {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '\\':
			escaped = true
			inWord = true
		case quote == '"':
			if r == '"' {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
			inWord = true
		case r == ' ' || r == '\t':
			if inWord {
				args = append(args, cur.String())
				cur.Reset()
				inWord = false
			}
		default:
			cur.WriteRune(r)
			inWord = true
		}
	}

	if escaped || quote != 0 {
		return nil, fmt.Errorf("unterminated quoting in command line %q", commandLine)
	}
	if inWord {
		args = append(args, cur.String())
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("empty command line")
	}
	return args, nil
}
