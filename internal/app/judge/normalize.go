// Package judge decides whether submitted code is correct: it canonicalizes
// program output and folds executor outcomes over a problem's test cases.
package judge

import (
	"strings"
	"unicode"
)

var lineEndings = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// Normalize canonicalizes program output for comparison. Line endings become
// "\n", trailing whitespace is dropped from every line, and leading and
// trailing blank space of the whole text is removed. It is idempotent.
func Normalize(text string) string {
	text = lineEndings.Replace(text)
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRightFunc(line, unicode.IsSpace)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// Equivalent reports whether expected and actual match after normalization.
func Equivalent(expected, actual string) bool {
	return Normalize(expected) == Normalize(actual)
}
