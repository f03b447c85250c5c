package llm

import (
	"regexp"
	"strings"
)

var codeFenceRe = regexp.MustCompile("(?s)```[\\w+-]*[ \\t]*\\n(.*?)```")

// ExtractCode returns the body of the first fenced code block in s, or s
// unchanged when it has none.
func ExtractCode(s string) string {
	if m := codeFenceRe.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return s
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// oneLine collapses whitespace so model output fits in a log attribute.
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
