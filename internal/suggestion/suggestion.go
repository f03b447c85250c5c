// Package suggestion extracts GitHub review suggestions and applies them to file content.
package suggestion

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

// TrailerKey is the commit trailer that records which review comment a commit applied.
const TrailerKey = "Suggestion-Comment-Id"

var (
	fenceRe   = regexp.MustCompile("(?s)```suggestion[^\\n]*\\n(.*?)```")
	trailerRe = regexp.MustCompile(`(?m)^` + TrailerKey + `:\s*(\d+)\s*$`)
)

// ErrLineRange reports a suggestion whose lines fall outside the file.
var ErrLineRange = errors.New("suggestion line range out of bounds")

// Suggestion is a single replacement proposed in a review comment.
type Suggestion struct {
	CommentID int64
	Bot       string
	Path      string
	StartLine int
	EndLine   int
	// Replacement is the fenced text, including its trailing newline when non-empty.
	Replacement string
}

// Extract returns the body of the first ```suggestion fence in body.
func Extract(body string) (string, bool) {
	m := fenceRe.FindStringSubmatch(body)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// FromComment builds a Suggestion from review comment fields. startLine of 0
// means the suggestion replaces only line.
func FromComment(id int64, bot, path string, startLine, line int, body string) (Suggestion, bool) {
	text, ok := Extract(body)
	if !ok {
		return Suggestion{}, false
	}
	if startLine == 0 {
		startLine = line
	}
	return Suggestion{
		CommentID:   id,
		Bot:         bot,
		Path:        path,
		StartLine:   startLine,
		EndLine:     line,
		Replacement: text,
	}, true
}

// Splice replaces the 1-indexed inclusive line range start..end of content
// with replacement. The newline state of the last replaced line is kept.
func Splice(content string, start, end int, replacement string) (string, error) {
	lines := strings.SplitAfter(content, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	if start < 1 || end < start || end > len(lines) {
		return "", fmt.Errorf("%w: lines %d-%d of %d", ErrLineRange, start, end, len(lines))
	}

	endsWithNewline := strings.HasSuffix(lines[end-1], "\n")
	if replacement != "" {
		replacement = strings.TrimSuffix(replacement, "\n")
		if endsWithNewline {
			replacement += "\n"
		}
	}

	var b strings.Builder
	for _, l := range lines[:start-1] {
		b.WriteString(l)
	}
	b.WriteString(replacement)
	for _, l := range lines[end:] {
		b.WriteString(l)
	}
	return b.String(), nil
}

// Apply splices s into content.
func (s Suggestion) Apply(content string) (string, error) {
	return Splice(content, s.StartLine, s.EndLine, s.Replacement)
}

// ApplyAll splices every suggestion in ss into content. All line numbers refer
// to content as given: accepted suggestions are spliced bottom-up so an earlier
// one never shifts a later one. A suggestion that overlaps one already
// accepted, or falls outside the file, is returned in skipped.
func ApplyAll(content string, ss []Suggestion) (out string, applied, skipped []Suggestion, err error) {
	ordered := slices.Clone(ss)
	slices.SortStableFunc(ordered, func(a, b Suggestion) int { return a.StartLine - b.StartLine })

	n := lineCount(content)
	last := 0
	for _, s := range ordered {
		if s.StartLine <= last || s.StartLine < 1 || s.EndLine < s.StartLine || s.EndLine > n {
			skipped = append(skipped, s)
			continue
		}
		applied = append(applied, s)
		last = s.EndLine
	}

	out = content
	for _, s := range slices.Backward(applied) {
		if out, err = s.Apply(out); err != nil {
			return "", nil, nil, err
		}
	}
	return out, applied, skipped, nil
}

func lineCount(content string) int {
	n := strings.Count(content, "\n")
	if content != "" && !strings.HasSuffix(content, "\n") {
		n++
	}
	return n
}

// CommitMessage returns the commit message recording s, including the
// comment id trailer used for dedupe.
func (s Suggestion) CommitMessage() string {
	return CommitMessage([]Suggestion{s})
}

// CommitMessage returns one commit message recording every suggestion in ss:
// an id trailer per comment and a co-author per distinct bot.
func CommitMessage(ss []Suggestion) string {
	bots := lo.Uniq(lo.Map(ss, func(s Suggestion, _ int) string { return s.Bot }))

	var b strings.Builder
	fmt.Fprintf(&b, "Apply suggestion from %s\n\n", strings.Join(bots, ", "))
	for _, s := range ss {
		fmt.Fprintf(&b, "%s: %d\n", TrailerKey, s.CommentID)
	}
	for i, bot := range bots {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "Co-authored-by: %s <%s@users.noreply.github.com>", bot, bot)
	}
	return b.String()
}

// AppliedIDs collects comment ids named by trailers in commit messages.
func AppliedIDs(messages []string) map[int64]bool {
	ids := make(map[int64]bool)
	for _, msg := range messages {
		for _, m := range trailerRe.FindAllStringSubmatch(msg, -1) {
			if id, err := strconv.ParseInt(m[1], 10, 64); err == nil {
				ids[id] = true
			}
		}
	}
	return ids
}
