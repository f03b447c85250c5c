package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/juninmd/prpilot/internal/triage"
)

const markdownV2Special = "\\_*[]()~`>#+-=|{}.!"

// Escape quotes every MarkdownV2 special character in s.
func Escape(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if strings.ContainsRune(markdownV2Special, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// escapeURL quotes the characters MarkdownV2 requires inside a link target.
func escapeURL(s string) string {
	return strings.NewReplacer(`\`, `\\`, `)`, `\)`).Replace(s)
}

type section struct {
	cat      triage.Category
	title    string
	overflow string
}

var sections = []section{
	{triage.CategoryMerged, "✅ *PRs mergeados*", "PRs"},
	{triage.CategoryConflictsResolved, "🔧 *Conflitos resolvidos*", "conflitos"},
	{triage.CategoryPipelineFailures, "❌ *Falhas de pipeline*", "falhas"},
	{triage.CategoryDrafts, "📝 *Drafts*", "drafts"},
	{triage.CategorySkipped, "⏭️ *Pulados*", "pulados"},
}

// FormatSummary renders a run result as a MarkdownV2 message. Each category
// lists at most ten PRs followed by an overflow line.
func FormatSummary(r *triage.RunResult) string {
	var b strings.Builder
	b.WriteString("📊 *Resumo do PR Pilot*\n\n")
	fmt.Fprintf(&b, "*Owner:* %s\n", Escape(r.Owner))
	fmt.Fprintf(&b, "*PRs analisados:* %d\n", r.TotalPRs)
	if r.Finished() {
		fmt.Fprintf(&b, "*Duração:* %s\n", Escape(r.Duration().Round(time.Second).String()))
	}

	for _, s := range sections {
		entries := r.Entries(s.cat)
		fmt.Fprintf(&b, "\n%s: %d\n", s.title, len(entries))
		for i, e := range entries {
			if i == maxListed {
				fmt.Fprintf(&b, "_e mais %d %s_\n", len(entries)-maxListed, s.overflow)
				break
			}
			b.WriteString(formatEntry(e))
			b.WriteByte('\n')
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatEntry(e triage.Entry) string {
	ref := Escape(fmt.Sprintf("%s#%d", e.Repo, e.Number))
	line := "• " + ref
	if e.URL != "" {
		line = fmt.Sprintf("• [%s](%s)", ref, escapeURL(e.URL))
	}
	line += " \\- " + Escape(e.Title)
	if e.Reason != "" {
		line += " \\(" + Escape(string(e.Reason)) + "\\)"
	}
	return line
}

// Paginate splits text on line boundaries into chunks of at most limit bytes.
// A single line longer than limit is cut.
func Paginate(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}

	var pages []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			pages = append(pages, strings.TrimRight(cur.String(), "\n"))
			cur.Reset()
		}
	}
	for _, line := range strings.SplitAfter(text, "\n") {
		for len(line) > limit {
			flush()
			cut := safeCut(line, limit)
			pages = append(pages, line[:cut])
			line = line[cut:]
		}
		if cur.Len()+len(line) > limit {
			flush()
		}
		cur.WriteString(line)
	}
	flush()
	return pages
}

// safeCut backs off limit so a multi-byte rune or an escape sequence is not split.
func safeCut(s string, limit int) int {
	cut := limit
	for cut > 0 && cut < len(s) && s[cut]&0xC0 == 0x80 {
		cut--
	}
	if cut > 0 && s[cut-1] == '\\' {
		cut--
	}
	if cut == 0 {
		return limit
	}
	return cut
}
