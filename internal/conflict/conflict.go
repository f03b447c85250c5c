// Package conflict parses git conflict markers and splices resolutions back into file content.
package conflict

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	markerOurs   = "<<<<<<<"
	markerBase   = "|||||||"
	markerSep    = "======="
	markerTheirs = ">>>>>>>"
)

// contextLines is how many lines around a block are captured as context.
const contextLines = 10

var (
	// ErrMalformed reports unpaired or out-of-order conflict markers.
	ErrMalformed = errors.New("malformed conflict markers")
	// ErrMarkersRemain reports a resolution that still contains conflict markers.
	ErrMarkersRemain = errors.New("resolution still contains conflict markers")
	// ErrBinary reports content that is not valid UTF-8 text.
	ErrBinary = errors.New("binary content")
)

// Block is a single conflicted region. Start and End are byte offsets into the
// original content; End includes the newline terminating the closing marker.
type Block struct {
	Start, End int

	OursLabel   string
	TheirsLabel string

	Ours   string
	Base   string
	Theirs string

	// Before and After hold up to contextLines lines of surrounding content.
	Before string
	After  string
}

// Raw returns the block exactly as it appears in content.
func (b Block) Raw(content string) string {
	return content[b.Start:b.End]
}

// Parse splits content into its ordered conflict blocks.
func Parse(content string) ([]Block, error) {
	if !utf8.ValidString(content) {
		return nil, ErrBinary
	}

	lines := strings.SplitAfter(content, "\n")

	var blocks []Block
	offset := 0
	state := 0 // 0 outside, 1 ours, 2 base, 3 theirs
	var cur Block
	var section strings.Builder
	firstLine := 0

	for i, line := range lines {
		bare := strings.TrimRight(line, "\r\n")
		switch {
		case strings.HasPrefix(bare, markerOurs):
			if state != 0 {
				return nil, fmt.Errorf("%w: nested %s at line %d", ErrMalformed, markerOurs, i+1)
			}
			cur = Block{Start: offset, OursLabel: label(bare, markerOurs)}
			firstLine = i
			section.Reset()
			state = 1
		case strings.HasPrefix(bare, markerBase) && state == 1:
			cur.Ours = section.String()
			section.Reset()
			state = 2
		case bare == markerSep && (state == 1 || state == 2):
			if state == 1 {
				cur.Ours = section.String()
			} else {
				cur.Base = section.String()
			}
			section.Reset()
			state = 3
		case strings.HasPrefix(bare, markerTheirs):
			if state != 3 {
				return nil, fmt.Errorf("%w: unexpected %s at line %d", ErrMalformed, markerTheirs, i+1)
			}
			cur.Theirs = section.String()
			cur.TheirsLabel = label(bare, markerTheirs)
			cur.End = offset + len(line)
			cur.Before = strings.Join(lines[max(0, firstLine-contextLines):firstLine], "")
			cur.After = strings.Join(lines[i+1:min(len(lines), i+1+contextLines)], "")
			blocks = append(blocks, cur)
			state = 0
		default:
			if state != 0 {
				section.WriteString(line)
			}
		}
		offset += len(line)
	}

	if state != 0 {
		return nil, fmt.Errorf("%w: unterminated block starting at byte %d", ErrMalformed, cur.Start)
	}
	return blocks, nil
}

func label(line, marker string) string {
	return strings.TrimSpace(strings.TrimPrefix(line, marker))
}

// ContainsMarkers reports whether s contains a conflict start or end marker.
func ContainsMarkers(s string) bool {
	return strings.Contains(s, markerOurs) || strings.Contains(s, markerTheirs)
}

// ResolveFunc returns the replacement text for a single block.
type ResolveFunc func(ctx context.Context, b Block) (string, error)

// Resolve replaces every block in content with the text returned by fn.
// Content outside the blocks is preserved byte for byte. It returns the new
// content and the number of blocks replaced.
func Resolve(ctx context.Context, content string, fn ResolveFunc) (string, int, error) {
	blocks, err := Parse(content)
	if err != nil {
		return "", 0, err
	}

	var out strings.Builder
	prev := 0
	for i, b := range blocks {
		resolved, err := fn(ctx, b)
		if err != nil {
			return "", 0, fmt.Errorf("resolving block %d: %w", i+1, err)
		}
		if ContainsMarkers(resolved) {
			return "", 0, fmt.Errorf("block %d: %w", i+1, ErrMarkersRemain)
		}
		out.WriteString(content[prev:b.Start])
		out.WriteString(Normalize(resolved, strings.HasSuffix(b.Raw(content), "\n")))
		prev = b.End
	}
	out.WriteString(content[prev:])
	return out.String(), len(blocks), nil
}

// Normalize trims trailing whitespace from a resolution and restores the
// trailing newline the replaced block carried.
func Normalize(resolved string, trailingNewline bool) string {
	resolved = strings.TrimRight(resolved, " \t\r\n")
	if trailingNewline && resolved != "" {
		resolved += "\n"
	}
	return resolved
}
