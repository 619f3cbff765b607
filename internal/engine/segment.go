// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package engine

import (
	"strings"

	"github.com/pdiddy/notetagger/pkg/types"
)

// abbreviations lists tokens whose trailing period does not end a
// sentence.
var abbreviations = map[string]bool{
	"dr":  true,
	"mr":  true,
	"mrs": true,
	"ms":  true,
	"st":  true,
	"vs":  true,
	"etc": true,
}

// appendSentences appends sentence spans over text to dst. A sentence
// ends at terminal punctuation followed by whitespace, or at a line
// break. Leading and trailing whitespace is excluded from each span.
func appendSentences(dst []types.Span, text string) []types.Span {
	start := -1

	flush := func(end int) {
		for end > start && isSpace(text[end-1]) {
			end--
		}
		if start >= 0 && end > start {
			dst = append(dst, types.Span{Begin: start, End: end})
		}
		start = -1
	}

	for i := 0; i < len(text); i++ {
		b := text[i]
		if start < 0 {
			if !isSpace(b) {
				start = i
			}
			continue
		}
		switch b {
		case '\n':
			flush(i)
		case '.', '!', '?':
			if i+1 < len(text) && !isSpace(text[i+1]) {
				continue
			}
			if b == '.' && abbreviations[lastWord(text[start:i])] {
				continue
			}
			flush(i + 1)
		}
	}
	if start >= 0 {
		flush(len(text))
	}
	return dst
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

// lastWord returns the final whitespace-separated token of s,
// lowercased.
func lastWord(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToLower(fields[len(fields)-1])
}

// appendSections appends section spans over text to dst. A section
// opens at a line matching one of the header rules and extends to the
// next header or the end of the document. Text before the first header
// belongs to no section.
func appendSections(dst []types.Section, text string, rules []SectionRule) []types.Section {
	if len(rules) == 0 {
		return dst
	}

	first := len(dst)
	lineStart := 0
	for lineStart <= len(text) {
		lineEnd := len(text)
		if i := strings.IndexByte(text[lineStart:], '\n'); i >= 0 {
			lineEnd = lineStart + i
		}

		if id, ok := matchHeader(text[lineStart:lineEnd], rules); ok {
			if len(dst) > first {
				dst[len(dst)-1].End = lineStart
			}
			dst = append(dst, types.Section{
				Span: types.Span{Begin: lineStart},
				ID:   id,
			})
		}

		if lineEnd == len(text) {
			break
		}
		lineStart = lineEnd + 1
	}

	if len(dst) > first {
		dst[len(dst)-1].End = len(text)
	}
	return dst
}

// matchHeader returns the section ID for the first rule matching the
// line.
func matchHeader(line string, rules []SectionRule) (string, bool) {
	for _, r := range rules {
		if r.Pattern.MatchString(line) {
			return r.ID, true
		}
	}
	return "", false
}
