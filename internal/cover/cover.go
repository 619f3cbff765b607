// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package cover resolves which sentence and section spans contain a
// concept span within one document.
package cover

import (
	"sort"
	"strconv"
	"strings"

	"github.com/pdiddy/notetagger/pkg/types"
)

// Index answers covering queries for one document's sentence and
// section spans. Reference spans are sorted by begin offset at
// construction so lookups can stop scanning once a span starts past
// the concept.
type Index struct {
	sentences []types.Span
	sections  []types.Section
}

// NewIndex builds an index over the given reference spans. The input
// slices are not modified.
func NewIndex(sentences []types.Span, sections []types.Section) *Index {
	ix := &Index{
		sentences: append([]types.Span(nil), sentences...),
		sections:  append([]types.Section(nil), sections...),
	}
	sort.SliceStable(ix.sentences, func(i, j int) bool {
		return ix.sentences[i].Begin < ix.sentences[j].Begin
	})
	sort.SliceStable(ix.sections, func(i, j int) bool {
		return ix.sections[i].Begin < ix.sections[j].Begin
	})
	return ix
}

// Sentences returns every sentence span covering c, in increasing
// begin order. Containment is non-strict at boundaries. The result is
// nil when no sentence covers c.
func (ix *Index) Sentences(c types.Span) []types.Span {
	var covering []types.Span
	for _, s := range ix.sentences {
		if s.Begin > c.Begin {
			break
		}
		if s.Covers(c) {
			covering = append(covering, s)
		}
	}
	return covering
}

// SentenceText joins the covered text of every sentence covering c
// with a single space, in increasing begin order. A concept with no
// covering sentence yields the empty string.
func (ix *Index) SentenceText(doc string, c types.Span) string {
	covering := ix.Sentences(c)
	if len(covering) == 0 {
		return ""
	}
	parts := make([]string, len(covering))
	for i, s := range covering {
		parts[i] = s.Text(doc)
	}
	return strings.Join(parts, " ")
}

// SectionID resolves the concept's section identifier: the first
// covering section in begin order, parsed as a base-10 integer.
// An unparsable identifier resolves to -1; no covering section
// resolves to 0.
func (ix *Index) SectionID(c types.Span) int {
	for _, s := range ix.sections {
		if s.Begin > c.Begin {
			break
		}
		if s.Covers(c) {
			return parseSectionID(s.ID)
		}
	}
	return 0
}

// parseSectionID parses a section identifier as a base-10 integer,
// falling back to -1 for identifiers that are not numeric.
func parseSectionID(id string) int {
	n, err := strconv.Atoi(id)
	if err != nil {
		return -1
	}
	return n
}
