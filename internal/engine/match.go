// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package engine

import (
	"regexp"
	"sort"

	"github.com/pdiddy/notetagger/pkg/types"
)

// appendConcepts appends concept spans found in text to dst, in stable
// document order. A span matched by more than one pattern of the same
// concept is reported once. Attributes start at their defaults; the
// assertion pass adjusts them afterwards.
func appendConcepts(dst []types.Concept, text string, rules []ConceptRule) []types.Concept {
	first := len(dst)
	for _, rule := range rules {
		for _, re := range rule.Patterns {
			for _, m := range re.FindAllStringIndex(text, -1) {
				dst = append(dst, types.Concept{
					Span:        types.Span{Begin: m[0], End: m[1]},
					Code:        rule.Code,
					Certainty:   types.CertaintyPositive,
					Experiencer: types.ExperiencerPatient,
					Status:      types.StatusPresent,
				})
			}
		}
	}

	found := dst[first:]
	sort.SliceStable(found, func(i, j int) bool {
		if found[i].Begin != found[j].Begin {
			return found[i].Begin < found[j].Begin
		}
		if found[i].End != found[j].End {
			return found[i].End < found[j].End
		}
		return found[i].Code < found[j].Code
	})

	return dedupeConcepts(dst, first)
}

// dedupeConcepts removes adjacent duplicates (same span, same code)
// from dst[first:], which must already be sorted.
func dedupeConcepts(dst []types.Concept, first int) []types.Concept {
	out := dst[:first]
	for i := first; i < len(dst); i++ {
		c := dst[i]
		if len(out) > first {
			prev := out[len(out)-1]
			if prev.Span == c.Span && prev.Code == c.Code {
				continue
			}
		}
		out = append(out, c)
	}
	return out
}

// applyContext adjusts each concept's assertion attributes from
// trigger matches that precede the concept within its covering
// sentence. A concept outside every sentence keeps its defaults.
func applyContext(text string, concepts []types.Concept, sentences []types.Span, triggers []TriggerRule) {
	if len(triggers) == 0 {
		return
	}

	for i := range concepts {
		c := &concepts[i]
		sent, ok := enclosingSentence(c.Span, sentences)
		if !ok {
			continue
		}
		scope := text[sent.Begin:c.Begin]

		for _, tr := range triggers {
			if !matchesAny(tr.Patterns, scope) {
				continue
			}
			switch tr.Type {
			case TriggerNegation:
				c.Certainty = types.CertaintyNegative
			case TriggerPossible:
				// Negation wins over possibility.
				if c.Certainty == types.CertaintyPositive {
					c.Certainty = types.CertaintyPossible
				}
			case TriggerFamily:
				c.Experiencer = types.ExperiencerFamily
			case TriggerHistorical:
				c.Status = types.StatusHistorical
			}
		}
	}
}

// enclosingSentence returns the first sentence covering c in document
// order.
func enclosingSentence(c types.Span, sentences []types.Span) (types.Span, bool) {
	for _, s := range sentences {
		if s.Covers(c) {
			return s, true
		}
	}
	return types.Span{}, false
}

func matchesAny(patterns []*regexp.Regexp, s string) bool {
	for _, re := range patterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}
