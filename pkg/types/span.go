// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// Certainty is the assertion level assigned to a concept mention.
type Certainty string

const (
	CertaintyPositive Certainty = "positive"
	CertaintyNegative Certainty = "negative"
	CertaintyPossible Certainty = "possible"
)

// Experiencer identifies who a concept mention applies to.
type Experiencer string

const (
	ExperiencerPatient Experiencer = "patient"
	ExperiencerFamily  Experiencer = "family"
	ExperiencerOther   Experiencer = "other"
)

// Status is the temporal status of a concept mention.
type Status string

const (
	StatusPresent    Status = "present"
	StatusHistorical Status = "historical"
)

// Span is a half-open interval [Begin, End) over a document's text.
// Offsets are byte positions into the UTF-8 document.
type Span struct {
	Begin int `json:"begin" yaml:"begin"`
	End   int `json:"end" yaml:"end"`
}

// Covers reports whether s fully contains other. Containment is
// non-strict: a span touching s's boundaries still counts as covered.
func (s Span) Covers(other Span) bool {
	return s.Begin <= other.Begin && other.End <= s.End
}

// Text returns the substring of doc covered by the span. A span that
// does not fit inside doc yields the empty string rather than a panic;
// engines are not trusted to emit well-formed offsets.
func (s Span) Text(doc string) string {
	if s.Begin < 0 || s.End > len(doc) || s.Begin > s.End {
		return ""
	}
	return doc[s.Begin:s.End]
}

// Concept is an annotation interval identifying a domain concept
// mention, with the normalized code and assertion attributes the
// engine resolved for it.
type Concept struct {
	Span        `yaml:",inline"`
	Code        string      `json:"code" yaml:"code"`
	Certainty   Certainty   `json:"certainty" yaml:"certainty"`
	Experiencer Experiencer `json:"experiencer" yaml:"experiencer"`
	Status      Status      `json:"status" yaml:"status"`
}

// Section is a structural text region. ID is a string that is normally,
// but not always, parseable as a base-10 integer.
type Section struct {
	Span `yaml:",inline"`
	ID   string `json:"id" yaml:"id"`
}

// Analysis holds the three span collections an engine produces for one
// document. The collections are independent: covering relations between
// them are computed downstream, not by the engine.
type Analysis struct {
	Concepts  []Concept
	Sentences []Span
	Sections  []Section
}
