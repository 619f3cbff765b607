// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// OutputField is the name of the single field appended to each enriched
// output record. Its value is an Annotation serialized as JSON.
const OutputField = "nlp_output_json"

// RunTimestampLayout is the wall-clock format written to nlp_run_dtm:
// ISO-8601 seconds precision with an explicit UTC offset.
const RunTimestampLayout = "2006-01-02T15:04:05Z07:00"

// Annotation is the enrichment payload produced for one concept mention.
// The key set and value types are a compatibility contract with
// downstream consumers; do not rename or reorder.
type Annotation struct {
	// MatchedText is the document substring covered by the concept span.
	MatchedText string `json:"matched_text" yaml:"matched_text"`

	// ConceptCode is the normalized concept identifier from the engine.
	ConceptCode string `json:"concept_code" yaml:"concept_code"`

	// MatchedSentence is the covered text of all covering sentence
	// spans joined by a single space. Empty when no sentence covers
	// the concept.
	MatchedSentence string `json:"matched_sentence" yaml:"matched_sentence"`

	// SectionID is the first covering section's identifier parsed as a
	// base-10 integer: -1 when the identifier is unparsable, 0 when no
	// section covers the concept.
	SectionID int `json:"section_id" yaml:"section_id"`

	// NLPRunDTM is the wall-clock time of serialization in
	// RunTimestampLayout format. Not reproducible between runs.
	NLPRunDTM string `json:"nlp_run_dtm" yaml:"nlp_run_dtm"`

	Certainty   Certainty   `json:"certainty" yaml:"certainty"`
	Experiencer Experiencer `json:"experiencer" yaml:"experiencer"`
	Status      Status      `json:"status" yaml:"status"`

	// Offset is the concept span's begin position in the document.
	Offset int `json:"offset" yaml:"offset"`
}
