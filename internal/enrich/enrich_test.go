// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/pdiddy/notetagger/internal/engine"
	"github.com/pdiddy/notetagger/pkg/types"
)

// fakeEngine returns canned analyses keyed by document text.
type fakeEngine struct {
	analyses map[string]types.Analysis
	failOn   string // document text that triggers an analysis error
	closes   int
}

func (f *fakeEngine) Analyze(_ context.Context, text string) (types.Analysis, error) {
	if f.failOn != "" && text == f.failOn {
		return types.Analysis{}, fmt.Errorf("%w: internal engine fault", engine.ErrAnalysis)
	}
	return f.analyses[text], nil
}

func (f *fakeEngine) Close() error {
	f.closes++
	return nil
}

func span(begin, end int) types.Span {
	return types.Span{Begin: begin, End: end}
}

// pinnedNow fixes the serialization clock for the duration of a test.
func pinnedNow(t *testing.T, fixed time.Time) {
	t.Helper()
	old := now
	now = func() time.Time { return fixed }
	t.Cleanup(func() { now = old })
}

func decodePayload(t *testing.T, rec types.Record) types.Annotation {
	t.Helper()
	raw, ok := rec.String(types.OutputField)
	if !ok {
		t.Fatalf("output record has no %s field: %+v", types.OutputField, rec)
	}
	var ann types.Annotation
	if err := json.Unmarshal([]byte(raw), &ann); err != nil {
		t.Fatal(err)
	}
	return ann
}

func collectOutputs(t *testing.T, e *Enricher, rec types.Record) []types.Record {
	t.Helper()
	var outs []types.Record
	_, err := e.EnrichRecord(context.Background(), rec, func(out types.Record) error {
		outs = append(outs, out)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return outs
}

func TestEnrichRecordOutOfRangeSpans(t *testing.T) {
	// An engine is not trusted to emit well-formed offsets: spans past
	// the document's end must degrade to empty text, not panic.
	doc := "short note"
	eng := &fakeEngine{analyses: map[string]types.Analysis{
		doc: {
			Concepts:  []types.Concept{{Span: span(4, 500), Code: "C1"}},
			Sentences: []types.Span{span(0, 500)},
		},
	}}
	rec := types.NewRecord(types.Field{Name: "note_text", Value: doc})

	outs := collectOutputs(t, New(eng, "note_text"), rec)
	if len(outs) != 1 {
		t.Fatalf("got %d output records, want 1", len(outs))
	}
	ann := decodePayload(t, outs[0])
	if ann.MatchedText != "" {
		t.Errorf("matched_text = %q, want empty for an out-of-range span", ann.MatchedText)
	}
	if ann.MatchedSentence != "" {
		t.Errorf("matched_sentence = %q, want empty for an out-of-range sentence", ann.MatchedSentence)
	}
	if ann.Offset != 4 {
		t.Errorf("offset = %d, want 4", ann.Offset)
	}
}

func TestEnrichRecordScenarioDeniedConcept(t *testing.T) {
	pinnedNow(t, time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC))

	doc := "Patient denies chest pain."
	eng := &fakeEngine{analyses: map[string]types.Analysis{
		doc: {
			Concepts: []types.Concept{{
				Span:        span(15, 25),
				Code:        "C0008031",
				Certainty:   types.CertaintyNegative,
				Experiencer: types.ExperiencerPatient,
				Status:      types.StatusHistorical,
			}},
			Sentences: []types.Span{span(0, 26)},
		},
	}}

	rec := types.NewRecord(
		types.Field{Name: "id", Value: "n-1"},
		types.Field{Name: "note_text", Value: doc},
	)

	outs := collectOutputs(t, New(eng, "note_text"), rec)
	if len(outs) != 1 {
		t.Fatalf("got %d output records, want 1", len(outs))
	}

	ann := decodePayload(t, outs[0])
	if ann.MatchedText != "chest pain" {
		t.Errorf("matched_text = %q, want %q", ann.MatchedText, "chest pain")
	}
	if ann.MatchedSentence != "Patient denies chest pain." {
		t.Errorf("matched_sentence = %q", ann.MatchedSentence)
	}
	if ann.SectionID != 0 {
		t.Errorf("section_id = %d, want 0", ann.SectionID)
	}
	if ann.ConceptCode != "C0008031" {
		t.Errorf("concept_code = %q", ann.ConceptCode)
	}
	if ann.Certainty != types.CertaintyNegative {
		t.Errorf("certainty = %s, want negative", ann.Certainty)
	}
	if ann.Experiencer != types.ExperiencerPatient {
		t.Errorf("experiencer = %s, want patient", ann.Experiencer)
	}
	if ann.Status != types.StatusHistorical {
		t.Errorf("status = %s, want historical", ann.Status)
	}
	if ann.Offset != 15 {
		t.Errorf("offset = %d, want 15", ann.Offset)
	}
	if got := doc[ann.Offset : ann.Offset+len(ann.MatchedText)]; got != ann.MatchedText {
		t.Errorf("offset round trip: doc slice %q != matched_text %q", got, ann.MatchedText)
	}
	if ann.NLPRunDTM != "2026-03-14T09:26:53Z" {
		t.Errorf("nlp_run_dtm = %q", ann.NLPRunDTM)
	}
}

func TestEnrichRecordZeroConceptsEmitsNothing(t *testing.T) {
	doc := "No findings."
	eng := &fakeEngine{analyses: map[string]types.Analysis{
		doc: {Sentences: []types.Span{span(0, 12)}},
	}}
	rec := types.NewRecord(types.Field{Name: "note_text", Value: doc})

	outs := collectOutputs(t, New(eng, "note_text"), rec)
	if len(outs) != 0 {
		t.Fatalf("got %d output records, want 0", len(outs))
	}
}

func TestEnrichRecordNoCoveringSentence(t *testing.T) {
	doc := "orphan concept text"
	eng := &fakeEngine{analyses: map[string]types.Analysis{
		doc: {
			Concepts: []types.Concept{{Span: span(0, 6), Code: "C1"}},
			// Sentence does not cover the concept.
			Sentences: []types.Span{span(7, 19)},
		},
	}}
	rec := types.NewRecord(types.Field{Name: "note_text", Value: doc})

	outs := collectOutputs(t, New(eng, "note_text"), rec)
	if len(outs) != 1 {
		t.Fatalf("got %d output records, want 1", len(outs))
	}
	if ann := decodePayload(t, outs[0]); ann.MatchedSentence != "" {
		t.Errorf("matched_sentence = %q, want empty", ann.MatchedSentence)
	}
}

func TestEnrichRecordSectionFallbacks(t *testing.T) {
	doc := "text with a concept inside"
	tests := []struct {
		name     string
		sections []types.Section
		want     int
	}{
		{"numeric section", []types.Section{{Span: span(0, 26), ID: "20113"}}, 20113},
		{"non-numeric section", []types.Section{{Span: span(0, 26), ID: "plan"}}, -1},
		{"no covering section", []types.Section{{Span: span(20, 26), ID: "1"}}, 0},
		{"no sections", nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := &fakeEngine{analyses: map[string]types.Analysis{
				doc: {
					Concepts:  []types.Concept{{Span: span(12, 19), Code: "C1"}},
					Sentences: []types.Span{span(0, 26)},
					Sections:  tt.sections,
				},
			}}
			rec := types.NewRecord(types.Field{Name: "note_text", Value: doc})
			outs := collectOutputs(t, New(eng, "note_text"), rec)
			if len(outs) != 1 {
				t.Fatalf("got %d outputs, want 1", len(outs))
			}
			if ann := decodePayload(t, outs[0]); ann.SectionID != tt.want {
				t.Errorf("section_id = %d, want %d", ann.SectionID, tt.want)
			}
		})
	}
}

func TestEnrichRecordPreservesInputFields(t *testing.T) {
	doc := "chest pain noted"
	eng := &fakeEngine{analyses: map[string]types.Analysis{
		doc: {
			Concepts:  []types.Concept{{Span: span(0, 10), Code: "C1"}},
			Sentences: []types.Span{span(0, 16)},
		},
	}}
	rec := types.NewRecord(
		types.Field{Name: "zulu", Value: "z"},
		types.Field{Name: "id", Value: "n-9"},
		types.Field{Name: "note_text", Value: doc},
		types.Field{Name: "age", Value: json.Number("72")},
	)

	outs := collectOutputs(t, New(eng, "note_text"), rec)
	if len(outs) != 1 {
		t.Fatalf("got %d outputs, want 1", len(outs))
	}

	out := outs[0]
	if out.Len() != rec.Len()+1 {
		t.Fatalf("output has %d fields, want %d", out.Len(), rec.Len()+1)
	}
	for i, f := range rec.Fields() {
		got := out.Fields()[i]
		if got.Name != f.Name {
			t.Errorf("field %d name = %q, want %q", i, got.Name, f.Name)
		}
		if got.Value != f.Value {
			t.Errorf("field %d value = %v, want %v", i, got.Value, f.Value)
		}
	}
	if last := out.Fields()[out.Len()-1]; last.Name != types.OutputField {
		t.Errorf("appended field = %q, want %q", last.Name, types.OutputField)
	}

	// The input record itself is untouched.
	if rec.Len() != 4 {
		t.Errorf("input record mutated: %d fields", rec.Len())
	}
}

func TestEnrichRecordMultipleConceptsInEngineOrder(t *testing.T) {
	doc := "chest pain and diabetes"
	eng := &fakeEngine{analyses: map[string]types.Analysis{
		doc: {
			Concepts: []types.Concept{
				{Span: span(0, 10), Code: "C0008031"},
				{Span: span(15, 23), Code: "C0011849"},
			},
			Sentences: []types.Span{span(0, 23)},
		},
	}}
	rec := types.NewRecord(types.Field{Name: "note_text", Value: doc})

	outs := collectOutputs(t, New(eng, "note_text"), rec)
	if len(outs) != 2 {
		t.Fatalf("got %d outputs, want 2", len(outs))
	}
	if a := decodePayload(t, outs[0]); a.ConceptCode != "C0008031" {
		t.Errorf("first output code = %q", a.ConceptCode)
	}
	if a := decodePayload(t, outs[1]); a.ConceptCode != "C0011849" {
		t.Errorf("second output code = %q", a.ConceptCode)
	}
}

func TestEnrichRecordMissingField(t *testing.T) {
	eng := &fakeEngine{}
	rec := types.NewRecord(types.Field{Name: "other", Value: "x"})

	n, err := New(eng, "note_text").EnrichRecord(context.Background(), rec, func(types.Record) error {
		t.Fatal("emit should not be called")
		return nil
	})
	if !errors.Is(err, ErrMissingField) {
		t.Fatalf("got %v, want ErrMissingField", err)
	}
	if n != 0 {
		t.Errorf("emitted %d records, want 0", n)
	}
}

func TestEnrichRecordNonStringField(t *testing.T) {
	eng := &fakeEngine{}
	rec := types.NewRecord(types.Field{Name: "note_text", Value: json.Number("42")})

	_, err := New(eng, "note_text").EnrichRecord(context.Background(), rec, nil)
	if !errors.Is(err, ErrMissingField) {
		t.Fatalf("got %v, want ErrMissingField", err)
	}
}

func TestEnrichRecordAnalysisErrorPropagates(t *testing.T) {
	doc := "broken document"
	eng := &fakeEngine{failOn: doc}
	rec := types.NewRecord(types.Field{Name: "note_text", Value: doc})

	n, err := New(eng, "note_text").EnrichRecord(context.Background(), rec, func(types.Record) error {
		t.Fatal("emit should not be called")
		return nil
	})
	if !errors.Is(err, engine.ErrAnalysis) {
		t.Fatalf("got %v, want engine.ErrAnalysis", err)
	}
	if n != 0 {
		t.Errorf("emitted %d records, want 0", n)
	}
}

func TestEnrichRecordIdempotent(t *testing.T) {
	pinnedNow(t, time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC))

	doc := "chest pain noted"
	eng := &fakeEngine{analyses: map[string]types.Analysis{
		doc: {
			Concepts:  []types.Concept{{Span: span(0, 10), Code: "C1"}},
			Sentences: []types.Span{span(0, 16)},
		},
	}}
	rec := types.NewRecord(types.Field{Name: "note_text", Value: doc})
	enricher := New(eng, "note_text")

	first := collectOutputs(t, enricher, rec)
	second := collectOutputs(t, enricher, rec)

	a, err := json.Marshal(first)
	if err != nil {
		t.Fatal(err)
	}
	b, err := json.Marshal(second)
	if err != nil {
		t.Fatal(err)
	}
	if string(a) != string(b) {
		t.Errorf("repeated enrichment differs:\n%s\n%s", a, b)
	}
}

func TestTimestampFormatParses(t *testing.T) {
	doc := "chest pain"
	eng := &fakeEngine{analyses: map[string]types.Analysis{
		doc: {
			Concepts:  []types.Concept{{Span: span(0, 10), Code: "C1"}},
			Sentences: []types.Span{span(0, 10)},
		},
	}}
	rec := types.NewRecord(types.Field{Name: "note_text", Value: doc})

	outs := collectOutputs(t, New(eng, "note_text"), rec)
	ann := decodePayload(t, outs[0])
	if _, err := time.Parse(types.RunTimestampLayout, ann.NLPRunDTM); err != nil {
		t.Errorf("nlp_run_dtm %q does not match layout: %v", ann.NLPRunDTM, err)
	}
}
