// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package enrich turns input records into enriched output records: one
// output per concept annotation discovered in the record's text, the
// input fields preserved in order plus one appended payload field.
package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pdiddy/notetagger/internal/cover"
	"github.com/pdiddy/notetagger/internal/engine"
	"github.com/pdiddy/notetagger/pkg/types"
)

// ErrMissingField marks a record whose configured text field is absent
// or not string-typed. This is a configuration-level fault; the worker
// aborts rather than continuing with records it cannot read.
var ErrMissingField = errors.New("text field missing")

// now returns the serialization wall-clock time. Tests override it to
// pin nlp_run_dtm.
var now = time.Now

// Enricher processes one record at a time against a single engine
// instance. No state persists between records beyond the engine.
type Enricher struct {
	engine engine.Engine
	field  string
}

// New builds an enricher around one engine handle. The caller retains
// ownership of the engine and closes it when the worker is done.
func New(eng engine.Engine, inputField string) *Enricher {
	return &Enricher{engine: eng, field: inputField}
}

// EnrichRecord analyzes the record's text field and calls emit once
// per concept, in engine report order. It returns the number of
// records emitted. Analysis failures are returned wrapped around
// engine.ErrAnalysis so the caller can skip the record and continue;
// every other error is fatal for the worker.
func (e *Enricher) EnrichRecord(ctx context.Context, rec types.Record, emit func(types.Record) error) (int, error) {
	text, ok := rec.String(e.field)
	if !ok {
		return 0, fmt.Errorf("%w: field %q", ErrMissingField, e.field)
	}

	an, err := e.engine.Analyze(ctx, text)
	if err != nil {
		return 0, err
	}

	ix := cover.NewIndex(an.Sentences, an.Sections)

	emitted := 0
	for _, cm := range an.Concepts {
		out, err := buildOutput(rec, text, cm, ix)
		if err != nil {
			return emitted, err
		}
		if err := emit(out); err != nil {
			return emitted, err
		}
		emitted++
	}
	return emitted, nil
}

// buildOutput serializes one annotation and appends it to the input
// record as the nlp_output_json field. The input record is not
// modified.
func buildOutput(rec types.Record, doc string, cm types.Concept, ix *cover.Index) (types.Record, error) {
	ann := types.Annotation{
		MatchedText:     cm.Text(doc),
		ConceptCode:     cm.Code,
		MatchedSentence: ix.SentenceText(doc, cm.Span),
		SectionID:       ix.SectionID(cm.Span),
		NLPRunDTM:       now().Format(types.RunTimestampLayout),
		Certainty:       cm.Certainty,
		Experiencer:     cm.Experiencer,
		Status:          cm.Status,
		Offset:          cm.Begin,
	}

	payload, err := json.Marshal(ann)
	if err != nil {
		return types.Record{}, fmt.Errorf("encoding annotation: %w", err)
	}
	return rec.WithField(types.OutputField, string(payload)), nil
}
