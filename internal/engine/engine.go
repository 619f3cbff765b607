// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package engine analyzes free text into concept, sentence, and
// section spans. The default implementation is a rule-based engine
// compiled from a YAML ruleset bundle; any engine satisfying the
// Engine interface can substitute for it, which tests use to supply
// canned spans.
package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/pdiddy/notetagger/pkg/types"
)

// ErrAnalysis marks a per-document analysis failure. Callers skip the
// offending record and continue; the error never aborts a worker.
var ErrAnalysis = errors.New("analysis failed")

// Engine analyzes one document at a time. Implementations own whatever
// working state analysis needs; an Engine value must not be shared
// across workers.
type Engine interface {
	// Analyze processes text as one independent document and returns
	// the spans found in it. Nothing from a previous call may be
	// visible in the result.
	Analyze(ctx context.Context, text string) (types.Analysis, error)

	// Close releases engine resources. Safe to call more than once.
	Close() error
}

const defaultMaxDocBytes = 1 << 20

// document is the engine's reusable working buffer. It is reset, not
// reallocated, between documents.
type document struct {
	text      string
	concepts  []types.Concept
	sentences []types.Span
	sections  []types.Section
}

func (d *document) reset(text string) {
	d.text = text
	d.concepts = d.concepts[:0]
	d.sentences = d.sentences[:0]
	d.sections = d.sections[:0]
}

// RuleEngine matches concepts, sentences, sections, and assertion
// context using rules compiled from a ruleset bundle.
type RuleEngine struct {
	rules       *Ruleset
	maxDocBytes int
	doc         document
	closed      bool
}

// New resolves the ruleset location, compiles the bundle, and
// allocates the engine's working buffer. This is the expensive
// one-time setup: call it once per worker, not once per record. An
// error here is fatal for the worker.
func New(ctx context.Context, cfg types.EngineConfig) (*RuleEngine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dir, err := resolveRuleset(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("initializing engine: %w", err)
	}

	rules, err := LoadRuleset(dir)
	if err != nil {
		return nil, fmt.Errorf("initializing engine: %w", err)
	}

	maxDocBytes := cfg.MaxDocBytes
	if maxDocBytes <= 0 {
		maxDocBytes = defaultMaxDocBytes
	}

	return &RuleEngine{rules: rules, maxDocBytes: maxDocBytes}, nil
}

// Analyze resets the working buffer, sets the document text, and runs
// the pipeline: section detection, sentence segmentation, concept
// matching, assertion context. The returned collections are copies;
// the buffer never leaks into results or across calls.
func (e *RuleEngine) Analyze(ctx context.Context, text string) (types.Analysis, error) {
	if e.closed {
		return types.Analysis{}, fmt.Errorf("%w: engine is closed", ErrAnalysis)
	}
	if err := ctx.Err(); err != nil {
		return types.Analysis{}, err
	}
	if len(text) > e.maxDocBytes {
		return types.Analysis{}, fmt.Errorf("%w: document is %d bytes (limit %d)",
			ErrAnalysis, len(text), e.maxDocBytes)
	}

	d := &e.doc
	d.reset(text)
	d.sections = appendSections(d.sections, text, e.rules.Sections)
	d.sentences = appendSentences(d.sentences, text)
	d.concepts = appendConcepts(d.concepts, text, e.rules.Concepts)
	applyContext(text, d.concepts, d.sentences, e.rules.Triggers)

	return types.Analysis{
		Concepts:  append([]types.Concept(nil), d.concepts...),
		Sentences: append([]types.Span(nil), d.sentences...),
		Sections:  append([]types.Section(nil), d.sections...),
	}, nil
}

// Close releases the compiled rules and working buffer. Idempotent.
func (e *RuleEngine) Close() error {
	e.closed = true
	e.rules = nil
	e.doc = document{}
	return nil
}
