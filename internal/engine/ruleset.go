// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.yaml.in/yaml/v3"
)

const (
	conceptsFile = "concepts.yaml"
	sectionsFile = "sections.yaml"
	contextFile  = "context.yaml"
)

// TriggerType categorizes an assertion trigger rule.
type TriggerType string

const (
	TriggerNegation   TriggerType = "negation"
	TriggerPossible   TriggerType = "possible"
	TriggerFamily     TriggerType = "family"
	TriggerHistorical TriggerType = "historical"
)

// validTriggerTypes is the set of accepted TriggerType values.
var validTriggerTypes = map[TriggerType]bool{
	TriggerNegation:   true,
	TriggerPossible:   true,
	TriggerFamily:     true,
	TriggerHistorical: true,
}

// conceptsDoc mirrors concepts.yaml.
type conceptsDoc struct {
	Concepts []conceptEntry `yaml:"concepts"`
}

type conceptEntry struct {
	// Code is the normalized concept identifier (e.g. a UMLS CUI).
	Code string `yaml:"code"`

	// Terms are literal phrases matched case-insensitively on word
	// boundaries, with whitespace in the phrase matching any run of
	// whitespace in the document.
	Terms []string `yaml:"terms"`

	// Regex is an optional additional pattern for the concept.
	Regex string `yaml:"regex,omitempty"`
}

// sectionsDoc mirrors sections.yaml.
type sectionsDoc struct {
	Sections []sectionEntry `yaml:"sections"`
}

type sectionEntry struct {
	// ID is the section identifier written to output. Normally numeric
	// (SecTag-style), but free-form strings are accepted.
	ID string `yaml:"id"`

	// Headers are the header phrases that open the section, matched
	// against whole lines with an optional trailing colon.
	Headers []string `yaml:"headers"`
}

// contextDoc mirrors context.yaml.
type contextDoc struct {
	Triggers []triggerEntry `yaml:"triggers"`
}

type triggerEntry struct {
	Type  TriggerType `yaml:"type"`
	Terms []string    `yaml:"terms"`
}

// ConceptRule is one compiled concept matcher.
type ConceptRule struct {
	Code     string
	Patterns []*regexp.Regexp
}

// SectionRule is one compiled section header matcher.
type SectionRule struct {
	ID      string
	Pattern *regexp.Regexp
}

// TriggerRule is one compiled assertion trigger matcher.
type TriggerRule struct {
	Type     TriggerType
	Patterns []*regexp.Regexp
}

// Ruleset is a compiled rule bundle. Compilation happens once per
// engine; matching reuses the compiled patterns for every document.
type Ruleset struct {
	Concepts []ConceptRule
	Sections []SectionRule
	Triggers []TriggerRule
}

// LoadRuleset reads and compiles a rule bundle from a directory.
// concepts.yaml is required; sections.yaml and context.yaml are
// optional. Any malformed file is an initialization error.
func LoadRuleset(dir string) (*Ruleset, error) {
	rs := &Ruleset{}

	var concepts conceptsDoc
	if err := readYAML(filepath.Join(dir, conceptsFile), &concepts); err != nil {
		return nil, fmt.Errorf("loading ruleset: %w", err)
	}
	if len(concepts.Concepts) == 0 {
		return nil, fmt.Errorf("loading ruleset: %s defines no concepts", conceptsFile)
	}
	for i, c := range concepts.Concepts {
		rule, err := compileConcept(c)
		if err != nil {
			return nil, fmt.Errorf("loading ruleset: concept %d: %w", i, err)
		}
		rs.Concepts = append(rs.Concepts, rule)
	}

	var sections sectionsDoc
	if err := readOptionalYAML(filepath.Join(dir, sectionsFile), &sections); err != nil {
		return nil, fmt.Errorf("loading ruleset: %w", err)
	}
	for i, s := range sections.Sections {
		rule, err := compileSection(s)
		if err != nil {
			return nil, fmt.Errorf("loading ruleset: section %d: %w", i, err)
		}
		rs.Sections = append(rs.Sections, rule)
	}

	var context contextDoc
	if err := readOptionalYAML(filepath.Join(dir, contextFile), &context); err != nil {
		return nil, fmt.Errorf("loading ruleset: %w", err)
	}
	for i, tr := range context.Triggers {
		rule, err := compileTrigger(tr)
		if err != nil {
			return nil, fmt.Errorf("loading ruleset: trigger %d: %w", i, err)
		}
		rs.Triggers = append(rs.Triggers, rule)
	}

	return rs, nil
}

func compileConcept(c conceptEntry) (ConceptRule, error) {
	if c.Code == "" {
		return ConceptRule{}, fmt.Errorf("empty code")
	}
	if len(c.Terms) == 0 && c.Regex == "" {
		return ConceptRule{}, fmt.Errorf("concept %s has no terms and no regex", c.Code)
	}

	rule := ConceptRule{Code: c.Code}
	for _, term := range c.Terms {
		re, err := compileTerm(term)
		if err != nil {
			return ConceptRule{}, fmt.Errorf("concept %s term %q: %w", c.Code, term, err)
		}
		rule.Patterns = append(rule.Patterns, re)
	}
	if c.Regex != "" {
		re, err := regexp.Compile("(?i)" + c.Regex)
		if err != nil {
			return ConceptRule{}, fmt.Errorf("concept %s regex: %w", c.Code, err)
		}
		rule.Patterns = append(rule.Patterns, re)
	}
	return rule, nil
}

func compileSection(s sectionEntry) (SectionRule, error) {
	if s.ID == "" {
		return SectionRule{}, fmt.Errorf("empty id")
	}
	if len(s.Headers) == 0 {
		return SectionRule{}, fmt.Errorf("section %s has no headers", s.ID)
	}

	alts := make([]string, len(s.Headers))
	for i, h := range s.Headers {
		h = strings.TrimSpace(h)
		if h == "" {
			return SectionRule{}, fmt.Errorf("section %s has an empty header", s.ID)
		}
		alts[i] = phrasePattern(h)
	}
	// A header is a whole line, optionally ending with a colon.
	re, err := regexp.Compile(`(?i)^[ \t]*(?:` + strings.Join(alts, "|") + `)[ \t]*:?[ \t]*$`)
	if err != nil {
		return SectionRule{}, fmt.Errorf("section %s: %w", s.ID, err)
	}
	return SectionRule{ID: s.ID, Pattern: re}, nil
}

func compileTrigger(tr triggerEntry) (TriggerRule, error) {
	if !validTriggerTypes[tr.Type] {
		return TriggerRule{}, fmt.Errorf("invalid trigger type %q", tr.Type)
	}
	if len(tr.Terms) == 0 {
		return TriggerRule{}, fmt.Errorf("trigger %s has no terms", tr.Type)
	}

	rule := TriggerRule{Type: tr.Type}
	for _, term := range tr.Terms {
		re, err := compileTerm(term)
		if err != nil {
			return TriggerRule{}, fmt.Errorf("trigger %s term %q: %w", tr.Type, term, err)
		}
		rule.Patterns = append(rule.Patterns, re)
	}
	return rule, nil
}

// compileTerm turns a literal phrase into a case-insensitive
// word-boundary pattern where phrase whitespace matches any whitespace
// run in the document.
func compileTerm(term string) (*regexp.Regexp, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, fmt.Errorf("empty term")
	}
	return regexp.Compile(`(?i)\b` + phrasePattern(term) + `\b`)
}

// phrasePattern quotes a phrase for embedding in a regular expression.
func phrasePattern(phrase string) string {
	words := strings.Fields(phrase)
	for i, w := range words {
		words[i] = regexp.QuoteMeta(w)
	}
	return strings.Join(words, `\s+`)
}

// readYAML decodes one YAML file into out.
func readYAML(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// readOptionalYAML is readYAML for files that may be absent.
func readOptionalYAML(path string, out any) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return readYAML(path, out)
}
