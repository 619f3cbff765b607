// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"fmt"
	"time"
)

// HTTPConfig holds shared HTTP settings for remote ruleset fetches.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "notetagger/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent"`

	// AuthToken, when set, is sent as a bearer token with remote
	// ruleset fetches.
	AuthToken string `json:"-" yaml:"-"`
}

// EngineConfig holds settings for the annotation engine.
type EngineConfig struct {
	HTTPConfig `yaml:",inline"`

	// Ruleset locates the rule bundle that configures the engine: a
	// directory, a .zip archive, or an http(s) URL to a zip archive.
	// Required.
	Ruleset string `json:"ruleset" yaml:"ruleset"`

	// CacheDir is where archive and remote rulesets are unpacked.
	// Defaults to a notetagger directory under the OS temp directory.
	CacheDir string `json:"cache_dir,omitempty" yaml:"cache_dir,omitempty"`

	// MaxDocBytes caps the document size the engine will analyze.
	// Oversized documents fail analysis for that record only.
	// Zero means the default of 1 MiB.
	MaxDocBytes int `json:"max_doc_bytes" yaml:"max_doc_bytes"`

	// MaxRetries is the number of retry attempts for remote ruleset
	// fetches (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries"`
}

// Validate reports a configuration error if required values are missing.
func (c EngineConfig) Validate() error {
	if c.Ruleset == "" {
		return fmt.Errorf("engine config: ruleset location is required")
	}
	return nil
}

// EnrichmentConfig holds settings for the enrichment stage.
type EnrichmentConfig struct {
	// InputField names the record field holding the text to analyze.
	// Required.
	InputField string `json:"input" yaml:"input"`

	// Workers is the number of parallel workers, each owning an
	// independent engine instance (default 1).
	Workers int `json:"workers" yaml:"workers"`
}

// Validate reports a configuration error if required values are missing.
func (c EnrichmentConfig) Validate() error {
	if c.InputField == "" {
		return fmt.Errorf("enrichment config: input field name is required")
	}
	if c.Workers < 0 {
		return fmt.Errorf("enrichment config: workers must be >= 0, got %d", c.Workers)
	}
	return nil
}

// AnnotationStoreConfig holds settings for the annotation store stage.
type AnnotationStoreConfig struct {
	// AnnotationsDir is the base directory for the store (contains index/).
	AnnotationsDir string `json:"annotations_dir" yaml:"annotations_dir"`

	// MaxResults is the default maximum number of query results (default 20).
	MaxResults int `json:"max_results" yaml:"max_results"`
}

// PipelineConfig groups all stage configurations.
type PipelineConfig struct {
	Engine     EngineConfig          `json:"engine" yaml:"engine"`
	Enrichment EnrichmentConfig      `json:"enrichment" yaml:"enrichment"`
	Store      AnnotationStoreConfig `json:"store" yaml:"store"`
}

// Validate checks every stage configuration.
func (c PipelineConfig) Validate() error {
	if err := c.Engine.Validate(); err != nil {
		return err
	}
	return c.Enrichment.Validate()
}
