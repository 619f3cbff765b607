// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package store persists enriched annotations in a SQLite index with
// full-text search over matched sentences.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/notetagger/internal/record"
	"github.com/pdiddy/notetagger/pkg/types"
)

const (
	indexDir = "index"
	dbFile   = "annotations.db"
)

// Store manages the annotation SQLite database.
type Store struct {
	db         *sql.DB
	maxResults int
}

// NewStore opens or creates the annotation database at
// annotationsDir/index/annotations.db, creating the schema if it does
// not exist.
func NewStore(cfg types.AnnotationStoreConfig) (*Store, error) {
	dbDir := filepath.Join(cfg.AnnotationsDir, indexDir)
	if err := os.MkdirAll(dbDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}

	dbPath := filepath.Join(dbDir, dbFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 20
	}

	s := &Store{db: db, maxResults: maxResults}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS annotations (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			record_id TEXT,
			matched_text TEXT NOT NULL,
			concept_code TEXT NOT NULL,
			matched_sentence TEXT,
			section_id INTEGER,
			nlp_run_dtm TEXT,
			certainty TEXT,
			experiencer TEXT,
			status TEXT,
			begin_offset INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_annotations_code ON annotations(concept_code)`,
		`CREATE INDEX IF NOT EXISTS idx_annotations_record ON annotations(record_id)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}

	// FTS5 virtual table with triggers for sync.
	var ftsExists int
	if err := s.db.QueryRow(
		`SELECT count(*) FROM sqlite_master WHERE type='table' AND name='annotations_fts'`,
	).Scan(&ftsExists); err != nil {
		return fmt.Errorf("checking FTS table: %w", err)
	}

	if ftsExists == 0 {
		ftsStatements := []string{
			`CREATE VIRTUAL TABLE annotations_fts USING fts5(matched_sentence, content=annotations, content_rowid=rowid)`,
			`CREATE TRIGGER annotations_ai AFTER INSERT ON annotations BEGIN
				INSERT INTO annotations_fts(rowid, matched_sentence) VALUES (new.rowid, new.matched_sentence);
			END`,
			`CREATE TRIGGER annotations_ad AFTER DELETE ON annotations BEGIN
				INSERT INTO annotations_fts(annotations_fts, rowid, matched_sentence) VALUES('delete', old.rowid, old.matched_sentence);
			END`,
		}
		for _, stmt := range ftsStatements {
			if _, err := s.db.Exec(stmt); err != nil {
				return fmt.Errorf("creating FTS infrastructure: %w", err)
			}
		}
	}

	return nil
}

// IngestSummary holds counts from one ingest run.
type IngestSummary struct {
	Ingested int
	Failed   int
}

// Total returns the number of output records processed.
func (s IngestSummary) Total() int {
	return s.Ingested + s.Failed
}

// HasFailures reports whether any records failed.
func (s IngestSummary) HasFailures() bool {
	return s.Failed > 0
}

// Ingest reads enriched JSONL records from r and inserts one row per
// record. Records without a payload field, or with a malformed
// payload, are counted as failed and reported to w; ingestion
// continues.
func (s *Store) Ingest(ctx context.Context, r io.Reader, w io.Writer) (IngestSummary, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return IngestSummary{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO annotations
			(record_id, matched_text, concept_code, matched_sentence,
			 section_id, nlp_run_dtm, certainty, experiencer, status, begin_offset)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return IngestSummary{}, fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	var summary IngestSummary
	reader := record.NewReader(r)
	line := 0
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return summary, err
		}
		line++

		payload, ok := rec.String(types.OutputField)
		if !ok {
			fmt.Fprintf(w, "failed  record %d: no %s field\n", line, types.OutputField)
			summary.Failed++
			continue
		}

		var ann types.Annotation
		if err := json.Unmarshal([]byte(payload), &ann); err != nil {
			fmt.Fprintf(w, "failed  record %d: parse error: %v\n", line, err)
			summary.Failed++
			continue
		}

		if _, err := stmt.ExecContext(ctx,
			recordIdentity(rec), ann.MatchedText, ann.ConceptCode, ann.MatchedSentence,
			ann.SectionID, ann.NLPRunDTM, string(ann.Certainty), string(ann.Experiencer),
			string(ann.Status), ann.Offset,
		); err != nil {
			return summary, fmt.Errorf("inserting annotation %d: %w", line, err)
		}
		summary.Ingested++
	}

	if err := tx.Commit(); err != nil {
		return summary, fmt.Errorf("committing: %w", err)
	}

	fmt.Fprintf(w, "\ningested: %d, failed: %d\n", summary.Ingested, summary.Failed)
	return summary, nil
}

// idFields are tried in order when extracting a record's identity.
var idFields = []string{"id", "record_id", "note_id"}

func recordIdentity(rec types.Record) string {
	for _, name := range idFields {
		if v, ok := rec.Get(name); ok {
			return fmt.Sprintf("%v", v)
		}
	}
	return ""
}

// QueryOptions holds parameters for annotation queries.
type QueryOptions struct {
	// Query is the FTS5 full-text search string over matched sentences.
	Query string

	// Code filters by concept code.
	Code string

	// Certainty filters by certainty value.
	Certainty types.Certainty

	// RecordID filters by source record identity.
	RecordID string

	// MaxResults limits result count. Zero uses the store default.
	MaxResults int
}

// IsEmpty reports whether the query has no search terms or filters.
func (q QueryOptions) IsEmpty() bool {
	return q.Query == "" && q.Code == "" && q.Certainty == "" && q.RecordID == ""
}

// QueryResult is one stored annotation with its source record identity.
type QueryResult struct {
	RecordID         string `json:"record_id" yaml:"record_id"`
	types.Annotation `yaml:",inline"`
}

// Retrieve queries the store with optional full-text search and
// structured filters. Full-text queries rank by relevance; structured
// queries sort by record identity and offset.
func (s *Store) Retrieve(ctx context.Context, opts QueryOptions) ([]QueryResult, error) {
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = s.maxResults
	}

	var (
		qb     strings.Builder
		args   []any
		useFTS = opts.Query != ""
	)

	if useFTS {
		qb.WriteString(
			`SELECT a.record_id, a.matched_text, a.concept_code, a.matched_sentence,
				a.section_id, a.nlp_run_dtm, a.certainty, a.experiencer, a.status, a.begin_offset
			FROM annotations_fts
			JOIN annotations a ON a.rowid = annotations_fts.rowid
			WHERE annotations_fts MATCH ?`)
		args = append(args, opts.Query)
	} else {
		qb.WriteString(
			`SELECT a.record_id, a.matched_text, a.concept_code, a.matched_sentence,
				a.section_id, a.nlp_run_dtm, a.certainty, a.experiencer, a.status, a.begin_offset
			FROM annotations a
			WHERE 1=1`)
	}

	if opts.Code != "" {
		qb.WriteString(` AND a.concept_code = ?`)
		args = append(args, opts.Code)
	}
	if opts.Certainty != "" {
		qb.WriteString(` AND a.certainty = ?`)
		args = append(args, string(opts.Certainty))
	}
	if opts.RecordID != "" {
		qb.WriteString(` AND a.record_id = ?`)
		args = append(args, opts.RecordID)
	}

	if useFTS {
		qb.WriteString(` ORDER BY annotations_fts.rank`)
	} else {
		qb.WriteString(` ORDER BY a.record_id, a.begin_offset`)
	}

	qb.WriteString(` LIMIT ?`)
	args = append(args, maxResults)

	rows, err := s.db.QueryContext(ctx, qb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("querying annotations: %w", err)
	}
	defer rows.Close()

	var results []QueryResult
	for rows.Next() {
		var (
			qr          QueryResult
			certainty   string
			experiencer string
			status      string
		)
		if err := rows.Scan(
			&qr.RecordID, &qr.MatchedText, &qr.ConceptCode, &qr.MatchedSentence,
			&qr.SectionID, &qr.NLPRunDTM, &certainty, &experiencer, &status, &qr.Offset,
		); err != nil {
			return nil, fmt.Errorf("scanning annotation row: %w", err)
		}
		qr.Certainty = types.Certainty(certainty)
		qr.Experiencer = types.Experiencer(experiencer)
		qr.Status = types.Status(status)
		results = append(results, qr)
	}
	return results, rows.Err()
}

// Export writes the matching annotations to w in the requested format:
// "yaml" or "json".
func (s *Store) Export(ctx context.Context, w io.Writer, format string, opts QueryOptions) error {
	if opts.MaxResults <= 0 {
		opts.MaxResults = 1 << 30 // export everything by default
	}
	results, err := s.Retrieve(ctx, opts)
	if err != nil {
		return err
	}

	switch format {
	case "yaml", "":
		data, err := yaml.Marshal(results)
		if err != nil {
			return fmt.Errorf("marshaling export: %w", err)
		}
		_, err = w.Write(data)
		return err
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	default:
		return fmt.Errorf("unsupported format %q: use yaml or json", format)
	}
}
