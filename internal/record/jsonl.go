// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package record streams Records to and from JSON Lines, one object
// per line, preserving field order in both directions.
package record

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/pdiddy/notetagger/pkg/types"
)

// maxLineBytes caps one input line. Clinical notes are large but a
// single record should stay well under this.
const maxLineBytes = 16 << 20

// Reader decodes one Record per non-blank input line.
type Reader struct {
	scanner *bufio.Scanner
	line    int
}

// NewReader wraps r for line-by-line record decoding.
func NewReader(r io.Reader) *Reader {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return &Reader{scanner: s}
}

// Read returns the next record. It reports io.EOF when the input is
// exhausted and a decorated error, including the line number, when a
// line is not a valid JSON object.
func (r *Reader) Read() (types.Record, error) {
	for r.scanner.Scan() {
		r.line++
		line := strings.TrimSpace(r.scanner.Text())
		if line == "" {
			continue
		}
		var rec types.Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return types.Record{}, fmt.Errorf("line %d: %w", r.line, err)
		}
		return rec, nil
	}
	if err := r.scanner.Err(); err != nil {
		return types.Record{}, fmt.Errorf("reading input: %w", err)
	}
	return types.Record{}, io.EOF
}

// Writer encodes one Record per output line.
type Writer struct {
	w *bufio.Writer
}

// NewWriter wraps w for record encoding.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// Write appends one record as a single JSON line.
func (w *Writer) Write(rec types.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}
	if _, err := w.w.Write(data); err != nil {
		return err
	}
	return w.w.WriteByte('\n')
}

// Flush writes any buffered output to the underlying writer.
func (w *Writer) Flush() error {
	return w.w.Flush()
}
