// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Field is one named value in a Record.
type Field struct {
	Name  string
	Value any
}

// Record is an ordered mapping of named fields to values, decoded from
// one JSON object. Field order is preserved through a decode/encode
// round trip, which plain map-backed JSON decoding does not guarantee.
//
// Scalar values decode as string, json.Number, bool, or nil. Nested
// objects and arrays are kept verbatim as json.RawMessage so their
// internal ordering survives untouched.
type Record struct {
	fields []Field
}

// NewRecord builds a record from fields in the given order.
func NewRecord(fields ...Field) Record {
	return Record{fields: append([]Field(nil), fields...)}
}

// Len returns the number of fields.
func (r Record) Len() int { return len(r.fields) }

// Fields returns the fields in order. The slice is shared; callers must
// not modify it.
func (r Record) Fields() []Field { return r.fields }

// Get returns the value of the named field and whether it exists.
func (r Record) Get(name string) (any, bool) {
	for _, f := range r.fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// String returns the named field's value as a string. The second result
// is false when the field is absent or not string-typed.
func (r Record) String(name string) (string, bool) {
	v, ok := r.Get(name)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// WithField returns a copy of the record with one field appended. The
// receiver is left unchanged.
func (r Record) WithField(name string, value any) Record {
	out := make([]Field, len(r.fields), len(r.fields)+1)
	copy(out, r.fields)
	return Record{fields: append(out, Field{Name: name, Value: value})}
}

// UnmarshalJSON decodes a single JSON object, preserving field order.
func (r *Record) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("decoding record: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("decoding record: expected object, got %v", tok)
	}

	var fields []Field
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("decoding record key: %w", err)
		}
		name := tok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("decoding record field %q: %w", name, err)
		}

		value, err := decodeValue(raw)
		if err != nil {
			return fmt.Errorf("decoding record field %q: %w", name, err)
		}
		fields = append(fields, Field{Name: name, Value: value})
	}

	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("decoding record: %w", err)
	}

	r.fields = fields
	return nil
}

// decodeValue interprets one raw JSON value. Objects and arrays stay
// raw; scalars become their Go representation.
func decodeValue(raw json.RawMessage) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty value")
	}
	switch trimmed[0] {
	case '{', '[':
		return json.RawMessage(trimmed), nil
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// MarshalJSON encodes the record as a JSON object with fields in order.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(f.Name)
		if err != nil {
			return nil, fmt.Errorf("encoding field name %q: %w", f.Name, err)
		}
		buf.Write(name)
		buf.WriteByte(':')

		if raw, ok := f.Value.(json.RawMessage); ok {
			buf.Write(raw)
			continue
		}
		value, err := json.Marshal(f.Value)
		if err != nil {
			return nil, fmt.Errorf("encoding field %q: %w", f.Name, err)
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
