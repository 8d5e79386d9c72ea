// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package fields extracts labelled values ("Recepció: 01/01/2025 09:00:00",
// "Criticitat: ALTA") from monitoring email bodies using a declarative
// schema: each field names its labels, its value kind and, for timestamps,
// the layouts it accepts. Rendering code reads the extracted Values and never
// touches a regular expression.
package fields

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Kind selects how a field's value is matched and typed.
type Kind int

const (
	// Text captures the rest of the line after the label.
	Text Kind = iota
	// Timestamp captures DD/MM/YYYY HH:MM[:SS] and parses it.
	Timestamp
)

// Layouts used when a Timestamp field does not declare its own.
const (
	LayoutSeconds = "02/01/2006 15:04:05"
	LayoutMinutes = "02/01/2006 15:04"
)

// Field declares one labelled value.
type Field struct {
	Name    string
	Labels  []string // alternatives, matched case-insensitively
	Kind    Kind
	Layouts []string // Timestamp only; first layout that parses wins
}

// Value is an extracted field value.
type Value struct {
	Raw  string
	Time time.Time // set for Timestamp fields
}

// Values maps field names to extracted values. Absent fields are missing.
type Values map[string]Value

// Text returns the raw value of a field, or "" when absent.
func (v Values) Text(name string) string {
	return v[name].Raw
}

// Has reports whether a field was found.
func (v Values) Has(name string) bool {
	_, ok := v[name]
	return ok
}

const (
	timestampPattern = `(\d{2}/\d{2}/\d{4}\s+\d{2}:\d{2}(?::\d{2})?)`
	textPattern      = `([^\r\n]+)`
)

type compiledField struct {
	Field
	re *regexp.Regexp
}

// Schema is a compiled, immutable set of fields.
type Schema struct {
	fields []compiledField
}

// Compile builds a Schema. Field names must be unique and every field needs
// at least one label.
func Compile(fields ...Field) (*Schema, error) {
	seen := make(map[string]bool, len(fields))
	s := &Schema{}

	for _, f := range fields {
		if f.Name == "" {
			return nil, fmt.Errorf("field with labels %v has no name", f.Labels)
		}
		if seen[f.Name] {
			return nil, fmt.Errorf("duplicate field %q", f.Name)
		}
		seen[f.Name] = true
		if len(f.Labels) == 0 {
			return nil, fmt.Errorf("field %q has no labels", f.Name)
		}

		quoted := make([]string, len(f.Labels))
		for i, l := range f.Labels {
			quoted[i] = regexp.QuoteMeta(l)
		}

		// Text values stay on the label's line. A timestamp may follow on a
		// later line, as in HTML tables rendered to text.
		value, gap := textPattern, `[ \t]*`
		if f.Kind == Timestamp {
			value, gap = timestampPattern, `\s*`
			if len(f.Layouts) == 0 {
				f.Layouts = []string{LayoutSeconds, LayoutMinutes}
			}
		}

		// The label must not be the tail of a longer word.
		expr := `(?i)(?:^|[^\p{L}\p{N}])(?:` + strings.Join(quoted, "|") + `)\s*:` + gap + value
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("compile field %q: %w", f.Name, err)
		}
		s.fields = append(s.fields, compiledField{Field: f, re: re})
	}

	return s, nil
}

// MustCompile is Compile for package-level schemas.
func MustCompile(fields ...Field) *Schema {
	s, err := Compile(fields...)
	if err != nil {
		panic(err)
	}
	return s
}

// Extract finds every field of the schema in body. For each field the first
// occurrence with a valid value wins; a timestamp that is not a real
// calendar date/time is not a valid value.
func (s *Schema) Extract(body string) Values {
	out := make(Values, len(s.fields))
	for _, f := range s.fields {
		if v, ok := f.find(body); ok {
			out[f.Name] = v
		}
	}
	return out
}

// Lookup extracts a single field by name.
func (s *Schema) Lookup(body, name string) (Value, bool) {
	for _, f := range s.fields {
		if f.Name == name {
			return f.find(body)
		}
	}
	return Value{}, false
}

func (f compiledField) find(body string) (Value, bool) {
	for _, m := range f.re.FindAllStringSubmatch(body, -1) {
		raw := strings.TrimSpace(m[1])
		if f.Kind != Timestamp {
			if raw != "" {
				return Value{Raw: raw}, true
			}
			continue
		}

		// Collapse "01/01/2025   09:00" before parsing.
		raw = strings.Join(strings.Fields(raw), " ")
		for _, layout := range f.Layouts {
			if t, err := time.Parse(layout, raw); err == nil {
				return Value{Raw: raw, Time: t}, true
			}
		}
	}
	return Value{}, false
}
