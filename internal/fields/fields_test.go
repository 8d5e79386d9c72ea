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

package fields

import (
	"testing"
	"time"
)

const sampleBody = `[GSIT] Alerta Activa - ELS MEUS DOCUMENTS
Servei: ACCES_FRONTAL_EMD
Criticitat: ALTA
Descripció: El frontal no respon
Inici: 01/01/2025 08:55
Recepció: 01/01/2025 09:00:00
Error: timeout after 30s`

func TestReportSchema_Extract(t *testing.T) {
	v := ReportSchema.Extract(sampleBody)

	if got := v.Text(Service); got != "ACCES_FRONTAL_EMD" {
		t.Errorf("servei = %q", got)
	}
	if got := v.Text(Severity); got != "ALTA" {
		t.Errorf("criticitat = %q", got)
	}
	if got := v.Text(Summary); got != "El frontal no respon" {
		t.Errorf("descripcio = %q", got)
	}
	if got := v.Text(ErrorText); got != "timeout after 30s" {
		t.Errorf("error = %q", got)
	}
	if got := v.Text(Start); got != "01/01/2025 08:55" {
		t.Errorf("inici = %q", got)
	}

	ts := v[Reception].Time
	if ts.IsZero() {
		t.Fatal("expected reception timestamp")
	}
	want := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	if !ts.Equal(want) {
		t.Errorf("reception = %v, want %v", ts, want)
	}

	if v.Has(Recovery) {
		t.Errorf("recuperacio should be absent, got %q", v.Text(Recovery))
	}
}

func TestExtract_InvalidTimestampSkipped(t *testing.T) {
	body := "Recepció: 32/13/2024 10:00:00\nRecepcio: 05/03/2024 14:30:00"
	v, ok := ReportSchema.Lookup(body, Reception)
	if !ok {
		t.Fatal("expected the second, valid occurrence")
	}
	if v.Raw != "05/03/2024 14:30:00" {
		t.Errorf("raw = %q", v.Raw)
	}
}

func TestExtract_LabelNotWordTail(t *testing.T) {
	s := MustCompile(Field{Name: "inici", Labels: []string{"Inici"}, Kind: Timestamp})
	if _, ok := s.Lookup("Reinici: 01/01/2025 09:00", "inici"); ok {
		t.Error("label matched inside a longer word")
	}
	if _, ok := s.Lookup("INICI : 01/01/2025   09:00", "inici"); !ok {
		t.Error("expected case-insensitive label with spacing to match")
	}
}

func TestCompile_Errors(t *testing.T) {
	if _, err := Compile(Field{Name: "", Labels: []string{"x"}}); err == nil {
		t.Error("expected error for unnamed field")
	}
	if _, err := Compile(Field{Name: "a"}); err == nil {
		t.Error("expected error for field without labels")
	}
	if _, err := Compile(Field{Name: "a", Labels: []string{"x"}}, Field{Name: "a", Labels: []string{"y"}}); err == nil {
		t.Error("expected error for duplicate field")
	}
}

func TestLookup_UnknownField(t *testing.T) {
	if _, ok := ReportSchema.Lookup(sampleBody, "nope"); ok {
		t.Error("unknown field should not be found")
	}
}

func TestExtract_TimestampOnFollowingLine(t *testing.T) {
	body := "Descripció:\nInici :\n\n01/01/2025 08:55\nRecepció:\r\n01/01/2025 09:00:00"
	v := ReportSchema.Extract(body)

	if got := v.Text(Start); got != "01/01/2025 08:55" {
		t.Errorf("inici = %q", got)
	}
	if v[Reception].Time.IsZero() {
		t.Error("expected reception timestamp on the following line")
	}
	// A text label with nothing after it on its line has no value.
	if v.Has(Summary) {
		t.Errorf("descripcio = %q, want absent", v.Text(Summary))
	}
}
