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

package normalize

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  FOO   Bar\n", "foo bar"},
		{"foo bar", "foo bar"},
		{"", ""},
		{"\t\n  ", ""},
		{"Alerta Activa", "alerta activa"},
		{"ACCES_FRONTAL_EMD", "acces_frontal_emd"},
		{"Recepció:\r\n01/01/2025", "recepció: 01/01/2025"},
	}

	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// TestNormalize_CaseAndWhitespaceInsensitive checks that cosmetic variants
// of the same text collapse to one form.
func TestNormalize_CaseAndWhitespaceInsensitive(t *testing.T) {
	if Normalize("  FOO   Bar\n") != Normalize("foo bar") {
		t.Error("expected case/whitespace variants to normalize equally")
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"  FOO   Bar\n",
		"[GSIT] Alerta Activa - ELS MEUS DOCUMENTS",
		"Ünïcödé\tTEXT here",
		"",
	}
	for _, in := range inputs {
		once := Normalize(in)
		if twice := Normalize(once); twice != once {
			t.Errorf("Normalize not idempotent for %q: %q then %q", in, once, twice)
		}
		looseOnce := Loose(in)
		if looseTwice := Loose(looseOnce); looseTwice != looseOnce {
			t.Errorf("Loose not idempotent for %q: %q then %q", in, looseOnce, looseTwice)
		}
	}
}

func TestLoose(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"[GSIT] - Alerta Activa - ⚠ Alertes", "gsit alerta activa alertes"},
		{"ELS MEUS DOCUMENTS.", "els meus documents"},
		{"01_CARREGA_URL_WEFOSJX26-HTTP-WSDL", "01 carrega url wefosjx26 http wsdl"},
		{"Recepció: 05/03/2024", "recepció 05 03 2024"},
	}

	for _, tt := range tests {
		if got := Loose(tt.in); got != tt.want {
			t.Errorf("Loose(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestValue_NonString(t *testing.T) {
	if got := Value(42); got != "" {
		t.Errorf("Value(42) = %q, want empty", got)
	}
	if got := Value(nil); got != "" {
		t.Errorf("Value(nil) = %q, want empty", got)
	}
	if got := Value(" A  B "); got != "a b" {
		t.Errorf("Value(string) = %q, want %q", got, "a b")
	}
}
