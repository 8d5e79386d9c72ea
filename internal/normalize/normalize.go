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

// Package normalize canonicalises email header and body text before it is
// compared against configured alert keywords.
package normalize

import (
	"strings"
	"unicode"
)

// Normalize lowercases s, collapses every whitespace run (newlines, tabs and
// non-breaking spaces included) to a single space and trims the ends.
func Normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Loose is Normalize with punctuation removed: every rune that is not a
// letter, digit or whitespace becomes a space before collapsing. Use it where
// "[GSIT] - Alerta" and "gsit alerta" must compare equal.
func Loose(s string) string {
	lowered := strings.ToLower(s)
	stripped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			return r
		}
		return ' '
	}, lowered)
	return strings.Join(strings.Fields(stripped), " ")
}

// Value normalizes an arbitrary value. Anything that is not a string
// normalizes to the empty string.
func Value(v any) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return Normalize(s)
}
