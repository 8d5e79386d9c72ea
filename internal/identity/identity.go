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

// Package identity derives the alert id and alert state of a monitoring
// email. The alert id is the reception timestamp reformatted as
// YYYYMMDD_HHMMSS and correlates one alert occurrence across Jenkins, Slack
// and the ledger.
package identity

import (
	"strings"

	"github.com/gsit/alertas/internal/fields"
	"github.com/gsit/alertas/internal/models"
	"github.com/gsit/alertas/internal/normalize"
)

// IDLayout is the alert id format.
const IDLayout = "20060102_150405"

// Phrases that mark the alert state. They are compared against normalized
// text, so they are stored lowercased with single spaces.
var (
	activeMarkers   = []string{"alerta activa"}
	resolvedMarkers = []string{"alerta resuelta", "alerta resolta"}
)

// ExtractAlertID finds the reception timestamp ("Recepció: DD/MM/YYYY
// HH:MM:SS", accent and case variants accepted) and returns it as
// YYYYMMDD_HHMMSS. It reports false when the label is missing or the value is
// not a valid calendar date and time.
func ExtractAlertID(body string) (string, bool) {
	v, ok := fields.ReportSchema.Lookup(body, fields.Reception)
	if !ok {
		return "", false
	}
	return v.Time.Format(IDLayout), true
}

// ExtractAlertState looks for the active and resolved markers in the
// normalized subject and body. Active is checked first, so a message carrying
// both markers is ACTIVE.
func ExtractAlertState(subject, body string) models.AlertState {
	texts := []string{normalize.Normalize(subject), normalize.Normalize(body)}

	if containsAny(texts, activeMarkers) {
		return models.StateActive
	}
	if containsAny(texts, resolvedMarkers) {
		return models.StateResolved
	}
	return models.StateUnknown
}

func containsAny(texts, markers []string) bool {
	for _, t := range texts {
		for _, m := range markers {
			if strings.Contains(t, m) {
				return true
			}
		}
	}
	return false
}
