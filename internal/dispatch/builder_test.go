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

package dispatch

import (
	"errors"
	"testing"

	"github.com/gsit/alertas/internal/models"
	"github.com/gsit/alertas/internal/rules"
)

var msg = models.InboundMessage{
	Sender:         "rpinheiro@viewnext.com",
	SubjectRaw:     "=?UTF-8?Q?x?=",
	SubjectDecoded: "[GSIT] Alerta Activa - ELS MEUS DOCUMENTS",
	BodyPlain:      "ACCES_FRONTAL_EMD\nRecepció: 01/01/2025 09:00:00",
}

func TestBuild(t *testing.T) {
	rule := &rules.Rule{Name: "Alerta Acces Frontal", Action: "acces_frontal_emd"}

	event, err := Build(rule, "20250101_090000", models.StateActive, msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if event.Action != rule.Action {
		t.Errorf("action = %q, want %q", event.Action, rule.Action)
	}
	if event.RuleName != "Alerta Acces Frontal" {
		t.Errorf("rule name = %q", event.RuleName)
	}
	if event.AlertID != "20250101_090000" || event.AlertState != models.StateActive {
		t.Errorf("id/state = %q/%q", event.AlertID, event.AlertState)
	}
	if event.Sender != msg.Sender || event.Subject != msg.SubjectDecoded || event.Body != msg.BodyPlain {
		t.Errorf("message fields not carried through: %+v", event)
	}
}

func TestBuild_NoRule(t *testing.T) {
	event, err := Build(nil, "20250101_090000", models.StateActive, msg)
	if !errors.Is(err, ErrNoRuleMatched) {
		t.Errorf("err = %v, want ErrNoRuleMatched", err)
	}
	if event != nil {
		t.Error("expected no event")
	}
}

func TestBuild_MissingID(t *testing.T) {
	rule := &rules.Rule{Name: "r", Action: "a"}
	event, err := Build(rule, "", models.StateActive, msg)
	if !errors.Is(err, ErrMissingAlertID) {
		t.Errorf("err = %v, want ErrMissingAlertID", err)
	}
	if event != nil {
		t.Error("expected no partial event")
	}
}

func TestBuild_NoRuleTakesPrecedence(t *testing.T) {
	_, err := Build(nil, "", models.StateUnknown, msg)
	if !errors.Is(err, ErrNoRuleMatched) {
		t.Errorf("err = %v, want ErrNoRuleMatched", err)
	}
}
