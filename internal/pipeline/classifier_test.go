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

package pipeline

import (
	"errors"
	"testing"

	"github.com/gsit/alertas/internal/dispatch"
	"github.com/gsit/alertas/internal/models"
	"github.com/gsit/alertas/internal/rules"
)

func newClassifier(t *testing.T) *Classifier {
	t.Helper()
	m, err := rules.NewMatcher([]rules.Rule{
		{
			Name:           "Alerta Acces Frontal",
			SenderContains: rules.Contains("rpinheiro@viewnext.com"),
			BodyContains:   rules.Contains("ACCES_FRONTAL_EMD"),
			Action:         "acces_frontal_emd",
		},
	})
	if err != nil {
		t.Fatalf("NewMatcher: %v", err)
	}
	return NewClassifier(m)
}

func stagesEqual(a, b []Stage) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// TestClassify_Emitted verifies a matching alert with a reception timestamp
// becomes an event carrying the rule's action.
func TestClassify_Emitted(t *testing.T) {
	c := newClassifier(t)
	msg := models.InboundMessage{
		UID:            7,
		Sender:         "rpinheiro@viewnext.com",
		SubjectDecoded: "[GSIT] Alerta Activa - ELS MEUS DOCUMENTS",
		BodyPlain:      "Servei: ACCES_FRONTAL_EMD\nRecepció: 01/01/2025 09:00:00",
	}

	res := c.Classify(msg)
	if !res.Emitted() {
		t.Fatalf("expected event, got reason %q err %v", res.Reason, res.Err)
	}
	ev := res.Event
	if ev.RuleName != "Alerta Acces Frontal" {
		t.Errorf("rule = %q", ev.RuleName)
	}
	if ev.Action != "acces_frontal_emd" {
		t.Errorf("action = %q, want acces_frontal_emd", ev.Action)
	}
	if ev.AlertState != models.StateActive {
		t.Errorf("state = %q, want ACTIVE", ev.AlertState)
	}
	if ev.AlertID != "20250101_090000" {
		t.Errorf("alert id = %q, want 20250101_090000", ev.AlertID)
	}
	if ev.Subject != msg.SubjectDecoded || ev.Body != msg.BodyPlain || ev.Sender != msg.Sender {
		t.Errorf("event does not carry the message fields: %+v", ev)
	}

	want := []Stage{StageReceived, StageNormalized, StageRuleEvaluated, StageIDExtracted, StageEventEmitted}
	if !stagesEqual(res.Trace, want) {
		t.Errorf("trace = %v, want %v", res.Trace, want)
	}
	if res.Final() != StageEventEmitted {
		t.Errorf("final = %q", res.Final())
	}

	if !res.ShouldMarkSeen(nil) {
		t.Error("dispatched event should be marked seen")
	}
	if res.ShouldMarkSeen(errors.New("jenkins down")) {
		t.Error("failed dispatch should leave message unread")
	}
}

// TestClassify_MissingAlertID verifies a matched alert without a reception
// timestamp is discarded as an error and stays unread.
func TestClassify_MissingAlertID(t *testing.T) {
	c := newClassifier(t)
	res := c.Classify(models.InboundMessage{
		Sender:         "rpinheiro@viewnext.com",
		SubjectDecoded: "[GSIT] Alerta Activa",
		BodyPlain:      "Servei: ACCES_FRONTAL_EMD",
	})

	if res.Emitted() {
		t.Fatal("no event expected without alert id")
	}
	if res.Reason != ReasonMissingAlertID {
		t.Errorf("reason = %q", res.Reason)
	}
	if !errors.Is(res.Err, dispatch.ErrMissingAlertID) {
		t.Errorf("err = %v", res.Err)
	}
	if res.Rule != "Alerta Acces Frontal" {
		t.Errorf("rule = %q", res.Rule)
	}
	want := []Stage{StageReceived, StageNormalized, StageRuleEvaluated, StageIDMissing, StageDiscarded}
	if !stagesEqual(res.Trace, want) {
		t.Errorf("trace = %v, want %v", res.Trace, want)
	}
	if res.ShouldMarkSeen(nil) {
		t.Error("message without alert id must stay unread")
	}
}

// TestClassify_NoRuleMatched verifies unrelated mail is a benign discard
// that is consumed.
func TestClassify_NoRuleMatched(t *testing.T) {
	c := newClassifier(t)
	res := c.Classify(models.InboundMessage{
		Sender:         "newsletter@example.com",
		SubjectDecoded: "[GSIT] Alerta Activa - ELS MEUS DOCUMENTS",
		BodyPlain:      "ACCES_FRONTAL_EMD\nRecepció: 01/01/2025 09:00:00",
	})

	if res.Emitted() {
		t.Fatal("no event expected")
	}
	if res.Reason != ReasonNoRuleMatched {
		t.Errorf("reason = %q", res.Reason)
	}
	if !errors.Is(res.Err, dispatch.ErrNoRuleMatched) {
		t.Errorf("err = %v", res.Err)
	}
	want := []Stage{StageReceived, StageNormalized, StageRuleEvaluated, StageNoRuleMatched, StageDiscarded}
	if !stagesEqual(res.Trace, want) {
		t.Errorf("trace = %v, want %v", res.Trace, want)
	}
	if !res.ShouldMarkSeen(nil) {
		t.Error("unrelated mail should be marked seen")
	}
}

// TestClassify_ResolvedState verifies the resolved keyword in the subject
// flows into the event.
func TestClassify_ResolvedState(t *testing.T) {
	c := newClassifier(t)
	res := c.Classify(models.InboundMessage{
		Sender:         "rpinheiro@viewnext.com",
		SubjectDecoded: "[GSIT] Alerta Resolta - ELS MEUS DOCUMENTS",
		BodyPlain:      "ACCES_FRONTAL_EMD\nRecepcio: 01/01/2025 10:15:00",
	})
	if !res.Emitted() {
		t.Fatalf("expected event, got %v", res.Err)
	}
	if res.Event.AlertState != models.StateResolved {
		t.Errorf("state = %q, want RESOLVED", res.Event.AlertState)
	}
	if res.Event.AlertID != "20250101_101500" {
		t.Errorf("alert id = %q", res.Event.AlertID)
	}
}

func TestResult_FinalEmptyTrace(t *testing.T) {
	if got := (Result{}).Final(); got != StageReceived {
		t.Errorf("Final = %q", got)
	}
}
