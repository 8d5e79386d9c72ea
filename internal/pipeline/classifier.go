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

// Package pipeline runs one inbound message through the classification
// state machine:
//
//	RECEIVED → NORMALIZED → RULE_EVALUATED → ID_EXTRACTED → EVENT_EMITTED
//	                                       → ID_MISSING → DISCARDED (error)
//	                      → NO_RULE_MATCHED → DISCARDED (benign)
//
// Messages are independent; the Classifier holds only the immutable rule set.
package pipeline

import (
	"errors"
	"log/slog"

	"github.com/gsit/alertas/internal/dispatch"
	"github.com/gsit/alertas/internal/identity"
	"github.com/gsit/alertas/internal/models"
	"github.com/gsit/alertas/internal/rules"
)

// Stage is a state of the per-message state machine.
type Stage string

const (
	StageReceived      Stage = "RECEIVED"
	StageNormalized    Stage = "NORMALIZED"
	StageRuleEvaluated Stage = "RULE_EVALUATED"
	StageIDExtracted   Stage = "ID_EXTRACTED"
	StageIDMissing     Stage = "ID_MISSING"
	StageNoRuleMatched Stage = "NO_RULE_MATCHED"
	StageEventEmitted  Stage = "EVENT_EMITTED"
	StageDiscarded     Stage = "DISCARDED"
)

// Reason explains a discard.
type Reason string

const (
	ReasonNone           Reason = ""
	ReasonNoRuleMatched  Reason = "no_rule_matched"
	ReasonMissingAlertID Reason = "missing_alert_id"
)

// Result is the outcome of classifying one message.
type Result struct {
	Message models.InboundMessage
	Event   *models.AlertEvent // nil unless emitted
	Rule    string             // matched rule name, "" if none
	Trace   []Stage
	Reason  Reason
	Err     error // dispatch.ErrNoRuleMatched or dispatch.ErrMissingAlertID
}

// Final returns the terminal stage.
func (r Result) Final() Stage {
	if len(r.Trace) == 0 {
		return StageReceived
	}
	return r.Trace[len(r.Trace)-1]
}

// Emitted reports whether an AlertEvent was produced.
func (r Result) Emitted() bool { return r.Event != nil }

// ShouldMarkSeen applies the read-marking policy: a message is consumed only
// after a terminal, non-retryable outcome. That is an emitted event whose
// dispatch succeeded, or mail no rule applies to. A matched message without
// an alert id, or whose dispatch failed, stays unread for re-delivery.
func (r Result) ShouldMarkSeen(dispatchErr error) bool {
	switch {
	case r.Emitted():
		return dispatchErr == nil
	case r.Reason == ReasonNoRuleMatched:
		return true
	default:
		return false
	}
}

// Classifier turns inbound messages into alert events.
type Classifier struct {
	matcher *rules.Matcher
}

// NewClassifier creates a classifier over a validated rule set.
func NewClassifier(matcher *rules.Matcher) *Classifier {
	return &Classifier{matcher: matcher}
}

// Classify runs msg through the state machine. It never panics on message
// content and never returns a partial event.
func (c *Classifier) Classify(msg models.InboundMessage) Result {
	res := Result{Message: msg, Trace: []Stage{StageReceived, StageNormalized}}

	rule, matched := c.matcher.Match(msg.Sender, msg.SubjectDecoded, msg.BodyPlain)
	res.Trace = append(res.Trace, StageRuleEvaluated)

	var rulePtr *rules.Rule
	var alertID string
	state := models.StateUnknown
	if matched {
		rulePtr = &rule
		res.Rule = rule.Name
		state = identity.ExtractAlertState(msg.SubjectDecoded, msg.BodyPlain)
		if id, ok := identity.ExtractAlertID(msg.BodyPlain); ok {
			alertID = id
		}
	}

	event, err := dispatch.Build(rulePtr, alertID, state, msg)
	switch {
	case errors.Is(err, dispatch.ErrNoRuleMatched):
		res.Trace = append(res.Trace, StageNoRuleMatched, StageDiscarded)
		res.Reason = ReasonNoRuleMatched
		res.Err = err
		slog.Info("message ignored: no rule matched",
			"uid", msg.UID,
			"sender", msg.Sender,
			"subject", msg.SubjectDecoded,
		)

	case errors.Is(err, dispatch.ErrMissingAlertID):
		res.Trace = append(res.Trace, StageIDMissing, StageDiscarded)
		res.Reason = ReasonMissingAlertID
		res.Err = err
		slog.Error("alert discarded: no reception timestamp in body",
			"uid", msg.UID,
			"sender", msg.Sender,
			"subject", msg.SubjectDecoded,
			"rule", rule.Name,
			"error", err,
		)

	default:
		res.Trace = append(res.Trace, StageIDExtracted, StageEventEmitted)
		res.Event = event
		slog.Info("alert detected",
			"uid", msg.UID,
			"sender", msg.Sender,
			"subject", msg.SubjectDecoded,
			"rule", event.RuleName,
			"action", event.Action,
			"alert_id", event.AlertID,
			"alert_state", event.AlertState,
		)
	}

	return res
}
