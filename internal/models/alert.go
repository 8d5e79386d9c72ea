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

// Package models defines the data structures shared across the alert pipeline.
package models

// AlertState reports whether the monitoring email announces an alert going
// active or being resolved.
type AlertState string

const (
	StateActive   AlertState = "ACTIVE"
	StateResolved AlertState = "RESOLVED"
	StateUnknown  AlertState = "UNKNOWN"
)

// AlertType returns the label used by the ledger and notifications
// ("ACTIVA", "RESUELTA", "DESCONEGUDA").
func (s AlertState) AlertType() string {
	switch s {
	case StateActive:
		return "ACTIVA"
	case StateResolved:
		return "RESUELTA"
	default:
		return "DESCONEGUDA"
	}
}

// Outcome is the binary verdict produced by a UI probe.
type Outcome string

const (
	OutcomeFalsePositive  Outcome = "falso_positivo"
	OutcomeAlarmConfirmed Outcome = "alarma_confirmada"
)

// ParseOutcome maps the contents of a probe status artifact to an Outcome.
// Anything other than a false positive counts as a confirmed alarm.
func ParseOutcome(s string) Outcome {
	if Outcome(s) == OutcomeFalsePositive {
		return OutcomeFalsePositive
	}
	return OutcomeAlarmConfirmed
}

// InboundMessage is a transient view of one fetched email.
type InboundMessage struct {
	UID            uint32 `json:"uid,omitempty"`
	Sender         string `json:"sender"`
	SubjectRaw     string `json:"subject_raw"`
	SubjectDecoded string `json:"subject"`
	BodyPlain      string `json:"body"`
}

// AlertEvent is the classified output for a single message, ready to hand
// to an action runner.
//
// The JSON form is the job payload consumed by cmd/runner, so field names
// are part of the queue contract.
type AlertEvent struct {
	RuleName   string     `json:"rule_name"`
	Action     string     `json:"action"`
	AlertID    string     `json:"alert_id"`
	AlertState AlertState `json:"alert_state"`
	Sender     string     `json:"sender"`
	Subject    string     `json:"subject"`
	Body       string     `json:"body"`
}

// Report is the outcome of one probe run, handed to notifications and the
// ledger.
type Report struct {
	Event    AlertEvent `json:"event"`
	Outcome  Outcome    `json:"status"`
	BuildURL string     `json:"build_url,omitempty"`
}
