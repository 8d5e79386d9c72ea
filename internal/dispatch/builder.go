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

// Package dispatch assembles the AlertEvent handed to an action runner.
package dispatch

import (
	"errors"

	"github.com/gsit/alertas/internal/models"
	"github.com/gsit/alertas/internal/rules"
)

var (
	// ErrNoRuleMatched is the routine "ignore this email" result.
	ErrNoRuleMatched = errors.New("no rule matched")

	// ErrMissingAlertID means the message matched a rule but carried no
	// usable reception timestamp. The message must stay unprocessed.
	ErrMissingAlertID = errors.New("missing alert id")
)

// Build assembles an AlertEvent. rule is nil when no rule matched and
// alertID is "" when none could be extracted; in either case no partial
// event is returned. The rule check comes first.
func Build(rule *rules.Rule, alertID string, state models.AlertState, msg models.InboundMessage) (*models.AlertEvent, error) {
	if rule == nil {
		return nil, ErrNoRuleMatched
	}
	if alertID == "" {
		return nil, ErrMissingAlertID
	}

	return &models.AlertEvent{
		RuleName:   rule.Name,
		Action:     rule.Action,
		AlertID:    alertID,
		AlertState: state,
		Sender:     msg.Sender,
		Subject:    msg.SubjectDecoded,
		Body:       msg.BodyPlain,
	}, nil
}
