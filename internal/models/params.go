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

package models

// Parameter names of a probe run. They are the Jenkins build parameters and
// the environment the runner reads in one-shot mode.
const (
	ParamScriptName   = "SCRIPT_NAME"
	ParamAlertID      = "ALERT_ID"
	ParamAlertName    = "ALERT_NAME"
	ParamAlertType    = "ALERT_TYPE"
	ParamEmailFrom    = "EMAIL_FROM"
	ParamEmailSubject = "EMAIL_SUBJECT"
	ParamEmailBody    = "EMAIL_BODY"
)

// ParseAlertType is the inverse of AlertState.AlertType.
func ParseAlertType(s string) AlertState {
	switch s {
	case "ACTIVA", string(StateActive):
		return StateActive
	case "RESUELTA", string(StateResolved):
		return StateResolved
	default:
		return StateUnknown
	}
}

// Params flattens the event into run parameters.
func (e *AlertEvent) Params() map[string]string {
	return map[string]string{
		ParamScriptName:   e.Action,
		ParamAlertID:      e.AlertID,
		ParamAlertName:    e.RuleName,
		ParamAlertType:    e.AlertState.AlertType(),
		ParamEmailFrom:    e.Sender,
		ParamEmailSubject: e.Subject,
		ParamEmailBody:    e.Body,
	}
}

// EventFromParams rebuilds an event from run parameters, e.g. os.Getenv.
func EventFromParams(get func(string) string) *AlertEvent {
	return &AlertEvent{
		RuleName:   get(ParamAlertName),
		Action:     get(ParamScriptName),
		AlertID:    get(ParamAlertID),
		AlertState: ParseAlertType(get(ParamAlertType)),
		Sender:     get(ParamEmailFrom),
		Subject:    get(ParamEmailSubject),
		Body:       get(ParamEmailBody),
	}
}
