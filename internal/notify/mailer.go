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

package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"github.com/gsit/alertas/internal/fields"
	"github.com/gsit/alertas/internal/models"
)

const unknownDate = "Desconegut"

const defaultTemplate = `<html>
<body>
<h2>Alerta {{.AlertName}} ({{.AlertType}})</h2>
<table>
<tr><td>ID</td><td>{{.AlertID}}</td></tr>
<tr><td>Inici</td><td>{{.Start}}</td></tr>
{{if .Recovery}}<tr><td>Recuperació</td><td>{{.Recovery}}</td></tr>{{end}}
{{if .Service}}<tr><td>Servei</td><td>{{.Service}}</td></tr>{{end}}
{{if .Severity}}<tr><td>Criticitat</td><td>{{.Severity}}</td></tr>{{end}}
{{if .Summary}}<tr><td>Descripció</td><td>{{.Summary}}</td></tr>{{end}}
<tr><td>Estat</td><td>{{.Status}}</td></tr>
</table>
{{if .BuildURL}}<p><a href="{{.BuildURL}}">Execució a Jenkins</a></p>{{end}}
</body>
</html>
`

// MailData is what report templates can reference.
type MailData struct {
	AlertID   string
	AlertName string
	AlertType string
	Action    string
	Status    string
	Start     string
	Recovery  string
	Service   string
	Severity  string
	Summary   string
	Error     string
	BuildURL  string
}

// MailerOptions configures SMTP delivery.
type MailerOptions struct {
	Addr        string // host:port
	Username    string
	Password    string
	From        string
	To          []string
	TemplateDir string // <action>.html overrides the built-in template
}

type sendFunc func(addr string, a sasl.Client, from string, to []string, r io.Reader) error

// Mailer emails an HTML report for confirmed alarms.
type Mailer struct {
	opts MailerOptions
	send sendFunc
	now  func() time.Time
	base *template.Template
}

// NewMailer creates a mailer.
func NewMailer(opts MailerOptions) *Mailer {
	return &Mailer{
		opts: opts,
		send: smtp.SendMail,
		now:  time.Now,
		base: template.Must(template.New("report").Parse(defaultTemplate)),
	}
}

// NewMailData extracts the template fields from a report.
func NewMailData(r models.Report) MailData {
	ev := r.Event
	v := fields.ReportSchema.Extract(ev.Body)

	start := unknownDate
	if v.Has(fields.Start) {
		start = v.Text(fields.Start)
	}

	d := MailData{
		AlertID:   ev.AlertID,
		AlertName: ev.RuleName,
		AlertType: ev.AlertState.AlertType(),
		Action:    ev.Action,
		Status:    string(r.Outcome),
		Start:     start,
		Service:   v.Text(fields.Service),
		Severity:  v.Text(fields.Severity),
		Summary:   v.Text(fields.Summary),
		Error:     v.Text(fields.ErrorText),
		BuildURL:  r.BuildURL,
	}
	if ev.AlertState == models.StateResolved {
		d.Recovery = v.Text(fields.Recovery)
	}
	return d
}

// template returns the action's template, or the built-in one.
func (m *Mailer) template(action string) (*template.Template, error) {
	if m.opts.TemplateDir == "" || action == "" {
		return m.base, nil
	}

	path := filepath.Join(m.opts.TemplateDir, filepath.Base(action)+".html")
	text, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return m.base, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read template %s: %w", path, err)
	}

	t, err := template.New(action).Parse(string(text))
	if err != nil {
		return nil, fmt.Errorf("parse template %s: %w", path, err)
	}
	return t, nil
}

// Render builds the subject and HTML body for a report.
func (m *Mailer) Render(r models.Report) (string, string, error) {
	t, err := m.template(r.Event.Action)
	if err != nil {
		return "", "", err
	}

	data := NewMailData(r)
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("render template: %w", err)
	}

	subject := fmt.Sprintf("[GSIT] Alerta %s (%s) - %s", data.AlertName, data.AlertType, data.Status)
	return subject, buf.String(), nil
}

// Notify sends the report when the alarm is confirmed. False positives and
// an unconfigured mailer are skipped.
func (m *Mailer) Notify(ctx context.Context, r models.Report) error {
	if r.Outcome != models.OutcomeAlarmConfirmed {
		return nil
	}
	if m.opts.Addr == "" || len(m.opts.To) == 0 {
		slog.Warn("smtp not configured, skipping report email", "alert_id", r.Event.AlertID)
		return nil
	}

	subject, html, err := m.Render(r)
	if err != nil {
		return err
	}

	msg, err := m.compose(subject, html)
	if err != nil {
		return err
	}

	var auth sasl.Client
	if m.opts.Username != "" {
		auth = sasl.NewPlainClient("", m.opts.Username, m.opts.Password)
	}

	if err := m.send(m.opts.Addr, auth, m.opts.From, m.opts.To, bytes.NewReader(msg)); err != nil {
		return fmt.Errorf("send report email: %w", err)
	}

	slog.Info("report email sent", "alert_id", r.Event.AlertID, "to", m.opts.To)
	return nil
}

func (m *Mailer) compose(subject, html string) ([]byte, error) {
	var h mail.Header
	h.SetDate(m.now())
	h.SetSubject(subject)
	h.SetAddressList("From", []*mail.Address{{Address: m.opts.From}})
	to := make([]*mail.Address, len(m.opts.To))
	for i, addr := range m.opts.To {
		to[i] = &mail.Address{Address: addr}
	}
	h.SetAddressList("To", to)
	h.SetContentType("text/html", map[string]string{"charset": "utf-8"})

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	if _, err := io.WriteString(w, html); err != nil {
		return nil, fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close message: %w", err)
	}
	return buf.Bytes(), nil
}
