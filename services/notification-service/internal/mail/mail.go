// Package mail renders templated messages and hands them to an SMTP relay.
package mail

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"text/template"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// Message is a mail request: a template name plus the values it renders.
type Message struct {
	To       string
	Subject  string
	Template string
	Context  map[string]any
}

// Sender delivers a rendered message.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

type Mailer struct {
	templates *template.Template
	sender    Sender
}

func NewMailer(sender Sender) (*Mailer, error) {
	tmpl, err := template.New("mail").Option("missingkey=error").ParseFS(templateFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse mail templates: %w", err)
	}
	return &Mailer{templates: tmpl, sender: sender}, nil
}

// Render returns the body of msg without sending it.
func (m *Mailer) Render(msg Message) (string, error) {
	tmpl := m.templates.Lookup(msg.Template + ".tmpl")
	if tmpl == nil {
		return "", fmt.Errorf("unknown mail template %q", msg.Template)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, msg.Context); err != nil {
		return "", fmt.Errorf("render %s: %w", msg.Template, err)
	}
	return buf.String(), nil
}

func (m *Mailer) Send(ctx context.Context, msg Message) error {
	body, err := m.Render(msg)
	if err != nil {
		return err
	}
	return m.sender.Send(ctx, msg.To, msg.Subject, body)
}
