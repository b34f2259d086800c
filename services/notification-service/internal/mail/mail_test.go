package mail

import (
	"context"
	"net/mail"
	"strings"
	"testing"
	"time"
)

type captureSender struct {
	to, subject, body string
}

func (c *captureSender) Send(_ context.Context, to, subject, body string) error {
	c.to, c.subject, c.body = to, subject, body
	return nil
}

func TestMailerRendersCancellation(t *testing.T) {
	sender := &captureSender{}
	m, err := NewMailer(sender)
	if err != nil {
		t.Fatalf("NewMailer: %v", err)
	}
	err = m.Send(context.Background(), Message{
		To:       "Bruno Barbeiro <bruno@example.com>",
		Subject:  "Agendamento cancelado",
		Template: "cancellation",
		Context: map[string]any{
			"provider": "Bruno Barbeiro",
			"user":     "Ana Cliente",
			"date":     "dia 05 de março, às 14:00h",
		},
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if sender.to != "Bruno Barbeiro <bruno@example.com>" || sender.subject != "Agendamento cancelado" {
		t.Fatalf("unexpected envelope to=%q subject=%q", sender.to, sender.subject)
	}
	for _, want := range []string{"Olá, Bruno Barbeiro", "Cliente: Ana Cliente", "dia 05 de março, às 14:00h"} {
		if !strings.Contains(sender.body, want) {
			t.Fatalf("body missing %q:\n%s", want, sender.body)
		}
	}
}

func TestMailerRejectsUnknownTemplateAndMissingKeys(t *testing.T) {
	m, err := NewMailer(&captureSender{})
	if err != nil {
		t.Fatalf("NewMailer: %v", err)
	}
	if _, err := m.Render(Message{Template: "welcome"}); err == nil {
		t.Fatal("expected unknown template error")
	}
	if _, err := m.Render(Message{Template: "cancellation", Context: map[string]any{"provider": "x"}}); err == nil {
		t.Fatal("expected missing key error")
	}
}

func TestBuildMessageHeaders(t *testing.T) {
	from := &mail.Address{Name: "Equipe GoBarber", Address: "noreply@gobarber.local"}
	to := &mail.Address{Name: "Bruno", Address: "bruno@example.com"}
	raw := string(buildMessage(from, to, "Agendamento cancelado", "linha 1\nlinha 2", time.Date(2031, 3, 1, 9, 0, 0, 0, time.UTC)))

	if !strings.Contains(raw, "To: \"Bruno\" <bruno@example.com>\r\n") {
		t.Fatalf("unexpected To header:\n%s", raw)
	}
	if !strings.HasSuffix(raw, "\r\n\r\nlinha 1\r\nlinha 2") {
		t.Fatalf("expected CRLF body:\n%q", raw)
	}
}
