// Package processor turns appointment events into provider notifications and mails.
package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gobarber/appointments/libs/events"
	"github.com/gobarber/appointments/services/notification-service/internal/mail"
	"github.com/gobarber/appointments/services/notification-service/internal/storage"
	"github.com/segmentio/kafka-go"
)

const cancellationSubject = "Agendamento cancelado"

type NotificationStore interface {
	Create(ctx context.Context, user int64, content string, at time.Time) (storage.Notification, error)
}

type Mailer interface {
	Send(ctx context.Context, msg mail.Message) error
}

type Processor struct {
	notifications NotificationStore
	mailer        Mailer
	logger        *slog.Logger
	now           func() time.Time
}

func New(notifications NotificationStore, mailer Mailer, logger *slog.Logger) *Processor {
	return &Processor{
		notifications: notifications,
		mailer:        mailer,
		logger:        logger,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Booked stores the provider's "new appointment" notification. Malformed payloads are
// logged and dropped; storage errors are returned for retry.
func (p *Processor) Booked(ctx context.Context, msg kafka.Message) error {
	var evt events.Booked
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		p.logger.Error("invalid booked payload", "err", err)
		return nil
	}
	if evt.ProviderID <= 0 || evt.Content == "" {
		p.logger.Error("booked event missing fields", "appointment_id", evt.AppointmentID)
		return nil
	}

	n, err := p.notifications.Create(ctx, evt.ProviderID, evt.Content, p.now())
	if err != nil {
		return err
	}
	p.logger.Info("provider notified",
		"appointment_id", evt.AppointmentID,
		"provider_id", evt.ProviderID,
		"notification_id", n.ID.Hex(),
	)
	return nil
}

// Canceled mails the provider about a cancellation.
func (p *Processor) Canceled(ctx context.Context, msg kafka.Message) error {
	var evt events.Canceled
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		p.logger.Error("invalid canceled payload", "err", err)
		return nil
	}
	if evt.ProviderEmail == "" {
		p.logger.Error("canceled event missing provider email", "appointment_id", evt.AppointmentID)
		return nil
	}

	err := p.mailer.Send(ctx, mail.Message{
		To:       fmt.Sprintf("%s <%s>", evt.ProviderName, evt.ProviderEmail),
		Subject:  cancellationSubject,
		Template: "cancellation",
		Context: map[string]any{
			"provider": evt.ProviderName,
			"user":     evt.ClientName,
			"date":     evt.DateText,
		},
	})
	if err != nil {
		return fmt.Errorf("send cancellation mail: %w", err)
	}
	p.logger.Info("cancellation mailed", "appointment_id", evt.AppointmentID, "provider_id", evt.ProviderID)
	return nil
}
