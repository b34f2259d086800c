package appointments

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/gobarber/appointments/libs/events"
	"github.com/gobarber/appointments/services/appointment-service/internal/directory"
	"github.com/gobarber/appointments/services/appointment-service/internal/model"
	"github.com/gobarber/appointments/services/appointment-service/internal/outbox"
	"github.com/gobarber/appointments/services/appointment-service/internal/slot"
)

// Create books providerID's slot containing requested for clientID.
//
// Checks run in a fixed order and none of them has side effects. The conflict check and the
// insert are a single ledger operation, so two concurrent requests for the same slot cannot
// both succeed. The provider notification is enqueued in the same transaction and delivered
// asynchronously.
func (s *Service) Create(ctx context.Context, clientID, providerID int64, requested time.Time) (model.Appointment, error) {
	if clientID <= 0 || providerID <= 0 || requested.IsZero() {
		return model.Appointment{}, ErrValidationFailed
	}

	// The provider flag gates the booking, so it is never read from a cache.
	provider, err := s.directory.Lookup(directory.WithFresh(ctx), providerID)
	if err != nil {
		if errors.Is(err, directory.ErrUnknownUser) {
			return model.Appointment{}, ErrInvalidProvider
		}
		return model.Appointment{}, infraError("provider lookup failed", err)
	}
	if !provider.Provider {
		return model.Appointment{}, ErrInvalidProvider
	}
	if providerID == clientID {
		return model.Appointment{}, ErrSelfBooking
	}

	hourStart := slot.HourStart(requested.UTC())
	now := s.clock.Now()
	if !hourStart.After(now) {
		return model.Appointment{}, ErrPastDate
	}

	clientName := s.clientName(ctx, clientID)
	appt, err := s.ledger.Reserve(ctx, model.Appointment{
		ClientID:   clientID,
		ProviderID: providerID,
		Date:       hourStart,
		CreatedAt:  now,
	}, func(saved model.Appointment) (outbox.Event, error) {
		return outbox.JSONEvent(events.AggregateAppointment, strconv.FormatInt(saved.ID, 10), events.AppointmentBooked, events.Booked{
			AppointmentID: saved.ID,
			ProviderID:    saved.ProviderID,
			ClientID:      saved.ClientID,
			ClientName:    clientName,
			Date:          saved.Date,
			Content:       bookedContent(clientName, saved.Date),
		})
	})
	if err != nil {
		if errors.Is(err, ErrLedgerSlotTaken) {
			return model.Appointment{}, ErrSlotUnavailable
		}
		return model.Appointment{}, infraError("failed to create appointment", err)
	}

	s.logger.Info("appointment booked",
		"appointment_id", appt.ID,
		"client_id", appt.ClientID,
		"provider_id", appt.ProviderID,
		"date", appt.Date,
	)
	return appt, nil
}

// clientName resolves the display name used in the provider notification. A lookup failure
// must not block the booking, so it degrades to a generic name.
func (s *Service) clientName(ctx context.Context, clientID int64) string {
	client, err := s.directory.Lookup(ctx, clientID)
	if err != nil || client.Name == "" {
		s.logger.Warn("client name unavailable for notification", "client_id", clientID, "err", err)
		return "cliente #" + strconv.FormatInt(clientID, 10)
	}
	return client.Name
}
