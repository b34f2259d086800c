package appointments

import (
	"context"
	"errors"
	"strconv"

	"github.com/gobarber/appointments/libs/events"
	"github.com/gobarber/appointments/services/appointment-service/internal/model"
	"github.com/gobarber/appointments/services/appointment-service/internal/outbox"
	"github.com/gobarber/appointments/services/appointment-service/internal/slot"
)

// Cancel cancels appointmentID on behalf of requestingUserID, who must be the booking client.
// Cancellation is terminal and must happen strictly before the slot's 2 hour notice.
func (s *Service) Cancel(ctx context.Context, appointmentID, requestingUserID int64) (model.Appointment, error) {
	if appointmentID <= 0 || requestingUserID <= 0 {
		return model.Appointment{}, ErrValidationFailed
	}

	found, err := s.ledger.Get(ctx, appointmentID)
	if err != nil {
		if errors.Is(err, ErrLedgerNotFound) {
			return model.Appointment{}, ErrNotFound
		}
		return model.Appointment{}, infraError("failed to load appointment", err)
	}
	if found.ClientID != requestingUserID {
		return model.Appointment{}, ErrForbidden
	}
	if found.Canceled() {
		return model.Appointment{}, ErrAlreadyCanceled
	}
	now := s.clock.Now()
	if !slot.Cancelable(found.Date, now) {
		return model.Appointment{}, ErrCancellationWindowExpired
	}

	provider, err := s.directory.Lookup(ctx, found.ProviderID)
	if err != nil {
		return model.Appointment{}, infraError("provider lookup failed", err)
	}

	canceled, err := s.ledger.MarkCanceled(ctx, appointmentID, now, func(saved model.Appointment) (outbox.Event, error) {
		return outbox.JSONEvent(events.AggregateAppointment, strconv.FormatInt(saved.ID, 10), events.AppointmentCanceled, events.Canceled{
			AppointmentID: saved.ID,
			ProviderID:    provider.ID,
			ProviderName:  provider.Name,
			ProviderEmail: provider.Email,
			ClientID:      saved.ClientID,
			ClientName:    found.Client.Name,
			Date:          saved.Date,
			DateText:      FormatSlotPT(saved.Date),
			CanceledAt:    *saved.CanceledAt,
		})
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrLedgerNotUpdated):
			return model.Appointment{}, ErrAlreadyCanceled
		case errors.Is(err, ErrLedgerNotFound):
			return model.Appointment{}, ErrNotFound
		}
		return model.Appointment{}, infraError("failed to cancel appointment", err)
	}

	s.logger.Info("appointment canceled",
		"appointment_id", canceled.ID,
		"client_id", canceled.ClientID,
		"provider_id", canceled.ProviderID,
	)
	return canceled, nil
}
