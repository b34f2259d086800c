package appointments

import (
	"context"
	"strings"
	"time"

	"github.com/gobarber/appointments/services/appointment-service/internal/slot"
)

// ProviderSummary is the provider block of a listed appointment.
type ProviderSummary struct {
	ID        int64
	Name      string
	AvatarURL string
}

// AnnotatedAppointment is a listing row with flags derived from the current time.
type AnnotatedAppointment struct {
	ID         int64
	Date       time.Time
	Past       bool
	Cancelable bool
	Provider   ProviderSummary
}

// List returns page (1-based) of clientID's non-canceled appointments, newest date first.
// Past and Cancelable are computed against the clock at call time and never stored.
func (s *Service) List(ctx context.Context, clientID int64, page int) ([]AnnotatedAppointment, error) {
	if clientID <= 0 || page < 1 {
		return nil, ErrValidationFailed
	}

	rows, err := s.ledger.ListActiveByClient(ctx, clientID, PageSize, (page-1)*PageSize)
	if err != nil {
		return nil, infraError("failed to list appointments", err)
	}

	now := s.clock.Now()
	out := make([]AnnotatedAppointment, 0, len(rows))
	for _, row := range rows {
		out = append(out, AnnotatedAppointment{
			ID:         row.ID,
			Date:       row.Date,
			Past:       slot.Past(row.Date, now),
			Cancelable: slot.Cancelable(row.Date, now),
			Provider: ProviderSummary{
				ID:        row.Provider.ID,
				Name:      row.Provider.Name,
				AvatarURL: s.avatarURL(row.Provider.AvatarPath),
			},
		})
	}
	return out, nil
}

func (s *Service) avatarURL(path string) string {
	if path == "" {
		return ""
	}
	return strings.TrimRight(s.filesBaseURL, "/") + "/" + strings.TrimLeft(path, "/")
}
