// Package appointments is the booking engine: it books, cancels and lists appointments,
// enforcing slot exclusivity and the cancellation window.
package appointments

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gobarber/appointments/services/appointment-service/internal/directory"
	"github.com/gobarber/appointments/services/appointment-service/internal/model"
	"github.com/gobarber/appointments/services/appointment-service/internal/outbox"
	"github.com/gobarber/appointments/services/appointment-service/internal/slot"
)

// PageSize is the fixed number of appointments per listing page.
const PageSize = 5

// Ledger errors. Implementations must return these (possibly wrapped) so the engine can
// classify failures.
var (
	ErrLedgerNotFound   = errors.New("ledger: appointment not found")
	ErrLedgerSlotTaken  = errors.New("ledger: slot already booked")
	ErrLedgerNotUpdated = errors.New("ledger: appointment already canceled")
)

// EventFunc builds the outbox event for a row the ledger has just written.
type EventFunc func(model.Appointment) (outbox.Event, error)

// Ledger is the authoritative appointment store.
type Ledger interface {
	// Reserve inserts appt and the event built by evt in one transaction. The insert must fail
	// with ErrLedgerSlotTaken when a non-canceled appointment already holds the slot.
	Reserve(ctx context.Context, appt model.Appointment, evt EventFunc) (model.Appointment, error)
	// Get returns the appointment joined with its client, or ErrLedgerNotFound.
	Get(ctx context.Context, id int64) (model.AppointmentWithClient, error)
	// MarkCanceled sets canceled_at only if it is still null, enqueueing evt in the same
	// transaction. It returns ErrLedgerNotUpdated when the row was already canceled.
	MarkCanceled(ctx context.Context, id int64, at time.Time, evt EventFunc) (model.Appointment, error)
	// ListActiveByClient returns non-canceled appointments of clientID, newest date first.
	ListActiveByClient(ctx context.Context, clientID int64, limit, offset int) ([]model.AppointmentWithProvider, error)
}

type Service struct {
	ledger       Ledger
	directory    directory.Directory
	clock        slot.Clock
	logger       *slog.Logger
	filesBaseURL string
}

type Config struct {
	// FilesBaseURL prefixes avatar paths in listings, e.g. http://localhost:3333/files.
	FilesBaseURL string
}

func NewService(ledger Ledger, dir directory.Directory, clock slot.Clock, logger *slog.Logger, cfg Config) *Service {
	if clock == nil {
		clock = slot.SystemClock()
	}
	return &Service{
		ledger:       ledger,
		directory:    dir,
		clock:        clock,
		logger:       logger,
		filesBaseURL: cfg.FilesBaseURL,
	}
}
