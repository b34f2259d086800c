package appointments

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/gobarber/appointments/services/appointment-service/internal/directory"
	"github.com/gobarber/appointments/services/appointment-service/internal/model"
	"github.com/gobarber/appointments/services/appointment-service/internal/outbox"
)

// memLedger is an in-memory Ledger. The slot check and the insert happen under one lock,
// mirroring the partial unique index of the Postgres ledger.
type memLedger struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]model.Appointment
	events []outbox.Event

	// beforeCancel runs inside MarkCanceled before the conditional update.
	beforeCancel func()
	err          error
}

func newMemLedger() *memLedger {
	return &memLedger{rows: map[int64]model.Appointment{}}
}

func (l *memLedger) Reserve(_ context.Context, appt model.Appointment, evt EventFunc) (model.Appointment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return model.Appointment{}, l.err
	}
	for _, r := range l.rows {
		if r.ProviderID == appt.ProviderID && r.Date.Equal(appt.Date) && !r.Canceled() {
			return model.Appointment{}, ErrLedgerSlotTaken
		}
	}
	l.nextID++
	appt.ID = l.nextID
	if evt != nil {
		e, err := evt(appt)
		if err != nil {
			l.nextID--
			return model.Appointment{}, err
		}
		l.events = append(l.events, e)
	}
	l.rows[appt.ID] = appt
	return appt, nil
}

func (l *memLedger) Get(_ context.Context, id int64) (model.AppointmentWithClient, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return model.AppointmentWithClient{}, l.err
	}
	r, ok := l.rows[id]
	if !ok {
		return model.AppointmentWithClient{}, ErrLedgerNotFound
	}
	client := testUsers[r.ClientID]
	return model.AppointmentWithClient{Appointment: r, Client: client}, nil
}

func (l *memLedger) MarkCanceled(_ context.Context, id int64, at time.Time, evt EventFunc) (model.Appointment, error) {
	if l.beforeCancel != nil {
		l.beforeCancel()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.rows[id]
	if !ok {
		return model.Appointment{}, ErrLedgerNotFound
	}
	if r.Canceled() {
		return model.Appointment{}, ErrLedgerNotUpdated
	}
	r.CanceledAt = &at
	if evt != nil {
		e, err := evt(r)
		if err != nil {
			return model.Appointment{}, err
		}
		l.events = append(l.events, e)
	}
	l.rows[id] = r
	return r, nil
}

func (l *memLedger) ListActiveByClient(_ context.Context, clientID int64, limit, offset int) ([]model.AppointmentWithProvider, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []model.AppointmentWithProvider
	for _, r := range l.rows {
		if r.ClientID == clientID && !r.Canceled() {
			out = append(out, model.AppointmentWithProvider{Appointment: r, Provider: testUsers[r.ProviderID]})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// cancelNow marks id canceled outside the engine, as a concurrent request would.
func (l *memLedger) cancelNow(id int64, at time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	r := l.rows[id]
	r.CanceledAt = &at
	l.rows[id] = r
}

const (
	anaID   int64 = 1
	brunoID int64 = 2
	carlaID int64 = 3
	daniID  int64 = 4
)

var testUsers = directory.Static{
	anaID:   {ID: anaID, Name: "Ana Cliente", Email: "ana@example.com"},
	brunoID: {ID: brunoID, Name: "Bruno Barbeiro", Email: "bruno@example.com", Provider: true, AvatarPath: "bruno.png"},
	carlaID: {ID: carlaID, Name: "Carla Cliente", Email: "carla@example.com"},
	daniID:  {ID: daniID, Name: "Dani Cabeleireira", Email: "dani@example.com", Provider: true},
}

type failingDirectory struct{ err error }

func (f failingDirectory) Lookup(context.Context, int64) (model.User, error) {
	return model.User{}, f.err
}

// mutableClock lets a test move time forward between calls.
type mutableClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *mutableClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *mutableClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func newTestService(ledger Ledger, dir directory.Directory, clock *mutableClock) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(ledger, dir, clock, logger, Config{FilesBaseURL: "http://localhost:3333/files/"})
}
