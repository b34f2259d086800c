package storage

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/gobarber/appointments/libs/db"
	"github.com/gobarber/appointments/services/appointment-service/internal/appointments"
	"github.com/gobarber/appointments/services/appointment-service/internal/directory"
	"github.com/gobarber/appointments/services/appointment-service/internal/model"
	"github.com/gobarber/appointments/services/appointment-service/internal/outbox"
)

func TestReserveRejectsUnalignedDate(t *testing.T) {
	l := NewLedger(nil)
	_, err := l.Reserve(context.Background(), model.Appointment{
		ClientID:   1,
		ProviderID: 2,
		Date:       time.Date(2031, 3, 5, 14, 30, 0, 0, time.UTC),
	}, nil)
	if err == nil {
		t.Fatal("expected unaligned date to be refused before reaching the database")
	}
}

// openTestPool connects to APPOINTMENTS_TEST_DATABASE_URL and resets every table.
func openTestPool(t *testing.T) *db.Pool {
	t.Helper()
	url := os.Getenv("APPOINTMENTS_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("APPOINTMENTS_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := db.Open(ctx, url, db.Options{MaxConns: 8})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(pool.Close)

	if _, err := Migrate(ctx, pool); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if _, err := pool.Exec(ctx, `TRUNCATE outbox_events, appointments, users, files RESTART IDENTITY CASCADE`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	if _, err := pool.Exec(ctx, `
		INSERT INTO files (id, name, path) VALUES (1, 'avatar.png', 'abc123.png');
		INSERT INTO users (id, name, email, provider, avatar_id) VALUES
			(1, 'Ana Cliente', 'ana@example.com', false, NULL),
			(2, 'Bruno Barbeiro', 'bruno@example.com', true, 1),
			(3, 'Carla Cliente', 'carla@example.com', false, NULL);
	`); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return pool
}

func bookedEvent(saved model.Appointment) (outbox.Event, error) {
	return outbox.JSONEvent("appointment", "x", "booking.appointment.booked.v1", map[string]int64{"id": saved.ID})
}

func countOutbox(t *testing.T, pool *db.Pool) int {
	t.Helper()
	var n int
	if err := pool.QueryRow(context.Background(), `SELECT count(*) FROM outbox_events`).Scan(&n); err != nil {
		t.Fatalf("count outbox: %v", err)
	}
	return n
}

func TestReserveEnforcesSlotExclusivity(t *testing.T) {
	pool := openTestPool(t)
	ledger := NewLedger(pool)
	ctx := context.Background()
	slotAt := time.Date(2031, 3, 5, 14, 0, 0, 0, time.UTC)
	now := time.Date(2031, 3, 1, 9, 0, 0, 0, time.UTC)

	saved, err := ledger.Reserve(ctx, model.Appointment{ClientID: 1, ProviderID: 2, Date: slotAt, CreatedAt: now}, bookedEvent)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if saved.ID == 0 || !saved.Date.Equal(slotAt) || saved.Canceled() {
		t.Fatalf("unexpected saved row %+v", saved)
	}

	_, err = ledger.Reserve(ctx, model.Appointment{ClientID: 3, ProviderID: 2, Date: slotAt, CreatedAt: now}, bookedEvent)
	if !errors.Is(err, appointments.ErrLedgerSlotTaken) {
		t.Fatalf("expected ErrLedgerSlotTaken, got %v", err)
	}
	if n := countOutbox(t, pool); n != 1 {
		t.Fatalf("expected one outbox row, got %d", n)
	}
}

func TestReserveConcurrentSameSlot(t *testing.T) {
	pool := openTestPool(t)
	ledger := NewLedger(pool)
	slotAt := time.Date(2031, 3, 5, 15, 0, 0, 0, time.UTC)

	const attempts = 8
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(client int64) {
			defer wg.Done()
			_, err := ledger.Reserve(context.Background(), model.Appointment{ClientID: client, ProviderID: 2, Date: slotAt, CreatedAt: time.Now()}, bookedEvent)
			results <- err
		}(1 + int64(i%2)*2)
	}
	wg.Wait()
	close(results)

	var ok, taken int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, appointments.ErrLedgerSlotTaken):
			taken++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || taken != attempts-1 {
		t.Fatalf("expected exactly one winner, got ok=%d taken=%d", ok, taken)
	}
}

func TestMarkCanceledIsTerminalAndFreesSlot(t *testing.T) {
	pool := openTestPool(t)
	ledger := NewLedger(pool)
	ctx := context.Background()
	slotAt := time.Date(2031, 3, 5, 16, 0, 0, 0, time.UTC)
	at := time.Date(2031, 3, 2, 10, 0, 0, 0, time.UTC)

	saved, err := ledger.Reserve(ctx, model.Appointment{ClientID: 1, ProviderID: 2, Date: slotAt, CreatedAt: at}, nil)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}

	canceled, err := ledger.MarkCanceled(ctx, saved.ID, at, bookedEvent)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if canceled.CanceledAt == nil || !canceled.CanceledAt.Equal(at) {
		t.Fatalf("expected canceled_at %s, got %+v", at, canceled.CanceledAt)
	}

	if _, err := ledger.MarkCanceled(ctx, saved.ID, at.Add(time.Hour), bookedEvent); !errors.Is(err, appointments.ErrLedgerNotUpdated) {
		t.Fatalf("expected ErrLedgerNotUpdated, got %v", err)
	}
	if _, err := ledger.MarkCanceled(ctx, 9999, at, bookedEvent); !errors.Is(err, appointments.ErrLedgerNotFound) {
		t.Fatalf("expected ErrLedgerNotFound, got %v", err)
	}

	got, err := ledger.Get(ctx, saved.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.CanceledAt.Equal(at) || got.Client.Name != "Ana Cliente" {
		t.Fatalf("unexpected row %+v", got)
	}

	if _, err := ledger.Reserve(ctx, model.Appointment{ClientID: 3, ProviderID: 2, Date: slotAt, CreatedAt: at}, nil); err != nil {
		t.Fatalf("canceled slot should be bookable again: %v", err)
	}
}

func TestListActiveByClient(t *testing.T) {
	pool := openTestPool(t)
	ledger := NewLedger(pool)
	ctx := context.Background()
	base := time.Date(2031, 4, 1, 8, 0, 0, 0, time.UTC)

	var firstID int64
	for i := 0; i < 7; i++ {
		saved, err := ledger.Reserve(ctx, model.Appointment{ClientID: 1, ProviderID: 2, Date: base.Add(time.Duration(i) * time.Hour), CreatedAt: base.AddDate(0, 0, -1)}, nil)
		if err != nil {
			t.Fatalf("reserve %d: %v", i, err)
		}
		if i == 0 {
			firstID = saved.ID
		}
	}
	if _, err := ledger.MarkCanceled(ctx, firstID, base.AddDate(0, 0, -1), nil); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	page1, err := ledger.ListActiveByClient(ctx, 1, 5, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page1) != 5 {
		t.Fatalf("expected 5 rows, got %d", len(page1))
	}
	if !page1[0].Date.Equal(base.Add(6 * time.Hour)) {
		t.Fatalf("expected newest first, got %s", page1[0].Date)
	}
	if page1[0].Provider.Name != "Bruno Barbeiro" || page1[0].Provider.AvatarPath != "abc123.png" {
		t.Fatalf("unexpected provider %+v", page1[0].Provider)
	}

	page2, err := ledger.ListActiveByClient(ctx, 1, 5, 5)
	if err != nil {
		t.Fatalf("list page 2: %v", err)
	}
	if len(page2) != 1 {
		t.Fatalf("expected the canceled row to be excluded, got %d rows", len(page2))
	}
}

func TestUsersLookup(t *testing.T) {
	pool := openTestPool(t)
	users := NewUsers(pool)

	u, err := users.Lookup(context.Background(), 2)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if !u.Provider || u.AvatarPath != "abc123.png" {
		t.Fatalf("unexpected user %+v", u)
	}
	if _, err := users.Lookup(context.Background(), 404); !errors.Is(err, directory.ErrUnknownUser) {
		t.Fatalf("expected ErrUnknownUser, got %v", err)
	}
}

func TestOutboxDrainMarksPublished(t *testing.T) {
	pool := openTestPool(t)
	ledger := NewLedger(pool)
	ctx := context.Background()

	if _, err := ledger.Reserve(ctx, model.Appointment{ClientID: 1, ProviderID: 2, Date: time.Date(2031, 5, 1, 9, 0, 0, 0, time.UTC), CreatedAt: time.Now()}, bookedEvent); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	repo := outbox.NewRepository(pool)
	var seen []outbox.Record
	n, err := repo.Drain(ctx, 10, func(_ context.Context, records []outbox.Record) error {
		seen = records
		return nil
	})
	if err != nil || n != 1 || len(seen) != 1 {
		t.Fatalf("expected one drained record, got n=%d (%v)", n, err)
	}
	if seen[0].EventID == "" || seen[0].EventType != "booking.appointment.booked.v1" {
		t.Fatalf("unexpected record %+v", seen[0])
	}

	n, err = repo.Drain(ctx, 10, func(context.Context, []outbox.Record) error { return nil })
	if err != nil || n != 0 {
		t.Fatalf("expected nothing left to drain, got n=%d (%v)", n, err)
	}
}
