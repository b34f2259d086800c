package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/gobarber/appointments/libs/db"
	"github.com/gobarber/appointments/services/appointment-service/internal/appointments"
	"github.com/gobarber/appointments/services/appointment-service/internal/model"
	"github.com/gobarber/appointments/services/appointment-service/internal/outbox"
	"github.com/gobarber/appointments/services/appointment-service/internal/slot"
	"github.com/jackc/pgx/v5"
)

const activeSlotIndex = "appointments_active_slot_idx"

const appointmentColumns = `a.id, a.client_id, a.provider_id, a.date, a.canceled_at, a.created_at`

// Ledger is the Postgres appointment store.
type Ledger struct {
	pool *db.Pool
}

func NewLedger(pool *db.Pool) *Ledger {
	return &Ledger{pool: pool}
}

var _ appointments.Ledger = (*Ledger)(nil)

func (l *Ledger) Reserve(ctx context.Context, appt model.Appointment, evt appointments.EventFunc) (model.Appointment, error) {
	if !slot.IsHourAligned(appt.Date.UTC()) {
		return model.Appointment{}, fmt.Errorf("reserve: date %s is not a UTC hour start", appt.Date.Format(time.RFC3339Nano))
	}
	var saved model.Appointment
	err := l.pool.InTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			INSERT INTO appointments AS a (client_id, provider_id, date, created_at)
			VALUES ($1, $2, $3, $4)
			RETURNING `+appointmentColumns,
			appt.ClientID, appt.ProviderID, appt.Date, appt.CreatedAt)
		var err error
		if saved, err = scanAppointment(row); err != nil {
			if db.IsUniqueViolation(err, activeSlotIndex) {
				return appointments.ErrLedgerSlotTaken
			}
			return fmt.Errorf("insert appointment: %w", err)
		}
		return enqueue(ctx, tx, saved, evt)
	})
	if err != nil {
		return model.Appointment{}, err
	}
	return saved, nil
}

func (l *Ledger) Get(ctx context.Context, id int64) (model.AppointmentWithClient, error) {
	row := l.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`,
			COALESCE(u.name, ''), COALESCE(u.email, ''), COALESCE(u.provider, false)
		FROM appointments a
		LEFT JOIN users u ON u.id = a.client_id
		WHERE a.id = $1
	`, id)

	var out model.AppointmentWithClient
	var canceledAt *time.Time
	err := row.Scan(&out.ID, &out.ClientID, &out.ProviderID, &out.Date, &canceledAt, &out.CreatedAt,
		&out.Client.Name, &out.Client.Email, &out.Client.Provider)
	if err != nil {
		if db.IsNotFound(err) {
			return model.AppointmentWithClient{}, appointments.ErrLedgerNotFound
		}
		return model.AppointmentWithClient{}, err
	}
	out.Appointment = normalize(out.Appointment, canceledAt)
	out.Client.ID = out.ClientID
	return out, nil
}

func (l *Ledger) MarkCanceled(ctx context.Context, id int64, at time.Time, evt appointments.EventFunc) (model.Appointment, error) {
	var saved model.Appointment
	err := l.pool.InTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			UPDATE appointments AS a
			SET canceled_at = $2
			WHERE a.id = $1 AND a.canceled_at IS NULL
			RETURNING `+appointmentColumns,
			id, at)
		var err error
		if saved, err = scanAppointment(row); err != nil {
			if !db.IsNotFound(err) {
				return fmt.Errorf("cancel appointment: %w", err)
			}
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM appointments WHERE id = $1)`, id).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return appointments.ErrLedgerNotFound
			}
			return appointments.ErrLedgerNotUpdated
		}
		return enqueue(ctx, tx, saved, evt)
	})
	if err != nil {
		return model.Appointment{}, err
	}
	return saved, nil
}

func (l *Ledger) ListActiveByClient(ctx context.Context, clientID int64, limit, offset int) ([]model.AppointmentWithProvider, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT `+appointmentColumns+`,
			COALESCE(p.name, ''), COALESCE(p.email, ''), COALESCE(p.provider, false), COALESCE(f.path, '')
		FROM appointments a
		LEFT JOIN users p ON p.id = a.provider_id
		LEFT JOIN files f ON f.id = p.avatar_id
		WHERE a.client_id = $1 AND a.canceled_at IS NULL
		ORDER BY a.date DESC, a.id DESC
		LIMIT $2 OFFSET $3
	`, clientID, limit, offset)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.AppointmentWithProvider, error) {
		var out model.AppointmentWithProvider
		var canceledAt *time.Time
		err := row.Scan(&out.ID, &out.ClientID, &out.ProviderID, &out.Date, &canceledAt, &out.CreatedAt,
			&out.Provider.Name, &out.Provider.Email, &out.Provider.Provider, &out.Provider.AvatarPath)
		if err != nil {
			return out, err
		}
		out.Appointment = normalize(out.Appointment, canceledAt)
		out.Provider.ID = out.ProviderID
		return out, nil
	})
}

func enqueue(ctx context.Context, tx pgx.Tx, saved model.Appointment, evt appointments.EventFunc) error {
	if evt == nil {
		return nil
	}
	e, err := evt(saved)
	if err != nil {
		return err
	}
	if err := outbox.Enqueue(ctx, tx, e); err != nil {
		return fmt.Errorf("enqueue %s: %w", e.EventType, err)
	}
	return nil
}

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var a model.Appointment
	var canceledAt *time.Time
	if err := row.Scan(&a.ID, &a.ClientID, &a.ProviderID, &a.Date, &canceledAt, &a.CreatedAt); err != nil {
		return model.Appointment{}, err
	}
	return normalize(a, canceledAt), nil
}

// normalize reports every timestamp in UTC; pgx decodes timestamptz into the local zone.
func normalize(a model.Appointment, canceledAt *time.Time) model.Appointment {
	a.Date = a.Date.UTC()
	a.CreatedAt = a.CreatedAt.UTC()
	if canceledAt != nil {
		c := canceledAt.UTC()
		a.CanceledAt = &c
	}
	return a
}
