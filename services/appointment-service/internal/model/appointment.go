package model

import "time"

type Appointment struct {
	ID         int64
	ClientID   int64
	ProviderID int64
	Date       time.Time
	CanceledAt *time.Time
	CreatedAt  time.Time
}

func (a Appointment) Canceled() bool {
	return a.CanceledAt != nil
}

// User is the read-only view of an account owned by the user service.
type User struct {
	ID         int64
	Name       string
	Email      string
	Provider   bool
	AvatarPath string
}

// AppointmentWithClient is an appointment joined with the booking client's identity.
type AppointmentWithClient struct {
	Appointment
	Client User
}

// AppointmentWithProvider is a listing row: an appointment joined with its provider.
type AppointmentWithProvider struct {
	Appointment
	Provider User
}
