// Package events defines the Kafka contract between the appointment-service and its consumers.
// Topic names equal the event type.
package events

import "time"

const (
	AppointmentBooked   = "booking.appointment.booked.v1"
	AppointmentCanceled = "booking.appointment.canceled.v1"

	AggregateAppointment = "appointment"
)

// Booked is published once per successful booking and addressed to the provider.
type Booked struct {
	AppointmentID int64     `json:"appointment_id"`
	ProviderID    int64     `json:"provider_id"`
	ClientID      int64     `json:"client_id"`
	ClientName    string    `json:"client_name"`
	Date          time.Time `json:"date"`
	Content       string    `json:"content"`
}

// Canceled carries everything the mail sink needs to render the cancellation template.
type Canceled struct {
	AppointmentID int64     `json:"appointment_id"`
	ProviderID    int64     `json:"provider_id"`
	ProviderName  string    `json:"provider_name"`
	ProviderEmail string    `json:"provider_email"`
	ClientID      int64     `json:"client_id"`
	ClientName    string    `json:"client_name"`
	Date          time.Time `json:"date"`
	DateText      string    `json:"date_text"`
	CanceledAt    time.Time `json:"canceled_at"`
}
