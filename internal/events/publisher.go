// Package events publishes outbound domain events so audit consumers and
// other subscribers see lifecycle changes without coupling their latency
// or failures to the booking transaction.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	TypeAppointmentBooked        = "appointment.booked"
	TypeAppointmentPaid          = "appointment.paid"
	TypeAppointmentCancelled     = "appointment.cancelled"
	TypeAppointmentStatusChanged = "appointment.status_changed"
)

type Event struct {
	Type          string         `json:"type"`
	AppointmentID uuid.UUID      `json:"appointment_id"`
	OccurredAt    time.Time      `json:"occurred_at"`
	Payload       map[string]any `json:"payload,omitempty"`
}

// Publisher delivers events best-effort; callers log and swallow errors.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// NoopPublisher drops all events. Used in tests and when no broker is
// configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, Event) error { return nil }
