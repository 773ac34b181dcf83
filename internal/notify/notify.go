// Package notify sends best-effort booking confirmations. Failures are the
// caller's to swallow; nothing here may fail a booking.
package notify

import (
	"context"
	"fmt"
	"time"
)

// BookingConfirmation carries everything the SMS needs, so this package
// stays decoupled from the booking domain types.
type BookingConfirmation struct {
	Phone              string
	PatientName        string
	AppointmentTime    time.Time
	ConfirmationNumber string
}

type Notifier interface {
	BookingConfirmed(ctx context.Context, c BookingConfirmation) error
}

// NoopNotifier drops all notifications. Used in tests and when no broker
// is configured.
type NoopNotifier struct{}

func (NoopNotifier) BookingConfirmed(context.Context, BookingConfirmation) error { return nil }

func smsText(c BookingConfirmation) string {
	return fmt.Sprintf("Dear %s, your appointment is confirmed for %s. Thank you!",
		c.PatientName, c.AppointmentTime.Format(time.RFC1123))
}
