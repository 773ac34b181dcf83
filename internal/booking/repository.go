package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrPatientNotFound     = errors.New("patient not found")
	ErrProviderNotFound    = errors.New("provider not found")
	ErrTimeSlotNotFound    = errors.New("time slot not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrSlotUnavailable     = errors.New("time slot is no longer available")
	ErrStatusConflict      = errors.New("appointment status changed concurrently")
)

// UpdateProviderParams carries partial updates; nil fields are left unchanged.
type UpdateProviderParams struct {
	Name         *string
	Specialty    *string
	HospitalName *string
	BillingType  *BillingType
}

// UpdateTimeSlotParams carries partial updates; nil fields are left unchanged.
type UpdateTimeSlotParams struct {
	StartTime *time.Time
	EndTime   *time.Time
	Available *bool
}

// Repository contains all DB interactions needed by the service.
type Repository interface {
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)

	GetProviderByID(ctx context.Context, id uuid.UUID) (*HealthcareProvider, error)
	ListProviders(ctx context.Context, specialty string) ([]HealthcareProvider, error)
	CreateProvider(ctx context.Context, p *HealthcareProvider) (*HealthcareProvider, error)
	UpdateProvider(ctx context.Context, id uuid.UUID, params UpdateProviderParams) (*HealthcareProvider, error)
	DeleteProvider(ctx context.Context, id uuid.UUID) error

	GetTimeSlotByID(ctx context.Context, id uuid.UUID) (*TimeSlot, error)
	ListAvailableTimeSlots(ctx context.Context, providerID uuid.UUID, dayStart, dayEnd time.Time) ([]TimeSlot, error)
	ListProviderTimeSlots(ctx context.Context, providerID uuid.UUID) ([]TimeSlot, error)
	CreateTimeSlot(ctx context.Context, s *TimeSlot) (*TimeSlot, error)
	UpdateTimeSlot(ctx context.Context, id uuid.UUID, params UpdateTimeSlotParams) (*TimeSlot, error)
	DeleteTimeSlot(ctx context.Context, id uuid.UUID) error

	// ReserveTimeSlot atomically flips available true -> false. It returns
	// ErrSlotUnavailable when the slot was already taken; a plain
	// read-then-write is not an acceptable implementation.
	ReserveTimeSlot(ctx context.Context, id uuid.UUID) error
	// ReleaseTimeSlot sets available = true. Idempotent.
	ReleaseTimeSlot(ctx context.Context, id uuid.UUID) error

	// CreateBooking reserves the slot and inserts the appointment in one
	// transaction, so a failed insert never leaves a half-reserved slot.
	CreateBooking(ctx context.Context, appt *Appointment) (*Appointment, error)

	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	GetAppointmentByConfirmationNumber(ctx context.Context, confirmationNumber string) (*Appointment, error)
	ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID) ([]Appointment, error)

	// UpdateAppointmentStatus is a compare-and-set: the update only applies
	// while the row still holds the expected `from` status. A row whose
	// status has since moved on yields ErrStatusConflict.
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error)

	// TransitionAppointmentStatus commits a status change together with its
	// rule side effects. The appointment row is locked, its status verified
	// against `from` (ErrStatusConflict when it moved on), then apply runs
	// with a transaction-scoped allocator before the status update commits.
	// Any failure rolls back the side effects and the status change as one.
	TransitionAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus, apply func(ctx context.Context, slots SlotAllocator) error) (*Appointment, error)

	CreatePayment(ctx context.Context, p *Payment) (*Payment, error)
	GetPaymentByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Payment, error)

	ConfirmationNumberExists(ctx context.Context, confirmationNumber string) (bool, error)
}

// SlotAllocator is the slice of Repository the status rules need.
type SlotAllocator interface {
	ReserveTimeSlot(ctx context.Context, id uuid.UUID) error
	ReleaseTimeSlot(ctx context.Context, id uuid.UUID) error
}
