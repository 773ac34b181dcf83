package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/medibook/healthcare-booking/internal/audit"
	"github.com/medibook/healthcare-booking/internal/events"
	"github.com/medibook/healthcare-booking/internal/notify"
	redisclient "github.com/medibook/healthcare-booking/internal/redis"
)

var (
	ErrPaymentNotRequired      = errors.New("payment not required for this appointment")
	ErrPaymentAlreadyProcessed = errors.New("payment already processed for this appointment")
	ErrSlotBeingBooked         = errors.New("slot is currently being booked, please retry")
)

const (
	auditAppointmentBooked    = "APPOINTMENT_BOOKED"
	auditPaymentProcessed     = "PAYMENT_PROCESSED"
	auditAppointmentCancelled = "APPOINTMENT_CANCELLED"
	auditStatusChanged        = "APPOINTMENT_STATUS_CHANGED"
)

// Service owns the appointment lifecycle: booking, payment gating,
// cancellation, and rule-driven status transitions.
type Service struct {
	repo     Repository
	locker   redisclient.Locker
	engine   *RuleEngine
	confirm  *ConfirmationGenerator
	events   events.Publisher
	audit    audit.Recorder
	notifier notify.Notifier
}

func NewService(
	repo Repository,
	locker redisclient.Locker,
	publisher events.Publisher,
	recorder audit.Recorder,
	notifier notify.Notifier,
) *Service {
	return &Service{
		repo: repo,
		locker: locker,
		engine: NewRuleEngine(
			NewReleaseOnCancelRule(),
			NewRestoreOnUncancelRule(),
		),
		confirm:  NewConfirmationGenerator(repo),
		events:   publisher,
		audit:    recorder,
		notifier: notifier,
	}
}

// BookAppointment reserves the slot for the patient. The per-slot lock plus
// the repository's conditional reserve guarantee that concurrent requests
// for the same slot cannot both succeed, and the repository transaction
// guarantees no appointment exists without its reserved slot.
func (s *Service) BookAppointment(ctx context.Context, patientID, providerID, timeSlotID uuid.UUID) (*Appointment, error) {
	patient, err := s.repo.GetPatientByID(ctx, patientID)
	if err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}

	provider, err := s.repo.GetProviderByID(ctx, providerID)
	if err != nil {
		if errors.Is(err, ErrProviderNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load provider: %w", err)
	}

	slot, err := s.repo.GetTimeSlotByID(ctx, timeSlotID)
	if err != nil {
		if errors.Is(err, ErrTimeSlotNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load time slot: %w", err)
	}
	if slot.ProviderID != provider.ID {
		return nil, ErrTimeSlotNotFound
	}

	paymentRequired := provider.BillingType == BillingPrivate
	status := StatusConfirmed
	if paymentRequired {
		status = StatusPendingPayment
	}

	confirmationNumber, err := s.confirm.Generate(ctx)
	if err != nil {
		return nil, err
	}

	var created *Appointment

	err = s.locker.WithSlotLock(ctx, timeSlotID, func(lockCtx context.Context) error {
		appt := &Appointment{
			ID:                 uuid.New(),
			PatientID:          patientID,
			ProviderID:         providerID,
			TimeSlotID:         timeSlotID,
			Status:             status,
			BookingTime:        time.Now(),
			ConfirmationNumber: confirmationNumber,
			PaymentRequired:    paymentRequired,
		}

		created, err = s.repo.CreateBooking(lockCtx, appt)
		return err
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		if errors.Is(err, ErrSlotUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("create booking: %w", err)
	}

	s.recordAudit(ctx, auditAppointmentBooked, created.ID,
		fmt.Sprintf("patient=%s provider=%s slot=%s confirmation=%s",
			patientID, providerID, timeSlotID, created.ConfirmationNumber))
	s.publishEvent(ctx, events.Event{
		Type:          events.TypeAppointmentBooked,
		AppointmentID: created.ID,
		Payload: map[string]any{
			"patient_id":       patientID.String(),
			"provider_id":      providerID.String(),
			"time_slot_id":     timeSlotID.String(),
			"status":           string(created.Status),
			"payment_required": created.PaymentRequired,
		},
	})

	if created.Status == StatusConfirmed {
		s.sendConfirmation(ctx, created, patient, slot)
	}

	return created, nil
}

// ProcessPayment settles a PENDING_PAYMENT appointment. The gateway call is
// simulated: the payment record is created already COMPLETED with a random
// transaction id.
func (s *Service) ProcessPayment(ctx context.Context, appointmentID uuid.UUID, amount float64, method PaymentMethod) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, appointmentID)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}

	if !appt.PaymentRequired {
		return nil, ErrPaymentNotRequired
	}
	if appt.Status != StatusPendingPayment {
		return nil, ErrPaymentAlreadyProcessed
	}

	payment := &Payment{
		ID:            uuid.New(),
		AppointmentID: appt.ID,
		Amount:        amount,
		Method:        method,
		TransactionID: uuid.NewString(),
		Status:        PaymentCompleted,
		PaidAt:        time.Now(),
	}
	if _, err := s.repo.CreatePayment(ctx, payment); err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}

	updated, err := s.repo.UpdateAppointmentStatus(ctx, appt.ID, StatusPendingPayment, StatusConfirmed)
	if err != nil {
		// Losing the compare-and-set means another request settled first.
		if errors.Is(err, ErrStatusConflict) {
			return nil, ErrPaymentAlreadyProcessed
		}
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("confirm appointment: %w", err)
	}

	s.recordAudit(ctx, auditPaymentProcessed, updated.ID,
		fmt.Sprintf("amount=%.2f method=%s transaction=%s", amount, method, payment.TransactionID))
	s.publishEvent(ctx, events.Event{
		Type:          events.TypeAppointmentPaid,
		AppointmentID: updated.ID,
		Payload: map[string]any{
			"amount":         amount,
			"method":         string(method),
			"transaction_id": payment.TransactionID,
		},
	})

	if patient, perr := s.repo.GetPatientByID(ctx, updated.PatientID); perr == nil {
		if slot, serr := s.repo.GetTimeSlotByID(ctx, updated.TimeSlotID); serr == nil {
			s.sendConfirmation(ctx, updated, patient, slot)
		}
	}

	return updated, nil
}

// CancelAppointment runs the rule engine for (current, CANCELLED), which
// releases the linked slot, and commits those side effects together with
// the status change in one repository transaction.
func (s *Service) CancelAppointment(ctx context.Context, appointmentID uuid.UUID) error {
	appt, err := s.repo.GetAppointmentByID(ctx, appointmentID)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return err
		}
		return fmt.Errorf("load appointment: %w", err)
	}

	_, err = s.repo.TransitionAppointmentStatus(ctx, appt.ID, appt.Status, StatusCancelled,
		func(txCtx context.Context, slots SlotAllocator) error {
			return s.engine.Apply(txCtx, appt.Status, StatusCancelled, appt, slots)
		})
	if err != nil {
		switch {
		case errors.Is(err, ErrAppointmentNotFound),
			errors.Is(err, ErrStatusConflict),
			errors.Is(err, ErrInvalidStatusTransition):
			return err
		}
		return fmt.Errorf("cancel appointment: %w", err)
	}

	s.recordAudit(ctx, auditAppointmentCancelled, appt.ID,
		fmt.Sprintf("previous_status=%s slot=%s", appt.Status, appt.TimeSlotID))
	s.publishEvent(ctx, events.Event{
		Type:          events.TypeAppointmentCancelled,
		AppointmentID: appt.ID,
		Payload: map[string]any{
			"previous_status": string(appt.Status),
		},
	})

	return nil
}

// UpdateAppointmentStatus moves an appointment to newStatus after the
// transition table and rule engine agree. Arbitrary jumps (for example
// PENDING_PAYMENT straight to COMPLETED) are rejected. Rule side effects
// and the status change commit in one repository transaction.
func (s *Service) UpdateAppointmentStatus(ctx context.Context, appointmentID uuid.UUID, newStatus AppointmentStatus) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, appointmentID)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}

	updated, err := s.repo.TransitionAppointmentStatus(ctx, appt.ID, appt.Status, newStatus,
		func(txCtx context.Context, slots SlotAllocator) error {
			return s.engine.Apply(txCtx, appt.Status, newStatus, appt, slots)
		})
	if err != nil {
		switch {
		case errors.Is(err, ErrAppointmentNotFound),
			errors.Is(err, ErrStatusConflict),
			errors.Is(err, ErrInvalidStatusTransition):
			return nil, err
		}
		return nil, fmt.Errorf("update appointment status: %w", err)
	}

	s.recordAudit(ctx, auditStatusChanged, updated.ID,
		fmt.Sprintf("from=%s to=%s", appt.Status, newStatus))
	s.publishEvent(ctx, events.Event{
		Type:          events.TypeAppointmentStatusChanged,
		AppointmentID: updated.ID,
		Payload: map[string]any{
			"from": string(appt.Status),
			"to":   string(newStatus),
		},
	})

	return updated, nil
}

// ListAvailableTimeSlots returns the provider's free slots whose start time
// falls on the given calendar day.
func (s *Service) ListAvailableTimeSlots(ctx context.Context, providerID uuid.UUID, date time.Time) ([]TimeSlot, error) {
	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)

	slots, err := s.repo.ListAvailableTimeSlots(ctx, providerID, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("list available time slots: %w", err)
	}
	return slots, nil
}

// GetAppointment retrieves a fully hydrated appointment by id.
func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.hydrate(ctx, appt)
}

// GetAppointmentByConfirmationNumber looks up a booking by its externally
// visible reference.
func (s *Service) GetAppointmentByConfirmationNumber(ctx context.Context, confirmationNumber string) (*AppointmentDetail, error) {
	appt, err := s.repo.GetAppointmentByConfirmationNumber(ctx, confirmationNumber)
	if err != nil {
		return nil, err
	}
	return s.hydrate(ctx, appt)
}

// ListPatientAppointments returns hydrated appointments for one patient.
func (s *Service) ListPatientAppointments(ctx context.Context, patientID uuid.UUID) ([]AppointmentDetail, error) {
	appts, err := s.repo.ListAppointmentsByPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("list patient appointments: %w", err)
	}

	details := make([]AppointmentDetail, 0, len(appts))
	for i := range appts {
		d, err := s.hydrate(ctx, &appts[i])
		if err != nil {
			return nil, err
		}
		details = append(details, *d)
	}
	return details, nil
}

func (s *Service) hydrate(ctx context.Context, appt *Appointment) (*AppointmentDetail, error) {
	detail := AppointmentDetail{Appointment: *appt}

	patient, err := s.repo.GetPatientByID(ctx, appt.PatientID)
	if err != nil {
		return nil, fmt.Errorf("hydrate patient: %w", err)
	}
	detail.Patient = patient

	provider, err := s.repo.GetProviderByID(ctx, appt.ProviderID)
	if err != nil {
		return nil, fmt.Errorf("hydrate provider: %w", err)
	}
	detail.Provider = provider

	slot, err := s.repo.GetTimeSlotByID(ctx, appt.TimeSlotID)
	if err != nil {
		return nil, fmt.Errorf("hydrate time slot: %w", err)
	}
	detail.Slot = slot

	payment, err := s.repo.GetPaymentByAppointment(ctx, appt.ID)
	if err != nil {
		return nil, fmt.Errorf("hydrate payment: %w", err)
	}
	detail.Payment = payment

	return &detail, nil
}

// Provider administration

func (s *Service) CreateProvider(ctx context.Context, p *HealthcareProvider) (*HealthcareProvider, error) {
	return s.repo.CreateProvider(ctx, p)
}

func (s *Service) UpdateProvider(ctx context.Context, id uuid.UUID, params UpdateProviderParams) (*HealthcareProvider, error) {
	return s.repo.UpdateProvider(ctx, id, params)
}

func (s *Service) DeleteProvider(ctx context.Context, id uuid.UUID) error {
	return s.repo.DeleteProvider(ctx, id)
}

func (s *Service) GetProvider(ctx context.Context, id uuid.UUID) (*HealthcareProvider, error) {
	return s.repo.GetProviderByID(ctx, id)
}

func (s *Service) ListProviders(ctx context.Context, specialty string) ([]HealthcareProvider, error) {
	return s.repo.ListProviders(ctx, specialty)
}

// Time slot administration

func (s *Service) CreateTimeSlot(ctx context.Context, providerID uuid.UUID, startTime, endTime time.Time, available bool) (*TimeSlot, error) {
	if _, err := s.repo.GetProviderByID(ctx, providerID); err != nil {
		return nil, err
	}
	return s.repo.CreateTimeSlot(ctx, &TimeSlot{
		ProviderID: providerID,
		StartTime:  startTime,
		EndTime:    endTime,
		Available:  available,
	})
}

func (s *Service) UpdateTimeSlot(ctx context.Context, id uuid.UUID, params UpdateTimeSlotParams) (*TimeSlot, error) {
	return s.repo.UpdateTimeSlot(ctx, id, params)
}

func (s *Service) DeleteTimeSlot(ctx context.Context, id uuid.UUID) error {
	return s.repo.DeleteTimeSlot(ctx, id)
}

func (s *Service) ListProviderTimeSlots(ctx context.Context, providerID uuid.UUID) ([]TimeSlot, error) {
	return s.repo.ListProviderTimeSlots(ctx, providerID)
}

// Side channels. All three are best-effort: failures are logged and never
// propagate to the caller.

func (s *Service) recordAudit(ctx context.Context, action string, entityID uuid.UUID, details string) {
	s.audit.Record(ctx, action, entityID.String(), details)
}

func (s *Service) publishEvent(ctx context.Context, ev events.Event) {
	if err := s.events.Publish(ctx, ev); err != nil {
		log.Warn().Err(err).Str("event_type", ev.Type).
			Str("appointment_id", ev.AppointmentID.String()).
			Msg("event publish failed")
	}
}

func (s *Service) sendConfirmation(ctx context.Context, appt *Appointment, patient *Patient, slot *TimeSlot) {
	err := s.notifier.BookingConfirmed(ctx, notify.BookingConfirmation{
		Phone:              patient.Phone,
		PatientName:        patient.Name,
		AppointmentTime:    slot.StartTime,
		ConfirmationNumber: appt.ConfirmationNumber,
	})
	if err != nil {
		log.Warn().Err(err).Str("appointment_id", appt.ID.String()).
			Msg("confirmation notification failed")
	}
}
