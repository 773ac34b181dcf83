package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	var email *string

	err := row.Scan(
		&p.ID,
		&p.Name,
		&email,
		&p.Phone,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	p.Email = email
	return &p, nil
}

func scanProvider(row pgx.Row) (*HealthcareProvider, error) {
	var p HealthcareProvider

	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Specialty,
		&p.HospitalName,
		&p.BillingType,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProviderNotFound
		}
		return nil, err
	}

	return &p, nil
}

func scanTimeSlot(row pgx.Row) (*TimeSlot, error) {
	var s TimeSlot

	err := row.Scan(
		&s.ID,
		&s.ProviderID,
		&s.StartTime,
		&s.EndTime,
		&s.Available,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTimeSlotNotFound
		}
		return nil, err
	}

	return &s, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.ProviderID,
		&a.TimeSlotID,
		&a.Status,
		&a.BookingTime,
		&a.ConfirmationNumber,
		&a.PaymentRequired,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	return &a, nil
}

func scanPayment(row pgx.Row) (*Payment, error) {
	var p Payment

	err := row.Scan(
		&p.ID,
		&p.AppointmentID,
		&p.Amount,
		&p.Method,
		&p.TransactionID,
		&p.Status,
		&p.PaidAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pgx.ErrNoRows
		}
		return nil, err
	}

	return &p, nil
}

const appointmentColumns = `id, patient_id, provider_id, time_slot_id, status, booking_time, confirmation_number, payment_required, created_at, updated_at`
const timeSlotColumns = `id, provider_id, start_time, end_time, available, created_at, updated_at`
const providerColumns = `id, name, specialty, hospital_name, billing_type, created_at, updated_at`

// Patients

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, phone, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

// Providers

func (r *PgRepository) GetProviderByID(ctx context.Context, id uuid.UUID) (*HealthcareProvider, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+providerColumns+`
		FROM healthcare_providers
		WHERE id = $1
	`, id)
	return scanProvider(row)
}

func (r *PgRepository) ListProviders(ctx context.Context, specialty string) ([]HealthcareProvider, error) {
	query := `SELECT ` + providerColumns + ` FROM healthcare_providers`
	args := []any{}
	if specialty != "" {
		query += ` WHERE specialty = $1`
		args = append(args, specialty)
	}
	query += ` ORDER BY name`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []HealthcareProvider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *p)
	}
	return result, rows.Err()
}

func (r *PgRepository) CreateProvider(ctx context.Context, p *HealthcareProvider) (*HealthcareProvider, error) {
	id := p.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO healthcare_providers (id, name, specialty, hospital_name, billing_type, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		RETURNING `+providerColumns+`
	`, id, p.Name, p.Specialty, p.HospitalName, p.BillingType)
	return scanProvider(row)
}

func (r *PgRepository) UpdateProvider(ctx context.Context, id uuid.UUID, params UpdateProviderParams) (*HealthcareProvider, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE healthcare_providers
		SET name          = COALESCE($2, name),
		    specialty     = COALESCE($3, specialty),
		    hospital_name = COALESCE($4, hospital_name),
		    billing_type  = COALESCE($5, billing_type),
		    updated_at    = now()
		WHERE id = $1
		RETURNING `+providerColumns+`
	`, id, params.Name, params.Specialty, params.HospitalName, params.BillingType)
	return scanProvider(row)
}

func (r *PgRepository) DeleteProvider(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM healthcare_providers WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrProviderNotFound
	}
	return nil
}

// Time slots

func (r *PgRepository) GetTimeSlotByID(ctx context.Context, id uuid.UUID) (*TimeSlot, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+timeSlotColumns+`
		FROM time_slots
		WHERE id = $1
	`, id)
	return scanTimeSlot(row)
}

func (r *PgRepository) ListAvailableTimeSlots(ctx context.Context, providerID uuid.UUID, dayStart, dayEnd time.Time) ([]TimeSlot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+timeSlotColumns+`
		FROM time_slots
		WHERE provider_id = $1
		  AND available = true
		  AND start_time >= $2
		  AND start_time < $3
		ORDER BY start_time
	`, providerID, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectSlots(rows)
}

func (r *PgRepository) ListProviderTimeSlots(ctx context.Context, providerID uuid.UUID) ([]TimeSlot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+timeSlotColumns+`
		FROM time_slots
		WHERE provider_id = $1
		ORDER BY start_time
	`, providerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectSlots(rows)
}

func collectSlots(rows pgx.Rows) ([]TimeSlot, error) {
	var result []TimeSlot
	for rows.Next() {
		s, err := scanTimeSlot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}
	return result, rows.Err()
}

func (r *PgRepository) CreateTimeSlot(ctx context.Context, s *TimeSlot) (*TimeSlot, error) {
	id := s.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO time_slots (id, provider_id, start_time, end_time, available, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		RETURNING `+timeSlotColumns+`
	`, id, s.ProviderID, s.StartTime, s.EndTime, s.Available)
	return scanTimeSlot(row)
}

func (r *PgRepository) UpdateTimeSlot(ctx context.Context, id uuid.UUID, params UpdateTimeSlotParams) (*TimeSlot, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE time_slots
		SET start_time = COALESCE($2, start_time),
		    end_time   = COALESCE($3, end_time),
		    available  = COALESCE($4, available),
		    updated_at = now()
		WHERE id = $1
		RETURNING `+timeSlotColumns+`
	`, id, params.StartTime, params.EndTime, params.Available)
	return scanTimeSlot(row)
}

func (r *PgRepository) DeleteTimeSlot(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM time_slots WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTimeSlotNotFound
	}
	return nil
}

// pgExecer is satisfied by both the pool and a pgx.Tx, so the slot
// mutations below can run standalone or inside a transaction.
type pgExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// reserveSlot is the conditional update that makes concurrent bookings
// safe: only one of N racing requests sees RowsAffected == 1.
func reserveSlot(ctx context.Context, db pgExecer, id uuid.UUID) error {
	tag, err := db.Exec(ctx, `
		UPDATE time_slots
		SET available = false,
		    updated_at = now()
		WHERE id = $1
		  AND available = true
	`, id)
	if err != nil {
		return fmt.Errorf("reserve time slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSlotUnavailable
	}
	return nil
}

func releaseSlot(ctx context.Context, db pgExecer, id uuid.UUID) error {
	tag, err := db.Exec(ctx, `
		UPDATE time_slots
		SET available = true,
		    updated_at = now()
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("release time slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTimeSlotNotFound
	}
	return nil
}

func (r *PgRepository) ReserveTimeSlot(ctx context.Context, id uuid.UUID) error {
	return reserveSlot(ctx, r.pool, id)
}

func (r *PgRepository) ReleaseTimeSlot(ctx context.Context, id uuid.UUID) error {
	return releaseSlot(ctx, r.pool, id)
}

// txSlotAllocator scopes slot mutations to the surrounding transaction, so
// rule side effects commit or roll back together with the status change.
type txSlotAllocator struct {
	tx pgx.Tx
}

func (a txSlotAllocator) ReserveTimeSlot(ctx context.Context, id uuid.UUID) error {
	return reserveSlot(ctx, a.tx, id)
}

func (a txSlotAllocator) ReleaseTimeSlot(ctx context.Context, id uuid.UUID) error {
	return releaseSlot(ctx, a.tx, id)
}

// Appointments

func (r *PgRepository) CreateBooking(ctx context.Context, appt *Appointment) (*Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin booking tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := reserveSlot(ctx, tx, appt.TimeSlotID); err != nil {
		return nil, err
	}

	id := appt.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, provider_id, time_slot_id, status, booking_time, confirmation_number, payment_required, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		RETURNING `+appointmentColumns+`
	`, id, appt.PatientID, appt.ProviderID, appt.TimeSlotID, appt.Status, appt.BookingTime, appt.ConfirmationNumber, appt.PaymentRequired)

	created, err := scanAppointment(row)
	if err != nil {
		return nil, fmt.Errorf("insert appointment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit booking tx: %w", err)
	}

	return created, nil
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) GetAppointmentByConfirmationNumber(ctx context.Context, confirmationNumber string) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE confirmation_number = $1
	`, confirmationNumber)
	return scanAppointment(row)
}

func (r *PgRepository) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY booking_time DESC
	`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	return result, rows.Err()
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns+`
	`, id, to, from)

	updated, err := scanAppointment(row)
	if errors.Is(err, ErrAppointmentNotFound) {
		// Distinguish a missing row from a row whose status moved on.
		var exists bool
		if qerr := r.pool.QueryRow(ctx, `
			SELECT EXISTS (SELECT 1 FROM appointments WHERE id = $1)
		`, id).Scan(&exists); qerr != nil {
			return nil, qerr
		}
		if exists {
			return nil, ErrStatusConflict
		}
		return nil, ErrAppointmentNotFound
	}
	return updated, err
}

// TransitionAppointmentStatus locks the appointment row, runs the rule side
// effects against a transaction-scoped allocator, and commits the status
// change, so a lost race or a failed rule never leaves a half-applied
// transition behind.
func (r *PgRepository) TransitionAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus, apply func(ctx context.Context, slots SlotAllocator) error) (*Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transition tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var current AppointmentStatus
	err = tx.QueryRow(ctx, `
		SELECT status FROM appointments WHERE id = $1 FOR UPDATE
	`, id).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, fmt.Errorf("lock appointment row: %w", err)
	}
	if current != from {
		return nil, ErrStatusConflict
	}

	if apply != nil {
		if err := apply(ctx, txSlotAllocator{tx: tx}); err != nil {
			return nil, err
		}
	}

	row := tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns+`
	`, id, to)

	updated, err := scanAppointment(row)
	if err != nil {
		return nil, fmt.Errorf("commit status change: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transition tx: %w", err)
	}

	return updated, nil
}

// Payments

func (r *PgRepository) CreatePayment(ctx context.Context, p *Payment) (*Payment, error) {
	id := p.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO payments (id, appointment_id, amount, payment_method, transaction_id, status, paid_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, appointment_id, amount, payment_method, transaction_id, status, paid_at
	`, id, p.AppointmentID, p.Amount, p.Method, p.TransactionID, p.Status, p.PaidAt)
	return scanPayment(row)
}

func (r *PgRepository) GetPaymentByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Payment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, appointment_id, amount, payment_method, transaction_id, status, paid_at
		FROM payments
		WHERE appointment_id = $1
	`, appointmentID)

	p, err := scanPayment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

func (r *PgRepository) ConfirmationNumberExists(ctx context.Context, confirmationNumber string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM appointments WHERE confirmation_number = $1)
	`, confirmationNumber).Scan(&exists)
	return exists, err
}
