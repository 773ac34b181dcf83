package booking

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is a mutex-guarded in-memory Repository. It keeps the
// same compare-and-set semantics as the Postgres implementation, so the
// concurrency tests exercise the real reservation contract.
type MemoryRepository struct {
	mu           sync.Mutex
	patients     map[uuid.UUID]Patient
	providers    map[uuid.UUID]HealthcareProvider
	slots        map[uuid.UUID]TimeSlot
	appointments map[uuid.UUID]Appointment
	payments     map[uuid.UUID]Payment // keyed by appointment id
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		patients:     make(map[uuid.UUID]Patient),
		providers:    make(map[uuid.UUID]HealthcareProvider),
		slots:        make(map[uuid.UUID]TimeSlot),
		appointments: make(map[uuid.UUID]Appointment),
		payments:     make(map[uuid.UUID]Payment),
	}
}

// PutPatient seeds a patient. Patient CRUD itself is owned by an external
// administrative service.
func (r *MemoryRepository) PutPatient(p Patient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patients[p.ID] = p
}

func (r *MemoryRepository) GetPatientByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return &p, nil
}

func (r *MemoryRepository) GetProviderByID(_ context.Context, id uuid.UUID) (*HealthcareProvider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.providers[id]
	if !ok {
		return nil, ErrProviderNotFound
	}
	return &p, nil
}

func (r *MemoryRepository) ListProviders(_ context.Context, specialty string) ([]HealthcareProvider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []HealthcareProvider
	for _, p := range r.providers {
		if specialty == "" || p.Specialty == specialty {
			result = append(result, p)
		}
	}
	return result, nil
}

func (r *MemoryRepository) CreateProvider(_ context.Context, p *HealthcareProvider) (*HealthcareProvider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	created := *p
	if created.ID == uuid.Nil {
		created.ID = uuid.New()
	}
	now := time.Now()
	created.CreatedAt = now
	created.UpdatedAt = now
	r.providers[created.ID] = created
	return &created, nil
}

func (r *MemoryRepository) UpdateProvider(_ context.Context, id uuid.UUID, params UpdateProviderParams) (*HealthcareProvider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.providers[id]
	if !ok {
		return nil, ErrProviderNotFound
	}
	if params.Name != nil {
		p.Name = *params.Name
	}
	if params.Specialty != nil {
		p.Specialty = *params.Specialty
	}
	if params.HospitalName != nil {
		p.HospitalName = *params.HospitalName
	}
	if params.BillingType != nil {
		p.BillingType = *params.BillingType
	}
	p.UpdatedAt = time.Now()
	r.providers[id] = p
	return &p, nil
}

func (r *MemoryRepository) DeleteProvider(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.providers[id]; !ok {
		return ErrProviderNotFound
	}
	delete(r.providers, id)
	return nil
}

func (r *MemoryRepository) GetTimeSlotByID(_ context.Context, id uuid.UUID) (*TimeSlot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[id]
	if !ok {
		return nil, ErrTimeSlotNotFound
	}
	return &s, nil
}

func (r *MemoryRepository) ListAvailableTimeSlots(_ context.Context, providerID uuid.UUID, dayStart, dayEnd time.Time) ([]TimeSlot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []TimeSlot
	for _, s := range r.slots {
		if s.ProviderID != providerID || !s.Available {
			continue
		}
		if s.StartTime.Before(dayStart) || !s.StartTime.Before(dayEnd) {
			continue
		}
		result = append(result, s)
	}
	return result, nil
}

func (r *MemoryRepository) ListProviderTimeSlots(_ context.Context, providerID uuid.UUID) ([]TimeSlot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []TimeSlot
	for _, s := range r.slots {
		if s.ProviderID == providerID {
			result = append(result, s)
		}
	}
	return result, nil
}

func (r *MemoryRepository) CreateTimeSlot(_ context.Context, s *TimeSlot) (*TimeSlot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	created := *s
	if created.ID == uuid.Nil {
		created.ID = uuid.New()
	}
	now := time.Now()
	created.CreatedAt = now
	created.UpdatedAt = now
	r.slots[created.ID] = created
	return &created, nil
}

func (r *MemoryRepository) UpdateTimeSlot(_ context.Context, id uuid.UUID, params UpdateTimeSlotParams) (*TimeSlot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.slots[id]
	if !ok {
		return nil, ErrTimeSlotNotFound
	}
	if params.StartTime != nil {
		s.StartTime = *params.StartTime
	}
	if params.EndTime != nil {
		s.EndTime = *params.EndTime
	}
	if params.Available != nil {
		s.Available = *params.Available
	}
	s.UpdatedAt = time.Now()
	r.slots[id] = s
	return &s, nil
}

func (r *MemoryRepository) DeleteTimeSlot(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.slots[id]; !ok {
		return ErrTimeSlotNotFound
	}
	delete(r.slots, id)
	return nil
}

func (r *MemoryRepository) ReserveTimeSlot(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reserveLocked(id)
}

func (r *MemoryRepository) reserveLocked(id uuid.UUID) error {
	s, ok := r.slots[id]
	if !ok {
		return ErrSlotUnavailable
	}
	if !s.Available {
		return ErrSlotUnavailable
	}
	s.Available = false
	s.UpdatedAt = time.Now()
	r.slots[id] = s
	return nil
}

func (r *MemoryRepository) ReleaseTimeSlot(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.releaseLocked(id)
}

func (r *MemoryRepository) releaseLocked(id uuid.UUID) error {
	s, ok := r.slots[id]
	if !ok {
		return ErrTimeSlotNotFound
	}
	s.Available = true
	s.UpdatedAt = time.Now()
	r.slots[id] = s
	return nil
}

// lockedSlotAllocator mutates slots while the repository mutex is already
// held, mirroring the transaction-scoped allocator of the Postgres
// implementation.
type lockedSlotAllocator struct {
	repo *MemoryRepository
}

func (a lockedSlotAllocator) ReserveTimeSlot(_ context.Context, id uuid.UUID) error {
	return a.repo.reserveLocked(id)
}

func (a lockedSlotAllocator) ReleaseTimeSlot(_ context.Context, id uuid.UUID) error {
	return a.repo.releaseLocked(id)
}

func (r *MemoryRepository) CreateBooking(_ context.Context, appt *Appointment) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Reserve and insert under one lock hold; nothing to roll back because
	// the insert below cannot fail once the reservation succeeded.
	if err := r.reserveLocked(appt.TimeSlotID); err != nil {
		return nil, err
	}

	created := *appt
	if created.ID == uuid.Nil {
		created.ID = uuid.New()
	}
	now := time.Now()
	created.CreatedAt = now
	created.UpdatedAt = now
	r.appointments[created.ID] = created
	return &created, nil
}

func (r *MemoryRepository) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (r *MemoryRepository) GetAppointmentByConfirmationNumber(_ context.Context, confirmationNumber string) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.appointments {
		if a.ConfirmationNumber == confirmationNumber {
			return &a, nil
		}
	}
	return nil, ErrAppointmentNotFound
}

func (r *MemoryRepository) ListAppointmentsByPatient(_ context.Context, patientID uuid.UUID) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []Appointment
	for _, a := range r.appointments {
		if a.PatientID == patientID {
			result = append(result, a)
		}
	}
	return result, nil
}

func (r *MemoryRepository) UpdateAppointmentStatus(_ context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if a.Status != from {
		return nil, ErrStatusConflict
	}
	a.Status = to
	a.UpdatedAt = time.Now()
	r.appointments[id] = a
	return &a, nil
}

func (r *MemoryRepository) TransitionAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus, apply func(ctx context.Context, slots SlotAllocator) error) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if a.Status != from {
		return nil, ErrStatusConflict
	}

	// Snapshot the linked slot so a failed apply leaves no partial
	// mutation, matching the rollback of the Postgres implementation.
	slotBefore, hadSlot := r.slots[a.TimeSlotID]
	if apply != nil {
		if err := apply(ctx, lockedSlotAllocator{repo: r}); err != nil {
			if hadSlot {
				r.slots[a.TimeSlotID] = slotBefore
			}
			return nil, err
		}
	}

	a.Status = to
	a.UpdatedAt = time.Now()
	r.appointments[id] = a
	return &a, nil
}

func (r *MemoryRepository) CreatePayment(_ context.Context, p *Payment) (*Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	created := *p
	if created.ID == uuid.Nil {
		created.ID = uuid.New()
	}
	r.payments[created.AppointmentID] = created
	return &created, nil
}

func (r *MemoryRepository) GetPaymentByAppointment(_ context.Context, appointmentID uuid.UUID) (*Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[appointmentID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r *MemoryRepository) ConfirmationNumberExists(_ context.Context, confirmationNumber string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.appointments {
		if a.ConfirmationNumber == confirmationNumber {
			return true, nil
		}
	}
	return false, nil
}
