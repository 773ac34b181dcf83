package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedSlotForRepo(t *testing.T, repo *MemoryRepository, available bool) TimeSlot {
	t.Helper()
	start := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	slot, err := repo.CreateTimeSlot(context.Background(), &TimeSlot{
		ProviderID: uuid.New(),
		StartTime:  start,
		EndTime:    start.Add(30 * time.Minute),
		Available:  available,
	})
	require.NoError(t, err)
	return *slot
}

// TestReserveTimeSlotIsAtomic hammers one slot from many goroutines: the
// compare-and-set must admit exactly one winner.
func TestReserveTimeSlotIsAtomic(t *testing.T) {
	repo := NewMemoryRepository()
	slot := seedSlotForRepo(t, repo, true)

	const n = 50
	results := make([]error, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = repo.ReserveTimeSlot(context.Background(), slot.ID)
		}(i)
	}
	wg.Wait()

	var won, lost int
	for _, err := range results {
		if err == nil {
			won++
		} else {
			assert.ErrorIs(t, err, ErrSlotUnavailable)
			lost++
		}
	}
	assert.Equal(t, 1, won)
	assert.Equal(t, n-1, lost)
}

func TestReleaseTimeSlotIsIdempotent(t *testing.T) {
	repo := NewMemoryRepository()
	slot := seedSlotForRepo(t, repo, false)

	require.NoError(t, repo.ReleaseTimeSlot(context.Background(), slot.ID))
	require.NoError(t, repo.ReleaseTimeSlot(context.Background(), slot.ID))

	stored, err := repo.GetTimeSlotByID(context.Background(), slot.ID)
	require.NoError(t, err)
	assert.True(t, stored.Available)
}

func TestCreateBookingReservesSlot(t *testing.T) {
	repo := NewMemoryRepository()
	slot := seedSlotForRepo(t, repo, true)

	appt, err := repo.CreateBooking(context.Background(), &Appointment{
		PatientID:          uuid.New(),
		ProviderID:         slot.ProviderID,
		TimeSlotID:         slot.ID,
		Status:             StatusConfirmed,
		BookingTime:        time.Now(),
		ConfirmationNumber: "APT-0A1B2C3D",
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, appt.ID)

	stored, err := repo.GetTimeSlotByID(context.Background(), slot.ID)
	require.NoError(t, err)
	assert.False(t, stored.Available)

	// Second booking of the same slot loses.
	_, err = repo.CreateBooking(context.Background(), &Appointment{
		PatientID:          uuid.New(),
		ProviderID:         slot.ProviderID,
		TimeSlotID:         slot.ID,
		Status:             StatusConfirmed,
		BookingTime:        time.Now(),
		ConfirmationNumber: "APT-4E5F6071",
	})
	assert.ErrorIs(t, err, ErrSlotUnavailable)
}

func TestUpdateAppointmentStatusCAS(t *testing.T) {
	repo := NewMemoryRepository()
	slot := seedSlotForRepo(t, repo, true)

	appt, err := repo.CreateBooking(context.Background(), &Appointment{
		PatientID:          uuid.New(),
		ProviderID:         slot.ProviderID,
		TimeSlotID:         slot.ID,
		Status:             StatusPendingPayment,
		BookingTime:        time.Now(),
		ConfirmationNumber: "APT-0A1B2C3D",
	})
	require.NoError(t, err)

	updated, err := repo.UpdateAppointmentStatus(context.Background(), appt.ID, StatusPendingPayment, StatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, updated.Status)

	// A stale expected status is a conflict, not a missing row.
	_, err = repo.UpdateAppointmentStatus(context.Background(), appt.ID, StatusPendingPayment, StatusCancelled)
	assert.ErrorIs(t, err, ErrStatusConflict)

	_, err = repo.UpdateAppointmentStatus(context.Background(), uuid.New(), StatusConfirmed, StatusCancelled)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestTransitionAppointmentStatusRollsBackSideEffects(t *testing.T) {
	repo := NewMemoryRepository()
	slot := seedSlotForRepo(t, repo, true)

	appt, err := repo.CreateBooking(context.Background(), &Appointment{
		PatientID:          uuid.New(),
		ProviderID:         slot.ProviderID,
		TimeSlotID:         slot.ID,
		Status:             StatusConfirmed,
		BookingTime:        time.Now(),
		ConfirmationNumber: "APT-0A1B2C3D",
	})
	require.NoError(t, err)

	failing := errors.New("rule blew up")
	_, err = repo.TransitionAppointmentStatus(context.Background(), appt.ID, StatusConfirmed, StatusCancelled,
		func(ctx context.Context, slots SlotAllocator) error {
			require.NoError(t, slots.ReleaseTimeSlot(ctx, slot.ID))
			return failing
		})
	assert.ErrorIs(t, err, failing)

	// The released slot snapshot was restored and the status never moved.
	stored, err := repo.GetTimeSlotByID(context.Background(), slot.ID)
	require.NoError(t, err)
	assert.False(t, stored.Available)

	kept, err := repo.GetAppointmentByID(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, kept.Status)
}

func TestTransitionAppointmentStatusStaleFrom(t *testing.T) {
	repo := NewMemoryRepository()
	slot := seedSlotForRepo(t, repo, true)

	appt, err := repo.CreateBooking(context.Background(), &Appointment{
		PatientID:          uuid.New(),
		ProviderID:         slot.ProviderID,
		TimeSlotID:         slot.ID,
		Status:             StatusConfirmed,
		BookingTime:        time.Now(),
		ConfirmationNumber: "APT-0A1B2C3D",
	})
	require.NoError(t, err)

	applied := false
	_, err = repo.TransitionAppointmentStatus(context.Background(), appt.ID, StatusPendingPayment, StatusCancelled,
		func(ctx context.Context, slots SlotAllocator) error {
			applied = true
			return nil
		})
	assert.ErrorIs(t, err, ErrStatusConflict)
	assert.False(t, applied, "side effects must not run for a stale status")
}

func TestConfirmationNumberExists(t *testing.T) {
	repo := NewMemoryRepository()
	slot := seedSlotForRepo(t, repo, true)

	_, err := repo.CreateBooking(context.Background(), &Appointment{
		PatientID:          uuid.New(),
		ProviderID:         slot.ProviderID,
		TimeSlotID:         slot.ID,
		Status:             StatusConfirmed,
		BookingTime:        time.Now(),
		ConfirmationNumber: "APT-0A1B2C3D",
	})
	require.NoError(t, err)

	exists, err := repo.ConfirmationNumberExists(context.Background(), "APT-0A1B2C3D")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.ConfirmationNumberExists(context.Background(), "APT-FFFFFFFF")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestUpdateProviderPartialFields(t *testing.T) {
	repo := NewMemoryRepository()
	provider, err := repo.CreateProvider(context.Background(), &HealthcareProvider{
		Name:         "Dr. Silva",
		Specialty:    "Cardiology",
		HospitalName: "Central Hospital",
		BillingType:  BillingGovernment,
	})
	require.NoError(t, err)

	newName := "Dr. Perera"
	updated, err := repo.UpdateProvider(context.Background(), provider.ID, UpdateProviderParams{Name: &newName})
	require.NoError(t, err)

	assert.Equal(t, "Dr. Perera", updated.Name)
	assert.Equal(t, "Cardiology", updated.Specialty)
	assert.Equal(t, BillingGovernment, updated.BillingType)
}
