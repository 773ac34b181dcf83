package booking

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to AppointmentStatus
		want     bool
	}{
		{StatusPendingPayment, StatusConfirmed, true},
		{StatusPendingPayment, StatusCancelled, true},
		{StatusPendingPayment, StatusCompleted, false},
		{StatusConfirmed, StatusCancelled, true},
		{StatusConfirmed, StatusCompleted, true},
		{StatusConfirmed, StatusPendingPayment, false},
		{StatusCancelled, StatusConfirmed, true},
		{StatusCancelled, StatusPendingPayment, true},
		{StatusCancelled, StatusCompleted, false},
		{StatusCancelled, StatusCancelled, false},
		{StatusCompleted, StatusConfirmed, false},
		{StatusCompleted, StatusCancelled, false},
	}

	for _, tc := range cases {
		assert.Equalf(t, tc.want, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestReleaseOnCancelRuleSupports(t *testing.T) {
	rule := NewReleaseOnCancelRule()

	assert.True(t, rule.Supports(StatusConfirmed, StatusCancelled))
	assert.True(t, rule.Supports(StatusPendingPayment, StatusCancelled))
	assert.False(t, rule.Supports(StatusPendingPayment, StatusConfirmed))
	assert.False(t, rule.Supports(StatusConfirmed, StatusCompleted))
}

func TestRestoreOnUncancelRuleSupports(t *testing.T) {
	rule := NewRestoreOnUncancelRule()

	assert.True(t, rule.Supports(StatusCancelled, StatusConfirmed))
	assert.True(t, rule.Supports(StatusCancelled, StatusPendingPayment))
	assert.False(t, rule.Supports(StatusCancelled, StatusCancelled))
	assert.False(t, rule.Supports(StatusConfirmed, StatusCancelled))
}

func TestReleaseOnCancelFreesSlot(t *testing.T) {
	repo := NewMemoryRepository()
	slot, err := repo.CreateTimeSlot(context.Background(), &TimeSlot{
		ProviderID: uuid.New(),
		StartTime:  time.Now(),
		EndTime:    time.Now().Add(30 * time.Minute),
		Available:  false,
	})
	require.NoError(t, err)

	rule := NewReleaseOnCancelRule()
	err = rule.Apply(context.Background(), &Appointment{TimeSlotID: slot.ID}, repo)
	require.NoError(t, err)

	freed, err := repo.GetTimeSlotByID(context.Background(), slot.ID)
	require.NoError(t, err)
	assert.True(t, freed.Available)
}

func TestRestoreOnUncancelTakenSlotIsNoOp(t *testing.T) {
	repo := NewMemoryRepository()
	slot, err := repo.CreateTimeSlot(context.Background(), &TimeSlot{
		ProviderID: uuid.New(),
		StartTime:  time.Now(),
		EndTime:    time.Now().Add(30 * time.Minute),
		Available:  false,
	})
	require.NoError(t, err)

	rule := NewRestoreOnUncancelRule()
	err = rule.Apply(context.Background(), &Appointment{TimeSlotID: slot.ID}, repo)
	require.NoError(t, err)

	stored, err := repo.GetTimeSlotByID(context.Background(), slot.ID)
	require.NoError(t, err)
	assert.False(t, stored.Available)
}

// orderedRule records its application order through a shared slice.
type orderedRule struct {
	priority int
	order    *[]int
}

func (r *orderedRule) Supports(_, _ AppointmentStatus) bool { return true }

func (r *orderedRule) Apply(_ context.Context, _ *Appointment, _ SlotAllocator) error {
	*r.order = append(*r.order, r.priority)
	return nil
}

func (r *orderedRule) Priority() int { return r.priority }

func TestRuleEngineAppliesInPriorityOrder(t *testing.T) {
	var order []int
	engine := NewRuleEngine(
		&orderedRule{priority: 30, order: &order},
		&orderedRule{priority: 10, order: &order},
		&orderedRule{priority: 20, order: &order},
	)

	err := engine.Apply(context.Background(), StatusConfirmed, StatusCancelled, &Appointment{}, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{10, 20, 30}, order)
}

func TestRuleEngineRejectsIllegalTransition(t *testing.T) {
	var order []int
	engine := NewRuleEngine(&orderedRule{priority: 1, order: &order})

	err := engine.Apply(context.Background(), StatusCompleted, StatusConfirmed, &Appointment{}, nil)
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)
	assert.Empty(t, order, "no rule may run for a rejected transition")
}
