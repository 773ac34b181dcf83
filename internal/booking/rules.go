package booking

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

var ErrInvalidStatusTransition = errors.New("invalid status transition")

// StatusRule is a pluggable side effect applied when an appointment moves
// between statuses. Rules keep the slot-availability invariant: a slot is
// unavailable exactly while a non-cancelled appointment holds it. The
// allocator is handed in per call so slot mutations join whatever
// transaction commits the status change.
type StatusRule interface {
	// Supports reports whether this rule applies to the transition.
	Supports(current, next AppointmentStatus) bool
	// Apply performs the rule's side effects for the transition.
	Apply(ctx context.Context, appt *Appointment, slots SlotAllocator) error
	// Priority orders rule application; lower runs first. The base rules are
	// mutually exclusive, but a larger rule set needs explicit ordering to
	// keep conflicting side effects deterministic.
	Priority() int
}

// legalTransitions is the explicit transition table. Anything not listed is
// rejected before any rule runs, so bookkeeping never depends on callers
// sending sensible statuses. COMPLETED is terminal; CANCELLED allows
// re-entry to its pre-cancellation states.
var legalTransitions = map[AppointmentStatus][]AppointmentStatus{
	StatusPendingPayment: {StatusConfirmed, StatusCancelled},
	StatusConfirmed:      {StatusCancelled, StatusCompleted},
	StatusCancelled:      {StatusPendingPayment, StatusConfirmed},
	StatusCompleted:      {},
}

// CanTransition reports whether from -> to is in the transition table.
func CanTransition(from, to AppointmentStatus) bool {
	for _, allowed := range legalTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// RuleEngine evaluates every registered rule against an attempted
// transition and applies the side effects of each rule that supports it.
type RuleEngine struct {
	rules []StatusRule
}

func NewRuleEngine(rules ...StatusRule) *RuleEngine {
	sorted := make([]StatusRule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority() < sorted[j].Priority()
	})
	return &RuleEngine{rules: sorted}
}

// Apply validates the transition and runs all supporting rules in priority
// order against the given allocator. It must run inside the same
// transaction that commits the status change.
func (e *RuleEngine) Apply(ctx context.Context, current, next AppointmentStatus, appt *Appointment, slots SlotAllocator) error {
	if !CanTransition(current, next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, current, next)
	}

	for _, rule := range e.rules {
		if !rule.Supports(current, next) {
			continue
		}
		if err := rule.Apply(ctx, appt, slots); err != nil {
			return fmt.Errorf("apply status rule: %w", err)
		}
	}
	return nil
}

// ReleaseOnCancelRule frees the linked time slot whenever an appointment
// is cancelled.
type ReleaseOnCancelRule struct{}

func NewReleaseOnCancelRule() *ReleaseOnCancelRule {
	return &ReleaseOnCancelRule{}
}

func (r *ReleaseOnCancelRule) Supports(_, next AppointmentStatus) bool {
	return next == StatusCancelled
}

func (r *ReleaseOnCancelRule) Apply(ctx context.Context, appt *Appointment, slots SlotAllocator) error {
	// Release is idempotent, so no availability pre-check is needed.
	return slots.ReleaseTimeSlot(ctx, appt.TimeSlotID)
}

func (r *ReleaseOnCancelRule) Priority() int { return 10 }

// RestoreOnUncancelRule re-reserves the linked slot when a cancelled
// appointment is brought back. It only acts when the slot is still free:
// losing the race to another appointment is a silent no-op, never an
// eviction.
type RestoreOnUncancelRule struct{}

func NewRestoreOnUncancelRule() *RestoreOnUncancelRule {
	return &RestoreOnUncancelRule{}
}

func (r *RestoreOnUncancelRule) Supports(current, next AppointmentStatus) bool {
	return current == StatusCancelled && next != StatusCancelled
}

func (r *RestoreOnUncancelRule) Apply(ctx context.Context, appt *Appointment, slots SlotAllocator) error {
	err := slots.ReserveTimeSlot(ctx, appt.TimeSlotID)
	if errors.Is(err, ErrSlotUnavailable) {
		return nil
	}
	return err
}

func (r *RestoreOnUncancelRule) Priority() int { return 20 }
