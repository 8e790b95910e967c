package funnel

import "time"

// FollowUpDelay is how long after escalation a manager follow-up is due.
const FollowUpDelay = 24 * time.Hour

// Update is the validated subset of a structured lead update. Nil fields
// were not present in the generated output.
type Update struct {
	Status                    *Status
	Budget                    *string
	ExpectedPurchaseTimeframe *string
	Type                      *string
	Name                      *string
}

// Empty reports whether the update carries no field at all.
func (u Update) Empty() bool {
	return u.Status == nil && u.Budget == nil && u.ExpectedPurchaseTimeframe == nil && u.Type == nil && u.Name == nil
}

// Transition is the outcome of applying an update to a lead's status.
type Transition struct {
	Previous Status
	Next     Status

	// ContactedAt is set when the lead leaves nuevo for the first time.
	ContactedAt *time.Time
	// Escalated is true only on the edge into manager.
	Escalated bool
	// FollowUpAt is set together with Escalated.
	FollowUpAt *time.Time
}

// Changed reports whether the status moved.
func (t Transition) Changed() bool { return t.Previous != t.Next }

// Apply computes the next status. Any in-vocabulary proposal is accepted;
// edges are not validated. A completion hint without a proposed status
// proposes manager, an explicit proposal always wins over the hint.
func Apply(current Status, upd Update, shouldEscalate bool, now time.Time) Transition {
	t := Transition{Previous: current, Next: current}

	switch {
	case upd.Status != nil && upd.Status.Valid():
		t.Next = *upd.Status
	case shouldEscalate:
		t.Next = StatusManager
	}

	if current == StatusNuevo && t.Next != StatusNuevo {
		stamp := now
		t.ContactedAt = &stamp
	}
	if current != StatusManager && t.Next == StatusManager {
		due := now.Add(FollowUpDelay)
		t.Escalated = true
		t.FollowUpAt = &due
	}
	return t
}
