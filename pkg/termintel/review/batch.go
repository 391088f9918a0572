package review

import (
	"fmt"

	"github.com/cognicore/termintel/pkg/termintel/internalerr"
)

// Status is the lifecycle state of a suggestion within a batch.
type Status string

const (
	StatusGenerated   Status = "generated"
	StatusUnderReview Status = "under_review"
	StatusAccepted    Status = "accepted"
	StatusRejected    Status = "rejected"
	StatusExecuted    Status = "executed"
)

// transitions lists the legal next states. Rejected and executed are terminal.
var transitions = map[Status][]Status{
	StatusGenerated:   {StatusUnderReview},
	StatusUnderReview: {StatusAccepted, StatusRejected},
	StatusAccepted:    {StatusExecuted},
}

// CanTransition reports whether from -> to is legal.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Batch tracks the status of each suggestion in one review round.
type Batch struct {
	ID     string
	status map[string]Status
	order  []string
}

// NewBatch registers suggestions in the generated state. Repeated ids are
// registered once.
func NewBatch(id string, suggestionIDs ...string) *Batch {
	b := &Batch{ID: id, status: make(map[string]Status, len(suggestionIDs))}
	for _, sid := range suggestionIDs {
		if _, ok := b.status[sid]; ok {
			continue
		}
		b.status[sid] = StatusGenerated
		b.order = append(b.order, sid)
	}
	return b
}

// Open moves every generated suggestion under review.
func (b *Batch) Open() {
	for _, sid := range b.order {
		if b.status[sid] == StatusGenerated {
			b.status[sid] = StatusUnderReview
		}
	}
}

// Transition moves one suggestion to a new state.
func (b *Batch) Transition(suggestionID string, to Status) error {
	from, ok := b.status[suggestionID]
	if !ok {
		return fmt.Errorf("%w: %s", internalerr.ErrNotFound, suggestionID)
	}
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s %s -> %s", internalerr.ErrInvalidTransition, suggestionID, from, to)
	}
	b.status[suggestionID] = to
	return nil
}

// Status returns the current state of a suggestion.
func (b *Batch) Status(suggestionID string) (Status, bool) {
	s, ok := b.status[suggestionID]
	return s, ok
}

// Statuses returns a copy of all states.
func (b *Batch) Statuses() map[string]Status {
	out := make(map[string]Status, len(b.status))
	for k, v := range b.status {
		out[k] = v
	}
	return out
}
