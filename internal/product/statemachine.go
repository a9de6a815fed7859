// Package product implements the CQRS write-side Product aggregate
// (spec.md §3, §4.3), grounded on the teacher's transactional-outbox
// status state machine (components/transaction/internal/adapters/postgres/outbox,
// reconstructed from its state_machine_test.go — see SPEC_FULL.md §2.3)
// whose ValidTransitions-map + CanTransitionTo/IsTerminal shape is reused
// here for product status.
package product

// Status is the Product aggregate's lifecycle state (spec.md §3).
type Status string

const (
	StatusDraft        Status = "DRAFT"
	StatusActive       Status = "ACTIVE"
	StatusDiscontinued Status = "DISCONTINUED"
)

// ValidTransitions enumerates the allowed status transitions (spec.md
// §4.3: "DRAFT→ACTIVE, DRAFT→DISCONTINUED, ACTIVE→DISCONTINUED;
// DISCONTINUED is terminal").
var ValidTransitions = map[Status][]Status{
	StatusDraft:        {StatusActive, StatusDiscontinued},
	StatusActive:       {StatusDiscontinued},
	StatusDiscontinued: {},
}

// CanTransitionTo reports whether the transition from s to target is
// allowed.
func (s Status) CanTransitionTo(target Status) bool {
	for _, allowed := range ValidTransitions[s] {
		if allowed == target {
			return true
		}
	}

	return false
}

// IsTerminal reports whether s has no outgoing transitions.
func (s Status) IsTerminal() bool {
	return len(ValidTransitions[s]) == 0
}
