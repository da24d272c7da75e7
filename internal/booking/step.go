// Package booking drives the reservation wizard: service selection, date and
// time selection with the reservation dialog, and submission.
package booking

import "slices"

// Step is the current page of the wizard.
type Step string

const (
	StepLanding           Step = "landing"
	StepServiceSelection  Step = "service_selection"
	StepDateTimeSelection Step = "date_time_selection"
	StepConfirmation      Step = "confirmation"
)

// FSM holds the allowed step transitions.
type FSM struct {
	transitions map[Step][]Step
}

// NewFSM creates the wizard transition table. Confirmation is terminal.
func NewFSM() *FSM {
	return &FSM{
		transitions: map[Step][]Step{
			StepLanding:           {StepServiceSelection},
			StepServiceSelection:  {StepDateTimeSelection, StepLanding},
			StepDateTimeSelection: {StepConfirmation, StepServiceSelection},
			StepConfirmation:      {},
		},
	}
}

// CanTransition checks if transition is allowed.
func (f *FSM) CanTransition(from, to Step) bool {
	return slices.Contains(f.transitions[from], to)
}
