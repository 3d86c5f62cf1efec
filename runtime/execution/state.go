package execution

import (
	"errors"
	"fmt"

	"github.com/qmuntal/stateless"
)

// Category groups specific states into the coarse lifecycle phases used by
// promotion and dispatch.
type Category string

const (
	CategoryQueued             Category = "QUEUED"
	CategoryWaitingOnResources Category = "WAITING_ON_RESOURCES"
	CategoryExecuting          Category = "EXECUTING"
	CategoryHolding            Category = "HOLDING"
	CategoryDone               Category = "DONE"
)

// IsTerminal returns true for categories that stop automatic promotion
func (c Category) IsTerminal() bool {
	return c == CategoryDone || c == CategoryHolding
}

// State represents a processor state: a specific name within a category,
// with an optional reason.
type State struct {
	Name       string   `json:"name,omitempty" yaml:"name,omitempty"`
	Category   Category `json:"category,omitempty" yaml:"category,omitempty"`
	Message    string   `json:"message,omitempty" yaml:"message,omitempty"`
	Revertable bool     `json:"revertable,omitempty" yaml:"revertable,omitempty"`
}

const (
	NameQueued             = "Queued"
	NameWaitingOnResources = "WaitingOnResources"
	NameExecuting          = "Executing"
	NamePaused             = "Paused"
	NameSuccess            = "Success"
	NameFailure            = "Failure"
	NameKilled             = "Killed"
)

var (
	StateQueued             = State{Name: NameQueued, Category: CategoryQueued}
	StateWaitingOnResources = State{Name: NameWaitingOnResources, Category: CategoryWaitingOnResources}
	StateExecuting          = State{Name: NameExecuting, Category: CategoryExecuting, Revertable: true}
	StatePaused             = State{Name: NamePaused, Category: CategoryHolding, Revertable: true}
	StateSuccess            = State{Name: NameSuccess, Category: CategoryDone}
	StateFailure            = State{Name: NameFailure, Category: CategoryDone, Revertable: true}
	StateKilled             = State{Name: NameKilled, Category: CategoryDone, Revertable: true}
)

var byName = map[string]State{
	NameQueued:             StateQueued,
	NameWaitingOnResources: StateWaitingOnResources,
	NameExecuting:          StateExecuting,
	NamePaused:             StatePaused,
	NameSuccess:            StateSuccess,
	NameFailure:            StateFailure,
	NameKilled:             StateKilled,
}

// Lookup returns the predefined state for name
func Lookup(name string) (State, bool) {
	s, ok := byName[name]
	return s, ok
}

// IsZero returns true when no state was assigned yet
func (s State) IsZero() bool {
	return s.Name == ""
}

// Is returns true if both states share the same specific name
func (s State) Is(other State) bool {
	return s.Name == other.Name
}

// IsTerminal returns true when the state belongs to a terminal category
func (s State) IsTerminal() bool {
	return s.Category.IsTerminal()
}

// IsSuccess returns true for the DONE-success state
func (s State) IsSuccess() bool {
	return s.Name == NameSuccess
}

// WithMessage returns a copy of the state carrying a reason
func (s State) WithMessage(message string) State {
	s.Message = message
	return s
}

func (s State) String() string {
	if s.Message == "" {
		return string(s.Category) + "/" + s.Name
	}
	return string(s.Category) + "/" + s.Name + ": " + s.Message
}

// ErrIllegalTransition is returned when a state change is not permitted
var ErrIllegalTransition = errors.New("execution: illegal state transition")

// transitions lists permitted destinations per source state; a source listed
// as its own destination is a reentry.
var transitions = map[string][]string{
	NameQueued:             {NameWaitingOnResources, NamePaused, NameQueued},
	NameWaitingOnResources: {NameExecuting, NameKilled, NameQueued, NamePaused, NameWaitingOnResources},
	NameExecuting:          {NameSuccess, NameFailure, NameKilled, NamePaused, NameWaitingOnResources},
	NameSuccess:            {NameQueued},
	NameFailure:            {NameQueued},
	NameKilled:             {NameQueued},
	NamePaused:             {NameQueued, NameWaitingOnResources, NameKilled},
}

func trigger(to string) stateless.Trigger {
	return "to" + to
}

func newMachine(initial string) *stateless.StateMachine {
	machine := stateless.NewStateMachine(initial)
	for from, destinations := range transitions {
		cfg := machine.Configure(from)
		for _, to := range destinations {
			if to == from {
				cfg.PermitReentry(trigger(to))
				continue
			}
			cfg.Permit(trigger(to), to)
		}
	}
	return machine
}

// CanTransition checks whether a processor may move from one state to another.
// A processor without state may only enter the queue.
func CanTransition(from, to State) error {
	if from.IsZero() {
		if to.Is(StateQueued) || to.Is(StateWaitingOnResources) {
			return nil
		}
		return fmt.Errorf("%w: <none> -> %v", ErrIllegalTransition, to.Name)
	}
	if _, ok := byName[from.Name]; !ok {
		return fmt.Errorf("%w: unknown state %q", ErrIllegalTransition, from.Name)
	}
	machine := newMachine(from.Name)
	if err := machine.Fire(trigger(to.Name)); err != nil {
		return fmt.Errorf("%w: %v -> %v: %v", ErrIllegalTransition, from.Name, to.Name, err)
	}
	return nil
}
