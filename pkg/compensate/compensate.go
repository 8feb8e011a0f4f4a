// Package compensate runs the undo side of a multi-step workflow: a stack of
// named actions executed in reverse order of registration, collecting every
// failure instead of stopping at the first one.
package compensate

import (
	"context"
	"errors"
	"fmt"
)

// Action is one undo operation with a name for diagnostics.
type Action struct {
	Name string
	Undo func(ctx context.Context) error
}

// Stack accumulates compensation actions as forward steps succeed.
type Stack struct {
	name    string
	actions []Action
}

// New creates a compensation stack for the named workflow.
func New(name string) *Stack {
	return &Stack{name: name}
}

// Push registers an action. Actions pushed later are undone first.
func (s *Stack) Push(a Action) *Stack {
	s.actions = append(s.actions, a)
	return s
}

// Len returns the number of registered actions.
func (s *Stack) Len() int { return len(s.actions) }

// Run executes all actions in reverse order. Every action runs even when an
// earlier one fails; the combined error is returned via errors.Join.
func (s *Stack) Run(ctx context.Context) error {
	var errs []error
	for i := len(s.actions) - 1; i >= 0; i-- {
		a := s.actions[i]
		if a.Undo == nil {
			continue
		}
		if err := a.Undo(ctx); err != nil {
			errs = append(errs, fmt.Errorf("compensate %s: action %q: %w", s.name, a.Name, err))
		}
	}
	return errors.Join(errs...)
}
