package statemachine

import (
	"context"
)

// Action executes side effects during a transition. Returning an error prevents the transition.
type Action[S, E comparable] func(ctx context.Context, from, to S, event E, data any) error

// Guard evaluates whether a transition should be allowed based on runtime conditions.
type Guard[S, E comparable] func(ctx context.Context, from S, event E, data any) bool

// Transition defines a state change triggered by an event, with optional guards and actions.
type Transition[S, E comparable] struct {
	From    S
	To      S
	Event   E
	Guards  []Guard[S, E]  // all must pass for the transition to proceed
	Actions []Action[S, E] // executed in order before the state changes
}

// allowed reports whether every guard accepts the transition.
func (t Transition[S, E]) allowed(ctx context.Context, from S, event E, data any) bool {
	for _, guard := range t.Guards {
		if guard != nil && !guard(ctx, from, event, data) {
			return false
		}
	}
	return true
}
