package statemachine

import (
	"context"
	"fmt"
)

// Table is an immutable set of transitions. Build it once and spawn a Machine per
// entity; a Table is safe for concurrent use.
type Table[S, E comparable] struct {
	transitions map[S]map[E][]Transition[S, E]
}

// Option configures a Table during construction.
type Option[S, E comparable] func(*Table[S, E]) error

// TransitionOption configures a single transition with guards and actions.
type TransitionOption[S, E comparable] func(*Transition[S, E])

// NewTable creates a transition table from the given options.
func NewTable[S, E comparable](opts ...Option[S, E]) (*Table[S, E], error) {
	t := &Table[S, E]{transitions: make(map[S]map[E][]Transition[S, E])}
	for _, opt := range opts {
		if err := opt(t); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// MustNewTable works like NewTable but panics on a misconfigured table.
func MustNewTable[S, E comparable](opts ...Option[S, E]) *Table[S, E] {
	t, err := NewTable(opts...)
	if err != nil {
		panic(fmt.Sprintf("statemachine: failed to build transition table: %v", err))
	}
	return t
}

// WithTransition adds a single transition to the table.
func WithTransition[S, E comparable](from, to S, event E, opts ...TransitionOption[S, E]) Option[S, E] {
	return func(t *Table[S, E]) error {
		tr := Transition[S, E]{From: from, To: to, Event: event}
		for _, opt := range opts {
			opt(&tr)
		}
		return t.add(tr)
	}
}

// WithFanIn adds the same event transition from every listed state to one target.
func WithFanIn[S, E comparable](to S, event E, from []S, opts ...TransitionOption[S, E]) Option[S, E] {
	return func(t *Table[S, E]) error {
		for _, f := range from {
			if err := WithTransition(f, to, event, opts...)(t); err != nil {
				return err
			}
		}
		return nil
	}
}

// WithGuard adds a guard to a transition. Nil guards are ignored.
func WithGuard[S, E comparable](guard Guard[S, E]) TransitionOption[S, E] {
	return func(tr *Transition[S, E]) {
		if guard != nil {
			tr.Guards = append(tr.Guards, guard)
		}
	}
}

// WithAction adds an action to a transition. Nil actions are ignored.
func WithAction[S, E comparable](action Action[S, E]) TransitionOption[S, E] {
	return func(tr *Transition[S, E]) {
		if action != nil {
			tr.Actions = append(tr.Actions, action)
		}
	}
}

func (t *Table[S, E]) add(tr Transition[S, E]) error {
	var zeroS S
	var zeroE E
	if tr.From == zeroS || tr.To == zeroS || tr.Event == zeroE {
		return ErrInvalidTransition
	}
	if _, ok := t.transitions[tr.From]; !ok {
		t.transitions[tr.From] = make(map[E][]Transition[S, E])
	}
	// Multiple transitions for the same from/event support guard-based branching.
	t.transitions[tr.From][tr.Event] = append(t.transitions[tr.From][tr.Event], tr)
	return nil
}

// lookup returns the first transition whose guards pass, or a typed error telling
// "not defined" apart from "rejected by guards".
func (t *Table[S, E]) lookup(ctx context.Context, from S, event E, data any) (*Transition[S, E], error) {
	candidates := t.transitions[from][event]
	if len(candidates) == 0 {
		return nil, newErrNoTransitionAvailable(from, event)
	}
	// First transition with passing guards wins (priority ordering).
	for i := range candidates {
		if candidates[i].allowed(ctx, from, event, data) {
			return &candidates[i], nil
		}
	}
	return nil, newErrTransitionRejected(from, event)
}

// Target returns the state an event would move from into, without running actions.
func (t *Table[S, E]) Target(ctx context.Context, from S, event E, data any) (S, error) {
	tr, err := t.lookup(ctx, from, event, data)
	if err != nil {
		var zero S
		return zero, err
	}
	return tr.To, nil
}

// Machine spawns a state machine positioned at initial.
func (t *Table[S, E]) Machine(initial S) *Machine[S, E] {
	return &Machine[S, E]{table: t, initial: initial, current: initial}
}
