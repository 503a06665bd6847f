// Package statemachine provides a small, generic finite-state-machine built from an
// immutable transition table.
//
// States and events are any comparable types, typically string-based named types:
//
//	type State string
//	type Event string
//
// A Table is assembled once with functional options and is safe to share between
// goroutines. Each entity then gets its own Machine positioned at its current
// state:
//
//	table := statemachine.MustNewTable(
//		statemachine.WithTransition[State, Event]("draft", "review", "submit"),
//		statemachine.WithTransition[State, Event]("review", "published", "approve",
//			statemachine.WithGuard[State, Event](func(ctx context.Context, from State, ev Event, data any) bool {
//				return data.(bool)
//			}),
//		),
//	)
//
//	m := table.Machine("draft")
//	err := m.Fire(ctx, "submit", nil)
//
// Table.Target answers "where would this event lead" without running actions, which
// is how callers use the table purely as a rule set.
//
// # Errors
//
// Fire and Target return *ErrNoTransitionAvailable when no transition is defined
// for the state/event pair and *ErrTransitionRejected when one is defined but every
// candidate was vetoed by a guard. Use IsNoTransitionAvailableError and
// IsTransitionRejectedError to tell them apart.
package statemachine
