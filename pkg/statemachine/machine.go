package statemachine

import (
	"context"
	"fmt"
	"sync"
)

// Machine tracks the current state of one entity over a shared Table.
type Machine[S, E comparable] struct {
	table   *Table[S, E]
	initial S
	current S
	mu      sync.RWMutex
}

func (m *Machine[S, E]) Current() S {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Fire applies event to the current state. Actions run before the state changes;
// any action failure aborts the transition.
func (m *Machine[S, E]) Fire(ctx context.Context, event E, data any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tr, err := m.table.lookup(ctx, m.current, event, data)
	if err != nil {
		return err
	}

	for _, action := range tr.Actions {
		if action == nil {
			continue
		}
		if err := action(ctx, m.current, tr.To, event, data); err != nil {
			return fmt.Errorf("action failed: %w", err)
		}
	}

	m.current = tr.To
	return nil
}

// CanFire reports whether event would be accepted in the current state.
func (m *Machine[S, E]) CanFire(ctx context.Context, event E, data any) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, err := m.table.lookup(ctx, m.current, event, data)
	return err == nil
}

func (m *Machine[S, E]) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = m.initial
}
