// Package memory implements store.Store in process memory. The SQLite and
// Postgres drivers embed it and persist its snapshot.
package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"contractgen/internal/store"
	"contractgen/pkg/contractapi"
)

// Store holds the state behind a RWMutex; transactions work on a clone that
// replaces the state on success.
type Store struct {
	mu    sync.RWMutex
	state store.Snapshot
}

var _ store.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{state: store.Snapshot{}.Clone()}
}

// Driver returns store.DriverMemory.
func (s *Store) Driver() store.Driver { return store.DriverMemory }

// Close is a no-op.
func (s *Store) Close() error { return nil }

// ExportState clones the current state for external persistence.
func (s *Store) ExportState() store.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// ImportState replaces the state with snap.
func (s *Store) ImportState(snap store.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = snap.Clone()
}

// RunInTransaction runs fn against a copy of the state and commits it when
// fn returns nil.
func (s *Store) RunInTransaction(ctx context.Context, fn func(store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &transaction{state: s.state.Clone()}
	if err := fn(tx); err != nil {
		return err
	}
	s.state = tx.state
	return nil
}

// View runs fn against a read-only copy of the state.
func (s *Store) View(ctx context.Context, fn func(store.View) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	snap := s.state.Clone()
	s.mu.RUnlock()
	return fn(&transaction{state: snap})
}

type transaction struct {
	state store.Snapshot
}

func (tx *transaction) FindTemplate(id string) (contractapi.Template, bool) {
	t, ok := tx.state.Templates[id]
	if !ok {
		return contractapi.Template{}, false
	}
	return t.Clone(), true
}

func (tx *transaction) ListTemplates() []contractapi.Template {
	out := make([]contractapi.Template, 0, len(tx.state.Templates))
	for _, t := range tx.state.Templates {
		out = append(out, t.Clone())
	}
	slices.SortFunc(out, func(a, b contractapi.Template) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

func (tx *transaction) ListInstances(filter store.InstanceFilter) []contractapi.Instance {
	var out []contractapi.Instance
	for _, inst := range tx.state.Instances {
		if filter.Matches(inst) {
			out = append(out, inst.Clone())
		}
	}
	slices.SortFunc(out, func(a, b contractapi.Instance) int {
		if c := cmp.Compare(b.Version, a.Version); c != 0 {
			return c
		}
		if c := b.GeneratedAt.Compare(a.GeneratedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

func (tx *transaction) PutTemplate(t contractapi.Template) {
	tx.state.Templates[t.ID] = t.Clone()
}

func (tx *transaction) DeleteTemplate(id string) bool {
	if _, ok := tx.state.Templates[id]; !ok {
		return false
	}
	delete(tx.state.Templates, id)
	return true
}

func (tx *transaction) PutInstance(inst contractapi.Instance) {
	tx.state.Instances[inst.ID] = inst.Clone()
}
