package elastic

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/mattjoyce/elasticd/internal/plugin"
)

// Snapshot is an immutable, load-ordered view of the eligible plugins.
type Snapshot struct {
	entries []plugin.Descriptor
}

// Len returns the number of plugins in the snapshot.
func (s Snapshot) Len() int { return len(s.entries) }

// At returns the i-th plugin in load order.
func (s Snapshot) At(i int) plugin.Descriptor { return s.entries[i] }

// Descriptors returns a copy of the plugins in load order.
func (s Snapshot) Descriptors() []plugin.Descriptor {
	return slices.Clone(s.entries)
}

// IDs returns the plugin IDs in load order.
func (s Snapshot) IDs() []string {
	ids := make([]string, len(s.entries))
	for i, d := range s.entries {
		ids[i] = d.ID
	}
	return ids
}

// Get looks up a plugin by ID.
func (s Snapshot) Get(id string) (plugin.Descriptor, bool) {
	i := s.index(plugin.Descriptor{ID: id})
	if i < 0 {
		return plugin.Descriptor{}, false
	}
	return s.entries[i], true
}

func (s Snapshot) index(d plugin.Descriptor) int {
	return slices.IndexFunc(s.entries, d.SameAs)
}

// Store holds the plugins that passed the capability filter. Writers are
// serialized; every change publishes a freshly allocated slice, so a Snapshot
// never changes after it is taken.
type Store struct {
	oracle Oracle

	mu      sync.Mutex
	current atomic.Pointer[[]plugin.Descriptor]
}

// NewStore creates an empty store that filters loads through oracle.
func NewStore(oracle Oracle) *Store {
	s := &Store{oracle: oracle}
	s.current.Store(&[]plugin.Descriptor{})
	return s
}

// RecordLoaded appends d if the oracle classifies it as an elastic agent
// plugin. It reports whether d was recorded and the size of the list it
// published. Loading an ID that is already present fails with
// ErrDuplicateRegistration.
func (s *Store) RecordLoaded(ctx context.Context, d plugin.Descriptor) (recorded bool, total int, err error) {
	capable, err := s.oracle.CanHandlePlugin(ctx, d.ID)
	if err != nil {
		return false, s.Snapshot().Len(), fmt.Errorf("classify plugin %q: %w", d.ID, err)
	}
	if !capable {
		return false, s.Snapshot().Len(), nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.Snapshot()
	if cur.index(d) >= 0 {
		return false, cur.Len(), fmt.Errorf("%w: %s", ErrDuplicateRegistration, d.ID)
	}

	next := make([]plugin.Descriptor, 0, cur.Len()+1)
	next = append(next, cur.entries...)
	next = append(next, d)
	s.current.Store(&next)
	return true, len(next), nil
}

// RecordUnloaded removes the entry with d's ID. It reports whether one was
// present and the size of the list left behind. Only capable plugins are ever
// recorded, so membership stands in for re-asking the oracle.
func (s *Store) RecordUnloaded(d plugin.Descriptor) (removed bool, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.Snapshot()
	i := cur.index(d)
	if i < 0 {
		return false, cur.Len()
	}

	next := make([]plugin.Descriptor, 0, cur.Len()-1)
	next = append(next, cur.entries[:i]...)
	next = append(next, cur.entries[i+1:]...)
	s.current.Store(&next)
	return true, len(next)
}

// Snapshot returns the current point-in-time view.
func (s *Store) Snapshot() Snapshot {
	return Snapshot{entries: *s.current.Load()}
}
