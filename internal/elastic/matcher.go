package elastic

import (
	"context"
	"fmt"

	"github.com/mattjoyce/elasticd/internal/plugin"
)

// Matcher selects the plugin that owns a provisioning request.
type Matcher struct {
	store  *Store
	oracle Oracle
}

// NewMatcher creates a matcher over store's snapshots.
func NewMatcher(store *Store, oracle Oracle) *Matcher {
	return &Matcher{store: store, oracle: oracle}
}

// Find returns the earliest-loaded plugin that can handle resources in
// environment. The boolean is false when no plugin qualifies.
func (m *Matcher) Find(ctx context.Context, resources []string, environment string) (plugin.Descriptor, bool, error) {
	return m.FindIn(ctx, m.store.Snapshot(), resources, environment)
}

// FindIn is Find against an explicit snapshot.
func (m *Matcher) FindIn(ctx context.Context, snap Snapshot, resources []string, environment string) (plugin.Descriptor, bool, error) {
	for i := 0; i < snap.Len(); i++ {
		d := snap.At(i)
		ok, err := m.oracle.CanPluginHandle(ctx, d.ID, resources, environment)
		if err != nil {
			return plugin.Descriptor{}, false, fmt.Errorf("ask plugin %q: %w", d.ID, err)
		}
		if ok {
			return d, true, nil
		}
	}
	return plugin.Descriptor{}, false, nil
}
