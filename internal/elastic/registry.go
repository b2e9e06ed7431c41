package elastic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/mattjoyce/elasticd/internal/log"
	"github.com/mattjoyce/elasticd/internal/plugin"
	"github.com/mattjoyce/elasticd/internal/protocol"
)

// Outcome describes the result of a CreateAgent call.
type Outcome struct {
	Resources   []string
	Environment string
	Matched     bool
	Plugin      plugin.Descriptor // zero when Matched is false
	Err         error             // extension error, if the matched plugin failed
}

// Observer is told about membership changes and provisioning outcomes.
// Callbacks run on the caller's goroutine and should return quickly.
type Observer interface {
	PluginRecorded(d plugin.Descriptor, total int)
	PluginRemoved(d plugin.Descriptor, total int)
	Provisioned(o Outcome)
}

// Option configures a Registry.
type Option func(*Registry)

// WithObserver attaches an observer. Multiple observers are called in order.
func WithObserver(o Observer) Option {
	return func(r *Registry) { r.observers = append(r.observers, o) }
}

// WithLogger overrides the registry logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// Registry tracks elastic agent plugins and dispatches requests to them.
type Registry struct {
	ext       Extension
	store     *Store
	matcher   *Matcher
	observers []Observer
	logger    *slog.Logger
}

var _ plugin.Listener = (*Registry)(nil)

// NewRegistry creates an empty registry that invokes plugins through ext.
func NewRegistry(ext Extension, opts ...Option) *Registry {
	store := NewStore(ext)
	r := &Registry{
		ext:     ext,
		store:   store,
		matcher: NewMatcher(store, ext),
		logger:  log.WithComponent("registry"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// PluginLoaded records d if it implements the elastic agent extension.
func (r *Registry) PluginLoaded(ctx context.Context, d plugin.Descriptor) error {
	recorded, total, err := r.store.RecordLoaded(ctx, d)
	if err != nil {
		return err
	}
	if !recorded {
		r.logger.Debug("plugin is not an elastic agent plugin", "plugin", d.ID)
		return nil
	}

	r.logger.Info("elastic agent plugin registered", "plugin", d.ID, "plugins", total)
	for _, o := range r.observers {
		o.PluginRecorded(d, total)
	}
	return nil
}

// PluginUnloaded forgets d. Unknown plugins are ignored.
func (r *Registry) PluginUnloaded(_ context.Context, d plugin.Descriptor) {
	removed, total := r.store.RecordUnloaded(d)
	if !removed {
		return
	}

	r.logger.Info("elastic agent plugin removed", "plugin", d.ID, "plugins", total)
	for _, o := range r.observers {
		o.PluginRemoved(d, total)
	}
}

// ListPlugins returns the registered plugins in load order.
func (r *Registry) ListPlugins() []plugin.Descriptor {
	return r.store.Snapshot().Descriptors()
}

// Plugin returns the registered plugin with the given ID.
func (r *Registry) Plugin(id string) (plugin.Descriptor, bool) {
	return r.store.Snapshot().Get(id)
}

// CreateAgent asks the first matching plugin to provision an agent. When no
// plugin matches nothing is invoked and the outcome reports Matched=false.
func (r *Registry) CreateAgent(ctx context.Context, resources []string, environment string) (Outcome, error) {
	out := Outcome{Resources: resources, Environment: environment}

	d, ok, err := r.matcher.Find(ctx, resources, environment)
	if err != nil {
		return out, fmt.Errorf("match plugin: %w", err)
	}
	if !ok {
		r.logger.Warn("no elastic agent plugin matched request", "resources", resources, "environment", environment)
		r.provisioned(out)
		return out, nil
	}

	out.Matched = true
	out.Plugin = d
	if err := r.ext.CreateAgent(ctx, d.ID, resources, environment); err != nil {
		out.Err = err
		r.provisioned(out)
		return out, fmt.Errorf("create agent via %q: %w", d.ID, err)
	}

	r.logger.Info("agent creation requested", "plugin", d.ID, "resources", resources, "environment", environment)
	r.provisioned(out)
	return out, nil
}

// ServerPing lets pluginID reconcile the agents it owns.
func (r *Registry) ServerPing(ctx context.Context, pluginID string, agents []protocol.AgentMetadata) error {
	if err := r.ext.ServerPing(ctx, pluginID, agents); err != nil {
		return fmt.Errorf("server ping %q: %w", pluginID, err)
	}
	return nil
}

// AgentsFunc returns the agents owned by a plugin.
type AgentsFunc func(pluginID string) []protocol.AgentMetadata

// ServerPingAll pings every registered plugin at most limit at a time
// (unbounded when limit <= 0). All plugins are pinged even when some fail;
// the failures are joined.
func (r *Registry) ServerPingAll(ctx context.Context, agentsFor AgentsFunc, limit int) error {
	snap := r.store.Snapshot()

	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i := 0; i < snap.Len(); i++ {
		id := snap.At(i).ID
		var agents []protocol.AgentMetadata
		if agentsFor != nil {
			agents = slices.Clone(agentsFor(id))
		}
		g.Go(func() error {
			if err := r.ServerPing(ctx, id, agents); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// ShouldAssignWork asks d whether agent may take work with the given requirements.
func (r *Registry) ShouldAssignWork(ctx context.Context, d plugin.Descriptor, agent protocol.AgentMetadata, resources []string, environment string) (bool, error) {
	ok, err := r.ext.ShouldAssignWork(ctx, d.ID, agent, resources, environment)
	if err != nil {
		return false, fmt.Errorf("should assign work %q: %w", d.ID, err)
	}
	return ok, nil
}

// NotifyAgentBusy tells d that agent started work.
func (r *Registry) NotifyAgentBusy(ctx context.Context, d plugin.Descriptor, agent protocol.AgentMetadata) error {
	if err := r.ext.NotifyAgentBusy(ctx, d.ID, agent); err != nil {
		return fmt.Errorf("notify busy %q: %w", d.ID, err)
	}
	return nil
}

// NotifyAgentIdle tells d that agent finished work.
func (r *Registry) NotifyAgentIdle(ctx context.Context, d plugin.Descriptor, agent protocol.AgentMetadata) error {
	if err := r.ext.NotifyAgentIdle(ctx, d.ID, agent); err != nil {
		return fmt.Errorf("notify idle %q: %w", d.ID, err)
	}
	return nil
}

func (r *Registry) provisioned(o Outcome) {
	for _, obs := range r.observers {
		obs.Provisioned(o)
	}
}
