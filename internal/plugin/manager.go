package plugin

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Listener receives plugin lifecycle notifications from a Manager.
// PluginLoaded may reject a plugin by returning an error; the manager logs it
// and keeps the plugin loaded for other listeners.
type Listener interface {
	PluginLoaded(ctx context.Context, d Descriptor) error
	PluginUnloaded(ctx context.Context, d Descriptor)
}

// Manager owns the set of loaded plugins. Each Scan reconciles that set with
// what is on disk and notifies listeners of every load and unload.
type Manager struct {
	roots  []string
	logger *slog.Logger

	// scanMu serializes scans so events for a plugin are delivered in order.
	scanMu sync.Mutex

	mu        sync.RWMutex
	loaded    map[string]Descriptor
	order     []string
	listeners []Listener
}

// NewManager creates a manager for the given plugin roots.
func NewManager(roots []string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		roots:  roots,
		logger: logger,
		loaded: make(map[string]Descriptor),
	}
}

// AddListener subscribes l to load and unload events. Plugins that are already
// loaded are not replayed; subscribe before the first Scan.
func (m *Manager) AddListener(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// Get retrieves a loaded plugin by ID.
func (m *Manager) Get(id string) (Descriptor, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.loaded[id]
	return d, ok
}

// All returns the loaded plugins in load order.
func (m *Manager) All() []Descriptor {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Descriptor, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.loaded[id])
	}
	return out
}

// Scan discovers plugins and reconciles the loaded set. Plugins that vanished
// or whose manifest changed are unloaded first; new and changed plugins are
// then loaded in discovery order.
func (m *Manager) Scan(ctx context.Context) error {
	m.scanMu.Lock()
	defer m.scanMu.Unlock()

	found, err := Discover(m.roots, m.discoveryLogger)
	if err != nil {
		return err
	}

	current := make(map[string]Descriptor, len(found))
	for _, d := range found {
		current[d.ID] = d
	}

	for _, prev := range m.All() {
		next, ok := current[prev.ID]
		if ok && next.Fingerprint == prev.Fingerprint && next.Path == prev.Path {
			continue
		}
		m.unload(ctx, prev)
	}

	for _, d := range found {
		if _, ok := m.Get(d.ID); ok {
			continue
		}
		m.load(ctx, d)
	}
	return nil
}

// Run scans immediately and then on every tick until ctx is cancelled.
// A zero interval performs the initial scan only and waits for cancellation.
func (m *Manager) Run(ctx context.Context, interval time.Duration) error {
	m.logger.Info("plugin manager started", "roots", m.roots, "rescan_interval", interval)
	defer m.logger.Info("plugin manager stopped")

	if err := m.Scan(ctx); err != nil {
		m.logger.Error("plugin scan failed", "error", err)
	}

	if interval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := m.Scan(ctx); err != nil {
				m.logger.Error("plugin scan failed", "error", err)
			}
		}
	}
}

// Shutdown unloads every plugin in reverse load order.
func (m *Manager) Shutdown(ctx context.Context) {
	m.scanMu.Lock()
	defer m.scanMu.Unlock()

	all := m.All()
	for i := len(all) - 1; i >= 0; i-- {
		m.unload(ctx, all[i])
	}
}

func (m *Manager) load(ctx context.Context, d Descriptor) {
	m.mu.Lock()
	m.loaded[d.ID] = d
	m.order = append(m.order, d.ID)
	listeners := append([]Listener(nil), m.listeners...)
	m.mu.Unlock()

	m.logger.Info("plugin loaded", "plugin", d.ID, "version", d.Version, "path", d.Path)
	for _, l := range listeners {
		if err := l.PluginLoaded(ctx, d); err != nil {
			m.logger.Warn("plugin listener rejected load", "plugin", d.ID, "error", err)
		}
	}
}

func (m *Manager) unload(ctx context.Context, d Descriptor) {
	m.mu.Lock()
	delete(m.loaded, d.ID)
	for i, id := range m.order {
		if id == d.ID {
			m.order = append(m.order[:i:i], m.order[i+1:]...)
			break
		}
	}
	listeners := append([]Listener(nil), m.listeners...)
	m.mu.Unlock()

	m.logger.Info("plugin unloaded", "plugin", d.ID)
	for _, l := range listeners {
		l.PluginUnloaded(ctx, d)
	}
}

func (m *Manager) discoveryLogger(level, msg string, args ...any) {
	switch level {
	case "debug":
		m.logger.Debug(msg, args...)
	case "warn":
		m.logger.Warn(msg, args...)
	case "error":
		m.logger.Error(msg, args...)
	default:
		m.logger.Info(msg, args...)
	}
}
