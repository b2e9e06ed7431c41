package api

import (
	"slices"
	"strings"
	"sync"

	"github.com/mattjoyce/elasticd/internal/elastic"
	"github.com/mattjoyce/elasticd/internal/plugin"
	"github.com/mattjoyce/elasticd/internal/protocol"
)

// Roster remembers the agents last reported through busy/idle notifications,
// keyed by owning plugin. It feeds the periodic server ping and is not a source
// of truth: plugins reconcile their own agents.
type Roster struct {
	mu     sync.RWMutex
	agents map[string]map[string]protocol.AgentMetadata
}

var _ elastic.Observer = (*Roster)(nil)

// NewRoster returns an empty roster.
func NewRoster() *Roster {
	return &Roster{agents: make(map[string]map[string]protocol.AgentMetadata)}
}

// Track records agent as owned by pluginID, replacing an earlier report.
// Agents without an elastic agent ID are ignored.
func (r *Roster) Track(pluginID string, agent protocol.AgentMetadata) {
	if agent.ElasticAgentID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	owned, ok := r.agents[pluginID]
	if !ok {
		owned = make(map[string]protocol.AgentMetadata)
		r.agents[pluginID] = owned
	}
	owned[agent.ElasticAgentID] = agent
}

// Agents returns pluginID's agents ordered by elastic agent ID. It satisfies
// elastic.AgentsFunc.
func (r *Roster) Agents(pluginID string) []protocol.AgentMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()
	owned := r.agents[pluginID]
	out := make([]protocol.AgentMetadata, 0, len(owned))
	for _, a := range owned {
		out = append(out, a)
	}
	slices.SortFunc(out, func(a, b protocol.AgentMetadata) int {
		return strings.Compare(a.ElasticAgentID, b.ElasticAgentID)
	})
	return out
}

// All returns every tracked agent keyed by plugin.
func (r *Roster) All() map[string][]protocol.AgentMetadata {
	r.mu.RLock()
	ids := make([]string, 0, len(r.agents))
	for id := range r.agents {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	out := make(map[string][]protocol.AgentMetadata, len(ids))
	for _, id := range ids {
		if agents := r.Agents(id); len(agents) > 0 {
			out[id] = agents
		}
	}
	return out
}

// Len returns the number of tracked agents.
func (r *Roster) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, owned := range r.agents {
		n += len(owned)
	}
	return n
}

// PluginRecorded implements elastic.Observer.
func (r *Roster) PluginRecorded(plugin.Descriptor, int) {}

// PluginRemoved forgets the agents of a plugin that left the registry.
func (r *Roster) PluginRemoved(d plugin.Descriptor, _ int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.agents, d.ID)
}

// Provisioned implements elastic.Observer.
func (r *Roster) Provisioned(elastic.Outcome) {}
