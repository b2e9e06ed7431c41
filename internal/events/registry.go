package events

import (
	"github.com/mattjoyce/elasticd/internal/elastic"
	"github.com/mattjoyce/elasticd/internal/plugin"
)

// Registry event types.
const (
	TypePluginRegistered = "plugin.registered"
	TypePluginRemoved    = "plugin.removed"
	TypeAgentRequested   = "agent.requested"
	TypeAgentUnmatched   = "agent.unmatched"
	TypeAgentFailed      = "agent.failed"
)

// PluginEvent is the payload of plugin membership events.
type PluginEvent struct {
	PluginID string `json:"plugin_id"`
	Version  string `json:"version,omitempty"`
	Total    int    `json:"total"`
}

// AgentEvent is the payload of provisioning events.
type AgentEvent struct {
	PluginID    string   `json:"plugin_id,omitempty"`
	Resources   []string `json:"resources"`
	Environment string   `json:"environment"`
	Error       string   `json:"error,omitempty"`
}

// RegistryPublisher publishes registry observations to a hub.
type RegistryPublisher struct {
	hub *Hub
}

var _ elastic.Observer = (*RegistryPublisher)(nil)

// NewRegistryPublisher returns an elastic.Observer backed by hub.
func NewRegistryPublisher(hub *Hub) *RegistryPublisher {
	return &RegistryPublisher{hub: hub}
}

// PluginRecorded implements elastic.Observer.
func (p *RegistryPublisher) PluginRecorded(d plugin.Descriptor, total int) {
	p.hub.Publish(TypePluginRegistered, PluginEvent{PluginID: d.ID, Version: d.Version, Total: total})
}

// PluginRemoved implements elastic.Observer.
func (p *RegistryPublisher) PluginRemoved(d plugin.Descriptor, total int) {
	p.hub.Publish(TypePluginRemoved, PluginEvent{PluginID: d.ID, Version: d.Version, Total: total})
}

// Provisioned implements elastic.Observer.
func (p *RegistryPublisher) Provisioned(o elastic.Outcome) {
	ev := AgentEvent{Resources: o.Resources, Environment: o.Environment}
	if ev.Resources == nil {
		ev.Resources = []string{}
	}
	switch {
	case !o.Matched:
		p.hub.Publish(TypeAgentUnmatched, ev)
	case o.Err != nil:
		ev.PluginID = o.Plugin.ID
		ev.Error = o.Err.Error()
		p.hub.Publish(TypeAgentFailed, ev)
	default:
		ev.PluginID = o.Plugin.ID
		p.hub.Publish(TypeAgentRequested, ev)
	}
}
