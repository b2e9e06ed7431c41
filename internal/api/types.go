package api

import (
	"github.com/mattjoyce/elasticd/internal/journal"
	"github.com/mattjoyce/elasticd/internal/plugin"
	"github.com/mattjoyce/elasticd/internal/protocol"
)

// CreateAgentRequest is the JSON body for POST /agents.
type CreateAgentRequest struct {
	Resources   []string `json:"resources"`
	Environment string   `json:"environment"`
}

// CreateAgentResponse is returned once a create request has been handed to a plugin.
// Matched is false when no registered plugin accepted the request.
type CreateAgentResponse struct {
	Matched  bool   `json:"matched"`
	PluginID string `json:"plugin_id,omitempty"`
}

// PingRequest is the JSON body for POST /plugins/{id}/ping. When Agents is
// omitted the roster's agents for the plugin are sent.
type PingRequest struct {
	Agents []protocol.AgentMetadata `json:"agents"`
}

// AgentRequest is the JSON body for busy/idle notifications.
type AgentRequest struct {
	Agent protocol.AgentMetadata `json:"agent"`
}

// ShouldAssignWorkRequest is the JSON body for POST /plugins/{id}/should-assign-work.
type ShouldAssignWorkRequest struct {
	Agent       protocol.AgentMetadata `json:"agent"`
	Resources   []string               `json:"resources"`
	Environment string                 `json:"environment"`
}

// ShouldAssignWorkResponse carries the plugin's verdict.
type ShouldAssignWorkResponse struct {
	Assign bool `json:"assign"`
}

// PluginsResponse is returned by GET /plugins, in load order.
type PluginsResponse struct {
	Plugins []plugin.Descriptor `json:"plugins"`
}

// AgentsResponse is returned by GET /agents.
type AgentsResponse struct {
	Agents map[string][]protocol.AgentMetadata `json:"agents"`
}

// JournalResponse is returned by GET /journal.
type JournalResponse struct {
	Entries []journal.Entry `json:"entries"`
}

// StatusResponse acknowledges a delegated call.
type StatusResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	PluginsLoaded int    `json:"plugins_loaded"`
	AgentsTracked int    `json:"agents_tracked"`
	EventsDropped uint64 `json:"events_dropped"`
}
