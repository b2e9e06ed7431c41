package protocol

import "time"

// Version is the protocol version spoken with plugin entrypoints.
const Version = 1

// ExtensionElasticAgent is the extension point every request targets.
const ExtensionElasticAgent = "elastic-agent"

// Operation names a single call across the plugin boundary.
type Operation string

const (
	OpCanHandle        Operation = "can-handle"
	OpCreateAgent      Operation = "create-agent"
	OpServerPing       Operation = "server-ping"
	OpShouldAssignWork Operation = "should-assign-work"
	OpAgentBusy        Operation = "agent-busy"
	OpAgentIdle        Operation = "agent-idle"
)

// Valid reports whether op is a known operation.
func (op Operation) Valid() bool {
	switch op {
	case OpCanHandle, OpCreateAgent, OpServerPing, OpShouldAssignWork, OpAgentBusy, OpAgentIdle:
		return true
	}
	return false
}

// ExpectsResult reports whether the plugin must answer op with a boolean result.
func (op Operation) ExpectsResult() bool {
	return op == OpCanHandle || op == OpShouldAssignWork
}

// AgentMetadata describes a running or prospective agent. The registry passes
// it through unmodified.
type AgentMetadata struct {
	ElasticAgentID string `json:"elastic_agent_id"`
	AgentID        string `json:"agent_id,omitempty"`
	AgentState     string `json:"agent_state,omitempty"`
	BuildState     string `json:"build_state,omitempty"`
	ConfigState    string `json:"config_state,omitempty"`
}

// Request represents the request envelope sent to plugins via stdin.
type Request struct {
	Protocol    int             `json:"protocol"`
	RequestID   string          `json:"request_id"`
	Extension   string          `json:"extension"`
	Operation   Operation       `json:"operation"`
	PluginID    string          `json:"plugin_id"`
	Resources   []string        `json:"resources,omitempty"`
	Environment string          `json:"environment,omitempty"`
	Agent       *AgentMetadata  `json:"agent,omitempty"`  // should-assign-work, agent-busy, agent-idle
	Agents      []AgentMetadata `json:"agents,omitempty"` // server-ping
	DeadlineAt  time.Time       `json:"deadline_at"`
}

// Response represents the response envelope received from plugins via stdout.
type Response struct {
	Status string     `json:"status"` // ok | error
	Error  string     `json:"error,omitempty"`
	Result *bool      `json:"result,omitempty"` // can-handle, should-assign-work
	Logs   []LogEntry `json:"logs,omitempty"`
}

// LogEntry represents a log message from a plugin.
type LogEntry struct {
	Level   string `json:"level"` // info | warn | error | debug
	Message string `json:"message"`
}

// Verdict returns the boolean result, treating an omitted result as false.
func (r *Response) Verdict() bool {
	if r.Result == nil {
		return false
	}
	return *r.Result
}
