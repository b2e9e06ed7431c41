package elastic

import (
	"context"

	"github.com/mattjoyce/elasticd/internal/protocol"
)

//go:generate mockgen -destination=mocks/mock_extension.go -package=mocks github.com/mattjoyce/elasticd/internal/elastic Extension

// Oracle answers the capability questions that decide plugin eligibility.
type Oracle interface {
	// CanHandlePlugin reports whether the plugin implements the elastic agent extension.
	CanHandlePlugin(ctx context.Context, pluginID string) (bool, error)
	// CanPluginHandle reports whether the plugin can provision an agent for the request.
	CanPluginHandle(ctx context.Context, pluginID string, resources []string, environment string) (bool, error)
}

// Extension is the boundary through which plugin logic is invoked. It decides
// how a call reaches the plugin; the registry only decides which plugin.
type Extension interface {
	Oracle
	CreateAgent(ctx context.Context, pluginID string, resources []string, environment string) error
	ServerPing(ctx context.Context, pluginID string, agents []protocol.AgentMetadata) error
	ShouldAssignWork(ctx context.Context, pluginID string, agent protocol.AgentMetadata, resources []string, environment string) (bool, error)
	NotifyAgentBusy(ctx context.Context, pluginID string, agent protocol.AgentMetadata) error
	NotifyAgentIdle(ctx context.Context, pluginID string, agent protocol.AgentMetadata) error
}
