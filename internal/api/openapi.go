package api

import (
	"sort"

	"github.com/mattjoyce/elasticd/internal/plugin"
)

// buildOpenAPIDoc returns an OpenAPI 3.1 document for the registry API. The
// pluginID path parameter enumerates the currently registered plugins.
func buildOpenAPIDoc(plugins []plugin.Descriptor) map[string]any {
	ids := make([]string, 0, len(plugins))
	for _, d := range plugins {
		ids = append(ids, d.ID)
	}
	sort.Strings(ids)

	pluginParam := map[string]any{
		"name":     "pluginID",
		"in":       "path",
		"required": true,
		"schema":   map[string]any{"type": "string", "enum": ids},
	}

	agentSchema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"elastic_agent_id": map[string]any{"type": "string"},
			"agent_id":         map[string]any{"type": "string"},
			"agent_state":      map[string]any{"type": "string"},
			"build_state":      map[string]any{"type": "string"},
			"config_state":     map[string]any{"type": "string"},
		},
		"required": []string{"elastic_agent_id"},
	}
	stringList := map[string]any{"type": "array", "items": map[string]any{"type": "string"}}

	paths := map[string]any{
		"/plugins": map[string]any{
			"get": operation("listPlugins", "Registered elastic agent plugins in load order", nil, nil),
		},
		"/agents": map[string]any{
			"get": operation("listAgents", "Agents last reported by busy/idle notifications", nil, nil),
			"post": withStatus(operation("createAgent", "Ask the first matching plugin to create an agent", nil,
				objectSchema(map[string]any{"resources": stringList, "environment": map[string]any{"type": "string"}})), "202"),
		},
		"/plugins/{pluginID}/ping": map[string]any{
			"post": operation("serverPing", "Hand a plugin the agents it owns", pluginParam,
				objectSchema(map[string]any{"agents": map[string]any{"type": "array", "items": agentSchema}})),
		},
		"/plugins/{pluginID}/should-assign-work": map[string]any{
			"post": operation("shouldAssignWork", "Ask a plugin whether an agent may take work", pluginParam,
				objectSchema(map[string]any{"agent": agentSchema, "resources": stringList, "environment": map[string]any{"type": "string"}})),
		},
		"/plugins/{pluginID}/agents/busy": map[string]any{
			"post": operation("agentBusy", "Notify a plugin that an agent started work", pluginParam,
				objectSchema(map[string]any{"agent": agentSchema})),
		},
		"/plugins/{pluginID}/agents/idle": map[string]any{
			"post": operation("agentIdle", "Notify a plugin that an agent finished work", pluginParam,
				objectSchema(map[string]any{"agent": agentSchema})),
		},
		"/events": map[string]any{
			"get": operation("events", "Server-sent stream of registry events", map[string]any{
				"name":        "type",
				"in":          "query",
				"description": "Comma-separated event type prefixes",
				"schema":      map[string]any{"type": "string"},
			}, nil),
		},
		"/journal": map[string]any{
			"get": operation("journal", "Recent registry journal entries", nil, nil),
		},
	}

	return map[string]any{
		"openapi": "3.1.0",
		"info": map[string]any{
			"title":   "elasticd",
			"version": "1.0",
		},
		"paths": paths,
		"components": map[string]any{
			"securitySchemes": map[string]any{
				"BearerAuth": map[string]any{
					"type":   "http",
					"scheme": "bearer",
				},
			},
		},
	}
}

func operation(id, summary string, param map[string]any, body map[string]any) map[string]any {
	op := map[string]any{
		"operationId": id,
		"summary":     summary,
		"responses": map[string]any{
			"200": map[string]any{"description": "OK"},
			"400": map[string]any{"description": "Bad request"},
			"403": map[string]any{"description": "Insufficient scope"},
			"404": map[string]any{"description": "Plugin not registered"},
			"502": map[string]any{"description": "Plugin call failed"},
			"504": map[string]any{"description": "Plugin call timed out"},
		},
		"security": []any{map[string]any{"BearerAuth": []string{}}},
	}
	if param != nil {
		op["parameters"] = []any{param}
	}
	if body != nil {
		op["requestBody"] = map[string]any{
			"required": true,
			"content": map[string]any{
				"application/json": map[string]any{"schema": body},
			},
		}
	}
	return op
}

func withStatus(op map[string]any, status string) map[string]any {
	responses := op["responses"].(map[string]any)
	delete(responses, "200")
	responses[status] = map[string]any{"description": "Accepted"}
	return op
}

func objectSchema(props map[string]any) map[string]any {
	return map[string]any{"type": "object", "properties": props}
}
