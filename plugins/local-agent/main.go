// Command local-agent is an elastic agent plugin that provisions agents on the
// local host. Agents it created are tracked in state.json in the plugin
// directory.
//
// Environment:
//
//	LOCAL_AGENT_RESOURCES     comma-separated resources this host provides (default "linux")
//	LOCAL_AGENT_ENVIRONMENTS  comma-separated environments served (default: any)
//	LOCAL_AGENT_MAX           maximum tracked agents (default 4)
//	LOCAL_AGENT_LAUNCH        shell command started for each new agent
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/elasticd/internal/protocol"
)

const (
	stateFile      = "state.json"
	defaultMax     = 4
	pendingTimeout = 10 * time.Minute
)

const (
	statePending = "pending"
	stateIdle    = "idle"
	stateBusy    = "busy"
)

type pluginConfig struct {
	Resources    []string
	Environments []string
	MaxAgents    int
	Launch       string
}

type agentRecord struct {
	ID          string   `json:"id"`
	Resources   []string `json:"resources"`
	Environment string   `json:"environment"`
	State       string   `json:"state"`
	CreatedAt   string   `json:"created_at"`
	UpdatedAt   string   `json:"updated_at"`
}

type pluginState struct {
	Agents map[string]*agentRecord `json:"agents"`
}

// launcher starts the agent process for a new record.
type launcher func(cfg pluginConfig, rec *agentRecord) error

func main() {
	resp := handle(os.Stdin, stateFile, configFromEnv(), time.Now().UTC(), launchAgent)
	_ = json.NewEncoder(os.Stdout).Encode(resp)
}

func configFromEnv() pluginConfig {
	cfg := pluginConfig{
		Resources:    splitList(os.Getenv("LOCAL_AGENT_RESOURCES")),
		Environments: splitList(os.Getenv("LOCAL_AGENT_ENVIRONMENTS")),
		MaxAgents:    defaultMax,
		Launch:       strings.TrimSpace(os.Getenv("LOCAL_AGENT_LAUNCH")),
	}
	if len(cfg.Resources) == 0 {
		cfg.Resources = []string{"linux"}
	}
	if n, err := strconv.Atoi(os.Getenv("LOCAL_AGENT_MAX")); err == nil && n > 0 {
		cfg.MaxAgents = n
	}
	return cfg
}

func handle(r io.Reader, statePath string, cfg pluginConfig, now time.Time, launch launcher) protocol.Response {
	reqPtr, err := protocol.DecodeRequest(r)
	if err != nil {
		return errResp(err.Error())
	}
	req := *reqPtr

	state, err := loadState(statePath)
	if err != nil {
		return errResp(err.Error())
	}

	var resp protocol.Response
	dirty := false
	switch req.Operation {
	case protocol.OpCanHandle:
		ok := cfg.supports(req.Resources, req.Environment) && len(state.Agents) < cfg.MaxAgents
		resp = result(ok)
	case protocol.OpCreateAgent:
		resp, dirty = createAgent(req, cfg, state, now, launch)
	case protocol.OpServerPing:
		resp, dirty = reconcile(req.Agents, state, now)
	case protocol.OpShouldAssignWork:
		resp = shouldAssign(req, state)
	case protocol.OpAgentBusy, protocol.OpAgentIdle:
		resp, dirty = markAgent(req, state, now)
	default:
		return errResp(fmt.Sprintf("unsupported operation %q", req.Operation))
	}

	if dirty {
		if err := saveState(statePath, state); err != nil {
			return errResp(err.Error())
		}
	}
	return resp
}

func createAgent(req protocol.Request, cfg pluginConfig, state *pluginState, now time.Time, launch launcher) (protocol.Response, bool) {
	if !cfg.supports(req.Resources, req.Environment) {
		return errResp("requirements not supported by this host"), false
	}
	if len(state.Agents) >= cfg.MaxAgents {
		return errResp(fmt.Sprintf("agent limit %d reached", cfg.MaxAgents)), false
	}

	ts := now.Format(time.RFC3339)
	rec := &agentRecord{
		ID:          "local-" + uuid.NewString(),
		Resources:   req.Resources,
		Environment: req.Environment,
		State:       statePending,
		CreatedAt:   ts,
		UpdatedAt:   ts,
	}
	if err := launch(cfg, rec); err != nil {
		return errResp(fmt.Sprintf("launch agent: %v", err)), false
	}
	state.Agents[rec.ID] = rec
	return withLogs(ok(), "info", "agent "+rec.ID+" launched"), true
}

// reconcile refreshes reported agents and expires pending ones that never
// registered with the server.
func reconcile(reported []protocol.AgentMetadata, state *pluginState, now time.Time) (protocol.Response, bool) {
	resp := ok()
	dirty := false
	seen := make(map[string]bool, len(reported))
	for _, a := range reported {
		seen[a.ElasticAgentID] = true
		rec, known := state.Agents[a.ElasticAgentID]
		if !known {
			continue
		}
		next := stateIdle
		if strings.EqualFold(a.BuildState, "building") || strings.EqualFold(a.AgentState, "building") {
			next = stateBusy
		}
		if rec.State != next {
			rec.State = next
			rec.UpdatedAt = now.Format(time.RFC3339)
			dirty = true
		}
	}

	for id, rec := range state.Agents {
		if rec.State != statePending || seen[id] {
			continue
		}
		created, err := time.Parse(time.RFC3339, rec.CreatedAt)
		if err != nil || now.Sub(created) > pendingTimeout {
			delete(state.Agents, id)
			resp = withLogs(resp, "warn", "agent "+id+" never registered, forgetting it")
			dirty = true
		}
	}
	return resp, dirty
}

func shouldAssign(req protocol.Request, state *pluginState) protocol.Response {
	if req.Agent == nil {
		return errResp("agent is required")
	}
	rec, known := state.Agents[req.Agent.ElasticAgentID]
	if !known || rec.State == stateBusy {
		return result(false)
	}
	if req.Environment != "" && rec.Environment != req.Environment {
		return result(false)
	}
	for _, r := range req.Resources {
		if !slices.Contains(rec.Resources, r) {
			return result(false)
		}
	}
	return result(true)
}

func markAgent(req protocol.Request, state *pluginState, now time.Time) (protocol.Response, bool) {
	if req.Agent == nil || req.Agent.ElasticAgentID == "" {
		return errResp("agent.elastic_agent_id is required"), false
	}
	rec, known := state.Agents[req.Agent.ElasticAgentID]
	if !known {
		// Not one of ours; nothing to track.
		return ok(), false
	}
	rec.State = stateIdle
	if req.Operation == protocol.OpAgentBusy {
		rec.State = stateBusy
	}
	rec.UpdatedAt = now.Format(time.RFC3339)
	return ok(), true
}

func (c pluginConfig) supports(resources []string, environment string) bool {
	if len(c.Environments) > 0 && !slices.Contains(c.Environments, environment) {
		return false
	}
	for _, r := range resources {
		if !slices.Contains(c.Resources, r) {
			return false
		}
	}
	return true
}

func launchAgent(cfg pluginConfig, rec *agentRecord) error {
	if cfg.Launch == "" {
		return nil
	}
	cmd := exec.Command("/bin/sh", "-c", cfg.Launch)
	cmd.Env = append(os.Environ(),
		"ELASTIC_AGENT_ID="+rec.ID,
		"ELASTIC_AGENT_RESOURCES="+strings.Join(rec.Resources, ","),
		"ELASTIC_AGENT_ENVIRONMENT="+rec.Environment,
	)
	if err := cmd.Start(); err != nil {
		return err
	}
	// The agent outlives this plugin call.
	return cmd.Process.Release()
}

func loadState(path string) (*pluginState, error) {
	state := &pluginState{Agents: map[string]*agentRecord{}}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return state, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state: %w", err)
	}
	if err := json.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("parse state: %w", err)
	}
	if state.Agents == nil {
		state.Agents = map[string]*agentRecord{}
	}
	return state, nil
}

func saveState(path string, state *pluginState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".state-*.json")
	if err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func ok() protocol.Response {
	return protocol.Response{Status: "ok"}
}

func result(v bool) protocol.Response {
	return protocol.Response{Status: "ok", Result: &v}
}

func errResp(msg string) protocol.Response {
	return protocol.Response{Status: "error", Error: msg}
}

func withLogs(resp protocol.Response, level, msg string) protocol.Response {
	resp.Logs = append(resp.Logs, protocol.LogEntry{Level: level, Message: msg})
	return resp
}
