package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mattjoyce/elasticd/internal/extension"
	"github.com/mattjoyce/elasticd/internal/plugin"
	"github.com/mattjoyce/elasticd/internal/protocol"
)

const (
	maxBodyBytes        = 1 << 20
	defaultJournalLimit = 50
	maxJournalLimit     = 1000
)

// handleHealthz handles GET /healthz (no auth).
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		PluginsLoaded: len(s.registry.ListPlugins()),
		AgentsTracked: s.roster.Len(),
		EventsDropped: s.events.Dropped(),
	})
}

// handleListPlugins handles GET /plugins.
func (s *Server) handleListPlugins(w http.ResponseWriter, r *http.Request) {
	plugins := s.registry.ListPlugins()
	if plugins == nil {
		plugins = []plugin.Descriptor{}
	}
	respondJSON(w, http.StatusOK, PluginsResponse{Plugins: plugins})
}

// handleListAgents handles GET /agents.
func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, AgentsResponse{Agents: s.roster.All()})
}

// handleCreateAgent handles POST /agents.
func (s *Server) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	var req CreateAgentRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	out, err := s.registry.CreateAgent(r.Context(), req.Resources, req.Environment)
	if err != nil {
		s.writeCallError(w, err)
		return
	}

	resp := CreateAgentResponse{Matched: out.Matched}
	if out.Matched {
		resp.PluginID = out.Plugin.ID
	}
	respondJSON(w, http.StatusAccepted, resp)
}

// handlePing handles POST /plugins/{pluginID}/ping.
func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	d, ok := s.lookupPlugin(w, r)
	if !ok {
		return
	}

	var req PingRequest
	if err := decodeOptionalBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	agents := req.Agents
	if agents == nil {
		agents = s.roster.Agents(d.ID)
	}

	if err := s.registry.ServerPing(r.Context(), d.ID, agents); err != nil {
		s.writeCallError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

// handleShouldAssignWork handles POST /plugins/{pluginID}/should-assign-work.
func (s *Server) handleShouldAssignWork(w http.ResponseWriter, r *http.Request) {
	d, ok := s.lookupPlugin(w, r)
	if !ok {
		return
	}

	var req ShouldAssignWorkRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Agent.ElasticAgentID == "" {
		s.writeError(w, http.StatusBadRequest, "agent.elastic_agent_id is required")
		return
	}

	assign, err := s.registry.ShouldAssignWork(r.Context(), d, req.Agent, req.Resources, req.Environment)
	if err != nil {
		s.writeCallError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ShouldAssignWorkResponse{Assign: assign})
}

// handleAgentBusy handles POST /plugins/{pluginID}/agents/busy.
func (s *Server) handleAgentBusy(w http.ResponseWriter, r *http.Request) {
	s.handleAgentNotify(w, r, s.registry.NotifyAgentBusy)
}

// handleAgentIdle handles POST /plugins/{pluginID}/agents/idle.
func (s *Server) handleAgentIdle(w http.ResponseWriter, r *http.Request) {
	s.handleAgentNotify(w, r, s.registry.NotifyAgentIdle)
}

type notifyFunc func(ctx context.Context, d plugin.Descriptor, agent protocol.AgentMetadata) error

func (s *Server) handleAgentNotify(w http.ResponseWriter, r *http.Request, notify notifyFunc) {
	d, ok := s.lookupPlugin(w, r)
	if !ok {
		return
	}

	var req AgentRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Agent.ElasticAgentID == "" {
		s.writeError(w, http.StatusBadRequest, "agent.elastic_agent_id is required")
		return
	}

	s.roster.Track(d.ID, req.Agent)

	if err := notify(r.Context(), d, req.Agent); err != nil {
		s.writeCallError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

// handleJournal handles GET /journal?limit=N.
func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	limit := defaultJournalLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxJournalLimit {
			s.writeError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}

	entries, err := s.journal.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to read journal", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to read journal")
		return
	}
	respondJSON(w, http.StatusOK, JournalResponse{Entries: entries})
}

// handleOpenAPI handles GET /openapi.json.
func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, buildOpenAPIDoc(s.registry.ListPlugins()))
}

// lookupPlugin resolves the {pluginID} path parameter against the registry
// and writes a 404 when it is not registered.
func (s *Server) lookupPlugin(w http.ResponseWriter, r *http.Request) (plugin.Descriptor, bool) {
	id := chi.URLParam(r, "pluginID")
	if d, ok := s.registry.Plugin(id); ok {
		return d, true
	}
	s.writeError(w, http.StatusNotFound, "plugin not registered: "+id)
	return plugin.Descriptor{}, false
}

// writeCallError maps a failed registry call to a status code.
func (s *Server) writeCallError(w http.ResponseWriter, err error) {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		s.logger.Warn("plugin call failed", "status", status, "error", err)
	}
	s.writeError(w, status, err.Error())
}

func statusForError(err error) int {
	var invErr *extension.InvocationError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, extension.ErrPluginNotLoaded):
		return http.StatusNotFound
	case errors.As(err, &invErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

var errBodyRequired = errors.New("request body is required")

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errBodyRequired
		}
		return errors.New("invalid JSON body: " + err.Error())
	}
	return nil
}

// decodeOptionalBody is decodeBody that accepts an empty body.
func decodeOptionalBody(r *http.Request, v any) error {
	if err := decodeBody(r, v); err != nil && !errors.Is(err, errBodyRequired) {
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
