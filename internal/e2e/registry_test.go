// Package e2e exercises the registry end to end: plugin discovery, the
// subprocess protocol, first-match selection and the HTTP API.
package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/elasticd/internal/api"
	"github.com/mattjoyce/elasticd/internal/elastic"
	"github.com/mattjoyce/elasticd/internal/events"
	"github.com/mattjoyce/elasticd/internal/extension"
	"github.com/mattjoyce/elasticd/internal/journal"
	"github.com/mattjoyce/elasticd/internal/log"
	"github.com/mattjoyce/elasticd/internal/plugin"
	"github.com/mattjoyce/elasticd/internal/storage"
)

const apiKey = "e2e-key"

// gpuScript only accepts requests mentioning the gpu resource.
const gpuScript = `#!/bin/sh
input=$(cat)
case "$input" in
  *'"operation":"can-handle"'*)
    case "$input" in
      *'"gpu"'*) echo '{"status":"ok","result":true}' ;;
      *) echo '{"status":"ok","result":false}' ;;
    esac ;;
  *'"operation":"create-agent"'*)
    echo create >> calls.log
    echo '{"status":"ok"}' ;;
  *'"operation":"should-assign-work"'*)
    echo '{"status":"ok","result":true}' ;;
  *'"operation":"agent-busy"'*)
    echo busy >> calls.log
    echo '{"status":"ok"}' ;;
  *)
    echo '{"status":"ok"}' ;;
esac
`

// generalScript accepts everything and fails to create.
const generalScript = `#!/bin/sh
input=$(cat)
case "$input" in
  *'"operation":"can-handle"'*) echo '{"status":"ok","result":true}' ;;
  *'"operation":"create-agent"'*) echo '{"status":"error","error":"quota exceeded"}' ;;
  *) echo '{"status":"ok"}' ;;
esac
`

// nonElasticScript would accept anything but does not declare the extension.
const nonElasticScript = `#!/bin/sh
cat >/dev/null
echo '{"status":"ok","result":true}'
`

type stack struct {
	manager  *plugin.Manager
	registry *elastic.Registry
	journal  *journal.Journal
	server   *httptest.Server
	dirs     map[string]string
}

func writePlugin(t *testing.T, root, id, extensions, script string) string {
	t.Helper()
	dir := filepath.Join(root, id)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	manifest := "manifest_spec: elasticd.plugin\nmanifest_version: 1\nid: " + id +
		"\nversion: 1.0.0\nprotocol: 1\nentrypoint: run.sh\nextensions: " + extensions + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "manifest.yaml"), []byte(manifest), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "run.sh"), []byte(script), 0o755))
	return dir
}

// newStack wires the registry the way system start does. The gpu root is
// listed first so its plugin comes first in load order.
func newStack(t *testing.T) *stack {
	t.Helper()
	log.Setup("error", "text")

	base := t.TempDir()
	gpuRoot := filepath.Join(base, "gpu")
	generalRoot := filepath.Join(base, "general")
	dirs := map[string]string{
		"gpu-pool": writePlugin(t, gpuRoot, "gpu-pool", "[elastic-agent]", gpuScript),
		"general":  writePlugin(t, generalRoot, "general", "[elastic-agent]", generalScript),
		"notifier": writePlugin(t, generalRoot, "notifier", "[]", nonElasticScript),
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	db, err := storage.OpenSQLite(ctx, filepath.Join(base, "elasticd.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	jr := journal.New(db)

	manager := plugin.NewManager([]string{gpuRoot, generalRoot}, log.WithComponent("plugin"))
	timeouts := extension.DefaultTimeouts()
	client := extension.NewClient(manager, timeouts)
	registry := elastic.NewRegistry(client,
		elastic.WithLogger(log.WithComponent("registry")),
		elastic.WithObserver(jr),
	)
	manager.AddListener(registry)
	require.NoError(t, manager.Scan(ctx))

	hub := events.NewHub(16)
	srv := api.New(api.Config{APIKey: apiKey}, registry, api.NewRoster(), hub, jr, nil, log.WithComponent("api"))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &stack{manager: manager, registry: registry, journal: jr, server: ts, dirs: dirs}
}

func (s *stack) post(t *testing.T, path string, body any) (int, []byte) {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, s.server.URL+path, bytes.NewReader(b))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, out
}

func (s *stack) calls(t *testing.T, id string) []string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(s.dirs[id], "calls.log"))
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	return strings.Fields(string(b))
}

func TestRegistryOnlyHoldsElasticPlugins(t *testing.T) {
	s := newStack(t)

	ids := make([]string, 0)
	for _, d := range s.registry.ListPlugins() {
		ids = append(ids, d.ID)
	}
	assert.Equal(t, []string{"gpu-pool", "general"}, ids)
	assert.Len(t, s.manager.All(), 3)
}

func TestCreateAgentUsesFirstMatchingPlugin(t *testing.T) {
	s := newStack(t)

	status, body := s.post(t, "/agents", map[string]any{"resources": []string{"gpu", "linux"}, "environment": "prod"})
	require.Equal(t, http.StatusAccepted, status, string(body))

	var resp api.CreateAgentResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	assert.True(t, resp.Matched)
	assert.Equal(t, "gpu-pool", resp.PluginID)
	assert.Equal(t, []string{"create"}, s.calls(t, "gpu-pool"))
}

func TestCreateAgentFallsThroughAndSurfacesPluginError(t *testing.T) {
	s := newStack(t)

	status, body := s.post(t, "/agents", map[string]any{"resources": []string{"linux"}, "environment": "prod"})
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Contains(t, string(body), "quota exceeded")
	assert.Empty(t, s.calls(t, "gpu-pool"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	entries, err := s.journal.Recent(ctx, 10)
	require.NoError(t, err)
	last := entries[len(entries)-1]
	assert.Equal(t, journal.KindProvision, last.Kind)
	assert.Equal(t, "general", last.PluginID)
	assert.Contains(t, string(last.Detail), "quota exceeded")
}

func TestAgentLifecycleCallsReachOwningPlugin(t *testing.T) {
	s := newStack(t)
	agent := map[string]any{"elastic_agent_id": "ea-1", "agent_state": "Idle"}

	status, body := s.post(t, "/plugins/gpu-pool/should-assign-work", map[string]any{
		"agent": agent, "resources": []string{"gpu"}, "environment": "prod",
	})
	require.Equal(t, http.StatusOK, status, string(body))
	assert.JSONEq(t, `{"assign":true}`, string(body))

	status, body = s.post(t, "/plugins/gpu-pool/agents/busy", map[string]any{"agent": agent})
	require.Equal(t, http.StatusOK, status, string(body))
	assert.Equal(t, []string{"busy"}, s.calls(t, "gpu-pool"))

	status, _ = s.post(t, "/plugins/gpu-pool/ping", map[string]any{})
	assert.Equal(t, http.StatusOK, status)

	status, _ = s.post(t, "/plugins/notifier/ping", map[string]any{})
	assert.Equal(t, http.StatusNotFound, status)
}

func TestRemovedPluginLeavesRegistry(t *testing.T) {
	s := newStack(t)
	require.NoError(t, os.RemoveAll(s.dirs["gpu-pool"]))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.manager.Scan(ctx))

	ids := make([]string, 0)
	for _, d := range s.registry.ListPlugins() {
		ids = append(ids, d.ID)
	}
	assert.Equal(t, []string{"general"}, ids)

	status, body := s.post(t, "/agents", map[string]any{"resources": []string{"gpu"}})
	assert.Equal(t, http.StatusBadGateway, status, string(body))
}
