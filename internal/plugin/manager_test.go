package plugin

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type eventListener struct {
	mu     sync.Mutex
	events []string
	reject error
}

func (l *eventListener) PluginLoaded(_ context.Context, d Descriptor) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, "load:"+d.ID)
	return l.reject
}

func (l *eventListener) PluginUnloaded(_ context.Context, d Descriptor) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, "unload:"+d.ID)
}

func (l *eventListener) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestManagerScanEmitsLoadAndUnload(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	writeTestPlugin(t, root, "a-docker", manifestYAML("docker", "extensions: [elastic-agent]\n"))
	writeTestPlugin(t, root, "b-k8s", manifestYAML("k8s", "extensions: [elastic-agent]\n"))

	m := NewManager([]string{root}, quietLogger())
	l := &eventListener{}
	m.AddListener(l)

	require.NoError(t, m.Scan(ctx))
	assert.Equal(t, []string{"load:docker", "load:k8s"}, l.snapshot())

	d, ok := m.Get("docker")
	require.True(t, ok)
	assert.Equal(t, "docker", d.ID)

	// A rescan with no changes is quiet.
	require.NoError(t, m.Scan(ctx))
	assert.Len(t, l.snapshot(), 2)

	require.NoError(t, os.RemoveAll(filepath.Join(root, "a-docker")))
	require.NoError(t, m.Scan(ctx))
	assert.Equal(t, []string{"load:docker", "load:k8s", "unload:docker"}, l.snapshot())

	_, ok = m.Get("docker")
	assert.False(t, ok)
	assert.Len(t, m.All(), 1)
}

func TestManagerScanReloadsChangedManifest(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	dir := writeTestPlugin(t, root, "docker", manifestYAML("docker", "extensions: [elastic-agent]\n"))

	m := NewManager([]string{root}, quietLogger())
	l := &eventListener{}
	m.AddListener(l)
	require.NoError(t, m.Scan(ctx))
	before, _ := m.Get("docker")

	changed := manifestYAML("docker", "extensions: [elastic-agent]\ndescription: v2\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "manifest.yaml"), []byte(changed), 0644))
	require.NoError(t, m.Scan(ctx))

	after, _ := m.Get("docker")
	assert.NotEqual(t, before.Fingerprint, after.Fingerprint)
	assert.Equal(t, []string{"load:docker", "unload:docker", "load:docker"}, l.snapshot())
}

func TestManagerListenerRejectionKeepsPluginLoaded(t *testing.T) {
	root := t.TempDir()
	writeTestPlugin(t, root, "docker", manifestYAML("docker", ""))

	m := NewManager([]string{root}, quietLogger())
	m.AddListener(&eventListener{reject: errors.New("duplicate")})
	require.NoError(t, m.Scan(context.Background()))

	_, ok := m.Get("docker")
	assert.True(t, ok)
}

func TestManagerShutdownUnloadsInReverseOrder(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	writeTestPlugin(t, root, "a", manifestYAML("a", ""))
	writeTestPlugin(t, root, "b", manifestYAML("b", ""))

	m := NewManager([]string{root}, quietLogger())
	l := &eventListener{}
	m.AddListener(l)
	require.NoError(t, m.Scan(ctx))

	m.Shutdown(ctx)
	assert.Equal(t, []string{"load:a", "load:b", "unload:b", "unload:a"}, l.snapshot())
	assert.Empty(t, m.All())
}

func TestManagerRunStopsOnCancel(t *testing.T) {
	root := t.TempDir()
	writeTestPlugin(t, root, "docker", manifestYAML("docker", ""))

	m := NewManager([]string{root}, quietLogger())
	l := &eventListener{}
	m.AddListener(l)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx, 10*time.Millisecond) }()

	require.Eventually(t, func() bool { return len(l.snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestManagerScanMissingRoot(t *testing.T) {
	m := NewManager([]string{"/nonexistent/path"}, quietLogger())
	assert.Error(t, m.Scan(context.Background()))
}
