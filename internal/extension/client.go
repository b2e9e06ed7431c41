package extension

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/elasticd/internal/elastic"
	"github.com/mattjoyce/elasticd/internal/log"
	"github.com/mattjoyce/elasticd/internal/plugin"
	"github.com/mattjoyce/elasticd/internal/protocol"
)

const (
	// maxStderrBytes caps the amount of stderr captured from a plugin call.
	maxStderrBytes = 64 * 1024

	// defaultGracePeriod is the time we wait after SIGTERM before sending SIGKILL.
	defaultGracePeriod = 5 * time.Second
)

// PluginLookup resolves a loaded plugin by ID.
type PluginLookup interface {
	Get(id string) (plugin.Descriptor, bool)
}

// CallObserver is told about every call across the boundary.
type CallObserver interface {
	ObserveExtensionCall(operation string, d time.Duration, err error)
}

// Timeouts bounds each kind of call.
type Timeouts struct {
	Capability       time.Duration
	CreateAgent      time.Duration
	ServerPing       time.Duration
	ShouldAssignWork time.Duration
	Notify           time.Duration
}

// DefaultTimeouts returns the timeouts used when none are configured.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Capability:       10 * time.Second,
		CreateAgent:      60 * time.Second,
		ServerPing:       30 * time.Second,
		ShouldAssignWork: 10 * time.Second,
		Notify:           10 * time.Second,
	}
}

// For returns the timeout for op, falling back to the defaults.
func (t Timeouts) For(op protocol.Operation) time.Duration {
	def := DefaultTimeouts()
	pick := func(v, fallback time.Duration) time.Duration {
		if v > 0 {
			return v
		}
		return fallback
	}

	switch op {
	case protocol.OpCanHandle:
		return pick(t.Capability, def.Capability)
	case protocol.OpCreateAgent:
		return pick(t.CreateAgent, def.CreateAgent)
	case protocol.OpServerPing:
		return pick(t.ServerPing, def.ServerPing)
	case protocol.OpShouldAssignWork:
		return pick(t.ShouldAssignWork, def.ShouldAssignWork)
	case protocol.OpAgentBusy, protocol.OpAgentIdle:
		return pick(t.Notify, def.Notify)
	default:
		return 60 * time.Second
	}
}

// Option configures a Client.
type Option func(*Client)

// WithObserver reports every call to o.
func WithObserver(o CallObserver) Option {
	return func(c *Client) { c.observer = o }
}

// WithGracePeriod overrides the SIGTERM to SIGKILL grace period.
func WithGracePeriod(d time.Duration) Option {
	return func(c *Client) { c.grace = d }
}

// Client implements elastic.Extension by spawning plugin entrypoints.
type Client struct {
	plugins  PluginLookup
	timeouts Timeouts
	grace    time.Duration
	observer CallObserver
	logger   *slog.Logger
}

var _ elastic.Extension = (*Client)(nil)

// NewClient creates a client that resolves plugins through plugins.
func NewClient(plugins PluginLookup, timeouts Timeouts, opts ...Option) *Client {
	c := &Client{
		plugins:  plugins,
		timeouts: timeouts,
		grace:    defaultGracePeriod,
		logger:   log.WithComponent("extension"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CanHandlePlugin reports whether the plugin is loaded and declares the
// elastic agent extension. It does not spawn the plugin.
func (c *Client) CanHandlePlugin(_ context.Context, pluginID string) (bool, error) {
	d, ok := c.plugins.Get(pluginID)
	if !ok {
		return false, nil
	}
	return d.Implements(plugin.ExtensionElasticAgent), nil
}

// CanPluginHandle asks the plugin whether it can provision an agent for the request.
func (c *Client) CanPluginHandle(ctx context.Context, pluginID string, resources []string, environment string) (bool, error) {
	resp, err := c.invoke(ctx, &protocol.Request{
		Operation:   protocol.OpCanHandle,
		PluginID:    pluginID,
		Resources:   resources,
		Environment: environment,
	})
	if err != nil {
		return false, err
	}
	return resp.Verdict(), nil
}

// CreateAgent asks the plugin to provision an agent.
func (c *Client) CreateAgent(ctx context.Context, pluginID string, resources []string, environment string) error {
	_, err := c.invoke(ctx, &protocol.Request{
		Operation:   protocol.OpCreateAgent,
		PluginID:    pluginID,
		Resources:   resources,
		Environment: environment,
	})
	return err
}

// ServerPing hands the plugin the agents it owns.
func (c *Client) ServerPing(ctx context.Context, pluginID string, agents []protocol.AgentMetadata) error {
	_, err := c.invoke(ctx, &protocol.Request{
		Operation: protocol.OpServerPing,
		PluginID:  pluginID,
		Agents:    agents,
	})
	return err
}

// ShouldAssignWork asks the plugin whether agent may take the work.
func (c *Client) ShouldAssignWork(ctx context.Context, pluginID string, agent protocol.AgentMetadata, resources []string, environment string) (bool, error) {
	resp, err := c.invoke(ctx, &protocol.Request{
		Operation:   protocol.OpShouldAssignWork,
		PluginID:    pluginID,
		Agent:       &agent,
		Resources:   resources,
		Environment: environment,
	})
	if err != nil {
		return false, err
	}
	return resp.Verdict(), nil
}

// NotifyAgentBusy tells the plugin that agent started work.
func (c *Client) NotifyAgentBusy(ctx context.Context, pluginID string, agent protocol.AgentMetadata) error {
	_, err := c.invoke(ctx, &protocol.Request{
		Operation: protocol.OpAgentBusy,
		PluginID:  pluginID,
		Agent:     &agent,
	})
	return err
}

// NotifyAgentIdle tells the plugin that agent finished work.
func (c *Client) NotifyAgentIdle(ctx context.Context, pluginID string, agent protocol.AgentMetadata) error {
	_, err := c.invoke(ctx, &protocol.Request{
		Operation: protocol.OpAgentIdle,
		PluginID:  pluginID,
		Agent:     &agent,
	})
	return err
}

// invoke fills in the envelope, runs the plugin and maps failures to InvocationError.
func (c *Client) invoke(ctx context.Context, req *protocol.Request) (resp *protocol.Response, err error) {
	start := time.Now()
	defer func() {
		if c.observer != nil {
			c.observer.ObserveExtensionCall(string(req.Operation), time.Since(start), err)
		}
	}()

	fail := func(stderr string, cause error) error {
		return &InvocationError{PluginID: req.PluginID, Operation: req.Operation, Stderr: stderr, Err: cause}
	}

	d, ok := c.plugins.Get(req.PluginID)
	if !ok {
		return nil, fail("", ErrPluginNotLoaded)
	}

	timeout := c.timeouts.For(req.Operation)
	req.Protocol = protocol.Version
	req.RequestID = uuid.NewString()
	req.Extension = protocol.ExtensionElasticAgent
	req.DeadlineAt = time.Now().Add(timeout).UTC()

	callLogger := log.ForCall(req.RequestID, req.PluginID, string(req.Operation))

	resp, stderr, err := c.spawn(ctx, d, req, timeout, callLogger)
	if err != nil {
		return nil, fail(stderr, err)
	}

	for _, entry := range resp.Logs {
		callLogger.Log(ctx, log.ParseLevel(entry.Level), entry.Message, "source", "plugin")
	}

	if resp.Status == "error" {
		callLogger.Warn("plugin returned error", "error", resp.Error)
		return nil, fail(stderr, fmt.Errorf("%w: %s", ErrPluginFailed, resp.Error))
	}
	return resp, nil
}

// spawn runs the plugin entrypoint, feeds the request on stdin and reads the
// response from stdout. Returns the response, stderr output, and any error.
func (c *Client) spawn(
	ctx context.Context,
	d plugin.Descriptor,
	req *protocol.Request,
	timeout time.Duration,
	logger *slog.Logger,
) (*protocol.Response, string, error) {
	timeoutTimer := time.NewTimer(timeout)
	defer timeoutTimer.Stop()

	// Termination is managed here rather than through CommandContext so the
	// plugin gets SIGTERM and a grace period first.
	cmd := exec.Command(d.Entrypoint)
	cmd.Dir = d.Path

	var input bytes.Buffer
	if err := protocol.EncodeRequest(&input, req); err != nil {
		return nil, "", fmt.Errorf("encode request: %w", err)
	}
	// Plugins may answer without reading stdin; exec ignores the EPIPE.
	cmd.Stdin = &input

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger.Debug("spawning plugin", "entrypoint", d.Entrypoint, "timeout", timeout)

	if err := cmd.Start(); err != nil {
		return nil, "", fmt.Errorf("start process: %w", err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
	}()

	var abortErr error
	select {
	case <-timeoutTimer.C:
		abortErr = context.DeadlineExceeded
		logger.Warn("plugin call timed out, sending SIGTERM", "timeout", timeout)
	case <-ctx.Done():
		abortErr = ctx.Err()
		logger.Warn("plugin call cancelled, sending SIGTERM", "error", abortErr)
	case err := <-waitErr:
		stderrStr := truncateStderr(stderr.String())

		if err != nil {
			if exitErr, ok := err.(*exec.ExitError); ok {
				logger.Warn("plugin exited with non-zero status", "exit_code", exitErr.ExitCode())
			} else {
				return nil, stderrStr, fmt.Errorf("wait for process: %w", err)
			}
		}

		resp, rawBytes, err := protocol.DecodeResponse(bytes.NewReader(stdout.Bytes()), req.Operation)
		if err != nil {
			logger.Error("failed to decode plugin response", "error", err, "stdout", string(rawBytes))
			return nil, stderrStr, fmt.Errorf("decode response: %w", err)
		}
		return resp, stderrStr, nil
	}

	c.terminate(cmd, waitErr, logger)
	return nil, truncateStderr(stderr.String()), abortErr
}

// terminate sends SIGTERM, waits for the grace period, then SIGKILL.
func (c *Client) terminate(cmd *exec.Cmd, waitErr <-chan error, logger *slog.Logger) {
	if cmd.Process != nil {
		if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
			logger.Error("failed to send SIGTERM", "error", err)
		}
	}

	grace := time.NewTimer(c.grace)
	defer grace.Stop()

	select {
	case <-waitErr:
		logger.Info("plugin exited after SIGTERM")
	case <-grace.C:
		logger.Warn("plugin did not exit after SIGTERM, sending SIGKILL")
		if cmd.Process != nil {
			if err := cmd.Process.Kill(); err != nil {
				logger.Error("failed to send SIGKILL", "error", err)
			}
		}
		<-waitErr
	}
}

// truncateStderr truncates stderr to maxStderrBytes.
func truncateStderr(s string) string {
	if len(s) > maxStderrBytes {
		return s[:maxStderrBytes]
	}
	return s
}
