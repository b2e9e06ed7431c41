package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/mattjoyce/elasticd/internal/api"
	"github.com/mattjoyce/elasticd/internal/auth"
	"github.com/mattjoyce/elasticd/internal/config"
	"github.com/mattjoyce/elasticd/internal/elastic"
	"github.com/mattjoyce/elasticd/internal/events"
	"github.com/mattjoyce/elasticd/internal/extension"
	"github.com/mattjoyce/elasticd/internal/journal"
	"github.com/mattjoyce/elasticd/internal/lock"
	"github.com/mattjoyce/elasticd/internal/log"
	"github.com/mattjoyce/elasticd/internal/metrics"
	"github.com/mattjoyce/elasticd/internal/plugin"
	"github.com/mattjoyce/elasticd/internal/scheduler"
	"github.com/mattjoyce/elasticd/internal/storage"
)

// shutdownTimeout bounds unloading plugins on exit.
const shutdownTimeout = 10 * time.Second

// registryStack is the plugin manager, extension client and registry wired
// together. The registry listens to the manager.
type registryStack struct {
	manager  *plugin.Manager
	client   *extension.Client
	registry *elastic.Registry
}

func newRegistryStack(cfg *config.Config, calls extension.CallObserver, observers ...elastic.Observer) *registryStack {
	manager := plugin.NewManager(cfg.PluginRoots, log.WithComponent("plugin"))

	clientOpts := []extension.Option{}
	if cfg.Extension.GracePeriod > 0 {
		clientOpts = append(clientOpts, extension.WithGracePeriod(cfg.Extension.GracePeriod))
	}
	if calls != nil {
		clientOpts = append(clientOpts, extension.WithObserver(calls))
	}
	t := cfg.Extension.Timeouts
	client := extension.NewClient(manager, extension.Timeouts{
		Capability:       t.Capability,
		CreateAgent:      t.CreateAgent,
		ServerPing:       t.ServerPing,
		ShouldAssignWork: t.ShouldAssignWork,
		Notify:           t.Notify,
	}, clientOpts...)

	registryOpts := []elastic.Option{elastic.WithLogger(log.WithComponent("registry"))}
	for _, o := range observers {
		registryOpts = append(registryOpts, elastic.WithObserver(o))
	}
	registry := elastic.NewRegistry(client, registryOpts...)
	manager.AddListener(registry)

	return &registryStack{manager: manager, client: client, registry: registry}
}

// loadConfig resolves and loads the config named by --config.
func loadConfig(explicit string) (*config.Config, error) {
	path, err := config.Resolve(explicit)
	if err != nil {
		return nil, err
	}
	return config.Load(path)
}

func apiTokens(cfg *config.Config) []auth.TokenConfig {
	tokens := make([]auth.TokenConfig, 0, len(cfg.API.Auth.Tokens))
	for _, t := range cfg.API.Auth.Tokens {
		tokens = append(tokens, auth.TokenConfig{Token: t.Token, Scopes: t.Scopes})
	}
	return tokens
}

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("main")
	logger.Info("elasticd starting", "version", version, "config", cfg.SourcePath)

	pidLockPath := lock.PathFor(cfg.State.Path)
	pidLock, err := lock.AcquirePIDLock(pidLockPath)
	if err != nil {
		logger.Error("failed to acquire PID lock", "path", pidLockPath, "error", err)
		return 1
	}
	defer pidLock.Release()
	logger.Info("acquired PID lock", "path", pidLockPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := storage.OpenSQLite(ctx, cfg.State.Path)
	if err != nil {
		logger.Error("failed to open journal database", "path", cfg.State.Path, "error", err)
		return 1
	}
	defer db.Close()
	logger.Info("journal database opened", "path", cfg.State.Path)

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(promRegistry)

	jr := journal.New(db)
	hub := events.NewHub(256)
	roster := api.NewRoster()

	stack := newRegistryStack(cfg, collector,
		collector,
		jr,
		events.NewRegistryPublisher(hub),
		roster,
	)

	sched := scheduler.New(cfg, stack.registry, roster.Agents, jr, hub, log.WithComponent("main"))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 2)

	go func() {
		if err := stack.manager.Run(ctx, cfg.RescanInterval); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("plugin manager: %w", err)
		}
	}()

	sched.Start(ctx)

	if cfg.API.Enabled {
		apiServer := api.New(api.Config{
			Listen: cfg.API.Listen,
			APIKey: cfg.API.Auth.APIKey,
			Tokens: apiTokens(cfg),
		}, stack.registry, roster, hub, jr, promRegistry, log.WithComponent("api"))
		go func() {
			if err := apiServer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("api: %w", err)
			}
		}()
		logger.Info("API server enabled", "listen", cfg.API.Listen)
	}

	logger.Info("elasticd running (press Ctrl+C to stop)")

	code := 0
	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		logger.Error("component failed", "error", err)
		code = 1
	}

	cancel()
	sched.Stop()
	shutdown(stack, logger)

	logger.Info("elasticd stopped")
	return code
}

// shutdown unloads every plugin so the registry and journal see the removals.
func shutdown(stack *registryStack, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	stack.manager.Shutdown(ctx)
	logger.Info("plugins unloaded", "remaining", len(stack.registry.ListPlugins()))
}
