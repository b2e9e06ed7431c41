package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/mattjoyce/elasticd/internal/config"
	"github.com/mattjoyce/elasticd/internal/elastic"
	"github.com/mattjoyce/elasticd/internal/journal"
	"github.com/mattjoyce/elasticd/internal/lock"
	"github.com/mattjoyce/elasticd/internal/log"
	"github.com/mattjoyce/elasticd/internal/plugin"
	"github.com/mattjoyce/elasticd/internal/storage"
)

// exitUnmatched is returned by agent create when no plugin matched.
const exitUnmatched = 2

// setupToolLogging keeps one-shot commands quiet unless something goes wrong.
func setupToolLogging(cfg *config.Config) {
	log.Setup("warn", cfg.Service.LogFormat)
}

func printJSON(v any) int {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render JSON: %v\n", err)
		return 1
	}
	fmt.Println(string(data))
	return 0
}

// --- config ---

func runConfigCheck(args []string) int {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration check FAILED: %v\n", err)
		return 1
	}

	found, err := plugin.Discover(cfg.PluginRoots, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration check FAILED: %v\n", err)
		return 1
	}
	elasticCount := 0
	for _, d := range found {
		if d.Implements(plugin.ExtensionElasticAgent) {
			elasticCount++
		}
	}

	fmt.Printf("Config: %s\n", cfg.SourcePath)
	fmt.Printf("Plugin roots: %s\n", strings.Join(cfg.PluginRoots, ", "))
	fmt.Printf("Plugins discovered: %d (%d elastic agent)\n", len(found), elasticCount)
	if _, err := config.LoadChecksums(filepath.Dir(cfg.SourcePath)); err == nil {
		fmt.Println("Integrity: locked")
	} else {
		fmt.Println("Integrity: not locked (run 'elasticd config lock')")
	}
	fmt.Println("Status: Configuration check PASSED.")
	return 0
}

func runConfigLock(args []string) int {
	fs := flag.NewFlagSet("lock", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	path, err := config.Resolve(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, "config.yaml")
	}

	// Parse before locking so a broken file is never authorized.
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if _, err := config.Parse(data); err != nil {
		fmt.Fprintf(os.Stderr, "Refusing to lock: %v\n", err)
		return 1
	}

	manifest, err := config.Lock(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Lock failed: %v\n", err)
		return 1
	}
	for name, hash := range manifest.Hashes {
		fmt.Printf("HASH %s: %s\n", name, hash)
	}
	fmt.Printf("Wrote %s\n", filepath.Join(filepath.Dir(path), config.ChecksumFile))
	return 0
}

// --- system ---

type statusCheck struct {
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail"`
}

type statusReport struct {
	Healthy bool          `json:"healthy"`
	Running bool          `json:"running"`
	PID     int           `json:"pid,omitempty"`
	Checks  []statusCheck `json:"checks"`
}

func runSystemStatus(args []string) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output in structured JSON format")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	report := statusReport{Healthy: true}
	add := func(name string, ok bool, detail string) {
		report.Checks = append(report.Checks, statusCheck{Name: name, OK: ok, Detail: detail})
		if !ok {
			report.Healthy = false
		}
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		add("config", false, err.Error())
	} else {
		add("config", true, cfg.SourcePath)
		checkJournal(cfg, add)

		lockPath := lock.PathFor(cfg.State.Path)
		if l, err := lock.AcquirePIDLock(lockPath); err == nil {
			_ = l.Release()
			add("pid_lock", true, "not held (registry not running)")
		} else if errors.Is(err, lock.ErrLocked) {
			report.Running = true
			report.PID, _ = lock.HolderPID(lockPath)
			add("pid_lock", true, fmt.Sprintf("held by pid %d", report.PID))
		} else {
			add("pid_lock", false, err.Error())
		}
	}

	code := 0
	if !report.Healthy {
		code = 1
	}
	if *jsonOut {
		if rc := printJSON(report); rc != 0 {
			return rc
		}
		return code
	}

	for _, c := range report.Checks {
		mark := "OK  "
		if !c.OK {
			mark = "FAIL"
		}
		fmt.Printf("[%s] %-8s %s\n", mark, c.Name, c.Detail)
	}
	return code
}

func checkJournal(cfg *config.Config, add func(name string, ok bool, detail string)) {
	if _, err := os.Stat(cfg.State.Path); err != nil {
		add("journal", true, "not created yet: "+cfg.State.Path)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	db, err := storage.OpenSQLite(ctx, cfg.State.Path)
	if err != nil {
		add("journal", false, err.Error())
		return
	}
	defer db.Close()
	if _, err := journal.New(db).Recent(ctx, 1); err != nil {
		add("journal", false, err.Error())
		return
	}
	add("journal", true, cfg.State.Path)
}

// --- plugin ---

type pluginListEntry struct {
	plugin.Descriptor
	ElasticAgent bool `json:"elastic_agent"`
}

func runPluginList(args []string) int {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output in structured JSON format")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	setupToolLogging(cfg)

	stack := newRegistryStack(cfg, nil)
	if err := stack.manager.Scan(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Plugin discovery failed: %v\n", err)
		return 1
	}

	registered := make(map[string]bool)
	for _, d := range stack.registry.ListPlugins() {
		registered[d.ID] = true
	}
	entries := make([]pluginListEntry, 0)
	for _, d := range stack.manager.All() {
		entries = append(entries, pluginListEntry{Descriptor: d, ElasticAgent: registered[d.ID]})
	}

	if *jsonOut {
		return printJSON(entries)
	}

	if len(entries) == 0 {
		fmt.Println("No plugins found.")
		return 0
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tVERSION\tELASTIC AGENT\tPATH")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%t\t%s\n", e.ID, e.Version, e.ElasticAgent, e.Path)
	}
	_ = tw.Flush()
	return 0
}

// --- agent ---

type agentCreateResult struct {
	Matched  bool   `json:"matched"`
	PluginID string `json:"plugin_id,omitempty"`
	Error    string `json:"error,omitempty"`
}

func runAgentCreate(args []string) int {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	resourcesFlag := fs.String("resources", "", "Comma-separated resources the agent must provide")
	environment := fs.String("env", "", "Environment name")
	jsonOut := fs.Bool("json", false, "Output in structured JSON format")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	setupToolLogging(cfg)

	ctx := context.Background()
	var observers []elastic.Observer
	if db, err := storage.OpenSQLite(ctx, cfg.State.Path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: journal unavailable, outcome will not be recorded: %v\n", err)
	} else {
		defer db.Close()
		observers = append(observers, provisionOnly{journal.New(db)})
	}

	stack := newRegistryStack(cfg, nil, observers...)
	if err := stack.manager.Scan(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Plugin discovery failed: %v\n", err)
		return 1
	}

	out, callErr := stack.registry.CreateAgent(ctx, splitList(*resourcesFlag), *environment)
	result := agentCreateResult{Matched: out.Matched}
	if out.Matched {
		result.PluginID = out.Plugin.ID
	}
	if callErr != nil {
		result.Error = callErr.Error()
	}

	code := 0
	switch {
	case callErr != nil:
		code = 1
	case !out.Matched:
		code = exitUnmatched
	}

	if *jsonOut {
		if rc := printJSON(result); rc != 0 {
			return rc
		}
		return code
	}

	switch {
	case callErr != nil:
		fmt.Fprintf(os.Stderr, "Agent creation failed: %v\n", callErr)
	case !out.Matched:
		fmt.Fprintln(os.Stderr, "No plugin can handle these requirements.")
	default:
		fmt.Printf("Agent creation requested from plugin %s\n", out.Plugin.ID)
	}
	return code
}

// provisionOnly forwards provisioning outcomes and drops membership changes,
// so a one-shot command does not journal every plugin it loads.
type provisionOnly struct {
	elastic.Observer
}

func (provisionOnly) PluginRecorded(plugin.Descriptor, int) {}
func (provisionOnly) PluginRemoved(plugin.Descriptor, int)  {}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// --- journal ---

func runJournalTail(args []string) int {
	fs := flag.NewFlagSet("tail", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	limit := fs.Int("n", 20, "Number of entries to show")
	jsonOut := fs.Bool("json", false, "Output in structured JSON format")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if *limit <= 0 {
		fmt.Fprintln(os.Stderr, "-n must be positive")
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	setupToolLogging(cfg)

	ctx := context.Background()
	db, err := storage.OpenSQLite(ctx, cfg.State.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open journal: %v\n", err)
		return 1
	}
	defer db.Close()

	entries, err := journal.New(db).Recent(ctx, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read journal: %v\n", err)
		return 1
	}

	if *jsonOut {
		if entries == nil {
			entries = []journal.Entry{}
		}
		return printJSON(entries)
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tKIND\tPLUGIN\tDETAIL")
	for _, e := range entries {
		pluginID := e.PluginID
		if pluginID == "" {
			pluginID = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.CreatedAt.Format(time.RFC3339), e.Kind, pluginID, string(e.Detail))
	}
	_ = tw.Flush()
	return 0
}
