package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"runtime/debug"
	"strings"
	"time"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(cliArgs []string) int {
	if len(cliArgs) < 1 {
		printUsage()
		return 1
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	switch cmd {
	// --- NOUNS ---
	case "system":
		return runSystemNoun(args)
	case "config":
		return runConfigNoun(args)
	case "plugin":
		return runPluginNoun(args)
	case "agent":
		return runAgentNoun(args)
	case "journal":
		return runJournalNoun(args)

	// --- ROOT ALIASES ---
	case "start":
		return runStart(args)
	case "version", "--version":
		return runVersion(args)
	case "help", "--help", "-h":
		printUsage()
		return 0

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		return 1
	}
}

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func runVersion(args []string) int {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output version metadata as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "Usage: elasticd version [--json]")
		return 1
	}

	info := currentVersionInfo()

	if *jsonOut {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render version JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	fmt.Printf("elasticd %s\n", info.Version)
	fmt.Printf("commit: %s\n", info.Commit)
	fmt.Printf("built_at: %s\n", info.BuildTime)
	return 0
}

func currentVersionInfo() versionInfo {
	info := versionInfo{
		Version:   strings.TrimSpace(version),
		Commit:    "unknown",
		BuildTime: "unknown",
	}

	if info.Version == "" {
		info.Version = "0.0.0-dev"
	}

	resolvedCommit := strings.TrimSpace(gitCommit)
	if resolvedCommit == "" || resolvedCommit == "unknown" {
		resolvedCommit = strings.TrimSpace(readBuildSetting("vcs.revision"))
	}
	if resolvedCommit != "" {
		info.Commit = shortenCommit(resolvedCommit)
	}

	resolvedBuildTime := strings.TrimSpace(buildDate)
	if resolvedBuildTime == "" || resolvedBuildTime == "unknown" {
		resolvedBuildTime = strings.TrimSpace(readBuildSetting("vcs.time"))
	}
	if normalized, ok := normalizeBuildTimeUTC(resolvedBuildTime); ok {
		info.BuildTime = normalized
	}

	return info
}

func shortenCommit(commit string) string {
	if len(commit) <= 12 {
		return commit
	}
	return commit[:12]
}

func normalizeBuildTimeUTC(raw string) (string, bool) {
	if raw == "" || raw == "unknown" {
		return "", false
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return "", false
	}
	return t.UTC().Format(time.RFC3339), true
}

func readBuildSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == key {
			return setting.Value
		}
	}
	return ""
}

func printUsage() {
	fmt.Print(`elasticd - Elastic agent plugin registry

Usage:
  elasticd <noun> <action> [flags]

Core Resources (Nouns):
  system    Registry lifecycle and health
  config    Configuration and integrity
  plugin    Elastic agent plugin discovery
  agent     Agent provisioning
  journal   Registry journal

System Commands:
  system start      Start the registry in the foreground
  system status     Show config, journal and PID lock health

Config Commands:
  config check      Validate configuration
  config lock       Record integrity hashes for the current config

Plugin Commands:
  plugin list       Show discovered plugins and which can provision agents

Agent Commands:
  agent create      Ask the first matching plugin to create an agent

Journal Commands:
  journal tail      Show recent journal entries

General:
  version           Show version information
  help              Show this help message

Use 'elasticd <noun> help' for resource-specific flags.
`)
}

// --- NOUN DISPATCHERS ---

type action struct {
	run  func(args []string) int
	help func()
}

func dispatchNoun(noun string, args []string, actions map[string]action, nounHelp func(w *os.File)) int {
	if len(args) < 1 {
		nounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		nounHelp(os.Stdout)
		return 0
	}

	name, actionArgs := args[0], args[1:]
	a, ok := actions[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown %s action: %s\n", noun, name)
		return 1
	}
	if hasHelpFlag(actionArgs) {
		a.help()
		return 0
	}
	return a.run(actionArgs)
}

func runSystemNoun(args []string) int {
	return dispatchNoun("system", args, map[string]action{
		"start":  {run: runStart, help: printSystemStartHelp},
		"status": {run: runSystemStatus, help: printSystemStatusHelp},
	}, printSystemNounHelp)
}

func runConfigNoun(args []string) int {
	return dispatchNoun("config", args, map[string]action{
		"check": {run: runConfigCheck, help: printConfigCheckHelp},
		"lock":  {run: runConfigLock, help: printConfigLockHelp},
	}, printConfigNounHelp)
}

func runPluginNoun(args []string) int {
	return dispatchNoun("plugin", args, map[string]action{
		"list": {run: runPluginList, help: printPluginListHelp},
	}, printPluginNounHelp)
}

func runAgentNoun(args []string) int {
	return dispatchNoun("agent", args, map[string]action{
		"create": {run: runAgentCreate, help: printAgentCreateHelp},
	}, printAgentNounHelp)
}

func runJournalNoun(args []string) int {
	return dispatchNoun("journal", args, map[string]action{
		"tail": {run: runJournalTail, help: printJournalTailHelp},
	}, printJournalNounHelp)
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}

func printSystemNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: elasticd system <action>")
	fmt.Fprintln(w, "Actions: start, status")
}

func printConfigNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: elasticd config <action> [flags]")
	fmt.Fprintln(w, "Actions: check, lock")
}

func printPluginNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: elasticd plugin <action>")
	fmt.Fprintln(w, "Actions: list")
}

func printAgentNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: elasticd agent <action>")
	fmt.Fprintln(w, "Actions: create")
}

func printJournalNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: elasticd journal <action>")
	fmt.Fprintln(w, "Actions: tail")
}

func printSystemStartHelp() {
	fmt.Println("Usage: elasticd system start [--config PATH]")
	fmt.Println("Start the registry in the foreground.")
}

func printSystemStatusHelp() {
	fmt.Println("Usage: elasticd system status [--config PATH] [--json]")
	fmt.Println("Show config, journal database and PID lock health.")
	fmt.Println("")
	fmt.Println("Exit codes:")
	fmt.Println("  0  All required checks passed")
	fmt.Println("  1  One or more checks failed")
}

func printConfigCheckHelp() {
	fmt.Println("Usage: elasticd config check [--config PATH]")
	fmt.Println("Validate configuration and report the plugins found under plugin_roots.")
}

func printConfigLockHelp() {
	fmt.Println("Usage: elasticd config lock [--config PATH]")
	fmt.Println("Write .checksums next to the config file. Later loads refuse a modified config.")
}

func printPluginListHelp() {
	fmt.Println("Usage: elasticd plugin list [--config PATH] [--json]")
	fmt.Println("Discover plugins and show which ones can provision elastic agents, in load order.")
}

func printAgentCreateHelp() {
	fmt.Println("Usage: elasticd agent create [--config PATH] [--resources a,b] [--env NAME] [--json]")
	fmt.Println("Ask the first plugin that can handle the requirements to create an agent.")
	fmt.Println("")
	fmt.Println("Exit codes:")
	fmt.Println("  0  A plugin accepted the request")
	fmt.Println("  1  The plugin call failed")
	fmt.Println("  2  No plugin matched")
}

func printJournalTailHelp() {
	fmt.Println("Usage: elasticd journal tail [--config PATH] [-n N] [--json]")
	fmt.Println("Show the newest journal entries, oldest first.")
}
