// Package extension invokes elastic agent plugins as subprocesses.
//
// Every call spawns the plugin entrypoint, writes one protocol request to its
// stdin and reads one JSON response from stdout. Each operation has its own
// timeout; on expiry the process gets SIGTERM and, after a grace period,
// SIGKILL. Stderr is captured (truncated) and plugin log lines are relayed to
// the gateway logger.
package extension
