package preflight

import (
	"context"
	"strings"

	"syncqueue/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	// Required marks checks that must pass before the daemon starts.
	Required bool
	Detail   string
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		required(CheckDirectoryAccess("Data directory", cfg.Paths.DataDir)),
		required(CheckDirectoryAccess("Log directory", cfg.Paths.LogDir)),
		CheckServer(ctx, cfg.Server.BaseURL, cfg.Server.HealthPath, cfg.Server.APIToken),
		CheckNotifications(cfg),
	}
	return results
}

// FirstRequiredFailure returns the first failed required check, if any.
func FirstRequiredFailure(results []Result) (Result, bool) {
	for _, r := range results {
		if r.Required && !r.Passed {
			return r, true
		}
	}
	return Result{}, false
}

// CheckNotifications reports whether push notifications are configured.
func CheckNotifications(cfg *config.Config) Result {
	const name = "Notifications"
	if cfg == nil || strings.TrimSpace(cfg.Notifications.NtfyTopic) == "" {
		return Result{Name: name, Passed: true, Detail: "Disabled"}
	}
	return Result{Name: name, Passed: true, Detail: cfg.Notifications.NtfyTopic}
}

func required(r Result) Result {
	r.Required = true
	return r
}
