package main

import (
	"fmt"
	"strconv"
	"time"

	"syncqueue/internal/ipc"
	"syncqueue/internal/queue"
)

func daemonStatusLines(status *ipc.StatusResponse, colorize bool) []string {
	if status == nil || !status.Running {
		return []string{renderStatusLine("syncqueue", statusError, "Not running", colorize)}
	}
	lines := []string{
		renderStatusLine("syncqueue", statusOK, fmt.Sprintf("Running (pid %d)", status.PID), colorize),
	}
	if !status.StartedAt.IsZero() {
		uptime := time.Since(status.StartedAt).Truncate(time.Second)
		lines = append(lines, renderStatusLine("Uptime", statusInfo, uptime.String(), colorize))
	}
	switch {
	case !status.ProbeEnabled:
		lines = append(lines, renderStatusLine("Connectivity", statusInfo, "Probe disabled; assuming online", colorize))
	case status.Online:
		lines = append(lines, renderStatusLine("Connectivity", statusOK, "Online", colorize))
	default:
		lines = append(lines, renderStatusLine("Connectivity", statusWarn, "Offline; replay paused", colorize))
	}
	lines = append(lines, renderStatusLine("Database", statusInfo, status.DatabasePath, colorize))
	return lines
}

func queueStatusLines(status *ipc.StatusResponse, colorize bool) []string {
	pendingKind := statusOK
	if status.Pending > 0 {
		pendingKind = statusInfo
	}
	lines := []string{
		renderStatusLine("Pending", pendingKind, strconv.Itoa(status.Pending), colorize),
		renderStatusLine("Synced this run", statusInfo, strconv.Itoa(status.SuccessTally), colorize),
	}
	if status.Head == nil {
		return lines
	}
	headKind := statusInfo
	if status.Attempts > 0 {
		headKind = statusWarn
	}
	detail := fmt.Sprintf("%s %s (attempt %d of %d)", status.Head.Method, status.Head.Path, status.Attempts+1, queue.MaxAttempts)
	if status.Head.InFlight {
		detail += ", in flight"
	}
	lines = append(lines, renderStatusLine("Head", headKind, detail, colorize))
	return lines
}
