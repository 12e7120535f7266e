// Package connectivity tracks whether the server is reachable.
package connectivity

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"syncqueue/internal/config"
	"syncqueue/internal/logging"
)

// Probe polls the server health endpoint and exposes the result as a
// readiness predicate. A probe without a health path always reports online.
type Probe struct {
	url      string
	interval time.Duration
	client   *http.Client
	logger   *slog.Logger
	onOnline func()

	online atomic.Bool
}

// NewProbe builds a probe from the server section of cfg. onOnline runs on
// the probe goroutine after every offline to online transition.
func NewProbe(cfg *config.Config, onOnline func(), logger *slog.Logger) *Probe {
	p := &Probe{
		interval: 15 * time.Second,
		onOnline: onOnline,
		logger:   logging.NewComponentLogger(logger, "connectivity"),
	}
	timeout := 5 * time.Second
	if cfg != nil {
		if path := strings.TrimSpace(cfg.Server.HealthPath); path != "" {
			p.url = strings.TrimRight(cfg.Server.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
		}
		if interval := cfg.ProbeInterval(); interval > 0 {
			p.interval = interval
		}
		if t := cfg.RequestTimeout(); t > 0 && t < timeout {
			timeout = t
		}
	}
	p.client = &http.Client{Timeout: timeout}
	// Until the first check completes, assume reachable when probing is disabled.
	p.online.Store(!p.Enabled())
	return p
}

// Enabled reports whether a health endpoint is configured.
func (p *Probe) Enabled() bool {
	return p.url != ""
}

// Online is the readiness predicate handed to the queue engine.
func (p *Probe) Online() bool {
	return p.online.Load()
}

// Run checks immediately and then every interval until ctx is canceled.
func (p *Probe) Run(ctx context.Context) error {
	if !p.Enabled() {
		<-ctx.Done()
		return ctx.Err()
	}
	p.Check(ctx)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.Check(ctx)
		}
	}
}

// Check performs one probe and records the result.
func (p *Probe) Check(ctx context.Context) bool {
	reachable, _ := p.Poll(ctx)
	return reachable
}

// Poll performs one probe. resumed is true when the probe found the server
// back online and has already run the onOnline callback.
func (p *Probe) Poll(ctx context.Context) (reachable, resumed bool) {
	if !p.Enabled() {
		return true, false
	}
	reachable = p.reachable(ctx)
	was := p.online.Swap(reachable)
	switch {
	case reachable && !was:
		p.logger.Info("server reachable", logging.String("url", p.url))
		if p.onOnline != nil {
			p.onOnline()
			resumed = true
		}
	case !reachable && was:
		logging.WarnWithContext(p.logger, "server unreachable", "connectivity_lost",
			logging.String("url", p.url),
			logging.String(logging.FieldImpact, "queued actions wait until the server returns"),
			logging.String(logging.FieldErrorHint, "check network or server.health_path"))
	}
	return reachable, resumed
}

func (p *Probe) reachable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Debug("probe failed", logging.Error(err))
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	return resp.StatusCode >= 200 && resp.StatusCode < 400
}
