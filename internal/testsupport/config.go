package testsupport

import (
	"path/filepath"
	"testing"

	"syncqueue/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Notifications.DedupWindowSeconds = 0

	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure test directories: %v", err)
	}
	return &cfg
}

// WithServer points the config at a test server.
func WithServer(baseURL string) ConfigOption {
	return func(c *config.Config) {
		c.Server.BaseURL = baseURL
		c.Server.RequestTimeout = 5
	}
}

// WithNtfy enables notifications against a test ntfy endpoint.
func WithNtfy(endpoint string) ConfigOption {
	return func(c *config.Config) {
		c.Notifications.NtfyTopic = endpoint
	}
}
