package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeServer()
	c.normalizeQueue()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeServer() {
	c.Server.BaseURL = strings.TrimRight(strings.TrimSpace(c.Server.BaseURL), "/")
	c.Server.APIToken = strings.TrimSpace(c.Server.APIToken)
	if value, ok := os.LookupEnv("SYNCQUEUE_API_TOKEN"); ok && strings.TrimSpace(value) != "" {
		c.Server.APIToken = strings.TrimSpace(value)
	}
	c.Server.HealthPath = strings.TrimSpace(c.Server.HealthPath)
	if c.Server.HealthPath != "" && !strings.HasPrefix(c.Server.HealthPath, "/") {
		c.Server.HealthPath = "/" + c.Server.HealthPath
	}
}

func (c *Config) normalizeQueue() {
	c.Queue.Collection = strings.TrimSpace(c.Queue.Collection)
	if c.Queue.Collection == "" {
		c.Queue.Collection = defaultCollection
	}
	if c.Queue.EventBuffer <= 0 {
		c.Queue.EventBuffer = defaultEventBuffer
	}
	if c.Queue.DispatchTimeout < 0 {
		c.Queue.DispatchTimeout = 0
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if value, ok := os.LookupEnv("SYNCQUEUE_NTFY_TOPIC"); ok && strings.TrimSpace(value) != "" {
		c.Notifications.NtfyTopic = strings.TrimSpace(value)
	}
	c.Notifications.Language = strings.TrimSpace(c.Notifications.Language)
	if c.Notifications.Language == "" {
		c.Notifications.Language = defaultNotifyLanguage
	}
	if c.Notifications.DedupWindowSeconds < 0 {
		c.Notifications.DedupWindowSeconds = 0
	}
	if c.Notifications.Buffer <= 0 {
		c.Notifications.Buffer = defaultNotifyBuffer
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
