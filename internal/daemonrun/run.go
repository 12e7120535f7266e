// Package daemonrun assembles and runs the syncqueue daemon process.
package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"syncqueue/internal/config"
	"syncqueue/internal/daemon"
	"syncqueue/internal/ipc"
	"syncqueue/internal/logging"
	"syncqueue/internal/preflight"
	"syncqueue/internal/store"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the syncqueue daemon and blocks until it receives SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger, err := logging.NewFromConfig(cfg, logging.Options{
		Level:       opts.LogLevel,
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	if failure, failed := runPreflight(signalCtx, logger, cfg); failed {
		return fmt.Errorf("preflight %s: %s", failure.Name, failure.Detail)
	}

	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	st, err := store.Open(signalCtx, cfg.DatabasePath())
	if err != nil {
		logger.Error("open queue store", logging.Error(err))
		return err
	}
	defer st.Close()

	d, err := daemon.New(signalCtx, cfg, st, logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	ipcServer, err := ipc.NewServer(signalCtx, cfg.SocketPath(), d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	logger.Info("syncqueue daemon ready",
		logging.String(logging.FieldEventType, "daemon_ready"),
		logging.String("socket", cfg.SocketPath()),
		logging.String("server", cfg.Server.BaseURL))

	<-signalCtx.Done()
	logger.Info("syncqueue daemon shutting down")
	return nil
}

func runPreflight(ctx context.Context, logger *slog.Logger, cfg *config.Config) (preflight.Result, bool) {
	results := preflight.RunAll(ctx, cfg)
	for _, r := range results {
		attrs := []logging.Attr{
			logging.String("check", r.Name),
			logging.Bool("passed", r.Passed),
			logging.String("detail", r.Detail),
		}
		if r.Passed {
			logger.Info("preflight check", logging.Args(attrs...)...)
			continue
		}
		if r.Required {
			logger.Error("preflight check failed", logging.Args(attrs...)...)
			continue
		}
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed", append(attrs,
			logging.String(logging.FieldImpact, "actions stay queued until the check passes"))...)
	}
	return preflight.FirstRequiredFailure(results)
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
