package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"

	"syncqueue/internal/daemon"
	"syncqueue/internal/logging"
)

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	logger = logging.NewComponentLogger(logger, "ipc")

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	rpcServer := rpc.NewServer()
	if err := rpcServer.RegisterName(ServiceName, &service{daemon: d, logger: logger, ctx: serverCtx}); err != nil {
		cancel()
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	return &Server{
		path:      path,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				if errors.Is(err, net.ErrClosed) {
					return
				}
				logging.WarnWithContext(s.logger, "accept failed", "ipc_accept_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "check socket permissions and restart the daemon if needed"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		logging.WarnWithContext(s.logger, "failed to remove socket", "ipc_socket_cleanup_failed",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "remove the socket file manually"))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status := s.daemon.Status(s.ctx)
	resp.Running = status.Running
	resp.PID = status.PID
	resp.StartedAt = status.StartedAt
	resp.Online = status.Online
	resp.ProbeEnabled = status.ProbeEnabled
	resp.Pending = status.Pending
	resp.Attempts = status.Attempts
	resp.SuccessTally = status.SuccessTally
	resp.DatabasePath = status.DatabasePath
	resp.LockPath = status.LockPath
	if status.Head != nil {
		head := FromAction(*status.Head, 0, status.InFlight)
		resp.Head = &head
	}
	return nil
}

func (s *service) QueueList(_ QueueListRequest, resp *QueueListResponse) error {
	snap, err := s.daemon.Snapshot(s.ctx)
	if err != nil {
		return err
	}
	resp.Attempts = snap.Attempts
	resp.Items = make([]QueueItem, 0, len(snap.Pending))
	for i, action := range snap.Pending {
		resp.Items = append(resp.Items, FromAction(action, i, snap.InFlight))
	}
	return nil
}

func (s *service) QueueAdd(req QueueAddRequest, resp *QueueAddResponse) error {
	if len(req.Payloads) == 0 {
		return errors.New("queue add requires at least one payload")
	}
	s.logger.Debug("queue add requested", logging.Int("item_count", len(req.Payloads)))
	resp.Items = make([]QueueItem, 0, len(req.Payloads))
	for i, payload := range req.Payloads {
		action, err := s.daemon.Enqueue(s.ctx, payload)
		if err != nil {
			return fmt.Errorf("payload %d: %w", i+1, err)
		}
		resp.Items = append(resp.Items, FromAction(action, -1, ""))
	}
	s.logger.Info("actions queued via IPC",
		logging.String(logging.FieldEventType, "queue_add"),
		logging.Int("item_count", len(resp.Items)))
	return nil
}

func (s *service) QueueSkip(_ QueueSkipRequest, resp *QueueSkipResponse) error {
	skipped, err := s.daemon.Skip(s.ctx)
	if err != nil {
		return err
	}
	if skipped != nil {
		item := FromAction(*skipped, 0, "")
		resp.Skipped = &item
		s.logger.Info("head skipped via IPC",
			logging.String(logging.FieldEventType, "queue_skip"),
			logging.String(logging.FieldActionID, skipped.ID))
	}
	return nil
}

func (s *service) QueueRetry(_ QueueRetryRequest, resp *QueueRetryResponse) error {
	if err := s.daemon.Retry(s.ctx); err != nil {
		return err
	}
	resp.Online = s.daemon.Status(s.ctx).Online
	return nil
}

func (s *service) QueueClear(_ QueueClearRequest, resp *QueueClearResponse) error {
	removed, err := s.daemon.Clear(s.ctx)
	if err != nil {
		return err
	}
	resp.Removed = removed
	s.logger.Info("queue cleared via IPC",
		logging.String(logging.FieldEventType, "queue_clear"),
		logging.Int64("removed_count", removed))
	return nil
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	sent, message, err := s.daemon.TestNotification(s.ctx)
	resp.Sent = sent
	resp.Message = message
	return err
}
