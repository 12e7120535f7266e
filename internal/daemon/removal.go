package daemon

import (
	"context"
	"time"

	"syncqueue/internal/config"
	"syncqueue/internal/logging"
	"syncqueue/internal/notifications"
	"syncqueue/internal/queue"
)

// onRemoved runs on the loop goroutine whenever the engine drops its head.
func (d *Daemon) onRemoved(action queue.Action, reason queue.RemovalReason) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := d.store.Delete(ctx, d.collection(), action.ID); err != nil {
		logging.WarnWithContext(d.logger, "failed to delete completed action", "store_delete_failed",
			logging.String(logging.FieldActionID, action.ID),
			logging.String("reason", string(reason)),
			logging.Error(err),
			logging.String(logging.FieldImpact, "action will be replayed after restart"),
			logging.String(logging.FieldErrorHint, "check database permissions"))
	}

	if reason != queue.ReasonDropped {
		return
	}
	logging.WarnWithContext(d.logger, "action dropped after repeated failures", "action_dropped",
		logging.String(logging.FieldActionID, action.ID),
		logging.Int("attempts", queue.MaxAttempts),
		logging.String(logging.FieldImpact, "the change was not applied on the server"),
		logging.String(logging.FieldErrorHint, "re-submit the action once the server accepts it"))
	if d.cfg.Notifications.Dropped {
		d.enqueuer.Enqueue(notifications.Notification{
			MessageKey: notifications.KeySyncDropped,
			Params:     map[string]any{"action": action.ID, "attempts": queue.MaxAttempts},
			Severity:   notifications.SeverityError,
			DedupeKey:  "sync_dropped:" + action.ID,
		})
	}
}

// notifyGate applies the notification toggles from config to engine output.
type notifyGate struct {
	cfg  *config.Config
	next queue.Notifier
}

func (g notifyGate) Enqueue(n notifications.Notification) {
	if n.MessageKey == notifications.KeySyncSuccess && !g.cfg.Notifications.SyncSuccess {
		return
	}
	g.next.Enqueue(n)
}
