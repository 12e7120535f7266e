// Package queueaccess reads the pending queue through the daemon when it is
// running and straight from the database otherwise.
package queueaccess

import (
	"context"
	"fmt"

	"syncqueue/internal/ipc"
	"syncqueue/internal/queue"
	"syncqueue/internal/store"
)

// Access lists pending actions regardless of IPC or direct store backing.
type Access interface {
	List(ctx context.Context) ([]ipc.QueueItem, error)
	// Live reports whether the listing comes from a running daemon.
	Live() bool
}

// NewIPCAccess returns an Access backed by daemon IPC.
func NewIPCAccess(client *ipc.Client) Access {
	return &ipcAccess{client: client}
}

// NewStoreAccess returns an Access that reads collection from st.
func NewStoreAccess(st *store.Store, collection string) Access {
	return &storeAccess{store: st, collection: collection}
}

type ipcAccess struct {
	client *ipc.Client
}

func (a *ipcAccess) List(_ context.Context) ([]ipc.QueueItem, error) {
	resp, err := a.client.QueueList()
	if err != nil {
		return nil, err
	}
	return resp.Items, nil
}

func (a *ipcAccess) Live() bool { return true }

type storeAccess struct {
	store      *store.Store
	collection string
}

func (a *storeAccess) List(ctx context.Context) ([]ipc.QueueItem, error) {
	records, err := a.store.ReadAll(ctx, a.collection)
	if err != nil {
		return nil, err
	}
	items := make([]ipc.QueueItem, 0, len(records))
	for i, rec := range records {
		items = append(items, ipc.FromAction(queue.ActionFromRecord(rec), i, ""))
	}
	return items, nil
}

func (a *storeAccess) Live() bool { return false }

// Session represents a queue access handle and its cleanup function.
type Session struct {
	Access Access
	close  func() error
}

// Close releases resources associated with the session.
func (s Session) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// OpenWithFallback tries IPC-backed access first, then falls back to direct store access.
func OpenWithFallback(
	dial func() (*ipc.Client, error),
	openStore func() (*store.Store, string, error),
) (Session, error) {
	if dial != nil {
		if client, err := dial(); err == nil {
			return Session{
				Access: NewIPCAccess(client),
				close:  client.Close,
			}, nil
		}
	}

	if openStore == nil {
		return Session{}, fmt.Errorf("open queue store: no store opener configured")
	}
	st, collection, err := openStore()
	if err != nil {
		return Session{}, fmt.Errorf("open queue store: %w", err)
	}
	return Session{
		Access: NewStoreAccess(st, collection),
		close:  st.Close,
	}, nil
}
