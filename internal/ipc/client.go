package ipc

import (
	"encoding/json"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

func call[Req, Resp any](c *Client, method string, req Req) (*Resp, error) {
	var resp Resp
	if err := c.client.Call(ServiceName+"."+method, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	return call[StatusRequest, StatusResponse](c, "Status", StatusRequest{})
}

// QueueList lists pending actions in processing order.
func (c *Client) QueueList() (*QueueListResponse, error) {
	return call[QueueListRequest, QueueListResponse](c, "QueueList", QueueListRequest{})
}

// QueueAdd enqueues payloads in order.
func (c *Client) QueueAdd(payloads []json.RawMessage) (*QueueAddResponse, error) {
	return call[QueueAddRequest, QueueAddResponse](c, "QueueAdd", QueueAddRequest{Payloads: payloads})
}

// QueueSkip abandons the head action.
func (c *Client) QueueSkip() (*QueueSkipResponse, error) {
	return call[QueueSkipRequest, QueueSkipResponse](c, "QueueSkip", QueueSkipRequest{})
}

// QueueRetry restarts the head dispatch.
func (c *Client) QueueRetry() (*QueueRetryResponse, error) {
	return call[QueueRetryRequest, QueueRetryResponse](c, "QueueRetry", QueueRetryRequest{})
}

// QueueClear removes every pending action.
func (c *Client) QueueClear() (*QueueClearResponse, error) {
	return call[QueueClearRequest, QueueClearResponse](c, "QueueClear", QueueClearRequest{})
}

// TestNotification triggers a notification test via the daemon.
func (c *Client) TestNotification() (*TestNotificationResponse, error) {
	return call[TestNotificationRequest, TestNotificationResponse](c, "TestNotification", TestNotificationRequest{})
}
