package ipc

import (
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
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.client.Call("Gridflow.Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueList returns queue tasks optionally filtered by statuses.
func (c *Client) QueueList(statuses []string) (*QueueListResponse, error) {
	var resp QueueListResponse
	req := QueueListRequest{Statuses: statuses}
	if err := c.client.Call("Gridflow.QueueList", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueRetry re-queues failed tasks, optionally scoped to one job.
func (c *Client) QueueRetry(jobID string) (*QueueRetryResponse, error) {
	var resp QueueRetryResponse
	req := QueueRetryRequest{JobID: jobID}
	if err := c.client.Call("Gridflow.QueueRetry", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueClearCompleted removes completed tasks from the queue.
func (c *Client) QueueClearCompleted() (*QueueClearCompletedResponse, error) {
	var resp QueueClearCompletedResponse
	if err := c.client.Call("Gridflow.QueueClearCompleted", QueueClearCompletedRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueReset resets tasks stuck in the running state.
func (c *Client) QueueReset() (*QueueResetResponse, error) {
	var resp QueueResetResponse
	if err := c.client.Call("Gridflow.QueueReset", QueueResetRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueRequeue re-admits one task for another attempt.
func (c *Client) QueueRequeue(jobID, task string) (*QueueRequeueResponse, error) {
	var resp QueueRequeueResponse
	req := QueueRequeueRequest{JobID: jobID, Task: task}
	if err := c.client.Call("Gridflow.QueueRequeue", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// JobShow returns a job and its tasks.
func (c *Client) JobShow(jobID string) (*JobShowResponse, error) {
	var resp JobShowResponse
	req := JobShowRequest{JobID: jobID}
	if err := c.client.Call("Gridflow.JobShow", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// JobList returns all jobs.
func (c *Client) JobList() (*JobListResponse, error) {
	var resp JobListResponse
	if err := c.client.Call("Gridflow.JobList", JobListRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Submit stores a new job and its tasks via the daemon.
func (c *Client) Submit(req SubmitRequest) (*SubmitResponse, error) {
	var resp SubmitResponse
	if err := c.client.Call("Gridflow.Submit", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TestNotification triggers a notification test via the daemon.
func (c *Client) TestNotification() (*TestNotificationResponse, error) {
	var resp TestNotificationResponse
	if err := c.client.Call("Gridflow.TestNotification", TestNotificationRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
