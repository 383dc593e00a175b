// Client dials the supervisor's socket, optionally auto-starting it in the
// background on first-connect failure, and retries with the bounded
// exponential backoff table spec.md §4.7 specifies (5 attempts, 100ms
// doubling to a 1s cap). Each request gets a single-shot response with a
// client-side timeout that cancels the wait, not the server's handler, per
// spec.md §5 "Cancellation".
package ipc

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os/exec"
	"time"
)

const (
	autoStartAttempts = 5
	autoStartBase     = 100 * time.Millisecond
	autoStartCap      = 1 * time.Second
)

// Client is a thin, not-safe-for-concurrent-use-by-multiple-requests wire
// client: one request in flight at a time, matching the single-shot
// request/response contract.
type Client struct {
	SocketPath       string
	Codec            Codec
	Timeout          time.Duration
	AutoStart        bool
	AutoStartCommand []string

	conn   net.Conn
	reader *bufio.Reader
}

// Dial connects to the socket, auto-starting the supervisor on failure if
// configured.
func Dial(ctx context.Context, socketPath string, codec Codec, autoStart bool, autoStartCmd []string) (*Client, error) {
	c := &Client{SocketPath: socketPath, Codec: codec, Timeout: 5 * time.Second, AutoStart: autoStart, AutoStartCommand: autoStartCmd}
	conn, err := net.Dial("unix", socketPath)
	if err == nil {
		c.conn = conn
		c.reader = bufio.NewReader(conn)
		return c, nil
	}
	if !autoStart {
		return nil, fmt.Errorf("connecting to %s: %w", socketPath, err)
	}

	if len(autoStartCmd) > 0 {
		cmd := exec.CommandContext(ctx, autoStartCmd[0], autoStartCmd[1:]...)
		if startErr := cmd.Start(); startErr != nil {
			return nil, fmt.Errorf("auto-starting supervisor: %w", startErr)
		}
	}

	backoff := autoStartBase
	var lastErr error
	for attempt := 0; attempt < autoStartAttempts; attempt++ {
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		conn, lastErr = net.Dial("unix", socketPath)
		if lastErr == nil {
			c.conn = conn
			c.reader = bufio.NewReader(conn)
			return c, nil
		}
		backoff *= 2
		if backoff > autoStartCap {
			backoff = autoStartCap
		}
	}
	return nil, fmt.Errorf("connecting to %s after auto-start: %w", socketPath, lastErr)
}

// Call sends req and waits for the single response, or times out. A timeout
// only abandons the client's wait; it does not cancel the in-flight server
// handler.
func (c *Client) Call(ctx context.Context, req Request) (Response, error) {
	if err := c.Codec.WriteFrame(c.conn, req); err != nil {
		return Response{}, fmt.Errorf("sending request: %w", err)
	}

	type result struct {
		resp Response
		err  error
	}
	done := make(chan result, 1)
	go func() {
		var resp Response
		err := c.Codec.ReadFrame(c.reader, &resp)
		done <- result{resp: resp, err: err}
	}()

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	select {
	case r := <-done:
		return r.resp, r.err
	case <-time.After(timeout):
		return Response{}, fmt.Errorf("request timed out after %s", timeout)
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}
