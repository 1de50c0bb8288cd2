// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/bureau-foundation/bootsign/lib/codec"
)

const dialTimeout = 5 * time.Second

// responseReadTimeout bounds fetch and status replies.
const responseReadTimeout = 45 * time.Second

// maxResponseSize bounds one reply or event. Fetched artifacts carry
// whole images.
const maxResponseSize = 512 << 20

// ServiceError is a failure reported by the server.
type ServiceError struct {
	Action  string
	Message string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("service error on %q: %s", e.Action, e.Message)
}

// Client talks to a Server. Each call opens a new connection.
type Client struct {
	socketPath string
}

// NewClient returns a client for the socket at socketPath.
func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath}
}

// Submit sends submission and reads its events. Log events are passed
// to onLog when it is non-nil. It returns the terminal event; an error
// event is a successful return, not an error. Cancelling ctx closes
// the connection.
func (c *Client) Submit(ctx context.Context, submission *Submission, onLog func(Event)) (Event, error) {
	conn, err := c.dial(ctx)
	if err != nil {
		return Event{}, err
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if err := c.write(conn, submitRequest{Action: ActionSubmit, Submission: submission}); err != nil {
		return Event{}, err
	}

	decoder := codec.NewDecoder(conn)
	var response Response
	if err := decoder.Decode(&response); err != nil {
		return Event{}, c.readError(ctx, "reading response", err)
	}
	if !response.OK {
		return Event{}, &ServiceError{Action: ActionSubmit, Message: response.Error}
	}

	for {
		var event Event
		if err := decoder.Decode(&event); err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return Event{}, c.readError(ctx, "reading events", err)
		}
		if event.Terminal() {
			return event, nil
		}
		if onLog != nil {
			onLog(event)
		}
	}
}

// Fetch downloads the artifact at url.
func (c *Client) Fetch(ctx context.Context, url string) (*Artifact, error) {
	var artifact Artifact
	if err := c.call(ctx, ActionFetch, fetchRequest{Action: ActionFetch, URL: url}, &artifact); err != nil {
		return nil, err
	}
	return &artifact, nil
}

// Status returns the daemon's pool counters.
func (c *Client) Status(ctx context.Context) (Status, error) {
	var status Status
	err := c.call(ctx, ActionStatus, map[string]any{"action": ActionStatus}, &status)
	return status, err
}

func (c *Client) call(ctx context.Context, action string, request, result any) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := c.write(conn, request); err != nil {
		return err
	}

	conn.SetReadDeadline(time.Now().Add(responseReadTimeout))
	var response Response
	if err := codec.NewDecoder(io.LimitReader(conn, maxResponseSize)).Decode(&response); err != nil {
		return fmt.Errorf("calling %q on %s: reading response: %w", action, c.socketPath, err)
	}
	if !response.OK {
		return &ServiceError{Action: action, Message: response.Error}
	}
	if result != nil && len(response.Data) > 0 {
		if err := codec.Unmarshal(response.Data, result); err != nil {
			return fmt.Errorf("decoding response data for %q: %w", action, err)
		}
	}
	return nil
}

func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", c.socketPath, err)
	}
	return conn, nil
}

// write sends the request and half-closes the connection.
func (c *Client) write(conn net.Conn, request any) error {
	if err := codec.NewEncoder(conn).Encode(request); err != nil {
		return fmt.Errorf("writing request: %w", err)
	}
	if unixConn, ok := conn.(*net.UnixConn); ok {
		unixConn.CloseWrite()
	}
	return nil
}

func (c *Client) readError(ctx context.Context, what string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("%s from %s: %w", what, c.socketPath, err)
}
