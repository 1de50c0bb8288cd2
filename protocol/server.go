// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/bureau-foundation/bootsign/lib/codec"
)

// Actions understood by the server.
const (
	ActionSubmit = "submit"
	ActionFetch  = "fetch"
	ActionStatus = "status"
)

// Dispatcher accepts jobs for execution.
type Dispatcher interface {
	// Submit queues submission without blocking. Its events are
	// delivered to sink, ending with one terminal event.
	Submit(submission *Submission, sink Sink) error
	Status() Status
}

// Artifact is a stored job output.
type Artifact struct {
	Name  string `json:"name"`
	Bytes []byte `json:"bytes"`
}

// Fetcher resolves artifact URLs.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Artifact, error)
}

// Response is the envelope the server writes first on every
// connection. A successful submit is followed by the job's events.
type Response struct {
	OK    bool             `cbor:"ok"`
	Error string           `cbor:"error,omitempty"`
	Data  codec.RawMessage `cbor:"data,omitempty"`
}

type submitRequest struct {
	Action     string      `json:"action"`
	Submission *Submission `json:"submission"`
}

type fetchRequest struct {
	Action string `json:"action"`
	URL    string `json:"url"`
}

// Server serves the job protocol on a Unix socket. Each connection
// carries one request. Submit streams the job's events on the same
// connection until the terminal event.
type Server struct {
	socketPath string
	dispatcher Dispatcher
	fetcher    Fetcher
	events     *EventLog
	logger     *slog.Logger

	activeConnections sync.WaitGroup
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithFetcher enables the fetch action.
func WithFetcher(fetcher Fetcher) ServerOption {
	return func(s *Server) { s.fetcher = fetcher }
}

// WithEventLog records every streamed event.
func WithEventLog(events *EventLog) ServerOption {
	return func(s *Server) { s.events = events }
}

// WithServerLogger sets the server's logger.
func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = logger }
}

// NewServer creates a server that will listen on socketPath.
func NewServer(socketPath string, dispatcher Dispatcher, options ...ServerOption) *Server {
	server := &Server{socketPath: socketPath, dispatcher: dispatcher}
	for _, option := range options {
		option(server)
	}
	if server.logger == nil {
		server.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return server
}

// Serve accepts connections until ctx is cancelled, then waits for
// active connections to finish. A stale socket file is removed before
// listening and the socket is removed on return.
func (s *Server) Serve(ctx context.Context) error {
	listener, err := s.Listen()
	if err != nil {
		return err
	}
	return s.ServeListener(ctx, listener)
}

// Listen binds the socket. Use with ServeListener when the caller must
// know the socket exists before serving.
func (s *Server) Listen() (net.Listener, error) {
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("removing stale socket %s: %w", s.socketPath, err)
	}
	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", s.socketPath, err)
	}
	return listener, nil
}

// ServeListener serves on listener until ctx is cancelled.
func (s *Server) ServeListener(ctx context.Context, listener net.Listener) error {
	defer func() {
		listener.Close()
		os.Remove(s.socketPath)
	}()

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	s.logger.Info("socket server listening", "path", s.socketPath)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}

		s.activeConnections.Add(1)
		go func() {
			defer s.activeConnections.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	s.activeConnections.Wait()
	return nil
}

// readTimeout bounds how long a client may take to send its request.
const readTimeout = 30 * time.Second

// writeTimeout bounds each response or event write.
const writeTimeout = 10 * time.Second

// maxRequestSize bounds one request. Submissions carry whole partition
// images.
const maxRequestSize = 512 << 20

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(readTimeout))

	var raw codec.RawMessage
	if err := codec.NewDecoder(io.LimitReader(conn, maxRequestSize)).Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return
		}
		s.writeError(conn, fmt.Sprintf("invalid request: %v", err))
		return
	}
	conn.SetReadDeadline(time.Time{})

	var header struct {
		Action string `json:"action"`
	}
	if err := codec.Unmarshal(raw, &header); err != nil {
		s.writeError(conn, fmt.Sprintf("invalid request: %v", err))
		return
	}

	switch header.Action {
	case "":
		s.writeError(conn, "missing required field: action")
	case ActionSubmit:
		s.handleSubmit(ctx, conn, raw)
	case ActionFetch:
		s.handleFetch(ctx, conn, raw)
	case ActionStatus:
		s.writeSuccess(conn, s.dispatcher.Status())
	default:
		s.writeError(conn, fmt.Sprintf("unknown action %q", header.Action))
	}
}

func (s *Server) handleSubmit(ctx context.Context, conn net.Conn, raw []byte) {
	var request submitRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		s.writeError(conn, fmt.Sprintf("invalid request: %v", err))
		return
	}
	if request.Submission == nil {
		s.writeError(conn, "missing required field: submission")
		return
	}

	stream := &eventStream{conn: conn, logger: s.logger, done: make(chan struct{})}
	var sink Sink = stream
	if s.events != nil {
		sink = s.events.Wrap(sink)
	}

	// Events wait on the stream lock until the response header is out.
	stream.mu.Lock()
	if err := s.dispatcher.Submit(request.Submission, sink); err != nil {
		stream.mu.Unlock()
		s.logger.Debug("submission rejected", "job_id", request.Submission.ID, "error", err)
		s.writeError(conn, err.Error())
		return
	}
	stream.write(Response{OK: true})
	stream.mu.Unlock()

	s.logger.Info("job accepted", "job_id", request.Submission.ID)
	select {
	case <-stream.done:
	case <-ctx.Done():
	}
}

func (s *Server) handleFetch(ctx context.Context, conn net.Conn, raw []byte) {
	if s.fetcher == nil {
		s.writeError(conn, "fetch is not supported")
		return
	}
	var request fetchRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		s.writeError(conn, fmt.Sprintf("invalid request: %v", err))
		return
	}
	if request.URL == "" {
		s.writeError(conn, "missing required field: url")
		return
	}
	artifact, err := s.fetcher.Fetch(ctx, request.URL)
	if err != nil {
		s.writeError(conn, err.Error())
		return
	}
	s.writeSuccess(conn, artifact)
}

func (s *Server) writeError(conn net.Conn, message string) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := codec.NewEncoder(conn).Encode(Response{OK: false, Error: message}); err != nil {
		s.logger.Debug("failed to write error response", "error", err)
	}
}

func (s *Server) writeSuccess(conn net.Conn, result any) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	response := Response{OK: true}
	if result != nil {
		data, err := codec.Marshal(result)
		if err != nil {
			s.writeError(conn, fmt.Sprintf("internal: marshaling response: %v", err))
			return
		}
		response.Data = data
	}
	if err := codec.NewEncoder(conn).Encode(response); err != nil {
		s.logger.Debug("failed to write success response", "error", err)
	}
}

// eventStream writes one job's events to its connection. A write
// failure stops further writes but the terminal event still releases
// the handler.
type eventStream struct {
	conn   net.Conn
	logger *slog.Logger
	done   chan struct{}

	mu       sync.Mutex
	broken   bool
	finished bool
}

func (e *eventStream) Emit(event Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.write(event)
	if event.Terminal() && !e.finished {
		e.finished = true
		close(e.done)
	}
}

// write requires e.mu.
func (e *eventStream) write(value any) {
	if e.broken {
		return
	}
	e.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := codec.NewEncoder(e.conn).Encode(value); err != nil {
		e.broken = true
		e.logger.Debug("client stopped reading events", "error", err)
	}
}
