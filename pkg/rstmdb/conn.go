package rstmdb

import (
	"context"
	"errors"
	"log/slog"
	"time"

	rcperrors "github.com/rstmdb/rstmdb-go/pkg/rstmdb/errors"
	"github.com/rstmdb/rstmdb-go/pkg/rstmdb/observability"
	"github.com/rstmdb/rstmdb-go/pkg/rstmdb/protocol"
	"github.com/rstmdb/rstmdb-go/pkg/rstmdb/transport"
)

// session binds one live transport connection to the pending-request table
// and the event router. A new session is created per connection generation;
// in-flight state from a previous generation is fenced out, never resumed.
type session struct {
	conn    *transport.Conn
	pending *pendingTable
	router  *watchRouter
	logger  *slog.Logger
	timeout time.Duration

	// onLost is invoked exactly once when the connection dies, with this
	// session's generation and the triggering error.
	onLost func(generation uint64, err error)
}

func newSession(conn *transport.Conn, pending *pendingTable, router *watchRouter, logger *slog.Logger, timeout time.Duration, onLost func(uint64, error)) *session {
	return &session{
		conn:    conn,
		pending: pending,
		router:  router,
		logger:  observability.EnrichLogger(logger, conn.Addr(), conn.Generation()),
		timeout: timeout,
		onLost:  onLost,
	}
}

// start launches the dedicated read loop for this connection.
func (s *session) start() {
	go s.readLoop()
}

// readLoop reads and dispatches frames until the connection dies. It never
// blocks on consumer processing of events (the router's staging queues
// isolate it); its only suspension point is the transport read.
func (s *session) readLoop() {
	for {
		frame, err := s.conn.Receive()
		if err != nil {
			// A protocol error means the stream is desynchronized and is
			// treated like a lost connection.
			var protoErr *rcperrors.ProtocolError
			if errors.As(err, &protoErr) {
				s.conn.Close()
			}
			s.onLost(s.conn.Generation(), err)
			return
		}

		msg, err := protocol.DecodeMessage(frame.Payload)
		if err != nil {
			var protoErr *rcperrors.ProtocolError
			if errors.As(err, &protoErr) && protoErr.Kind == rcperrors.ProtocolUnsupportedType {
				// Unknown message types are skipped; the framing is intact.
				observability.LogProtocolViolation(s.logger, protoErr.Message, "")
				continue
			}
			s.conn.Close()
			s.onLost(s.conn.Generation(), err)
			return
		}

		switch m := msg.(type) {
		case *protocol.Response:
			s.pending.complete(m)
		case *protocol.StreamEvent:
			s.router.deliver(m)
		}
	}
}

// send performs one command round-trip on this session: register a pending
// entry, write the frame, and suspend the caller until the matching
// response arrives, the deadline elapses, or the connection is lost.
// Multiple sends may be in flight concurrently; only the transport write
// itself is serialized.
func (s *session) send(ctx context.Context, op protocol.Op, params map[string]any) (*protocol.Response, error) {
	pr := s.pending.register(op, s.conn.Generation())
	defer s.pending.remove(pr.id)

	frame, err := protocol.EncodeRequest(protocol.NewRequest(pr.id, op, params))
	if err != nil {
		return nil, err
	}
	if err := s.conn.Send(frame); err != nil {
		return nil, err
	}

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	select {
	case res := <-pr.ch:
		if res.err != nil {
			return nil, res.err
		}
		return res.resp, nil
	case <-timer.C:
		return nil, &rcperrors.TimeoutError{Op: string(op), Timeout: s.timeout}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// generation returns the connection generation backing this session.
func (s *session) generation() uint64 {
	return s.conn.Generation()
}

// close tears down the transport.
func (s *session) close() {
	s.conn.Close()
}
