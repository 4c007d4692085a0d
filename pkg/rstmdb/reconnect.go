package rstmdb

import (
	"context"
	"time"

	rcperrors "github.com/rstmdb/rstmdb-go/pkg/rstmdb/errors"
	"github.com/rstmdb/rstmdb-go/pkg/rstmdb/observability"
	"github.com/rstmdb/rstmdb-go/pkg/rstmdb/protocol"
)

// connState is the supervisor's view of the client lifecycle:
// Idle -> Connecting -> Connected -> Disconnected -> Reconnecting ->
// Connected, with a terminal Closed reachable from any state on explicit
// shutdown or exhausted retries.
type connState int

const (
	stateIdle connState = iota
	stateConnecting
	stateConnected
	stateDisconnected
	stateReconnecting
	stateClosed
)

// supervisor re-establishes the transport after a connection loss, replays
// subscription registrations, and gates senders until the session is usable
// again.
type supervisor struct {
	c *Client
}

// onConnectionLost is the single entry point for a dead connection. It
// fails all outstanding requests for that generation atomically, then
// either starts a reconnect cycle or closes the client.
func (s *supervisor) onConnectionLost(generation uint64, cause error) {
	c := s.c

	c.mu.Lock()
	if c.state == stateClosed || c.sess == nil || c.sess.generation() != generation {
		// Stale signal from a superseded connection.
		c.mu.Unlock()
		return
	}
	addr := c.sess.conn.Addr()
	c.sess.close()
	c.sess = nil
	c.state = stateDisconnected
	if c.ready == nil {
		c.ready = make(chan struct{})
	}
	c.mu.Unlock()

	observability.LogConnectionLost(c.logger, addr, generation, cause)
	lost := &rcperrors.ConnectionLostError{Generation: generation, Err: cause}
	c.pending.failGeneration(generation, lost)

	if !c.cfg.AutoReconnect {
		c.shutdown(&rcperrors.ClientClosedError{Reason: "connection lost"})
		return
	}

	c.mu.Lock()
	if c.state != stateDisconnected {
		c.mu.Unlock()
		return
	}
	c.state = stateReconnecting
	c.mu.Unlock()

	go s.run()
}

// run is one reconnect cycle: exponential backoff with jitter between
// attempts, then handshake, auth, and subscription replay. Only after every
// replay succeeds does the client transition back to Connected.
func (s *supervisor) run() {
	c := s.c
	addr := c.cfg.transportConfig().Addr()
	backoff := c.cfg.ReconnectBackoffBase
	attempt := 0

	for {
		if c.isClosed() {
			return
		}

		attempt++
		if c.cfg.MaxReconnectAttempts > 0 && attempt > c.cfg.MaxReconnectAttempts {
			err := &rcperrors.ClientClosedError{Reason: "reconnect attempts exhausted"}
			observability.LogReconnectExhausted(c.logger, addr, attempt-1, err)
			c.metrics.RecordReconnect(context.Background(), false, attempt-1)
			c.shutdown(err)
			return
		}

		delay := rcperrors.Backoff(backoff, 0.5)
		observability.LogReconnectAttempt(c.logger, addr, attempt, delay)
		select {
		case <-time.After(delay):
		case <-c.closed:
			return
		}
		backoff *= 2
		if backoff > c.cfg.ReconnectBackoffMax {
			backoff = c.cfg.ReconnectBackoffMax
		}

		sess, err := c.connect(context.Background())
		if err != nil {
			if !rcperrors.IsRetryable(err) {
				// Security misconfiguration and other permanent failures
				// are never downgraded to a retryable class.
				observability.LogReconnectExhausted(c.logger, addr, attempt, err)
				c.metrics.RecordReconnect(context.Background(), false, attempt)
				c.shutdown(&rcperrors.ClientClosedError{Reason: err.Error()})
				return
			}
			continue
		}

		subs, err := s.replay(sess)
		if err != nil {
			sess.close()
			continue
		}

		c.mu.Lock()
		if c.state == stateClosed {
			c.mu.Unlock()
			sess.close()
			return
		}
		c.sess = sess
		c.state = stateConnected
		if c.ready != nil {
			close(c.ready)
			c.ready = nil
		}
		c.mu.Unlock()

		if !sess.conn.Alive() {
			// Died between replay and installation; the early loss signal
			// was ignored. Restart the cycle through the normal path.
			s.onConnectionLost(sess.generation(), nil)
			return
		}

		observability.LogReconnected(c.logger, addr, sess.generation(), attempt, subs)
		c.metrics.RecordReconnect(context.Background(), true, attempt)
		if c.cfg.OnReconnect != nil {
			c.cfg.OnReconnect()
		}
		return
	}
}

// replay re-registers every live subscription on the new session in the
// order the subscriptions were originally created. The server assigns
// fresh subscription ids; the consumer-facing queues are preserved.
func (s *supervisor) replay(sess *session) (int, error) {
	c := s.c
	subs := c.router.snapshot()

	for _, sub := range subs {
		resp, err := sess.send(context.Background(), sub.op, sub.reqs)
		if err != nil {
			return 0, err
		}
		if !resp.OK() {
			return 0, resp.ServerError()
		}
		serverID, _ := resp.Result["subscription_id"].(string)
		if serverID == "" {
			return 0, &rcperrors.ProtocolError{
				Kind:    rcperrors.ProtocolMalformed,
				Message: "watch replay response missing subscription_id",
			}
		}
		c.router.rebind(sub, serverID)
	}
	return len(subs), nil
}

// handshake performs HELLO and, when a token is configured, AUTH on a
// fresh session. The server rejects any other command first.
func handshake(ctx context.Context, sess *session, cfg Config) error {
	resp, err := sess.send(ctx, protocol.OpHello, map[string]any{
		"protocol_version": protocol.Version,
		"client_name":      cfg.ClientName,
		"wire_modes":       []string{"binary_json"},
		"features":         []string{"idempotency", "batch"},
	})
	if err != nil {
		return err
	}
	if !resp.OK() {
		return resp.ServerError()
	}

	if cfg.Token != "" {
		resp, err := sess.send(ctx, protocol.OpAuth, map[string]any{
			"method": "bearer",
			"token":  cfg.Token,
		})
		if err != nil {
			return err
		}
		if !resp.OK() {
			return resp.ServerError()
		}
	}
	return nil
}
