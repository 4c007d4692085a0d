package rstmdb

import (
	"context"
	"log/slog"
	"sync"
	"time"

	rcperrors "github.com/rstmdb/rstmdb-go/pkg/rstmdb/errors"
	"github.com/rstmdb/rstmdb-go/pkg/rstmdb/observability"
	"github.com/rstmdb/rstmdb-go/pkg/rstmdb/protocol"
	"github.com/rstmdb/rstmdb-go/pkg/rstmdb/transport"
)

// Client is the rstmdb protocol engine: it owns the connection lifecycle,
// correlates requests with responses, routes event streams to
// subscriptions, and reconnects transparently when configured to.
//
// A Client is safe for concurrent use. Create one with New, establish the
// connection with Open, and release resources with Close.
type Client struct {
	cfg     Config
	logger  *slog.Logger
	metrics observability.MetricsRecorder
	spans   observability.SpanManager

	pending *pendingTable
	router  *watchRouter
	sup     *supervisor

	mu    sync.Mutex
	state connState
	sess  *session
	ready chan struct{} // non-nil while disconnected; closed on reconnect

	closed    chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// New builds a Client from cfg. The connection is not established until
// Open is called.
func New(cfg Config) (*Client, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	c := &Client{
		cfg:     cfg,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		spans:   cfg.Spans,
		pending: newPendingTable(cfg.Logger),
		closed:  make(chan struct{}),
	}
	c.router = newWatchRouter(cfg.EventBuffer, cfg.Logger, cfg.Metrics, cfg.Offsets)
	c.sup = &supervisor{c: c}
	return c, nil
}

// Open dials the server, negotiates TLS when configured, and performs the
// HELLO/AUTH handshake. It must complete before any command is sent.
func (c *Client) Open(ctx context.Context) error {
	c.mu.Lock()
	if c.state != stateIdle {
		c.mu.Unlock()
		return &rcperrors.ClientClosedError{Reason: "client already opened"}
	}
	// Claim the connecting state under the lock so a concurrent Open is
	// rejected instead of racing the dial.
	c.state = stateConnecting
	c.mu.Unlock()

	if c.cfg.TLS.Active() && c.cfg.TLS.Insecure {
		observability.LogInsecureTLS(c.logger, c.cfg.transportConfig().Addr())
	}

	sess, err := c.connect(ctx)
	if err != nil {
		c.mu.Lock()
		if c.state == stateConnecting {
			c.state = stateIdle
		}
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	if c.state == stateClosed {
		closeErr := c.closeErr
		c.mu.Unlock()
		sess.close()
		if closeErr == nil {
			closeErr = &rcperrors.ClientClosedError{Reason: "client closed"}
		}
		return closeErr
	}
	c.sess = sess
	c.state = stateConnected
	c.mu.Unlock()

	// A loss signaled before the session was installed was ignored by the
	// supervisor; re-check so a connection that died during the handshake
	// window is handled like any other loss.
	if !sess.conn.Alive() {
		c.sup.onConnectionLost(sess.generation(), nil)
	}
	return nil
}

// connect establishes one connection generation end to end: dial, start the
// read loop, handshake. On handshake failure the connection is torn down
// and the error returned.
func (c *Client) connect(ctx context.Context) (*session, error) {
	tcfg := c.cfg.transportConfig()
	ctx, span := c.spans.StartConnectSpan(ctx, tcfg.Addr())

	conn, err := transport.Dial(ctx, tcfg)
	if err != nil {
		c.spans.EndSpanWithError(span, err)
		return nil, err
	}

	sess := newSession(conn, c.pending, c.router, c.logger, c.cfg.RequestTimeout, c.sup.onConnectionLost)
	sess.start()

	if err := handshake(ctx, sess, c.cfg); err != nil {
		sess.close()
		c.spans.EndSpanWithError(span, err)
		return nil, err
	}

	observability.LogConnected(c.logger, conn.Addr(), conn.Generation(), c.cfg.TLS.Active())
	c.spans.EndSpanWithError(span, nil)
	return sess, nil
}

// Close sends a best-effort BYE, fails all outstanding requests, closes
// every subscription queue, and releases the connection. Idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	sess := c.sess
	connected := c.state == stateConnected
	c.mu.Unlock()

	if connected && sess != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_, _ = sess.send(ctx, protocol.OpBye, nil)
		cancel()
	}

	c.shutdown(&rcperrors.ClientClosedError{Reason: "closed by caller"})
	return nil
}

// shutdown transitions to the terminal Closed state and fans err out to
// every waiter: pending requests, blocked senders, and event consumers.
func (c *Client) shutdown(err error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.state = stateClosed
		c.closeErr = err
		sess := c.sess
		c.sess = nil
		c.mu.Unlock()

		close(c.closed)
		if sess != nil {
			sess.close()
		}
		c.pending.failAll(err)
		c.router.closeAll()
	})
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateClosed
}

// acquireSession returns the live session, applying the configured
// disconnect policy while the supervisor is between connections: fail
// returns a ConnectionLostError immediately; wait suspends the caller
// until reconnected, cancelled, or closed.
func (c *Client) acquireSession(ctx context.Context) (*session, error) {
	for {
		c.mu.Lock()
		switch c.state {
		case stateConnected:
			sess := c.sess
			c.mu.Unlock()
			return sess, nil
		case stateIdle, stateConnecting:
			c.mu.Unlock()
			return nil, &rcperrors.ClientClosedError{Reason: "client not opened"}
		case stateClosed:
			err := c.closeErr
			c.mu.Unlock()
			if err == nil {
				err = &rcperrors.ClientClosedError{Reason: "client closed"}
			}
			return nil, err
		default:
			if c.cfg.DisconnectPolicy == DisconnectFail {
				c.mu.Unlock()
				return nil, &rcperrors.ConnectionLostError{Err: nil}
			}
			ready := c.ready
			c.mu.Unlock()

			select {
			case <-ready:
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-c.closed:
			}
		}
	}
}

// Request performs one raw command round-trip and returns the result
// object of an ok response. Error-status responses surface as ServerError.
// Most callers want the typed wrappers instead.
func (c *Client) Request(ctx context.Context, op protocol.Op, params map[string]any) (map[string]any, error) {
	sess, err := c.acquireSession(ctx)
	if err != nil {
		return nil, err
	}

	ctx, span := c.spans.StartRequestSpan(ctx, string(op), "")
	start := time.Now()

	resp, err := sess.send(ctx, op, params)
	c.metrics.RecordRequest(ctx, string(op), time.Since(start), err)
	if err != nil {
		c.spans.EndSpanWithError(span, err)
		return nil, err
	}
	if !resp.OK() {
		serr := resp.ServerError()
		c.spans.EndSpanWithError(span, serr)
		return nil, serr
	}
	c.spans.EndSpanWithError(span, nil)
	return resp.Result, nil
}

// Ping checks liveness of the connection and server.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Request(ctx, protocol.OpPing, nil)
	return err
}

// Info returns server build and runtime information.
func (c *Client) Info(ctx context.Context) (map[string]any, error) {
	return c.Request(ctx, protocol.OpInfo, nil)
}

// PutMachine registers version of a state machine definition under the
// given name.
func (c *Client) PutMachine(ctx context.Context, machine string, version int, definition map[string]any) (*PutMachineResult, error) {
	result, err := c.Request(ctx, protocol.OpPutMachine, map[string]any{
		"machine":    machine,
		"version":    version,
		"definition": definition,
	})
	if err != nil {
		return nil, err
	}
	return decodeResult[PutMachineResult](result)
}

// GetMachine fetches a machine definition by name, optionally pinned to a
// version (zero means latest).
func (c *Client) GetMachine(ctx context.Context, machine string, version int) (*GetMachineResult, error) {
	params := map[string]any{"machine": machine}
	if version > 0 {
		params["version"] = version
	}
	result, err := c.Request(ctx, protocol.OpGetMachine, params)
	if err != nil {
		return nil, err
	}
	return decodeResult[GetMachineResult](result)
}

// ListMachines lists registered machine definitions.
func (c *Client) ListMachines(ctx context.Context) (map[string]any, error) {
	return c.Request(ctx, protocol.OpListMachines, nil)
}

// CreateInstance creates a new instance of a machine version in its
// initial state.
func (c *Client) CreateInstance(ctx context.Context, machine string, version int, opts ...CallOption) (*CreateInstanceResult, error) {
	params := map[string]any{"machine": machine, "version": version}
	applyOptions(params, opts)
	result, err := c.Request(ctx, protocol.OpCreateInstance, params)
	if err != nil {
		return nil, err
	}
	return decodeResult[CreateInstanceResult](result)
}

// GetInstance fetches the current state and context of an instance.
func (c *Client) GetInstance(ctx context.Context, instanceID string) (*GetInstanceResult, error) {
	result, err := c.Request(ctx, protocol.OpGetInstance, map[string]any{"instance_id": instanceID})
	if err != nil {
		return nil, err
	}
	return decodeResult[GetInstanceResult](result)
}

// ListInstances lists instances, filtered via options.
func (c *Client) ListInstances(ctx context.Context, opts ...CallOption) (*ListInstancesResult, error) {
	params := map[string]any{}
	applyOptions(params, opts)
	result, err := c.Request(ctx, protocol.OpListInstances, params)
	if err != nil {
		return nil, err
	}
	return decodeResult[ListInstancesResult](result)
}

// DeleteInstance removes an instance.
func (c *Client) DeleteInstance(ctx context.Context, instanceID string, opts ...CallOption) error {
	params := map[string]any{"instance_id": instanceID}
	applyOptions(params, opts)
	_, err := c.Request(ctx, protocol.OpDeleteInstance, params)
	return err
}

// ApplyEvent applies one event to an instance, driving a state transition.
func (c *Client) ApplyEvent(ctx context.Context, instanceID, event string, payload map[string]any, opts ...CallOption) (*ApplyEventResult, error) {
	params := map[string]any{
		"instance_id": instanceID,
		"event":       event,
	}
	if payload != nil {
		params["payload"] = payload
	}
	applyOptions(params, opts)
	result, err := c.Request(ctx, protocol.OpApplyEvent, params)
	if err != nil {
		return nil, err
	}
	return decodeResult[ApplyEventResult](result)
}

// Batch submits multiple operations in one round-trip. Each entry is an
// {op, params} pair; the server applies them atomically.
func (c *Client) Batch(ctx context.Context, ops []BatchOp) (map[string]any, error) {
	entries := make([]map[string]any, len(ops))
	for i, op := range ops {
		entries[i] = map[string]any{"op": string(op.Op), "params": op.Params}
	}
	return c.Request(ctx, protocol.OpBatch, map[string]any{"ops": entries})
}

// SnapshotInstance forces a snapshot of an instance's state.
func (c *Client) SnapshotInstance(ctx context.Context, instanceID string) (map[string]any, error) {
	return c.Request(ctx, protocol.OpSnapshotInstance, map[string]any{"instance_id": instanceID})
}

// WalRead reads write-ahead-log entries starting at fromOffset.
func (c *Client) WalRead(ctx context.Context, fromOffset int64, limit int) (map[string]any, error) {
	params := map[string]any{"from_offset": fromOffset}
	if limit > 0 {
		params["limit"] = limit
	}
	return c.Request(ctx, protocol.OpWalRead, params)
}

// WalStats returns write-ahead-log statistics.
func (c *Client) WalStats(ctx context.Context) (*WalStatsResult, error) {
	result, err := c.Request(ctx, protocol.OpWalStats, nil)
	if err != nil {
		return nil, err
	}
	return decodeResult[WalStatsResult](result)
}

// Compact triggers log compaction on the server.
func (c *Client) Compact(ctx context.Context) (map[string]any, error) {
	return c.Request(ctx, protocol.OpCompact, nil)
}

// WatchInstance subscribes to state transitions of a single instance. The
// returned Subscription survives reconnection: the watch is re-registered
// automatically and events keep flowing into the same queue.
func (c *Client) WatchInstance(ctx context.Context, instanceID string, includeCtx bool) (*Subscription, error) {
	params := map[string]any{
		"instance_id": instanceID,
		"include_ctx": includeCtx,
	}
	result, err := c.Request(ctx, protocol.OpWatchInstance, params)
	if err != nil {
		return nil, err
	}
	wr, err := decodeResult[WatchInstanceResult](result)
	if err != nil {
		return nil, err
	}

	sub := c.router.add(protocol.OpWatchInstance, params, wr.SubscriptionID, "instance:"+instanceID)
	sub.StartState = wr.CurrentState
	sub.StartOffset = wr.CurrentWalOffset
	return sub, nil
}

// WatchAll subscribes to transitions across instances, narrowed by filter.
func (c *Client) WatchAll(ctx context.Context, filter WatchFilter) (*Subscription, error) {
	return c.WatchAllNamed(ctx, "", filter)
}

// WatchAllNamed is WatchAll with a stable name used as the checkpoint key
// when an offset store is configured, so a restarted consumer can find
// where it left off.
func (c *Client) WatchAllNamed(ctx context.Context, name string, filter WatchFilter) (*Subscription, error) {
	params := filter.params()
	result, err := c.Request(ctx, protocol.OpWatchAll, params)
	if err != nil {
		return nil, err
	}
	wr, err := decodeResult[WatchAllResult](result)
	if err != nil {
		return nil, err
	}

	sub := c.router.add(protocol.OpWatchAll, params, wr.SubscriptionID, name)
	sub.StartOffset = wr.WalOffset
	return sub, nil
}

// Unwatch cancels a subscription on the server, then closes the local
// queue. The queue closes even when the cancel fails or times out; the
// error, if any, is returned for observability.
func (c *Client) Unwatch(ctx context.Context, sub *Subscription) error {
	result, err := c.Request(ctx, protocol.OpUnwatch, map[string]any{"subscription_id": sub.ServerID()})
	c.router.remove(sub)
	if err != nil {
		return err
	}
	_, err = decodeResult[UnwatchResult](result)
	return err
}
