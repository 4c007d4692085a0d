package rstmdb

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/rstmdb/rstmdb-go/pkg/rstmdb/checkpoint"
	"github.com/rstmdb/rstmdb-go/pkg/rstmdb/observability"
	"github.com/rstmdb/rstmdb-go/pkg/rstmdb/protocol"
)

// WatchFilter selects which transitions a WatchAll subscription receives.
// Empty slices match everything.
type WatchFilter struct {
	Machines   []string
	FromStates []string
	ToStates   []string
	Events     []string
	IncludeCtx bool
}

// params renders the filter as watch request parameters.
func (f WatchFilter) params() map[string]any {
	p := map[string]any{"include_ctx": f.IncludeCtx}
	if len(f.Machines) > 0 {
		p["machines"] = f.Machines
	}
	if len(f.FromStates) > 0 {
		p["from_states"] = f.FromStates
	}
	if len(f.ToStates) > 0 {
		p["to_states"] = f.ToStates
	}
	if len(f.Events) > 0 {
		p["events"] = f.Events
	}
	return p
}

// Subscription is a standing request for event notifications. The
// consumer-facing identity (ID, the Events channel) is a local handle that
// survives reconnection; the server-side subscription id may change when
// the watch is replayed on a new connection.
type Subscription struct {
	localID string
	name    string
	op      protocol.Op
	reqs    map[string]any // replayed verbatim on reconnect

	// StartState is the instance state at watch time (WATCH_INSTANCE only).
	StartState string
	// StartOffset is the WAL offset the subscription began at.
	StartOffset int64

	mu       sync.Mutex
	cond     *sync.Cond
	serverID string
	staged   []*protocol.StreamEvent
	closed   bool

	events chan *protocol.StreamEvent
	done   chan struct{}
	router *watchRouter
}

// ID returns the stable local subscription handle.
func (s *Subscription) ID() string {
	return s.localID
}

// ServerID returns the current server-assigned subscription id.
func (s *Subscription) ServerID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serverID
}

// Events returns the consumer queue. The channel is closed when the
// subscription is cancelled or the client shuts down; duplicates are
// possible across a reconnect boundary and are not filtered here.
func (s *Subscription) Events() <-chan *protocol.StreamEvent {
	return s.events
}

// Next blocks until an event arrives, the subscription closes, or ctx is
// cancelled. A closed subscription yields ErrSubscriptionClosed.
func (s *Subscription) Next(ctx context.Context) (*protocol.StreamEvent, error) {
	select {
	case evt, ok := <-s.events:
		if !ok {
			return nil, ErrSubscriptionClosed
		}
		return evt, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// enqueue stages an event for delivery. Never blocks: the read loop must
// stay responsive even when this subscription's consumer has stalled.
func (s *Subscription) enqueue(evt *protocol.StreamEvent) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.staged = append(s.staged, evt)
	s.cond.Signal()
	s.mu.Unlock()
}

// pump moves staged events into the bounded consumer channel in arrival
// order. When the channel is full the pump blocks, suspending delivery for
// this subscription only.
func (s *Subscription) pump() {
	defer close(s.events)
	for {
		s.mu.Lock()
		for len(s.staged) == 0 && !s.closed {
			s.cond.Wait()
		}
		if len(s.staged) == 0 && s.closed {
			s.mu.Unlock()
			return
		}
		evt := s.staged[0]
		s.staged = s.staged[1:]
		s.mu.Unlock()

		select {
		case s.events <- evt:
			s.router.recordDelivery(s, evt)
		case <-s.done:
			return
		}
	}
}

// close shuts the subscription down locally. Idempotent.
func (s *Subscription) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.cond.Signal()
	s.mu.Unlock()
	close(s.done)
}

// watchRouter maintains the subscription table and routes inbound event
// frames to the correct consumer queue. It is mutated by the read loop (on
// event arrival) and by subscribe/unsubscribe callers; one mutex is the
// access discipline, independent of the pending-request table.
type watchRouter struct {
	mu       sync.Mutex
	byServer map[string]*Subscription
	order    []*Subscription // creation order, replayed in order on reconnect

	buffer  int
	logger  *slog.Logger
	metrics observability.MetricsRecorder
	offsets checkpoint.Store
}

func newWatchRouter(buffer int, logger *slog.Logger, metrics observability.MetricsRecorder, offsets checkpoint.Store) *watchRouter {
	return &watchRouter{
		byServer: make(map[string]*Subscription),
		buffer:   buffer,
		logger:   logger,
		metrics:  metrics,
		offsets:  offsets,
	}
}

// add registers a freshly acknowledged subscription and starts its pump.
func (r *watchRouter) add(op protocol.Op, reqParams map[string]any, serverID, name string) *Subscription {
	sub := &Subscription{
		localID:  uuid.NewString(),
		name:     name,
		op:       op,
		reqs:     reqParams,
		serverID: serverID,
		events:   make(chan *protocol.StreamEvent, r.buffer),
		done:     make(chan struct{}),
		router:   r,
	}
	sub.cond = sync.NewCond(&sub.mu)
	if sub.name == "" {
		sub.name = sub.localID
	}

	r.mu.Lock()
	r.byServer[serverID] = sub
	r.order = append(r.order, sub)
	r.mu.Unlock()

	go sub.pump()
	return sub
}

// deliver routes one inbound event to its subscription queue. Events with
// no matching subscription (raced with an unsubscribe) are dropped.
func (r *watchRouter) deliver(evt *protocol.StreamEvent) {
	r.mu.Lock()
	sub := r.byServer[evt.SubscriptionID]
	r.mu.Unlock()

	if sub == nil {
		return
	}
	sub.enqueue(evt)
}

// recordDelivery updates metrics and the WAL-offset checkpoint after an
// event reaches the consumer channel.
func (r *watchRouter) recordDelivery(sub *Subscription, evt *protocol.StreamEvent) {
	r.metrics.RecordEventDelivered(context.Background(), evt.Machine)
	if r.offsets != nil {
		if err := r.offsets.Save(sub.name, evt.WalOffset); err != nil && r.logger != nil {
			r.logger.Warn("checkpoint save failed",
				slog.String("subscription", sub.name),
				slog.String("error", err.Error()),
			)
		}
	}
}

// remove unregisters a subscription and closes its queue. Fail open: the
// queue closes locally even when the server never acknowledged the cancel.
func (r *watchRouter) remove(sub *Subscription) {
	sid := sub.ServerID()

	r.mu.Lock()
	if cur, ok := r.byServer[sid]; ok && cur == sub {
		delete(r.byServer, sid)
	}
	for i, other := range r.order {
		if other == sub {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.mu.Unlock()

	sub.close()
}

// rebind points a subscription at the server id assigned on replay. The
// consumer queue identity is untouched.
func (r *watchRouter) rebind(sub *Subscription, newServerID string) {
	old := sub.ServerID()

	sub.mu.Lock()
	sub.serverID = newServerID
	sub.mu.Unlock()

	r.mu.Lock()
	delete(r.byServer, old)
	r.byServer[newServerID] = sub
	r.mu.Unlock()

	observability.LogSubscriptionReplayed(r.logger, sub.localID, old, newServerID)
}

// snapshot returns the live subscriptions in creation order.
func (r *watchRouter) snapshot() []*Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Subscription, len(r.order))
	copy(out, r.order)
	return out
}

// closeAll tears down every subscription queue. Used on client shutdown.
func (r *watchRouter) closeAll() {
	for _, sub := range r.snapshot() {
		sub.close()
	}
	r.mu.Lock()
	r.byServer = make(map[string]*Subscription)
	r.order = nil
	r.mu.Unlock()
}
