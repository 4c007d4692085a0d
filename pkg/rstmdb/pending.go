package rstmdb

import (
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rstmdb/rstmdb-go/pkg/rstmdb/observability"
	"github.com/rstmdb/rstmdb-go/pkg/rstmdb/protocol"
)

// pendingResult is the single-assignment completion slot of a pending
// request: exactly one of resp or err is set.
type pendingResult struct {
	resp *protocol.Response
	err  error
}

// pendingRequest tracks one in-flight command awaiting its response.
type pendingRequest struct {
	id         string
	op         protocol.Op
	generation uint64
	created    time.Time

	// done guards the completion slot; flipped exactly once under the
	// table lock.
	done bool
	ch   chan pendingResult
}

// pendingTable correlates outbound commands with inbound responses.
//
// The table is mutated by both request-issuing callers (register/remove)
// and the read loop (complete/failGeneration); a single mutex is the
// access discipline. Correlation ids come from a monotonic counter that is
// never reset, so an id can never collide with one still outstanding.
type pendingTable struct {
	mu      sync.Mutex
	entries map[string]*pendingRequest
	nextID  atomic.Uint64
	logger  *slog.Logger
}

func newPendingTable(logger *slog.Logger) *pendingTable {
	return &pendingTable{
		entries: make(map[string]*pendingRequest),
		logger:  logger,
	}
}

// register creates a pending entry with a fresh correlation id, fenced to
// the given connection generation.
func (t *pendingTable) register(op protocol.Op, generation uint64) *pendingRequest {
	pr := &pendingRequest{
		id:         strconv.FormatUint(t.nextID.Add(1), 10),
		op:         op,
		generation: generation,
		created:    time.Now(),
		ch:         make(chan pendingResult, 1),
	}

	t.mu.Lock()
	t.entries[pr.id] = pr
	t.mu.Unlock()
	return pr
}

// complete delivers a response to the matching entry. A response for an
// unknown id (late arrival after timeout or cancellation) is discarded
// silently; a second delivery for a known id is a protocol violation,
// logged and discarded.
func (t *pendingTable) complete(resp *protocol.Response) {
	t.mu.Lock()
	pr, ok := t.entries[resp.ID]
	if !ok {
		t.mu.Unlock()
		return
	}
	if pr.done {
		t.mu.Unlock()
		observability.LogProtocolViolation(t.logger, "duplicate response for correlation id", resp.ID)
		return
	}
	pr.done = true
	t.mu.Unlock()

	pr.ch <- pendingResult{resp: resp}
}

// remove drops an entry. Called by the waiter after completion, timeout,
// or cancellation; the command already sent cannot be retracted, so a late
// response for the id is simply no longer tracked.
func (t *pendingTable) remove(id string) {
	t.mu.Lock()
	delete(t.entries, id)
	t.mu.Unlock()
}

// failGeneration fails every outstanding entry belonging to the given
// connection generation atomically. Entries registered on a newer
// generation (replay traffic on the next connection) are untouched.
func (t *pendingTable) failGeneration(generation uint64, err error) {
	t.mu.Lock()
	var failed []*pendingRequest
	for _, pr := range t.entries {
		if pr.generation == generation && !pr.done {
			pr.done = true
			failed = append(failed, pr)
		}
	}
	t.mu.Unlock()

	for _, pr := range failed {
		pr.ch <- pendingResult{err: err}
	}
}

// failAll fails every outstanding entry regardless of generation.
// Used on explicit client shutdown.
func (t *pendingTable) failAll(err error) {
	t.mu.Lock()
	var failed []*pendingRequest
	for _, pr := range t.entries {
		if !pr.done {
			pr.done = true
			failed = append(failed, pr)
		}
	}
	t.mu.Unlock()

	for _, pr := range failed {
		pr.ch <- pendingResult{err: err}
	}
}

// outstanding returns the number of tracked entries. Test hook.
func (t *pendingTable) outstanding() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
