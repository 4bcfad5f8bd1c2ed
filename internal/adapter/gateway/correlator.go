package gateway

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/qidu/webot/internal/domain"
)

// Outcome is the settled result of a pending request: a payload on
// success, or an error (remote failure, timeout, or teardown).
type Outcome struct {
	Payload json.RawMessage
	Err     error
}

type pendingRequest struct {
	id        string
	createdAt time.Time
	ch        chan Outcome
	timer     *time.Timer
}

// Correlator matches asynchronous response frames back to their
// originating request by id. It is the single owner of the pending
// request set and the single deadline owner for every entry: a late
// response racing a firing timer settles the request exactly once and
// the losing path becomes a no-op.
type Correlator struct {
	mu      sync.Mutex
	pending map[string]*pendingRequest
	logger  *slog.Logger
}

// NewCorrelator creates an empty correlator.
func NewCorrelator(logger *slog.Logger) *Correlator {
	return &Correlator{
		pending: make(map[string]*pendingRequest),
		logger:  logger,
	}
}

// Register creates a pending slot for id and returns a channel that
// receives exactly one Outcome: the matching response, a timeout after
// the given deadline, or a bulk cancellation.
func (c *Correlator) Register(id string, timeout time.Duration) <-chan Outcome {
	p := &pendingRequest{
		id:        id,
		createdAt: time.Now(),
		ch:        make(chan Outcome, 1),
	}

	// The entry must be visible before the timer is armed: an immediate
	// deadline would otherwise fire into an empty map and leave the entry
	// pending with a dead timer.
	c.mu.Lock()
	c.pending[id] = p
	p.timer = time.AfterFunc(timeout, func() {
		c.settle(id, Outcome{Err: domain.ErrRequestTimeout})
	})
	c.mu.Unlock()

	return p.ch
}

// Resolve settles the pending request matching id. An id with no pending
// entry is silently dropped: duplicate and stale responses are expected
// under reconnection.
func (c *Correlator) Resolve(id string, ok bool, payload json.RawMessage, remoteErr *domain.RemoteError) {
	out := Outcome{Payload: payload}
	if !ok {
		if remoteErr == nil {
			remoteErr = &domain.RemoteError{Message: "request failed"}
		}
		out = Outcome{Err: remoteErr}
	}
	if !c.settle(id, out) {
		c.logger.Debug("dropping unmatched response", "id", id)
	}
}

// Cancel settles the pending request for id with the caller's reason,
// keeping the outcome distinct from a server-reported failure. An id with
// no pending entry is a no-op.
func (c *Correlator) Cancel(id string, reason error) {
	if reason == nil {
		reason = domain.ErrConnectionClosed
	}
	c.settle(id, Outcome{Err: reason})
}

// CancelAll fails every still-pending request with reason and clears the
// map. Idempotent: a second call finds nothing to settle.
func (c *Correlator) CancelAll(reason error) {
	if reason == nil {
		reason = domain.ErrConnectionClosed
	}

	c.mu.Lock()
	drained := c.pending
	c.pending = make(map[string]*pendingRequest)
	c.mu.Unlock()

	for _, p := range drained {
		p.timer.Stop()
		p.ch <- Outcome{Err: reason}
	}
}

// Len reports the number of outstanding requests.
func (c *Correlator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// settle removes the pending entry for id and delivers the outcome.
// Returns false if no entry was pending.
func (c *Correlator) settle(id string, out Outcome) bool {
	c.mu.Lock()
	p, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()

	if !ok {
		return false
	}
	p.timer.Stop()
	p.ch <- out
	return true
}
