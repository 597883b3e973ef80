package cardform

import (
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"forward-elements/internal/domain"
)

// requestKind separates the two round-trip operations so at most one of each
// can be outstanding.
type requestKind string

const (
	kindSubmit   requestKind = "submit"
	kindValidate requestKind = "validate"
)

type result struct {
	msg domain.Message
}

// pendingRequest correlates an in-flight round trip with its reply. The
// channel is buffered so settlement never blocks the pump goroutine.
type pendingRequest struct {
	id        string
	kind      requestKind
	createdAt time.Time
	ch        chan result
}

// pendingTable holds in-flight correlations keyed by request id, with a
// per-kind index enforcing the one-outstanding-per-kind rule.
type pendingTable struct {
	mu     sync.Mutex
	byID   map[string]*pendingRequest
	byKind map[requestKind]string
}

func newPendingTable() *pendingTable {
	return &pendingTable{
		byID:   make(map[string]*pendingRequest),
		byKind: make(map[requestKind]string),
	}
}

// register creates a correlation entry. Fails when a request of the same
// kind is already in flight: overlapping calls of one kind would make reply
// matching ambiguous for legacy frames that echo no request id.
func (t *pendingTable) register(op string, kind requestKind) (*pendingRequest, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.byKind[kind]; exists {
		return nil, domain.NewDomainError(op, domain.ErrRequestPending, string(kind))
	}
	p := &pendingRequest{
		id:        ulid.Make().String(),
		kind:      kind,
		createdAt: time.Now(),
		ch:        make(chan result, 1),
	}
	t.byID[p.id] = p
	t.byKind[kind] = p.id
	return p, nil
}

// unregister removes a correlation entry, typically on timeout or send
// failure. Idempotent.
func (t *pendingTable) unregister(p *pendingRequest) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.byID[p.id]; ok {
		delete(t.byID, p.id)
		delete(t.byKind, p.kind)
	}
}

// settle matches a reply to a pending entry and delivers it. Replies
// carrying a request id must match an entry of the right kind or they are
// ignored; replies without an id (older frames) fall back to the single
// outstanding entry of the kind. Removal happens before delivery, so each
// entry settles exactly once.
func (t *pendingTable) settle(kind requestKind, m domain.Message) bool {
	t.mu.Lock()
	var p *pendingRequest
	if m.RequestID != "" {
		p = t.byID[m.RequestID]
		if p == nil || p.kind != kind {
			t.mu.Unlock()
			return false
		}
	} else {
		id, ok := t.byKind[kind]
		if !ok {
			t.mu.Unlock()
			return false
		}
		p = t.byID[id]
	}
	delete(t.byID, p.id)
	delete(t.byKind, p.kind)
	t.mu.Unlock()

	p.ch <- result{msg: m}
	return true
}

// size reports the number of in-flight correlations.
func (t *pendingTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byID)
}
