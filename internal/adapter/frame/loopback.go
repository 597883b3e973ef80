// Package frame provides transports that carry the cross-frame protocol: an
// in-process loopback pair and a websocket dialer/host pair for embedded
// documents living in another process.
package frame

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"forward-elements/internal/usecase/element"
)

// ErrClosed is returned when posting into a torn-down frame.
var ErrClosed = errors.New("frame: closed")

// LoopbackOption tweaks the embedded side of a loopback pair.
type LoopbackOption func(*LoopbackFrame)

// WithCardValues exposes the embedded form's current card number to the
// host through the card-values capability.
func WithCardValues(read func() (string, bool)) LoopbackOption {
	return func(f *LoopbackFrame) { f.readCardNumber = read }
}

// WithDirectSubmit exposes a combined validate-and-submit entry point
// through the direct-submit capability.
func WithDirectSubmit(submit func(ctx context.Context) error) LoopbackOption {
	return func(f *LoopbackFrame) { f.directSubmit = submit }
}

// LoopbackFrame is the host-side handle of an in-process frame pair. It
// satisfies element.Frame; its peer PageConn is what the embedded form page
// drives.
type LoopbackFrame struct {
	origin string

	toPage   chan []byte
	fromPage chan element.Inbound
	loaded   chan struct{}
	done     chan struct{}

	// mu serializes channel sends against the single close of fromPage.
	// Senders hold the read side while blocked; Close signals done first so
	// they drain before fromPage is closed.
	mu        sync.RWMutex
	closeOnce sync.Once

	readCardNumber func() (string, bool)
	directSubmit   func(ctx context.Context) error
}

// PageConn is the embedded-side handle of a loopback pair.
type PageConn struct {
	frame *LoopbackFrame

	loadOnce sync.Once
}

// NewLoopback creates a connected frame pair for an embedded document of the
// given origin. The host posts into the page via the returned frame; the
// page answers via the returned conn. Messages surface on the host side
// tagged with the page's origin, so the receive-side origin check holds
// without any cooperation from the page.
func NewLoopback(origin string, opts ...LoopbackOption) (*LoopbackFrame, *PageConn) {
	f := &LoopbackFrame{
		origin:   origin,
		toPage:   make(chan []byte, 16),
		fromPage: make(chan element.Inbound, 16),
		loaded:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, &PageConn{frame: f}
}

func (f *LoopbackFrame) Post(ctx context.Context, targetOrigin string, payload []byte) error {
	if targetOrigin != f.origin {
		return fmt.Errorf("frame: refusing delivery to %q, document origin is %q", targetOrigin, f.origin)
	}
	buf := make([]byte, len(payload))
	copy(buf, payload)
	select {
	case <-f.done:
		return ErrClosed
	default:
	}
	select {
	case f.toPage <- buf:
		return nil
	case <-f.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *LoopbackFrame) Messages() <-chan element.Inbound { return f.fromPage }
func (f *LoopbackFrame) Loaded() <-chan struct{}          { return f.loaded }

// Close tears the pair down. The done signal lands before fromPage closes,
// so any blocked page-side send unwinds instead of hitting a closed channel.
func (f *LoopbackFrame) Close() error {
	f.closeOnce.Do(func() {
		close(f.done)
		f.mu.Lock()
		close(f.fromPage)
		f.mu.Unlock()
	})
	return nil
}

// CardNumber implements element.CardValueReader when the page opted in.
func (f *LoopbackFrame) CardNumber() (string, bool) {
	if f.readCardNumber == nil {
		return "", false
	}
	return f.readCardNumber()
}

// ValidateAndSubmit implements element.DirectSubmitter when the page opted in.
func (f *LoopbackFrame) ValidateAndSubmit(ctx context.Context) error {
	if f.directSubmit == nil {
		return errors.New("frame: direct submit not exposed")
	}
	return f.directSubmit(ctx)
}

// MarkLoaded signals the document-finished-loading event to the host. Fires
// at most once.
func (c *PageConn) MarkLoaded() {
	c.loadOnce.Do(func() { close(c.frame.loaded) })
}

// Receive yields the payloads the host posted into the frame.
func (c *PageConn) Receive() <-chan []byte { return c.frame.toPage }

// Done is closed when the pair is torn down; page loops select on it
// alongside Receive.
func (c *PageConn) Done() <-chan struct{} { return c.frame.done }

// Send posts a payload back to the host, tagged with the page's origin.
func (c *PageConn) Send(ctx context.Context, payload []byte) error {
	f := c.frame
	buf := make([]byte, len(payload))
	copy(buf, payload)

	f.mu.RLock()
	defer f.mu.RUnlock()
	select {
	case <-f.done:
		return ErrClosed
	default:
	}
	select {
	case f.fromPage <- element.Inbound{Origin: f.origin, Data: buf}:
		return nil
	case <-f.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SendMessage marshals and sends one protocol message to the host.
func (c *PageConn) SendMessage(ctx context.Context, m any) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("frame: marshal message: %w", err)
	}
	return c.Send(ctx, raw)
}

// Close tears the pair down from the page side.
func (c *PageConn) Close() error { return c.frame.Close() }
