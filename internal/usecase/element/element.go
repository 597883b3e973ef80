package element

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"forward-elements/internal/domain"
)

// Handler is the message hook a specialization installs to interpret raw
// inbound traffic. It runs on the element's pump goroutine.
type Handler func(in Inbound)

// Listener receives every successfully parsed message relevant to this
// element.
type Listener func(msg domain.Message)

// Element is the generic embedded-frame lifecycle: mount a frame for a
// session URL, track readiness, pump raw messages to the specialization's
// handler, and fan parsed messages out to subscribers.
//
// State machine: Unmounted --Mount--> Mounted(loading) --frame load-->
// Mounted(ready); Unmount from any state returns to Unmounted. Mounting
// while mounted performs a full unmount first.
type Element struct {
	id     string
	url    string
	origin string
	bus    domain.EventBus
	logger *slog.Logger

	mu        sync.Mutex
	frame     Frame
	pumpStop  chan struct{}
	loaded    bool
	handler   Handler
	listeners map[uint64]Listener
	nextSub   uint64
}

// New creates an unmounted element bound to a session URL. The origin is
// derived from the URL once, here, and is the trust boundary for every
// message this element will accept.
func New(sessionURL string, bus domain.EventBus, logger *slog.Logger) (*Element, error) {
	origin, err := domain.Origin(sessionURL)
	if err != nil {
		return nil, domain.WrapOp("element.New", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Element{
		id:        ulid.Make().String(),
		url:       sessionURL,
		origin:    origin,
		bus:       bus,
		logger:    logger,
		listeners: make(map[uint64]Listener),
	}, nil
}

// ID returns the element's instance id, used to scope frame-ready
// notifications on the bus.
func (e *Element) ID() string { return e.id }

// URL returns the bound session URL.
func (e *Element) URL() string { return e.url }

// Origin returns the trust origin derived from the session URL.
func (e *Element) Origin() string { return e.origin }

// SetHandler installs the specialization's inbound hook. Must be called
// before Mount.
func (e *Element) SetHandler(h Handler) {
	e.mu.Lock()
	e.handler = h
	e.mu.Unlock()
}

// Mounted reports whether the element is attached and the frame finished
// loading. Only then is it ready to send.
func (e *Element) Mounted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.frame != nil && e.loaded
}

// Frame returns the currently mounted frame, or nil. Used by
// specializations to probe optional frame capabilities.
func (e *Element) Frame() Frame {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.frame
}

// Mount opens a frame for the session URL under target and starts the
// message pump. If the element is already mounted it fully unmounts the
// previous frame first, so remounting never leaks a frame or a pump.
func (e *Element) Mount(ctx context.Context, target Navigator) error {
	e.mu.Lock()
	if e.frame != nil {
		e.unmountLocked(false)
	}
	e.mu.Unlock()

	frame, err := target.Open(ctx, e.url)
	if err != nil {
		return domain.WrapOp("element.Mount", err)
	}

	stop := make(chan struct{})
	e.mu.Lock()
	e.frame = frame
	e.loaded = false
	e.pumpStop = stop
	e.mu.Unlock()

	go e.pump(frame, stop)
	e.logger.Debug("element mounted", "element_id", e.id, "url", e.url)
	return nil
}

// Unmount tears down the frame, removes the pump, clears all subscriptions
// and resets lifecycle flags. Safe to call repeatedly and when never
// mounted; the result is always equivalent to a fresh instance.
func (e *Element) Unmount() {
	e.mu.Lock()
	e.unmountLocked(true)
	e.mu.Unlock()
}

func (e *Element) unmountLocked(notify bool) {
	if e.frame != nil {
		close(e.pumpStop)
		_ = e.frame.Close()
		e.frame = nil
		e.pumpStop = nil
		if notify && e.bus != nil {
			e.bus.Publish(context.Background(), domain.Event{
				Type:      domain.EventFrameUnmounted,
				Timestamp: time.Now(),
				URL:       e.url,
				ElementID: e.id,
			})
		}
	}
	e.loaded = false
	e.listeners = make(map[uint64]Listener)
}

func (e *Element) pump(frame Frame, stop chan struct{}) {
	loadedCh := frame.Loaded()
	for {
		select {
		case <-stop:
			return
		case <-loadedCh:
			loadedCh = nil // fires once
			e.mu.Lock()
			current := e.frame == frame
			if current {
				e.loaded = true
			}
			e.mu.Unlock()
			if current && e.bus != nil {
				e.bus.Publish(context.Background(), domain.Event{
					Type:      domain.EventFrameReady,
					Timestamp: time.Now(),
					URL:       e.url,
					ElementID: e.id,
				})
			}
		case in, ok := <-frame.Messages():
			if !ok {
				return
			}
			e.mu.Lock()
			h := e.handler
			e.mu.Unlock()
			if h != nil {
				h(in)
			}
		}
	}
}

// Subscribe registers a listener for parsed messages. Removal is set-based:
// the returned function removes exactly that registration and is safe to
// call more than once.
func (e *Element) Subscribe(l Listener) func() {
	e.mu.Lock()
	e.nextSub++
	id := e.nextSub
	e.listeners[id] = l
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		delete(e.listeners, id)
		e.mu.Unlock()
	}
}

// SubscriberCount reports the number of registered listeners.
func (e *Element) SubscriberCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.listeners)
}

// Emit delivers a parsed message to every subscriber.
func (e *Element) Emit(msg domain.Message) {
	e.mu.Lock()
	snapshot := make([]Listener, 0, len(e.listeners))
	for _, l := range e.listeners {
		snapshot = append(snapshot, l)
	}
	e.mu.Unlock()

	for _, l := range snapshot {
		l(msg)
	}
}

// Send posts a message into the frame, targeting the element's derived
// origin. Fails when the element is not mounted or the frame is gone.
func (e *Element) Send(ctx context.Context, msg domain.Message) error {
	e.mu.Lock()
	frame := e.frame
	e.mu.Unlock()

	if frame == nil {
		return domain.NewDomainError("element.Send", domain.ErrNotMounted, e.url)
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return domain.WrapOp("element.Send", err)
	}
	if err := frame.Post(ctx, e.origin, raw); err != nil {
		return domain.NewDomainError("element.Send", domain.ErrFrameUnavailable, err.Error())
	}
	return nil
}

// WaitReady blocks until the frame reports loaded, up to grace. Returns
// immediately when already mounted. Used to give a submit issued right
// after mount a chance instead of failing outright.
func (e *Element) WaitReady(ctx context.Context, grace time.Duration) error {
	if e.Mounted() {
		return nil
	}
	if e.bus == nil {
		return domain.NewDomainError("element.WaitReady", domain.ErrFrameNotReady, e.url)
	}

	ready := make(chan struct{})
	var once sync.Once
	unsub := e.bus.Subscribe(domain.EventFrameReady, func(_ context.Context, ev domain.Event) {
		if ev.ElementID == e.id {
			once.Do(func() { close(ready) })
		}
	})
	defer unsub()

	// Re-check after subscribing so a load that raced the subscription is
	// not missed.
	if e.Mounted() {
		return nil
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-ready:
		return nil
	case <-timer.C:
		if e.Mounted() {
			return nil
		}
		return domain.NewDomainError("element.WaitReady", domain.ErrFrameNotReady, e.url)
	case <-ctx.Done():
		return ctx.Err()
	}
}
