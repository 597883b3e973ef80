package frame

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"forward-elements/internal/domain"
	"forward-elements/internal/usecase/element"
)

// wireFrame is one unit on the websocket leg of the transport. Kind "loaded"
// marks the embedded document as finished loading; kind "message" carries a
// protocol payload.
type wireFrame struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

const (
	wireLoaded  = "loaded"
	wireMessage = "message"
)

// Dialer opens websocket-backed frames against an embedded form host. It is
// the Navigator for elements whose frame lives in another process.
type Dialer struct {
	// Endpoint is the host's frame endpoint, e.g. ws://127.0.0.1:8620/frame.
	Endpoint string
	Logger   *slog.Logger
}

// Open dials the host for the given session URL. Inbound messages surface
// tagged with the origin derived from that URL: the dialed connection is the
// transport's assertion of who is talking.
func (d *Dialer) Open(ctx context.Context, sessionURL string) (element.Frame, error) {
	origin, err := domain.Origin(sessionURL)
	if err != nil {
		return nil, fmt.Errorf("frame: %w", err)
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	dialURL := d.Endpoint + "?session_url=" + url.QueryEscape(sessionURL)
	ws, _, err := websocket.Dial(ctx, dialURL, nil)
	if err != nil {
		return nil, fmt.Errorf("frame: dial %s: %w", d.Endpoint, err)
	}

	f := &wsFrame{
		origin:  origin,
		ws:      ws,
		sendCh:  make(chan []byte, 16),
		inbound: make(chan element.Inbound, 16),
		loaded:  make(chan struct{}),
		done:    make(chan struct{}),
		logger:  logger,
	}
	go f.readLoop()
	go f.writeLoop()
	return f, nil
}

// wsFrame is the host-side handle of a websocket-backed frame.
type wsFrame struct {
	origin string
	ws     *websocket.Conn

	sendCh  chan []byte
	inbound chan element.Inbound
	loaded  chan struct{}
	done    chan struct{}

	loadOnce  sync.Once
	closeOnce sync.Once
	logger    *slog.Logger
}

func (f *wsFrame) Post(ctx context.Context, targetOrigin string, payload []byte) error {
	if targetOrigin != f.origin {
		return fmt.Errorf("frame: refusing delivery to %q, document origin is %q", targetOrigin, f.origin)
	}
	buf := make([]byte, len(payload))
	copy(buf, payload)
	select {
	case f.sendCh <- buf:
		return nil
	case <-f.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *wsFrame) Messages() <-chan element.Inbound { return f.inbound }
func (f *wsFrame) Loaded() <-chan struct{}          { return f.loaded }

func (f *wsFrame) Close() error {
	f.closeOnce.Do(func() {
		close(f.done)
		// Unblocks the read loop, which owns and closes the inbound channel.
		f.ws.Close(websocket.StatusNormalClosure, "")
	})
	return nil
}

func (f *wsFrame) readLoop() {
	defer close(f.inbound)
	for {
		var wf wireFrame
		if err := wsjson.Read(context.Background(), f.ws, &wf); err != nil {
			f.Close()
			return
		}
		switch wf.Kind {
		case wireLoaded:
			f.loadOnce.Do(func() { close(f.loaded) })
		case wireMessage:
			select {
			case f.inbound <- element.Inbound{Origin: f.origin, Data: wf.Payload}:
			case <-f.done:
				return
			}
		default:
			f.logger.Warn("frame: unknown wire kind", "kind", wf.Kind)
		}
	}
}

func (f *wsFrame) writeLoop() {
	for {
		select {
		case <-f.done:
			return
		case payload := <-f.sendCh:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := wsjson.Write(ctx, f.ws, wireFrame{Kind: wireMessage, Payload: payload})
			cancel()
			if err != nil {
				f.Close()
				return
			}
		}
	}
}
