package frame

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// Conn is the transport-independent handle an embedded form page drives:
// receive host payloads, send replies, mark the document loaded. Implemented
// by the loopback PageConn and by the websocket host's per-connection conn.
type Conn interface {
	Receive() <-chan []byte
	Done() <-chan struct{}
	Send(ctx context.Context, payload []byte) error
	MarkLoaded()
	Close() error
}

// PageHandler serves one embedded form page over a frame connection. Serve
// returns when the page is done or the connection drops.
type PageHandler interface {
	ServePage(ctx context.Context, sessionURL string, conn Conn)
}

// Host accepts websocket frame connections from host pages and hands each
// one to a page handler. One connection carries exactly one embedded form.
type Host struct {
	addr    string
	pages   PageHandler
	logger  *slog.Logger
	httpSrv *http.Server

	mu        sync.Mutex
	boundAddr string
}

// NewHost creates a frame host listening on addr.
func NewHost(addr string, pages PageHandler, logger *slog.Logger) *Host {
	if logger == nil {
		logger = slog.Default()
	}
	return &Host{addr: addr, pages: pages, logger: logger}
}

// Start begins accepting frame connections. Blocks until ctx is cancelled.
func (h *Host) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/frame", h.handleUpgrade)

	listener, err := net.Listen("tcp", h.addr)
	if err != nil {
		return fmt.Errorf("frame host listen: %w", err)
	}
	h.mu.Lock()
	h.boundAddr = listener.Addr().String()
	h.httpSrv = &http.Server{Handler: mux, BaseContext: func(net.Listener) context.Context { return ctx }}
	h.mu.Unlock()

	h.logger.Info("frame host started", "addr", h.BoundAddr())

	go func() {
		<-ctx.Done()
		h.Stop(context.Background())
	}()

	if err := h.httpSrv.Serve(listener); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("frame host serve: %w", err)
	}
	return nil
}

// Stop gracefully shuts the host down.
func (h *Host) Stop(ctx context.Context) error {
	h.mu.Lock()
	srv := h.httpSrv
	h.mu.Unlock()
	if srv == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// BoundAddr returns the actual listen address. Only valid after Start.
func (h *Host) BoundAddr() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.boundAddr
}

func (h *Host) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	sessionURL := r.URL.Query().Get("session_url")
	if sessionURL == "" {
		http.Error(w, "missing session_url", http.StatusBadRequest)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{
			"localhost", "localhost:*",
			"127.0.0.1", "127.0.0.1:*",
			"[::1]", "[::1]:*",
		},
	})
	if err != nil {
		h.logger.Warn("frame host: websocket accept failed", "error", err)
		return
	}

	h.logger.Info("frame connected", "session_url", sessionURL)

	conn := &hostConn{
		ws:      ws,
		receive: make(chan []byte, 16),
		sendCh:  make(chan wireFrame, 16),
		done:    make(chan struct{}),
	}
	go conn.writeLoop()
	go conn.readLoop(r.Context())

	h.pages.ServePage(r.Context(), sessionURL, conn)

	conn.Close()
	ws.Close(websocket.StatusNormalClosure, "")
	h.logger.Info("frame disconnected", "session_url", sessionURL)
}

// hostConn is the embedded side of one websocket frame connection.
type hostConn struct {
	ws      *websocket.Conn
	receive chan []byte
	sendCh  chan wireFrame
	done    chan struct{}

	loadOnce  sync.Once
	closeOnce sync.Once
}

func (c *hostConn) Receive() <-chan []byte { return c.receive }
func (c *hostConn) Done() <-chan struct{}  { return c.done }

func (c *hostConn) MarkLoaded() {
	c.loadOnce.Do(func() { c.enqueue(wireFrame{Kind: wireLoaded}) })
}

func (c *hostConn) Send(ctx context.Context, payload []byte) error {
	buf := make([]byte, len(payload))
	copy(buf, payload)
	select {
	case c.sendCh <- wireFrame{Kind: wireMessage, Payload: buf}:
		return nil
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *hostConn) enqueue(wf wireFrame) {
	select {
	case c.sendCh <- wf:
	case <-c.done:
	}
}

func (c *hostConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.ws.Close(websocket.StatusNormalClosure, "")
	})
	return nil
}

func (c *hostConn) readLoop(ctx context.Context) {
	defer close(c.receive)
	for {
		var wf wireFrame
		if err := wsjson.Read(ctx, c.ws, &wf); err != nil {
			c.Close()
			return
		}
		if wf.Kind != wireMessage {
			continue
		}
		select {
		case c.receive <- wf.Payload:
		case <-c.done:
			return
		}
	}
}

func (c *hostConn) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case wf := <-c.sendCh:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := wsjson.Write(ctx, c.ws, wf)
			cancel()
			if err != nil {
				c.Close()
				return
			}
		}
	}
}
