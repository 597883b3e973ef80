package cardform

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"forward-elements/internal/domain"
	"forward-elements/internal/usecase/element"
)

// Default round-trip bounds.
const (
	DefaultSubmitTimeout   = 10 * time.Second
	DefaultValidateTimeout = 5 * time.Second
	DefaultMountGrace      = 3 * time.Second
)

// Config configures a card form protocol client.
type Config struct {
	SessionURL string
	Bus        domain.EventBus
	Logger     *slog.Logger

	// Lifecycle callbacks, all optional. Invoked from the element's pump
	// goroutine; keep them short.
	OnReady            func()
	OnSuccess          func(methodID string)
	OnError            func(kind domain.ErrorKind, message string)
	OnSubmit           func()
	OnValidationResult func(domain.ValidationResultData)

	// Round-trip bounds; zero means the default.
	SubmitTimeout   time.Duration
	ValidateTimeout time.Duration
	MountGrace      time.Duration

	// TestCards enables the test-card fast path on submit. Off, every
	// submit takes the protocol path.
	TestCards bool
}

// Client is the typed, workflow-aware half of the protocol: it interprets
// and produces the card form message vocabulary on top of the generic
// element lifecycle, and exposes submit and validate as context-bounded
// round trips correlated by request id.
type Client struct {
	*element.Element

	cfg     Config
	logger  *slog.Logger
	pending *pendingTable

	capMu sync.Mutex
	caps  map[domain.Capability]bool
}

// New creates a client bound to a session URL. The origin trust boundary is
// derived once, at construction.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = DefaultSubmitTimeout
	}
	if cfg.ValidateTimeout <= 0 {
		cfg.ValidateTimeout = DefaultValidateTimeout
	}
	if cfg.MountGrace <= 0 {
		cfg.MountGrace = DefaultMountGrace
	}

	el, err := element.New(cfg.SessionURL, cfg.Bus, cfg.Logger)
	if err != nil {
		return nil, err
	}

	c := &Client{
		Element: el,
		cfg:     cfg,
		logger:  cfg.Logger,
		pending: newPendingTable(),
		caps:    make(map[domain.Capability]bool),
	}
	el.SetHandler(c.handleMessage)
	return c, nil
}

// HasCapability reports whether the frame advertised the capability during
// its ready handshake.
func (c *Client) HasCapability(capability domain.Capability) bool {
	c.capMu.Lock()
	defer c.capMu.Unlock()
	return c.caps[capability]
}

// PendingRequests reports the number of in-flight round trips.
func (c *Client) PendingRequests() int { return c.pending.size() }

// handleMessage filters and dispatches one raw inbound message. Messages
// whose url or sender origin do not match the bound session are dropped
// before any parsing; this double check is the protocol's only
// authentication.
func (c *Client) handleMessage(in element.Inbound) {
	var envelope struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(in.Data, &envelope); err != nil || envelope.URL != c.URL() {
		return
	}
	if in.Origin != c.Origin() {
		return
	}

	m, err := domain.ParseMessage(in.Data)
	if err != nil {
		c.emitLocalError(domain.ErrKindUnknownError, fmt.Sprintf("error parsing event: %v", err))
		return
	}

	switch m.Type {
	case domain.MsgReady:
		d, err := domain.DecodeReady(m)
		if err != nil {
			c.emitLocalError(domain.ErrKindUnknownError, fmt.Sprintf("error parsing event: %v", err))
			return
		}
		c.capMu.Lock()
		for _, capability := range d.Capabilities {
			c.caps[capability] = true
		}
		c.capMu.Unlock()
		c.Emit(m)
		if c.cfg.OnReady != nil {
			c.cfg.OnReady()
		}

	case domain.MsgSuccess:
		d, err := domain.DecodeSuccess(m)
		if err != nil {
			c.emitLocalError(domain.ErrKindUnknownError, fmt.Sprintf("error parsing event: %v", err))
			return
		}
		c.pending.settle(kindSubmit, m)
		c.Emit(m)
		if c.cfg.OnSuccess != nil {
			c.cfg.OnSuccess(d.MethodID)
		}

	case domain.MsgError:
		d, err := domain.DecodeError(m)
		if err != nil {
			c.emitLocalError(domain.ErrKindUnknownError, fmt.Sprintf("error parsing event: %v", err))
			return
		}
		c.pending.settle(kindSubmit, m)
		c.Emit(m)
		if c.cfg.OnError != nil {
			c.cfg.OnError(d.Error, d.Message)
		}

	case domain.MsgSubmit:
		c.Emit(m)
		if c.cfg.OnSubmit != nil {
			c.cfg.OnSubmit()
		}

	case domain.MsgHello:
		if _, err := domain.DecodeHello(m); err != nil {
			c.emitLocalError(domain.ErrKindUnknownError, fmt.Sprintf("error parsing event: %v", err))
			return
		}
		c.Emit(m)

	case domain.MsgValidationResult, domain.MsgValidationResultLegacy:
		d, err := domain.DecodeValidationResult(m)
		if err != nil {
			c.emitLocalError(domain.ErrKindUnknownError, fmt.Sprintf("error parsing event: %v", err))
			return
		}
		c.pending.settle(kindValidate, m)
		c.Emit(m)
		if c.cfg.OnValidationResult != nil {
			c.cfg.OnValidationResult(d)
		}

	default:
		c.logger.Warn("unknown event type", "type", string(m.Type), "url", c.URL())
		c.emitLocalError(domain.ErrKindUnknownEvent, fmt.Sprintf("unknown event type: %s", m.Type))
	}
}

// emitLocalError surfaces a schema or protocol error to local subscribers
// only. Nothing is sent back across the frame boundary; the protocol does
// not nack.
func (c *Client) emitLocalError(kind domain.ErrorKind, detail string) {
	c.Emit(domain.NewErrorMessage(c.URL(), "", kind, detail))
}

// Submit drives tokenization and resolves to the captured method handle.
// Exactly one outcome occurs per call: a success, a frame-reported error, a
// timeout, or an immediate send failure. The correlation entry is removed in
// every case.
func (c *Client) Submit(ctx context.Context) (domain.SuccessData, error) {
	const op = "CardForm.Submit"
	c.logger.Debug("submitting card form", "url", c.URL())

	if !c.Mounted() {
		c.logger.Debug("element not ready, waiting for frame load", "url", c.URL())
		if err := c.WaitReady(ctx, c.cfg.MountGrace); err != nil {
			return domain.SuccessData{}, err
		}
	}

	// Test-card fast path: no round trip, resolves immediately. Requires
	// the frame to have advertised access to its card values.
	if c.cfg.TestCards && c.HasCapability(domain.CapCardValues) {
		if reader, ok := c.Frame().(element.CardValueReader); ok {
			if number, ok := reader.CardNumber(); ok && IsTestCard(number) {
				c.logger.Debug("test card detected, generating test token", "last4", last4(number))
				d := domain.SuccessData{MethodID: testMethodID(), Last4: last4(number)}
				c.Emit(domain.NewSuccessMessage(c.URL(), "", d.MethodID, d.Last4))
				return d, nil
			}
		}
	}

	p, err := c.pending.register(op, kindSubmit)
	if err != nil {
		return domain.SuccessData{}, err
	}

	// Direct path: the frame advertised a combined validate-and-submit
	// entry point; the outcome still arrives as a success or error message
	// matched by the pending entry.
	direct := false
	if c.HasCapability(domain.CapDirectSubmit) {
		if ds, ok := c.Frame().(element.DirectSubmitter); ok {
			if err := ds.ValidateAndSubmit(ctx); err != nil {
				c.logger.Debug("direct submit failed, falling back to protocol", "error", err)
			} else {
				direct = true
			}
		}
	}

	if !direct {
		if err := c.Send(ctx, domain.NewSubmitMessage(c.URL(), p.id)); err != nil {
			c.pending.unregister(p)
			return domain.SuccessData{}, err
		}
	}

	timer := time.NewTimer(c.cfg.SubmitTimeout)
	defer timer.Stop()
	select {
	case res := <-p.ch:
		if res.msg.Type == domain.MsgError {
			d, _ := domain.DecodeError(res.msg)
			detail := d.Message
			if detail == "" {
				detail = "tokenization failed"
			}
			return domain.SuccessData{}, domain.NewDomainError(op, domain.ErrTokenization, detail)
		}
		d, err := domain.DecodeSuccess(res.msg)
		if err != nil {
			return domain.SuccessData{}, domain.WrapOp(op, err)
		}
		return d, nil
	case <-timer.C:
		c.pending.unregister(p)
		return domain.SuccessData{}, domain.NewDomainError(op, domain.ErrTimeout, "timeout waiting for tokenization response")
	case <-ctx.Done():
		c.pending.unregister(p)
		return domain.SuccessData{}, ctx.Err()
	}
}

// ValidateForm asks the frame to validate its current values and resolves to
// the reported result.
func (c *Client) ValidateForm(ctx context.Context) (domain.ValidationResultData, error) {
	const op = "CardForm.ValidateForm"
	c.logger.Debug("validating card form", "url", c.URL())

	p, err := c.pending.register(op, kindValidate)
	if err != nil {
		return domain.ValidationResultData{}, err
	}

	if err := c.Send(ctx, domain.NewValidateFormMessage(c.URL(), p.id)); err != nil {
		c.pending.unregister(p)
		return domain.ValidationResultData{}, err
	}

	timer := time.NewTimer(c.cfg.ValidateTimeout)
	defer timer.Stop()
	select {
	case res := <-p.ch:
		d, err := domain.DecodeValidationResult(res.msg)
		if err != nil {
			return domain.ValidationResultData{}, domain.WrapOp(op, err)
		}
		return d, nil
	case <-timer.C:
		c.pending.unregister(p)
		return domain.ValidationResultData{}, domain.NewDomainError(op, domain.ErrTimeout, "validation timeout")
	case <-ctx.Done():
		c.pending.unregister(p)
		return domain.ValidationResultData{}, ctx.Err()
	}
}

// Hello posts a fire-and-forget greeting into the frame.
func (c *Client) Hello(ctx context.Context, message string) error {
	return c.Send(ctx, domain.NewHelloMessage(c.URL(), message))
}

// FocusField asks the frame to focus the named field. Fire-and-forget.
func (c *Client) FocusField(ctx context.Context, field string) error {
	return c.Send(ctx, domain.NewFocusFieldMessage(c.URL(), field))
}
