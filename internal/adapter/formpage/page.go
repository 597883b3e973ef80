// Package formpage is the embedded side of the card form protocol: the
// document that lives inside the frame, captures card data, answers
// validation requests and tokenizes on submit.
package formpage

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"forward-elements/internal/adapter/frame"
	"forward-elements/internal/domain"
)

// baseHeight is the minimum frame height announced in resize hints.
const baseHeight = 370

// errorRowHeight is the extra height one field error message adds.
const errorRowHeight = 28

// DefaultDebounceDelay is how long a field edit settles before revalidation.
const DefaultDebounceDelay = 300 * time.Millisecond

// Config configures one embedded form page.
type Config struct {
	SessionURL string
	Sessions   domain.SessionStore
	Methods    domain.MethodStore
	Logger     *slog.Logger

	// Capabilities are advertised in the ready handshake. The host only
	// uses a fast path the page announced here.
	Capabilities []domain.Capability

	DebounceDelay time.Duration
}

// Page is one embedded card form bound to a session URL.
type Page struct {
	cfg      Config
	url      string
	logger   *slog.Logger
	debounce *Debouncer

	mu      sync.Mutex
	form    CardForm
	focused string
	conn    frame.Conn
}

// New creates a page for the configured session URL.
func New(cfg Config) *Page {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.DebounceDelay <= 0 {
		cfg.DebounceDelay = DefaultDebounceDelay
	}
	return &Page{
		cfg:      cfg,
		url:      cfg.SessionURL,
		logger:   cfg.Logger,
		debounce: NewDebouncer(cfg.DebounceDelay),
	}
}

// sessionID extracts the trailing id from the session URL.
func (p *Page) sessionID() string {
	return p.url[strings.LastIndex(p.url, "/")+1:]
}

// Serve drives the page over one frame connection: announce readiness, then
// answer host messages until the connection drops. Returns when done.
func (p *Page) Serve(ctx context.Context, conn frame.Conn) {
	defer p.debounce.Stop()

	if _, err := p.cfg.Sessions.GetByID(ctx, p.sessionID()); err != nil {
		p.logger.Warn("form page refusing unknown session", "session_id", p.sessionID(), "error", err)
		conn.Close()
		return
	}

	p.mu.Lock()
	p.conn = conn
	p.mu.Unlock()

	conn.MarkLoaded()
	p.send(ctx, domain.NewReadyMessage(p.url, p.cfg.Capabilities))
	p.sendResizeHint(ctx, 0)

	for {
		select {
		case <-ctx.Done():
			return
		case <-conn.Done():
			return
		case raw, ok := <-conn.Receive():
			if !ok {
				return
			}
			p.handle(ctx, raw)
		}
	}
}

func (p *Page) handle(ctx context.Context, raw []byte) {
	m, err := domain.ParseMessage(raw)
	if err != nil {
		p.logger.Warn("form page dropping unparseable message", "error", err)
		return
	}
	if m.URL != p.url {
		return
	}

	switch m.Type {
	case domain.MsgSubmit:
		p.submit(ctx, m.RequestID)
	case domain.MsgValidateForm:
		result := p.validate()
		p.send(ctx, domain.NewValidationResultMessage(p.url, m.RequestID, result))
		p.sendResizeHint(ctx, len(result.ErrorMessages))
	case domain.MsgFocusField:
		d, err := domain.DecodeFocusField(m)
		if err != nil {
			p.logger.Warn("form page dropping bad focus request", "error", err)
			return
		}
		p.mu.Lock()
		p.focused = d.Field
		p.mu.Unlock()
		p.logger.Debug("field focused", "field", d.Field)
	case domain.MsgHello:
		// Greeting only; nothing to answer.
	default:
		p.logger.Debug("form page ignoring message", "type", string(m.Type))
	}
}

// submit validates and, when valid, tokenizes the current card data. The
// outcome goes back as a success or error message echoing requestID.
func (p *Page) submit(ctx context.Context, requestID string) {
	// Announce the attempt so host subscribers observe the submit.
	p.send(ctx, domain.NewSubmitMessage(p.url, ""))

	result := p.validate()
	if !result.IsValid {
		msg := result.ErrorMessages[result.FirstErrorField]
		p.send(ctx, domain.NewValidationErrorMessage(p.url, requestID, result.FirstErrorField, msg))
		p.sendResizeHint(ctx, len(result.ErrorMessages))
		return
	}

	p.mu.Lock()
	form := p.form
	p.mu.Unlock()

	method, err := p.cfg.Methods.Create(ctx, domain.CardPaymentMethod{
		ID:         "pm_" + ulid.Make().String(),
		SessionID:  p.sessionID(),
		Method:     domain.MethodCard,
		CardNumber: strings.ReplaceAll(form.CardNumber, " ", ""),
		CardExpiry: form.ExpiryDate,
		CardCVV:    form.CVV,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	})
	if err != nil {
		p.logger.Error("tokenization failed", "session_id", p.sessionID(), "error", err)
		p.send(ctx, domain.NewErrorMessage(p.url, requestID, domain.ErrKindValidation,
			"Failed to process card details: "+err.Error()))
		return
	}

	last4 := method.CardNumber
	if len(last4) > 4 {
		last4 = last4[len(last4)-4:]
	}
	p.logger.Info("card tokenized", "session_id", p.sessionID(), "method_id", method.ID)
	p.send(ctx, domain.NewSuccessMessage(p.url, requestID, method.ID, last4))
}

// ValidateAndSubmit is the direct-submit entry point exposed through the
// frame when the page advertises that capability. The outcome still arrives
// at the host as a regular success or error message.
func (p *Page) ValidateAndSubmit(ctx context.Context) error {
	p.submit(ctx, "")
	return nil
}

// CardNumber exposes the current card number for the card-values capability.
func (p *Page) CardNumber() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.form.CardNumber, p.form.CardNumber != ""
}

// FocusedField reports the field last focused by the host.
func (p *Page) FocusedField() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.focused
}

// SetField records a field edit and schedules a debounced revalidation of
// that field; a newer edit cancels the older task. When the settled value is
// invalid, an unsolicited validation result goes to the host.
func (p *Page) SetField(field, value string) {
	p.mu.Lock()
	switch field {
	case "cardNumber":
		p.form.CardNumber = value
	case "cardholderName":
		p.form.CardholderName = value
	case "expiryDate":
		p.form.ExpiryDate = value
	case "cvv":
		p.form.CVV = value
	default:
		p.mu.Unlock()
		p.logger.Warn("form page ignoring unknown field", "field", field)
		return
	}
	p.mu.Unlock()

	p.debounce.Schedule(field, func() {
		p.mu.Lock()
		form := p.form
		conn := p.conn
		p.mu.Unlock()
		if conn == nil {
			return
		}
		if msg := form.validateField(field, time.Now()); msg != "" {
			p.send(context.Background(), domain.NewValidationResultMessage(p.url, "", domain.ValidationResultData{
				FirstErrorField: field,
				Errors:          map[string]any{field: msg},
				ErrorMessages:   map[string]string{field: msg},
			}))
		}
	})
}

// SetForm replaces all field values at once, without debounced revalidation.
func (p *Page) SetForm(form CardForm) {
	p.mu.Lock()
	p.form = form
	p.mu.Unlock()
}

func (p *Page) validate() domain.ValidationResultData {
	p.mu.Lock()
	form := p.form
	p.mu.Unlock()
	return form.Validate(time.Now())
}

func (p *Page) sendResizeHint(ctx context.Context, errorCount int) {
	height := baseHeight + errorCount*errorRowHeight
	p.send(ctx, domain.NewResizeHintMessage(p.url, height, false))
}

func (p *Page) send(ctx context.Context, m domain.Message) {
	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()
	if conn == nil {
		return
	}
	raw, err := json.Marshal(m)
	if err != nil {
		p.logger.Error("form page marshal failed", "type", string(m.Type), "error", err)
		return
	}
	if err := conn.Send(ctx, raw); err != nil {
		p.logger.Warn("form page send failed", "type", string(m.Type), "error", err)
	}
}

// Factory serves a fresh page per frame connection. It implements the frame
// host's PageHandler.
type Factory struct {
	Sessions      domain.SessionStore
	Methods       domain.MethodStore
	Logger        *slog.Logger
	Capabilities  []domain.Capability
	DebounceDelay time.Duration
}

// ServePage builds a page for the session URL and serves the connection.
func (f *Factory) ServePage(ctx context.Context, sessionURL string, conn frame.Conn) {
	page := New(Config{
		SessionURL:    sessionURL,
		Sessions:      f.Sessions,
		Methods:       f.Methods,
		Logger:        f.Logger,
		Capabilities:  f.Capabilities,
		DebounceDelay: f.DebounceDelay,
	})
	page.Serve(ctx, conn)
}
