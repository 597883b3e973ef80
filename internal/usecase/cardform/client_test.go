package cardform

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forward-elements/internal/domain"
	"forward-elements/internal/usecase/element"
	"forward-elements/internal/usecase/eventbus"
)

const (
	testSessionURL = "https://pay.example.com/payment-session/ps_test_1"
	testOrigin     = "https://pay.example.com"
)

type fakeFrame struct {
	mu      sync.Mutex
	posts   []domain.Message
	onPost  func(m domain.Message)
	inbox   chan element.Inbound
	loaded  chan struct{}
	closed  bool
	postErr error
}

func newFakeFrame() *fakeFrame {
	return &fakeFrame{
		inbox:  make(chan element.Inbound, 16),
		loaded: make(chan struct{}),
	}
}

func (f *fakeFrame) Post(_ context.Context, targetOrigin string, payload []byte) error {
	if f.postErr != nil {
		return f.postErr
	}
	if targetOrigin != testOrigin {
		return errors.New("refusing delivery to foreign origin: " + targetOrigin)
	}
	var m domain.Message
	if err := json.Unmarshal(payload, &m); err != nil {
		return err
	}
	f.mu.Lock()
	f.posts = append(f.posts, m)
	cb := f.onPost
	f.mu.Unlock()
	if cb != nil {
		cb(m)
	}
	return nil
}

func (f *fakeFrame) Messages() <-chan element.Inbound { return f.inbox }
func (f *fakeFrame) Loaded() <-chan struct{}          { return f.loaded }

func (f *fakeFrame) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.inbox)
	}
	return nil
}

func (f *fakeFrame) inject(t *testing.T, origin string, m domain.Message) {
	t.Helper()
	raw, err := json.Marshal(m)
	require.NoError(t, err)
	f.inbox <- element.Inbound{Origin: origin, Data: raw}
}

func (f *fakeFrame) postedTypes() []domain.MessageType {
	f.mu.Lock()
	defer f.mu.Unlock()
	types := make([]domain.MessageType, 0, len(f.posts))
	for _, m := range f.posts {
		types = append(types, m.Type)
	}
	return types
}

type fakeNavigator struct{ frame element.Frame }

func (n *fakeNavigator) Open(context.Context, string) (element.Frame, error) {
	return n.frame, nil
}

// cardValueFrame additionally exposes the current card number.
type cardValueFrame struct {
	*fakeFrame
	number string
}

func (f *cardValueFrame) CardNumber() (string, bool) { return f.number, f.number != "" }

// directFrame additionally accepts a combined validate-and-submit call.
type directFrame struct {
	*fakeFrame
	validateAndSubmit func(ctx context.Context) error
}

func (f *directFrame) ValidateAndSubmit(ctx context.Context) error {
	return f.validateAndSubmit(ctx)
}

func mountClient(t *testing.T, frame element.Frame, mutate func(*Config)) *Client {
	t.Helper()
	cfg := Config{
		SessionURL:      testSessionURL,
		Bus:             eventbus.New(slog.Default()),
		Logger:          slog.Default(),
		SubmitTimeout:   time.Second,
		ValidateTimeout: time.Second,
		MountGrace:      time.Second,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := New(cfg)
	require.NoError(t, err)

	require.NoError(t, c.Mount(context.Background(), &fakeNavigator{frame: frame}))
	t.Cleanup(c.Unmount)
	return c
}

func markLoaded(t *testing.T, c *Client, f *fakeFrame) {
	t.Helper()
	close(f.loaded)
	require.Eventually(t, c.Mounted, time.Second, time.Millisecond)
}

func TestHandleMessageFiltersForeignURL(t *testing.T) {
	frame := newFakeFrame()
	c := mountClient(t, frame, nil)
	markLoaded(t, c, frame)

	var received []domain.Message
	var mu sync.Mutex
	c.Subscribe(func(m domain.Message) {
		mu.Lock()
		received = append(received, m)
		mu.Unlock()
	})

	frame.inject(t, testOrigin, domain.NewHelloMessage("https://pay.example.com/payment-session/other", "hi"))
	frame.inject(t, "https://evil.example.org", domain.NewHelloMessage(testSessionURL, "hi"))
	frame.inject(t, testOrigin, domain.NewHelloMessage(testSessionURL, "hi"))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, domain.MsgHello, received[0].Type)
}

func TestReadyHandshakeRecordsCapabilities(t *testing.T) {
	frame := newFakeFrame()
	readyCalled := make(chan struct{})
	c := mountClient(t, frame, func(cfg *Config) {
		cfg.OnReady = func() { close(readyCalled) }
	})
	markLoaded(t, c, frame)

	frame.inject(t, testOrigin, domain.NewReadyMessage(testSessionURL, []domain.Capability{domain.CapCardValues}))

	select {
	case <-readyCalled:
	case <-time.After(time.Second):
		t.Fatal("ready callback not invoked")
	}
	assert.True(t, c.HasCapability(domain.CapCardValues))
	assert.False(t, c.HasCapability(domain.CapDirectSubmit))
}

func TestSubmitSuccessRoundTrip(t *testing.T) {
	frame := newFakeFrame()
	frame.onPost = func(m domain.Message) {
		if m.Type == domain.MsgSubmit {
			frame.inject(t, testOrigin, domain.NewSuccessMessage(testSessionURL, m.RequestID, "pm_abc", "4242"))
		}
	}

	var gotMethod string
	var mu sync.Mutex
	c := mountClient(t, frame, func(cfg *Config) {
		cfg.OnSuccess = func(methodID string) {
			mu.Lock()
			gotMethod = methodID
			mu.Unlock()
		}
	})
	markLoaded(t, c, frame)

	d, err := c.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "pm_abc", d.MethodID)
	assert.Equal(t, "4242", d.Last4)
	assert.Equal(t, 0, c.PendingRequests())

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return gotMethod == "pm_abc"
	}, time.Second, time.Millisecond)
}

func TestSubmitErrorReply(t *testing.T) {
	frame := newFakeFrame()
	frame.onPost = func(m domain.Message) {
		if m.Type == domain.MsgSubmit {
			frame.inject(t, testOrigin, domain.NewErrorMessage(testSessionURL, m.RequestID, domain.ErrKindValidation, "card number is invalid"))
		}
	}
	c := mountClient(t, frame, nil)
	markLoaded(t, c, frame)

	_, err := c.Submit(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrTokenization))
	assert.Contains(t, err.Error(), "card number is invalid")
	assert.Equal(t, 0, c.PendingRequests())
}

func TestSubmitTimeout(t *testing.T) {
	frame := newFakeFrame() // never replies
	c := mountClient(t, frame, func(cfg *Config) {
		cfg.SubmitTimeout = 20 * time.Millisecond
	})
	markLoaded(t, c, frame)

	_, err := c.Submit(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrTimeout))
	assert.Equal(t, 0, c.PendingRequests())
}

func TestSubmitOverlapRejected(t *testing.T) {
	frame := newFakeFrame()
	c := mountClient(t, frame, nil)
	markLoaded(t, c, frame)

	firstDone := make(chan error, 1)
	go func() {
		_, err := c.Submit(context.Background())
		firstDone <- err
	}()
	require.Eventually(t, func() bool { return c.PendingRequests() == 1 }, time.Second, time.Millisecond)

	_, err := c.Submit(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrRequestPending))

	// Release the first submit.
	require.Eventually(t, func() bool { return len(frame.postedTypes()) > 0 }, time.Second, time.Millisecond)
	frame.mu.Lock()
	req := frame.posts[len(frame.posts)-1]
	frame.mu.Unlock()
	frame.inject(t, testOrigin, domain.NewSuccessMessage(testSessionURL, req.RequestID, "pm_first", "4242"))
	require.NoError(t, <-firstDone)
	assert.Equal(t, 0, c.PendingRequests())
}

func TestSubmitIgnoresUnknownRequestID(t *testing.T) {
	frame := newFakeFrame()
	frame.onPost = func(m domain.Message) {
		if m.Type != domain.MsgSubmit {
			return
		}
		// A stale reply with a foreign id must not settle the round trip;
		// the correctly correlated reply that follows must.
		frame.inject(t, testOrigin, domain.NewSuccessMessage(testSessionURL, "01HSTALEREQUESTID000000000", "pm_stale", "0000"))
		frame.inject(t, testOrigin, domain.NewSuccessMessage(testSessionURL, m.RequestID, "pm_real", "4242"))
	}
	c := mountClient(t, frame, nil)
	markLoaded(t, c, frame)

	d, err := c.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "pm_real", d.MethodID)
}

func TestSubmitTestCardFastPath(t *testing.T) {
	frame := &cardValueFrame{fakeFrame: newFakeFrame(), number: "4242 4242 4242 4242"}
	c := mountClient(t, frame, func(cfg *Config) {
		cfg.TestCards = true
	})
	markLoaded(t, c, frame.fakeFrame)

	frame.inject(t, testOrigin, domain.NewReadyMessage(testSessionURL, []domain.Capability{domain.CapCardValues}))
	require.Eventually(t, func() bool { return c.HasCapability(domain.CapCardValues) }, time.Second, time.Millisecond)

	d, err := c.Submit(context.Background())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(d.MethodID, "test_"), "method id %q", d.MethodID)
	assert.Equal(t, "4242", d.Last4)
	assert.Empty(t, frame.postedTypes(), "fast path must not post into the frame")
}

func TestSubmitTestCardDisabledTakesProtocolPath(t *testing.T) {
	frame := &cardValueFrame{fakeFrame: newFakeFrame(), number: "4242424242424242"}
	frame.onPost = func(m domain.Message) {
		if m.Type == domain.MsgSubmit {
			frame.inject(t, testOrigin, domain.NewSuccessMessage(testSessionURL, m.RequestID, "pm_live", "4242"))
		}
	}
	c := mountClient(t, frame, nil) // TestCards off
	markLoaded(t, c, frame.fakeFrame)

	frame.inject(t, testOrigin, domain.NewReadyMessage(testSessionURL, []domain.Capability{domain.CapCardValues}))
	require.Eventually(t, func() bool { return c.HasCapability(domain.CapCardValues) }, time.Second, time.Millisecond)

	d, err := c.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "pm_live", d.MethodID)
	assert.Contains(t, frame.postedTypes(), domain.MsgSubmit)
}

func TestSubmitDirectPath(t *testing.T) {
	base := newFakeFrame()
	frame := &directFrame{fakeFrame: base}
	frame.validateAndSubmit = func(context.Context) error {
		base.inject(t, testOrigin, domain.NewSuccessMessage(testSessionURL, "", "pm_direct", "4444"))
		return nil
	}
	c := mountClient(t, frame, nil)
	markLoaded(t, c, base)

	base.inject(t, testOrigin, domain.NewReadyMessage(testSessionURL, []domain.Capability{domain.CapDirectSubmit}))
	require.Eventually(t, func() bool { return c.HasCapability(domain.CapDirectSubmit) }, time.Second, time.Millisecond)

	d, err := c.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "pm_direct", d.MethodID)
	assert.NotContains(t, frame.postedTypes(), domain.MsgSubmit)
}

func TestSubmitDirectPathFallsBackOnError(t *testing.T) {
	base := newFakeFrame()
	frame := &directFrame{fakeFrame: base}
	frame.validateAndSubmit = func(context.Context) error { return errors.New("not wired") }
	base.onPost = func(m domain.Message) {
		if m.Type == domain.MsgSubmit {
			base.inject(t, testOrigin, domain.NewSuccessMessage(testSessionURL, m.RequestID, "pm_fallback", "4242"))
		}
	}
	c := mountClient(t, frame, nil)
	markLoaded(t, c, base)

	base.inject(t, testOrigin, domain.NewReadyMessage(testSessionURL, []domain.Capability{domain.CapDirectSubmit}))
	require.Eventually(t, func() bool { return c.HasCapability(domain.CapDirectSubmit) }, time.Second, time.Millisecond)

	d, err := c.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "pm_fallback", d.MethodID)
	assert.Contains(t, frame.postedTypes(), domain.MsgSubmit)
}

func TestValidateFormRoundTrip(t *testing.T) {
	frame := newFakeFrame()
	frame.onPost = func(m domain.Message) {
		if m.Type == domain.MsgValidateForm {
			frame.inject(t, testOrigin, domain.NewValidationResultMessage(testSessionURL, m.RequestID, domain.ValidationResultData{
				IsValid:         false,
				FirstErrorField: "cvv",
				ErrorMessages:   map[string]string{"cvv": "CVV is required"},
			}))
		}
	}
	c := mountClient(t, frame, nil)
	markLoaded(t, c, frame)

	d, err := c.ValidateForm(context.Background())
	require.NoError(t, err)
	assert.False(t, d.IsValid)
	assert.Equal(t, "cvv", d.FirstErrorField)
	assert.Equal(t, 0, c.PendingRequests())
}

func TestValidateFormLegacyReplySettles(t *testing.T) {
	frame := newFakeFrame()
	frame.onPost = func(m domain.Message) {
		if m.Type == domain.MsgValidateForm {
			// Older frames use the legacy tag and echo no request id.
			raw, _ := json.Marshal(domain.ValidationResultData{IsValid: true})
			frame.inject(t, testOrigin, domain.Message{
				Type: domain.MsgValidationResultLegacy,
				URL:  testSessionURL,
				Data: raw,
			})
		}
	}
	c := mountClient(t, frame, nil)
	markLoaded(t, c, frame)

	d, err := c.ValidateForm(context.Background())
	require.NoError(t, err)
	assert.True(t, d.IsValid)
}

func TestValidateFormTimeout(t *testing.T) {
	frame := newFakeFrame()
	c := mountClient(t, frame, func(cfg *Config) {
		cfg.ValidateTimeout = 20 * time.Millisecond
	})
	markLoaded(t, c, frame)

	_, err := c.ValidateForm(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrTimeout))
	assert.Equal(t, 0, c.PendingRequests())
}

func TestUnknownEventEmitsLocalError(t *testing.T) {
	frame := newFakeFrame()
	c := mountClient(t, frame, nil)
	markLoaded(t, c, frame)

	errCh := make(chan domain.Message, 1)
	c.Subscribe(func(m domain.Message) {
		if m.Type == domain.MsgError {
			errCh <- m
		}
	})

	frame.inject(t, testOrigin, domain.Message{Type: "CARD_FORM_BOGUS", URL: testSessionURL})

	select {
	case m := <-errCh:
		d, err := domain.DecodeError(m)
		require.NoError(t, err)
		assert.Equal(t, domain.ErrKindUnknownEvent, d.Error)
		assert.Contains(t, d.Message, "CARD_FORM_BOGUS")
	case <-time.After(time.Second):
		t.Fatal("no local error emitted for unknown event type")
	}
	assert.Empty(t, frame.postedTypes(), "protocol errors are reported locally, never posted back")
}

func TestMalformedPayloadEmitsLocalError(t *testing.T) {
	frame := newFakeFrame()
	c := mountClient(t, frame, nil)
	markLoaded(t, c, frame)

	errCh := make(chan domain.Message, 1)
	c.Subscribe(func(m domain.Message) {
		if m.Type == domain.MsgError {
			errCh <- m
		}
	})

	// A success reply with no payload fails schema validation.
	frame.inject(t, testOrigin, domain.Message{Type: domain.MsgSuccess, URL: testSessionURL})

	select {
	case m := <-errCh:
		d, err := domain.DecodeError(m)
		require.NoError(t, err)
		assert.Equal(t, domain.ErrKindUnknownError, d.Error)
	case <-time.After(time.Second):
		t.Fatal("no local error emitted for malformed payload")
	}
}

func TestSubmitFailsWhenFrameNeverLoads(t *testing.T) {
	frame := newFakeFrame() // loaded never closes
	c := mountClient(t, frame, func(cfg *Config) {
		cfg.MountGrace = 20 * time.Millisecond
	})

	_, err := c.Submit(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrFrameNotReady))
}
