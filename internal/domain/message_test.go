package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrigin(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		want    string
		wantErr bool
	}{
		{"with port", "http://localhost:3000/payment-session/abc", "http://localhost:3000", false},
		{"without port", "https://elements.example.com/payment-session/abc", "https://elements.example.com", false},
		{"no scheme", "elements.example.com/payment-session/abc", "", true},
		{"empty", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Origin(tt.url)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseMessage(t *testing.T) {
	m, err := ParseMessage([]byte(`{"type":"CARD_FORM_READY","url":"http://localhost:3000/payment-session/1"}`))
	require.NoError(t, err)
	assert.Equal(t, MsgReady, m.Type)
	assert.Equal(t, "http://localhost:3000/payment-session/1", m.URL)

	_, err = ParseMessage([]byte(`{"url":"http://localhost:3000/payment-session/1"}`))
	require.Error(t, err, "missing type must not parse")

	_, err = ParseMessage([]byte(`{"type":"CARD_FORM_READY"}`))
	require.Error(t, err, "missing url must not parse")

	_, err = ParseMessage([]byte(`not json`))
	require.Error(t, err)
}

func TestDecodeSuccess(t *testing.T) {
	m := NewSuccessMessage("http://h/payment-session/1", "req1", "pm_123", "4242")
	d, err := DecodeSuccess(m)
	require.NoError(t, err)
	assert.Equal(t, "pm_123", d.MethodID)
	assert.Equal(t, "4242", d.Last4)

	_, err = DecodeSuccess(Message{Type: MsgSuccess, URL: "u", Data: json.RawMessage(`{}`)})
	require.Error(t, err, "methodId is required")
}

func TestDecodeError(t *testing.T) {
	m := NewErrorMessage("http://h/payment-session/1", "", ErrKindValidation, "bad card")
	d, err := DecodeError(m)
	require.NoError(t, err)
	assert.Equal(t, ErrKindValidation, d.Error)
	assert.Equal(t, "bad card", d.Message)

	_, err = DecodeError(Message{Type: MsgError, Data: json.RawMessage(`{"error":"Something else"}`)})
	require.Error(t, err, "error kind outside the closed set must not decode")
}

func TestDecodeHelloResizeHint(t *testing.T) {
	m := NewResizeHintMessage("http://h/payment-session/1", 800, true)
	d, err := DecodeHello(m)
	require.NoError(t, err)
	assert.True(t, d.IsResizeHint())
	assert.Equal(t, 800, d.Height)
	assert.True(t, d.IsMobile)

	greeting, err := DecodeHello(NewHelloMessage("http://h/payment-session/1", "Hello from parent window"))
	require.NoError(t, err)
	assert.False(t, greeting.IsResizeHint())
}

func TestDecodeReadyCapabilities(t *testing.T) {
	m := NewReadyMessage("http://h/payment-session/1", []Capability{CapCardValues, CapDirectSubmit})
	d, err := DecodeReady(m)
	require.NoError(t, err)
	assert.Equal(t, []Capability{CapCardValues, CapDirectSubmit}, d.Capabilities)

	// No payload at all is a valid ready announcement.
	d, err = DecodeReady(Message{Type: MsgReady, URL: "u"})
	require.NoError(t, err)
	assert.Empty(t, d.Capabilities)
}

func TestDecodeValidationResultStrict(t *testing.T) {
	m := NewValidationResultMessage("http://h/payment-session/1", "req2", ValidationResultData{
		IsValid:         false,
		FirstErrorField: "cardNumber",
		ErrorMessages:   map[string]string{"cardNumber": "Invalid card number"},
	})
	d, err := DecodeValidationResult(m)
	require.NoError(t, err)
	assert.False(t, d.IsValid)
	assert.Equal(t, "cardNumber", d.FirstErrorField)
	assert.Equal(t, "Invalid card number", d.ErrorMessages["cardNumber"])
}

func TestDecodeValidationResultLoose(t *testing.T) {
	// errorMessages has the wrong shape; the decode must still succeed
	// because the isValid discriminant is present.
	m := Message{
		Type: MsgValidationResult,
		URL:  "u",
		Data: json.RawMessage(`{"isValid":false,"firstErrorField":"cvv","errorMessages":["not","a","map"]}`),
	}
	d, err := DecodeValidationResult(m)
	require.NoError(t, err)
	assert.False(t, d.IsValid)
	assert.Equal(t, "cvv", d.FirstErrorField)
	assert.Empty(t, d.ErrorMessages)
}

func TestDecodeValidationResultMissingDiscriminant(t *testing.T) {
	m := Message{
		Type: MsgValidationResult,
		URL:  "u",
		Data: json.RawMessage(`{"firstErrorField":"cvv"}`),
	}
	_, err := DecodeValidationResult(m)
	require.Error(t, err, "payload without isValid must never be accepted")
}

func TestKnownReplyType(t *testing.T) {
	assert.True(t, KnownReplyType(MsgReady))
	assert.True(t, KnownReplyType(MsgValidationResult))
	assert.True(t, KnownReplyType(MsgValidationResultLegacy))
	assert.False(t, KnownReplyType(MsgValidateForm), "send-only types are not replies")
	assert.False(t, KnownReplyType(MessageType("BOGUS")))
}
