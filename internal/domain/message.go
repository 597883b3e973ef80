package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
)

// MessageType identifies the kind of message exchanged across the frame boundary.
type MessageType string

// Closed reply vocabulary. Every inbound message must carry one of these tags;
// anything else is reported locally as an unknown-event error.
const (
	MsgReady            MessageType = "CARD_FORM_READY"
	MsgSuccess          MessageType = "CARD_FORM_SUCCESS"
	MsgError            MessageType = "CARD_FORM_ERROR"
	MsgSubmit           MessageType = "CARD_FORM_SUBMIT"
	MsgHello            MessageType = "CARD_FORM_HELLO"
	MsgValidationResult MessageType = "VALIDATION_RESULT"
)

// Host-to-frame request types. These are sent by the protocol client but never
// expected back, so they sit outside the closed reply vocabulary.
const (
	MsgValidateForm MessageType = "VALIDATE_FORM"
	MsgFocusField   MessageType = "FOCUS_FIELD"
)

// MsgValidationResultLegacy is the tag older frames used for validation
// results. Accepted on receive for backward compatibility, never sent.
const MsgValidationResultLegacy MessageType = "CARD_FORM_VALIDATION_RESULT"

// ErrorKind is the closed set of protocol-level error categories carried by
// an error message payload.
type ErrorKind string

const (
	ErrKindUnknownEvent ErrorKind = "Unknown event type"
	ErrKindUnknownError ErrorKind = "Unknown error"
	ErrKindValidation   ErrorKind = "Validation error"
)

// Capability names a frame feature negotiated during the ready handshake.
// The host only exercises a fast path when the frame advertised it.
type Capability string

const (
	// CapDirectSubmit marks frames that accept a combined validate-and-submit
	// call without the canonical submit round trip.
	CapDirectSubmit Capability = "direct-submit"
	// CapCardValues marks frames that expose the current card number to the
	// host, enabling the test-card fast path.
	CapCardValues Capability = "card-values"
)

// Message is the envelope posted across the frame boundary. URL scopes the
// conversation to one session; RequestID correlates a reply to the request
// that triggered it and is empty on unsolicited messages.
type Message struct {
	Type      MessageType     `json:"type"`
	URL       string          `json:"url"`
	RequestID string          `json:"requestId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// ReadyData is the optional payload of a ready message.
type ReadyData struct {
	Capabilities []Capability `json:"capabilities,omitempty"`
}

// SuccessData carries the tokenization handle produced by the frame.
type SuccessData struct {
	MethodID string `json:"methodId"`
	Last4    string `json:"last4,omitempty"`
}

// ErrorData carries a protocol-level error.
type ErrorData struct {
	Error   ErrorKind `json:"error"`
	Message string    `json:"message,omitempty"`
	Field   string    `json:"field,omitempty"`
}

// HelloData is a greeting or, when Message equals "resize", a resize hint.
type HelloData struct {
	Message  string `json:"message"`
	Height   int    `json:"height,omitempty"`
	IsMobile bool   `json:"isMobile,omitempty"`
}

// IsResizeHint reports whether this hello payload is a frame resize hint.
func (h HelloData) IsResizeHint() bool { return h.Message == "resize" }

// ValidationResultData reports the embedded form's validity.
type ValidationResultData struct {
	IsValid         bool              `json:"isValid"`
	FirstErrorField string            `json:"firstErrorField,omitempty"`
	Errors          map[string]any    `json:"errors,omitempty"`
	ErrorMessages   map[string]string `json:"errorMessages,omitempty"`
}

// FocusFieldData names the embedded field that should receive focus.
type FocusFieldData struct {
	Field string `json:"field"`
}

// KnownReplyType reports whether t belongs to the closed reply vocabulary.
func KnownReplyType(t MessageType) bool {
	switch t {
	case MsgReady, MsgSuccess, MsgError, MsgSubmit, MsgHello,
		MsgValidationResult, MsgValidationResultLegacy:
		return true
	}
	return false
}

// Origin derives the scheme+host+port trust boundary from a session URL.
func Origin(sessionURL string) (string, error) {
	u, err := url.Parse(sessionURL)
	if err != nil {
		return "", fmt.Errorf("parse session url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("session url %q: missing scheme or host", sessionURL)
	}
	return u.Scheme + "://" + u.Host, nil
}

// ParseMessage strictly decodes an envelope. The type and url fields are
// required; payload shapes are checked separately per type.
func ParseMessage(raw []byte) (Message, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	var m Message
	if err := dec.Decode(&m); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	if m.Type == "" {
		return Message{}, fmt.Errorf("message missing type")
	}
	if m.URL == "" {
		return Message{}, fmt.Errorf("message missing url")
	}
	return m, nil
}

// DecodeReady decodes the optional ready payload.
func DecodeReady(m Message) (ReadyData, error) {
	var d ReadyData
	if len(m.Data) == 0 {
		return d, nil
	}
	if err := json.Unmarshal(m.Data, &d); err != nil {
		return ReadyData{}, fmt.Errorf("decode ready payload: %w", err)
	}
	return d, nil
}

// DecodeSuccess decodes a success payload. The method id is required.
func DecodeSuccess(m Message) (SuccessData, error) {
	var d SuccessData
	if err := json.Unmarshal(m.Data, &d); err != nil {
		return SuccessData{}, fmt.Errorf("decode success payload: %w", err)
	}
	if d.MethodID == "" {
		return SuccessData{}, fmt.Errorf("success payload missing methodId")
	}
	return d, nil
}

// DecodeError decodes an error payload. The error kind must be one of the
// closed set.
func DecodeError(m Message) (ErrorData, error) {
	var d ErrorData
	if err := json.Unmarshal(m.Data, &d); err != nil {
		return ErrorData{}, fmt.Errorf("decode error payload: %w", err)
	}
	switch d.Error {
	case ErrKindUnknownEvent, ErrKindUnknownError, ErrKindValidation:
		return d, nil
	}
	return ErrorData{}, fmt.Errorf("error payload has unknown kind %q", d.Error)
}

// DecodeHello decodes a hello payload. The message field is required.
func DecodeHello(m Message) (HelloData, error) {
	var d HelloData
	if err := json.Unmarshal(m.Data, &d); err != nil {
		return HelloData{}, fmt.Errorf("decode hello payload: %w", err)
	}
	if d.Message == "" {
		return HelloData{}, fmt.Errorf("hello payload missing message")
	}
	return d, nil
}

// DecodeFocusField decodes a focus-field payload.
func DecodeFocusField(m Message) (FocusFieldData, error) {
	var d FocusFieldData
	if err := json.Unmarshal(m.Data, &d); err != nil {
		return FocusFieldData{}, fmt.Errorf("decode focus payload: %w", err)
	}
	if d.Field == "" {
		return FocusFieldData{}, fmt.Errorf("focus payload missing field")
	}
	return d, nil
}

// validationResultProbe mirrors ValidationResultData with a pointer
// discriminant so a missing isValid can be told apart from false.
type validationResultProbe struct {
	IsValid *bool `json:"isValid"`
}

// DecodeValidationResult decodes a validation-result payload. Strict decode
// first; when that fails, a best-effort variant is built as long as the
// required isValid discriminant is present. A payload without isValid is
// never accepted.
func DecodeValidationResult(m Message) (ValidationResultData, error) {
	var d ValidationResultData
	strictErr := json.Unmarshal(m.Data, &d)
	if strictErr == nil {
		var probe validationResultProbe
		if err := json.Unmarshal(m.Data, &probe); err != nil || probe.IsValid == nil {
			return ValidationResultData{}, fmt.Errorf("validation result missing isValid")
		}
		return d, nil
	}

	// Loose reconstruction: pull out whatever decodes, keyed on isValid.
	var loose map[string]json.RawMessage
	if err := json.Unmarshal(m.Data, &loose); err != nil {
		return ValidationResultData{}, fmt.Errorf("decode validation result: %w", strictErr)
	}
	rawValid, ok := loose["isValid"]
	if !ok {
		return ValidationResultData{}, fmt.Errorf("validation result missing isValid")
	}
	var isValid bool
	if err := json.Unmarshal(rawValid, &isValid); err != nil {
		return ValidationResultData{}, fmt.Errorf("validation result isValid: %w", err)
	}
	out := ValidationResultData{IsValid: isValid}
	if raw, ok := loose["firstErrorField"]; ok {
		_ = json.Unmarshal(raw, &out.FirstErrorField)
	}
	if raw, ok := loose["errors"]; ok {
		_ = json.Unmarshal(raw, &out.Errors)
	}
	if raw, ok := loose["errorMessages"]; ok {
		_ = json.Unmarshal(raw, &out.ErrorMessages)
	}
	return out, nil
}

func mustMarshal(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("marshal message payload: %v", err))
	}
	return raw
}

// NewReadyMessage announces that the frame finished loading, advertising the
// capabilities it supports.
func NewReadyMessage(url string, caps []Capability) Message {
	m := Message{Type: MsgReady, URL: url}
	if len(caps) > 0 {
		m.Data = mustMarshal(ReadyData{Capabilities: caps})
	}
	return m
}

// NewSuccessMessage carries a tokenization handle back to the host.
func NewSuccessMessage(url, requestID, methodID, last4 string) Message {
	return Message{
		Type:      MsgSuccess,
		URL:       url,
		RequestID: requestID,
		Data:      mustMarshal(SuccessData{MethodID: methodID, Last4: last4}),
	}
}

// NewErrorMessage carries a protocol-level error.
func NewErrorMessage(url, requestID string, kind ErrorKind, detail string) Message {
	return Message{
		Type:      MsgError,
		URL:       url,
		RequestID: requestID,
		Data:      mustMarshal(ErrorData{Error: kind, Message: detail}),
	}
}

// NewValidationErrorMessage reports a field-level failure during tokenization.
func NewValidationErrorMessage(url, requestID, field, detail string) Message {
	return Message{
		Type:      MsgError,
		URL:       url,
		RequestID: requestID,
		Data:      mustMarshal(ErrorData{Error: ErrKindValidation, Message: detail, Field: field}),
	}
}

// NewSubmitMessage asks the frame to tokenize its current form values.
func NewSubmitMessage(url, requestID string) Message {
	return Message{Type: MsgSubmit, URL: url, RequestID: requestID}
}

// NewHelloMessage carries a greeting into the frame.
func NewHelloMessage(url, greeting string) Message {
	return Message{Type: MsgHello, URL: url, Data: mustMarshal(HelloData{Message: greeting})}
}

// NewResizeHintMessage carries the frame's content height to the host.
func NewResizeHintMessage(url string, height int, isMobile bool) Message {
	return Message{
		Type: MsgHello,
		URL:  url,
		Data: mustMarshal(HelloData{Message: "resize", Height: height, IsMobile: isMobile}),
	}
}

// NewValidateFormMessage asks the frame to validate its current form values.
func NewValidateFormMessage(url, requestID string) Message {
	return Message{Type: MsgValidateForm, URL: url, RequestID: requestID}
}

// NewValidationResultMessage reports the frame's validity back to the host.
func NewValidationResultMessage(url, requestID string, data ValidationResultData) Message {
	return Message{
		Type:      MsgValidationResult,
		URL:       url,
		RequestID: requestID,
		Data:      mustMarshal(data),
	}
}

// NewFocusFieldMessage asks the frame to focus the named field.
func NewFocusFieldMessage(url, field string) Message {
	return Message{Type: MsgFocusField, URL: url, Data: mustMarshal(FocusFieldData{Field: field})}
}
