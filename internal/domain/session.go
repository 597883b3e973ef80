package domain

import (
	"math"
	"time"
)

// PaymentMethodKind enumerates the capture methods a session may allow.
type PaymentMethodKind string

const (
	MethodCard      PaymentMethodKind = "card"
	MethodApplePay  PaymentMethodKind = "apple-pay"
	MethodGooglePay PaymentMethodKind = "google-pay"
	MethodACHDebit  PaymentMethodKind = "ach-debit"
)

// PaymentStatus enumerates payment record states.
type PaymentStatus string

const (
	PaymentCaptured PaymentStatus = "captured"
	PaymentPending  PaymentStatus = "pending"
	PaymentFailed   PaymentStatus = "failed"
)

// PaymentSession is the server-side record an embedded form is scoped to.
// Amount is in integer cents. Read-only after creation from the protocol's
// point of view.
type PaymentSession struct {
	ID          string              `json:"id"`
	Amount      int64               `json:"amount"`
	Currency    string              `json:"currency"`
	Methods     []PaymentMethodKind `json:"methods,omitempty"`
	ReferenceID string              `json:"reference_id,omitempty"`
	Metadata    map[string]string   `json:"metadata,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// SessionURL builds the URL that scopes an embedded form to this session.
func SessionURL(baseURL, sessionID string) string {
	return baseURL + "/payment-session/" + sessionID
}

// CardPaymentMethod is captured card data held server-side, referenced by an
// opaque method id. The method id is the only thing that crosses back to the
// host page.
type CardPaymentMethod struct {
	ID         string            `json:"id"`
	SessionID  string            `json:"session_id"`
	Method     PaymentMethodKind `json:"method"`
	CardNumber string            `json:"card_number"`
	CardExpiry string            `json:"card_expiry"`
	CardCVV    string            `json:"card_cvv"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// Payment is the final record created once a tokenized method is charged
// against its session.
type Payment struct {
	ID                      string            `json:"id"`
	Method                  PaymentMethodKind `json:"method"`
	MethodID                string            `json:"method_id"`
	Amount                  int64             `json:"amount"`
	Currency                string            `json:"currency"`
	Status                  PaymentStatus     `json:"status"`
	PayorFirstName          string            `json:"payor_first_name,omitempty"`
	PayorLastName           string            `json:"payor_last_name,omitempty"`
	PayorEmail              string            `json:"payor_email,omitempty"`
	PayorPhone              string            `json:"payor_phone,omitempty"`
	PayorAddressLine1       string            `json:"payor_address_line1,omitempty"`
	PayorAddressLine2       string            `json:"payor_address_line2,omitempty"`
	PayorAddressCity        string            `json:"payor_address_city,omitempty"`
	PayorAddressState       string            `json:"payor_address_state,omitempty"`
	PayorAddressPostalCode  string            `json:"payor_address_postal_code,omitempty"`
	PayorAddressCountry     string            `json:"payor_address_country,omitempty"`
	ReferenceID             string            `json:"reference_id,omitempty"`
	Metadata                map[string]string `json:"metadata,omitempty"`
	CreatedAt               time.Time         `json:"created_at"`
	UpdatedAt               time.Time         `json:"updated_at"`
}

// PayorAddress is a payor's billing address as submitted by the host page.
type PayorAddress struct {
	Line1      string `json:"line1,omitempty"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
	Country    string `json:"country,omitempty"`
}

// Payor identifies who is paying.
type Payor struct {
	FirstName string       `json:"firstName,omitempty"`
	LastName  string       `json:"lastName,omitempty"`
	Email     string       `json:"email,omitempty" validate:"omitempty,email"`
	Phone     string       `json:"phone,omitempty"`
	Address   PayorAddress `json:"address,omitempty"`
}

// CreatePaymentSessionRequest is the body of POST /elements/payment-session.
// Amount accepts either integer cents or a decimal dollar value; decimals are
// converted to cents before validation of the session amount.
type CreatePaymentSessionRequest struct {
	Amount      float64             `json:"amount" validate:"required,gt=0"`
	Currency    string              `json:"currency" validate:"required,oneof=usd"`
	Methods     []PaymentMethodKind `json:"methods,omitempty" validate:"omitempty,dive,oneof=card apple-pay google-pay ach-debit"`
	Payor       *Payor              `json:"payor,omitempty"`
	ReferenceID string              `json:"referenceId,omitempty"`
	Metadata    map[string]string   `json:"metadata,omitempty"`
}

// AmountCents normalizes the requested amount to integer cents.
func (r CreatePaymentSessionRequest) AmountCents() int64 {
	if r.Amount == math.Trunc(r.Amount) {
		return int64(r.Amount)
	}
	return int64(math.Round(r.Amount * 100))
}

// CreatePaymentSessionResponse is the 201 body: the session plus the URL the
// embedded form is mounted from.
type CreatePaymentSessionResponse struct {
	PaymentSession
	URL string `json:"url"`
}

// CreatePaymentRequest is the body of POST /elements/payment.
type CreatePaymentRequest struct {
	SessionID   string            `json:"session_id" validate:"required"`
	MethodID    string            `json:"method_id" validate:"required"`
	Amount      int64             `json:"amount" validate:"required,gt=0"`
	Payor       *Payor            `json:"payor,omitempty"`
	ReferenceID string            `json:"reference_id,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}
