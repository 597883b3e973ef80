package formpage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var validateNow = time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC)

func validCardForm() CardForm {
	return CardForm{
		CardNumber:     "4242 4242 4242 4242",
		CardholderName: "Ada Lovelace",
		ExpiryDate:     "12/30",
		CVV:            "123",
	}
}

func TestCardFormValid(t *testing.T) {
	r := validCardForm().Validate(validateNow)
	assert.True(t, r.IsValid)
	assert.Empty(t, r.FirstErrorField)
	assert.Empty(t, r.ErrorMessages)
}

func TestCardFormFieldRules(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*CardForm)
		field   string
		message string
	}{
		{"empty number", func(f *CardForm) { f.CardNumber = "" }, "cardNumber", "Card number is required"},
		{"short number", func(f *CardForm) { f.CardNumber = "4242" }, "cardNumber", "Card number must be 16 digits"},
		{"non-digit number", func(f *CardForm) { f.CardNumber = "4242abcd42424242" }, "cardNumber", "Card number must be 16 digits"},
		{"luhn failure", func(f *CardForm) { f.CardNumber = "4242424242424241" }, "cardNumber", "Invalid card number"},
		{"empty name", func(f *CardForm) { f.CardholderName = "  " }, "cardholderName", "Cardholder name is required"},
		{"empty expiry", func(f *CardForm) { f.ExpiryDate = "" }, "expiryDate", "Expiry date is required"},
		{"bad expiry format", func(f *CardForm) { f.ExpiryDate = "13/30" }, "expiryDate", "Expiry date must be in MM/YY format"},
		{"expired card", func(f *CardForm) { f.ExpiryDate = "02/26" }, "expiryDate", "Card is expired"},
		{"empty cvv", func(f *CardForm) { f.CVV = "" }, "cvv", "CVV is required"},
		{"short cvv", func(f *CardForm) { f.CVV = "12" }, "cvv", "CVV must be 3 or 4 digits"},
		{"long cvv", func(f *CardForm) { f.CVV = "12345" }, "cvv", "CVV must be 3 or 4 digits"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			form := validCardForm()
			tc.mutate(&form)
			r := form.Validate(validateNow)
			assert.False(t, r.IsValid)
			assert.Equal(t, tc.field, r.FirstErrorField)
			assert.Equal(t, tc.message, r.ErrorMessages[tc.field])
		})
	}
}

func TestCardFormExpiryCurrentMonthIsValid(t *testing.T) {
	form := validCardForm()
	form.ExpiryDate = "03/26" // same month as validateNow
	r := form.Validate(validateNow)
	assert.True(t, r.IsValid, "card expires at the end of its expiry month")
}

func TestCardFormFirstErrorFollowsLayoutOrder(t *testing.T) {
	r := CardForm{}.Validate(validateNow)
	assert.False(t, r.IsValid)
	assert.Equal(t, "cardNumber", r.FirstErrorField)
	assert.Len(t, r.ErrorMessages, 4)
}

func TestLuhn(t *testing.T) {
	assert.True(t, luhnValid("4242424242424242"))
	assert.True(t, luhnValid("5555555555554444"))
	assert.False(t, luhnValid("4242424242424241"))
}
