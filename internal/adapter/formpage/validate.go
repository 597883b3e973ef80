package formpage

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"forward-elements/internal/domain"
)

// CardForm holds the embedded form's current field values.
type CardForm struct {
	CardNumber     string
	CardholderName string
	ExpiryDate     string
	CVV            string
}

// cardFieldOrder fixes which invalid field is reported first, matching the
// top-to-bottom layout of the embedded form.
var cardFieldOrder = []string{"cardNumber", "cardholderName", "expiryDate", "cvv"}

var (
	expiryPattern = regexp.MustCompile(`^(0[1-9]|1[0-2])/\d{2}$`)
	cvvPattern    = regexp.MustCompile(`^\d{3,4}$`)
	digitsPattern = regexp.MustCompile(`^\d{16}$`)
)

// Validate checks every field and reports the result in the protocol's
// validation-result shape.
func (f CardForm) Validate(now time.Time) domain.ValidationResultData {
	messages := make(map[string]string)
	for _, field := range cardFieldOrder {
		if msg := f.validateField(field, now); msg != "" {
			messages[field] = msg
		}
	}
	if len(messages) == 0 {
		return domain.ValidationResultData{IsValid: true}
	}

	first := ""
	for _, field := range cardFieldOrder {
		if _, bad := messages[field]; bad {
			first = field
			break
		}
	}
	errs := make(map[string]any, len(messages))
	for field, msg := range messages {
		errs[field] = msg
	}
	return domain.ValidationResultData{
		FirstErrorField: first,
		Errors:          errs,
		ErrorMessages:   messages,
	}
}

// validateField checks one field by name and returns an error message, or ""
// when the value is valid. Unknown field names are valid by definition.
func (f CardForm) validateField(field string, now time.Time) string {
	switch field {
	case "cardNumber":
		return validateCardNumber(f.CardNumber)
	case "cardholderName":
		if strings.TrimSpace(f.CardholderName) == "" {
			return "Cardholder name is required"
		}
	case "expiryDate":
		return validateExpiry(f.ExpiryDate, now)
	case "cvv":
		if f.CVV == "" {
			return "CVV is required"
		}
		if !cvvPattern.MatchString(f.CVV) {
			return "CVV must be 3 or 4 digits"
		}
	}
	return ""
}

func validateCardNumber(number string) string {
	if number == "" {
		return "Card number is required"
	}
	normalized := strings.ReplaceAll(number, " ", "")
	if !digitsPattern.MatchString(normalized) {
		return "Card number must be 16 digits"
	}
	if !luhnValid(normalized) {
		return "Invalid card number"
	}
	return ""
}

// luhnValid runs the Luhn checksum over a string of digits.
func luhnValid(digits string) bool {
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

func validateExpiry(value string, now time.Time) string {
	if value == "" {
		return "Expiry date is required"
	}
	if !expiryPattern.MatchString(value) {
		return "Expiry date must be in MM/YY format"
	}
	var month, year int
	fmt.Sscanf(value, "%02d/%02d", &month, &year)
	year += 2000

	// The card expires at the end of its expiry month.
	if year < now.Year() || (year == now.Year() && month < int(now.Month())) {
		return "Card is expired"
	}
	return ""
}
