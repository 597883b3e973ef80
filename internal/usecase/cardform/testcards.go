package cardform

import (
	"strings"

	"github.com/oklog/ulid/v2"
)

// testCardNumbers are the well-known network test PANs that short-circuit
// tokenization so integration tests stay deterministic and offline.
var testCardNumbers = map[string]struct{}{
	"4242424242424242": {}, // Visa
	"4000056655665556": {}, // Visa (debit)
	"5555555555554444": {}, // Mastercard
	"2223003122003222": {}, // Mastercard (2-series)
	"5200828282828210": {}, // Mastercard (debit)
	"378282246310005":  {}, // American Express
	"6011111111111117": {}, // Discover
}

// IsTestCard reports whether the card number, ignoring spaces, is one of the
// well-known test numbers.
func IsTestCard(number string) bool {
	_, ok := testCardNumbers[strings.ReplaceAll(number, " ", "")]
	return ok
}

func testMethodID() string {
	return "test_" + ulid.Make().String()
}

func last4(number string) string {
	number = strings.ReplaceAll(number, " ", "")
	if len(number) < 4 {
		return number
	}
	return number[len(number)-4:]
}
