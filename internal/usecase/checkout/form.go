package checkout

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"forward-elements/internal/domain"
)

// PayorForm is the outer checkout form owned by the host page. The embedded
// frame captures card data; everything else about the payor is entered here.
type PayorForm struct {
	FirstName  string `json:"firstName" validate:"required"`
	LastName   string `json:"lastName" validate:"required"`
	Email      string `json:"email" validate:"required,email"`
	Phone      string `json:"phone" validate:"omitempty,e164"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode" validate:"omitempty,postcode_iso3166_alpha2=US"`
	Country    string `json:"country" validate:"omitempty,iso3166_1_alpha2"`
}

// fieldOrder fixes which invalid field is reported first, matching the
// top-to-bottom layout of the form.
var fieldOrder = []string{
	"firstName", "lastName", "email", "phone",
	"line1", "line2", "city", "state", "postalCode", "country",
}

var formFieldNames = map[string]string{
	"FirstName":  "firstName",
	"LastName":   "lastName",
	"Email":      "email",
	"Phone":      "phone",
	"Line1":      "line1",
	"Line2":      "line2",
	"City":       "city",
	"State":      "state",
	"PostalCode": "postalCode",
	"Country":    "country",
}

var formValidate = validator.New(validator.WithRequiredStructEnabled())

// FormResult mirrors the embedded form's validation-result shape so the
// orchestrator can treat both sides uniformly.
type FormResult struct {
	IsValid         bool
	FirstErrorField string
	ErrorMessages   map[string]string
}

// Validate checks the form and reports the first invalid field in layout
// order together with a per-field message map.
func (f PayorForm) Validate() FormResult {
	err := formValidate.Struct(f)
	if err == nil {
		return FormResult{IsValid: true}
	}

	messages := make(map[string]string)
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return FormResult{ErrorMessages: map[string]string{"form": err.Error()}, FirstErrorField: "form"}
	}
	for _, fe := range verrs {
		name := formFieldNames[fe.StructField()]
		if name == "" {
			name = fe.StructField()
		}
		messages[name] = fieldMessage(name, fe.Tag())
	}

	first := ""
	for _, name := range fieldOrder {
		if _, bad := messages[name]; bad {
			first = name
			break
		}
	}
	return FormResult{FirstErrorField: first, ErrorMessages: messages}
}

func fieldMessage(field, tag string) string {
	switch tag {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "email":
		return "email must be a valid email address"
	case "e164":
		return "phone must be a valid phone number"
	case "postcode_iso3166_alpha2":
		return "postalCode must be a valid postal code"
	case "iso3166_1_alpha2":
		return "country must be a two-letter country code"
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

// Payor converts the form into the payor payload sent with create-payment.
func (f PayorForm) Payor() domain.Payor {
	return domain.Payor{
		FirstName: f.FirstName,
		LastName:  f.LastName,
		Email:     f.Email,
		Phone:     f.Phone,
		Address: domain.PayorAddress{
			Line1:      f.Line1,
			Line2:      f.Line2,
			City:       f.City,
			State:      f.State,
			PostalCode: f.PostalCode,
			Country:    f.Country,
		},
	}
}
