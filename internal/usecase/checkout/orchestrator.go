package checkout

import (
	"context"
	"fmt"
	"log/slog"

	"forward-elements/internal/domain"
)

// CardClient is the slice of the card form protocol client the orchestrator
// drives.
type CardClient interface {
	ValidateForm(ctx context.Context) (domain.ValidationResultData, error)
	Submit(ctx context.Context) (domain.SuccessData, error)
	FocusField(ctx context.Context, field string) error
}

// PaymentsAPI creates the payment once a method has been captured.
type PaymentsAPI interface {
	CreatePayment(ctx context.Context, req domain.CreatePaymentRequest) (domain.Payment, error)
}

// ValidationFailure reports which side of the checkout failed validation and
// which field received focus. It unwraps to ErrInvalidInput.
type ValidationFailure struct {
	// Embedded is true when the outer form was valid and the embedded card
	// form was not.
	Embedded        bool
	FirstErrorField string
	ErrorMessages   map[string]string
}

func (e *ValidationFailure) Error() string {
	side := "payor form"
	if e.Embedded {
		side = "card form"
	}
	if e.FirstErrorField == "" {
		return fmt.Sprintf("checkout: %s invalid", side)
	}
	return fmt.Sprintf("checkout: %s invalid, first error field %q", side, e.FirstErrorField)
}

func (e *ValidationFailure) Unwrap() error { return domain.ErrInvalidInput }

// Orchestrator coordinates the outer payor form with the embedded card form:
// both must validate before the method is tokenized and the payment created.
// It holds no per-attempt state, so a failed attempt can simply be retried.
type Orchestrator struct {
	session domain.PaymentSession
	client  CardClient
	api     PaymentsAPI
	logger  *slog.Logger

	// FocusOuterField, when set, moves focus to the named outer form field
	// after a failed validation of the payor form.
	FocusOuterField func(field string)
}

// New creates an orchestrator bound to one payment session.
func New(session domain.PaymentSession, client CardClient, api PaymentsAPI, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{session: session, client: client, api: api, logger: logger}
}

// Checkout runs one submission attempt: validate the outer form and the
// embedded form concurrently, apply the focus policy on failure, then
// tokenize and create the payment. Nothing is committed before the final
// create-payment call, so any error leaves the flow retriable.
//
// Focus policy: an invalid outer form wins and gets focus on its first
// invalid field; only when the outer form is valid does an invalid embedded
// form get focus, forwarded into the frame by field name.
func (o *Orchestrator) Checkout(ctx context.Context, form PayorForm) (domain.Payment, error) {
	const op = "Checkout"

	type embeddedResult struct {
		data domain.ValidationResultData
		err  error
	}
	embeddedCh := make(chan embeddedResult, 1)
	go func() {
		d, err := o.client.ValidateForm(ctx)
		embeddedCh <- embeddedResult{data: d, err: err}
	}()

	outer := form.Validate()
	embedded := <-embeddedCh

	if !outer.IsValid {
		o.logger.Debug("payor form invalid", "first_error_field", outer.FirstErrorField)
		if o.FocusOuterField != nil {
			o.FocusOuterField(outer.FirstErrorField)
		}
		return domain.Payment{}, &ValidationFailure{
			FirstErrorField: outer.FirstErrorField,
			ErrorMessages:   outer.ErrorMessages,
		}
	}

	if embedded.err != nil {
		return domain.Payment{}, domain.WrapOp(op, embedded.err)
	}
	if !embedded.data.IsValid {
		o.logger.Debug("card form invalid", "first_error_field", embedded.data.FirstErrorField)
		if embedded.data.FirstErrorField != "" {
			if err := o.client.FocusField(ctx, embedded.data.FirstErrorField); err != nil {
				o.logger.Warn("focus field failed", "field", embedded.data.FirstErrorField, "error", err)
			}
		}
		return domain.Payment{}, &ValidationFailure{
			Embedded:        true,
			FirstErrorField: embedded.data.FirstErrorField,
			ErrorMessages:   embedded.data.ErrorMessages,
		}
	}

	success, err := o.client.Submit(ctx)
	if err != nil {
		return domain.Payment{}, err
	}
	o.logger.Info("card method captured", "method_id", success.MethodID, "session_id", o.session.ID)

	payor := form.Payor()
	payment, err := o.api.CreatePayment(ctx, domain.CreatePaymentRequest{
		SessionID:   o.session.ID,
		MethodID:    success.MethodID,
		Amount:      o.session.Amount,
		Payor:       &payor,
		ReferenceID: o.session.ReferenceID,
		Metadata:    o.session.Metadata,
	})
	if err != nil {
		return domain.Payment{}, domain.WrapOp(op, err)
	}
	o.logger.Info("payment created", "payment_id", payment.ID, "amount", payment.Amount)
	return payment, nil
}
