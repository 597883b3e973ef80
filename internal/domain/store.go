package domain

import "context"

// SessionStore persists payment sessions. Implementations are injected into
// request handlers; there are no process-wide registries.
type SessionStore interface {
	Create(ctx context.Context, s PaymentSession) (PaymentSession, error)
	GetByID(ctx context.Context, id string) (PaymentSession, error)
	Update(ctx context.Context, s PaymentSession) (PaymentSession, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]PaymentSession, error)
}

// MethodStore persists captured card payment methods.
type MethodStore interface {
	Create(ctx context.Context, m CardPaymentMethod) (CardPaymentMethod, error)
	GetByID(ctx context.Context, id string) (CardPaymentMethod, error)
	Update(ctx context.Context, m CardPaymentMethod) (CardPaymentMethod, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]CardPaymentMethod, error)
}

// PaymentStore persists payment records.
type PaymentStore interface {
	Create(ctx context.Context, p Payment) (Payment, error)
	GetByID(ctx context.Context, id string) (Payment, error)
	Update(ctx context.Context, p Payment) (Payment, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]Payment, error)
}

// Stores bundles the three record stores for handler wiring.
type Stores struct {
	Sessions SessionStore
	Methods  MethodStore
	Payments PaymentStore
}
