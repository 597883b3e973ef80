package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forward-elements/internal/domain"
)

func testStores(t *testing.T) map[string]domain.Stores {
	t.Helper()
	sq, err := NewSQLite(filepath.Join(t.TempDir(), "elements.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sq.Close() })
	return map[string]domain.Stores{
		"memory": NewMemory().Stores(),
		"sqlite": sq.Stores(),
	}
}

func TestSessionStore(t *testing.T) {
	for name, stores := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Now().UTC().Truncate(time.Second)
			rec := domain.PaymentSession{
				ID:        "ps_1",
				Amount:    1000,
				Currency:  "usd",
				Methods:   []domain.PaymentMethodKind{domain.MethodCard},
				Metadata:  map[string]string{"orderId": "o1"},
				CreatedAt: now,
				UpdatedAt: now,
			}

			_, err := stores.Sessions.Create(ctx, rec)
			require.NoError(t, err)

			got, err := stores.Sessions.GetByID(ctx, "ps_1")
			require.NoError(t, err)
			assert.Equal(t, int64(1000), got.Amount)
			assert.Equal(t, []domain.PaymentMethodKind{domain.MethodCard}, got.Methods)
			assert.Equal(t, "o1", got.Metadata["orderId"])

			_, err = stores.Sessions.GetByID(ctx, "ps_missing")
			assert.True(t, errors.Is(err, domain.ErrSessionNotFound))

			got.Amount = 2000
			updated, err := stores.Sessions.Update(ctx, got)
			require.NoError(t, err)
			assert.Equal(t, int64(2000), updated.Amount)

			list, err := stores.Sessions.List(ctx)
			require.NoError(t, err)
			assert.Len(t, list, 1)

			require.NoError(t, stores.Sessions.Delete(ctx, "ps_1"))
			assert.True(t, errors.Is(stores.Sessions.Delete(ctx, "ps_1"), domain.ErrSessionNotFound))
		})
	}
}

func TestMethodStore(t *testing.T) {
	for name, stores := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Now().UTC().Truncate(time.Second)
			rec := domain.CardPaymentMethod{
				ID:         "pm_1",
				SessionID:  "ps_1",
				Method:     domain.MethodCard,
				CardNumber: "4242424242424242",
				CardExpiry: "12/30",
				CardCVV:    "123",
				CreatedAt:  now,
				UpdatedAt:  now,
			}

			_, err := stores.Methods.Create(ctx, rec)
			require.NoError(t, err)

			got, err := stores.Methods.GetByID(ctx, "pm_1")
			require.NoError(t, err)
			assert.Equal(t, "ps_1", got.SessionID)
			assert.Equal(t, domain.MethodCard, got.Method)

			_, err = stores.Methods.GetByID(ctx, "pm_missing")
			assert.True(t, errors.Is(err, domain.ErrMethodNotFound))
		})
	}
}

func TestPaymentStore(t *testing.T) {
	for name, stores := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Now().UTC().Truncate(time.Second)
			rec := domain.Payment{
				ID:             "pay_1",
				Method:         domain.MethodCard,
				MethodID:       "pm_1",
				Amount:         1000,
				Currency:       "usd",
				Status:         domain.PaymentCaptured,
				PayorFirstName: "Ada",
				PayorLastName:  "Lovelace",
				PayorEmail:     "ada@example.com",
				CreatedAt:      now,
				UpdatedAt:      now,
			}

			_, err := stores.Payments.Create(ctx, rec)
			require.NoError(t, err)

			got, err := stores.Payments.GetByID(ctx, "pay_1")
			require.NoError(t, err)
			assert.Equal(t, domain.PaymentCaptured, got.Status)
			assert.Equal(t, "Ada", got.PayorFirstName)
			assert.Equal(t, "ada@example.com", got.PayorEmail)

			_, err = stores.Payments.GetByID(ctx, "pay_missing")
			assert.True(t, errors.Is(err, domain.ErrPaymentNotFound))
		})
	}
}

func TestJanitorSweep(t *testing.T) {
	ctx := context.Background()
	stores := NewMemory().Stores()

	old := domain.PaymentSession{ID: "ps_old", Amount: 100, Currency: "usd", CreatedAt: time.Now().Add(-2 * time.Hour)}
	fresh := domain.PaymentSession{ID: "ps_fresh", Amount: 100, Currency: "usd", CreatedAt: time.Now()}
	_, err := stores.Sessions.Create(ctx, old)
	require.NoError(t, err)
	_, err = stores.Sessions.Create(ctx, fresh)
	require.NoError(t, err)

	j := NewJanitor(stores.Sessions, nil, time.Hour, nil)
	removed := j.Sweep(ctx)
	assert.Equal(t, 1, removed)

	_, err = stores.Sessions.GetByID(ctx, "ps_old")
	assert.True(t, errors.Is(err, domain.ErrSessionNotFound))
	_, err = stores.Sessions.GetByID(ctx, "ps_fresh")
	assert.NoError(t, err)
}
