package payment_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stayhub/internal/domain/payment"
	"stayhub/internal/domain/shared/apperr"
	"stayhub/internal/domain/shared/money"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newPayment(t *testing.T) *payment.Payment {
	t.Helper()
	p, err := payment.New(payment.CreateParams{
		ID:        "pay-1",
		BookingID: "b-1",
		Amount:    money.Must(10000, "KES"),
		Method:    payment.MethodMpesa,
		Now:       t0,
	})
	require.NoError(t, err)
	return p
}

func TestParseMethod(t *testing.T) {
	m, err := payment.ParseMethod("mpesa")
	require.NoError(t, err)
	assert.Equal(t, payment.MethodMpesa, m)

	_, err = payment.ParseMethod("bitcoin")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestNewRejectsBadInput(t *testing.T) {
	_, err := payment.New(payment.CreateParams{Amount: money.Must(1, "KES"), Method: "CASH"})
	assert.ErrorIs(t, err, payment.ErrUnsupportedMethod)
	_, err = payment.New(payment.CreateParams{Amount: money.Must(0, "KES"), Method: payment.MethodStripe})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestIsStale(t *testing.T) {
	p := newPayment(t)
	assert.False(t, p.IsStale(t0.Add(4*time.Minute), 5*time.Minute))
	assert.True(t, p.IsStale(t0.Add(5*time.Minute), 5*time.Minute))

	p.MarkFailed("x", t0)
	assert.False(t, p.IsStale(t0.Add(time.Hour), 5*time.Minute))
}

func TestReuseResetsAttempt(t *testing.T) {
	p := newPayment(t)
	require.NoError(t, p.AttachExternalID("ws_CO_1", t0))
	assert.ErrorIs(t, p.Reuse(money.Must(10000, "KES"), payment.MethodPaypal, t0), payment.ErrInvalidState)

	p.MarkFailed("gateway down", t0)
	later := t0.Add(time.Hour)
	require.NoError(t, p.Reuse(money.Must(10000, "KES"), payment.MethodPaypal, later))

	assert.Equal(t, payment.PaymentID("pay-1"), p.ID)
	assert.Equal(t, payment.StatusPending, p.Status)
	assert.Equal(t, payment.MethodPaypal, p.Method)
	assert.Empty(t, p.ExternalID)
	assert.Equal(t, later, p.InitiatedAt)
	assert.Equal(t, t0, p.CreatedAt)
	assert.False(t, p.IsStale(later.Add(time.Minute), 5*time.Minute))
}

func TestAttachExternalIDNeverChanges(t *testing.T) {
	p := newPayment(t)
	require.NoError(t, p.AttachExternalID("ext-1", t0))
	require.NoError(t, p.AttachExternalID("ext-1", t0))
	require.NoError(t, p.AttachExternalID("", t0))
	assert.ErrorIs(t, p.AttachExternalID("ext-2", t0), payment.ErrExternalIDAssigned)
	assert.Equal(t, "ext-1", p.ExternalID)
}

func TestResolveIsIdempotent(t *testing.T) {
	p := newPayment(t)
	require.NoError(t, p.AttachExternalID("ext-1", t0))
	p.Drain()

	done := t0.Add(time.Minute)
	assert.True(t, p.Resolve(true, "RCPT-9", "ok", done))
	assert.Equal(t, payment.StatusSuccess, p.Status)
	assert.Equal(t, "RCPT-9", p.ExternalID)
	assert.Equal(t, done, p.CompletedAt)
	assert.Len(t, p.Drain(), 1)

	assert.False(t, p.Resolve(true, "RCPT-9", "ok", done.Add(time.Minute)))
	assert.False(t, p.Resolve(true, "", "ok", done.Add(time.Minute)))
	assert.Empty(t, p.Drain())
	assert.Equal(t, done, p.CompletedAt)
}

func TestResolveFailureKeepsCompletionEmpty(t *testing.T) {
	p := newPayment(t)
	require.NoError(t, p.AttachExternalID("ext-1", t0))
	assert.True(t, p.Resolve(false, "ext-1", "insufficient funds", t0))
	assert.Equal(t, payment.StatusFailed, p.Status)
	assert.True(t, p.CompletedAt.IsZero())
}
