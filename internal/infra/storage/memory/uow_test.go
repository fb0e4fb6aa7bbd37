package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appoutbox "stayhub/internal/app/outbox"
	"stayhub/internal/app/uow"
	"stayhub/internal/domain/booking"
	"stayhub/internal/domain/payment"
	"stayhub/internal/domain/shared/apperr"
	"stayhub/internal/domain/shared/daterange"
	"stayhub/internal/domain/shared/money"
	"stayhub/internal/infra/storage/memory"
)

var t0 = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func begin(t *testing.T, f memory.Factory) uow.UnitOfWork {
	t.Helper()
	unit, err := f.Begin(context.Background(), uow.TxOptions{})
	require.NoError(t, err)
	return unit
}

func seedBooking(t *testing.T, f memory.Factory, id booking.BookingID) {
	t.Helper()
	dr, err := daterange.Parse("2024-06-01", "2024-06-03")
	require.NoError(t, err)
	b, err := booking.NewBooking(booking.CreateParams{ID: id, PropertyID: "p-1", GuestID: "g-1", HostID: "h-1", Range: dr, Total: money.Must(5000, "KES"), CreatedAt: t0})
	require.NoError(t, err)
	unit := begin(t, f)
	require.NoError(t, unit.Bookings().Insert(context.Background(), b))
	require.NoError(t, unit.Commit(context.Background()))
}

func newPayment(t *testing.T, id payment.PaymentID, at time.Time) *payment.Payment {
	t.Helper()
	p, err := payment.New(payment.CreateParams{ID: id, BookingID: "b-1", Amount: money.Must(5000, "KES"), Method: payment.MethodSandbox, Now: at})
	require.NoError(t, err)
	return p
}

func TestRollbackDiscardsStagedWrites(t *testing.T) {
	ctx := context.Background()
	f := memory.Factory{Store: memory.NewStore()}
	seedBooking(t, f, "b-1")

	unit := begin(t, f)
	b, err := unit.Bookings().ByID(ctx, "b-1")
	require.NoError(t, err)
	require.NoError(t, b.Cancel("g-1", t0))
	require.NoError(t, unit.Bookings().Save(ctx, b))

	staged, err := unit.Bookings().ByID(ctx, "b-1")
	require.NoError(t, err)
	assert.Equal(t, booking.StateCanceled, staged.State)
	require.NoError(t, unit.Rollback(ctx))

	reader := begin(t, f)
	stored, err := reader.Bookings().ByID(ctx, "b-1")
	require.NoError(t, err)
	assert.Equal(t, booking.StatePending, stored.State)
	assert.Empty(t, stored.Pending())
}

func TestConcurrentBookingUpdateIsRejected(t *testing.T) {
	ctx := context.Background()
	f := memory.Factory{Store: memory.NewStore()}
	seedBooking(t, f, "b-1")

	first, second := begin(t, f), begin(t, f)
	b1, err := first.Bookings().ByID(ctx, "b-1")
	require.NoError(t, err)
	b2, err := second.Bookings().ByID(ctx, "b-1")
	require.NoError(t, err)

	require.NoError(t, b1.Cancel("g-1", t0))
	require.NoError(t, first.Bookings().Save(ctx, b1))
	require.NoError(t, b2.Confirm("h-1", t0))
	require.NoError(t, second.Bookings().Save(ctx, b2))

	require.NoError(t, first.Commit(ctx))
	err = second.Commit(ctx)
	assert.ErrorIs(t, err, booking.ErrConcurrentUpdate)
	assert.ErrorIs(t, err, apperr.ErrPersistenceRace)
}

func TestSinglePendingPaymentPerBooking(t *testing.T) {
	ctx := context.Background()
	f := memory.Factory{Store: memory.NewStore()}

	unit := begin(t, f)
	require.NoError(t, unit.Payments().Insert(ctx, newPayment(t, "pay-1", t0)))
	assert.ErrorIs(t, unit.Payments().Insert(ctx, newPayment(t, "pay-2", t0)), payment.ErrDuplicate)
	require.NoError(t, unit.Commit(ctx))

	// Two units racing: the check at commit catches the loser.
	a, b := begin(t, f), begin(t, f)
	p, err := a.Payments().ByID(ctx, "pay-1")
	require.NoError(t, err)
	p.MarkFailed("expired", t0)
	require.NoError(t, a.Payments().Save(ctx, p))
	require.NoError(t, a.Payments().Insert(ctx, newPayment(t, "pay-3", t0.Add(time.Minute))))

	q, err := b.Payments().ByID(ctx, "pay-1")
	require.NoError(t, err)
	q.MarkFailed("expired", t0)
	require.NoError(t, b.Payments().Save(ctx, q))
	require.NoError(t, b.Payments().Insert(ctx, newPayment(t, "pay-4", t0.Add(time.Minute))))

	require.NoError(t, a.Commit(ctx))
	assert.ErrorIs(t, b.Commit(ctx), apperr.ErrPersistenceRace)
}

func TestLatestByBookingAndExternalID(t *testing.T) {
	ctx := context.Background()
	f := memory.Factory{Store: memory.NewStore()}

	unit := begin(t, f)
	old := newPayment(t, "pay-1", t0)
	old.MarkFailed("declined", t0)
	require.NoError(t, unit.Payments().Insert(ctx, old))
	fresh := newPayment(t, "pay-2", t0.Add(time.Hour))
	require.NoError(t, fresh.AttachExternalID("ext-2", t0))
	require.NoError(t, unit.Payments().Insert(ctx, fresh))
	require.NoError(t, unit.Commit(ctx))

	reader := begin(t, f)
	latest, err := reader.Payments().LatestByBooking(ctx, "b-1")
	require.NoError(t, err)
	assert.Equal(t, payment.PaymentID("pay-2"), latest.ID)

	byExt, err := reader.Payments().ByExternalID(ctx, "ext-2")
	require.NoError(t, err)
	assert.Equal(t, payment.PaymentID("pay-2"), byExt.ID)

	_, err = reader.Payments().ByExternalID(ctx, "missing")
	assert.ErrorIs(t, err, payment.ErrPaymentNotFound)

	failed, err := reader.Payments().ListByStatus(ctx, payment.StatusFailed)
	require.NoError(t, err)
	assert.Len(t, failed, 1)
}

func TestOutboxRecordsBecomeVisibleOnCommit(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	f := memory.Factory{Store: store}
	box := memory.NewOutbox(store)

	unit := begin(t, f)
	bound := uow.Bind(ctx, unit)
	require.NoError(t, box.Add(bound, appoutbox.EventRecord{ID: "e-1", Name: "booking.requested", Payload: []byte(`{}`)}))
	assert.Empty(t, box.Records())
	require.NoError(t, unit.Rollback(ctx))
	assert.Empty(t, box.Records())

	unit = begin(t, f)
	bound = uow.Bind(ctx, unit)
	require.NoError(t, box.Add(bound, appoutbox.EventRecord{ID: "e-2", Name: "booking.requested", Payload: []byte(`{}`)}))
	require.NoError(t, unit.Commit(ctx))
	require.Len(t, box.Records(), 1)

	msg, err := box.Claim(ctx, "w-1")
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, "e-2", msg.ID)

	next, err := box.Claim(ctx, "w-1")
	require.NoError(t, err)
	assert.Nil(t, next)

	require.NoError(t, box.MarkFailed(ctx, "e-2", t0, "broker down"))
	retry, err := box.Claim(ctx, "w-1")
	require.NoError(t, err)
	require.NotNil(t, retry)
	assert.Equal(t, 1, retry.Attempts)
	require.NoError(t, box.MarkSent(ctx, "e-2"))
}

func TestReadOnlyUnitRejectsWrites(t *testing.T) {
	ctx := context.Background()
	f := memory.Factory{Store: memory.NewStore()}
	unit, err := f.Begin(ctx, uow.TxOptions{ReadOnly: true})
	require.NoError(t, err)
	assert.ErrorIs(t, unit.Payments().Insert(ctx, newPayment(t, "pay-1", t0)), memory.ErrReadOnlyUnit)
}
