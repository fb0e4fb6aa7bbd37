package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stayhub/internal/app/middleware"
	appoutbox "stayhub/internal/app/outbox"
	"stayhub/internal/app/uow"
	"stayhub/internal/domain/booking"
	"stayhub/internal/domain/payment"
	"stayhub/internal/domain/property"
	"stayhub/internal/domain/shared/apperr"
	"stayhub/internal/domain/shared/daterange"
	"stayhub/internal/domain/shared/money"
)

var db *sqlx.DB

func TestMain(m *testing.M) {
	url := os.Getenv("POSTGRES_URL")
	if url != "" {
		var err error
		db, err = Open(context.Background(), url)
		if err != nil {
			panic(err)
		}
		if err := InitialiseDB(context.Background(), db); err != nil {
			panic(err)
		}
	}
	os.Exit(m.Run())
}

func testDB(t *testing.T) *sqlx.DB {
	t.Helper()
	if db == nil {
		t.Skip("POSTGRES_URL not set")
	}
	_, err := db.Exec(`TRUNCATE outbox, inbox, idempotency, payments, bookings, properties`)
	require.NoError(t, err)
	return db
}

func run(t *testing.T, f Factory, fn func(ctx context.Context, unit uow.UnitOfWork) error) error {
	t.Helper()
	ctx := context.Background()
	unit, err := f.Begin(ctx, uow.TxOptions{})
	require.NoError(t, err)
	bound := uow.Bind(ctx, unit)
	if err := fn(bound, unit); err != nil {
		_ = unit.Rollback(bound)
		return err
	}
	return unit.Commit(bound)
}

func seed(t *testing.T, f Factory) *booking.Booking {
	t.Helper()
	now := time.Now()
	p, err := property.New(property.CreateParams{ID: "p-1", HostID: "h-1", Name: "Loft", NightlyRate: money.Must(2500, "KES"), Now: now})
	require.NoError(t, err)
	dr, err := daterange.Parse("2024-06-01", "2024-06-03")
	require.NoError(t, err)
	b, err := booking.NewBooking(booking.CreateParams{ID: "b-1", PropertyID: p.ID, GuestID: "g-1", HostID: p.HostID, Range: dr, Total: money.Must(5000, "KES"), CreatedAt: now})
	require.NoError(t, err)
	require.NoError(t, run(t, f, func(ctx context.Context, unit uow.UnitOfWork) error {
		if err := unit.Properties().Save(ctx, p); err != nil {
			return err
		}
		return unit.Bookings().Insert(ctx, b)
	}))
	return b
}

func TestBookingRoundTripAndVersioning(t *testing.T) {
	f := Factory{DB: testDB(t)}
	b := seed(t, f)

	require.NoError(t, run(t, f, func(ctx context.Context, unit uow.UnitOfWork) error {
		got, err := unit.Bookings().ByIDForUpdate(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, b.Range, got.Range)
		assert.Equal(t, int64(1), got.Version)
		require.NoError(t, got.Confirm("h-1", time.Now()))
		return unit.Bookings().Save(ctx, got)
	}))

	stale := b.Clone()
	err := run(t, f, func(ctx context.Context, unit uow.UnitOfWork) error {
		require.NoError(t, stale.Cancel("g-1", time.Now()))
		return unit.Bookings().Save(ctx, stale)
	})
	assert.ErrorIs(t, err, booking.ErrConcurrentUpdate)

	active, err := BookingRepository{q: f.DB}.ListActiveByProperty(context.Background(), "p-1")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, booking.StateConfirmed, active[0].State)
}

func TestSecondPendingPaymentViolatesIndex(t *testing.T) {
	f := Factory{DB: testDB(t)}
	b := seed(t, f)
	newPay := func(id string) *payment.Payment {
		p, err := payment.New(payment.CreateParams{ID: payment.PaymentID(id), BookingID: b.ID, Amount: b.Total, Method: payment.MethodMpesa, Now: time.Now()})
		require.NoError(t, err)
		return p
	}

	require.NoError(t, run(t, f, func(ctx context.Context, unit uow.UnitOfWork) error {
		return unit.Payments().Insert(ctx, newPay("pay-1"))
	}))
	err := run(t, f, func(ctx context.Context, unit uow.UnitOfWork) error {
		return unit.Payments().Insert(ctx, newPay("pay-2"))
	})
	assert.ErrorIs(t, err, payment.ErrDuplicate)
	assert.ErrorIs(t, err, apperr.ErrPersistenceRace)

	require.NoError(t, run(t, f, func(ctx context.Context, unit uow.UnitOfWork) error {
		p, err := unit.Payments().LatestByBooking(ctx, b.ID)
		require.NoError(t, err)
		require.NoError(t, p.AttachExternalID("ws_CO_1", time.Now()))
		return unit.Payments().Save(ctx, p)
	}))
	got, err := PaymentRepository{q: f.DB}.ByExternalID(context.Background(), "ws_CO_1")
	require.NoError(t, err)
	assert.Equal(t, payment.PaymentID("pay-1"), got.ID)
	assert.True(t, got.CompletedAt.IsZero())
}

func TestOutboxCommitsWithUnitAndRollsBack(t *testing.T) {
	f := Factory{DB: testDB(t)}
	box := NewOutboxStore(f.DB)
	b := seed(t, f)

	require.NoError(t, run(t, f, func(ctx context.Context, unit uow.UnitOfWork) error {
		got, err := unit.Bookings().ByIDForUpdate(ctx, b.ID)
		require.NoError(t, err)
		require.NoError(t, got.Cancel("g-1", time.Now()))
		if err := unit.Bookings().Save(ctx, got); err != nil {
			return err
		}
		return appoutbox.Record(ctx, box, nil, got)
	}))
	_ = run(t, f, func(ctx context.Context, unit uow.UnitOfWork) error {
		require.NoError(t, box.Add(ctx, appoutbox.EventRecord{ID: "discarded", Name: "booking.canceled", Payload: []byte("{}"), OccurredAt: time.Now()}))
		return assert.AnError
	})

	ctx := context.Background()
	msg, err := box.Claim(ctx, "w-1")
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, "booking.canceled", msg.Name)
	assert.NotEqual(t, "discarded", msg.ID)

	require.NoError(t, box.MarkFailed(ctx, msg.ID, time.Now().Add(-time.Second), "broker down"))
	again, err := box.Claim(ctx, "w-2")
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, 1, again.Attempts)
	assert.Equal(t, "broker down", again.LastError)
	require.NoError(t, box.MarkSent(ctx, again.ID))

	none, err := box.Claim(ctx, "w-3")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestIdempotencyAndInbox(t *testing.T) {
	d := testDB(t)
	ctx := context.Background()

	store := NewIdempotencyStore(d, time.Hour)
	_, ok, err := store.Get(ctx, "k-1")
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, store.Save(ctx, middleware.IdempotencyRecord{Key: "k-1", Payload: []byte(`{"id":"b-1"}`), OccurredAt: time.Now()}))
	rec, ok, err := store.Get(ctx, "k-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, `{"id":"b-1"}`, string(rec.Payload))
	require.NoError(t, store.Save(ctx, middleware.IdempotencyRecord{Key: "k-1", Payload: []byte(`{"id":"b-2"}`), OccurredAt: time.Now()}))
	rec, _, err = store.Get(ctx, "k-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"b-1"}`, string(rec.Payload))

	inbox := NewInboxStore(d, "gateway-results")
	seen, err := inbox.Seen(ctx, "evt-1")
	require.NoError(t, err)
	assert.False(t, seen)
	seen, err = inbox.Seen(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, seen)
	require.NoError(t, inbox.Forget(ctx, "evt-1"))
	seen, err = inbox.Seen(ctx, "evt-1")
	require.NoError(t, err)
	assert.False(t, seen)
}
