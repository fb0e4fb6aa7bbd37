package booking_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stayhub/internal/app/commands"
	"stayhub/internal/app/dto"
	bookingapp "stayhub/internal/app/handlers/booking"
	"stayhub/internal/app/middleware"
	"stayhub/internal/app/uow"
	"stayhub/internal/domain/auth"
	"stayhub/internal/domain/booking"
	"stayhub/internal/domain/payment"
	"stayhub/internal/domain/property"
	"stayhub/internal/domain/shared/apperr"
	"stayhub/internal/domain/shared/money"
	"stayhub/internal/infra/storage/memory"
	"stayhub/internal/infra/validation"
)

var clock = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

var (
	guest  = auth.Principal{UserID: "guest-1", Roles: []auth.Role{auth.RoleGuest}}
	other  = auth.Principal{UserID: "guest-2", Roles: []auth.Role{auth.RoleGuest}}
	host   = auth.Principal{UserID: "host-1", Roles: []auth.Role{auth.RoleHost}}
	admin  = auth.Principal{UserID: "admin-1", Roles: []auth.Role{auth.RoleAdmin}}
	nobody = auth.Principal{}
)

type fixture struct {
	store     *memory.Store
	factory   memory.Factory
	outbox    *memory.Outbox
	create    *bookingapp.CreateBookingHandler
	lifecycle *bookingapp.LifecycleHandler
	queries   *bookingapp.QueryHandler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	f := &fixture{store: store, factory: memory.Factory{Store: store}, outbox: memory.NewOutbox(store)}
	now := func() time.Time { return clock }
	f.create = &bookingapp.CreateBookingHandler{UoWFactory: f.factory, Outbox: f.outbox, Now: now}
	f.lifecycle = &bookingapp.LifecycleHandler{UoWFactory: f.factory, Outbox: f.outbox, Now: now}
	f.queries = &bookingapp.QueryHandler{UoWFactory: f.factory}

	prop, err := property.New(property.CreateParams{
		ID: "prop-1", HostID: "host-1", Name: "Lakeside cabin", City: "Naivasha", Country: "KE",
		NightlyRate: money.Must(2500, "USD"), Now: clock,
	})
	require.NoError(t, err)
	f.mutate(t, func(ctx context.Context, unit uow.UnitOfWork) error {
		return unit.Properties().Save(ctx, prop)
	})
	return f
}

func (f *fixture) mutate(t *testing.T, fn func(ctx context.Context, unit uow.UnitOfWork) error) {
	t.Helper()
	ctx := context.Background()
	unit, err := f.factory.Begin(ctx, uow.TxOptions{})
	require.NoError(t, err)
	require.NoError(t, fn(ctx, unit))
	require.NoError(t, unit.Commit(ctx))
}

func (f *fixture) book(t *testing.T, caller auth.Principal, start, end string) (*dto.BookingView, error) {
	t.Helper()
	return f.create.Handle(context.Background(), bookingapp.CreateBookingCommand{
		Caller:     caller,
		PropertyID: "prop-1",
		Start:      day(t, start),
		End:        day(t, end),
	})
}

func (f *fixture) load(t *testing.T, id string) *booking.Booking {
	t.Helper()
	unit, err := f.factory.Begin(context.Background(), uow.TxOptions{ReadOnly: true})
	require.NoError(t, err)
	b, err := unit.Bookings().ByID(context.Background(), booking.BookingID(id))
	require.NoError(t, err)
	return b
}

func (f *fixture) eventNames() []string {
	var names []string
	for _, rec := range f.outbox.Records() {
		names = append(names, rec.Name)
	}
	return names
}

func day(t *testing.T, raw string) time.Time {
	t.Helper()
	d, err := time.Parse(time.DateOnly, raw)
	require.NoError(t, err)
	return d
}

func TestCreateBookingQuotesAndRecordsEvent(t *testing.T) {
	f := newFixture(t)

	view, err := f.book(t, guest, "2024-06-01", "2024-06-05")
	require.NoError(t, err)
	assert.Equal(t, "PENDING", view.Status)
	assert.Equal(t, 4, view.Nights)
	assert.Equal(t, int64(10000), view.Total.Amount)
	assert.Equal(t, "100.00", view.Total.Value)
	assert.Equal(t, "host-1", view.HostID)
	assert.Equal(t, "guest-1", view.GuestID)
	assert.Equal(t, []string{"booking.requested"}, f.eventNames())
}

func TestCreateBookingRejectsOverlap(t *testing.T) {
	f := newFixture(t)
	_, err := f.book(t, guest, "2024-06-01", "2024-06-05")
	require.NoError(t, err)

	_, err = f.book(t, other, "2024-06-04", "2024-06-08")
	assert.ErrorIs(t, err, booking.ErrDatesUnavailable)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	list, err := f.queries.ListByState(context.Background(), bookingapp.ListBookingsByStateQuery{Caller: admin, Status: "pending"})
	require.NoError(t, err)
	assert.Len(t, list.Items, 1)
}

func TestCreateBookingAllowsBackToBackStays(t *testing.T) {
	f := newFixture(t)
	_, err := f.book(t, guest, "2024-06-01", "2024-06-05")
	require.NoError(t, err)

	_, err = f.book(t, other, "2024-06-05", "2024-06-08")
	require.NoError(t, err)
	_, err = f.book(t, other, "2024-05-28", "2024-06-01")
	require.NoError(t, err)
}

func TestCanceledBookingFreesDates(t *testing.T) {
	f := newFixture(t)
	first, err := f.book(t, guest, "2024-06-01", "2024-06-05")
	require.NoError(t, err)

	_, err = f.lifecycle.Cancel(context.Background(), bookingapp.CancelBookingCommand{BookingID: first.ID, Caller: guest})
	require.NoError(t, err)

	_, err = f.book(t, other, "2024-06-02", "2024-06-04")
	require.NoError(t, err)
}

func TestCreateBookingValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.book(t, guest, "2024-06-05", "2024-06-05")
	assert.ErrorIs(t, err, booking.ErrInvalidRange)

	_, err = f.book(t, guest, "1700-01-01", "2100-01-01")
	assert.ErrorIs(t, err, booking.ErrStayTooLong)
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = f.queries.Quote(context.Background(), bookingapp.QuotePriceQuery{PropertyID: "prop-1", Start: day(t, "2024-01-01"), End: day(t, "2025-01-02")})
	assert.ErrorIs(t, err, booking.ErrStayTooLong)

	_, err = f.book(t, nobody, "2024-06-01", "2024-06-05")
	assert.ErrorIs(t, err, auth.ErrAuthRequired)

	_, err = f.book(t, host, "2024-06-01", "2024-06-05")
	assert.ErrorIs(t, err, auth.ErrInsufficientRoles)

	_, err = f.create.Handle(context.Background(), bookingapp.CreateBookingCommand{
		Caller: guest, PropertyID: "missing", Start: day(t, "2024-06-01"), End: day(t, "2024-06-02"),
	})
	assert.ErrorIs(t, err, property.ErrPropertyNotFound)
}

func lockedBus(f *fixture) commands.Bus {
	base := commands.NewInMemoryBus()
	commands.Register(base, f.create.Handle)
	return middleware.ChainCommands(base,
		middleware.Validation(validation.New()),
		middleware.Authorization(middleware.RoleAuthorizer{}),
		middleware.Locking(memory.NewKeyedLocker(5*time.Second)),
		middleware.Transaction(f.factory, nil),
	)
}

func TestConcurrentOverlappingCreatesHaveOneWinner(t *testing.T) {
	f := newFixture(t)
	bus := lockedBus(f)

	const attempts = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := commands.Dispatch[bookingapp.CreateBookingCommand, *dto.BookingView](context.Background(), bus, bookingapp.CreateBookingCommand{
				Caller:     guest,
				PropertyID: "prop-1",
				Start:      time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
				End:        time.Date(2024, 6, 5, 0, 0, 0, 0, time.UTC),
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, booking.ErrDatesUnavailable):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, attempts-1, conflicts)
}

func TestLifecyclePermissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	view, err := f.book(t, guest, "2024-06-01", "2024-06-05")
	require.NoError(t, err)

	_, err = f.lifecycle.Cancel(ctx, bookingapp.CancelBookingCommand{BookingID: view.ID, Caller: other})
	assert.ErrorIs(t, err, auth.ErrNotOwner)

	_, err = f.lifecycle.Confirm(ctx, bookingapp.ConfirmBookingCommand{BookingID: view.ID, Caller: guest})
	assert.ErrorIs(t, err, auth.ErrInsufficientRoles)

	otherHost := auth.Principal{UserID: "host-2", Roles: []auth.Role{auth.RoleHost}}
	_, err = f.lifecycle.Confirm(ctx, bookingapp.ConfirmBookingCommand{BookingID: view.ID, Caller: otherHost})
	assert.ErrorIs(t, err, auth.ErrNotOwner)

	confirmed, err := f.lifecycle.Confirm(ctx, bookingapp.ConfirmBookingCommand{BookingID: view.ID, Caller: host})
	require.NoError(t, err)
	assert.Equal(t, "CONFIRMED", confirmed.Status)
	assert.Equal(t, booking.StateConfirmed, f.load(t, view.ID).State)
}

func TestCancelTwiceConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	view, err := f.book(t, guest, "2024-06-01", "2024-06-05")
	require.NoError(t, err)

	_, err = f.lifecycle.Cancel(ctx, bookingapp.CancelBookingCommand{BookingID: view.ID, Caller: admin})
	require.NoError(t, err)
	_, err = f.lifecycle.Cancel(ctx, bookingapp.CancelBookingCommand{BookingID: view.ID, Caller: guest})
	assert.ErrorIs(t, err, booking.ErrAlreadyCanceled)

	_, err = f.lifecycle.Cancel(ctx, bookingapp.CancelBookingCommand{BookingID: "missing", Caller: admin})
	assert.ErrorIs(t, err, booking.ErrBookingNotFound)
}

func TestMarkPaymentFailedResetsBookingAndLatestPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	view, err := f.book(t, guest, "2024-06-01", "2024-06-05")
	require.NoError(t, err)

	f.mutate(t, func(ctx context.Context, unit uow.UnitOfWork) error {
		b, err := unit.Bookings().ByIDForUpdate(ctx, booking.BookingID(view.ID))
		if err != nil {
			return err
		}
		p, err := payment.New(payment.CreateParams{ID: "pay-1", BookingID: b.ID, Amount: b.Total, Method: payment.MethodSandbox, Now: clock})
		if err != nil {
			return err
		}
		if err := unit.Payments().Insert(ctx, p); err != nil {
			return err
		}
		if err := b.AwaitPayment("pay-1", clock); err != nil {
			return err
		}
		return unit.Bookings().Save(ctx, b)
	})

	updated, err := f.lifecycle.MarkPaymentFailed(ctx, bookingapp.MarkPaymentFailedCommand{BookingID: view.ID, Caller: guest})
	require.NoError(t, err)
	assert.Equal(t, "PENDING", updated.Status)

	unit, err := f.factory.Begin(ctx, uow.TxOptions{ReadOnly: true})
	require.NoError(t, err)
	p, err := unit.Payments().ByID(ctx, "pay-1")
	require.NoError(t, err)
	assert.Equal(t, payment.StatusFailed, p.Status)
	assert.Contains(t, f.eventNames(), "payment.failed")
	assert.Contains(t, f.eventNames(), "booking.payment_failed")
}

func TestMarkPaymentFailedRefusesPaidBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	view, err := f.book(t, guest, "2024-06-01", "2024-06-05")
	require.NoError(t, err)

	f.mutate(t, func(ctx context.Context, unit uow.UnitOfWork) error {
		b, err := unit.Bookings().ByIDForUpdate(ctx, booking.BookingID(view.ID))
		if err != nil {
			return err
		}
		p, err := payment.New(payment.CreateParams{ID: "pay-1", BookingID: b.ID, Amount: b.Total, Method: payment.MethodSandbox, Now: clock})
		if err != nil {
			return err
		}
		if err := p.AttachExternalID("sbx_1", clock); err != nil {
			return err
		}
		p.Resolve(true, "", "paid", clock)
		if err := unit.Payments().Insert(ctx, p); err != nil {
			return err
		}
		if err := b.AwaitPayment("pay-1", clock); err != nil {
			return err
		}
		if err := b.ConfirmPayment("pay-1", clock); err != nil {
			return err
		}
		return unit.Bookings().Save(ctx, b)
	})

	_, err = f.lifecycle.MarkPaymentFailed(ctx, bookingapp.MarkPaymentFailedCommand{BookingID: view.ID, Caller: guest})
	assert.ErrorIs(t, err, payment.ErrAlreadyPaid)

	assert.Equal(t, booking.StateConfirmed, f.load(t, view.ID).State)
	unit, err := f.factory.Begin(ctx, uow.TxOptions{ReadOnly: true})
	require.NoError(t, err)
	p, err := unit.Payments().ByID(ctx, "pay-1")
	require.NoError(t, err)
	assert.Equal(t, payment.StatusSuccess, p.Status)
}

func TestMarkPaymentFailedWithoutPayment(t *testing.T) {
	f := newFixture(t)
	view, err := f.book(t, guest, "2024-06-01", "2024-06-05")
	require.NoError(t, err)

	updated, err := f.lifecycle.MarkPaymentFailed(context.Background(), bookingapp.MarkPaymentFailedCommand{BookingID: view.ID, Caller: host})
	require.NoError(t, err)
	assert.Equal(t, "PENDING", updated.Status)
}

func TestQueriesScopeToCaller(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mine, err := f.book(t, guest, "2024-06-01", "2024-06-05")
	require.NoError(t, err)
	_, err = f.book(t, other, "2024-07-01", "2024-07-03")
	require.NoError(t, err)

	got, err := f.queries.Get(ctx, bookingapp.GetBookingQuery{Caller: host, BookingID: mine.ID})
	require.NoError(t, err)
	assert.Equal(t, mine.ID, got.ID)

	_, err = f.queries.Get(ctx, bookingapp.GetBookingQuery{Caller: other, BookingID: mine.ID})
	assert.ErrorIs(t, err, auth.ErrNotOwner)

	list, err := f.queries.ListGuest(ctx, bookingapp.ListGuestBookingsQuery{Caller: guest})
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	assert.Equal(t, mine.ID, list.Items[0].ID)

	hostList, err := f.queries.ListHost(ctx, bookingapp.ListHostBookingsQuery{Caller: host, Status: "PENDING"})
	require.NoError(t, err)
	assert.Len(t, hostList.Items, 2)

	_, err = f.queries.ListGuest(ctx, bookingapp.ListGuestBookingsQuery{Caller: guest, Status: "ACCEPTED"})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	awaiting, err := f.queries.ListAwaitingPayment(ctx, bookingapp.ListAwaitingPaymentQuery{Caller: admin})
	require.NoError(t, err)
	assert.Len(t, awaiting.Items, 2)

	_, err = f.queries.ListByState(ctx, bookingapp.ListBookingsByStateQuery{Caller: admin, Status: "bogus"})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestQuoteReportsAvailability(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.book(t, guest, "2024-06-01", "2024-06-05")
	require.NoError(t, err)

	quote, err := f.queries.Quote(ctx, bookingapp.QuotePriceQuery{PropertyID: "prop-1", Start: day(t, "2024-06-03"), End: day(t, "2024-06-06")})
	require.NoError(t, err)
	assert.False(t, quote.Available)
	assert.Equal(t, 3, quote.Nights)
	assert.Equal(t, "75.00", quote.Total.Value)

	quote, err = f.queries.Quote(ctx, bookingapp.QuotePriceQuery{PropertyID: "prop-1", Start: day(t, "2024-06-05"), End: day(t, "2024-06-06")})
	require.NoError(t, err)
	assert.True(t, quote.Available)
}
