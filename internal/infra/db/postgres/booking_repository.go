package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"stayhub/internal/domain/availability"
	"stayhub/internal/domain/booking"
	"stayhub/internal/domain/property"
	"stayhub/internal/domain/shared/daterange"
	"stayhub/internal/domain/shared/money"
)

type BookingRepository struct {
	q querier
}

const selectBooking = `SELECT id, property_id, guest_id, host_id, check_in, check_out, total_minor, currency, state, created_at, updated_at, version FROM bookings`

func (r BookingRepository) ByID(ctx context.Context, id booking.BookingID) (*booking.Booking, error) {
	return r.get(ctx, selectBooking+` WHERE id = $1`, id)
}

func (r BookingRepository) ByIDForUpdate(ctx context.Context, id booking.BookingID) (*booking.Booking, error) {
	return r.get(ctx, selectBooking+` WHERE id = $1 FOR UPDATE`, id)
}

func (r BookingRepository) Insert(ctx context.Context, b *booking.Booking) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO bookings (id, property_id, guest_id, host_id, check_in, check_out, total_minor, currency, state, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 1)`,
		b.ID, b.PropertyID, b.GuestID, b.HostID, b.Range.CheckIn, b.Range.CheckOut,
		b.Total.Amount, b.Total.Currency, b.State, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return mapErr(err, ErrDuplicateID)
	}
	b.Version = 1
	return nil
}

func (r BookingRepository) Save(ctx context.Context, b *booking.Booking) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE bookings SET state = $1, total_minor = $2, currency = $3, updated_at = $4, version = version + 1
		WHERE id = $5 AND version = $6`,
		b.State, b.Total.Amount, b.Total.Currency, b.UpdatedAt, b.ID, b.Version,
	)
	if err != nil {
		return mapErr(err, booking.ErrConcurrentUpdate)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return booking.ErrConcurrentUpdate
	}
	b.Version++
	return nil
}

func (r BookingRepository) ListActiveByProperty(ctx context.Context, id property.PropertyID) ([]*booking.Booking, error) {
	states := make([]string, 0, 4)
	for _, s := range availability.ActiveStates() {
		states = append(states, string(s))
	}
	return r.list(ctx, selectBooking+` WHERE property_id = $1 AND state = ANY($2) ORDER BY created_at DESC, id DESC`, id, pq.Array(states))
}

func (r BookingRepository) ListByGuest(ctx context.Context, guestID string) ([]*booking.Booking, error) {
	return r.list(ctx, selectBooking+` WHERE guest_id = $1 ORDER BY created_at DESC, id DESC`, guestID)
}

func (r BookingRepository) ListByHost(ctx context.Context, hostID property.HostID) ([]*booking.Booking, error) {
	return r.list(ctx, selectBooking+` WHERE host_id = $1 ORDER BY created_at DESC, id DESC`, hostID)
}

func (r BookingRepository) ListByState(ctx context.Context, state booking.BookingState) ([]*booking.Booking, error) {
	return r.list(ctx, selectBooking+` WHERE state = $1 ORDER BY created_at DESC, id DESC`, state)
}

func (r BookingRepository) get(ctx context.Context, query string, args ...any) (*booking.Booking, error) {
	var row bookingRow
	if err := r.q.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, booking.ErrBookingNotFound
		}
		return nil, mapErr(err, nil)
	}
	return row.toAggregate(), nil
}

func (r BookingRepository) list(ctx context.Context, query string, args ...any) ([]*booking.Booking, error) {
	var rows []bookingRow
	if err := r.q.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, mapErr(err, nil)
	}
	out := make([]*booking.Booking, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toAggregate())
	}
	return out, nil
}

type bookingRow struct {
	ID         string    `db:"id"`
	PropertyID string    `db:"property_id"`
	GuestID    string    `db:"guest_id"`
	HostID     string    `db:"host_id"`
	CheckIn    time.Time `db:"check_in"`
	CheckOut   time.Time `db:"check_out"`
	TotalMinor int64     `db:"total_minor"`
	Currency   string    `db:"currency"`
	State      string    `db:"state"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
	Version    int64     `db:"version"`
}

func (r bookingRow) toAggregate() *booking.Booking {
	return &booking.Booking{
		ID:         booking.BookingID(r.ID),
		PropertyID: property.PropertyID(r.PropertyID),
		GuestID:    r.GuestID,
		HostID:     property.HostID(r.HostID),
		Range:      daterange.DateRange{CheckIn: daterange.Day(r.CheckIn), CheckOut: daterange.Day(r.CheckOut)},
		Total:      money.Money{Amount: r.TotalMinor, Currency: r.Currency},
		State:      booking.BookingState(r.State),
		CreatedAt:  r.CreatedAt.UTC(),
		UpdatedAt:  r.UpdatedAt.UTC(),
		Version:    r.Version,
	}
}
