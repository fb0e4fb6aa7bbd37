package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"stayhub/internal/domain/booking"
	"stayhub/internal/domain/payment"
	"stayhub/internal/domain/shared/money"
)

// PaymentRepository relies on the partial unique indexes from InitialiseDB:
// one PENDING payment per booking and unique external ids.
type PaymentRepository struct {
	q querier
}

const selectPayment = `SELECT id, booking_id, amount_minor, currency, method, status, external_id, initiated_at, completed_at, created_at, updated_at, version FROM payments`

func (r PaymentRepository) ByID(ctx context.Context, id payment.PaymentID) (*payment.Payment, error) {
	return r.get(ctx, selectPayment+` WHERE id = $1`, id)
}

func (r PaymentRepository) LatestByBooking(ctx context.Context, id booking.BookingID) (*payment.Payment, error) {
	return r.get(ctx, selectPayment+` WHERE booking_id = $1 ORDER BY created_at DESC, seq DESC LIMIT 1`, id)
}

func (r PaymentRepository) ByExternalID(ctx context.Context, externalID string) (*payment.Payment, error) {
	if externalID == "" {
		return nil, payment.ErrPaymentNotFound
	}
	return r.get(ctx, selectPayment+` WHERE external_id = $1`, externalID)
}

func (r PaymentRepository) Insert(ctx context.Context, p *payment.Payment) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO payments (id, booking_id, amount_minor, currency, method, status, external_id, initiated_at, completed_at, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9, $10, $11, 1)`,
		p.ID, p.BookingID, p.Amount.Amount, p.Amount.Currency, p.Method, p.Status,
		p.ExternalID, p.InitiatedAt, nullTime(p.CompletedAt), p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return mapErr(err, payment.ErrDuplicate)
	}
	p.Version = 1
	return nil
}

func (r PaymentRepository) Save(ctx context.Context, p *payment.Payment) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE payments SET amount_minor = $1, currency = $2, method = $3, status = $4, external_id = NULLIF($5, ''),
			initiated_at = $6, completed_at = $7, updated_at = $8, version = version + 1
		WHERE id = $9 AND version = $10`,
		p.Amount.Amount, p.Amount.Currency, p.Method, p.Status, p.ExternalID,
		p.InitiatedAt, nullTime(p.CompletedAt), p.UpdatedAt, p.ID, p.Version,
	)
	if err != nil {
		return mapErr(err, payment.ErrDuplicate)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return payment.ErrDuplicate
	}
	p.Version++
	return nil
}

func (r PaymentRepository) ListByBooking(ctx context.Context, id booking.BookingID) ([]*payment.Payment, error) {
	return r.list(ctx, selectPayment+` WHERE booking_id = $1 ORDER BY created_at DESC, seq DESC`, id)
}

func (r PaymentRepository) ListByStatus(ctx context.Context, status payment.Status) ([]*payment.Payment, error) {
	return r.list(ctx, selectPayment+` WHERE status = $1 ORDER BY created_at DESC, seq DESC`, status)
}

func (r PaymentRepository) get(ctx context.Context, query string, args ...any) (*payment.Payment, error) {
	var row paymentRow
	if err := r.q.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, payment.ErrPaymentNotFound
		}
		return nil, mapErr(err, nil)
	}
	return row.toAggregate(), nil
}

func (r PaymentRepository) list(ctx context.Context, query string, args ...any) ([]*payment.Payment, error) {
	var rows []paymentRow
	if err := r.q.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, mapErr(err, nil)
	}
	out := make([]*payment.Payment, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toAggregate())
	}
	return out, nil
}

type paymentRow struct {
	ID          string         `db:"id"`
	BookingID   string         `db:"booking_id"`
	AmountMinor int64          `db:"amount_minor"`
	Currency    string         `db:"currency"`
	Method      string         `db:"method"`
	Status      string         `db:"status"`
	ExternalID  sql.NullString `db:"external_id"`
	InitiatedAt time.Time      `db:"initiated_at"`
	CompletedAt sql.NullTime   `db:"completed_at"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
	Version     int64          `db:"version"`
}

func (r paymentRow) toAggregate() *payment.Payment {
	p := &payment.Payment{
		ID:          payment.PaymentID(r.ID),
		BookingID:   booking.BookingID(r.BookingID),
		Amount:      money.Money{Amount: r.AmountMinor, Currency: r.Currency},
		Method:      payment.Method(r.Method),
		Status:      payment.Status(r.Status),
		ExternalID:  r.ExternalID.String,
		InitiatedAt: r.InitiatedAt.UTC(),
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
		Version:     r.Version,
	}
	if r.CompletedAt.Valid {
		p.CompletedAt = r.CompletedAt.Time.UTC()
	}
	return p
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
