package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"stayhub/internal/domain/property"
	"stayhub/internal/domain/shared/money"
)

type PropertyRepository struct {
	q querier
}

const selectProperty = `SELECT id, host_id, name, city, country, nightly_rate_minor, currency, created_at, updated_at FROM properties`

func (r PropertyRepository) ByID(ctx context.Context, id property.PropertyID) (*property.Property, error) {
	return r.get(ctx, selectProperty+` WHERE id = $1`, id)
}

// ByIDForUpdate holds the property row lock until the transaction ends, which
// serializes booking creation for the property across processes.
func (r PropertyRepository) ByIDForUpdate(ctx context.Context, id property.PropertyID) (*property.Property, error) {
	return r.get(ctx, selectProperty+` WHERE id = $1 FOR UPDATE`, id)
}

func (r PropertyRepository) Save(ctx context.Context, p *property.Property) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO properties (id, host_id, name, city, country, nightly_rate_minor, currency, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			host_id = EXCLUDED.host_id,
			name = EXCLUDED.name,
			city = EXCLUDED.city,
			country = EXCLUDED.country,
			nightly_rate_minor = EXCLUDED.nightly_rate_minor,
			currency = EXCLUDED.currency,
			updated_at = EXCLUDED.updated_at`,
		p.ID, p.HostID, p.Name, p.City, p.Country, p.NightlyRate.Amount, p.NightlyRate.Currency, p.CreatedAt, p.UpdatedAt,
	)
	return mapErr(err, nil)
}

func (r PropertyRepository) get(ctx context.Context, query string, args ...any) (*property.Property, error) {
	var row propertyRow
	if err := r.q.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, property.ErrPropertyNotFound
		}
		return nil, mapErr(err, nil)
	}
	return row.toAggregate(), nil
}

type propertyRow struct {
	ID        string    `db:"id"`
	HostID    string    `db:"host_id"`
	Name      string    `db:"name"`
	City      string    `db:"city"`
	Country   string    `db:"country"`
	RateMinor int64     `db:"nightly_rate_minor"`
	Currency  string    `db:"currency"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r propertyRow) toAggregate() *property.Property {
	return &property.Property{
		ID:          property.PropertyID(r.ID),
		HostID:      property.HostID(r.HostID),
		Name:        r.Name,
		City:        r.City,
		Country:     r.Country,
		NightlyRate: money.Money{Amount: r.RateMinor, Currency: r.Currency},
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}
