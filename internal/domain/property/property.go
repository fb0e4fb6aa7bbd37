package property

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"stayhub/internal/domain/shared/apperr"
	"stayhub/internal/domain/shared/money"
)

var (
	ErrPropertyNotFound = fmt.Errorf("%w: property", apperr.ErrNotFound)
	ErrHostRequired     = errors.New("property: host id is required")
	ErrNameRequired     = errors.New("property: name is required")
	ErrNightlyRate      = errors.New("property: nightly rate must be positive")
)

type PropertyID string
type HostID string

// Property is the read-only view of a listed property the booking core needs:
// who hosts it and what a night costs. Listing management lives elsewhere.
type Property struct {
	ID          PropertyID
	HostID      HostID
	Name        string
	City        string
	Country     string
	NightlyRate money.Money
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Repository interface {
	ByID(ctx context.Context, id PropertyID) (*Property, error)
	// ByIDForUpdate loads the property and, where the store supports it, locks the
	// row until the surrounding unit of work ends.
	ByIDForUpdate(ctx context.Context, id PropertyID) (*Property, error)
	Save(ctx context.Context, p *Property) error
}

type CreateParams struct {
	ID          PropertyID
	HostID      HostID
	Name        string
	City        string
	Country     string
	NightlyRate money.Money
	Now         time.Time
}

func New(params CreateParams) (*Property, error) {
	if strings.TrimSpace(string(params.HostID)) == "" {
		return nil, ErrHostRequired
	}
	if strings.TrimSpace(params.Name) == "" {
		return nil, ErrNameRequired
	}
	if params.NightlyRate.Amount <= 0 || params.NightlyRate.Currency == "" {
		return nil, ErrNightlyRate
	}
	now := params.Now.UTC()
	return &Property{
		ID:          params.ID,
		HostID:      params.HostID,
		Name:        strings.TrimSpace(params.Name),
		City:        params.City,
		Country:     params.Country,
		NightlyRate: params.NightlyRate,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Quote prices a stay of the given number of nights.
func (p *Property) Quote(nights int) money.Money {
	return p.NightlyRate.Multiply(int64(nights))
}
