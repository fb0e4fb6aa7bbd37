package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"stayhub/internal/app/handlers/support"
	"stayhub/internal/app/uow"
	"stayhub/internal/domain/property"
	"stayhub/internal/domain/shared/money"
	"stayhub/internal/infra/config"
)

type propertyFixture struct {
	ID          string `json:"id"`
	HostID      string `json:"host_id"`
	Name        string `json:"name"`
	City        string `json:"city"`
	Country     string `json:"country"`
	NightlyRate string `json:"nightly_rate"`
	Currency    string `json:"currency"`
}

// loadPropertyFixtures seeds the read-only property view. Listing management
// is owned by another service; fixtures stand in for its data locally.
func loadPropertyFixtures(ctx context.Context, factory uow.UoWFactory, path string, logger *slog.Logger) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Info("property fixtures file not found, skipping", "path", path)
			return nil
		}
		return fmt.Errorf("read fixtures: %w", err)
	}
	var fixtures []propertyFixture
	if err := json.Unmarshal(data, &fixtures); err != nil {
		return fmt.Errorf("decode fixtures: %w", err)
	}

	now := time.Now()
	for _, fx := range fixtures {
		rate, err := money.Parse(fx.NightlyRate, fx.Currency)
		if err != nil {
			logger.Error("fixture invalid", "property_id", fx.ID, "error", err)
			continue
		}
		p, err := property.New(property.CreateParams{
			ID:          property.PropertyID(fx.ID),
			HostID:      property.HostID(fx.HostID),
			Name:        fx.Name,
			City:        fx.City,
			Country:     fx.Country,
			NightlyRate: rate,
			Now:         now,
		})
		if err != nil {
			logger.Error("fixture invalid", "property_id", fx.ID, "error", err)
			continue
		}
		err = support.Within(ctx, factory, uow.TxOptions{}, func(ctx context.Context, unit uow.UnitOfWork) error {
			return unit.Properties().Save(ctx, p)
		})
		if err != nil {
			logger.Error("cannot store fixture property", "property_id", fx.ID, "error", err)
			continue
		}
		logger.Info("property fixture imported", "property_id", p.ID)
	}
	return nil
}

func fixturesPath(cfg config.Config) string {
	if cfg.PropertyFixtures != "" {
		return cfg.PropertyFixtures
	}
	candidates := []string{
		filepath.Join("data", "properties.json"),
		filepath.Join("..", "..", "data", "properties.json"),
	}
	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return candidates[0]
}
