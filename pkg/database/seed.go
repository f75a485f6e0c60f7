package database

import (
	"context"
	"fmt"

	"sale-service/internal/domain/sale"

	"github.com/shopspring/decimal"
)

// SaleCreator is the write path seeding goes through, so seeded sales get
// their sale.header.created outbox rows like any other sale.
type SaleCreator interface {
	CreateSale(ctx context.Context, clientID, createdBy string, items []sale.Item) (*sale.Sale, error)
}

// SeedConfig holds configuration for seeding the database
type SeedConfig struct {
	Count     int
	CreatedBy string
}

// DefaultSeedConfig returns default seed configuration
func DefaultSeedConfig() SeedConfig {
	return SeedConfig{Count: 5, CreatedBy: "seed"}
}

// SeedDevelopment creates cfg.Count demo sales with a couple of lines each.
func SeedDevelopment(ctx context.Context, creator SaleCreator, cfg SeedConfig) ([]*sale.Sale, error) {
	if cfg.Count <= 0 {
		cfg.Count = DefaultSeedConfig().Count
	}
	if cfg.CreatedBy == "" {
		cfg.CreatedBy = DefaultSeedConfig().CreatedBy
	}

	created := make([]*sale.Sale, 0, cfg.Count)
	for i := 1; i <= cfg.Count; i++ {
		items := []sale.Item{
			{MedID: fmt.Sprintf("MED-%03d", i), Quantity: i, Price: decimal.NewFromFloat(9.99)},
			{MedID: fmt.Sprintf("MED-%03d", i+100), Quantity: 1, Price: decimal.NewFromInt(int64(5 * i))},
		}
		s, err := creator.CreateSale(ctx, fmt.Sprintf("CLIENT-%03d", i), cfg.CreatedBy, items)
		if err != nil {
			return created, fmt.Errorf("seed sale %d: %w", i, err)
		}
		created = append(created, s)
	}
	return created, nil
}
