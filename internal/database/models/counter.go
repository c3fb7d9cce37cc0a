package models

import (
	"context"
	"fmt"

	"github.com/robalyx/modcase/internal/database/dbretry"
	"github.com/robalyx/modcase/internal/database/types"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// CounterModel handles database operations for persisted named sequences.
type CounterModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewCounter creates a new CounterModel instance.
func NewCounter(db *bun.DB, logger *zap.Logger) *CounterModel {
	return &CounterModel{
		db:     db,
		logger: logger.Named("db_counter"),
	}
}

// IncrementAndGet atomically increments the named counter and returns the new
// value, creating the row at 1 on first use.
func (m *CounterModel) IncrementAndGet(ctx context.Context, name string) (int64, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (int64, error) {
		counter := &types.CaseCounter{Name: name, Value: 1}

		err := m.db.NewInsert().
			Model(counter).
			On("CONFLICT (name) DO UPDATE").
			Set("value = case_counter.value + 1").
			Returning("value").
			Scan(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to increment counter %s: %w", name, err)
		}

		return counter.Value, nil
	})
}
