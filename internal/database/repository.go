package database

import (
	"github.com/robalyx/modcase/internal/database/models"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// Repository provides access to all database models.
type Repository struct {
	moderation *models.ModerationModel
	counter    *models.CounterModel
}

// NewRepository creates a new repository instance with all models.
func NewRepository(db *bun.DB, logger *zap.Logger) *Repository {
	return &Repository{
		moderation: models.NewModeration(db, logger),
		counter:    models.NewCounter(db, logger),
	}
}

// Moderation returns the moderation case model.
func (r *Repository) Moderation() *models.ModerationModel {
	return r.moderation
}

// Counter returns the named sequence model.
func (r *Repository) Counter() *models.CounterModel {
	return r.counter
}
