package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/robalyx/modcase/internal/database/dbretry"
	"github.com/robalyx/modcase/internal/database/types"
	"github.com/robalyx/modcase/internal/database/types/enum"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// ModerationModel handles database operations for moderation case records.
type ModerationModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewModeration creates a new ModerationModel instance.
func NewModeration(db *bun.DB, logger *zap.Logger) *ModerationModel {
	return &ModerationModel{
		db:     db,
		logger: logger.Named("db_moderation"),
	}
}

// Insert stores a new moderation record.
func (m *ModerationModel) Insert(ctx context.Context, record *types.Moderation) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := m.db.NewInsert().
			Model(record).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to insert moderation: %w", err)
		}

		return nil
	})
}

// Get returns the moderation with the given ID, or nil if it does not exist.
func (m *ModerationModel) Get(ctx context.Context, id int64) (*types.Moderation, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (*types.Moderation, error) {
		record := new(types.Moderation)

		err := m.db.NewSelect().
			Model(record).
			Where("id = ?", id).
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, nil
			}

			return nil, fmt.Errorf("failed to get moderation: %w", err)
		}

		return record, nil
	})
}

// GetByCaseNumber returns the moderation with the given case number, or nil
// if it does not exist.
func (m *ModerationModel) GetByCaseNumber(ctx context.Context, caseNumber int64) (*types.Moderation, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (*types.Moderation, error) {
		record := new(types.Moderation)

		err := m.db.NewSelect().
			Model(record).
			Where("case_number = ?", caseNumber).
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, nil
			}

			return nil, fmt.Errorf("failed to get moderation by case number: %w", err)
		}

		return record, nil
	})
}

// GetActiveByKind returns all active moderations of a kind, ordered by
// issuance time.
func (m *ModerationModel) GetActiveByKind(
	ctx context.Context, kind enum.ModerationKind,
) ([]*types.Moderation, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]*types.Moderation, error) {
		var records []*types.Moderation

		err := m.db.NewSelect().
			Model(&records).
			Where("kind = ?", kind).
			Where("active = true").
			Order("issued_at ASC").
			Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get active moderations: %w", err)
		}

		return records, nil
	})
}

// GetActiveForUser returns all active moderations against a user across kinds.
func (m *ModerationModel) GetActiveForUser(ctx context.Context, userID uint64) ([]*types.Moderation, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]*types.Moderation, error) {
		var records []*types.Moderation

		err := m.db.NewSelect().
			Model(&records).
			Where("user_id = ?", userID).
			Where("active = true").
			Order("issued_at ASC").
			Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get active moderations for user: %w", err)
		}

		return records, nil
	})
}

// FindRecentDuplicate returns a moderation of the same kind, subject and role
// payload issued at or after the given time, or nil if none exists.
func (m *ModerationModel) FindRecentDuplicate(
	ctx context.Context, kind enum.ModerationKind, userID, roleID uint64, since time.Time,
) (*types.Moderation, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (*types.Moderation, error) {
		record := new(types.Moderation)

		err := m.db.NewSelect().
			Model(record).
			Where("kind = ?", kind).
			Where("user_id = ?", userID).
			Where("COALESCE(role_id, 0) = ?", roleID).
			Where("active = true").
			Where("issued_at >= ?", since).
			Order("issued_at DESC").
			Limit(1).
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, nil
			}

			return nil, fmt.Errorf("failed to find recent duplicate: %w", err)
		}

		return record, nil
	})
}

// CountOtherActive counts active moderations of the same kind, subject and
// role payload excluding the given record. The external effect is shared, so
// it may only be removed when this count is zero.
func (m *ModerationModel) CountOtherActive(
	ctx context.Context, kind enum.ModerationKind, userID, roleID uint64, excludeID int64,
) (int, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (int, error) {
		count, err := m.db.NewSelect().
			Model((*types.Moderation)(nil)).
			Where("kind = ?", kind).
			Where("user_id = ?", userID).
			Where("COALESCE(role_id, 0) = ?", roleID).
			Where("active = true").
			Where("id != ?", excludeID).
			Count(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to count other active moderations: %w", err)
		}

		return count, nil
	})
}

// MarkInactive clears the active flag without recording a removal. Used to
// correct records that already carry removal metadata but were left active.
func (m *ModerationModel) MarkInactive(ctx context.Context, id int64) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := m.db.NewUpdate().
			Model((*types.Moderation)(nil)).
			Set("active = false").
			Where("id = ?", id).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to mark moderation inactive: %w", err)
		}

		return nil
	})
}

// MarkRemoved deactivates a record and stores removal metadata.
func (m *ModerationModel) MarkRemoved(
	ctx context.Context, id int64, removal types.Removal, auto bool,
) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := m.db.NewUpdate().
			Model((*types.Moderation)(nil)).
			Set("active = false").
			Set("auto_removed = ?", auto).
			Set("removed_by = ?", removal.ActorID).
			Set("removed_reason = ?", removal.Reason).
			Set("removed_at = ?", removal.At).
			Where("id = ?", id).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to mark moderation removed: %w", err)
		}

		return nil
	})
}

// RevokeLatestActive removes the most recently issued active moderation of a
// kind against a user, returning the updated record or nil if none was active.
func (m *ModerationModel) RevokeLatestActive(
	ctx context.Context, kind enum.ModerationKind, userID, roleID uint64, removal types.Removal,
) (*types.Moderation, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (*types.Moderation, error) {
		record := new(types.Moderation)

		res, err := m.db.NewUpdate().
			Model(record).
			Set("active = false").
			Set("removed_by = ?", removal.ActorID).
			Set("removed_reason = ?", removal.Reason).
			Set("removed_at = ?", removal.At).
			Where("id = (?)", m.db.NewSelect().
				Model((*types.Moderation)(nil)).
				Column("id").
				Where("kind = ?", kind).
				Where("user_id = ?", userID).
				Where("COALESCE(role_id, 0) = ?", roleID).
				Where("active = true").
				Order("issued_at DESC").
				Limit(1)).
			Returning("*").
			Exec(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to revoke moderation: %w", err)
		}

		rows, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("failed to get rows affected: %w", err)
		}

		if rows == 0 {
			return nil, nil
		}

		return record, nil
	})
}

// SetReason updates the reason of a case, returning the updated record or nil
// if the case does not exist.
func (m *ModerationModel) SetReason(
	ctx context.Context, caseNumber int64, reason string,
) (*types.Moderation, error) {
	return m.updateByCase(ctx, caseNumber, func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.Set("reason = ?", reason)
	})
}

// SetDuration updates the duration of a case, returning the updated record or
// nil if the case does not exist. A nil duration makes the case permanent.
func (m *ModerationModel) SetDuration(
	ctx context.Context, caseNumber int64, duration *time.Duration,
) (*types.Moderation, error) {
	return m.updateByCase(ctx, caseNumber, func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.Set("duration = ?", duration)
	})
}

// Expunge strikes a case from the record. The row is kept for audit but is
// excluded from user-facing history.
func (m *ModerationModel) Expunge(
	ctx context.Context, caseNumber int64, removal types.Removal,
) (*types.Moderation, error) {
	return m.updateByCase(ctx, caseNumber, func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.Set("active = false").
			Set("expunged_by = ?", removal.ActorID).
			Set("expunged_reason = ?", removal.Reason).
			Set("expunged_at = ?", removal.At)
	})
}

func (m *ModerationModel) updateByCase(
	ctx context.Context, caseNumber int64, apply func(*bun.UpdateQuery) *bun.UpdateQuery,
) (*types.Moderation, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (*types.Moderation, error) {
		record := new(types.Moderation)

		res, err := apply(m.db.NewUpdate().Model(record)).
			Where("case_number = ?", caseNumber).
			Returning("*").
			Exec(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to update case %d: %w", caseNumber, err)
		}

		rows, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("failed to get rows affected: %w", err)
		}

		if rows == 0 {
			return nil, nil
		}

		return record, nil
	})
}
