package migrations

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		_, err := db.NewRaw(`
			-- Expiry scans and recovery walk active records per kind
			CREATE INDEX IF NOT EXISTS idx_moderations_kind_active
			ON moderations (kind, active)
			WHERE active = true;

			-- Duplicate window and reference counting look up a subject's records
			CREATE INDEX IF NOT EXISTS idx_moderations_user_kind_active
			ON moderations (user_id, kind, active);

			-- Case history queries exclude expunged records, newest first
			CREATE INDEX IF NOT EXISTS idx_moderations_user_history
			ON moderations (user_id, issued_at DESC)
			WHERE expunged_at IS NULL;
		`).Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to create indexes: %w", err)
		}

		return nil
	}, func(ctx context.Context, db *bun.DB) error {
		_, err := db.NewRaw(`
			DROP INDEX IF EXISTS idx_moderations_kind_active;
			DROP INDEX IF EXISTS idx_moderations_user_kind_active;
			DROP INDEX IF EXISTS idx_moderations_user_history;
		`).Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to drop indexes: %w", err)
		}

		return nil
	})
}
