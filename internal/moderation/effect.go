package moderation

import (
	"context"

	"github.com/robalyx/modcase/internal/database/types"
)

// Effect applies and removes the external consequence of a moderation kind,
// e.g. a Discord role or ban. Implementations must be idempotent: applying an
// already-applied effect and removing an already-removed one both succeed.
type Effect interface {
	// Apply puts the effect in place for the record's subject.
	Apply(ctx context.Context, record *types.Moderation) error
	// Remove takes the effect away from the record's subject.
	Remove(ctx context.Context, record *types.Moderation) error
	// IsApplied reports whether the effect is currently in place.
	IsApplied(ctx context.Context, record *types.Moderation) (bool, error)
}

// ForceRemover is an optional Effect extension that removes an effect by
// subject alone, without a backing record. Used by the forced revoke path to
// clean up external state the store does not know about.
type ForceRemover interface {
	ForceRemove(ctx context.Context, userID, roleID uint64) error
}
