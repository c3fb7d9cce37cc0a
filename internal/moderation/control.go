package moderation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robalyx/modcase/internal/database/types"
	"github.com/robalyx/modcase/internal/moderation/events"
	"go.uber.org/zap"
)

// ErrCaseNotFound is returned when no case has the given number.
var ErrCaseNotFound = errors.New("case not found")

// CaseStore is the persistence surface for cross-kind case edits.
// Implemented by models.ModerationModel.
type CaseStore interface {
	GetByCaseNumber(ctx context.Context, caseNumber int64) (*types.Moderation, error)
	SetReason(ctx context.Context, caseNumber int64, reason string) (*types.Moderation, error)
	SetDuration(ctx context.Context, caseNumber int64, duration *time.Duration) (*types.Moderation, error)
	Expunge(ctx context.Context, caseNumber int64, removal types.Removal) (*types.Moderation, error)
}

// Control edits existing cases by number, across kinds. Every successful edit
// is published on the update bus so the owning controller re-schedules or
// removes the external effect as needed.
type Control struct {
	store  CaseStore
	hub    *events.Hub
	logger *zap.Logger
}

// NewControl creates a Control.
func NewControl(store CaseStore, hub *events.Hub, logger *zap.Logger) *Control {
	return &Control{
		store:  store,
		hub:    hub,
		logger: logger.Named("control"),
	}
}

// Get looks up a case by number.
func (c *Control) Get(ctx context.Context, caseNumber int64) (*types.Moderation, error) {
	record, err := c.store.GetByCaseNumber(ctx, caseNumber)
	if err != nil {
		return nil, err
	}

	if record == nil {
		return nil, ErrCaseNotFound
	}

	return record, nil
}

// SetReason replaces the reason of a case.
func (c *Control) SetReason(ctx context.Context, caseNumber int64, reason string) (*types.Moderation, error) {
	record, err := c.store.SetReason(ctx, caseNumber, reason)
	if err != nil {
		return nil, fmt.Errorf("failed to set reason: %w", err)
	}

	if record == nil {
		return nil, ErrCaseNotFound
	}

	c.hub.Publish(ctx, events.ModerationUpdated, record)

	c.logger.Info("Updated case reason", zap.Int64("case_number", caseNumber))

	return record, nil
}

// SetDuration extends or shortens a case. A nil duration makes it permanent.
// The owning controller re-arms its scheduler from the published update.
func (c *Control) SetDuration(
	ctx context.Context, caseNumber int64, duration *time.Duration,
) (*types.Moderation, error) {
	current, err := c.store.GetByCaseNumber(ctx, caseNumber)
	if err != nil {
		return nil, err
	}

	if current == nil {
		return nil, ErrCaseNotFound
	}

	if current.Kind.IsOnceOff() {
		return nil, fmt.Errorf("%s moderations cannot carry a duration", current.Kind)
	}

	record, err := c.store.SetDuration(ctx, caseNumber, duration)
	if err != nil {
		return nil, fmt.Errorf("failed to set duration: %w", err)
	}

	if record == nil {
		return nil, ErrCaseNotFound
	}

	c.hub.Publish(ctx, events.ModerationUpdated, record)

	c.logger.Info("Updated case duration",
		zap.Int64("case_number", caseNumber),
		zap.String("duration", FormatDuration(duration)))

	return record, nil
}

// Expunge strikes a case from user-facing history. The record is retained for
// audit; the update bus delivery lets the owning controller drop any pending
// expiry and remove the effect if nothing else needs it.
func (c *Control) Expunge(
	ctx context.Context, caseNumber int64, actorID uint64, reason string,
) (*types.Moderation, error) {
	removal := types.Removal{
		ActorID: actorID,
		Reason:  reason,
		At:      time.Now(),
	}

	record, err := c.store.Expunge(ctx, caseNumber, removal)
	if err != nil {
		return nil, fmt.Errorf("failed to expunge: %w", err)
	}

	if record == nil {
		return nil, ErrCaseNotFound
	}

	c.hub.Publish(ctx, events.ModerationUpdated, record)

	c.logger.Info("Expunged case",
		zap.Int64("case_number", caseNumber),
		zap.Uint64("actor_id", actorID))

	return record, nil
}
