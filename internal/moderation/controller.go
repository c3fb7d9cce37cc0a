// Package moderation implements the lifecycle of disciplinary cases: atomic
// issuance with globally ordered case numbers, scheduled expiry, revocation
// with reference-counted effect removal, and startup reconciliation against
// the external platform.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robalyx/modcase/internal/database/types"
	"github.com/robalyx/modcase/internal/database/types/enum"
	"github.com/robalyx/modcase/internal/moderation/events"
	"github.com/robalyx/modcase/internal/moderation/scheduler"
	"go.uber.org/zap"
)

var (
	// ErrSelfTarget is returned when a moderator targets themselves.
	ErrSelfTarget = errors.New("moderators cannot target themselves")
	// ErrInsufficientRank is returned when the issuer does not outrank the subject.
	ErrInsufficientRank = errors.New("issuer does not outrank the subject")
	// ErrNoActiveRecord is returned by Revoke when the subject has no active
	// case of the kind and the caller did not allow a forced removal.
	ErrNoActiveRecord = errors.New("no active moderation found")
)

const (
	// DefaultDuplicateWindow suppresses re-issuing the same action within
	// this span after the first.
	DefaultDuplicateWindow = 5 * time.Minute
	// DefaultExpiryLeeway is how early a timer may fire before the
	// controller treats it as a clock anomaly.
	DefaultExpiryLeeway = time.Second
	// autoRemoveReason marks removals produced by the expiry timer.
	autoRemoveReason = "Auto"
)

// Store is the persistence surface the controller needs. Implemented by
// models.ModerationModel.
type Store interface {
	Insert(ctx context.Context, record *types.Moderation) error
	Get(ctx context.Context, id int64) (*types.Moderation, error)
	GetActiveByKind(ctx context.Context, kind enum.ModerationKind) ([]*types.Moderation, error)
	GetActiveForUser(ctx context.Context, userID uint64) ([]*types.Moderation, error)
	FindRecentDuplicate(
		ctx context.Context, kind enum.ModerationKind, userID, roleID uint64, since time.Time,
	) (*types.Moderation, error)
	CountOtherActive(
		ctx context.Context, kind enum.ModerationKind, userID, roleID uint64, excludeID int64,
	) (int, error)
	MarkInactive(ctx context.Context, id int64) error
	MarkRemoved(ctx context.Context, id int64, removal types.Removal, auto bool) error
	RevokeLatestActive(
		ctx context.Context, kind enum.ModerationKind, userID, roleID uint64, removal types.Removal,
	) (*types.Moderation, error)
}

// IssueRequest describes a new case to issue. Ranks are resolved by the
// caller (the command layer knows the guild's role hierarchy).
type IssueRequest struct {
	UserID        uint64
	ModeratorID   uint64
	UserRank      int
	ModeratorRank int
	RoleID        uint64 // Role payload for rolepersist kinds
	Duration      *time.Duration
	Reason        string
	Link          string
}

// IssueResult is the typed outcome of Issue. Exactly one of Record and
// DuplicateOf is set: DuplicateOf carries the earlier case that suppressed
// this issuance.
type IssueResult struct {
	Record      *types.Moderation
	DuplicateOf *types.Moderation
}

// RevokeRequest describes the removal of a subject's latest active case.
type RevokeRequest struct {
	UserID      uint64
	ModeratorID uint64
	RoleID      uint64
	Reason      string
	// AllowMissing permits removing the external effect even when no active
	// record exists, to clean up drift.
	AllowMissing bool
}

// RevokeResult is the typed outcome of Revoke.
type RevokeResult struct {
	Record *types.Moderation
	// RemainingActive counts other active cases that kept the external
	// effect in place.
	RemainingActive int
	// Forced is true when the effect was removed without a backing record.
	Forced bool
}

// Config carries the controller's dependencies.
type Config struct {
	Kind      enum.ModerationKind
	Store     Store
	Allocator *CaseAllocator
	Effect    Effect
	Hub       *events.Hub
	Alerter   Alerter
	Logger    *zap.Logger

	// IssueMu is the process-wide issuance mutex, shared by all controllers
	// so case numbers are allocated in persist order.
	IssueMu *sync.Mutex

	// SystemActorID attributes automatic removals.
	SystemActorID uint64

	DuplicateWindow time.Duration
	ExpiryLeeway    time.Duration
}

// Controller drives the lifecycle of one moderation kind. It owns the kind's
// expiry scheduler and subscribes to the update bus at construction.
type Controller struct {
	kind      enum.ModerationKind
	store     Store
	allocator *CaseAllocator
	effect    Effect
	hub       *events.Hub
	alerter   Alerter
	logger    *zap.Logger

	issueMu         *sync.Mutex
	systemActorID   uint64
	duplicateWindow time.Duration
	expiryLeeway    time.Duration

	sched *scheduler.Scheduler[int64, int64]
}

// NewController creates the controller for a kind and wires it to the update
// bus. ctx bounds all scheduler-initiated work.
func NewController(ctx context.Context, cfg Config) *Controller {
	if cfg.DuplicateWindow == 0 {
		cfg.DuplicateWindow = DefaultDuplicateWindow
	}

	if cfg.ExpiryLeeway == 0 {
		cfg.ExpiryLeeway = DefaultExpiryLeeway
	}

	c := &Controller{
		kind:            cfg.Kind,
		store:           cfg.Store,
		allocator:       cfg.Allocator,
		effect:          cfg.Effect,
		hub:             cfg.Hub,
		alerter:         cfg.Alerter,
		logger:          cfg.Logger.Named("controller").With(zap.Stringer("kind", cfg.Kind)),
		issueMu:         cfg.IssueMu,
		systemActorID:   cfg.SystemActorID,
		duplicateWindow: cfg.DuplicateWindow,
		expiryLeeway:    cfg.ExpiryLeeway,
	}

	c.sched = scheduler.New(ctx, c.handleExpire, func(id int64) int64 { return id }, c.logger)

	c.hub.Subscribe(events.ModerationUpdated, c.handleUpdate)

	return c
}

// Kind returns the moderation kind this controller manages.
func (c *Controller) Kind() enum.ModerationKind {
	return c.kind
}

// Stop cancels the expiry scheduler.
func (c *Controller) Stop() {
	c.sched.Stop()
}

// Issue validates, applies and records a new case. Duplicate issuance within
// the window returns a result carrying the earlier case instead of an error.
//
// The sequence under the issuance mutex is fixed: apply effect, allocate case
// number, persist, schedule, publish. Allocation and persistence must not
// interleave across issuers or case numbers would not match persist order.
func (c *Controller) Issue(ctx context.Context, req IssueRequest) (*IssueResult, error) {
	if req.UserID == req.ModeratorID {
		return nil, ErrSelfTarget
	}

	if req.ModeratorRank <= req.UserRank {
		return nil, ErrInsufficientRank
	}

	if req.Duration != nil && c.kind.IsOnceOff() {
		return nil, fmt.Errorf("%s moderations cannot carry a duration", c.kind)
	}

	if !c.kind.IsOnceOff() {
		dup, err := c.store.FindRecentDuplicate(
			ctx, c.kind, req.UserID, req.RoleID, time.Now().Add(-c.duplicateWindow))
		if err != nil {
			return nil, fmt.Errorf("failed to check for duplicate: %w", err)
		}

		// Overlapping actions with different durations are deliberate
		// stacking, not a double-submit; only identical requests suppress
		if dup != nil && sameDuration(dup.Duration, req.Duration) {
			c.logger.Info("Suppressed duplicate issuance",
				zap.Uint64("user_id", req.UserID),
				zap.Int64("duplicate_of", dup.CaseNumber))

			return &IssueResult{DuplicateOf: dup}, nil
		}
	}

	c.issueMu.Lock()
	defer c.issueMu.Unlock()

	record := &types.Moderation{
		Kind:        c.kind,
		UserID:      req.UserID,
		ModeratorID: req.ModeratorID,
		RoleID:      req.RoleID,
		Reason:      req.Reason,
		Link:        req.Link,
		IssuedAt:    time.Now(),
		Duration:    req.Duration,
		Active:      true,
	}

	if err := c.effect.Apply(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to apply effect: %w", err)
	}

	caseNumber, err := c.allocator.NextCase(ctx)
	if err != nil {
		c.alerter.Alert(ctx, "Effect applied but case allocation failed",
			zap.Uint64("user_id", req.UserID),
			zap.Stringer("kind", c.kind),
			zap.Error(err))

		return nil, err
	}

	record.CaseNumber = caseNumber

	if err := c.store.Insert(ctx, record); err != nil {
		c.alerter.Alert(ctx, "Effect applied but record insert failed",
			zap.Uint64("user_id", req.UserID),
			zap.Int64("case_number", caseNumber),
			zap.Error(err))

		return nil, fmt.Errorf("failed to insert record: %w", err)
	}

	if end, ok := record.EndTime(); ok && !c.kind.IsOnceOff() {
		c.sched.Insert(end, record.ID)
	}

	c.hub.Publish(ctx, events.ModerationIssued, record)

	c.logger.Info("Issued moderation",
		zap.Int64("case_number", record.CaseNumber),
		zap.Uint64("user_id", record.UserID),
		zap.String("duration", FormatDuration(record.Duration)))

	return &IssueResult{Record: record}, nil
}

func sameDuration(a, b *time.Duration) bool {
	if a == nil || b == nil {
		return a == b
	}

	return *a == *b
}

// Subject pairs a target with its resolved rank for MultiIssue.
type Subject struct {
	UserID uint64
	Rank   int
}

// MultiOutcome is the per-subject result of a MultiIssue call.
type MultiOutcome struct {
	UserID uint64
	Result *IssueResult
	Err    error
}

// MultiIssue issues the same action against many subjects, continuing past
// per-subject failures. Outcomes are returned in input order.
func (c *Controller) MultiIssue(
	ctx context.Context, subjects []Subject, req IssueRequest,
) []MultiOutcome {
	outcomes := make([]MultiOutcome, 0, len(subjects))

	for _, subject := range subjects {
		perReq := req
		perReq.UserID = subject.UserID
		perReq.UserRank = subject.Rank

		result, err := c.Issue(ctx, perReq)
		if err != nil {
			c.logger.Warn("Issuance failed for subject",
				zap.Uint64("user_id", subject.UserID),
				zap.Error(err))
		}

		outcomes = append(outcomes, MultiOutcome{
			UserID: subject.UserID,
			Result: result,
			Err:    err,
		})
	}

	return outcomes
}

// Revoke ends the subject's most recently issued active case. The external
// effect is removed only when no other active case of the same kind and
// payload still needs it; the count of such cases is reported to the caller.
func (c *Controller) Revoke(ctx context.Context, req RevokeRequest) (*RevokeResult, error) {
	if c.kind.IsOnceOff() {
		return nil, fmt.Errorf("%s moderations cannot be revoked", c.kind)
	}

	removal := types.Removal{
		ActorID: req.ModeratorID,
		Reason:  req.Reason,
		At:      time.Now(),
	}

	record, err := c.store.RevokeLatestActive(ctx, c.kind, req.UserID, req.RoleID, removal)
	if err != nil {
		return nil, fmt.Errorf("failed to revoke: %w", err)
	}

	if record == nil {
		forcer, ok := c.effect.(ForceRemover)
		if !req.AllowMissing || !ok {
			return nil, ErrNoActiveRecord
		}

		if err := forcer.ForceRemove(ctx, req.UserID, req.RoleID); err != nil {
			return nil, fmt.Errorf("failed to force-remove effect: %w", err)
		}

		c.logger.Info("Force-removed effect without record",
			zap.Uint64("user_id", req.UserID))

		return &RevokeResult{Forced: true}, nil
	}

	c.sched.Remove(record.ID)

	remaining, err := c.store.CountOtherActive(ctx, c.kind, record.UserID, record.RoleID, record.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count active records: %w", err)
	}

	if remaining == 0 {
		// Record is already marked removed; a failed external removal is
		// alerted rather than rolled back
		if err := c.effect.Remove(ctx, record); err != nil {
			c.alerter.Alert(ctx, "Failed to remove effect during revoke",
				zap.Int64("case_number", record.CaseNumber),
				zap.Uint64("user_id", record.UserID),
				zap.Error(err))
		}
	}

	c.logger.Info("Revoked moderation",
		zap.Int64("case_number", record.CaseNumber),
		zap.Uint64("user_id", record.UserID),
		zap.Int("remaining_active", remaining))

	return &RevokeResult{Record: record, RemainingActive: remaining}, nil
}

// handleExpire runs when a scheduled case comes due. The record is re-read
// first; the scheduled snapshot may be stale after edits or revocations.
func (c *Controller) handleExpire(ctx context.Context, id int64) error {
	record, err := c.store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to read record %d: %w", id, err)
	}

	if record == nil {
		c.logger.Warn("Scheduled record no longer exists", zap.Int64("id", id))
		return nil
	}

	if !record.Active {
		return nil
	}

	// Removal metadata with the active flag still set means an import or a
	// manual edit left the record half-finished; correct it without touching
	// external state
	if record.IsRemoved() || record.IsExpunged() {
		if err := c.store.MarkInactive(ctx, record.ID); err != nil {
			return fmt.Errorf("failed to correct inconsistent record %d: %w", id, err)
		}

		c.alerter.Alert(ctx, "Corrected record that was active with removal metadata",
			zap.Int64("case_number", record.CaseNumber))

		return nil
	}

	end, ok := record.EndTime()
	if !ok {
		c.alerter.Alert(ctx, "Permanent record reached the expiry scheduler",
			zap.Int64("case_number", record.CaseNumber))

		return nil
	}

	if time.Now().Add(c.expiryLeeway).Before(end) {
		c.alerter.Alert(ctx, "Expiry fired before the record's end time",
			zap.Int64("case_number", record.CaseNumber),
			zap.Time("end_time", end))

		return nil
	}

	remaining, err := c.store.CountOtherActive(ctx, c.kind, record.UserID, record.RoleID, record.ID)
	if err != nil {
		return fmt.Errorf("failed to count active records: %w", err)
	}

	if remaining == 0 {
		if err := c.effect.Remove(ctx, record); err != nil {
			c.alerter.Alert(ctx, "Failed to remove effect on expiry",
				zap.Int64("case_number", record.CaseNumber),
				zap.Uint64("user_id", record.UserID),
				zap.Error(err))
		}
	}

	removal := types.Removal{
		ActorID: c.systemActorID,
		Reason:  autoRemoveReason,
		At:      time.Now(),
	}

	if err := c.store.MarkRemoved(ctx, record.ID, removal, true); err != nil {
		return fmt.Errorf("failed to mark record %d removed: %w", id, err)
	}

	c.logger.Info("Moderation expired",
		zap.Int64("case_number", record.CaseNumber),
		zap.Uint64("user_id", record.UserID),
		zap.Int("remaining_active", remaining))

	return nil
}

// handleUpdate reconciles scheduler and external state after a record of this
// kind changed outside the issuance path (edit, expungement, duration change).
func (c *Controller) handleUpdate(ctx context.Context, update events.Update) {
	record := update.Record
	if record.Kind != c.kind {
		return
	}

	// The scheduled entry reflects the old state; drop it before deciding
	// what the new state needs
	c.sched.Remove(record.ID)

	if c.kind.IsOnceOff() {
		return
	}

	if record.Active && !record.IsExpunged() {
		if end, ok := record.EndTime(); ok {
			c.sched.Insert(end, record.ID)
		}

		applied, err := c.effect.IsApplied(ctx, record)
		if err != nil {
			c.logger.Error("Failed to check effect state",
				zap.Int64("case_number", record.CaseNumber),
				zap.Error(err))

			return
		}

		if !applied {
			if err := c.effect.Apply(ctx, record); err != nil {
				c.alerter.Alert(ctx, "Failed to re-apply effect after update",
					zap.Int64("case_number", record.CaseNumber),
					zap.Uint64("user_id", record.UserID),
					zap.Error(err))
			}
		}

		return
	}

	remaining, err := c.store.CountOtherActive(ctx, c.kind, record.UserID, record.RoleID, record.ID)
	if err != nil {
		c.logger.Error("Failed to count active records",
			zap.Int64("case_number", record.CaseNumber),
			zap.Error(err))

		return
	}

	if remaining > 0 {
		return
	}

	applied, err := c.effect.IsApplied(ctx, record)
	if err != nil {
		c.logger.Error("Failed to check effect state",
			zap.Int64("case_number", record.CaseNumber),
			zap.Error(err))

		return
	}

	if applied {
		if err := c.effect.Remove(ctx, record); err != nil {
			c.alerter.Alert(ctx, "Failed to remove effect after update",
				zap.Int64("case_number", record.CaseNumber),
				zap.Uint64("user_id", record.UserID),
				zap.Error(err))
		}
	}
}

// Recover rebuilds scheduler state and repairs external drift after a
// restart. Running it twice with no external changes makes no further apply
// or remove calls.
func (c *Controller) Recover(ctx context.Context) error {
	records, err := c.store.GetActiveByKind(ctx, c.kind)
	if err != nil {
		return fmt.Errorf("failed to load active records: %w", err)
	}

	// Schedule time-limited records at their end time. Records carrying
	// removal metadata while still active are import artifacts; wake them
	// immediately so handleExpire corrects them
	items := make([]scheduler.Item[int64], 0, len(records))
	now := time.Now()

	for _, record := range records {
		if record.IsRemoved() || record.IsExpunged() {
			items = append(items, scheduler.Item[int64]{WakeAt: now, Value: record.ID})
			continue
		}

		if end, ok := record.EndTime(); ok && !c.kind.IsOnceOff() {
			items = append(items, scheduler.Item[int64]{WakeAt: end, Value: record.ID})
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].WakeAt.Before(items[j].WakeAt)
	})

	c.sched.BulkInsert(items)

	if !c.kind.IsOnceOff() {
		if err := c.reapplyMissing(ctx, records); err != nil {
			return err
		}
	}

	c.logger.Info("Recovery complete",
		zap.Int("active_records", len(records)),
		zap.Int("scheduled", len(items)))

	return nil
}

// reapplyMissing re-applies effects the external system lost while the
// process was down. Expired records are skipped; their own catch-up firing
// will handle them, and re-applying just to immediately remove is noise the
// subject would see.
func (c *Controller) reapplyMissing(ctx context.Context, records []*types.Moderation) error {
	pending := make([]*types.Moderation, 0, len(records))

	for _, record := range records {
		if record.IsRemoved() || record.IsExpunged() || record.IsExpired() {
			continue
		}

		pending = append(pending, record)
	}

	// Repair in end-time order so catch-up observably mirrors history;
	// permanent records go last
	sort.SliceStable(pending, func(i, j int) bool {
		endI, okI := pending[i].EndTime()
		endJ, okJ := pending[j].EndTime()

		switch {
		case okI && okJ:
			return endI.Before(endJ)
		case okI:
			return true
		default:
			return false
		}
	})

	for _, record := range pending {
		applied, err := c.effect.IsApplied(ctx, record)
		if err != nil {
			c.logger.Error("Failed to check effect state during recovery",
				zap.Int64("case_number", record.CaseNumber),
				zap.Error(err))

			continue
		}

		if applied {
			continue
		}

		if err := c.effect.Apply(ctx, record); err != nil {
			c.alerter.Alert(ctx, "Failed to re-apply effect during recovery",
				zap.Int64("case_number", record.CaseNumber),
				zap.Uint64("user_id", record.UserID),
				zap.Error(err))

			continue
		}

		c.logger.Info("Re-applied missing effect",
			zap.Int64("case_number", record.CaseNumber),
			zap.Uint64("user_id", record.UserID))
	}

	return nil
}

// ReapplyForUser re-applies this kind's active effects for one subject, e.g.
// when a member rejoins the guild and their roles were lost.
func (c *Controller) ReapplyForUser(ctx context.Context, userID uint64) error {
	if c.kind.IsOnceOff() {
		return nil
	}

	records, err := c.store.GetActiveForUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load active records for user: %w", err)
	}

	matching := make([]*types.Moderation, 0, len(records))

	for _, record := range records {
		if record.Kind == c.kind {
			matching = append(matching, record)
		}
	}

	return c.reapplyMissing(ctx, matching)
}
