package types

import (
	"time"

	"github.com/robalyx/modcase/internal/database/types/enum"
)

// Moderation represents a single issued moderation case.
// Records are never physically deleted; expungement is a terminal state
// that hides the case from user-facing history while keeping it for audit.
type Moderation struct {
	ID          int64               `bun:",pk,autoincrement"`
	CaseNumber  int64               `bun:",notnull,unique"` // Globally unique, strictly increasing
	Kind        enum.ModerationKind `bun:",notnull"`
	UserID      uint64              `bun:",notnull"`  // Subject of the action
	ModeratorID uint64              `bun:",notnull"`  // Issuer of the action
	RoleID      uint64              `bun:",nullzero"` // Role payload for rolepersist
	Reason      string              `bun:",type:text"`
	Link        string              `bun:",type:text"` // Provenance (message link etc.)
	IssuedAt    time.Time           `bun:",notnull"`
	Duration    *time.Duration      `bun:",nullzero"` // Null means permanent
	Active      bool                `bun:",notnull"`  // Effect should currently be applied
	AutoRemoved bool                `bun:",notnull,default:false"`

	RemovedBy     uint64     `bun:",nullzero"`
	RemovedReason string     `bun:",type:text"`
	RemovedAt     *time.Time `bun:",nullzero"`

	ExpungedBy     uint64     `bun:",nullzero"`
	ExpungedReason string     `bun:",type:text"`
	ExpungedAt     *time.Time `bun:",nullzero"`
}

// Removal captures who ended a moderation and why.
type Removal struct {
	ActorID uint64
	Reason  string
	At      time.Time
}

// IsPermanent checks if the moderation has no natural expiry.
func (m *Moderation) IsPermanent() bool {
	return m.Duration == nil
}

// IsRemoved checks if the moderation was ended before or at expiry.
func (m *Moderation) IsRemoved() bool {
	return m.RemovedAt != nil
}

// IsExpunged checks if the moderation was struck from the record.
func (m *Moderation) IsExpunged() bool {
	return m.ExpungedAt != nil
}

// EndTime returns the natural end of the moderation and whether one exists.
func (m *Moderation) EndTime() (time.Time, bool) {
	if m.Duration == nil {
		return time.Time{}, false
	}

	return m.IssuedAt.Add(*m.Duration), true
}

// IsExpired checks if the moderation's natural end time has passed.
func (m *Moderation) IsExpired() bool {
	end, ok := m.EndTime()
	return ok && time.Now().After(end)
}

// CaseCounter is a persisted named sequence. The moderation case sequence
// is the single row named "moderation".
type CaseCounter struct {
	Name  string `bun:",pk"`
	Value int64  `bun:",notnull"`
}

// ModerationCounterName is the counter row backing case number allocation.
const ModerationCounterName = "moderation"
