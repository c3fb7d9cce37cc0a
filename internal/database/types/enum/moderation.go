package enum

import "fmt"

// ModerationKind represents the closed set of moderation action kinds.
type ModerationKind int

const (
	// ModerationKindMute restricts a member from speaking via the mute role.
	ModerationKindMute ModerationKind = iota
	// ModerationKindBan removes a member from the guild until unbanned.
	ModerationKindBan
	// ModerationKindKick removes a member from the guild once.
	ModerationKindKick
	// ModerationKindWarn records a formal warning.
	ModerationKindWarn
	// ModerationKindNote records a staff-only note.
	ModerationKindNote
	// ModerationKindRolePersist pins a role to a member across leave/rejoin.
	ModerationKindRolePersist
)

var moderationKindNames = map[ModerationKind]string{
	ModerationKindMute:        "mute",
	ModerationKindBan:         "ban",
	ModerationKindKick:        "kick",
	ModerationKindWarn:        "warn",
	ModerationKindNote:        "note",
	ModerationKindRolePersist: "rolepersist",
}

// ModerationKinds returns all kinds in declaration order.
func ModerationKinds() []ModerationKind {
	return []ModerationKind{
		ModerationKindMute,
		ModerationKindBan,
		ModerationKindKick,
		ModerationKindWarn,
		ModerationKindNote,
		ModerationKindRolePersist,
	}
}

func (k ModerationKind) String() string {
	if name, ok := moderationKindNames[k]; ok {
		return name
	}

	return fmt.Sprintf("ModerationKind(%d)", int(k))
}

// ModerationKindString converts a name back to its kind value.
func ModerationKindString(name string) (ModerationKind, error) {
	for kind, kindName := range moderationKindNames {
		if kindName == name {
			return kind, nil
		}
	}

	return 0, fmt.Errorf("%q does not belong to ModerationKind values", name)
}

// IsOnceOff reports whether the kind is applied exactly once and never
// carries a duration (warns, kicks and notes cannot be "in effect").
func (k ModerationKind) IsOnceOff() bool {
	switch k {
	case ModerationKindWarn, ModerationKindKick, ModerationKindNote:
		return true
	default:
		return false
	}
}

// HasPayload reports whether records of this kind carry a sub-identity
// that distinguishes otherwise identical actions (the persisted role).
func (k ModerationKind) HasPayload() bool {
	return k == ModerationKindRolePersist
}
