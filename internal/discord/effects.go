// Package discord implements the external effect providers that enact
// moderation cases on a Discord guild through disgo.
package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/modcase/internal/database/types"
)

// isNotFound reports whether an error is a Discord 404, which effect checks
// treat as "not applied" rather than a failure.
func isNotFound(err error) bool {
	var restErr *rest.Error
	return errors.As(err, &restErr) &&
		restErr.Response != nil &&
		restErr.Response.StatusCode == http.StatusNotFound
}

func auditReason(record *types.Moderation) rest.RequestOpt {
	return rest.WithReason(fmt.Sprintf("Case %d: %s", record.CaseNumber, record.Reason))
}

// memberHasRole checks whether a guild member currently carries a role.
// A 404 on the member lookup means they left the guild, so the role cannot
// be applied.
func memberHasRole(
	ctx context.Context, client bot.Client, guildID, userID, roleID snowflake.ID,
) (bool, error) {
	member, err := client.Rest().GetMember(guildID, userID, rest.WithCtx(ctx))
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}

		return false, fmt.Errorf("failed to get member: %w", err)
	}

	for _, id := range member.RoleIDs {
		if id == roleID {
			return true, nil
		}
	}

	return false, nil
}

// MuteEffect enacts mutes by granting and revoking the guild's mute role.
type MuteEffect struct {
	client     bot.Client
	guildID    snowflake.ID
	muteRoleID snowflake.ID
}

// NewMuteEffect creates a MuteEffect for the configured guild and mute role.
func NewMuteEffect(client bot.Client, guildID, muteRoleID uint64) *MuteEffect {
	return &MuteEffect{
		client:     client,
		guildID:    snowflake.ID(guildID),
		muteRoleID: snowflake.ID(muteRoleID),
	}
}

func (e *MuteEffect) Apply(ctx context.Context, record *types.Moderation) error {
	err := e.client.Rest().AddMemberRole(
		e.guildID, snowflake.ID(record.UserID), e.muteRoleID,
		rest.WithCtx(ctx), auditReason(record))
	if err != nil {
		return fmt.Errorf("failed to add mute role: %w", err)
	}

	return nil
}

func (e *MuteEffect) Remove(ctx context.Context, record *types.Moderation) error {
	err := e.client.Rest().RemoveMemberRole(
		e.guildID, snowflake.ID(record.UserID), e.muteRoleID,
		rest.WithCtx(ctx), auditReason(record))
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("failed to remove mute role: %w", err)
	}

	return nil
}

func (e *MuteEffect) IsApplied(ctx context.Context, record *types.Moderation) (bool, error) {
	return memberHasRole(ctx, e.client, e.guildID, snowflake.ID(record.UserID), e.muteRoleID)
}

// ForceRemove takes the mute role off a member with no backing record.
func (e *MuteEffect) ForceRemove(ctx context.Context, userID, _ uint64) error {
	err := e.client.Rest().RemoveMemberRole(
		e.guildID, snowflake.ID(userID), e.muteRoleID,
		rest.WithCtx(ctx), rest.WithReason("Forced mute removal"))
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("failed to remove mute role: %w", err)
	}

	return nil
}

// RolePersistEffect enacts role persists; the role comes from each record's
// payload rather than configuration.
type RolePersistEffect struct {
	client  bot.Client
	guildID snowflake.ID
}

// NewRolePersistEffect creates a RolePersistEffect for the configured guild.
func NewRolePersistEffect(client bot.Client, guildID uint64) *RolePersistEffect {
	return &RolePersistEffect{
		client:  client,
		guildID: snowflake.ID(guildID),
	}
}

func (e *RolePersistEffect) Apply(ctx context.Context, record *types.Moderation) error {
	err := e.client.Rest().AddMemberRole(
		e.guildID, snowflake.ID(record.UserID), snowflake.ID(record.RoleID),
		rest.WithCtx(ctx), auditReason(record))
	if err != nil {
		return fmt.Errorf("failed to add persisted role: %w", err)
	}

	return nil
}

func (e *RolePersistEffect) Remove(ctx context.Context, record *types.Moderation) error {
	err := e.client.Rest().RemoveMemberRole(
		e.guildID, snowflake.ID(record.UserID), snowflake.ID(record.RoleID),
		rest.WithCtx(ctx), auditReason(record))
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("failed to remove persisted role: %w", err)
	}

	return nil
}

func (e *RolePersistEffect) IsApplied(ctx context.Context, record *types.Moderation) (bool, error) {
	return memberHasRole(
		ctx, e.client, e.guildID, snowflake.ID(record.UserID), snowflake.ID(record.RoleID))
}

// ForceRemove takes a persisted role off a member with no backing record.
func (e *RolePersistEffect) ForceRemove(ctx context.Context, userID, roleID uint64) error {
	err := e.client.Rest().RemoveMemberRole(
		e.guildID, snowflake.ID(userID), snowflake.ID(roleID),
		rest.WithCtx(ctx), rest.WithReason("Forced role persist removal"))
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("failed to remove persisted role: %w", err)
	}

	return nil
}

// BanEffect enacts bans through the guild ban list.
type BanEffect struct {
	client  bot.Client
	guildID snowflake.ID
}

// NewBanEffect creates a BanEffect for the configured guild.
func NewBanEffect(client bot.Client, guildID uint64) *BanEffect {
	return &BanEffect{
		client:  client,
		guildID: snowflake.ID(guildID),
	}
}

func (e *BanEffect) Apply(ctx context.Context, record *types.Moderation) error {
	err := e.client.Rest().AddBan(
		e.guildID, snowflake.ID(record.UserID), 0,
		rest.WithCtx(ctx), auditReason(record))
	if err != nil {
		return fmt.Errorf("failed to ban user: %w", err)
	}

	return nil
}

func (e *BanEffect) Remove(ctx context.Context, record *types.Moderation) error {
	err := e.client.Rest().DeleteBan(
		e.guildID, snowflake.ID(record.UserID),
		rest.WithCtx(ctx), auditReason(record))
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("failed to unban user: %w", err)
	}

	return nil
}

func (e *BanEffect) IsApplied(ctx context.Context, record *types.Moderation) (bool, error) {
	_, err := e.client.Rest().GetBan(e.guildID, snowflake.ID(record.UserID), rest.WithCtx(ctx))
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}

		return false, fmt.Errorf("failed to get ban: %w", err)
	}

	return true, nil
}

// ForceRemove unbans a user with no backing record.
func (e *BanEffect) ForceRemove(ctx context.Context, userID, _ uint64) error {
	err := e.client.Rest().DeleteBan(
		e.guildID, snowflake.ID(userID),
		rest.WithCtx(ctx), rest.WithReason("Forced unban"))
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("failed to unban user: %w", err)
	}

	return nil
}

// KickEffect enacts kicks. Kicks are once-off: applying removes the member
// and there is nothing to undo afterwards.
type KickEffect struct {
	client  bot.Client
	guildID snowflake.ID
}

// NewKickEffect creates a KickEffect for the configured guild.
func NewKickEffect(client bot.Client, guildID uint64) *KickEffect {
	return &KickEffect{
		client:  client,
		guildID: snowflake.ID(guildID),
	}
}

func (e *KickEffect) Apply(ctx context.Context, record *types.Moderation) error {
	err := e.client.Rest().RemoveMember(
		e.guildID, snowflake.ID(record.UserID),
		rest.WithCtx(ctx), auditReason(record))
	if err != nil {
		return fmt.Errorf("failed to kick user: %w", err)
	}

	return nil
}

func (e *KickEffect) Remove(context.Context, *types.Moderation) error {
	return nil
}

func (e *KickEffect) IsApplied(context.Context, *types.Moderation) (bool, error) {
	return false, nil
}

// NoopEffect backs bookkeeping-only kinds like warns and notes.
type NoopEffect struct{}

// NewNoopEffect creates a NoopEffect.
func NewNoopEffect() *NoopEffect {
	return &NoopEffect{}
}

func (*NoopEffect) Apply(context.Context, *types.Moderation) error {
	return nil
}

func (*NoopEffect) Remove(context.Context, *types.Moderation) error {
	return nil
}

func (*NoopEffect) IsApplied(context.Context, *types.Moderation) (bool, error) {
	return false, nil
}
