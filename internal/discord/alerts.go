package discord

import (
	"context"
	"fmt"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ChannelAlerter posts operator alerts as embeds to a staff channel. Alerts
// are also written to the error log so a broken channel never hides them.
type ChannelAlerter struct {
	client    bot.Client
	channelID snowflake.ID
	logger    *zap.Logger
}

// NewChannelAlerter creates a ChannelAlerter targeting the given channel.
func NewChannelAlerter(client bot.Client, channelID uint64, logger *zap.Logger) *ChannelAlerter {
	return &ChannelAlerter{
		client:    client,
		channelID: snowflake.ID(channelID),
		logger:    logger.Named("alerts"),
	}
}

// Alert posts the message to the staff channel with the structured fields
// rendered into the embed.
func (a *ChannelAlerter) Alert(ctx context.Context, message string, fields ...zap.Field) {
	a.logger.Error(message, fields...)

	builder := discord.NewEmbedBuilder().
		SetTitle("Moderation alert").
		SetDescription(message).
		SetColor(0xED4245)

	enc := zapcore.NewMapObjectEncoder()
	for _, field := range fields {
		field.AddTo(enc)
	}

	for key, value := range enc.Fields {
		builder.AddField(key, fmt.Sprintf("%v", value), true)
	}

	_, err := a.client.Rest().CreateMessage(a.channelID,
		discord.NewMessageCreateBuilder().SetEmbeds(builder.Build()).Build(),
		rest.WithCtx(ctx))
	if err != nil {
		a.logger.Error("Failed to send alert to staff channel", zap.Error(err))
	}
}
