package gateway

import (
	"context"
	"strings"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// DiscordPrefix marks channel messages addressed to the bot.
const DiscordPrefix = "!browse "

type DiscordGateway struct {
	Session *discordgo.Session
	Submit  Submitter
	Routes  Binder
	logger  *zap.Logger

	// reply is swapped in tests.
	reply func(channelID, text string) error
}

func NewDiscordGateway(token string, submit Submitter, routes Binder, logger *zap.Logger) (*DiscordGateway, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentMessageContent

	dg := &DiscordGateway{Session: session, Submit: submit, Routes: routes, logger: logger.Named("discord")}
	dg.reply = dg.Send
	return dg, nil
}

func (dg *DiscordGateway) Start() error {
	dg.Session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		selfID := ""
		if s.State != nil && s.State.User != nil {
			selfID = s.State.User.ID
		}
		dg.handle(context.Background(), selfID, m.Message)
	})
	if err := dg.Session.Open(); err != nil {
		return err
	}
	dg.logger.Info("session opened")
	return nil
}

func (dg *DiscordGateway) handle(ctx context.Context, selfID string, m *discordgo.Message) {
	if m == nil || (m.Author != nil && (m.Author.ID == selfID || m.Author.Bot)) {
		return
	}
	if !strings.HasPrefix(m.Content, DiscordPrefix) {
		return
	}

	queryID, reply, err := dispatch(ctx, dg.Submit, dg.Routes, m.ChannelID, strings.TrimPrefix(m.Content, DiscordPrefix))
	if err != nil {
		dg.logger.Warn("failed to submit query", zap.String("channel_id", m.ChannelID), zap.Error(err))
	} else if queryID != "" {
		dg.logger.Info("query received", zap.String("channel_id", m.ChannelID), zap.String("query_id", queryID))
	}
	if err := dg.reply(m.ChannelID, reply); err != nil {
		dg.logger.Warn("failed to reply", zap.String("channel_id", m.ChannelID), zap.Error(err))
	}
}

func (dg *DiscordGateway) Send(channelID string, text string) error {
	_, err := dg.Session.ChannelMessageSend(channelID, text)
	return err
}

func (dg *DiscordGateway) Stop() error {
	return dg.Session.Close()
}
