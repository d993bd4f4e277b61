package gateway

import (
	"context"
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

type TelegramGateway struct {
	Bot    *tgbotapi.BotAPI
	Submit Submitter
	Routes Binder
	logger *zap.Logger
}

func NewTelegramGateway(token string, submit Submitter, routes Binder, logger *zap.Logger) (*TelegramGateway, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return newTelegramGateway(bot, submit, routes, logger), nil
}

func newTelegramGateway(bot *tgbotapi.BotAPI, submit Submitter, routes Binder, logger *zap.Logger) *TelegramGateway {
	logger = logger.Named("telegram")
	logger.Info("authorized", zap.String("account", bot.Self.UserName))
	return &TelegramGateway{Bot: bot, Submit: submit, Routes: routes, logger: logger}
}

func (tg *TelegramGateway) Start() error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := tg.Bot.GetUpdatesChan(u)
	for update := range updates {
		tg.handle(context.Background(), update)
	}
	return nil
}

func (tg *TelegramGateway) handle(ctx context.Context, update tgbotapi.Update) {
	if update.Message == nil || update.Message.Text == "" {
		return
	}
	chatID := strconv.FormatInt(update.Message.Chat.ID, 10)
	from := ""
	if update.Message.From != nil {
		from = update.Message.From.UserName
	}

	queryID, reply, err := dispatch(ctx, tg.Submit, tg.Routes, chatID, update.Message.Text)
	if err != nil {
		tg.logger.Warn("failed to submit query", zap.String("chat_id", chatID), zap.Error(err))
	} else if queryID != "" {
		tg.logger.Info("query received",
			zap.String("from", from), zap.String("chat_id", chatID), zap.String("query_id", queryID))
	}

	msg := tgbotapi.NewMessage(update.Message.Chat.ID, reply)
	msg.ReplyToMessageID = update.Message.MessageID
	if _, err := tg.Bot.Send(msg); err != nil {
		tg.logger.Warn("failed to reply", zap.String("chat_id", chatID), zap.Error(err))
	}
}

func (tg *TelegramGateway) Send(chatID string, text string) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil || id == 0 {
		return fmt.Errorf("invalid chat ID: %s", chatID)
	}

	msg := tgbotapi.NewMessage(id, text)
	_, err = tg.Bot.Send(msg)
	return err
}

func (tg *TelegramGateway) Stop() error {
	tg.Bot.StopReceivingUpdates()
	return nil
}
