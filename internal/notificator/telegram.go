package notificator

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"

	"github.com/Hamzat-Yaudarov/spn-vpn-bot-sub000/pkg/logger"
)

type TelegramNotificator struct {
	logger *logger.Logger
	bot    *bot.Bot
}

func NewTelegramNotificator(logger *logger.Logger, token string) (*TelegramNotificator, error) {
	b, err := bot.New(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %s", err)
	}
	return &TelegramNotificator{logger: logger, bot: b}, nil
}

// SendMessage delivers a message to the user's chat. Fire and forget:
// a delivery failure is logged and never escalated to the caller.
func (t *TelegramNotificator) SendMessage(tgID int64, text string) {
	params := &bot.SendMessageParams{
		ChatID: tgID,
		Text:   text,
	}
	_, err := t.bot.SendMessage(context.Background(), params)
	if err != nil {
		t.logger.Error("Failed to send notification ", "tg_id ", tgID, " error ", err)
	}
}
