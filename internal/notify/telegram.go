package notify

import (
	"context"
	"fmt"
	"os"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/dgnsrekt/outingsync/internal/sync"
)

// TelegramConfig holds Telegram bot settings.
type TelegramConfig struct {
	Token  string
	ChatID int64
}

// LoadTelegramConfig reads TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID. It
// returns nil when no token is set.
func LoadTelegramConfig() (*TelegramConfig, error) {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		return nil, nil
	}
	chatID, err := strconv.ParseInt(os.Getenv("TELEGRAM_CHAT_ID"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
	}
	return &TelegramConfig{Token: token, ChatID: chatID}, nil
}

type messageSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram delivers toasts and alerts as chat messages.
type Telegram struct {
	bot    messageSender
	chatID int64
	logger *zap.Logger
}

// NewTelegram connects to the Bot API. It fails when the token is rejected.
func NewTelegram(cfg *TelegramConfig, logger *zap.Logger) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("connecting telegram bot: %w", err)
	}
	return &Telegram{bot: bot, chatID: cfg.ChatID, logger: logger}, nil
}

func (t *Telegram) Toast(_ context.Context, n sync.Notice) error {
	title, body := FormatNotice(n)
	return t.send(title + "\n" + body)
}

func (t *Telegram) Alert(_ context.Context, title, message string) error {
	return t.send(title + "\n" + message)
}

func (t *Telegram) send(text string) error {
	if _, err := t.bot.Send(tgbotapi.NewMessage(t.chatID, text)); err != nil {
		t.logger.Warn("telegram send failed", zap.Error(err))
		return fmt.Errorf("sending telegram message: %w", err)
	}
	return nil
}
