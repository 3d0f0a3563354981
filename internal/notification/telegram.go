package notification

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"dealscope/internal/models"
)

// TelegramService pushes alert events to a Telegram chat. It is an
// optional channel: without TELEGRAM_BOT_TOKEN it stays disabled.
type TelegramService struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegramService connects the bot if a token is configured. Returns
// nil when Telegram delivery is disabled.
func NewTelegramService() *TelegramService {
	token := viper.GetString("TELEGRAM_BOT_TOKEN")
	chatID := viper.GetInt64("TELEGRAM_CHAT_ID")
	if token == "" || chatID == 0 {
		logrus.Info("Telegram notifications disabled")
		return nil
	}

	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		logrus.WithError(err).Error("Failed to connect Telegram bot, channel disabled")
		return nil
	}
	logrus.WithField("bot", bot.Self.UserName).Info("Telegram notifications enabled")
	return &TelegramService{bot: bot, chatID: chatID}
}

// SendAlertNotification posts a compact alert summary. Nil-safe so the
// consumer can call it unconditionally.
func (ts *TelegramService) SendAlertNotification(event *models.AlertEvent) error {
	if ts == nil {
		return nil
	}

	var text string
	switch event.AlertType {
	case models.AlertDealDetected:
		text = fmt.Sprintf("🔥 Deal detected: %s at %.2f€ (%.1f%% below fair value)",
			event.Title, event.Price, -event.Deviation)
	case models.AlertPriceBelow:
		text = fmt.Sprintf("📉 %s dropped to %.2f€ (threshold %.2f€)",
			event.Title, event.Price, event.Threshold)
	case models.AlertPriceAbove:
		text = fmt.Sprintf("📈 %s rose to %.2f€ (threshold %.2f€)",
			event.Title, event.Price, event.Threshold)
	default:
		text = fmt.Sprintf("Alert: %s at %.2f€", event.Title, event.Price)
	}

	msg := tgbotapi.NewMessage(ts.chatID, text)
	if _, err := ts.bot.Send(msg); err != nil {
		logrus.WithError(err).Error("Failed to send Telegram message")
		return err
	}
	return nil
}
