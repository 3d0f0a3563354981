package notification

import (
	"encoding/json"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"dealscope/internal/kafka"
	"dealscope/internal/models"
)

// StartConsumer subscribes to the alert events topic and fans incoming
// triggers out to the configured channels. Returns the consumer's stop
// function.
func StartConsumer(db *gorm.DB) (func(), error) {
	email := NewEmailService(db)
	telegram := NewTelegramService()

	return kafka.SetupConsumer(kafka.TopicAlertEvents, func(payload []byte) {
		var event models.AlertEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			logrus.WithError(err).Error("Failed to decode alert event")
			return
		}
		logrus.WithFields(logrus.Fields{
			"alert_id": event.AlertID,
			"user_id":  event.UserID,
			"type":     event.AlertType,
		}).Info("Dispatching alert notification")

		if err := email.SendAlertNotification(&event); err != nil {
			logrus.WithError(err).WithField("alert_id", event.AlertID).Error("Email delivery failed")
		}
		if err := telegram.SendAlertNotification(&event); err != nil {
			logrus.WithError(err).WithField("alert_id", event.AlertID).Error("Telegram delivery failed")
		}
	})
}
