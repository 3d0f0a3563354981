// Package notification delivers alert trigger events to users. Events
// arrive over Kafka from the alert sweep; delivery goes out by email and,
// when configured, Telegram.
package notification

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"gorm.io/gorm"

	"dealscope/internal/models"
)

type EmailService struct {
	db *gorm.DB
}

func NewEmailService(db *gorm.DB) *EmailService {
	return &EmailService{db: db}
}

// SendMail delivers one HTML email through the configured SMTP relay.
func (es *EmailService) SendMail(toEmail, htmlContent, subject string) error {
	logrus.WithFields(logrus.Fields{
		"to":      toEmail,
		"subject": subject,
	}).Info("Attempting to send email")

	senderMail := viper.GetString("EMAIL_SENDER")
	password := viper.GetString("EMAIL_APP_PASSWORD")
	smtpHost := viper.GetString("SMTP_HOST")
	smtpPort := viper.GetString("SMTP_PORT")

	if senderMail == "" {
		senderMail = "alerts@dealscope.local"
	}
	if smtpHost == "" {
		smtpHost = "sandbox.smtp.mailtrap.io"
	}
	if smtpPort == "" {
		smtpPort = "2525"
	}

	headers := map[string]string{
		"From":         senderMail,
		"To":           toEmail,
		"Subject":      subject,
		"MIME-Version": "1.0",
		"Content-Type": "text/html; charset=\"utf-8\"",
	}

	config := &tls.Config{ServerName: smtpHost}
	auth := smtp.PlainAuth("", senderMail, password, smtpHost)

	client, err := smtp.Dial(smtpHost + ":" + smtpPort)
	if err != nil {
		logrus.WithError(err).Error("Error dialing SMTP server")
		return err
	}
	defer client.Close()

	if err = client.StartTLS(config); err != nil {
		logrus.WithError(err).Error("Error starting TLS")
		return err
	}
	if err = client.Auth(auth); err != nil {
		logrus.WithError(err).Error("Error authenticating")
		return err
	}
	if err = client.Mail(senderMail); err != nil {
		logrus.WithError(err).Error("Error setting sender")
		return err
	}
	if err = client.Rcpt(toEmail); err != nil {
		logrus.WithError(err).Error("Error setting recipient")
		return err
	}

	w, err := client.Data()
	if err != nil {
		logrus.WithError(err).Error("Error creating data writer")
		return err
	}

	var msg bytes.Buffer
	for k, v := range headers {
		msg.WriteString(fmt.Sprintf("%s: %s\r\n", k, v))
	}
	msg.WriteString("\r\n")
	msg.WriteString(htmlContent)

	if _, err = w.Write(msg.Bytes()); err != nil {
		logrus.WithError(err).Error("Error writing email content")
		return err
	}
	if err = w.Close(); err != nil {
		logrus.WithError(err).Error("Error closing data writer")
		return err
	}

	logrus.WithField("to", toEmail).Info("Email sent successfully")
	return nil
}

var alertTmpl = template.Must(template.New("alertEmail").Parse(`
	<html>
	<body style="font-family: Arial, sans-serif; color: #333; line-height: 1.6;">
		<div style="max-width: 600px; margin: 0 auto; padding: 20px; border: 1px solid #eee; border-radius: 10px;">
			<h2 style="color: #e91e63; margin-bottom: 20px;">{{.Headline}}</h2>
			<p>Hi <b>{{.UserName}}</b>,</p>
			<p>One of your alert rules just fired:</p>
			<div style="background-color: #f9f9f9; padding: 15px; border-radius: 5px; margin: 20px 0;">
				<h3 style="margin-top: 0; color: #333;">{{.Title}}</h3>
				<p><b>Current price:</b> <span style="color: #e91e63; font-weight: bold; font-size: 1.2em;">{{printf "%.2f" .Price}} &euro;</span></p>
				{{if .HasThreshold}}<p><b>Your threshold:</b> {{printf "%.2f" .Threshold}} &euro;</p>{{end}}
				{{if .HasDeviation}}<p><b>Deviation from fair value:</b> <span style="color: #4caf50;">{{printf "%.1f" .Deviation}}%</span></p>{{end}}
			</div>
			<p>Don't miss out on this one!</p>
			<p style="margin-top: 30px; font-size: 0.9em; color: #777;">
				This notification was sent because you set up an alert rule.
				<br>Happy hunting!
			</p>
		</div>
	</body>
	</html>`))

// resolveRecipient picks the delivery address for one event. The sweep
// resolves emails through the data provider and stamps them on the
// event; events without one fall back to the local accounts table.
func (es *EmailService) resolveRecipient(event *models.AlertEvent) (email, name string, err error) {
	if event.Email != "" {
		name = event.Email
		if i := strings.Index(name, "@"); i > 0 {
			name = name[:i]
		}
		return event.Email, name, nil
	}
	if es.db == nil {
		return "", "", fmt.Errorf("event %d carries no email and no database is configured", event.AlertID)
	}
	var user models.User
	if err := es.db.First(&user, event.UserID).Error; err != nil {
		return "", "", fmt.Errorf("failed to find user %d: %w", event.UserID, err)
	}
	return user.Email, user.Username, nil
}

// SendAlertNotification renders and delivers the alert email for one
// trigger event.
func (es *EmailService) SendAlertNotification(event *models.AlertEvent) error {
	toEmail, userName, err := es.resolveRecipient(event)
	if err != nil {
		logrus.WithError(err).Error("Failed to resolve alert recipient")
		return err
	}

	headline := "Price Alert!"
	if event.AlertType == models.AlertDealDetected {
		headline = "Deal Detected!"
	}

	var buf bytes.Buffer
	data := struct {
		Headline     string
		UserName     string
		Title        string
		Price        float64
		Threshold    float64
		HasThreshold bool
		Deviation    float64
		HasDeviation bool
	}{
		Headline:     headline,
		UserName:     userName,
		Title:        event.Title,
		Price:        event.Price,
		Threshold:    event.Threshold,
		HasThreshold: event.Threshold != 0,
		Deviation:    event.Deviation,
		HasDeviation: event.AlertType == models.AlertDealDetected,
	}
	if err := alertTmpl.Execute(&buf, data); err != nil {
		logrus.WithError(err).Error("Failed to execute email template")
		return fmt.Errorf("failed to execute email template: %w", err)
	}

	subject := fmt.Sprintf("%s %s", headline, event.Title)
	return es.SendMail(toEmail, buf.String(), subject)
}
