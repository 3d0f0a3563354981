// Package alerts implements the alert rule sweep: a scheduled job that
// evaluates active alert rules against current listing prices and
// publishes trigger events for the notification consumer.
package alerts

import (
	"context"
	"encoding/json"
	"time"

	"github.com/IBM/sarama"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"dealscope/internal/kafka"
	"dealscope/internal/models"
	"dealscope/internal/provider"
)

// dealThresholdPct mirrors the dashboard's deal cutoff for
// deal_detected rules.
const dealThresholdPct = -15.0

// RuleSource supplies the persisted alert rules to evaluate and records
// the notify timestamp once an event is out. The HTTP layer mirrors
// every alert mutation into this store, so the sweep sees rules created
// through either provider.
type RuleSource interface {
	ActiveAlertRules(ctx context.Context) ([]models.AlertRecord, error)
	MarkNotified(ctx context.Context, recordID uint, at time.Time) error
}

// Sweeper periodically evaluates alert rules. Rules come from the local
// mirror regardless of which data provider is active; prices come from
// the provider so mock demos fire alerts too.
type Sweeper struct {
	rules    RuleSource
	data     provider.DataProvider
	producer sarama.SyncProducer
	cron     *cron.Cron
}

// NewSweeper builds a sweeper. producer may be nil, in which case
// triggers are logged but not published.
func NewSweeper(rules RuleSource, data provider.DataProvider, producer sarama.SyncProducer) *Sweeper {
	return &Sweeper{rules: rules, data: data, producer: producer}
}

// Start schedules the sweep with the given cron expression.
func (s *Sweeper) Start(spec string) error {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		if err := s.Sweep(context.Background()); err != nil {
			logrus.WithError(err).Error("Alert sweep failed")
		}
	})
	if err != nil {
		return err
	}
	c.Start()
	s.cron = c
	logrus.WithField("schedule", spec).Info("Alert sweeper started")
	return nil
}

// Stop halts the schedule. Running sweeps finish.
func (s *Sweeper) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
}

// Sweep runs one full evaluation pass over all active, un-notified
// rules.
func (s *Sweeper) Sweep(ctx context.Context) error {
	rules, err := s.rules.ActiveAlertRules(ctx)
	if err != nil {
		return err
	}
	if len(rules) == 0 {
		logrus.Info("No active alert rules to sweep")
		return nil
	}

	emails := s.resolveEmails(ctx)

	logrus.WithField("count", len(rules)).Info("Sweeping alert rules")
	fired := 0
	for i := range rules {
		event, err := s.evaluateRule(ctx, &rules[i])
		if err != nil {
			logrus.WithError(err).WithField("alert_id", rules[i].AlertID).Warn("Rule evaluation failed")
			continue
		}
		if event == nil {
			continue
		}
		event.Email = emails[event.UserID]
		if err := s.publish(event); err != nil {
			logrus.WithError(err).WithField("alert_id", event.AlertID).Error("Failed to publish alert event")
			continue
		}
		if err := s.rules.MarkNotified(ctx, rules[i].ID, time.Now()); err != nil {
			logrus.WithError(err).WithField("alert_id", rules[i].AlertID).Warn("Failed to mark rule notified")
		}
		fired++
	}
	logrus.WithFields(logrus.Fields{
		"evaluated": len(rules),
		"fired":     fired,
	}).Info("Alert sweep finished")
	return nil
}

// resolveEmails builds the user-id to email map for this pass from the
// provider's user listing, so downstream delivery does not depend on the
// local accounts table having a row per event. Failures degrade to an
// empty map; the consumer falls back to its own lookup.
func (s *Sweeper) resolveEmails(ctx context.Context) map[uint]string {
	scope := models.Scope{UserID: 1, Plan: models.PlanExpert}
	emails := make(map[uint]string)
	for page := 1; ; page++ {
		users, err := s.data.GetAdminUsers(ctx, scope, page, 100, "")
		if err != nil {
			logrus.WithError(err).Warn("Failed to resolve user emails for sweep")
			return emails
		}
		for _, u := range users.Items {
			emails[u.ID] = u.Email
		}
		if len(emails) >= users.Total || len(users.Items) == 0 {
			return emails
		}
	}
}

// evaluateRule fetches the rule's target through the data provider and
// applies Evaluate. Returns nil when the rule does not trip.
func (s *Sweeper) evaluateRule(ctx context.Context, rule *models.AlertRecord) (*models.AlertEvent, error) {
	scope := models.Scope{UserID: rule.UserID}

	var title string
	var price, fair float64
	switch models.TargetType(rule.TargetType) {
	case models.TargetAd:
		ad, err := s.data.GetAdDetail(ctx, scope, rule.TargetID)
		if err != nil {
			return nil, err
		}
		title = ad.Title
		price = ad.Price
		fair = ad.FairValue
	case models.TargetModel:
		model, err := s.data.GetModelDetail(ctx, scope, rule.TargetID)
		if err != nil {
			return nil, err
		}
		title = model.Name
		price = model.Market.MedianPrice
		fair = model.Market.MedianPrice
	default:
		return nil, nil
	}

	if !Evaluate(models.AlertType(rule.AlertType), rule.PriceThreshold, price, fair) {
		return nil, nil
	}

	event := &models.AlertEvent{
		AlertID:    rule.AlertID,
		UserID:     rule.UserID,
		TargetType: models.TargetType(rule.TargetType),
		TargetID:   rule.TargetID,
		AlertType:  models.AlertType(rule.AlertType),
		Title:      title,
		Price:      price,
		Deviation:  models.Deviation(price, fair),
		FiredAt:    time.Now(),
	}
	if rule.PriceThreshold != nil {
		event.Threshold = *rule.PriceThreshold
	}
	return event, nil
}

// Evaluate decides whether a rule trips for the observed price. Price
// rules compare against their threshold; deal_detected compares the
// deviation from fair value against the deal cutoff.
func Evaluate(alertType models.AlertType, threshold *float64, price, fairValue float64) bool {
	switch alertType {
	case models.AlertPriceBelow:
		return threshold != nil && price <= *threshold
	case models.AlertPriceAbove:
		return threshold != nil && price >= *threshold
	case models.AlertDealDetected:
		return models.Deviation(price, fairValue) <= dealThresholdPct
	default:
		return false
	}
}

func (s *Sweeper) publish(event *models.AlertEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if s.producer == nil {
		logrus.WithFields(logrus.Fields{
			"alert_id": event.AlertID,
			"type":     event.AlertType,
		}).Info("Alert fired (no broker configured)")
		return nil
	}
	return kafka.Publish(s.producer, kafka.TopicAlertEvents, payload)
}
