package db

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"dealscope/internal/models"
)

// StateStore mirrors provider-side user state into the local database.
// The active provider owns the source of truth for alert rules, the
// watchlist and scrap jobs; the mirror exists so background work (the
// alert sweep) and post-restart inspection can see that state without
// holding a provider in memory. Writes are best-effort: the mirrored
// copy must never fail a request that already succeeded upstream.
//
// A nil store, or one built over a nil connection, is a no-op.
type StateStore struct {
	db *gorm.DB
}

// NewStateStore wraps a gorm connection. db may be nil.
func NewStateStore(db *gorm.DB) *StateStore {
	return &StateStore{db: db}
}

func (s *StateStore) ready() bool {
	return s != nil && s.db != nil
}

// MirrorAlert upserts the local copy of an alert rule keyed by user and
// provider-side alert id. Called after create and after every patch so
// the sweep always evaluates the current rule.
func (s *StateStore) MirrorAlert(ctx context.Context, userID uint, alert models.Alert) {
	if !s.ready() {
		return
	}
	var rec models.AlertRecord
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND alert_id = ?", userID, alert.ID).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		rec = models.AlertRecord{
			UserID:         userID,
			AlertID:        alert.ID,
			TargetType:     string(alert.TargetType),
			TargetID:       alert.TargetID,
			AlertType:      string(alert.AlertType),
			PriceThreshold: alert.PriceThreshold,
			IsActive:       alert.IsActive,
		}
		if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
			logrus.WithError(err).WithField("alert_id", alert.ID).Warn("Failed to mirror alert rule")
		}
		return
	}
	if err != nil {
		logrus.WithError(err).WithField("alert_id", alert.ID).Warn("Failed to load mirrored alert rule")
		return
	}
	// A patched rule is re-armed: clearing notified_at lets it fire
	// again under its new condition.
	updates := map[string]interface{}{
		"target_type":     string(alert.TargetType),
		"target_id":       alert.TargetID,
		"alert_type":      string(alert.AlertType),
		"price_threshold": alert.PriceThreshold,
		"is_active":       alert.IsActive,
		"notified_at":     nil,
	}
	if err := s.db.WithContext(ctx).Model(&rec).Updates(updates).Error; err != nil {
		logrus.WithError(err).WithField("alert_id", alert.ID).Warn("Failed to update mirrored alert rule")
	}
}

// RemoveAlert drops the mirrored rule after a provider-side delete.
func (s *StateStore) RemoveAlert(ctx context.Context, userID, alertID uint) {
	if !s.ready() {
		return
	}
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND alert_id = ?", userID, alertID).
		Delete(&models.AlertRecord{}).Error
	if err != nil {
		logrus.WithError(err).WithField("alert_id", alertID).Warn("Failed to remove mirrored alert rule")
	}
}

// MirrorWatch records a watchlist add. The unique index on
// (user_id, target_type, target_id) keeps the row idempotent when the
// same target is added twice.
func (s *StateStore) MirrorWatch(ctx context.Context, userID uint, target models.TargetType, targetID int, addedAt time.Time) {
	if !s.ready() {
		return
	}
	rec := models.WatchlistRecord{
		UserID:     userID,
		TargetType: string(target),
		TargetID:   targetID,
		AddedAt:    addedAt,
	}
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND target_type = ? AND target_id = ?", userID, string(target), targetID).
		FirstOrCreate(&rec).Error
	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"target_type": target,
			"target_id":   targetID,
		}).Warn("Failed to mirror watchlist entry")
	}
}

// RemoveWatch drops the mirrored watchlist row.
func (s *StateStore) RemoveWatch(ctx context.Context, userID uint, target models.TargetType, targetID int) {
	if !s.ready() {
		return
	}
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND target_type = ? AND target_id = ?", userID, string(target), targetID).
		Delete(&models.WatchlistRecord{}).Error
	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"target_type": target,
			"target_id":   targetID,
		}).Warn("Failed to remove mirrored watchlist entry")
	}
}

// SaveJob upserts the local copy of a scrap job, keyed by the job id the
// provider issued. Called on start and whenever a fresher status is
// observed.
func (s *StateStore) SaveJob(ctx context.Context, userID uint, job *models.ScrapJob) {
	if !s.ready() || job == nil {
		return
	}
	var rec models.ScrapJobRecord
	err := s.db.WithContext(ctx).Where("job_id = ?", job.ID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		rec = models.ScrapJobRecord{
			JobID:        job.ID,
			UserID:       userID,
			Platform:     string(job.Platform),
			Keyword:      job.Keyword,
			Type:         string(job.Type),
			Status:       string(job.Status),
			PagesScanned: job.PagesScanned,
			AdsFound:     job.AdsFound,
			ErrorMessage: job.ErrorMessage,
		}
		if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
			logrus.WithError(err).WithField("job_id", job.ID).Warn("Failed to mirror scrap job")
		}
		return
	}
	if err != nil {
		logrus.WithError(err).WithField("job_id", job.ID).Warn("Failed to load mirrored scrap job")
		return
	}
	updates := map[string]interface{}{
		"status":        string(job.Status),
		"pages_scanned": job.PagesScanned,
		"ads_found":     job.AdsFound,
		"error_message": job.ErrorMessage,
	}
	if err := s.db.WithContext(ctx).Model(&rec).Updates(updates).Error; err != nil {
		logrus.WithError(err).WithField("job_id", job.ID).Warn("Failed to update mirrored scrap job")
	}
}

// ActiveAlertRules returns the mirrored rules the sweep should evaluate:
// active and not yet notified. A store without a connection returns an
// empty slice so the sweep degrades to a no-op.
func (s *StateStore) ActiveAlertRules(ctx context.Context) ([]models.AlertRecord, error) {
	if !s.ready() {
		return nil, nil
	}
	var rules []models.AlertRecord
	err := s.db.WithContext(ctx).
		Where("is_active = ? AND notified_at IS NULL", true).
		Find(&rules).Error
	if err != nil {
		return nil, err
	}
	return rules, nil
}

// MarkNotified stamps a mirrored rule after its event was published, so
// the next sweep skips it.
func (s *StateStore) MarkNotified(ctx context.Context, recordID uint, at time.Time) error {
	if !s.ready() {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&models.AlertRecord{}).
		Where("id = ?", recordID).
		Update("notified_at", at).Error
}
