package estimation

import (
	"context"
	"encoding/json"

	"dealscope/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// GormStore persists estimation history in Postgres. The full result is
// frozen as a JSONB payload so later reads replay it without
// recomputation.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore wraps a database connection as a history Store.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Push(ctx context.Context, scope models.Scope, result models.EstimationResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return err
	}

	record := models.EstimationRecord{
		EstimationID:   result.ID,
		UserID:         scope.UserID,
		ModelID:        result.Request.ModelID,
		PlanAtCreation: string(result.PlanAtCreation),
		CreditCost:     result.CreditCost,
		Payload:        datatypes.JSON(payload),
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return err
	}

	// Enforce the cap by dropping the oldest rows beyond HistoryCap.
	var ids []uint
	s.db.WithContext(ctx).Model(&models.EstimationRecord{}).
		Where("user_id = ?", scope.UserID).
		Order("created_at DESC").
		Offset(HistoryCap).
		Pluck("id", &ids)
	if len(ids) > 0 {
		if err := s.db.WithContext(ctx).Delete(&models.EstimationRecord{}, ids).Error; err != nil {
			logrus.WithError(err).WithField("user_id", scope.UserID).Error("Failed to trim estimation history")
		}
	}
	return nil
}

func (s *GormStore) List(ctx context.Context, scope models.Scope, page, limit int) ([]models.HistoryEntry, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}

	var total int64
	if err := s.db.WithContext(ctx).Model(&models.EstimationRecord{}).
		Where("user_id = ?", scope.UserID).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var records []models.EstimationRecord
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", scope.UserID).
		Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&records).Error; err != nil {
		return nil, 0, err
	}

	entries := make([]models.HistoryEntry, 0, len(records))
	for _, rec := range records {
		var result models.EstimationResult
		if err := json.Unmarshal(rec.Payload, &result); err != nil {
			logrus.WithError(err).WithField("estimation_id", rec.EstimationID).Error("Skipping unreadable history payload")
			continue
		}
		entries = append(entries, models.HistoryEntry{
			Result:            result,
			CurrentPlanGrants: grantsFor(scope.Plan, result.PlanAtCreation),
		})
	}
	return entries, int(total), nil
}

func (s *GormStore) Clear(ctx context.Context, scope models.Scope) error {
	return s.db.WithContext(ctx).
		Where("user_id = ?", scope.UserID).
		Delete(&models.EstimationRecord{}).Error
}
