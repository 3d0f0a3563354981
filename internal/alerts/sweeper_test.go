package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/IBM/sarama/mocks"
	"gorm.io/gorm"

	"dealscope/internal/models"
	"dealscope/internal/provider"
)

func ptr(v float64) *float64 { return &v }

func TestEvaluate(t *testing.T) {
	cases := []struct {
		name      string
		alertType models.AlertType
		threshold *float64
		price     float64
		fair      float64
		want      bool
	}{
		{"below trips at threshold", models.AlertPriceBelow, ptr(300), 300, 350, true},
		{"below trips under threshold", models.AlertPriceBelow, ptr(300), 250, 350, true},
		{"below holds above threshold", models.AlertPriceBelow, ptr(300), 301, 350, false},
		{"below without threshold never trips", models.AlertPriceBelow, nil, 100, 350, false},
		{"above trips at threshold", models.AlertPriceAbove, ptr(500), 500, 350, true},
		{"above holds under threshold", models.AlertPriceAbove, ptr(500), 499, 350, false},
		{"deal trips on deep discount", models.AlertDealDetected, nil, 80, 100, true},
		{"deal trips exactly at cutoff", models.AlertDealDetected, nil, 85, 100, true},
		{"deal holds on shallow discount", models.AlertDealDetected, nil, 90, 100, false},
		{"deal holds above fair value", models.AlertDealDetected, nil, 120, 100, false},
		{"unknown type never trips", models.AlertType("bogus"), ptr(300), 100, 350, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Evaluate(tc.alertType, tc.threshold, tc.price, tc.fair)
			if got != tc.want {
				t.Errorf("Evaluate(%q, %v, %.0f, %.0f) = %v, want %v",
					tc.alertType, tc.threshold, tc.price, tc.fair, got, tc.want)
			}
		})
	}
}

type fakeRuleSource struct {
	rules    []models.AlertRecord
	notified []uint
}

func (f *fakeRuleSource) ActiveAlertRules(context.Context) ([]models.AlertRecord, error) {
	return f.rules, nil
}

func (f *fakeRuleSource) MarkNotified(_ context.Context, recordID uint, _ time.Time) error {
	f.notified = append(f.notified, recordID)
	return nil
}

func TestSweepPublishesTrippedRulesAndMarksThem(t *testing.T) {
	m := provider.NewMock(42, 100, nil)
	ctx := context.Background()
	scope := models.Scope{UserID: 1, Plan: models.PlanExpert}

	page, err := m.GetDeals(ctx, scope, provider.DealFilters{Limit: 1})
	if err != nil || len(page.Items) == 0 {
		t.Fatalf("GetDeals: %v (items=%d)", err, len(page.Items))
	}
	ad := page.Items[0]

	source := &fakeRuleSource{rules: []models.AlertRecord{
		{
			Model:          gorm.Model{ID: 7},
			UserID:         1,
			AlertID:        3,
			TargetType:     string(models.TargetAd),
			TargetID:       ad.ID,
			AlertType:      string(models.AlertPriceBelow),
			PriceThreshold: ptr(ad.Price + 1),
			IsActive:       true,
		},
		{
			Model:          gorm.Model{ID: 8},
			UserID:         1,
			AlertID:        4,
			TargetType:     string(models.TargetAd),
			TargetID:       ad.ID,
			AlertType:      string(models.AlertPriceAbove),
			PriceThreshold: ptr(ad.Price * 100),
			IsActive:       true,
		},
	}}

	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var event models.AlertEvent
		if err := json.Unmarshal(val, &event); err != nil {
			return err
		}
		if event.AlertID != 3 {
			return fmt.Errorf("published alert_id = %d, want 3", event.AlertID)
		}
		if event.TargetID != ad.ID || event.Price != ad.Price {
			return fmt.Errorf("event does not describe the watched ad: %+v", event)
		}
		if event.Email == "" {
			return fmt.Errorf("event carries no recipient email")
		}
		return nil
	})

	s := NewSweeper(source, m, producer)
	if err := s.Sweep(ctx); err != nil {
		t.Fatalf("Sweep: %v", err)
	}

	if len(source.notified) != 1 || source.notified[0] != 7 {
		t.Fatalf("notified records = %v, want [7]", source.notified)
	}
	if err := producer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestSweepWithoutRulesIsANoOp(t *testing.T) {
	m := provider.NewMock(42, 100, nil)
	source := &fakeRuleSource{}

	s := NewSweeper(source, m, nil)
	if err := s.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(source.notified) != 0 {
		t.Fatalf("empty sweep marked %v", source.notified)
	}
}
