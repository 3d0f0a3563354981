package estimation

import (
	"context"
	"testing"

	"dealscope/internal/errs"
	"dealscope/internal/models"
)

type stubResolver struct {
	model *models.Model
}

func (r *stubResolver) ResolveModel(_ context.Context, id int) (*models.Model, error) {
	if r.model == nil || r.model.ID != id {
		return nil, errs.NewNotFound("model", "42")
	}
	return r.model, nil
}

func testModel() *models.Model {
	return &models.Model{
		ID:       42,
		Name:     "RTX 3080",
		Brand:    "NVIDIA",
		Category: models.CategoryGPU,
		Market: models.MarketSnapshot{
			MedianPrice:      600,
			Var7dPct:         -1.2,
			Var30dPct:        -4.0,
			Var90dPct:        -9.5,
			ActiveVolume:     140,
			LiquidityIndex:   0.7,
			Trend:            models.TrendDown,
			MedianDaysToSell: 6,
		},
	}
}

func newTestEngine(credits int) (*Engine, *MemoryLedger, *MemoryStore) {
	ledger := NewMemoryLedger(credits)
	history := NewMemoryStore()
	engine := NewEngine(&stubResolver{model: testModel()}, ledger, history, nil)
	return engine, ledger, history
}

func TestRunValidation(t *testing.T) {
	engine, _, _ := newTestEngine(100)
	scope := models.Scope{UserID: 1, Plan: models.PlanFree}

	_, err := engine.Run(context.Background(), scope, models.EstimationRequest{ModelID: 0, AdPrice: 100})
	if !errs.IsValidation(err) {
		t.Errorf("missing model_id: expected ValidationError, got %v", err)
	}

	_, err = engine.Run(context.Background(), scope, models.EstimationRequest{ModelID: 42, AdPrice: -5})
	if !errs.IsValidation(err) {
		t.Errorf("negative price: expected ValidationError, got %v", err)
	}

	_, err = engine.Run(context.Background(), scope, models.EstimationRequest{ModelID: 7, AdPrice: 100})
	if !errs.IsNotFound(err) {
		t.Errorf("unknown model: expected NotFoundError, got %v", err)
	}
}

func TestRunHypotheses(t *testing.T) {
	engine, _, _ := newTestEngine(100)
	scope := models.Scope{UserID: 1, Plan: models.PlanPro}

	base := models.EstimationRequest{
		ModelID:   42,
		AdPrice:   520,
		Condition: models.ConditionGood,
		Platform:  "leboncoin",
	}
	full, err := engine.Run(context.Background(), scope, base)
	if err != nil {
		t.Fatalf("full run: %v", err)
	}
	if len(full.Hypotheses) != 0 {
		t.Fatalf("full inputs should emit no hypotheses, got %v", full.Hypotheses)
	}

	withoutCond := base
	withoutCond.Options.WithoutCondition = true
	res, err := engine.Run(context.Background(), scope, withoutCond)
	if err != nil {
		t.Fatalf("withoutCondition run: %v", err)
	}
	if len(res.Hypotheses) != 1 || res.Hypotheses[0].Field != "condition" {
		t.Fatalf("expected exactly one condition hypothesis, got %v", res.Hypotheses)
	}
	if res.Confidence >= full.Confidence {
		t.Errorf("confidence with hypothesis (%v) must be below baseline (%v)", res.Confidence, full.Confidence)
	}

	both := base
	both.Options.WithoutCondition = true
	both.Options.WithoutPlatform = true
	res, err = engine.Run(context.Background(), scope, both)
	if err != nil {
		t.Fatalf("both withheld run: %v", err)
	}
	if len(res.Hypotheses) != 2 {
		t.Fatalf("expected two hypotheses, got %v", res.Hypotheses)
	}
	fields := map[string]bool{}
	for _, h := range res.Hypotheses {
		fields[h.Field] = true
	}
	if !fields["condition"] || !fields["platform"] {
		t.Errorf("expected one hypothesis per field, got %v", res.Hypotheses)
	}
}

func TestRunEndToEnd(t *testing.T) {
	engine, ledger, history := newTestEngine(100)
	scope := models.Scope{UserID: 9, Plan: models.PlanFree}

	before, _ := ledger.Balance(context.Background(), scope)

	res, err := engine.Run(context.Background(), scope, models.EstimationRequest{
		ModelID:   42,
		AdPrice:   520,
		Condition: models.ConditionGood,
		Options:   models.EstimationOptions{WithoutPlatform: true},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(res.Hypotheses) != 1 || res.Hypotheses[0].Field != "platform" {
		t.Fatalf("expected exactly one platform hypothesis, got %v", res.Hypotheses)
	}
	if res.BuyPriceRecommended <= 0 {
		t.Errorf("buy price must be finite and positive, got %v", res.BuyPriceRecommended)
	}
	wantMargin := (res.SellPrice1m - res.BuyPriceRecommended) / res.BuyPriceRecommended * 100
	if diff := res.MarginPct - wantMargin; diff > 0.01 || diff < -0.01 {
		t.Errorf("margin_pct = %v, want %v", res.MarginPct, wantMargin)
	}

	after, _ := ledger.Balance(context.Background(), scope)
	if before-after != res.CreditCost {
		t.Errorf("credit delta = %d, want %d", before-after, res.CreditCost)
	}
	if res.CreditCost != CreditCost(models.PlanFree) {
		t.Errorf("credit cost = %d, want plan cost %d", res.CreditCost, CreditCost(models.PlanFree))
	}
	if res.PlanAtCreation != models.PlanFree {
		t.Errorf("plan_at_creation = %q", res.PlanAtCreation)
	}

	entries, total, _ := history.List(context.Background(), scope, 1, 10)
	if total != 1 || len(entries) != 1 || entries[0].Result.ID != res.ID {
		t.Errorf("history should contain the run: total=%d entries=%d", total, len(entries))
	}
}

func TestRunInsufficientCreditsRejectsBeforeCharge(t *testing.T) {
	engine, ledger, history := newTestEngine(1) // free plan costs 5
	scope := models.Scope{UserID: 3, Plan: models.PlanFree}

	_, err := engine.Run(context.Background(), scope, models.EstimationRequest{ModelID: 42, AdPrice: 300})
	ce, ok := err.(*errs.InsufficientCreditsError)
	if !ok {
		t.Fatalf("expected InsufficientCreditsError, got %T (%v)", err, err)
	}
	if ce.Required != 5 || ce.Current != 1 {
		t.Errorf("unexpected amounts: %+v", ce)
	}

	balance, _ := ledger.Balance(context.Background(), scope)
	if balance != 1 {
		t.Errorf("no credits may be reserved on rejection, balance = %d", balance)
	}
	if _, total, _ := history.List(context.Background(), scope, 1, 10); total != 0 {
		t.Errorf("failed run must not be persisted, total = %d", total)
	}
}

func TestBadgeRiskMonotonicity(t *testing.T) {
	margins := []float64{-20, -5, 0, 3, 10, 25}
	risks := []models.RiskLevel{models.RiskLow, models.RiskMedium, models.RiskHigh}
	for _, risk := range risks {
		for _, m := range margins {
			badge := badgeFor(risk, m)
			if risk == models.RiskHigh && badge == models.BadgeGood {
				t.Errorf("high risk mapped to good badge at margin %v", m)
			}
			if risk == models.RiskLow && badge == models.BadgeRisk {
				t.Errorf("low risk mapped to risk badge at margin %v", m)
			}
		}
	}
}

func TestFallingTrendProjectionOrdering(t *testing.T) {
	engine, _, _ := newTestEngine(100)
	scope := models.Scope{UserID: 1, Plan: models.PlanExpert}

	// testModel has Var90dPct more negative than Var30dPct: the 3-month
	// projection lands below the 1-month one under the falling trend.
	res, err := engine.Run(context.Background(), scope, models.EstimationRequest{
		ModelID: 42, AdPrice: 500, Condition: models.ConditionGood, Platform: "ebay",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.SellPrice3m >= res.SellPrice1m {
		t.Errorf("expected sell_3m < sell_1m on falling trend: 3m=%v 1m=%v", res.SellPrice3m, res.SellPrice1m)
	}
	if res.SellPrice3m <= 0 || res.SellPrice1m <= 0 {
		t.Errorf("projections must stay positive: 1m=%v 3m=%v", res.SellPrice1m, res.SellPrice3m)
	}
}
