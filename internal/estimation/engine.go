// Package estimation implements the price estimation pipeline: input
// validation, credit accounting, the market-snapshot based computation,
// hypothesis emission for withheld inputs, and the bounded per-user
// history of past runs.
package estimation

import (
	"context"
	"fmt"
	"math"
	"time"

	"dealscope/internal/errs"
	"dealscope/internal/models"
	"dealscope/internal/platform"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ModelResolver resolves a catalog model by id.
type ModelResolver interface {
	ResolveModel(ctx context.Context, id int) (*models.Model, error)
}

// Ledger holds per-user credit balances. Balance is consulted before any
// computation; Charge is applied only after a run succeeds.
type Ledger interface {
	Balance(ctx context.Context, scope models.Scope) (int, error)
	Charge(ctx context.Context, scope models.Scope, amount int) error
}

// CacheInvalidator drops any cached remaining-credits read so the next
// fetch reflects the charge. Optional; a nil invalidator is a no-op.
type CacheInvalidator interface {
	InvalidateCredits(ctx context.Context, userID uint)
}

// CreditsCacher is a read-through cache for remaining-credits lookups.
// Reads consult Get first and backfill with Set on a miss; charges go
// through InvalidateCredits so the next read hits the ledger.
type CreditsCacher interface {
	CacheInvalidator
	Get(ctx context.Context, userID uint) (int, bool)
	Set(ctx context.Context, userID uint, balance int)
}

// Condition and platform coefficients applied to the snapshot median when
// deriving fair value. Fair value never derives from the observed price.
var conditionCoef = map[models.Condition]float64{
	models.ConditionNew:       1.10,
	models.ConditionExcellent: 1.00,
	models.ConditionGood:      0.92,
	models.ConditionWorn:      0.80,
}

var platformCoef = map[platform.Platform]float64{
	platform.Leboncoin: 1.00,
	platform.Ebay:      1.03,
	platform.LDLC:      1.05,
	platform.Facebook:  0.95,
	platform.Vinted:    0.97,
}

// Defaults assumed when an input is unknown. Each assumption is surfaced
// as a Hypothesis on the result.
const (
	assumedCondition = models.ConditionGood
	assumedPlatform  = platform.Leboncoin

	baseConfidence = 0.90
	minConfidence  = 0.20
)

var impactPenalty = map[models.HypothesisImpact]float64{
	models.ImpactMinor:    0.07,
	models.ImpactModerate: 0.12,
	models.ImpactMajor:    0.20,
}

// CreditCost returns how many credits one run charges under a plan.
func CreditCost(plan models.Plan) int {
	switch plan {
	case models.PlanExpert:
		return 1
	case models.PlanPro:
		return 2
	default:
		return 5
	}
}

// Engine runs estimations. A run is single-shot: idle -> pending
// (validated, credits checked) -> succeeded (persisted, charged) or
// failed (no charge). Retries are new runs initiated by the caller.
type Engine struct {
	resolver ModelResolver
	ledger   Ledger
	history  Store
	cache    CacheInvalidator
	now      func() time.Time
}

// NewEngine wires an Engine. cache may be nil.
func NewEngine(resolver ModelResolver, ledger Ledger, history Store, cache CacheInvalidator) *Engine {
	return &Engine{
		resolver: resolver,
		ledger:   ledger,
		history:  history,
		cache:    cache,
		now:      time.Now,
	}
}

// Run executes one estimation. Validation failures and insufficient
// credits reject before anything is charged or stored.
func (e *Engine) Run(ctx context.Context, scope models.Scope, req models.EstimationRequest) (*models.EstimationResult, error) {
	if req.ModelID <= 0 {
		return nil, errs.NewValidation("model_id", "required and must be positive")
	}
	if req.AdPrice <= 0 || math.IsNaN(req.AdPrice) || math.IsInf(req.AdPrice, 0) {
		return nil, errs.NewValidation("ad_price", "must be a positive finite number")
	}

	model, err := e.resolver.ResolveModel(ctx, req.ModelID)
	if err != nil {
		return nil, err
	}

	cost := CreditCost(scope.Plan)
	balance, err := e.ledger.Balance(ctx, scope)
	if err != nil {
		return nil, err
	}
	if balance < cost {
		return nil, errs.NewInsufficientCredits(cost, balance)
	}

	result := compute(model, req, scope.Plan, cost, e.now())

	if err := e.ledger.Charge(ctx, scope, cost); err != nil {
		logrus.WithError(err).WithField("user_id", scope.UserID).Error("Failed to charge credits")
		return nil, err
	}
	if e.cache != nil {
		e.cache.InvalidateCredits(ctx, scope.UserID)
	}
	if err := e.history.Push(ctx, scope, *result); err != nil {
		// The run already succeeded and was charged; a history write
		// failure is logged, not surfaced as a run failure.
		logrus.WithError(err).WithField("user_id", scope.UserID).Error("Failed to persist estimation history")
	}

	logrus.WithFields(logrus.Fields{
		"user_id":    scope.UserID,
		"model_id":   req.ModelID,
		"badge":      result.Badge,
		"margin_pct": result.MarginPct,
		"cost":       cost,
	}).Info("Estimation completed")
	return result, nil
}

// compute derives the decision output from the model snapshot. Pure.
func compute(model *models.Model, req models.EstimationRequest, plan models.Plan, cost int, now time.Time) *models.EstimationResult {
	snap := model.Market
	var hypotheses []models.Hypothesis

	cond := req.Condition
	if req.Options.WithoutCondition || cond == "" {
		cond = assumedCondition
		hypotheses = append(hypotheses, models.Hypothesis{
			Field:      "condition",
			Assumption: fmt.Sprintf("assumed %s condition", assumedCondition),
			Impact:     models.ImpactModerate,
		})
	}

	plat := platform.Normalize(req.Platform)
	if req.Options.WithoutPlatform || plat == platform.Unknown {
		plat = assumedPlatform
		hypotheses = append(hypotheses, models.Hypothesis{
			Field:      "platform",
			Assumption: fmt.Sprintf("assumed %s pricing", assumedPlatform),
			Impact:     models.ImpactMinor,
		})
	}

	condCoef, ok := conditionCoef[cond]
	if !ok {
		condCoef = conditionCoef[assumedCondition]
	}
	fairValue := snap.MedianPrice * condCoef * platformCoef[plat]

	// Buy below fair value, deeper on a falling market.
	buy := fairValue * 0.85
	if snap.Trend == models.TrendDown {
		buy *= 0.96
	}

	// Projections follow the snapshot drift, half-damped. On a falling
	// trend the 3-month projection can land below the 1-month one; that
	// ordering is valid output, not a defect.
	sell1m := fairValue * (1 + snap.Var30dPct/100*0.5)
	sell3m := fairValue * (1 + snap.Var90dPct/100*0.5)

	marginPct := (sell1m - buy) / buy * 100

	resaleProb := clamp(0.35+0.55*snap.LiquidityIndex+trendBonus(snap.Trend), 0.05, 0.98)

	risk := riskLevel(marginPct, snap)
	badge := badgeFor(risk, marginPct)

	confidence := baseConfidence
	for _, h := range hypotheses {
		confidence -= impactPenalty[h.Impact]
	}
	confidence = clamp(confidence, minConfidence, baseConfidence)

	return &models.EstimationResult{
		ID:                  uuid.NewString(),
		Request:             req,
		BuyPriceRecommended: round2(buy),
		SellPrice1m:         round2(sell1m),
		SellPrice3m:         round2(sell3m),
		MarginPct:           round2(marginPct),
		ResaleProbability:   round2(resaleProb),
		RiskLevel:           risk,
		Badge:               badge,
		Advice:              advice(badge, marginPct, snap.Trend),
		Confidence:          round2(confidence),
		Hypotheses:          hypotheses,
		Market:              snap,
		TrendSeries:         trendSeries(snap),
		VolumeSeries:        volumeSeries(snap),
		CreditCost:          cost,
		PlanAtCreation:      plan,
		CreatedAt:           now,
	}
}

func trendBonus(t models.Trend) float64 {
	switch t {
	case models.TrendUp:
		return 0.08
	case models.TrendDown:
		return -0.08
	}
	return 0
}

func riskLevel(marginPct float64, snap models.MarketSnapshot) models.RiskLevel {
	score := 0
	if marginPct < 5 {
		score++
	}
	if marginPct < 0 {
		score++
	}
	if snap.LiquidityIndex < 0.35 {
		score++
	}
	if snap.Trend == models.TrendDown {
		score++
	}
	switch {
	case score >= 3:
		return models.RiskHigh
	case score >= 1:
		return models.RiskMedium
	}
	return models.RiskLow
}

// badgeFor keeps the monotonicity contract: high risk never maps to the
// good badge, low risk never maps to the risk badge.
func badgeFor(risk models.RiskLevel, marginPct float64) models.Badge {
	switch risk {
	case models.RiskHigh:
		if marginPct < 0 {
			return models.BadgeRisk
		}
		return models.BadgeCaution
	case models.RiskLow:
		if marginPct >= 8 {
			return models.BadgeGood
		}
		return models.BadgeCaution
	}
	if marginPct >= 15 {
		return models.BadgeGood
	}
	if marginPct < 0 {
		return models.BadgeRisk
	}
	return models.BadgeCaution
}

func advice(badge models.Badge, marginPct float64, trend models.Trend) string {
	switch badge {
	case models.BadgeGood:
		return fmt.Sprintf("Solid opportunity: expected margin around %.0f%%.", marginPct)
	case models.BadgeRisk:
		if trend == models.TrendDown {
			return "Avoid: the market is falling and the expected margin is negative."
		}
		return "Avoid: the expected margin does not cover the resale risk."
	}
	return "Workable, but negotiate the price down before buying."
}

// trendSeries interpolates a six-point price trajectory from the 90-day
// variation back to today's median. Deterministic by construction.
func trendSeries(snap models.MarketSnapshot) []float64 {
	const points = 6
	denom := 1 + snap.Var90dPct/100
	if denom <= 0 {
		denom = 1
	}
	start := snap.MedianPrice / denom
	series := make([]float64, points)
	for i := 0; i < points; i++ {
		frac := float64(i) / float64(points-1)
		series[i] = round2(start + (snap.MedianPrice-start)*frac)
	}
	return series
}

func volumeSeries(snap models.MarketSnapshot) []int {
	const points = 6
	series := make([]int, points)
	for i := 0; i < points; i++ {
		// Gentle ramp toward the current active volume.
		series[i] = snap.ActiveVolume * (70 + 6*i) / 100
	}
	return series
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
