package models

import (
	"time"

	"dealscope/internal/platform"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Category classifies a catalog model.
type Category string

const (
	CategoryGPU   Category = "gpu"
	CategoryCPU   Category = "cpu"
	CategoryRAM   Category = "ram"
	CategorySSD   Category = "ssd"
	CategoryOther Category = "other"
)

// Condition describes the physical state claimed by a listing.
type Condition string

const (
	ConditionNew       Condition = "new"
	ConditionExcellent Condition = "excellent"
	ConditionGood      Condition = "good"
	ConditionWorn      Condition = "worn"
)

// ItemType tags what a listing actually sells.
type ItemType string

const (
	ItemComponent ItemType = "component"
	ItemPC        ItemType = "pc"
	ItemLot       ItemType = "lot"
)

// Trend is the direction of a model's market over the snapshot window.
type Trend string

const (
	TrendUp     Trend = "up"
	TrendDown   Trend = "down"
	TrendStable Trend = "stable"
)

// RiskLevel grades an estimation's downside.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Badge is the one-glance verdict shown on an estimation card.
type Badge string

const (
	BadgeGood    Badge = "good"
	BadgeCaution Badge = "caution"
	BadgeRisk    Badge = "risk"
)

// Plan is a subscription tier. Tiers gate which result sections unlock
// and how many credits an estimation costs.
type Plan string

const (
	PlanFree   Plan = "free"
	PlanPro    Plan = "pro"
	PlanExpert Plan = "expert"
)

// Valid reports whether p is a known tier.
func (p Plan) Valid() bool {
	return p == PlanFree || p == PlanPro || p == PlanExpert
}

// HypothesisImpact grades how much an assumption degrades confidence.
type HypothesisImpact string

const (
	ImpactMinor    HypothesisImpact = "minor"
	ImpactModerate HypothesisImpact = "moderate"
	ImpactMajor    HypothesisImpact = "major"
)

// ScrapType selects the depth of a community scrape job.
type ScrapType string

const (
	ScrapFaible        ScrapType = "faible"
	ScrapFort          ScrapType = "fort"
	ScrapCommunautaire ScrapType = "communautaire"
)

// JobStatus is the scrape job lifecycle. Terminal states are sticky.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// Terminal reports whether s is an absorbing job state.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// Scope identifies the calling user on every provider operation. Nothing
// is cached across scopes.
type Scope struct {
	UserID uint
	Plan   Plan
}

// MarketSnapshot summarizes a model's market over rolling windows.
// Invariants: ActiveVolume >= 0, LiquidityIndex in [0,1], variation
// percentages are signed.
type MarketSnapshot struct {
	MedianPrice      float64 `json:"median_price"`
	Var7dPct         float64 `json:"var_7d_pct"`
	Var30dPct        float64 `json:"var_30d_pct"`
	Var90dPct        float64 `json:"var_90d_pct"`
	ActiveVolume     int     `json:"active_volume"`
	LiquidityIndex   float64 `json:"liquidity_index"`
	Trend            Trend   `json:"trend"`
	MedianDaysToSell int     `json:"median_days_to_sell"`
}

// Model is a catalog entry for a product reference. Read-only from the
// application's perspective; ingestion happens upstream.
type Model struct {
	ID       int            `json:"id"`
	Name     string         `json:"name"`
	Brand    string         `json:"brand"`
	Family   string         `json:"family"`
	Category Category       `json:"category"`
	Aliases  []string       `json:"aliases"`
	Market   MarketSnapshot `json:"market"`
}

// Ad is a marketplace listing, enriched with the computed fair value and
// deviation. DeviationPct is recomputed whenever price or fair value
// changes, never stored stale.
type Ad struct {
	ID           int               `json:"id"`
	ModelID      int               `json:"model_id"`
	Title        string            `json:"title"`
	Price        float64           `json:"price"`
	FairValue    float64           `json:"fair_value"`
	DeviationPct float64           `json:"deviation_pct"`
	Platform     platform.Platform `json:"platform"`
	Condition    Condition         `json:"condition"`
	ItemType     ItemType          `json:"item_type"`
	Region       string            `json:"region"`
	PublishedAt  time.Time         `json:"published_at"`
}

// Deviation computes the percentage gap between price and fair value.
func Deviation(price, fairValue float64) float64 {
	if fairValue == 0 {
		return 0
	}
	return (price - fairValue) / fairValue * 100
}

// EstimationOptions deliberately withholds inputs. When a flag is set the
// corresponding field is treated as unknown even if a value was supplied.
type EstimationOptions struct {
	WithoutPlatform  bool `json:"without_platform"`
	WithoutCondition bool `json:"without_condition"`
}

// EstimationRequest is the input contract of the estimation engine.
type EstimationRequest struct {
	ModelID   int               `json:"model_id" validate:"required,gt=0"`
	AdPrice   float64           `json:"ad_price" validate:"required,gt=0"`
	Condition Condition         `json:"condition,omitempty"`
	Platform  string            `json:"platform,omitempty"`
	Options   EstimationOptions `json:"options"`
}

// Hypothesis flags an assumption the engine made because an input was
// withheld. Generated fresh per run, never persisted on its own.
type Hypothesis struct {
	Field      string           `json:"field"`
	Assumption string           `json:"assumption"`
	Impact     HypothesisImpact `json:"impact"`
}

// EstimationResult is the decision output of one estimation run.
// SellPrice3m below SellPrice1m is valid under a falling trend.
type EstimationResult struct {
	ID                  string            `json:"id"`
	Request             EstimationRequest `json:"request"`
	BuyPriceRecommended float64           `json:"buy_price_recommended"`
	SellPrice1m         float64           `json:"sell_price_1m"`
	SellPrice3m         float64           `json:"sell_price_3m"`
	MarginPct           float64           `json:"margin_pct"`
	ResaleProbability   float64           `json:"resale_probability"`
	RiskLevel           RiskLevel         `json:"risk_level"`
	Badge               Badge             `json:"badge"`
	Advice              string            `json:"advice"`
	Confidence          float64           `json:"confidence"`
	Hypotheses          []Hypothesis      `json:"hypotheses"`
	Market              MarketSnapshot    `json:"market"`
	TrendSeries         []float64         `json:"trend_series,omitempty"`
	VolumeSeries        []int             `json:"volume_series,omitempty"`
	CreditCost          int               `json:"credit_cost"`
	PlanAtCreation      Plan              `json:"plan_at_creation"`
	CreatedAt           time.Time         `json:"created_at"`
}

// HistoryEntry decorates a stored result with the read-time access
// decision. CurrentPlanGrants is computed against the live plan on every
// read; the stored result itself is never mutated when the plan changes.
type HistoryEntry struct {
	Result            EstimationResult `json:"result"`
	CurrentPlanGrants bool             `json:"current_plan_grants"`
}

// TargetType distinguishes watchlist/alert targets.
type TargetType string

const (
	TargetAd    TargetType = "ad"
	TargetModel TargetType = "model"
)

// WatchlistEntry is a (target_type, target_id) pair, unique per user.
// Price fields are joined at read time from the target's current state.
type WatchlistEntry struct {
	TargetType   TargetType `json:"target_type"`
	TargetID     int        `json:"target_id"`
	AddedAt      time.Time  `json:"added_at"`
	Title        string     `json:"title,omitempty"`
	CurrentPrice float64    `json:"current_price"`
	FairValue    float64    `json:"fair_value"`
	Change7dPct  float64    `json:"change_7d_pct"`
}

// AlertType selects the trigger condition of an alert rule.
type AlertType string

const (
	AlertPriceBelow   AlertType = "price_below"
	AlertPriceAbove   AlertType = "price_above"
	AlertDealDetected AlertType = "deal_detected"
)

// NeedsThreshold reports whether the alert type requires a price threshold.
func (t AlertType) NeedsThreshold() bool {
	return t == AlertPriceBelow || t == AlertPriceAbove
}

// Alert is a user alert rule. PriceThreshold is required iff the type is
// price_below or price_above.
type Alert struct {
	ID             uint       `json:"id"`
	TargetType     TargetType `json:"target_type"`
	TargetID       int        `json:"target_id"`
	AlertType      AlertType  `json:"alert_type"`
	PriceThreshold *float64   `json:"price_threshold,omitempty"`
	IsActive       bool       `json:"is_active"`
	NotifiedAt     *time.Time `json:"notified_at,omitempty"`
}

// ScrapJob tracks an asynchronous scrape run executed by the external job
// system. This service only issues the request and observes status.
type ScrapJob struct {
	ID           string            `json:"id"`
	Platform     platform.Platform `json:"platform"`
	Keyword      string            `json:"keyword"`
	Type         ScrapType         `json:"type"`
	Status       JobStatus         `json:"status"`
	PagesScanned int               `json:"pages_scanned"`
	AdsFound     int               `json:"ads_found"`
	ErrorMessage string            `json:"error_message,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// AdminUser is the admin-screen projection of a user account.
type AdminUser struct {
	ID               uint      `json:"id"`
	Email            string    `json:"email"`
	Username         string    `json:"username"`
	Plan             Plan      `json:"plan"`
	CreditsRemaining int       `json:"credits_remaining"`
	IsActive         bool      `json:"is_active"`
	LastLoginAt      time.Time `json:"last_login_at"`
}

// DashboardOverview is the aggregate the landing dashboard renders.
type DashboardOverview struct {
	DealsToday       int     `json:"deals_today"`
	AvgDeviationPct  float64 `json:"avg_deviation_pct"`
	WatchlistCount   int     `json:"watchlist_count"`
	ActiveAlerts     int     `json:"active_alerts"`
	CreditsRemaining int     `json:"credits_remaining"`
	TopDeals         []Ad    `json:"top_deals"`
}

// AlertEvent is published to Kafka when the sweep trips an alert rule.
type AlertEvent struct {
	AlertID    uint       `json:"alert_id"`
	UserID     uint       `json:"user_id"`
	Email      string     `json:"email,omitempty"`
	TargetType TargetType `json:"target_type"`
	TargetID   int        `json:"target_id"`
	AlertType  AlertType  `json:"alert_type"`
	Title      string     `json:"title"`
	Price      float64    `json:"price"`
	Threshold  float64    `json:"threshold,omitempty"`
	Deviation  float64    `json:"deviation_pct,omitempty"`
	FiredAt    time.Time  `json:"fired_at"`
}

// ---------------------------------------------------------------------------
// Persistent schema (api-independent user state). The mock provider keeps
// equivalents in memory; these tables back the service's own state: alert
// rules swept by the cron job, watchlist rows, estimation history.
// ---------------------------------------------------------------------------

type User struct {
	gorm.Model
	Email            string `gorm:"uniqueIndex;not null"`
	Username         string
	Password         string
	Plan             string `gorm:"default:free"`
	CreditsRemaining int    `gorm:"default:100"`
	IsActive         bool   `gorm:"default:true"`
	LastLoginAt      time.Time
}

type WatchlistRecord struct {
	gorm.Model
	UserID     uint   `gorm:"index:idx_user_target,unique"`
	TargetType string `gorm:"index:idx_user_target,unique"`
	TargetID   int    `gorm:"index:idx_user_target,unique"`
	AddedAt    time.Time
}

type AlertRecord struct {
	gorm.Model
	UserID         uint `gorm:"index:idx_user_alert,unique"`
	AlertID        uint `gorm:"index:idx_user_alert,unique"`
	TargetType     string
	TargetID       int
	AlertType      string
	PriceThreshold *float64
	IsActive       bool `gorm:"default:true"`
	NotifiedAt     *time.Time
}

type ScrapJobRecord struct {
	gorm.Model
	JobID        string `gorm:"uniqueIndex;not null"`
	UserID       uint   `gorm:"index"`
	Platform     string
	Keyword      string
	Type         string
	Status       string
	PagesScanned int
	AdsFound     int
	ErrorMessage string
}

// EstimationRecord freezes one run. Payload holds the full result JSON so
// a later re-run can compare old vs new without recomputation.
type EstimationRecord struct {
	gorm.Model
	EstimationID   string `gorm:"uniqueIndex;not null"`
	UserID         uint   `gorm:"index"`
	ModelID        int
	PlanAtCreation string
	CreditCost     int
	Payload        datatypes.JSON `gorm:"type:jsonb"`
}
