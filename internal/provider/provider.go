// Package provider defines the capability contract the application runs
// against, with two interchangeable backends: a deterministic in-process
// mock and the real upstream API. Business code depends on the interface
// only; which implementation is live is decided once at startup by the
// registry, never re-checked inside handlers.
package provider

import (
	"context"

	"dealscope/internal/models"
)

// FilterAll is the "no constraint" sentinel the UI sends for untouched
// filter dropdowns. Providers treat it exactly like an absent filter.
const FilterAll = "all"

// normFilter collapses the sentinel to the empty string.
func normFilter(v string) string {
	if v == FilterAll {
		return ""
	}
	return v
}

// Page is the uniform paginated response shape. len(Items) <= PageSize;
// Total counts all matches regardless of page. Callers must not assume a
// full page except through Total.
type Page[T any] struct {
	Items    []T `json:"items"`
	Total    int `json:"total"`
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

// DealFilters filter the deal feed. Zero values and FilterAll mean no
// constraint; Platform accepts free-form spellings and is normalized.
type DealFilters struct {
	Page     int
	Limit    int
	Platform string
	Category string
	ItemType string
	Region   string
	Search   string
}

// CatalogFilters filter the model catalog.
type CatalogFilters struct {
	Page     int
	Limit    int
	Category string
	Brand    string
	Search   string
}

// AlertPayload creates or replaces an alert rule.
type AlertPayload struct {
	TargetType     models.TargetType `json:"target_type" validate:"required,oneof=ad model"`
	TargetID       int               `json:"target_id" validate:"required,gt=0"`
	AlertType      models.AlertType  `json:"alert_type" validate:"required,oneof=price_below price_above deal_detected"`
	PriceThreshold *float64          `json:"price_threshold,omitempty"`
}

// AlertUpdate patches an existing alert. Nil fields are left untouched.
type AlertUpdate struct {
	PriceThreshold *float64 `json:"price_threshold,omitempty"`
	IsActive       *bool    `json:"is_active,omitempty"`
}

// ScrapRequest asks the external job system to start a scrape run.
type ScrapRequest struct {
	Platform string           `json:"platform" validate:"required"`
	Keyword  string           `json:"keyword" validate:"required,min=2"`
	Type     models.ScrapType `json:"type" validate:"required,oneof=faible fort communautaire"`
}

// DataProvider is the capability-complete backend contract. Every
// operation is scoped to the calling user; implementations never cache
// across scopes. Paginated operations follow the Page contract above.
type DataProvider interface {
	// Name identifies the implementation ("mock" or "api") for the
	// debug trail and the provider badge.
	Name() string

	GetDeals(ctx context.Context, scope models.Scope, f DealFilters) (Page[models.Ad], error)
	GetCatalogModels(ctx context.Context, scope models.Scope, f CatalogFilters) (Page[models.Model], error)
	GetModelDetail(ctx context.Context, scope models.Scope, id int) (*models.Model, error)
	GetAdDetail(ctx context.Context, scope models.Scope, id int) (*models.Ad, error)
	GetDashboardOverview(ctx context.Context, scope models.Scope) (*models.DashboardOverview, error)

	RunEstimation(ctx context.Context, scope models.Scope, req models.EstimationRequest) (*models.EstimationResult, error)
	GetEstimationHistory(ctx context.Context, scope models.Scope, page, limit int) (Page[models.HistoryEntry], error)
	GetCredits(ctx context.Context, scope models.Scope) (int, error)

	GetWatchlist(ctx context.Context, scope models.Scope) ([]models.WatchlistEntry, error)
	AddToWatchlist(ctx context.Context, scope models.Scope, target models.TargetType, id int) (*models.WatchlistEntry, error)
	RemoveFromWatchlist(ctx context.Context, scope models.Scope, target models.TargetType, id int) error

	GetAlerts(ctx context.Context, scope models.Scope) ([]models.Alert, error)
	CreateAlert(ctx context.Context, scope models.Scope, payload AlertPayload) (*models.Alert, error)
	UpdateAlert(ctx context.Context, scope models.Scope, id uint, patch AlertUpdate) (*models.Alert, error)
	DeleteAlert(ctx context.Context, scope models.Scope, id uint) error

	StartScrapJob(ctx context.Context, scope models.Scope, req ScrapRequest) (*models.ScrapJob, error)
	GetScrapJob(ctx context.Context, scope models.Scope, id string) (*models.ScrapJob, error)
	CancelScrapJob(ctx context.Context, scope models.Scope, id string) (*models.ScrapJob, error)

	GetAdminUsers(ctx context.Context, scope models.Scope, page, limit int, search string) (Page[models.AdminUser], error)
}

// paginate slices items into a Page. Total reflects the pre-slice count.
func paginate[T any](items []T, page, limit int) Page[T] {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	total := len(items)
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	return Page[T]{
		Items:    items[start:end],
		Total:    total,
		Page:     page,
		PageSize: limit,
	}
}
