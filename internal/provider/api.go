package provider

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"dealscope/internal/models"
	"dealscope/internal/transport"
)

// API is the data provider backed by the real backend. It is a thin
// mapping from the capability contract onto the /v1 REST surface; all
// error typing happens in the transport layer and is propagated as-is,
// so the caller owns retry policy.
type API struct {
	client *transport.Client
}

// NewAPI wraps a transport client as a DataProvider.
func NewAPI(client *transport.Client) *API {
	return &API{client: client}
}

func (a *API) Name() string { return "api" }

// Ping exposes the transport health check to the registry.
func (a *API) Ping(ctx context.Context) error {
	return a.client.Ping(ctx)
}

func pageQuery(page, limit int) url.Values {
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return q
}

func setIf(q url.Values, key, val string) {
	if v := normFilter(val); v != "" {
		q.Set(key, v)
	}
}

func (a *API) GetDeals(ctx context.Context, _ models.Scope, f DealFilters) (Page[models.Ad], error) {
	q := pageQuery(f.Page, f.Limit)
	setIf(q, "platform", f.Platform)
	setIf(q, "category", f.Category)
	setIf(q, "item_type", f.ItemType)
	setIf(q, "region", f.Region)
	setIf(q, "search", f.Search)

	var page Page[models.Ad]
	err := a.client.Get(ctx, "/v1/deals", q, &page)
	return page, err
}

func (a *API) GetCatalogModels(ctx context.Context, _ models.Scope, f CatalogFilters) (Page[models.Model], error) {
	q := pageQuery(f.Page, f.Limit)
	setIf(q, "category", f.Category)
	setIf(q, "brand", f.Brand)
	setIf(q, "search", f.Search)

	var page Page[models.Model]
	err := a.client.Get(ctx, "/v1/models", q, &page)
	return page, err
}

func (a *API) GetModelDetail(ctx context.Context, _ models.Scope, id int) (*models.Model, error) {
	var model models.Model
	if err := a.client.Get(ctx, fmt.Sprintf("/v1/models/%d", id), nil, &model); err != nil {
		return nil, err
	}
	return &model, nil
}

func (a *API) GetAdDetail(ctx context.Context, _ models.Scope, id int) (*models.Ad, error) {
	var ad models.Ad
	if err := a.client.Get(ctx, fmt.Sprintf("/v1/ads/%d", id), nil, &ad); err != nil {
		return nil, err
	}
	return &ad, nil
}

func (a *API) GetDashboardOverview(ctx context.Context, _ models.Scope) (*models.DashboardOverview, error) {
	var overview models.DashboardOverview
	if err := a.client.Get(ctx, "/v1/dashboard/overview", nil, &overview); err != nil {
		return nil, err
	}
	return &overview, nil
}

func (a *API) RunEstimation(ctx context.Context, _ models.Scope, req models.EstimationRequest) (*models.EstimationResult, error) {
	var result models.EstimationResult
	if err := a.client.Post(ctx, "/v1/estimations", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (a *API) GetEstimationHistory(ctx context.Context, _ models.Scope, page, limit int) (Page[models.HistoryEntry], error) {
	var out Page[models.HistoryEntry]
	err := a.client.Get(ctx, "/v1/estimations/history", pageQuery(page, limit), &out)
	return out, err
}

func (a *API) GetCredits(ctx context.Context, _ models.Scope) (int, error) {
	var body struct {
		Credits int `json:"credits"`
	}
	if err := a.client.Get(ctx, "/v1/credits", nil, &body); err != nil {
		return 0, err
	}
	return body.Credits, nil
}

func (a *API) GetWatchlist(ctx context.Context, _ models.Scope) ([]models.WatchlistEntry, error) {
	var entries []models.WatchlistEntry
	err := a.client.Get(ctx, "/v1/watchlist", nil, &entries)
	return entries, err
}

func (a *API) AddToWatchlist(ctx context.Context, _ models.Scope, target models.TargetType, id int) (*models.WatchlistEntry, error) {
	body := map[string]interface{}{"target_type": target, "target_id": id}
	var entry models.WatchlistEntry
	if err := a.client.Post(ctx, "/v1/watchlist", body, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

func (a *API) RemoveFromWatchlist(ctx context.Context, _ models.Scope, target models.TargetType, id int) error {
	return a.client.Delete(ctx, fmt.Sprintf("/v1/watchlist/%s/%d", target, id))
}

func (a *API) GetAlerts(ctx context.Context, _ models.Scope) ([]models.Alert, error) {
	var alerts []models.Alert
	err := a.client.Get(ctx, "/v1/alerts", nil, &alerts)
	return alerts, err
}

func (a *API) CreateAlert(ctx context.Context, _ models.Scope, payload AlertPayload) (*models.Alert, error) {
	var alert models.Alert
	if err := a.client.Post(ctx, "/v1/alerts", payload, &alert); err != nil {
		return nil, err
	}
	return &alert, nil
}

func (a *API) UpdateAlert(ctx context.Context, _ models.Scope, id uint, patch AlertUpdate) (*models.Alert, error) {
	var alert models.Alert
	if err := a.client.Patch(ctx, fmt.Sprintf("/v1/alerts/%d", id), patch, &alert); err != nil {
		return nil, err
	}
	return &alert, nil
}

func (a *API) DeleteAlert(ctx context.Context, _ models.Scope, id uint) error {
	return a.client.Delete(ctx, fmt.Sprintf("/v1/alerts/%d", id))
}

func (a *API) StartScrapJob(ctx context.Context, _ models.Scope, req ScrapRequest) (*models.ScrapJob, error) {
	var job models.ScrapJob
	if err := a.client.Post(ctx, "/v1/scrap/start", req, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (a *API) GetScrapJob(ctx context.Context, _ models.Scope, id string) (*models.ScrapJob, error) {
	var job models.ScrapJob
	if err := a.client.Get(ctx, "/v1/jobs/"+id, nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (a *API) CancelScrapJob(ctx context.Context, _ models.Scope, id string) (*models.ScrapJob, error) {
	var job models.ScrapJob
	if err := a.client.Post(ctx, "/v1/jobs/"+id+"/cancel", nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (a *API) GetAdminUsers(ctx context.Context, _ models.Scope, page, limit int, search string) (Page[models.AdminUser], error) {
	q := pageQuery(page, limit)
	setIf(q, "search", search)
	var out Page[models.AdminUser]
	err := a.client.Get(ctx, "/v1/admin/users", q, &out)
	return out, err
}
