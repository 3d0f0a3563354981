package provider

import (
	"context"
	"sync"
	"time"

	"dealscope/internal/models"
)

// trailCap bounds the in-memory debug trail.
const trailCap = 200

// TrailRecord is one observed provider call.
type TrailRecord struct {
	Endpoint string                 `json:"endpoint"`
	Impl     string                 `json:"impl"`
	Params   map[string]interface{} `json:"params,omitempty"`
	Count    int                    `json:"count"`
	Err      string                 `json:"error,omitempty"`
	At       time.Time              `json:"at"`
}

// Trail is the process-wide debug trail of provider calls. It exists for
// development builds only; a disabled trail records nothing. Records are
// replaced atomically under the lock and reads return copies, so no
// reader ever observes a partially written record.
type Trail struct {
	mu      sync.Mutex
	enabled bool
	records []TrailRecord
}

// NewTrail builds a trail. Pass enabled=false in production.
func NewTrail(enabled bool) *Trail {
	return &Trail{enabled: enabled}
}

// Record appends one call record, dropping the oldest past capacity.
func (t *Trail) Record(endpoint, impl string, params map[string]interface{}, count int, err error) {
	if t == nil || !t.enabled {
		return
	}
	rec := TrailRecord{
		Endpoint: endpoint,
		Impl:     impl,
		Params:   params,
		Count:    count,
		At:       time.Now(),
	}
	if err != nil {
		rec.Err = err.Error()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.records = append(t.records, rec)
	if len(t.records) > trailCap {
		t.records = t.records[len(t.records)-trailCap:]
	}
}

// Snapshot returns a copy of the current records, newest last.
func (t *Trail) Snapshot() []TrailRecord {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TrailRecord, len(t.records))
	copy(out, t.records)
	return out
}

// Enabled reports whether the trail records calls.
func (t *Trail) Enabled() bool {
	if t == nil {
		return false
	}
	return t.enabled
}

// traced decorates a DataProvider so every call lands in the trail.
// Business logic never sees the wrapper; the registry hands it out in
// place of the raw implementation.
type traced struct {
	inner DataProvider
	trail *Trail
}

// WithTrail wraps p so its calls are recorded. A nil or disabled trail
// returns p unchanged.
func WithTrail(p DataProvider, trail *Trail) DataProvider {
	if trail == nil || !trail.enabled {
		return p
	}
	return &traced{inner: p, trail: trail}
}

func (t *traced) Name() string { return t.inner.Name() }

func (t *traced) GetDeals(ctx context.Context, scope models.Scope, f DealFilters) (Page[models.Ad], error) {
	page, err := t.inner.GetDeals(ctx, scope, f)
	t.trail.Record("getDeals", t.inner.Name(), map[string]interface{}{
		"page": f.Page, "limit": f.Limit, "platform": f.Platform, "category": f.Category,
	}, len(page.Items), err)
	return page, err
}

func (t *traced) GetCatalogModels(ctx context.Context, scope models.Scope, f CatalogFilters) (Page[models.Model], error) {
	page, err := t.inner.GetCatalogModels(ctx, scope, f)
	t.trail.Record("getCatalogModels", t.inner.Name(), map[string]interface{}{
		"page": f.Page, "limit": f.Limit, "category": f.Category,
	}, len(page.Items), err)
	return page, err
}

func (t *traced) GetModelDetail(ctx context.Context, scope models.Scope, id int) (*models.Model, error) {
	model, err := t.inner.GetModelDetail(ctx, scope, id)
	t.trail.Record("getModelDetail", t.inner.Name(), map[string]interface{}{"id": id}, presence(model != nil), err)
	return model, err
}

func (t *traced) GetAdDetail(ctx context.Context, scope models.Scope, id int) (*models.Ad, error) {
	ad, err := t.inner.GetAdDetail(ctx, scope, id)
	t.trail.Record("getAdDetail", t.inner.Name(), map[string]interface{}{"id": id}, presence(ad != nil), err)
	return ad, err
}

func (t *traced) GetDashboardOverview(ctx context.Context, scope models.Scope) (*models.DashboardOverview, error) {
	overview, err := t.inner.GetDashboardOverview(ctx, scope)
	t.trail.Record("getDashboardOverview", t.inner.Name(), nil, presence(overview != nil), err)
	return overview, err
}

func (t *traced) RunEstimation(ctx context.Context, scope models.Scope, req models.EstimationRequest) (*models.EstimationResult, error) {
	result, err := t.inner.RunEstimation(ctx, scope, req)
	t.trail.Record("runEstimation", t.inner.Name(), map[string]interface{}{
		"model_id": req.ModelID, "ad_price": req.AdPrice,
	}, presence(result != nil), err)
	return result, err
}

func (t *traced) GetEstimationHistory(ctx context.Context, scope models.Scope, page, limit int) (Page[models.HistoryEntry], error) {
	out, err := t.inner.GetEstimationHistory(ctx, scope, page, limit)
	t.trail.Record("getEstimationHistory", t.inner.Name(), map[string]interface{}{"page": page, "limit": limit}, len(out.Items), err)
	return out, err
}

func (t *traced) GetCredits(ctx context.Context, scope models.Scope) (int, error) {
	credits, err := t.inner.GetCredits(ctx, scope)
	t.trail.Record("getCredits", t.inner.Name(), nil, presence(err == nil), err)
	return credits, err
}

func (t *traced) GetWatchlist(ctx context.Context, scope models.Scope) ([]models.WatchlistEntry, error) {
	entries, err := t.inner.GetWatchlist(ctx, scope)
	t.trail.Record("getWatchlist", t.inner.Name(), nil, len(entries), err)
	return entries, err
}

func (t *traced) AddToWatchlist(ctx context.Context, scope models.Scope, target models.TargetType, id int) (*models.WatchlistEntry, error) {
	entry, err := t.inner.AddToWatchlist(ctx, scope, target, id)
	t.trail.Record("addToWatchlist", t.inner.Name(), map[string]interface{}{"target": target, "id": id}, presence(entry != nil), err)
	return entry, err
}

func (t *traced) RemoveFromWatchlist(ctx context.Context, scope models.Scope, target models.TargetType, id int) error {
	err := t.inner.RemoveFromWatchlist(ctx, scope, target, id)
	t.trail.Record("removeFromWatchlist", t.inner.Name(), map[string]interface{}{"target": target, "id": id}, presence(err == nil), err)
	return err
}

func (t *traced) GetAlerts(ctx context.Context, scope models.Scope) ([]models.Alert, error) {
	alerts, err := t.inner.GetAlerts(ctx, scope)
	t.trail.Record("getAlerts", t.inner.Name(), nil, len(alerts), err)
	return alerts, err
}

func (t *traced) CreateAlert(ctx context.Context, scope models.Scope, payload AlertPayload) (*models.Alert, error) {
	alert, err := t.inner.CreateAlert(ctx, scope, payload)
	t.trail.Record("createAlert", t.inner.Name(), map[string]interface{}{
		"target": payload.TargetType, "id": payload.TargetID, "type": payload.AlertType,
	}, presence(alert != nil), err)
	return alert, err
}

func (t *traced) UpdateAlert(ctx context.Context, scope models.Scope, id uint, patch AlertUpdate) (*models.Alert, error) {
	alert, err := t.inner.UpdateAlert(ctx, scope, id, patch)
	t.trail.Record("updateAlert", t.inner.Name(), map[string]interface{}{"id": id}, presence(alert != nil), err)
	return alert, err
}

func (t *traced) DeleteAlert(ctx context.Context, scope models.Scope, id uint) error {
	err := t.inner.DeleteAlert(ctx, scope, id)
	t.trail.Record("deleteAlert", t.inner.Name(), map[string]interface{}{"id": id}, presence(err == nil), err)
	return err
}

func (t *traced) StartScrapJob(ctx context.Context, scope models.Scope, req ScrapRequest) (*models.ScrapJob, error) {
	job, err := t.inner.StartScrapJob(ctx, scope, req)
	t.trail.Record("startScrapJob", t.inner.Name(), map[string]interface{}{
		"platform": req.Platform, "keyword": req.Keyword, "type": req.Type,
	}, presence(job != nil), err)
	return job, err
}

func (t *traced) GetScrapJob(ctx context.Context, scope models.Scope, id string) (*models.ScrapJob, error) {
	job, err := t.inner.GetScrapJob(ctx, scope, id)
	t.trail.Record("getScrapJob", t.inner.Name(), map[string]interface{}{"id": id}, presence(job != nil), err)
	return job, err
}

func (t *traced) CancelScrapJob(ctx context.Context, scope models.Scope, id string) (*models.ScrapJob, error) {
	job, err := t.inner.CancelScrapJob(ctx, scope, id)
	t.trail.Record("cancelScrapJob", t.inner.Name(), map[string]interface{}{"id": id}, presence(job != nil), err)
	return job, err
}

func (t *traced) GetAdminUsers(ctx context.Context, scope models.Scope, page, limit int, search string) (Page[models.AdminUser], error) {
	out, err := t.inner.GetAdminUsers(ctx, scope, page, limit, search)
	t.trail.Record("getAdminUsers", t.inner.Name(), map[string]interface{}{"page": page, "limit": limit, "search": search}, len(out.Items), err)
	return out, err
}

func presence(ok bool) int {
	if ok {
		return 1
	}
	return 0
}
