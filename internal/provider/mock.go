package provider

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"dealscope/internal/errs"
	"dealscope/internal/estimation"
	"dealscope/internal/mockdata"
	"dealscope/internal/models"
	"dealscope/internal/platform"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// dealThresholdPct marks a listing as a "deal" for dashboard counts and
// deal_detected alerts: price at least this far below fair value.
const dealThresholdPct = -15.0

type watchKey struct {
	target models.TargetType
	id     int
}

// mockJob tracks synthetic scrape progress. Jobs advance on status
// fetches: first fetch moves to running, the third completes, so poller
// behavior is reproducible in demos and tests.
type mockJob struct {
	job         models.ScrapJob
	polls       int
	targetPages int
	targetAds   int
}

// Mock serves deterministic synthetic data shaped exactly like the real
// API. It must satisfy every data-model invariant the API guarantees;
// UI code is not allowed to special-case mock output.
type Mock struct {
	data       *mockdata.Dataset
	modelsByID map[int]*models.Model
	adsByID    map[int]*models.Ad

	mu          sync.RWMutex
	watch       map[uint]map[watchKey]time.Time
	alerts      map[uint][]models.Alert
	nextAlertID uint
	jobs        map[string]*mockJob
	jobSeq      int

	engine  *estimation.Engine
	ledger  *estimation.MemoryLedger
	history estimation.Store
	cache   estimation.CreditsCacher

	now func() time.Time
}

// NewMock builds the mock provider from a fixed seed with in-memory
// estimation history. cache may be nil.
func NewMock(seed int64, seedCredits int, cache estimation.CreditsCacher) *Mock {
	return NewMockWithHistory(seed, seedCredits, cache, estimation.NewMemoryStore())
}

// NewMockWithHistory is NewMock with a caller-supplied history store, so
// estimation history can survive restarts even in mock mode.
func NewMockWithHistory(seed int64, seedCredits int, cache estimation.CreditsCacher, history estimation.Store) *Mock {
	m := &Mock{
		data:       mockdata.Generate(seed),
		modelsByID: make(map[int]*models.Model),
		adsByID:    make(map[int]*models.Ad),
		watch:      make(map[uint]map[watchKey]time.Time),
		alerts:     make(map[uint][]models.Alert),
		jobs:       make(map[string]*mockJob),
		ledger:     estimation.NewMemoryLedger(seedCredits),
		history:    history,
		cache:      cache,
		now:        time.Now,
	}
	for i := range m.data.Models {
		m.modelsByID[m.data.Models[i].ID] = &m.data.Models[i]
	}
	for i := range m.data.Ads {
		m.adsByID[m.data.Ads[i].ID] = &m.data.Ads[i]
	}
	m.engine = estimation.NewEngine(m, m.ledger, m.history, cache)
	logrus.WithFields(logrus.Fields{
		"models": len(m.data.Models),
		"ads":    len(m.data.Ads),
		"seed":   seed,
	}).Info("Mock data provider initialized")
	return m
}

func (m *Mock) Name() string { return "mock" }

// ResolveModel makes the mock catalog available to the estimation engine.
func (m *Mock) ResolveModel(_ context.Context, id int) (*models.Model, error) {
	model, ok := m.modelsByID[id]
	if !ok {
		return nil, errs.NewNotFound("model", strconv.Itoa(id))
	}
	copied := *model
	return &copied, nil
}

// freshAd copies an ad with the deviation recomputed from its current
// price and fair value. Deviation is never served stale.
func freshAd(ad *models.Ad) models.Ad {
	copied := *ad
	copied.DeviationPct = round2(models.Deviation(copied.Price, copied.FairValue))
	return copied
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func (m *Mock) GetDeals(_ context.Context, _ models.Scope, f DealFilters) (Page[models.Ad], error) {
	platFilter := platform.Normalize(normFilter(f.Platform))
	category := normFilter(f.Category)
	itemType := normFilter(f.ItemType)
	region := normFilter(f.Region)
	search := strings.ToLower(strings.TrimSpace(f.Search))

	var out []models.Ad
	for i := range m.data.Ads {
		ad := freshAd(&m.data.Ads[i])
		if platFilter != platform.Unknown && ad.Platform != platFilter {
			continue
		}
		if category != "" {
			model := m.modelsByID[ad.ModelID]
			if model == nil || string(model.Category) != category {
				continue
			}
		}
		if itemType != "" && string(ad.ItemType) != itemType {
			continue
		}
		if region != "" && ad.Region != region {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(ad.Title), search) {
			continue
		}
		out = append(out, ad)
	}

	// Best deals first; stable so equal deviations keep feed order.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DeviationPct < out[j].DeviationPct
	})
	return paginate(out, f.Page, f.Limit), nil
}

func (m *Mock) GetCatalogModels(_ context.Context, _ models.Scope, f CatalogFilters) (Page[models.Model], error) {
	category := normFilter(f.Category)
	brand := normFilter(f.Brand)
	search := strings.ToLower(strings.TrimSpace(f.Search))

	var out []models.Model
	for _, model := range m.data.Models {
		if category != "" && string(model.Category) != category {
			continue
		}
		if brand != "" && !strings.EqualFold(model.Brand, brand) {
			continue
		}
		if search != "" && !matchesAlias(model, search) {
			continue
		}
		out = append(out, model)
	}
	return paginate(out, f.Page, f.Limit), nil
}

func matchesAlias(model models.Model, search string) bool {
	if strings.Contains(strings.ToLower(model.Name), search) {
		return true
	}
	for _, alias := range model.Aliases {
		if strings.Contains(strings.ToLower(alias), search) {
			return true
		}
	}
	return false
}

func (m *Mock) GetModelDetail(ctx context.Context, _ models.Scope, id int) (*models.Model, error) {
	return m.ResolveModel(ctx, id)
}

func (m *Mock) GetAdDetail(_ context.Context, _ models.Scope, id int) (*models.Ad, error) {
	ad, ok := m.adsByID[id]
	if !ok {
		return nil, errs.NewNotFound("ad", strconv.Itoa(id))
	}
	copied := freshAd(ad)
	return &copied, nil
}

func (m *Mock) GetDashboardOverview(ctx context.Context, scope models.Scope) (*models.DashboardOverview, error) {
	var deals []models.Ad
	var sumDev float64
	for i := range m.data.Ads {
		ad := freshAd(&m.data.Ads[i])
		sumDev += ad.DeviationPct
		if ad.DeviationPct <= dealThresholdPct {
			deals = append(deals, ad)
		}
	}
	sort.SliceStable(deals, func(i, j int) bool {
		return deals[i].DeviationPct < deals[j].DeviationPct
	})
	top := deals
	if len(top) > 5 {
		top = top[:5]
	}

	credits, err := m.GetCredits(ctx, scope)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	watchCount := len(m.watch[scope.UserID])
	active := 0
	for _, a := range m.alerts[scope.UserID] {
		if a.IsActive {
			active++
		}
	}
	m.mu.RUnlock()

	avg := 0.0
	if len(m.data.Ads) > 0 {
		avg = round2(sumDev / float64(len(m.data.Ads)))
	}
	return &models.DashboardOverview{
		DealsToday:       len(deals),
		AvgDeviationPct:  avg,
		WatchlistCount:   watchCount,
		ActiveAlerts:     active,
		CreditsRemaining: credits,
		TopDeals:         top,
	}, nil
}

func (m *Mock) RunEstimation(ctx context.Context, scope models.Scope, req models.EstimationRequest) (*models.EstimationResult, error) {
	return m.engine.Run(ctx, scope, req)
}

func (m *Mock) GetEstimationHistory(ctx context.Context, scope models.Scope, page, limit int) (Page[models.HistoryEntry], error) {
	entries, total, err := m.history.List(ctx, scope, page, limit)
	if err != nil {
		return Page[models.HistoryEntry]{}, err
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	return Page[models.HistoryEntry]{Items: entries, Total: total, Page: page, PageSize: limit}, nil
}

// GetCredits reads through the credits cache when one is wired. Charges
// invalidate the key, so a post-run read always hits the ledger.
func (m *Mock) GetCredits(ctx context.Context, scope models.Scope) (int, error) {
	if m.cache != nil {
		if balance, ok := m.cache.Get(ctx, scope.UserID); ok {
			return balance, nil
		}
	}
	balance, err := m.ledger.Balance(ctx, scope)
	if err != nil {
		return 0, err
	}
	if m.cache != nil {
		m.cache.Set(ctx, scope.UserID, balance)
	}
	return balance, nil
}

func (m *Mock) GetWatchlist(_ context.Context, scope models.Scope) ([]models.WatchlistEntry, error) {
	m.mu.RLock()
	keys := make([]watchKey, 0, len(m.watch[scope.UserID]))
	added := make(map[watchKey]time.Time, len(m.watch[scope.UserID]))
	for k, at := range m.watch[scope.UserID] {
		keys = append(keys, k)
		added[k] = at
	}
	m.mu.RUnlock()

	sort.Slice(keys, func(i, j int) bool {
		if added[keys[i]].Equal(added[keys[j]]) {
			return keys[i].id < keys[j].id
		}
		return added[keys[i]].After(added[keys[j]])
	})

	out := make([]models.WatchlistEntry, 0, len(keys))
	for _, k := range keys {
		out = append(out, m.enrichEntry(k, added[k]))
	}
	return out, nil
}

// enrichEntry joins live pricing onto a stored (target, id) pair. Prices
// are never stored on the entry itself.
func (m *Mock) enrichEntry(k watchKey, added time.Time) models.WatchlistEntry {
	entry := models.WatchlistEntry{TargetType: k.target, TargetID: k.id, AddedAt: added}
	switch k.target {
	case models.TargetAd:
		if ad, ok := m.adsByID[k.id]; ok {
			fresh := freshAd(ad)
			entry.Title = fresh.Title
			entry.CurrentPrice = fresh.Price
			entry.FairValue = fresh.FairValue
			if model, ok := m.modelsByID[fresh.ModelID]; ok {
				entry.Change7dPct = model.Market.Var7dPct
			}
		}
	case models.TargetModel:
		if model, ok := m.modelsByID[k.id]; ok {
			entry.Title = model.Name
			entry.CurrentPrice = model.Market.MedianPrice
			entry.FairValue = model.Market.MedianPrice
			entry.Change7dPct = model.Market.Var7dPct
		}
	}
	return entry
}

// AddToWatchlist is idempotent: re-adding an existing target returns the
// existing entry and the list keeps exactly one row per (target, id).
func (m *Mock) AddToWatchlist(_ context.Context, scope models.Scope, target models.TargetType, id int) (*models.WatchlistEntry, error) {
	if err := m.checkTarget(target, id); err != nil {
		return nil, err
	}

	k := watchKey{target: target, id: id}
	m.mu.Lock()
	if m.watch[scope.UserID] == nil {
		m.watch[scope.UserID] = make(map[watchKey]time.Time)
	}
	added, exists := m.watch[scope.UserID][k]
	if !exists {
		added = m.now()
		m.watch[scope.UserID][k] = added
	}
	m.mu.Unlock()

	entry := m.enrichEntry(k, added)
	return &entry, nil
}

func (m *Mock) RemoveFromWatchlist(_ context.Context, scope models.Scope, target models.TargetType, id int) error {
	k := watchKey{target: target, id: id}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.watch[scope.UserID][k]; !ok {
		return errs.NewNotFound("watchlist entry", fmt.Sprintf("%s/%d", target, id))
	}
	delete(m.watch[scope.UserID], k)
	return nil
}

func (m *Mock) checkTarget(target models.TargetType, id int) error {
	switch target {
	case models.TargetAd:
		if _, ok := m.adsByID[id]; !ok {
			return errs.NewNotFound("ad", strconv.Itoa(id))
		}
	case models.TargetModel:
		if _, ok := m.modelsByID[id]; !ok {
			return errs.NewNotFound("model", strconv.Itoa(id))
		}
	default:
		return errs.NewValidation("target_type", "must be ad or model")
	}
	return nil
}

func (m *Mock) GetAlerts(_ context.Context, scope models.Scope) ([]models.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Alert, len(m.alerts[scope.UserID]))
	copy(out, m.alerts[scope.UserID])
	return out, nil
}

func (m *Mock) CreateAlert(_ context.Context, scope models.Scope, payload AlertPayload) (*models.Alert, error) {
	if err := validateAlertPayload(payload); err != nil {
		return nil, err
	}
	if err := m.checkTarget(payload.TargetType, payload.TargetID); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextAlertID++
	alert := models.Alert{
		ID:             m.nextAlertID,
		TargetType:     payload.TargetType,
		TargetID:       payload.TargetID,
		AlertType:      payload.AlertType,
		PriceThreshold: payload.PriceThreshold,
		IsActive:       true,
	}
	m.alerts[scope.UserID] = append(m.alerts[scope.UserID], alert)
	return &alert, nil
}

// validateAlertPayload enforces the threshold invariant: required for
// price alerts, rejected for deal_detected.
func validateAlertPayload(payload AlertPayload) error {
	if payload.AlertType.NeedsThreshold() {
		if payload.PriceThreshold == nil || *payload.PriceThreshold <= 0 {
			return errs.NewValidation("price_threshold", "required and must be positive for price alerts")
		}
	} else if payload.PriceThreshold != nil {
		return errs.NewValidation("price_threshold", "not applicable for deal_detected alerts")
	}
	return nil
}

func (m *Mock) UpdateAlert(_ context.Context, scope models.Scope, id uint, patch AlertUpdate) (*models.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.alerts[scope.UserID]
	for i := range list {
		if list[i].ID != id {
			continue
		}
		if patch.PriceThreshold != nil {
			if !list[i].AlertType.NeedsThreshold() {
				return nil, errs.NewValidation("price_threshold", "not applicable for this alert type")
			}
			list[i].PriceThreshold = patch.PriceThreshold
		}
		if patch.IsActive != nil {
			list[i].IsActive = *patch.IsActive
		}
		alert := list[i]
		return &alert, nil
	}
	return nil, errs.NewNotFound("alert", strconv.FormatUint(uint64(id), 10))
}

func (m *Mock) DeleteAlert(_ context.Context, scope models.Scope, id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.alerts[scope.UserID]
	for i := range list {
		if list[i].ID == id {
			m.alerts[scope.UserID] = append(list[:i], list[i+1:]...)
			return nil
		}
	}
	return errs.NewNotFound("alert", strconv.FormatUint(uint64(id), 10))
}

func (m *Mock) StartScrapJob(_ context.Context, scope models.Scope, req ScrapRequest) (*models.ScrapJob, error) {
	plat := platform.Normalize(req.Platform)
	if plat == platform.Unknown {
		return nil, errs.NewValidation("platform", "unknown marketplace")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobSeq++
	now := m.now()
	job := models.ScrapJob{
		ID:        uuid.NewString(),
		Platform:  plat,
		Keyword:   req.Keyword,
		Type:      req.Type,
		Status:    models.JobPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	// Deterministic progress targets so repeated demos line up.
	m.jobs[job.ID] = &mockJob{
		job:         job,
		targetPages: 3 + m.jobSeq%5,
		targetAds:   7 * (1 + m.jobSeq%4),
	}
	logrus.WithFields(logrus.Fields{
		"job_id":   job.ID,
		"platform": plat,
		"keyword":  req.Keyword,
		"user_id":  scope.UserID,
	}).Info("Mock scrape job started")

	copied := job
	return &copied, nil
}

// GetScrapJob returns the job's current state. The synthetic run advances
// one step per fetch until completion; terminal states are sticky.
func (m *Mock) GetScrapJob(_ context.Context, _ models.Scope, id string) (*models.ScrapJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mj, ok := m.jobs[id]
	if !ok {
		return nil, errs.NewNotFound("job", id)
	}

	if !mj.job.Status.Terminal() {
		mj.polls++
		switch {
		case mj.polls >= 3:
			mj.job.Status = models.JobCompleted
			mj.job.PagesScanned = mj.targetPages
			mj.job.AdsFound = mj.targetAds
		case mj.polls >= 1:
			mj.job.Status = models.JobRunning
			mj.job.PagesScanned = mj.targetPages * mj.polls / 3
			mj.job.AdsFound = mj.targetAds * mj.polls / 3
		}
		mj.job.UpdatedAt = m.now()
	}

	copied := mj.job
	return &copied, nil
}

func (m *Mock) CancelScrapJob(_ context.Context, _ models.Scope, id string) (*models.ScrapJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mj, ok := m.jobs[id]
	if !ok {
		return nil, errs.NewNotFound("job", id)
	}
	// Cancelling a finished job is a no-op: terminal states never
	// transition again.
	if !mj.job.Status.Terminal() {
		mj.job.Status = models.JobCancelled
		mj.job.UpdatedAt = m.now()
	}
	copied := mj.job
	return &copied, nil
}

func (m *Mock) GetAdminUsers(_ context.Context, _ models.Scope, page, limit int, search string) (Page[models.AdminUser], error) {
	search = strings.ToLower(strings.TrimSpace(normFilter(search)))
	var out []models.AdminUser
	for _, u := range m.data.Users {
		if search != "" &&
			!strings.Contains(strings.ToLower(u.Email), search) &&
			!strings.Contains(strings.ToLower(u.Username), search) {
			continue
		}
		out = append(out, u)
	}
	return paginate(out, page, limit), nil
}
