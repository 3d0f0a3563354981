package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"dealscope/internal/jobs"
	"dealscope/internal/models"
	"dealscope/internal/provider"
)

func newTestServer(t *testing.T, seedCredits int) (*Server, *provider.Mock) {
	t.Helper()
	mock := provider.NewMock(42, seedCredits, nil)
	registry := provider.NewRegistry(provider.ModeMock, mock, nil, nil, nil, provider.NewTrail(false))
	registry.Resolve(context.Background())
	poller := jobs.NewPoller(mock, 100*time.Millisecond)
	return New(registry, poller, nil, false), mock
}

func doJSON(s *Server, method, target, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-User-Id", "1")
	req.Header.Set("X-User-Plan", "pro")
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func TestHealthReportsProviderMode(t *testing.T) {
	s, _ := newTestServer(t, 100)
	rec := doJSON(s, http.MethodGet, "/v1/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["provider"] != "mock" {
		t.Errorf("provider = %v, want mock", body["provider"])
	}
}

type togglePinger struct{ err error }

func (p *togglePinger) Ping(context.Context) error { return p.err }

func TestHealthRecheckTracksUpstreamRecovery(t *testing.T) {
	mock := provider.NewMock(42, 100, nil)
	pinger := &togglePinger{err: errors.New("upstream down")}
	registry := provider.NewRegistry(provider.ModeAPI, mock, mock, pinger, nil, provider.NewTrail(false))
	registry.Resolve(context.Background())
	s := New(registry, jobs.NewPoller(mock, 100*time.Millisecond), nil, false)

	readHealth := func() map[string]interface{} {
		rec := doJSON(s, http.MethodGet, "/v1/health", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var body map[string]interface{}
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatal(err)
		}
		return body
	}

	if body := readHealth(); body["api_unavailable"] != true {
		t.Fatalf("api_unavailable = %v while upstream failing, want true", body["api_unavailable"])
	}

	pinger.err = nil
	if body := readHealth(); body["api_unavailable"] != false {
		t.Fatalf("api_unavailable = %v after upstream recovered, want false", body["api_unavailable"])
	}

	pinger.err = errors.New("upstream down again")
	if body := readHealth(); body["api_unavailable"] != true {
		t.Fatalf("api_unavailable = %v after upstream dropped, want true", body["api_unavailable"])
	}
}

func TestDealsFilterSpellingsEquivalentOverHTTP(t *testing.T) {
	s, _ := newTestServer(t, 100)

	recA := doJSON(s, http.MethodGet, "/v1/deals?platform=fb-marketplace&limit=50", "")
	recB := doJSON(s, http.MethodGet, "/v1/deals?platform=facebook&limit=50", "")
	if recA.Code != http.StatusOK || recB.Code != http.StatusOK {
		t.Fatalf("statuses = %d, %d", recA.Code, recB.Code)
	}
	if recA.Body.String() != recB.Body.String() {
		t.Error("alias spelling and canonical name returned different responses")
	}
}

func TestWatchlistDoubleAddOverHTTP(t *testing.T) {
	s, _ := newTestServer(t, 100)

	payload := `{"target_type":"model","target_id":1}`
	if rec := doJSON(s, http.MethodPost, "/v1/watchlist", payload); rec.Code != http.StatusOK {
		t.Fatalf("first add status = %d: %s", rec.Code, rec.Body.String())
	}
	if rec := doJSON(s, http.MethodPost, "/v1/watchlist", payload); rec.Code != http.StatusOK {
		t.Fatalf("second add status = %d: %s", rec.Code, rec.Body.String())
	}

	rec := doJSON(s, http.MethodGet, "/v1/watchlist", "")
	var entries []models.WatchlistEntry
	if err := json.Unmarshal(rec.Body.Bytes(), &entries); err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("watchlist has %d entries after double add, want 1", len(entries))
	}
}

func TestWatchlistRejectsBadTarget(t *testing.T) {
	s, _ := newTestServer(t, 100)
	rec := doJSON(s, http.MethodPost, "/v1/watchlist", `{"target_type":"gizmo","target_id":1}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestModelNotFoundIs404(t *testing.T) {
	s, _ := newTestServer(t, 100)
	rec := doJSON(s, http.MethodGet, "/v1/models/999999", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestEstimationInsufficientCreditsIs402(t *testing.T) {
	s, _ := newTestServer(t, 1)

	// Free plan costs 5 credits per run; the ledger only has 1.
	req := httptest.NewRequest(http.MethodPost, "/v1/estimations",
		strings.NewReader(`{"model_id":1,"ad_price":500}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-Id", "1")
	req.Header.Set("X-User-Plan", "free")
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)

	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("status = %d, want 402: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Required int `json:"required"`
		Current  int `json:"current"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Required != 5 || body.Current != 1 {
		t.Errorf("upsell payload = %+v, want required=5 current=1", body)
	}
}

func TestEstimationRunAndHistoryOverHTTP(t *testing.T) {
	s, _ := newTestServer(t, 100)

	rec := doJSON(s, http.MethodPost, "/v1/estimations", `{"model_id":1,"ad_price":450,"condition":"good","platform":"leboncoin"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("estimation status = %d: %s", rec.Code, rec.Body.String())
	}
	var result models.EstimationResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatal(err)
	}
	if result.BuyPriceRecommended <= 0 {
		t.Errorf("buy price = %.2f", result.BuyPriceRecommended)
	}
	if result.CreditCost != 2 {
		t.Errorf("credit cost = %d, want 2 on pro plan", result.CreditCost)
	}

	rec = doJSON(s, http.MethodGet, "/v1/estimations/history", "")
	var page provider.Page[models.HistoryEntry]
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatal(err)
	}
	if page.Total != 1 {
		t.Errorf("history total = %d after one run", page.Total)
	}
}

func TestEstimationRejectsMissingFields(t *testing.T) {
	s, _ := newTestServer(t, 100)
	rec := doJSON(s, http.MethodPost, "/v1/estimations", `{"ad_price":450}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestScrapJobRoundTripOverHTTP(t *testing.T) {
	s, _ := newTestServer(t, 100)

	rec := doJSON(s, http.MethodPost, "/v1/scrap/start", `{"platform":"LBC","keyword":"rtx 3080","type":"faible"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("start status = %d: %s", rec.Code, rec.Body.String())
	}
	var job models.ScrapJob
	if err := json.Unmarshal(rec.Body.Bytes(), &job); err != nil {
		t.Fatal(err)
	}
	if job.Platform != "leboncoin" {
		t.Errorf("platform = %q, want normalized leboncoin", job.Platform)
	}

	rec = doJSON(s, http.MethodPost, "/v1/jobs/"+job.ID+"/cancel", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel status = %d", rec.Code)
	}
	var cancelled models.ScrapJob
	if err := json.Unmarshal(rec.Body.Bytes(), &cancelled); err != nil {
		t.Fatal(err)
	}
	if cancelled.Status != models.JobCancelled {
		t.Errorf("status = %q, want cancelled", cancelled.Status)
	}
}

func TestProviderSwitchFlagsRestart(t *testing.T) {
	s, _ := newTestServer(t, 100)

	rec := doJSON(s, http.MethodPost, "/v1/provider", `{"mode":"api"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("switch status = %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Mode          string `json:"mode"`
		RestartNeeded bool   `json:"restart_needed"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Mode != "mock" {
		t.Errorf("mode hot-swapped to %q", body.Mode)
	}
	if !body.RestartNeeded {
		t.Error("switch did not flag restart")
	}
}

func TestTrailRouteHiddenOutsideDevMode(t *testing.T) {
	s, _ := newTestServer(t, 100)
	rec := doJSON(s, http.MethodGet, "/v1/provider/trail", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("trail route status = %d in production mode, want 404", rec.Code)
	}
}

// recordingMirror captures state-mirror traffic so tests can assert
// mutations reach the local store the alert sweep reads from.
type recordingMirror struct {
	alerts  map[uint]models.Alert
	watches map[string]bool
	jobs    map[string]models.JobStatus
}

func newRecordingMirror() *recordingMirror {
	return &recordingMirror{
		alerts:  make(map[uint]models.Alert),
		watches: make(map[string]bool),
		jobs:    make(map[string]models.JobStatus),
	}
}

func (m *recordingMirror) MirrorAlert(_ context.Context, _ uint, alert models.Alert) {
	m.alerts[alert.ID] = alert
}

func (m *recordingMirror) RemoveAlert(_ context.Context, _ uint, alertID uint) {
	delete(m.alerts, alertID)
}

func (m *recordingMirror) MirrorWatch(_ context.Context, _ uint, target models.TargetType, targetID int, _ time.Time) {
	m.watches[fmt.Sprintf("%s/%d", target, targetID)] = true
}

func (m *recordingMirror) RemoveWatch(_ context.Context, _ uint, target models.TargetType, targetID int) {
	delete(m.watches, fmt.Sprintf("%s/%d", target, targetID))
}

func (m *recordingMirror) SaveJob(_ context.Context, _ uint, job *models.ScrapJob) {
	m.jobs[job.ID] = job.Status
}

func TestMutationsReachStateMirror(t *testing.T) {
	mock := provider.NewMock(42, 100, nil)
	registry := provider.NewRegistry(provider.ModeMock, mock, nil, nil, nil, provider.NewTrail(false))
	registry.Resolve(context.Background())
	mirror := newRecordingMirror()
	s := New(registry, jobs.NewPoller(mock, 100*time.Millisecond), mirror, false)

	// Alert create lands in the mirror, delete removes it.
	rec := doJSON(s, http.MethodPost, "/v1/alerts",
		`{"target_type":"ad","target_id":1,"alert_type":"price_below","price_threshold":100}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create alert status = %d: %s", rec.Code, rec.Body.String())
	}
	var alert models.Alert
	if err := json.Unmarshal(rec.Body.Bytes(), &alert); err != nil {
		t.Fatal(err)
	}
	mirrored, ok := mirror.alerts[alert.ID]
	if !ok {
		t.Fatalf("created alert %d not mirrored", alert.ID)
	}
	if mirrored.AlertType != models.AlertPriceBelow || mirrored.TargetID != 1 {
		t.Fatalf("mirrored alert does not match created rule: %+v", mirrored)
	}

	rec = doJSON(s, http.MethodDelete, fmt.Sprintf("/v1/alerts/%d", alert.ID), "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete alert status = %d", rec.Code)
	}
	if _, ok := mirror.alerts[alert.ID]; ok {
		t.Fatal("deleted alert still mirrored")
	}

	// Watchlist add and remove mirror the same way.
	rec = doJSON(s, http.MethodPost, "/v1/watchlist", `{"target_type":"ad","target_id":1}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("watchlist add status = %d: %s", rec.Code, rec.Body.String())
	}
	if !mirror.watches["ad/1"] {
		t.Fatal("watchlist add not mirrored")
	}
	rec = doJSON(s, http.MethodDelete, "/v1/watchlist/ad/1", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("watchlist remove status = %d", rec.Code)
	}
	if mirror.watches["ad/1"] {
		t.Fatal("removed watchlist entry still mirrored")
	}

	// Job lifecycle keeps the mirrored status fresh.
	rec = doJSON(s, http.MethodPost, "/v1/scrap/start", `{"platform":"leboncoin","keyword":"rtx","type":"faible"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("scrap start status = %d: %s", rec.Code, rec.Body.String())
	}
	var job models.ScrapJob
	if err := json.Unmarshal(rec.Body.Bytes(), &job); err != nil {
		t.Fatal(err)
	}
	if _, ok := mirror.jobs[job.ID]; !ok {
		t.Fatalf("started job %s not mirrored", job.ID)
	}

	rec = doJSON(s, http.MethodPost, "/v1/jobs/"+job.ID+"/cancel", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel status = %d", rec.Code)
	}
	if got := mirror.jobs[job.ID]; got != models.JobCancelled {
		t.Fatalf("mirrored job status = %s, want %s", got, models.JobCancelled)
	}
}
