package provider

import (
	"context"
	"errors"
	"testing"
)

type memOverride struct {
	mode string
}

func (m *memOverride) Get(context.Context) string { return m.mode }
func (m *memOverride) Set(_ context.Context, mode string) error {
	m.mode = mode
	return nil
}
func (m *memOverride) Clear(context.Context) error {
	m.mode = ""
	return nil
}

type stubPinger struct {
	err error
}

func (p *stubPinger) Ping(context.Context) error { return p.err }

func TestResolveUsesConfiguredDefault(t *testing.T) {
	mock := newTestMock()
	r := NewRegistry(ModeMock, mock, nil, nil, &memOverride{}, NewTrail(false))
	r.Resolve(context.Background())

	if !r.IsMockMode() {
		t.Error("expected mock mode from configured default")
	}
	if r.Active().Name() != "mock" {
		t.Errorf("active provider is %q", r.Active().Name())
	}
}

func TestResolveOverrideBeatsConfigured(t *testing.T) {
	mock := newTestMock()
	r := NewRegistry(ModeAPI, mock, mock, &stubPinger{}, &memOverride{mode: ModeMock}, NewTrail(false))
	r.Resolve(context.Background())

	if r.ActiveMode() != ModeMock {
		t.Errorf("active mode = %q, override should win over configured api", r.ActiveMode())
	}
}

func TestResolveFallsBackWhenAPIMissing(t *testing.T) {
	mock := newTestMock()
	r := NewRegistry(ModeAPI, mock, nil, nil, &memOverride{}, NewTrail(false))
	r.Resolve(context.Background())

	if r.ActiveMode() != ModeMock {
		t.Errorf("active mode = %q, want mock fallback without an api provider", r.ActiveMode())
	}
}

func TestSwitchPersistsAndFlagsRestart(t *testing.T) {
	ctx := context.Background()
	mock := newTestMock()
	store := &memOverride{}
	r := NewRegistry(ModeMock, mock, mock, &stubPinger{}, store, NewTrail(false))
	r.Resolve(ctx)

	if r.RestartNeeded() {
		t.Fatal("restart flagged before any switch")
	}
	if err := r.SwitchToAPI(ctx); err != nil {
		t.Fatal(err)
	}
	if store.mode != ModeAPI {
		t.Errorf("stored override = %q, want api", store.mode)
	}
	if !r.RestartNeeded() {
		t.Error("switch away from active mode must flag a restart")
	}
	// The live provider never hot-swaps.
	if r.ActiveMode() != ModeMock {
		t.Errorf("active mode changed to %q without a restart", r.ActiveMode())
	}

	if err := r.SwitchToMock(ctx); err != nil {
		t.Fatal(err)
	}
	if r.RestartNeeded() {
		t.Error("switching back to the active mode should clear the restart flag")
	}
}

func TestSwitchToAPIClearsOverrideWhenConfiguredAPI(t *testing.T) {
	ctx := context.Background()
	mock := newTestMock()
	store := &memOverride{mode: ModeMock}
	r := NewRegistry(ModeAPI, mock, mock, &stubPinger{}, store, NewTrail(false))
	r.Resolve(ctx)

	if err := r.SwitchToAPI(ctx); err != nil {
		t.Fatal(err)
	}
	if store.mode != "" {
		t.Errorf("override still set to %q, should be cleared when api is the default", store.mode)
	}
}

func TestCheckAPIHealthFoldsErrors(t *testing.T) {
	ctx := context.Background()
	mock := newTestMock()
	p := &stubPinger{err: errors.New("connection refused")}
	r := NewRegistry(ModeAPI, mock, mock, p, &memOverride{}, NewTrail(false))
	r.Resolve(ctx)

	if r.CheckAPIHealth(ctx) {
		t.Error("health check reported ok on ping failure")
	}
	if !r.IsAPIUnavailable() {
		t.Error("unavailability flag not set after failed ping")
	}

	p.err = nil
	if !r.CheckAPIHealth(ctx) {
		t.Error("health check failed with a healthy upstream")
	}
	if r.IsAPIUnavailable() {
		t.Error("unavailability flag not cleared after recovery")
	}
}

func TestTrailRecordsCallsWhenEnabled(t *testing.T) {
	ctx := context.Background()
	mock := newTestMock()
	trail := NewTrail(true)
	r := NewRegistry(ModeMock, mock, nil, nil, &memOverride{}, trail)
	r.Resolve(ctx)

	active := r.Active()
	scope := testScope()
	if _, err := active.GetDeals(ctx, scope, DealFilters{Platform: "ebay", Limit: 5}); err != nil {
		t.Fatal(err)
	}
	if _, err := active.GetCredits(ctx, scope); err != nil {
		t.Fatal(err)
	}

	records := trail.Snapshot()
	if len(records) != 2 {
		t.Fatalf("trail has %d records, want 2", len(records))
	}
	// Oldest first, newest appended.
	if records[0].Endpoint != "getDeals" || records[1].Endpoint != "getCredits" {
		t.Errorf("unexpected endpoints %q, %q", records[0].Endpoint, records[1].Endpoint)
	}
	if records[0].Impl != "mock" {
		t.Errorf("impl = %q, want mock", records[0].Impl)
	}
}

func TestTrailDisabledRecordsNothing(t *testing.T) {
	ctx := context.Background()
	mock := newTestMock()
	trail := NewTrail(false)
	r := NewRegistry(ModeMock, mock, nil, nil, &memOverride{}, trail)
	r.Resolve(ctx)

	if _, err := r.Active().GetDeals(ctx, testScope(), DealFilters{Limit: 5}); err != nil {
		t.Fatal(err)
	}
	if got := len(trail.Snapshot()); got != 0 {
		t.Errorf("disabled trail recorded %d calls", got)
	}
}

func TestTrailCapsAtLimit(t *testing.T) {
	trail := NewTrail(true)
	for i := 0; i < trailCap+25; i++ {
		trail.Record("getDeals", "mock", nil, i, nil)
	}
	records := trail.Snapshot()
	if len(records) != trailCap {
		t.Fatalf("trail kept %d records, cap is %d", len(records), trailCap)
	}
	if records[len(records)-1].Count != trailCap+24 {
		t.Errorf("newest record count = %d, want %d", records[len(records)-1].Count, trailCap+24)
	}
}
