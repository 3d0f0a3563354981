package estimation

import (
	"context"
	"fmt"
	"testing"

	"dealscope/internal/models"
)

func TestMemoryStoreCapAndOrder(t *testing.T) {
	store := NewMemoryStore()
	scope := models.Scope{UserID: 1, Plan: models.PlanPro}

	for i := 0; i < HistoryCap+10; i++ {
		store.Push(context.Background(), scope, models.EstimationResult{
			ID:             fmt.Sprintf("run-%d", i),
			PlanAtCreation: models.PlanPro,
		})
	}

	entries, total, err := store.List(context.Background(), scope, 1, HistoryCap)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != HistoryCap {
		t.Errorf("total = %d, want cap %d", total, HistoryCap)
	}
	if entries[0].Result.ID != fmt.Sprintf("run-%d", HistoryCap+9) {
		t.Errorf("newest entry first, got %s", entries[0].Result.ID)
	}
	last := entries[len(entries)-1].Result.ID
	if last != "run-10" {
		t.Errorf("oldest surviving entry should be run-10, got %s", last)
	}
}

func TestMemoryStorePaginationSumsToTotal(t *testing.T) {
	store := NewMemoryStore()
	scope := models.Scope{UserID: 2, Plan: models.PlanFree}
	for i := 0; i < 23; i++ {
		store.Push(context.Background(), scope, models.EstimationResult{ID: fmt.Sprintf("r%d", i)})
	}

	seen := 0
	for page := 1; ; page++ {
		entries, total, _ := store.List(context.Background(), scope, page, 10)
		if total != 23 {
			t.Fatalf("total = %d, want 23", total)
		}
		if len(entries) == 0 {
			break
		}
		if len(entries) > 10 {
			t.Fatalf("page %d holds %d items, page_size is 10", page, len(entries))
		}
		seen += len(entries)
	}
	if seen != 23 {
		t.Errorf("sum of page items = %d, want 23", seen)
	}
}

func TestPlanReplayLocking(t *testing.T) {
	store := NewMemoryStore()
	proScope := models.Scope{UserID: 3, Plan: models.PlanPro}
	store.Push(context.Background(), proScope, models.EstimationResult{
		ID:             "pro-run",
		PlanAtCreation: models.PlanPro,
		MarginPct:      12.5,
	})

	// Same user later on the free tier: entry renders locked, but the
	// stored values are intact for comparison on a re-run.
	freeScope := models.Scope{UserID: 3, Plan: models.PlanFree}
	entries, _, _ := store.List(context.Background(), freeScope, 1, 10)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].CurrentPlanGrants {
		t.Error("free tier must not unlock a pro-tier result")
	}
	if entries[0].Result.MarginPct != 12.5 {
		t.Error("stored values must be retained, never discarded")
	}

	// Back on pro: same stored row unlocks again without mutation.
	entries, _, _ = store.List(context.Background(), proScope, 1, 10)
	if !entries[0].CurrentPlanGrants {
		t.Error("matching tier must unlock the entry")
	}

	// Upgrades unlock entries created on lower tiers.
	expertScope := models.Scope{UserID: 3, Plan: models.PlanExpert}
	entries, _, _ = store.List(context.Background(), expertScope, 1, 10)
	if !entries[0].CurrentPlanGrants {
		t.Error("higher tier must unlock a lower-tier entry")
	}
}

func TestMemoryLedger(t *testing.T) {
	ledger := NewMemoryLedger(10)
	scope := models.Scope{UserID: 1}

	if b, _ := ledger.Balance(context.Background(), scope); b != 10 {
		t.Fatalf("seed balance = %d", b)
	}
	if err := ledger.Charge(context.Background(), scope, 4); err != nil {
		t.Fatalf("Charge: %v", err)
	}
	if b, _ := ledger.Balance(context.Background(), scope); b != 6 {
		t.Errorf("balance after charge = %d, want 6", b)
	}
	if err := ledger.Charge(context.Background(), scope, 7); err == nil {
		t.Error("over-charge should fail")
	}
}
