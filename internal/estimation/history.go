package estimation

import (
	"context"
	"sync"

	"dealscope/internal/models"
)

// HistoryCap bounds the per-user estimation history. When the cap is
// reached the oldest entry is dropped.
const HistoryCap = 50

// Store is the bounded, most-recent-first estimation history. Stored
// results are immutable; plan-dependent access is decided at read time.
type Store interface {
	Push(ctx context.Context, scope models.Scope, result models.EstimationResult) error
	// List returns a page of entries, newest first, decorated with the
	// read-time plan decision against scope.Plan. total counts all
	// stored entries for the user.
	List(ctx context.Context, scope models.Scope, page, limit int) (entries []models.HistoryEntry, total int, err error)
	Clear(ctx context.Context, scope models.Scope) error
}

func planRank(p models.Plan) int {
	switch p {
	case models.PlanExpert:
		return 2
	case models.PlanPro:
		return 1
	}
	return 0
}

// grantsFor compares the live plan against the tier frozen on the entry.
// A downgraded account sees the entry locked; the stored values remain.
func grantsFor(current, atCreation models.Plan) bool {
	return planRank(current) >= planRank(atCreation)
}

// MemoryStore is the in-process history used in mock mode. Reads copy
// the slice under the lock so no caller observes a half-written record.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[uint][]models.EstimationResult
}

// NewMemoryStore returns an empty history store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[uint][]models.EstimationResult)}
}

func (s *MemoryStore) Push(_ context.Context, scope models.Scope, result models.EstimationResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := append([]models.EstimationResult{result}, s.entries[scope.UserID]...)
	if len(list) > HistoryCap {
		list = list[:HistoryCap]
	}
	s.entries[scope.UserID] = list
	return nil
}

func (s *MemoryStore) List(_ context.Context, scope models.Scope, page, limit int) ([]models.HistoryEntry, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}

	s.mu.RLock()
	stored := s.entries[scope.UserID]
	results := make([]models.EstimationResult, len(stored))
	copy(results, stored)
	s.mu.RUnlock()

	total := len(results)
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	entries := make([]models.HistoryEntry, 0, end-start)
	for _, r := range results[start:end] {
		entries = append(entries, models.HistoryEntry{
			Result:            r,
			CurrentPlanGrants: grantsFor(scope.Plan, r.PlanAtCreation),
		})
	}
	return entries, total, nil
}

func (s *MemoryStore) Clear(_ context.Context, scope models.Scope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, scope.UserID)
	return nil
}
