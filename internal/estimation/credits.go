package estimation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"dealscope/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// MemoryLedger is the in-process credit ledger used in mock mode. Every
// user starts from the same seeded balance.
type MemoryLedger struct {
	mu       sync.Mutex
	seed     int
	balances map[uint]int
}

// NewMemoryLedger builds a ledger seeding each user with seed credits.
func NewMemoryLedger(seed int) *MemoryLedger {
	return &MemoryLedger{seed: seed, balances: make(map[uint]int)}
}

func (l *MemoryLedger) Balance(_ context.Context, scope models.Scope) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.balances[scope.UserID]; !ok {
		l.balances[scope.UserID] = l.seed
	}
	return l.balances[scope.UserID], nil
}

func (l *MemoryLedger) Charge(_ context.Context, scope models.Scope, amount int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.balances[scope.UserID]; !ok {
		l.balances[scope.UserID] = l.seed
	}
	if l.balances[scope.UserID] < amount {
		return fmt.Errorf("ledger underflow for user %d", scope.UserID)
	}
	l.balances[scope.UserID] -= amount
	return nil
}

// CreditsCache caches remaining-credits reads in Redis so the dashboard
// does not hit the provider on every render. Charges invalidate the key;
// a nil client disables caching entirely.
type CreditsCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCreditsCache wraps a redis client. client may be nil.
func NewCreditsCache(client *redis.Client) *CreditsCache {
	return &CreditsCache{client: client, ttl: 5 * time.Minute}
}

func creditsKey(userID uint) string {
	return fmt.Sprintf("dealscope:credits:%d", userID)
}

// Get returns the cached balance and whether it was present.
func (c *CreditsCache) Get(ctx context.Context, userID uint) (int, bool) {
	if c == nil || c.client == nil {
		return 0, false
	}
	val, err := c.client.Get(ctx, creditsKey(userID)).Int()
	if err != nil {
		return 0, false
	}
	return val, true
}

// Set stores a balance read.
func (c *CreditsCache) Set(ctx context.Context, userID uint, balance int) {
	if c == nil || c.client == nil {
		return
	}
	if err := c.client.Set(ctx, creditsKey(userID), balance, c.ttl).Err(); err != nil {
		logrus.WithError(err).WithField("user_id", userID).Warn("Failed to cache credits balance")
	}
}

// InvalidateCredits drops the cached balance after a charge.
func (c *CreditsCache) InvalidateCredits(ctx context.Context, userID uint) {
	if c == nil || c.client == nil {
		return
	}
	if err := c.client.Del(ctx, creditsKey(userID)).Err(); err != nil {
		logrus.WithError(err).WithField("user_id", userID).Warn("Failed to invalidate credits cache")
	}
}
