package provider

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	// ModeMock and ModeAPI are the two provider selections.
	ModeMock = "mock"
	ModeAPI  = "api"

	overrideKey = "dealscope:provider:override"
)

// Pinger is the health check hook of the api implementation.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Overrides persists the operator's runtime provider override. The
// override shadows the configured default until explicitly cleared.
type Overrides interface {
	Get(ctx context.Context) string
	Set(ctx context.Context, mode string) error
	Clear(ctx context.Context) error
}

// OverrideStore is the redis-backed Overrides implementation; it
// survives restarts. A nil redis client disables persistence, leaving
// only the configured default.
type OverrideStore struct {
	client *redis.Client
}

// NewOverrideStore wraps a redis client. client may be nil.
func NewOverrideStore(client *redis.Client) *OverrideStore {
	return &OverrideStore{client: client}
}

// Get returns the stored override mode, or "" when none is set.
func (s *OverrideStore) Get(ctx context.Context) string {
	if s == nil || s.client == nil {
		return ""
	}
	mode, err := s.client.Get(ctx, overrideKey).Result()
	if err != nil {
		return ""
	}
	return mode
}

// Set stores an override mode.
func (s *OverrideStore) Set(ctx context.Context, mode string) error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Set(ctx, overrideKey, mode, 0).Err()
}

// Clear removes the override, restoring the configured default on the
// next startup.
func (s *OverrideStore) Clear(ctx context.Context) error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Del(ctx, overrideKey).Err()
}

// Registry owns provider selection. Exactly one implementation is active
// for the process lifetime, resolved at startup from the configured
// default and the persisted override (override wins). Switch calls
// record the operator's choice for the next start; in-flight state is
// never hot-swapped.
type Registry struct {
	configured string
	override   Overrides
	trail      *Trail

	mock   DataProvider
	api    DataProvider
	pinger Pinger

	mu             sync.RWMutex
	activeMode     string
	apiUnavailable bool
	restartNeeded  bool
}

// NewRegistry builds a registry. pinger is the api implementation's
// health check; it may be nil when no api provider is configured.
func NewRegistry(configuredMode string, mock, api DataProvider, pinger Pinger, override Overrides, trail *Trail) *Registry {
	if configuredMode != ModeAPI {
		configuredMode = ModeMock
	}
	return &Registry{
		configured: configuredMode,
		override:   override,
		trail:      trail,
		mock:       mock,
		api:        api,
		pinger:     pinger,
	}
}

// Resolve decides the active implementation for this process. Called
// once during startup, before the HTTP server accepts traffic.
func (r *Registry) Resolve(ctx context.Context) {
	mode := r.configured
	if o := r.overrideMode(ctx); o == ModeMock || o == ModeAPI {
		mode = o
		logrus.WithField("mode", mode).Info("Provider override active, shadowing configured default")
	}
	if mode == ModeAPI && r.api == nil {
		logrus.Warn("API provider not configured, falling back to mock")
		mode = ModeMock
	}

	r.mu.Lock()
	r.activeMode = mode
	r.mu.Unlock()
	logrus.WithField("provider", mode).Info("Data provider selected")
}

// Active returns the selected provider, wrapped with the debug trail.
func (r *Registry) Active() DataProvider {
	r.mu.RLock()
	mode := r.activeMode
	r.mu.RUnlock()
	if mode == ModeAPI {
		return WithTrail(r.api, r.trail)
	}
	return WithTrail(r.mock, r.trail)
}

// ActiveMode returns the mode selected at startup.
func (r *Registry) ActiveMode() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.activeMode
}

// IsMockMode reports whether the mock implementation is live.
func (r *Registry) IsMockMode() bool {
	return r.ActiveMode() == ModeMock
}

// IsAPIUnavailable reports the last observed health state. Consumed by
// the persistent banner; true only ever set by a failed health check.
func (r *Registry) IsAPIUnavailable() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.apiUnavailable
}

// RestartNeeded reports whether a switch was recorded after startup.
func (r *Registry) RestartNeeded() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.restartNeeded
}

func (r *Registry) overrideMode(ctx context.Context) string {
	if r.override == nil {
		return ""
	}
	return r.override.Get(ctx)
}

// SwitchToMock persists a mock override. Takes effect on next startup.
func (r *Registry) SwitchToMock(ctx context.Context) error {
	if r.override != nil {
		if err := r.override.Set(ctx, ModeMock); err != nil {
			return err
		}
	}
	r.markRestart(ModeMock)
	return nil
}

// SwitchToAPI clears the override so the configured default applies, or
// forces api when the default is mock.
func (r *Registry) SwitchToAPI(ctx context.Context) error {
	if r.override != nil {
		var err error
		if r.configured == ModeAPI {
			err = r.override.Clear(ctx)
		} else {
			err = r.override.Set(ctx, ModeAPI)
		}
		if err != nil {
			return err
		}
	}
	r.markRestart(ModeAPI)
	return nil
}

// ClearOverride removes any stored override without choosing a side.
func (r *Registry) ClearOverride(ctx context.Context) error {
	if r.override != nil {
		if err := r.override.Clear(ctx); err != nil {
			return err
		}
	}
	r.markRestart(r.configured)
	return nil
}

func (r *Registry) markRestart(wanted string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.restartNeeded = wanted != r.activeMode
	logrus.WithFields(logrus.Fields{
		"wanted": wanted,
		"active": r.activeMode,
	}).Info("Provider switch recorded")
}

// CheckAPIHealth pings the upstream and folds the outcome into the
// unavailability flag. This is the single place a transport failure is
// converted to state instead of being propagated.
func (r *Registry) CheckAPIHealth(ctx context.Context) bool {
	if r.pinger == nil {
		r.setUnavailable(true)
		return false
	}
	err := r.pinger.Ping(ctx)
	if err != nil {
		logrus.WithError(err).Warn("API health check failed")
	}
	r.setUnavailable(err != nil)
	return err == nil
}

func (r *Registry) setUnavailable(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.apiUnavailable = v
}

// Trail exposes the debug trail for the development-only inspection
// endpoint.
func (r *Registry) Trail() *Trail {
	return r.trail
}
