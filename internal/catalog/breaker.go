package catalog

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/verdance/verdance/platform/internal/domain"
	"github.com/verdance/verdance/platform/internal/metrics"
)

// BreakerConfig configures the circuit breakers guarding collaborator calls.
type BreakerConfig struct {
	MaxRequests      uint32        `yaml:"max_requests"`      // trial calls allowed while half-open
	Interval         time.Duration `yaml:"interval"`          // closed-state count reset period
	Timeout          time.Duration `yaml:"timeout"`           // open duration before a trial
	FailureThreshold uint32        `yaml:"failure_threshold"` // consecutive failures that open the breaker
}

// DefaultBreakerConfig returns the breaker defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
	}
}

// BreakerSource wraps a catalog Source and a UserSource with circuit
// breakers. While a breaker is open calls fail fast with a data_error
// instead of waiting on a collaborator that is known to be down.
type BreakerSource struct {
	source Source
	users  UserSource

	snapshots *gobreaker.CircuitBreaker[*Snapshot]
	lookups   *gobreaker.CircuitBreaker[domain.User]
}

// NewBreakerSource wraps source and users. users may be nil, in which case
// GetUser reports ErrUserNotFound for every email.
func NewBreakerSource(source Source, users UserSource, cfg BreakerConfig, logger *slog.Logger) *BreakerSource {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultBreakerConfig()
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = def.MaxRequests
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}

	return &BreakerSource{
		source:    source,
		users:     users,
		snapshots: gobreaker.NewCircuitBreaker[*Snapshot](breakerSettings("catalog", cfg, logger)),
		lookups:   gobreaker.NewCircuitBreaker[domain.User](breakerSettings("users", cfg, logger)),
	}
}

func breakerSettings(name string, cfg BreakerConfig, logger *slog.Logger) gobreaker.Settings {
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)
	return gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		// A missing user or a caller that gave up says nothing about the
		// collaborator's health.
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, ErrUserNotFound) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name, "from", from.String(), "to", to.String())
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
		},
	}
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// LoadSnapshot loads a snapshot through the catalog breaker.
func (b *BreakerSource) LoadSnapshot(ctx context.Context) (*Snapshot, error) {
	start := time.Now()
	snap, err := b.snapshots.Execute(func() (*Snapshot, error) {
		return b.source.LoadSnapshot(ctx)
	})
	metrics.CatalogLoadDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.CatalogLoadsTotal.WithLabelValues(loadStatus(err)).Inc()
		return nil, breakerError(err, "catalog.load_snapshot", "catalog is unavailable")
	}
	metrics.CatalogLoadsTotal.WithLabelValues("ok").Inc()
	metrics.CatalogItems.WithLabelValues(string(domain.KindPlant)).Set(float64(len(snap.Plants)))
	metrics.CatalogItems.WithLabelValues(string(domain.KindProduct)).Set(float64(len(snap.Products)))
	metrics.CatalogItems.WithLabelValues(string(domain.KindKit)).Set(float64(len(snap.Kits)))
	return snap, nil
}

// GetUser looks up a user through the user breaker. ErrUserNotFound passes
// through unwrapped so callers can fall back to the anonymous user.
func (b *BreakerSource) GetUser(ctx context.Context, email string) (domain.User, error) {
	if b.users == nil {
		return domain.User{}, ErrUserNotFound
	}
	u, err := b.lookups.Execute(func() (domain.User, error) {
		return b.users.GetUser(ctx, email)
	})
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return domain.User{}, err
		}
		return domain.User{}, breakerError(err, "catalog.get_user", "user records are unavailable")
	}
	return ResolveTier(u), nil
}

// State returns the current breaker states keyed by breaker name.
func (b *BreakerSource) State() map[string]string {
	return map[string]string{
		b.snapshots.Name(): b.snapshots.State().String(),
		b.lookups.Name():   b.lookups.State().String(),
	}
}

func loadStatus(err error) string {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "rejected"
	}
	return "error"
}

func breakerError(err error, op, message string) error {
	var derr *domain.Error
	if errors.As(err, &derr) {
		return err
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return domain.DataError(err, op, message+" (circuit open)")
	}
	return domain.DataError(err, op, message)
}
