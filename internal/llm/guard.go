package llm

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	apperrors "github.com/gmsas95/moneychat/internal/errors"
	"github.com/gmsas95/moneychat/internal/metrics"
)

// GuardConfig bounds a single provider
type GuardConfig struct {
	Timeout       time.Duration
	RatePerMinute int // 0 = unlimited
	Burst         int
	MaxFailures   uint32
	OpenTimeout   time.Duration
}

// Guard wraps a Completer with a per-call timeout, a token-bucket limiter
// and a circuit breaker
type Guard struct {
	name    string
	next    Completer
	timeout time.Duration
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[string]
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewGuard wraps next. A nil metrics disables recording.
func NewGuard(name string, next Completer, cfg GuardConfig, m *metrics.Metrics, logger *zap.Logger) *Guard {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}

	g := &Guard{
		name:    name,
		next:    next,
		timeout: cfg.Timeout,
		limiter: rate.NewLimiter(limitOf(cfg.RatePerMinute, cfg.Burst)),
		metrics: m,
		logger:  logger,
	}

	maxFailures := cfg.MaxFailures
	g.breaker = gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        "llm:" + name,
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			// a throttled call says nothing about provider health
			return err == nil || errors.Is(err, apperrors.ErrRateLimited)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return g
}

// SetLimit changes the request rate. perMinute <= 0 removes the limit.
func (g *Guard) SetLimit(perMinute, burst int) {
	limit, b := limitOf(perMinute, burst)
	g.limiter.SetLimit(limit)
	g.limiter.SetBurst(b)
}

func limitOf(perMinute, burst int) (rate.Limit, int) {
	if perMinute <= 0 {
		return rate.Inf, 0
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.Limit(float64(perMinute) / 60.0), burst
}

// Generate implements Completer
func (g *Guard) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	if err := g.limiter.Wait(ctx); err != nil {
		g.record(apperrors.ErrRateLimited)
		return "", apperrors.WithCause(apperrors.ErrRateLimited, err)
	}

	text, err := g.breaker.Execute(func() (string, error) {
		return g.next.Generate(ctx, prompt)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = apperrors.WithCause(apperrors.ErrProviderUnavailable, err)
	}
	g.record(err)
	return text, err
}

// State reports the breaker state, for health output
func (g *Guard) State() string {
	return g.breaker.State().String()
}

func (g *Guard) record(err error) {
	if g.metrics != nil {
		g.metrics.RecordLLMCall(g.name, err)
	}
}
