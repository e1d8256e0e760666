package llm

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/gmsas95/moneychat/internal/config"
	"github.com/gmsas95/moneychat/internal/metrics"
)

// Service is the process-wide completion client: guarded providers behind
// a failover manager. Build it once at startup and inject it.
type Service struct {
	*ProviderManager
	guards map[string]*Guard
}

// NewService builds one guarded client per provider in cfg.ProviderOrder()
// that has credentials. With none configured, Generate reports
// ErrProviderNotConfigured.
func NewService(ctx context.Context, cfg *config.Config, m *metrics.Metrics, logger *zap.Logger) (*Service, error) {
	svc := &Service{
		ProviderManager: NewProviderManager(logger),
		guards:          make(map[string]*Guard),
	}

	for priority, name := range cfg.ProviderOrder() {
		p, ok := cfg.GetProvider(name)
		if !ok || p.APIKey == "" {
			logger.Debug("Skipping provider without credentials", zap.String("provider", name))
			continue
		}

		var client Completer
		switch p.Type {
		case "gemini":
			gc, err := NewGeminiClient(ctx, p)
			if err != nil {
				return nil, err
			}
			client = gc
		default:
			client = NewClient(p)
		}

		timeout := p.Timeout
		if timeout <= 0 {
			timeout = 30
		}
		guard := NewGuard(name, client, GuardConfig{
			Timeout:       time.Duration(timeout) * time.Second,
			RatePerMinute: cfg.LLM.RatePerMinute,
			Burst:         cfg.LLM.Burst,
			MaxFailures:   cfg.LLM.Breaker.MaxFailures,
			OpenTimeout:   time.Duration(cfg.LLM.Breaker.OpenSeconds) * time.Second,
		}, m, logger.Named(name))

		svc.guards[name] = guard
		svc.AddProvider(name, guard, priority)

		logger.Info("LLM provider ready",
			zap.String("provider", name),
			zap.String("type", p.Type),
			zap.String("model", p.Model),
		)
	}

	return svc, nil
}

// ApplyLimits pushes new rate limits to every provider, for config reloads
func (s *Service) ApplyLimits(perMinute, burst int) {
	for _, g := range s.guards {
		g.SetLimit(perMinute, burst)
	}
}

// ProviderStatus reports each provider with its breaker state
func (s *Service) ProviderStatus() []ProviderStatus {
	status := s.GetProviderStatus()
	for i := range status {
		if g, ok := s.guards[status[i].Name]; ok {
			status[i].Breaker = g.State()
		}
	}
	return status
}
