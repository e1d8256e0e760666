// Package llm provides completion clients with multi-provider failover
package llm

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/gmsas95/moneychat/internal/errors"
)

// ProviderManager tries its providers in priority order until one answers
type ProviderManager struct {
	providers []ProviderConfig
	current   int
	mu        sync.RWMutex
	logger    *zap.Logger
}

// ProviderConfig holds a provider with its priority and health
type ProviderConfig struct {
	Name     string
	Client   Completer
	Priority int // Lower = higher priority
	LastErr  error
	LastUsed time.Time
}

// ProviderStatus is the health of one provider as reported by /api/health
type ProviderStatus struct {
	Name     string    `json:"name"`
	Priority int       `json:"priority"`
	Healthy  bool      `json:"healthy"`
	LastUsed time.Time `json:"lastUsed,omitempty"`
	Breaker  string    `json:"breaker,omitempty"`
}

// NewProviderManager creates a new provider manager
func NewProviderManager(logger *zap.Logger) *ProviderManager {
	return &ProviderManager{
		providers: make([]ProviderConfig, 0),
		logger:    logger,
	}
}

// AddProvider adds a provider to the manager
func (pm *ProviderManager) AddProvider(name string, client Completer, priority int) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.providers = append(pm.providers, ProviderConfig{
		Name:     name,
		Client:   client,
		Priority: priority,
	})

	sort.SliceStable(pm.providers, func(i, j int) bool {
		return pm.providers[i].Priority < pm.providers[j].Priority
	})
}

// Len returns the number of registered providers
func (pm *ProviderManager) Len() int {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return len(pm.providers)
}

// Generate sends the prompt with automatic failover. It starts from the
// provider that last succeeded.
func (pm *ProviderManager) Generate(ctx context.Context, prompt string) (string, error) {
	pm.mu.RLock()
	startIdx := pm.current
	n := len(pm.providers)
	pm.mu.RUnlock()

	if n == 0 {
		return "", apperrors.ErrProviderNotConfigured
	}

	var lastErr error

	for i := 0; i < n; i++ {
		idx := (startIdx + i) % n

		pm.mu.RLock()
		provider := pm.providers[idx]
		pm.mu.RUnlock()

		if err := ctx.Err(); err != nil {
			return "", err
		}

		text, err := provider.Client.Generate(ctx, prompt)
		if err == nil {
			pm.mu.Lock()
			pm.current = idx
			pm.providers[idx].LastUsed = time.Now()
			pm.providers[idx].LastErr = nil
			pm.mu.Unlock()

			if i > 0 {
				pm.logger.Info("Failover successful",
					zap.String("provider", provider.Name),
					zap.Int("attempt", i+1),
				)
			}
			return text, nil
		}

		pm.mu.Lock()
		pm.providers[idx].LastErr = err
		pm.mu.Unlock()

		lastErr = err
		pm.logger.Warn("Provider failed, trying next",
			zap.String("provider", provider.Name),
			zap.Error(err),
		)
	}

	if lastErr == nil {
		return "", apperrors.ErrProviderNotConfigured
	}
	return "", fmt.Errorf("all providers failed, last error: %w", lastErr)
}

// GetProviderStatus returns status of all providers in priority order
func (pm *ProviderManager) GetProviderStatus() []ProviderStatus {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	status := make([]ProviderStatus, 0, len(pm.providers))
	for _, p := range pm.providers {
		status = append(status, ProviderStatus{
			Name:     p.Name,
			Priority: p.Priority,
			Healthy:  p.LastErr == nil,
			LastUsed: p.LastUsed,
		})
	}
	return status
}
