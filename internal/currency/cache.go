package currency

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Cache is a byte store with expiry
type Cache interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte, ttl time.Duration) error
}

// CachedRateService remembers unit rates so repeated conversions skip the network
type CachedRateService struct {
	next   RateService
	cache  Cache
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedRateService wraps next. Cached rates expire after ttl.
func NewCachedRateService(next RateService, cache Cache, ttl time.Duration, logger *zap.Logger) *CachedRateService {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &CachedRateService{next: next, cache: cache, ttl: ttl, logger: logger}
}

func rateKey(from, to string) string {
	return "rate:" + from + ":" + to
}

// Convert implements RateService
func (c *CachedRateService) Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	key := rateKey(from, to)

	if raw, err := c.cache.Get(key); err == nil {
		if rate, err := decimal.NewFromString(string(raw)); err == nil {
			return amount.Mul(rate), nil
		}
	}

	rate, err := c.next.Convert(ctx, decimal.NewFromInt(1), from, to)
	if err != nil {
		return decimal.Zero, err
	}

	if err := c.cache.Set(key, []byte(rate.String()), c.ttl); err != nil {
		c.logger.Debug("Failed to cache rate", zap.String("key", key), zap.Error(err))
	}
	return amount.Mul(rate), nil
}
