package currency

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	apperrors "github.com/gmsas95/moneychat/internal/errors"
)

// HTTPRateService queries a Frankfurter-compatible API:
// GET {base}/latest?amount=&from=&to= -> {"rates": {"EUR": 12.34}}
type HTTPRateService struct {
	baseURL string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[decimal.Decimal]
}

// NewHTTPRateService creates the client. maxFailures consecutive errors open
// the breaker for openFor.
func NewHTTPRateService(baseURL string, timeout time.Duration, maxFailures uint32, openFor time.Duration, logger *zap.Logger) *HTTPRateService {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if maxFailures == 0 {
		maxFailures = 5
	}

	return &HTTPRateService{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker[decimal.Decimal](gobreaker.Settings{
			Name:    "currency",
			Timeout: openFor,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= maxFailures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("Circuit breaker state changed",
					zap.String("breaker", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
			},
		}),
	}
}

type latestResponse struct {
	Amount json.Number            `json:"amount"`
	Base   string                 `json:"base"`
	Date   string                 `json:"date"`
	Rates  map[string]json.Number `json:"rates"`
}

// Convert implements RateService
func (s *HTTPRateService) Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	return s.breaker.Execute(func() (decimal.Decimal, error) {
		return s.fetch(ctx, amount, from, to)
	})
}

func (s *HTTPRateService) fetch(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	q := url.Values{}
	q.Set("amount", amount.String())
	q.Set("from", from)
	q.Set("to", to)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/latest?"+q.Encode(), nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return decimal.Zero, apperrors.WithCause(apperrors.ErrConversionFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return decimal.Zero, apperrors.WithCause(apperrors.ErrConversionFailed,
			fmt.Errorf("rate API status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	var result latestResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return decimal.Zero, apperrors.WithCause(apperrors.ErrConversionFailed, err)
	}

	raw, ok := result.Rates[to]
	if !ok {
		return decimal.Zero, apperrors.WithCause(apperrors.ErrConversionFailed,
			fmt.Errorf("no rate for %s->%s", from, to))
	}
	converted, err := decimal.NewFromString(raw.String())
	if err != nil {
		return decimal.Zero, apperrors.WithCause(apperrors.ErrConversionFailed, err)
	}
	return converted, nil
}
