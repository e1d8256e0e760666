// Package currency converts amounts into a user's default currency
package currency

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/gmsas95/moneychat/internal/finance"
	"github.com/gmsas95/moneychat/internal/metrics"
)

// RateService converts a positive amount between two ISO 4217 codes
type RateService interface {
	Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error)
}

// Conversion is the outcome of Normalize. Converted is false when the
// amount passed through unchanged, either as identity or after a failure.
type Conversion struct {
	Amount    decimal.Decimal
	Currency  string
	Rate      decimal.Decimal
	Converted bool
}

// Normalizer converts amounts and never fails: a rate-service error yields
// the original amount and currency with rate 1.
type Normalizer struct {
	rates   RateService
	timeout time.Duration
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewNormalizer creates a normalizer. A zero timeout means 10s per lookup.
func NewNormalizer(rates RateService, timeout time.Duration, m *metrics.Metrics, logger *zap.Logger) *Normalizer {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Normalizer{
		rates:   rates,
		timeout: timeout,
		metrics: m,
		logger:  logger,
	}
}

// Normalize converts amount from one currency to another, preserving its sign
func (n *Normalizer) Normalize(ctx context.Context, amount decimal.Decimal, from, to string) Conversion {
	from = strings.ToUpper(strings.TrimSpace(from))
	to = strings.ToUpper(strings.TrimSpace(to))

	identity := Conversion{Amount: amount, Currency: from, Rate: decimal.NewFromInt(1)}
	if from == "" || to == "" || from == to || amount.IsZero() {
		if identity.Currency == "" {
			identity.Currency = to
		}
		n.record("identity")
		return identity
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	abs := amount.Abs()
	converted, err := n.rates.Convert(ctx, abs, from, to)
	if err != nil {
		n.logger.Warn("Currency conversion failed, keeping original amount",
			zap.String("from", from),
			zap.String("to", to),
			zap.String("amount", amount.String()),
			zap.Error(err),
		)
		n.record("failed")
		return identity
	}

	converted = converted.Abs()
	rate := converted.DivRound(abs, 8)
	if amount.IsNegative() {
		converted = converted.Neg()
	}

	n.record("converted")
	return Conversion{Amount: converted, Currency: to, Rate: rate, Converted: true}
}

// NormalizeTransaction builds the record to persist. sourceCurrency is used
// when the transaction names none.
func (n *Normalizer) NormalizeTransaction(ctx context.Context, tx finance.ExtractedTransaction, sourceCurrency, targetCurrency string) finance.NormalizedTransaction {
	from := tx.Currency
	if from == "" {
		from = sourceCurrency
	}
	from = strings.ToUpper(strings.TrimSpace(from))
	tx.Currency = from

	conv := n.Normalize(ctx, tx.Amount, from, targetCurrency)

	return finance.NormalizedTransaction{
		ExtractedTransaction: tx,
		OriginalAmount:       tx.Amount,
		OriginalCurrency:     from,
		ConvertedAmount:      conv.Amount,
		ConvertedCurrency:    conv.Currency,
		ConversionRate:       conv.Rate,
	}
}

func (n *Normalizer) record(result string) {
	if n.metrics != nil {
		n.metrics.RecordConversion(result)
	}
}
