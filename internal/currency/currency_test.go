package currency

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	apperrors "github.com/gmsas95/moneychat/internal/errors"
	"github.com/gmsas95/moneychat/internal/finance"
	"github.com/gmsas95/moneychat/internal/metrics"
	"github.com/gmsas95/moneychat/internal/store"
)

// fixedRate multiplies by rate, or fails when err is set
type fixedRate struct {
	rate  decimal.Decimal
	err   error
	calls atomic.Int32
}

func (f *fixedRate) Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	f.calls.Add(1)
	if f.err != nil {
		return decimal.Zero, f.err
	}
	return amount.Mul(f.rate), nil
}

func newNormalizer(rates RateService) *Normalizer {
	logger, _ := zap.NewDevelopment()
	return NewNormalizer(rates, time.Second, metrics.New(), logger)
}

func TestNormalize_Identity(t *testing.T) {
	rates := &fixedRate{rate: decimal.RequireFromString("0.9")}
	n := newNormalizer(rates)
	amount := decimal.RequireFromString("-12.00")

	for _, pair := range [][2]string{{"USD", "USD"}, {"usd", "USD"}, {"", "USD"}, {"EUR", ""}} {
		got := n.Normalize(context.Background(), amount, pair[0], pair[1])
		assert.True(t, got.Amount.Equal(amount), pair)
		assert.True(t, got.Rate.Equal(decimal.NewFromInt(1)), pair)
		assert.False(t, got.Converted, pair)
	}
	assert.Equal(t, int32(0), rates.calls.Load())
}

func TestNormalize_PreservesSign(t *testing.T) {
	r := decimal.RequireFromString("0.92")
	n := newNormalizer(&fixedRate{rate: r})

	got := n.Normalize(context.Background(), decimal.NewFromInt(-50), "USD", "EUR")

	want := decimal.NewFromInt(50).Mul(r).Neg()
	assert.True(t, got.Amount.Equal(want), "got %s want %s", got.Amount, want)
	assert.Equal(t, "EUR", got.Currency)
	assert.True(t, got.Rate.Equal(r))
	assert.True(t, got.Converted)

	income := n.Normalize(context.Background(), decimal.NewFromInt(100), "USD", "EUR")
	assert.True(t, income.Amount.Equal(decimal.NewFromInt(92)))
}

func TestNormalize_FailureKeepsOriginal(t *testing.T) {
	n := newNormalizer(&fixedRate{err: errors.New("service down")})
	amount := decimal.RequireFromString("-50")

	got := n.Normalize(context.Background(), amount, "GBP", "USD")
	assert.True(t, got.Amount.Equal(amount))
	assert.Equal(t, "GBP", got.Currency)
	assert.True(t, got.Rate.Equal(decimal.NewFromInt(1)))
	assert.False(t, got.Converted)
}

func TestNormalizeTransaction(t *testing.T) {
	n := newNormalizer(&fixedRate{rate: decimal.RequireFromString("1.25")})
	tx := finance.ExtractedTransaction{
		Description: "dinner",
		Amount:      decimal.NewFromInt(-40),
		Category:    finance.CategoryFood,
		Type:        finance.TypeExpense,
	}

	// no currency on the transaction: the source currency applies
	got := n.NormalizeTransaction(context.Background(), tx, "EUR", "USD")
	assert.Equal(t, "EUR", got.OriginalCurrency)
	assert.Equal(t, "EUR", got.Currency)
	assert.True(t, got.OriginalAmount.Equal(decimal.NewFromInt(-40)))
	assert.True(t, got.ConvertedAmount.Equal(decimal.NewFromInt(-50)))
	assert.Equal(t, "USD", got.ConvertedCurrency)

	tx.Currency = "USD"
	same := n.NormalizeTransaction(context.Background(), tx, "EUR", "USD")
	assert.True(t, same.ConvertedAmount.Equal(same.OriginalAmount))
	assert.True(t, same.ConversionRate.Equal(decimal.NewFromInt(1)))
}

func TestHTTPRateService(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/latest", r.URL.Path)
		assert.Equal(t, "50", r.URL.Query().Get("amount"))
		assert.Equal(t, "USD", r.URL.Query().Get("from"))
		assert.Equal(t, "EUR", r.URL.Query().Get("to"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"amount":50.0,"base":"USD","date":"2026-03-13","rates":{"EUR":46.02}}`))
	}))
	defer srv.Close()

	logger, _ := zap.NewDevelopment()
	svc := NewHTTPRateService(srv.URL+"/", time.Second, 3, time.Minute, logger)

	got, err := svc.Convert(context.Background(), decimal.NewFromInt(50), "USD", "EUR")
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.RequireFromString("46.02")))
}

func TestHTTPRateService_Errors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, `{"message":"not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	logger, _ := zap.NewDevelopment()
	svc := NewHTTPRateService(srv.URL, time.Second, 2, time.Minute, logger)

	_, err := svc.Convert(context.Background(), decimal.NewFromInt(1), "USD", "XXX")
	assert.ErrorIs(t, err, apperrors.ErrConversionFailed)
	_, _ = svc.Convert(context.Background(), decimal.NewFromInt(1), "USD", "XXX")

	// breaker is open now; the server is not hit again
	_, err = svc.Convert(context.Background(), decimal.NewFromInt(1), "USD", "XXX")
	assert.Error(t, err)
	assert.Equal(t, int32(2), hits.Load())
}

func TestHTTPRateService_MissingRate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"rates":{}}`))
	}))
	defer srv.Close()

	logger, _ := zap.NewDevelopment()
	svc := NewHTTPRateService(srv.URL, time.Second, 5, time.Minute, logger)

	_, err := svc.Convert(context.Background(), decimal.NewFromInt(1), "USD", "EUR")
	assert.ErrorIs(t, err, apperrors.ErrConversionFailed)
}

func TestCachedRateService(t *testing.T) {
	kv, err := store.OpenKV("")
	require.NoError(t, err)
	defer kv.Close()

	logger, _ := zap.NewDevelopment()
	upstream := &fixedRate{rate: decimal.RequireFromString("0.5")}
	cached := NewCachedRateService(upstream, kv, time.Hour, logger)

	got, err := cached.Convert(context.Background(), decimal.NewFromInt(10), "USD", "GBP")
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.NewFromInt(5)))

	got, err = cached.Convert(context.Background(), decimal.NewFromInt(30), "USD", "GBP")
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.NewFromInt(15)))
	assert.Equal(t, int32(1), upstream.calls.Load())

	raw, err := kv.Get("rate:USD:GBP")
	require.NoError(t, err)
	assert.Equal(t, "0.5", string(raw))
}

func TestCachedRateService_UpstreamError(t *testing.T) {
	kv, err := store.OpenKV("")
	require.NoError(t, err)
	defer kv.Close()

	logger, _ := zap.NewDevelopment()
	cached := NewCachedRateService(&fixedRate{err: errors.New("down")}, kv, time.Hour, logger)

	_, err = cached.Convert(context.Background(), decimal.NewFromInt(10), "USD", "GBP")
	assert.Error(t, err)

	_, err = kv.Get("rate:USD:GBP")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
