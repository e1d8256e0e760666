package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gmsas95/moneychat/internal/config"
	apperrors "github.com/gmsas95/moneychat/internal/errors"
	"github.com/gmsas95/moneychat/internal/metrics"
)

type fakeCompleter struct {
	calls atomic.Int32
	text  string
	err   error
}

func (f *fakeCompleter) Generate(ctx context.Context, prompt string) (string, error) {
	f.calls.Add(1)
	return f.text, f.err
}

func TestClient_Generate(t *testing.T) {
	var got ChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"1","choices":[{"index":0,"message":{"role":"assistant","content":"hello there"}}]}`))
	}))
	defer srv.Close()

	c := NewClient(config.Provider{BaseURL: srv.URL + "/", APIKey: "test-key", Model: "gpt-test"})
	text, err := c.Generate(context.Background(), "hi")

	require.NoError(t, err)
	assert.Equal(t, "hello there", text)
	assert.Equal(t, "gpt-test", got.Model)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user", got.Messages[0].Role)
}

func TestClient_ErrorStatuses(t *testing.T) {
	status := http.StatusTooManyRequests
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	defer srv.Close()

	c := NewClient(config.Provider{BaseURL: srv.URL, APIKey: "k"})

	_, err := c.Generate(context.Background(), "hi")
	assert.ErrorIs(t, err, apperrors.ErrRateLimited)

	status = http.StatusBadGateway
	_, err = c.Generate(context.Background(), "hi")
	assert.ErrorIs(t, err, apperrors.ErrProviderUnavailable)
}

func TestClient_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	_, err := NewClient(config.Provider{BaseURL: srv.URL}).Generate(context.Background(), "hi")
	assert.ErrorIs(t, err, apperrors.ErrEmptyCompletion)
}

func TestGeminiClient_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "gemini-test:generateContent")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"bonjour"}]}}]}`))
	}))
	defer srv.Close()

	gc, err := NewGeminiClient(context.Background(), config.Provider{
		APIKey:  "test-key",
		BaseURL: srv.URL,
		Model:   "gemini-test",
	})
	require.NoError(t, err)

	text, err := gc.Generate(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "bonjour", text)
}

func TestGeminiClient_RequiresKey(t *testing.T) {
	_, err := NewGeminiClient(context.Background(), config.Provider{})
	assert.ErrorIs(t, err, apperrors.ErrCredentialsMissing)
}

func TestProviderManager_Failover(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	pm := NewProviderManager(logger)

	primary := &fakeCompleter{err: errors.New("down")}
	secondary := &fakeCompleter{text: "ok"}
	pm.AddProvider("secondary", secondary, 1)
	pm.AddProvider("primary", primary, 0)

	text, err := pm.Generate(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, int32(1), primary.calls.Load())

	// the last healthy provider is tried first next time
	_, err = pm.Generate(context.Background(), "again")
	require.NoError(t, err)
	assert.Equal(t, int32(1), primary.calls.Load())
	assert.Equal(t, int32(2), secondary.calls.Load())
}

func TestProviderManager_AllFail(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	pm := NewProviderManager(logger)
	pm.AddProvider("a", &fakeCompleter{err: apperrors.ErrEmptyCompletion}, 0)
	pm.AddProvider("b", &fakeCompleter{err: apperrors.ErrRateLimited}, 1)

	_, err := pm.Generate(context.Background(), "hi")
	assert.ErrorIs(t, err, apperrors.ErrRateLimited)
}

func TestProviderManager_Empty(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	_, err := NewProviderManager(logger).Generate(context.Background(), "hi")
	assert.ErrorIs(t, err, apperrors.ErrProviderNotConfigured)
}

func TestGuard_OpensBreaker(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	m := metrics.New()
	inner := &fakeCompleter{err: errors.New("boom")}
	g := NewGuard("test", inner, GuardConfig{MaxFailures: 2, OpenTimeout: time.Minute}, m, logger)

	for i := 0; i < 2; i++ {
		_, err := g.Generate(context.Background(), "hi")
		assert.Error(t, err)
	}

	_, err := g.Generate(context.Background(), "hi")
	assert.ErrorIs(t, err, apperrors.ErrProviderUnavailable)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(2), inner.calls.Load())
	assert.Equal(t, "open", g.State())
}

func TestGuard_Timeout(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	slow := CompleterFunc(func(ctx context.Context, prompt string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	g := NewGuard("slow", slow, GuardConfig{Timeout: 20 * time.Millisecond}, nil, logger)

	start := time.Now()
	_, err := g.Generate(context.Background(), "hi")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestGuard_RateLimit(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	inner := &fakeCompleter{text: "ok"}
	g := NewGuard("limited", inner, GuardConfig{
		Timeout:       50 * time.Millisecond,
		RatePerMinute: 1,
		Burst:         1,
	}, nil, logger)

	_, err := g.Generate(context.Background(), "first")
	require.NoError(t, err)

	// the next token is a minute away, beyond the call deadline
	_, err = g.Generate(context.Background(), "second")
	assert.ErrorIs(t, err, apperrors.ErrRateLimited)
	assert.Equal(t, int32(1), inner.calls.Load())

	g.SetLimit(0, 0)
	_, err = g.Generate(context.Background(), "third")
	assert.NoError(t, err)
}

func TestNewService_SkipsProvidersWithoutKeys(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	cfg := &config.Config{}
	cfg.LLM.DefaultProvider = "openai"
	cfg.LLM.Fallbacks = []string{"openrouter"}
	cfg.LLM.Providers = map[string]config.Provider{
		"openai":     {Type: "openai", APIKey: "k", BaseURL: "http://localhost"},
		"openrouter": {Type: "openai"},
	}

	svc, err := NewService(context.Background(), cfg, metrics.New(), logger)
	require.NoError(t, err)
	assert.Equal(t, 1, svc.Len())

	svc.ApplyLimits(60, 5)

	status := svc.ProviderStatus()
	require.Len(t, status, 1)
	assert.Equal(t, "openai", status[0].Name)
	assert.Equal(t, "closed", status[0].Breaker)
	assert.True(t, status[0].Healthy)
}
