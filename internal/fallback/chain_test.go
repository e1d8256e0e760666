package fallback

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/gmsas95/moneychat/internal/metrics"
)

func failing(name string) Strategy {
	return Strategy{Name: name, Run: func(context.Context) (string, error) {
		return "", errors.New(name + " failed")
	}}
}

func TestChain_FirstSuccessWins(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	second := false
	c := New("", nil, logger,
		Fixed("ai", "  hello  "),
		Strategy{Name: "never", Run: func(context.Context) (string, error) {
			second = true
			return "nope", nil
		}},
	)

	text, layer := c.Run(context.Background())
	assert.Equal(t, "hello", text)
	assert.Equal(t, "ai", layer)
	assert.False(t, second)
}

func TestChain_EmptyOutputIsFailure(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	c := New("", nil, logger, Fixed("blank", "   "), Fixed("canned", "done"))

	text, layer := c.Run(context.Background())
	assert.Equal(t, "done", text)
	assert.Equal(t, "canned", layer)
}

func TestChain_AlwaysProducesText(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	m := metrics.New()
	c := New("", m, logger, failing("ai"), failing("apology"))

	text, layer := c.Run(context.Background())
	assert.Equal(t, FixedErrorMessage, text)
	assert.Equal(t, LayerFixed, layer)

	text, _ = New("", nil, logger).Run(context.Background())
	assert.Equal(t, FixedErrorMessage, text)

	text, _ = New("custom", nil, logger).Run(context.Background())
	assert.Equal(t, "custom", text)

	count, err := testutil.GatherAndCount(m.Registry(), "moneychat_fallbacks_total")
	assert.NoError(t, err)
	assert.Equal(t, 1, count)
}
