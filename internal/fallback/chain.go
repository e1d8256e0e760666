// Package fallback runs ordered response strategies until one produces text
package fallback

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/gmsas95/moneychat/internal/metrics"
)

// FixedErrorMessage is the language-neutral last resort
const FixedErrorMessage = "Sorry, something went wrong while processing your request. Please try again later."

// LayerFixed names the final layer in metrics and logs
const LayerFixed = "fixed"

var errEmpty = errors.New("empty output")

// Strategy is one named way of producing a response
type Strategy struct {
	Name string
	Run  func(ctx context.Context) (string, error)
}

// Chain is an ordered list of strategies ending in a fixed string that cannot fail
type Chain struct {
	strategies []Strategy
	final      string
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// New builds a chain. An empty final uses FixedErrorMessage.
func New(final string, m *metrics.Metrics, logger *zap.Logger, strategies ...Strategy) *Chain {
	if strings.TrimSpace(final) == "" {
		final = FixedErrorMessage
	}
	return &Chain{
		strategies: strategies,
		final:      final,
		metrics:    m,
		logger:     logger,
	}
}

// Run returns the first non-empty output and the name of the strategy that
// produced it. Output is trimmed. Every layer after the first counts as a
// fallback.
func (c *Chain) Run(ctx context.Context) (string, string) {
	for i, s := range c.strategies {
		text, err := s.Run(ctx)
		text = strings.TrimSpace(text)
		if err == nil && text == "" {
			err = errEmpty
		}
		if err == nil {
			if i > 0 {
				c.record(s.Name)
			}
			return text, s.Name
		}
		c.logger.Warn("Response strategy failed",
			zap.String("strategy", s.Name),
			zap.Error(err),
		)
	}

	c.record(LayerFixed)
	return c.final, LayerFixed
}

func (c *Chain) record(layer string) {
	if c.metrics != nil {
		c.metrics.RecordFallback(layer)
	}
}

// Fixed returns a strategy that always yields text
func Fixed(name, text string) Strategy {
	return Strategy{
		Name: name,
		Run: func(context.Context) (string, error) {
			return text, nil
		},
	}
}
