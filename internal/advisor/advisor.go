// Package advisor answers analytical questions about a user's own transactions
package advisor

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	apperrors "github.com/gmsas95/moneychat/internal/errors"
	"github.com/gmsas95/moneychat/internal/finance"
	"github.com/gmsas95/moneychat/internal/lang"
	"github.com/gmsas95/moneychat/internal/llm"
	"github.com/gmsas95/moneychat/internal/prompts"
)

const (
	defaultHistoryLimit = 500
	fallbackCurrency    = "USD"
	recentInPrompt      = 15
)

// History reads a user's ledger
type History interface {
	ListTransactions(ctx context.Context, userID string, limit int) ([]finance.NormalizedTransaction, error)
}

// Profiles looks up user profiles. A missing profile is (nil, nil).
type Profiles interface {
	FindByID(ctx context.Context, userID string) (*finance.Profile, error)
}

// Advisor grounds completion calls in aggregates of the ledger
type Advisor struct {
	history  History
	profiles Profiles
	llm      llm.Completer
	prompts  *prompts.Catalog
	limit    int
	currency string
	logger   *zap.Logger
}

// New creates an advisor. A non-positive limit uses 500 transactions.
// currency applies to users without a profile.
func New(history History, profiles Profiles, completer llm.Completer, catalog *prompts.Catalog, limit int, currency string, logger *zap.Logger) *Advisor {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if currency == "" {
		currency = fallbackCurrency
	}
	return &Advisor{
		history:  history,
		profiles: profiles,
		llm:      completer,
		prompts:  catalog,
		limit:    limit,
		currency: currency,
		logger:   logger,
	}
}

// Answer responds to question in the language named by languageHint. Every
// failure is returned so the caller can fall back.
func (a *Advisor) Answer(ctx context.Context, userID, question, languageHint string) (string, error) {
	txs, err := a.history.ListTransactions(ctx, userID, a.limit)
	if err != nil {
		return "", fmt.Errorf("load history: %w", err)
	}

	cur := a.currency
	if profile, err := a.profiles.FindByID(ctx, userID); err != nil {
		return "", fmt.Errorf("load profile: %w", err)
	} else if profile != nil && profile.DefaultCurrency != "" {
		cur = profile.DefaultCurrency
	}

	if languageHint == "" {
		languageHint = lang.Fallback
	}

	same := finance.OnlyCurrency(txs, cur)
	recent := txs
	if len(recent) > recentInPrompt {
		recent = recent[:recentInPrompt]
	}

	prompt, err := a.prompts.Render(prompts.AdvisorAnswer, struct {
		Language   string
		Snapshot   finance.Snapshot
		Categories []finance.CategoryTotal
		Months     []finance.MonthTotal
		Recent     []finance.NormalizedTransaction
		Question   string
	}{
		Language:   languageHint,
		Snapshot:   finance.Summarize(txs, cur),
		Categories: finance.ExpensesByCategory(same),
		Months:     finance.TotalsByMonth(same),
		Recent:     recent,
		Question:   question,
	})
	if err != nil {
		return "", err
	}

	answer, err := a.llm.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", apperrors.ErrEmptyCompletion
	}

	a.logger.Debug("Advisor answered",
		zap.String("user_id", userID),
		zap.String("language", languageHint),
		zap.Int("transactions", len(txs)),
	)
	return answer, nil
}
