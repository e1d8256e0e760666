// Package extract turns free text into structured financial facts through a
// completion service. Model output is validated before it is trusted.
package extract

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/gmsas95/moneychat/internal/finance"
	"github.com/gmsas95/moneychat/internal/llm"
	"github.com/gmsas95/moneychat/internal/prompts"
)

// Extractor runs the structured extraction prompts
type Extractor struct {
	llm     llm.Completer
	prompts *prompts.Catalog
	logger  *zap.Logger
	now     func() time.Time
}

// NewExtractor creates an extractor
func NewExtractor(completer llm.Completer, catalog *prompts.Catalog, logger *zap.Logger) *Extractor {
	return &Extractor{
		llm:     completer,
		prompts: catalog,
		logger:  logger,
		now:     time.Now,
	}
}

// ExtractTransaction asks the model for a single transaction. An Unparsable
// result means "no transaction". A non-nil error means the model call
// itself failed.
func (e *Extractor) ExtractTransaction(ctx context.Context, text string) (Parsed[finance.ExtractedTransaction], error) {
	prompt, err := e.prompts.Render(prompts.ExtractTransaction, struct {
		Text       string
		Categories []string
		Today      string
	}{text, finance.CategoryNames(), e.now().Format("2006-01-02")})
	if err != nil {
		return Unparsable[finance.ExtractedTransaction]("prompt"), err
	}

	raw, err := e.llm.Generate(ctx, prompt)
	if err != nil {
		return Unparsable[finance.ExtractedTransaction]("completion failed"), err
	}

	parsed := parseTransaction(raw)
	if !parsed.OK {
		e.logger.Debug("No transaction extracted", zap.String("reason", parsed.Reason))
	}
	return parsed, nil
}

func parseTransaction(raw string) Parsed[finance.ExtractedTransaction] {
	obj, err := DecodeObject(StripFence(raw))
	if err != nil {
		return Unparsable[finance.ExtractedTransaction]("not a JSON object")
	}

	if v, ok := obj["transaction"]; ok && v == nil {
		return Unparsable[finance.ExtractedTransaction]("model reported no transaction")
	}

	amount, ok := decimalField(obj, "amount")
	if !ok {
		return Unparsable[finance.ExtractedTransaction]("amount missing or not numeric")
	}
	if amount.IsZero() {
		return Unparsable[finance.ExtractedTransaction]("amount is zero")
	}

	description, ok := stringField(obj, "description")
	if !ok || description == "" {
		return Unparsable[finance.ExtractedTransaction]("description missing")
	}

	tx := finance.ExtractedTransaction{
		Description: description,
		Amount:      amount,
	}

	if cur, ok := stringField(obj, "currency"); ok {
		tx.Currency = currencyCode(cur)
	}
	if cat, ok := stringField(obj, "category"); ok {
		tx.Category = finance.ParseCategory(cat)
	}
	if typ, ok := stringField(obj, "type"); ok {
		tx.Type = finance.ParseTxType(typ)
	}
	if vendor, ok := stringField(obj, "vendor"); ok {
		tx.Vendor = vendor
	}
	if date, ok := stringField(obj, "date"); ok && date != "" {
		if d, err := time.Parse("2006-01-02", date); err == nil {
			tx.Date = &d
		}
	}

	tx.Reconcile()
	return Accept(tx)
}

// ClassifyIntent labels a message. It never fails: any model or shape
// problem yields finance.UnknownIntent.
func (e *Extractor) ClassifyIntent(ctx context.Context, text, languageHint string) finance.IntentClassification {
	prompt, err := e.prompts.Render(prompts.ClassifyIntent, struct {
		Text     string
		Language string
		Intents  []string
	}{text, languageHint, finance.IntentLabels()})
	if err != nil {
		e.logger.Warn("Failed to render intent prompt", zap.Error(err))
		return finance.UnknownIntent
	}

	raw, err := e.llm.Generate(ctx, prompt)
	if err != nil {
		e.logger.Warn("Intent classification failed", zap.Error(err))
		return finance.UnknownIntent
	}

	parsed := ParseIntent(raw)
	if !parsed.OK {
		e.logger.Warn("Unusable intent classification",
			zap.String("reason", parsed.Reason),
			zap.String("raw", truncate(raw, 200)),
		)
		return finance.UnknownIntent
	}
	return parsed.Value
}

// ParseIntent validates a raw classifier response
func ParseIntent(raw string) Parsed[finance.IntentClassification] {
	if strings.TrimSpace(raw) == "" {
		return Unparsable[finance.IntentClassification]("empty response")
	}

	obj, err := DecodeObject(StripFence(raw))
	if err != nil {
		return Unparsable[finance.IntentClassification]("not a JSON object")
	}

	isFinancial, ok := obj["isFinancial"].(bool)
	if !ok {
		return Unparsable[finance.IntentClassification]("isFinancial is not a boolean")
	}
	intent, ok := obj["intent"].(string)
	if !ok {
		return Unparsable[finance.IntentClassification]("intent is not a string")
	}

	return Accept(finance.IntentClassification{
		IsFinancial: isFinancial,
		Intent:      finance.ParseIntent(strings.TrimSpace(intent)),
	})
}

// truncate keeps at most n runes
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
