// Package importer implements the two-phase spreadsheet import: preview
// parses and reports, confirm re-parses and persists row by row
package importer

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/gmsas95/moneychat/internal/currency"
	"github.com/gmsas95/moneychat/internal/extract"
	"github.com/gmsas95/moneychat/internal/fallback"
	"github.com/gmsas95/moneychat/internal/finance"
	"github.com/gmsas95/moneychat/internal/llm"
	"github.com/gmsas95/moneychat/internal/metrics"
	"github.com/gmsas95/moneychat/internal/prompts"
)

// AssumedRowCurrency applies to rows that name no currency
const AssumedRowCurrency = "USD"

const previewSampleRows = 5

// DuplicateAnalyzer compares an upload with the previous one
type DuplicateAnalyzer interface {
	AnalyzeDuplicateFile(ctx context.Context, current, previous finance.FileMeta) (extract.DuplicateAnalysis, error)
}

// Ledger persists transactions
type Ledger interface {
	CreateTransaction(ctx context.Context, userID string, tx *finance.NormalizedTransaction) error
}

// Profiles looks up user profiles. A missing profile is (nil, nil).
type Profiles interface {
	FindByID(ctx context.Context, userID string) (*finance.Profile, error)
}

// Deps are the collaborators of a Pipeline
type Deps struct {
	Duplicates DuplicateAnalyzer
	LLM        llm.Completer
	Prompts    *prompts.Catalog
	Normalizer *currency.Normalizer
	Ledger     Ledger
	Profiles   Profiles
	Metrics    *metrics.Metrics
	Logger     *zap.Logger
	// Currency is the target for users without a usable profile
	Currency string
	// Columns maps headers the alias table does not know. Optional.
	Columns HeaderMapper
}

// Pipeline runs import phases. It keeps no state between them.
type Pipeline struct {
	Deps
}

// NewPipeline creates a pipeline
func NewPipeline(deps Deps) *Pipeline {
	return &Pipeline{Deps: deps}
}

// PreviewSummary describes a parsed table
type PreviewSummary struct {
	RowCount     int                            `json:"rowCount"`
	ValidCount   int                            `json:"validCount"`
	InvalidCount int                            `json:"invalidCount"`
	Income       decimal.Decimal                `json:"income"`
	Expenses     decimal.Decimal                `json:"expenses"`
	Currencies   []string                       `json:"currencies"`
	Sample       []finance.ExtractedTransaction `json:"sample"`
}

// PreviewResult is the outcome of the preview phase
type PreviewResult struct {
	Message              string
	IsDuplicate          bool
	RequiresConfirmation bool
	Suggestions          []string
	FileInfo             *finance.FileMeta
	Summary              *PreviewSummary
}

// ConfirmResult is the outcome of the confirm phase
type ConfirmResult struct {
	Message     string
	Result      finance.ImportBatchResult
	Suggestions []string
}

// Preview parses the table and reports what would be imported. A probable
// re-upload short-circuits before any row is parsed. Nothing is persisted.
func (p *Pipeline) Preview(ctx context.Context, msg finance.IncomingMessage) (*PreviewResult, error) {
	text, err := ExtractTableText(msg.Text)
	if err != nil {
		return nil, err
	}

	if msg.FileInfo != nil && msg.PreviousFile != nil {
		analysis, err := p.Duplicates.AnalyzeDuplicateFile(ctx, *msg.FileInfo, *msg.PreviousFile)
		if err != nil {
			p.Logger.Warn("Duplicate analysis failed, treating file as new",
				zap.String("user_id", msg.UserID),
				zap.Error(err),
			)
		} else if analysis.IsDuplicate {
			return &PreviewResult{
				Message:     p.duplicateWarning(ctx, msg.FileInfo.Name, analysis.Explanation),
				IsDuplicate: true,
				Suggestions: []string{"Show my recent transactions", "Import anyway"},
				FileInfo:    msg.FileInfo,
			}, nil
		}
	}

	table, err := p.parse(ctx, msg.UserID, text)
	if err != nil {
		return nil, err
	}

	summary := summarize(table)
	return &PreviewResult{
		Message:              summary.describe(fileName(msg.FileInfo)),
		RequiresConfirmation: true,
		Suggestions:          []string{"Confirm import", "Cancel"},
		FileInfo:             msg.FileInfo,
		Summary:              summary,
	}, nil
}

// Confirm re-parses the table and persists every valid row. A failing row
// is counted and never stops the batch.
func (p *Pipeline) Confirm(ctx context.Context, msg finance.IncomingMessage) (*ConfirmResult, error) {
	text, err := ExtractTableText(msg.Text)
	if err != nil {
		return nil, err
	}

	table, err := p.parse(ctx, msg.UserID, text)
	if err != nil {
		return nil, err
	}

	target := p.defaultCurrency(ctx, msg.UserID)

	var result finance.ImportBatchResult
	for _, row := range table.Rows {
		if err := p.importRow(ctx, msg.UserID, row, target); err != nil {
			result.FailedCount++
			p.recordRow(false)
			p.Logger.Debug("Import row failed",
				zap.String("user_id", msg.UserID),
				zap.Int("line", row.Line),
				zap.Error(err),
			)
			continue
		}
		result.ImportedCount++
		p.recordRow(true)
	}

	p.Logger.Info("Import finished",
		zap.String("user_id", msg.UserID),
		zap.Int("imported", result.ImportedCount),
		zap.Int("failed", result.FailedCount),
	)

	return &ConfirmResult{
		Message:     p.importSummary(ctx, fileName(msg.FileInfo), result),
		Result:      result,
		Suggestions: []string{"Show my spending by category", "What's my balance?"},
	}, nil
}

func (p *Pipeline) parse(ctx context.Context, userID, text string) (*Table, error) {
	table, err := parseTable(ctx, text, p.Columns)
	if err != nil {
		return nil, err
	}
	if table.Mapped {
		p.Logger.Info("Import header resolved by model",
			zap.String("user_id", userID),
			zap.Strings("header", table.Header),
		)
	}
	return table, nil
}

func (p *Pipeline) importRow(ctx context.Context, userID string, row Row, target string) error {
	if row.Err != nil {
		return row.Err
	}

	normalized := p.Normalizer.NormalizeTransaction(ctx, row.Tx, AssumedRowCurrency, target)
	normalized.Source = finance.SourceImport
	return p.Ledger.CreateTransaction(ctx, userID, &normalized)
}

func (p *Pipeline) defaultCurrency(ctx context.Context, userID string) string {
	cur := p.Currency
	if cur == "" {
		cur = AssumedRowCurrency
	}
	profile, err := p.Profiles.FindByID(ctx, userID)
	if err != nil {
		p.Logger.Warn("Profile lookup failed, using default currency",
			zap.String("user_id", userID),
			zap.String("currency", cur),
			zap.Error(err),
		)
		return cur
	}
	if profile == nil || profile.DefaultCurrency == "" {
		return cur
	}
	return profile.DefaultCurrency
}

func (p *Pipeline) duplicateWarning(ctx context.Context, name, explanation string) string {
	canned := "This file looks like one you already imported"
	if explanation != "" {
		canned += " (" + explanation + ")"
	}
	canned += ". Check your transaction history before importing it again."

	chain := fallback.New(canned, p.Metrics, p.Logger,
		p.compose("duplicate_warning_ai", prompts.DuplicateWarning, struct {
			FileName    string
			Explanation string
		}{name, explanation}),
	)
	text, _ := chain.Run(ctx)
	return text
}

func (p *Pipeline) importSummary(ctx context.Context, name string, r finance.ImportBatchResult) string {
	canned := fmt.Sprintf("Import finished: %d transactions imported, %d rows failed.", r.ImportedCount, r.FailedCount)

	chain := fallback.New(canned, p.Metrics, p.Logger,
		p.compose("import_summary_ai", prompts.ImportSummary, struct {
			FileName string
			Imported int
			Failed   int
		}{name, r.ImportedCount, r.FailedCount}),
	)
	text, _ := chain.Run(ctx)
	return text
}

func (p *Pipeline) compose(name, prompt string, data any) fallback.Strategy {
	return fallback.Strategy{
		Name: name,
		Run: func(ctx context.Context) (string, error) {
			text, err := p.Prompts.Render(prompt, data)
			if err != nil {
				return "", err
			}
			return p.LLM.Generate(ctx, text)
		},
	}
}

func (p *Pipeline) recordRow(ok bool) {
	if p.Metrics != nil {
		p.Metrics.RecordImportRow(ok)
	}
}

func summarize(t *Table) *PreviewSummary {
	s := &PreviewSummary{
		RowCount: len(t.Rows),
		Income:   decimal.Zero,
		Expenses: decimal.Zero,
	}

	valid := t.Valid()
	s.ValidCount = len(valid)
	s.InvalidCount = s.RowCount - s.ValidCount

	seen := make(map[string]bool)
	for _, row := range valid {
		if row.Tx.Amount.IsNegative() {
			s.Expenses = s.Expenses.Add(row.Tx.Amount.Abs())
		} else {
			s.Income = s.Income.Add(row.Tx.Amount)
		}

		cur := row.Tx.Currency
		if cur == "" {
			cur = AssumedRowCurrency
		}
		if !seen[cur] {
			seen[cur] = true
			s.Currencies = append(s.Currencies, cur)
		}
		if len(s.Sample) < previewSampleRows {
			s.Sample = append(s.Sample, row.Tx)
		}
	}
	return s
}

func (s *PreviewSummary) describe(name string) string {
	var b strings.Builder

	source := "the file"
	if name != "" {
		source = name
	}
	fmt.Fprintf(&b, "Found %d rows in %s: %d ready to import", s.RowCount, source, s.ValidCount)
	if s.InvalidCount > 0 {
		fmt.Fprintf(&b, ", %d with problems that will be skipped", s.InvalidCount)
	}
	b.WriteString(".\n")

	cur := strings.Join(s.Currencies, "/")
	fmt.Fprintf(&b, "Income: %s %s, expenses: %s %s.\n", s.Income.StringFixed(2), cur, s.Expenses.StringFixed(2), cur)

	if len(s.Sample) > 0 {
		b.WriteString("First rows:\n")
		for _, tx := range s.Sample {
			date := "----------"
			if tx.Date != nil {
				date = tx.Date.Format("2006-01-02")
			}
			c := tx.Currency
			if c == "" {
				c = AssumedRowCurrency
			}
			fmt.Fprintf(&b, "- %s %s %s %s (%s)\n", date, tx.Description, tx.Amount.StringFixed(2), c, tx.Category)
		}
	}
	b.WriteString("Confirm to import these transactions.")
	return b.String()
}

func fileName(f *finance.FileMeta) string {
	if f == nil {
		return ""
	}
	return f.Name
}
