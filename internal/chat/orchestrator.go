// Package chat routes incoming messages to transaction entry, spreadsheet
// import, financial Q&A or general conversation, and always produces a reply.
package chat

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/gmsas95/moneychat/internal/currency"
	"github.com/gmsas95/moneychat/internal/extract"
	"github.com/gmsas95/moneychat/internal/fallback"
	"github.com/gmsas95/moneychat/internal/finance"
	"github.com/gmsas95/moneychat/internal/importer"
	"github.com/gmsas95/moneychat/internal/lang"
	"github.com/gmsas95/moneychat/internal/llm"
	"github.com/gmsas95/moneychat/internal/metrics"
	"github.com/gmsas95/moneychat/internal/prompts"
)

// DefaultCurrency applies when a user has no profile and Deps.Currency is empty
const DefaultCurrency = "USD"

const defaultHistoryLimit = 200

// Ledger reads and writes a user's transactions
type Ledger interface {
	ListTransactions(ctx context.Context, userID string, limit int) ([]finance.NormalizedTransaction, error)
	CreateTransaction(ctx context.Context, userID string, tx *finance.NormalizedTransaction) error
}

// Profiles looks up user profiles. A missing profile is (nil, nil).
type Profiles interface {
	FindByID(ctx context.Context, userID string) (*finance.Profile, error)
}

// Advisor answers analytical questions from ledger history
type Advisor interface {
	Answer(ctx context.Context, userID, question, languageHint string) (string, error)
}

// LanguageDetector guesses the language of a message
type LanguageDetector interface {
	Detect(text string) lang.Result
}

// Extractor turns text into structured facts
type Extractor interface {
	ExtractTransaction(ctx context.Context, text string) (extract.Parsed[finance.ExtractedTransaction], error)
	ClassifyIntent(ctx context.Context, text, languageHint string) finance.IntentClassification
}

// Importer runs the two import phases
type Importer interface {
	Preview(ctx context.Context, msg finance.IncomingMessage) (*importer.PreviewResult, error)
	Confirm(ctx context.Context, msg finance.IncomingMessage) (*importer.ConfirmResult, error)
}

// Deps are the collaborators of an Orchestrator
type Deps struct {
	LLM          llm.Completer
	Prompts      *prompts.Catalog
	Extractor    Extractor
	Normalizer   *currency.Normalizer
	Importer     Importer
	Ledger       Ledger
	Profiles     Profiles
	Advisor      Advisor
	Language     LanguageDetector
	Metrics      *metrics.Metrics
	Logger       *zap.Logger
	HistoryLimit int
	// Currency is the reporting currency for users without a profile
	Currency string
}

// Response is what a client receives for one message
type Response struct {
	Message              string                         `json:"message"`
	Type                 string                         `json:"type,omitempty"`
	TransactionAdded     bool                           `json:"transactionAdded,omitempty"`
	RequiresConfirmation bool                           `json:"requiresConfirmation,omitempty"`
	IsDuplicate          bool                           `json:"isDuplicate,omitempty"`
	Suggestions          []string                       `json:"suggestions,omitempty"`
	FileInfo             *finance.FileMeta              `json:"fileInfo,omitempty"`
	ImportResult         *finance.ImportBatchResult     `json:"importResult,omitempty"`
	Preview              *importer.PreviewSummary       `json:"preview,omitempty"`
	Transaction          *finance.NormalizedTransaction `json:"transaction,omitempty"`

	Route   RouteKind `json:"-"`
	Outcome Outcome   `json:"-"`
}

// Orchestrator handles one message at a time and keeps no state between them
type Orchestrator struct {
	Deps
}

// NewOrchestrator creates an orchestrator
func NewOrchestrator(deps Deps) *Orchestrator {
	if deps.HistoryLimit <= 0 {
		deps.HistoryLimit = defaultHistoryLimit
	}
	return &Orchestrator{Deps: deps}
}

// Handle processes msg. Errors are returned only for import payload
// problems; every other failure is absorbed by a fallback and the reply
// is never empty.
func (o *Orchestrator) Handle(ctx context.Context, msg finance.IncomingMessage) (*Response, error) {
	start := time.Now()
	route := Route(msg)

	var (
		resp *Response
		err  error
	)
	switch route {
	case RouteImportPreview:
		resp, err = o.preview(ctx, msg)
	case RouteImportConfirm:
		resp, err = o.confirm(ctx, msg)
	default:
		resp = o.converse(ctx, msg)
	}

	outcome := OutcomeRejected
	if resp != nil {
		resp.Route = route
		outcome = resp.Outcome
	}
	if o.Metrics != nil {
		o.Metrics.RecordRoute(string(route), string(outcome))
	}
	o.Logger.Info("Message handled",
		zap.String("user_id", msg.UserID),
		zap.String("route", string(route)),
		zap.String("outcome", string(outcome)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return resp, err
}

func (o *Orchestrator) preview(ctx context.Context, msg finance.IncomingMessage) (*Response, error) {
	res, err := o.Importer.Preview(ctx, msg)
	if err != nil {
		return nil, err
	}

	resp := &Response{
		Message:              res.Message,
		RequiresConfirmation: res.RequiresConfirmation,
		IsDuplicate:          res.IsDuplicate,
		Suggestions:          res.Suggestions,
		FileInfo:             res.FileInfo,
		Preview:              res.Summary,
	}
	if res.IsDuplicate {
		resp.Type = TypeImportDuplicate
		resp.Outcome = OutcomeDuplicate
	} else {
		resp.Type = TypeImportPreview
		resp.Outcome = OutcomePreview
	}
	return resp, nil
}

func (o *Orchestrator) confirm(ctx context.Context, msg finance.IncomingMessage) (*Response, error) {
	res, err := o.Importer.Confirm(ctx, msg)
	if err != nil {
		return nil, err
	}

	result := res.Result
	return &Response{
		Message:      res.Message,
		Type:         TypeImportResult,
		Suggestions:  res.Suggestions,
		FileInfo:     msg.FileInfo,
		ImportResult: &result,
		Outcome:      OutcomeImported,
	}, nil
}

// converse is the default route: transaction entry, then financial
// questions, then general chat
func (o *Orchestrator) converse(ctx context.Context, msg finance.IncomingMessage) *Response {
	history, err := o.Ledger.ListTransactions(ctx, msg.UserID, o.HistoryLimit)
	if err != nil {
		o.Logger.Warn("History unavailable, answering without context",
			zap.String("user_id", msg.UserID),
			zap.Error(err),
		)
		return o.stateless(ctx, msg)
	}

	profile, err := o.Profiles.FindByID(ctx, msg.UserID)
	if err != nil {
		o.Logger.Warn("Profile unavailable, answering without context",
			zap.String("user_id", msg.UserID),
			zap.Error(err),
		)
		return o.stateless(ctx, msg)
	}

	cur := o.Currency
	if cur == "" {
		cur = DefaultCurrency
	}
	if profile != nil && profile.DefaultCurrency != "" {
		cur = profile.DefaultCurrency
	}
	snapshot := finance.Summarize(history, cur)

	parsed, err := o.Extractor.ExtractTransaction(ctx, msg.Text)
	if err != nil {
		o.Logger.Warn("Transaction extraction failed", zap.String("user_id", msg.UserID), zap.Error(err))
	}
	if err == nil && parsed.OK {
		return o.record(ctx, msg, parsed.Value, snapshot)
	}

	general := o.general(ctx, msg.Text, &snapshot)

	language := lang.Fallback
	if o.Language != nil {
		language = o.Language.Detect(msg.Text).Code
	}
	intent := o.Extractor.ClassifyIntent(ctx, msg.Text, language)
	if !intent.IsFinancial {
		return general
	}

	answer, err := o.Advisor.Answer(ctx, msg.UserID, msg.Text, language)
	if err != nil {
		o.Logger.Warn("Financial question could not be answered, using general reply",
			zap.String("user_id", msg.UserID),
			zap.String("intent", string(intent.Intent)),
			zap.Error(err),
		)
		return general
	}

	return &Response{
		Message: answer,
		Type:    TypeFinancialAnswer,
		Outcome: OutcomeFinancial,
	}
}

func (o *Orchestrator) record(ctx context.Context, msg finance.IncomingMessage, tx finance.ExtractedTransaction, snapshot finance.Snapshot) *Response {
	normalized := o.Normalizer.NormalizeTransaction(ctx, tx, snapshot.Currency, snapshot.Currency)
	normalized.Source = finance.SourceChat

	data := struct {
		Text     string
		Tx       finance.ExtractedTransaction
		Amount   string
		Currency string
		Snapshot finance.Snapshot
	}{
		Text:     msg.Text,
		Tx:       normalized.ExtractedTransaction,
		Amount:   normalized.OriginalAmount.Abs().StringFixed(2),
		Currency: normalized.OriginalCurrency,
		Snapshot: snapshot,
	}

	if err := o.Ledger.CreateTransaction(ctx, msg.UserID, &normalized); err != nil {
		o.Logger.Error("Failed to store transaction",
			zap.String("user_id", msg.UserID),
			zap.Error(err),
		)
		text, _ := fallback.New("", o.Metrics, o.Logger,
			o.compose("failure_ai", prompts.TransactionFailure, data),
		).Run(ctx)
		return &Response{
			Message: text,
			Type:    TypeTransaction,
			Outcome: OutcomeTransactionFailed,
		}
	}

	data.Snapshot = snapshot.With(normalized)
	canned := fmt.Sprintf("Recorded %s: %s, %s %s (%s).",
		normalized.Type, normalized.Description, data.Amount, data.Currency, normalized.Category)

	text, _ := fallback.New("", o.Metrics, o.Logger,
		o.compose("success_ai", prompts.TransactionSuccess, data),
		fallback.Fixed("success_canned", canned),
	).Run(ctx)

	return &Response{
		Message:          text,
		Type:             TypeTransaction,
		TransactionAdded: true,
		Transaction:      &normalized,
		Suggestions:      []string{"What's my balance?", "Show my spending by category"},
		Outcome:          OutcomeTransaction,
	}
}

// general composes a conversational reply. snapshot may be nil.
func (o *Orchestrator) general(ctx context.Context, text string, snapshot *finance.Snapshot) *Response {
	reply, _ := fallback.New("", o.Metrics, o.Logger,
		o.compose("general_ai", prompts.General, struct {
			Text     string
			Snapshot *finance.Snapshot
		}{text, snapshot}),
	).Run(ctx)

	return &Response{
		Message: reply,
		Type:    TypeGeneral,
		Outcome: OutcomeGeneral,
	}
}

func (o *Orchestrator) stateless(ctx context.Context, msg finance.IncomingMessage) *Response {
	resp := o.general(ctx, msg.Text, nil)
	resp.Outcome = OutcomeStateless
	return resp
}

func (o *Orchestrator) compose(name, prompt string, data any) fallback.Strategy {
	return fallback.Strategy{
		Name: name,
		Run: func(ctx context.Context) (string, error) {
			text, err := o.Prompts.Render(prompt, data)
			if err != nil {
				return "", err
			}
			return o.LLM.Generate(ctx, text)
		},
	}
}
