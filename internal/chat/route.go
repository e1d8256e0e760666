package chat

import "github.com/gmsas95/moneychat/internal/finance"

// RouteKind is the top-level decision for a message, made once per request
type RouteKind string

const (
	RouteImportPreview RouteKind = "import_preview"
	RouteImportConfirm RouteKind = "import_confirm"
	RouteDefault       RouteKind = "default"
)

// Route picks the pipeline for msg from its mode alone
func Route(msg finance.IncomingMessage) RouteKind {
	switch msg.Mode {
	case finance.ModeCSVImport:
		return RouteImportPreview
	case finance.ModeCSVImportConfirm:
		return RouteImportConfirm
	default:
		return RouteDefault
	}
}

// Outcome is the branch a request ended in
type Outcome string

const (
	OutcomeTransaction       Outcome = "transaction"
	OutcomeTransactionFailed Outcome = "transaction_failed"
	OutcomeFinancial         Outcome = "financial"
	OutcomeGeneral           Outcome = "general"
	OutcomeStateless         Outcome = "stateless"
	OutcomePreview           Outcome = "preview"
	OutcomeDuplicate         Outcome = "duplicate"
	OutcomeImported          Outcome = "imported"
	OutcomeRejected          Outcome = "rejected"
)

// Response types reported to clients
const (
	TypeTransaction     = "transaction"
	TypeFinancialAnswer = "financial_answer"
	TypeGeneral         = "general"
	TypeImportPreview   = "csv_import_preview"
	TypeImportDuplicate = "csv_import_duplicate"
	TypeImportResult    = "csv_import_result"
)
