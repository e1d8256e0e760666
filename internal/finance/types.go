// Package finance holds the request-scoped domain types shared by the
// extractor, the import pipeline and the chat orchestrator.
package finance

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Mode selects how an incoming message is processed
type Mode string

const (
	ModeDefault          Mode = "default"
	ModeCSVImport        Mode = "csv_import"
	ModeCSVImportConfirm Mode = "csv_import_confirm"
)

// ParseMode maps a request type tag to a Mode. Anything unrecognised is ModeDefault.
func ParseMode(s string) Mode {
	switch Mode(strings.TrimSpace(s)) {
	case ModeCSVImport:
		return ModeCSVImport
	case ModeCSVImportConfirm:
		return ModeCSVImportConfirm
	default:
		return ModeDefault
	}
}

// FileMeta describes an uploaded spreadsheet. Used only for duplicate heuristics.
type FileMeta struct {
	Name         string `json:"name"`
	SizeBytes    int64  `json:"size"`
	MimeType     string `json:"type,omitempty"`
	LastModified int64  `json:"lastModified"` // unix millis
}

// SameAs reports whether name, size and modification time are all identical.
func (f FileMeta) SameAs(other FileMeta) bool {
	return f.Name == other.Name && f.SizeBytes == other.SizeBytes && f.LastModified == other.LastModified
}

// ModifiedAt returns LastModified as a time
func (f FileMeta) ModifiedAt() time.Time {
	return time.UnixMilli(f.LastModified).UTC()
}

// IncomingMessage is one user request
type IncomingMessage struct {
	UserID       string
	Text         string
	Mode         Mode
	FileInfo     *FileMeta
	PreviousFile *FileMeta
}

// TxType is the direction of a transaction
type TxType string

const (
	TypeIncome  TxType = "income"
	TypeExpense TxType = "expense"
)

// ParseTxType accepts the labels models and spreadsheets commonly use.
// Unknown values return "".
func ParseTxType(s string) TxType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "income", "credit", "deposit", "in", "inflow":
		return TypeIncome
	case "expense", "debit", "withdrawal", "out", "outflow", "spend", "payment":
		return TypeExpense
	default:
		return ""
	}
}

// ExtractedTransaction is a transaction read from free text or a spreadsheet row
type ExtractedTransaction struct {
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency,omitempty"`
	Category    Category        `json:"category"`
	Type        TxType          `json:"type,omitempty"`
	Date        *time.Time      `json:"date,omitempty"`
	Vendor      string          `json:"vendor,omitempty"`
}

// Reconcile makes Type and the sign of Amount agree. With no Type the sign
// decides; with a Type the amount is forced to match it.
func (t *ExtractedTransaction) Reconcile() {
	switch t.Type {
	case TypeExpense:
		t.Amount = t.Amount.Abs().Neg()
	case TypeIncome:
		t.Amount = t.Amount.Abs()
	default:
		if t.Amount.IsNegative() {
			t.Type = TypeExpense
		} else {
			t.Type = TypeIncome
		}
	}
	if t.Category == "" {
		t.Category = CategoryOther
	}
}

// Source records where a persisted transaction came from
type Source string

const (
	SourceChat   Source = "chat"
	SourceImport Source = "import"
)

// NormalizedTransaction is an ExtractedTransaction converted into the user's
// default currency. If conversion failed the converted fields equal the
// original ones and ConversionRate is 1.
type NormalizedTransaction struct {
	ExtractedTransaction

	ID                string          `json:"id,omitempty"`
	UserID            string          `json:"userId,omitempty"`
	OriginalAmount    decimal.Decimal `json:"originalAmount"`
	OriginalCurrency  string          `json:"originalCurrency"`
	ConvertedAmount   decimal.Decimal `json:"convertedAmount"`
	ConvertedCurrency string          `json:"convertedCurrency"`
	ConversionRate    decimal.Decimal `json:"conversionRate"`
	Source            Source          `json:"source,omitempty"`
	CreatedAt         time.Time       `json:"createdAt,omitempty"`
}

// EffectiveDate is the transaction date, falling back to when it was recorded
func (t NormalizedTransaction) EffectiveDate() time.Time {
	if t.Date != nil {
		return *t.Date
	}
	return t.CreatedAt
}

// Profile is the part of a user profile the orchestrator needs
type Profile struct {
	UserID          string
	DisplayName     string
	DefaultCurrency string
}

// ImportBatchResult is the outcome of one confirm-phase run
type ImportBatchResult struct {
	ImportedCount int `json:"importedCount"`
	FailedCount   int `json:"failedCount"`
}

// Total is the number of rows considered
func (r ImportBatchResult) Total() int {
	return r.ImportedCount + r.FailedCount
}
