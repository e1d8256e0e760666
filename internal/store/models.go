package store

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/gmsas95/moneychat/internal/finance"
)

// User is a ledger owner and their profile settings
type User struct {
	ID              string    `gorm:"primaryKey" json:"id"`
	DisplayName     string    `json:"display_name"`
	DefaultCurrency string    `gorm:"size:3" json:"default_currency"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Transaction is a persisted, currency-normalized ledger entry
type Transaction struct {
	ID                string          `gorm:"primaryKey" json:"id"`
	UserID            string          `gorm:"index:idx_tx_user_created;not null" json:"user_id"`
	Description       string          `json:"description"`
	Vendor            string          `json:"vendor,omitempty"`
	Category          string          `gorm:"index" json:"category"`
	Type              string          `gorm:"size:16" json:"type"`
	Amount            decimal.Decimal `gorm:"type:decimal(20,8)" json:"amount"`
	Currency          string          `gorm:"size:3" json:"currency"`
	OriginalAmount    decimal.Decimal `gorm:"type:decimal(20,8)" json:"original_amount"`
	OriginalCurrency  string          `gorm:"size:3" json:"original_currency"`
	ConvertedAmount   decimal.Decimal `gorm:"type:decimal(20,8)" json:"converted_amount"`
	ConvertedCurrency string          `gorm:"size:3" json:"converted_currency"`
	ConversionRate    decimal.Decimal `gorm:"type:decimal(20,8)" json:"conversion_rate"`
	Date              *time.Time      `json:"date,omitempty"`
	Source            string          `gorm:"size:16" json:"source"`
	CreatedAt         time.Time       `gorm:"index:idx_tx_user_created" json:"created_at"`
}

// BeforeCreate hook for Transaction
func (t *Transaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Source == "" {
		t.Source = string(finance.SourceChat)
	}
	return nil
}

func transactionFromDomain(userID string, n *finance.NormalizedTransaction) *Transaction {
	return &Transaction{
		ID:                n.ID,
		UserID:            userID,
		Description:       n.Description,
		Vendor:            n.Vendor,
		Category:          string(n.Category),
		Type:              string(n.Type),
		Amount:            n.Amount,
		Currency:          n.Currency,
		OriginalAmount:    n.OriginalAmount,
		OriginalCurrency:  n.OriginalCurrency,
		ConvertedAmount:   n.ConvertedAmount,
		ConvertedCurrency: n.ConvertedCurrency,
		ConversionRate:    n.ConversionRate,
		Date:              n.Date,
		Source:            string(n.Source),
		CreatedAt:         n.CreatedAt,
	}
}

// Domain converts the row back into the finance model
func (t *Transaction) Domain() finance.NormalizedTransaction {
	return finance.NormalizedTransaction{
		ExtractedTransaction: finance.ExtractedTransaction{
			Description: t.Description,
			Amount:      t.Amount,
			Currency:    t.Currency,
			Category:    finance.ParseCategory(t.Category),
			Type:        finance.TxType(t.Type),
			Date:        t.Date,
			Vendor:      t.Vendor,
		},
		ID:                t.ID,
		UserID:            t.UserID,
		OriginalAmount:    t.OriginalAmount,
		OriginalCurrency:  t.OriginalCurrency,
		ConvertedAmount:   t.ConvertedAmount,
		ConvertedCurrency: t.ConvertedCurrency,
		ConversionRate:    t.ConversionRate,
		Source:            finance.Source(t.Source),
		CreatedAt:         t.CreatedAt,
	}
}
