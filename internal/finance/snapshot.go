package finance

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Snapshot is the per-request aggregate used to ground generated responses
type Snapshot struct {
	Income   decimal.Decimal `json:"income"`
	Expenses decimal.Decimal `json:"expenses"`
	Balance  decimal.Decimal `json:"balance"`
	Currency string          `json:"currency"`
	Count    int             `json:"count"`
	// Excluded counts rows converted into some other currency
	Excluded int `json:"excluded,omitempty"`
}

// InCurrency reports whether the converted amount is expressed in currency.
// Rows without a converted currency are assumed to match.
func (t NormalizedTransaction) InCurrency(currency string) bool {
	return t.ConvertedCurrency == "" || strings.EqualFold(t.ConvertedCurrency, currency)
}

// OnlyCurrency keeps the rows whose converted amount is in currency
func OnlyCurrency(txs []NormalizedTransaction, currency string) []NormalizedTransaction {
	out := make([]NormalizedTransaction, 0, len(txs))
	for _, tx := range txs {
		if tx.InCurrency(currency) {
			out = append(out, tx)
		}
	}
	return out
}

// Summarize computes income (sum of positive converted amounts), expenses
// (absolute sum of negative ones) and balance. Rows converted into a
// different currency are left out and counted in Excluded.
func Summarize(txs []NormalizedTransaction, currency string) Snapshot {
	s := Snapshot{
		Income:   decimal.Zero,
		Expenses: decimal.Zero,
		Balance:  decimal.Zero,
		Currency: currency,
	}
	for _, tx := range txs {
		s = s.With(tx)
	}
	return s
}

// With returns the snapshot after adding one more transaction
func (s Snapshot) With(tx NormalizedTransaction) Snapshot {
	if !tx.InCurrency(s.Currency) {
		s.Excluded++
		return s
	}
	s.add(tx.ConvertedAmount)
	s.Balance = s.Income.Sub(s.Expenses)
	return s
}

func (s *Snapshot) add(amount decimal.Decimal) {
	s.Count++
	if amount.IsPositive() {
		s.Income = s.Income.Add(amount)
	} else if amount.IsNegative() {
		s.Expenses = s.Expenses.Add(amount.Abs())
	}
}

// CategoryTotal is the spend in one category
type CategoryTotal struct {
	Category Category
	Total    decimal.Decimal
	Count    int
}

// ExpensesByCategory sums expenses per category, largest first
func ExpensesByCategory(txs []NormalizedTransaction) []CategoryTotal {
	totals := make(map[Category]*CategoryTotal)
	for _, tx := range txs {
		if !tx.ConvertedAmount.IsNegative() {
			continue
		}
		ct, ok := totals[tx.Category]
		if !ok {
			ct = &CategoryTotal{Category: tx.Category, Total: decimal.Zero}
			totals[tx.Category] = ct
		}
		ct.Total = ct.Total.Add(tx.ConvertedAmount.Abs())
		ct.Count++
	}

	out := make([]CategoryTotal, 0, len(totals))
	for _, ct := range totals {
		out = append(out, *ct)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total.Equal(out[j].Total) {
			return out[i].Category < out[j].Category
		}
		return out[i].Total.GreaterThan(out[j].Total)
	})
	return out
}

// MonthTotal is the income and expenses for one calendar month
type MonthTotal struct {
	Month    string
	Income   decimal.Decimal
	Expenses decimal.Decimal
}

// TotalsByMonth groups by YYYY-MM, oldest first
func TotalsByMonth(txs []NormalizedTransaction) []MonthTotal {
	byMonth := make(map[string]*MonthTotal)
	for _, tx := range txs {
		key := tx.EffectiveDate().Format("2006-01")
		mt, ok := byMonth[key]
		if !ok {
			mt = &MonthTotal{Month: key, Income: decimal.Zero, Expenses: decimal.Zero}
			byMonth[key] = mt
		}
		if tx.ConvertedAmount.IsPositive() {
			mt.Income = mt.Income.Add(tx.ConvertedAmount)
		} else {
			mt.Expenses = mt.Expenses.Add(tx.ConvertedAmount.Abs())
		}
	}

	out := make([]MonthTotal, 0, len(byMonth))
	for _, mt := range byMonth {
		out = append(out, *mt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out
}
