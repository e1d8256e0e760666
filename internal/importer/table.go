package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	apperrors "github.com/gmsas95/moneychat/internal/errors"
	"github.com/gmsas95/moneychat/internal/finance"
)

// Marker precedes the tabular text in an import message
const Marker = "CSV Data:"

// Row is one parsed data row. Err is set for malformed rows, which are kept
// so they can be counted.
type Row struct {
	Line int
	Tx   finance.ExtractedTransaction
	Err  error
}

// Table is a parsed spreadsheet
type Table struct {
	Header []string
	Rows   []Row
	// Mapped is set when the header was resolved by a HeaderMapper
	Mapped bool
}

// HeaderMapper resolves headers the alias table does not know. The result
// maps a role (date, description, amount, currency, category, type, vendor,
// debit, credit) to a header name.
type HeaderMapper interface {
	MapColumns(ctx context.Context, header []string) (map[string]string, error)
}

// Valid returns the rows without errors
func (t *Table) Valid() []Row {
	out := make([]Row, 0, len(t.Rows))
	for _, r := range t.Rows {
		if r.Err == nil {
			out = append(out, r)
		}
	}
	return out
}

type column int

const (
	colDate column = iota
	colDescription
	colAmount
	colCurrency
	colCategory
	colType
	colVendor
	colDebit
	colCredit
)

var headerAliases = map[string]column{
	"date":             colDate,
	"transaction date": colDate,
	"posted":           colDate,
	"posting date":     colDate,
	"description":      colDescription,
	"desc":             colDescription,
	"memo":             colDescription,
	"details":          colDescription,
	"name":             colDescription,
	"narrative":        colDescription,
	"amount":           colAmount,
	"value":            colAmount,
	"sum":              colAmount,
	"currency":         colCurrency,
	"ccy":              colCurrency,
	"category":         colCategory,
	"type":             colType,
	"direction":        colType,
	"vendor":           colVendor,
	"merchant":         colVendor,
	"payee":            colVendor,
	"debit":            colDebit,
	"withdrawal":       colDebit,
	"withdrawals":      colDebit,
	"credit":           colCredit,
	"deposit":          colCredit,
	"deposits":         colCredit,
}

var roleColumns = map[string]column{
	"date":        colDate,
	"description": colDescription,
	"amount":      colAmount,
	"currency":    colCurrency,
	"category":    colCategory,
	"type":        colType,
	"vendor":      colVendor,
	"debit":       colDebit,
	"credit":      colCredit,
}

var dateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"02.01.2006",
	"2006/01/02",
	time.RFC3339,
}

var (
	errMissingAmount      = errors.New("missing amount")
	errMissingDescription = errors.New("missing description")
)

// ExtractTableText returns everything after the first Marker
func ExtractTableText(message string) (string, error) {
	idx := strings.Index(message, Marker)
	if idx == -1 {
		return "", apperrors.WithCause(apperrors.ErrInvalidFormat, fmt.Errorf("marker %q not found", Marker))
	}
	text := strings.TrimSpace(message[idx+len(Marker):])
	if text == "" {
		return "", apperrors.WithCause(apperrors.ErrInvalidFormat, errors.New("no table data after marker"))
	}
	return text, nil
}

// ParseTable reads delimited text with a header row. It fails with
// ErrUnreadableTable when the text is not a usable table; individual bad
// rows are returned with Err set instead.
func ParseTable(text string) (*Table, error) {
	return parseTable(context.Background(), text, nil)
}

// parseTable is ParseTable with a mapper consulted when the known header
// aliases leave the amount or description column unresolved
func parseTable(ctx context.Context, text string, mapper HeaderMapper) (*Table, error) {
	text = strings.TrimPrefix(text, "\ufeff")

	r := csv.NewReader(strings.NewReader(text))
	r.Comma = detectDelimiter(text)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, apperrors.WithCause(apperrors.ErrUnreadableTable, fmt.Errorf("read header: %w", err))
	}

	cols := make(map[column]int)
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(h))
		if c, ok := headerAliases[key]; ok {
			if _, dup := cols[c]; !dup {
				cols[c] = i
			}
		}
	}

	mapped := false
	if missingColumns(cols) != nil && mapper != nil {
		roles, err := mapper.MapColumns(ctx, header)
		if err != nil {
			return nil, apperrors.WithCause(apperrors.ErrUnreadableTable, fmt.Errorf("map header: %w", err))
		}
		applyRoles(cols, header, roles)
		mapped = true
	}
	if err := missingColumns(cols); err != nil {
		return nil, apperrors.WithCause(apperrors.ErrUnreadableTable, err)
	}

	table := &Table{Header: header, Mapped: mapped}
	line := 1
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, apperrors.WithCause(apperrors.ErrUnreadableTable, fmt.Errorf("line %d: %w", line, err))
		}
		if blank(record) {
			continue
		}
		table.Rows = append(table.Rows, parseRow(line, record, cols))
	}

	if len(table.Rows) == 0 {
		return nil, apperrors.WithCause(apperrors.ErrUnreadableTable, errors.New("table has no data rows"))
	}
	return table, nil
}

func missingColumns(cols map[column]int) error {
	_, hasAmount := cols[colAmount]
	_, hasDebit := cols[colDebit]
	_, hasCredit := cols[colCredit]
	if !hasAmount && !hasDebit && !hasCredit {
		return errors.New("no amount column in header")
	}
	if _, ok := cols[colDescription]; !ok {
		return errors.New("no description column in header")
	}
	return nil
}

// applyRoles fills columns the aliases left open. Header names match
// ignoring case and surrounding space.
func applyRoles(cols map[column]int, header []string, roles map[string]string) {
	for role, name := range roles {
		c, ok := roleColumns[strings.ToLower(role)]
		if !ok {
			continue
		}
		if _, taken := cols[c]; taken {
			continue
		}
		want := strings.ToLower(strings.TrimSpace(name))
		for i, h := range header {
			if strings.ToLower(strings.TrimSpace(h)) == want {
				cols[c] = i
				break
			}
		}
	}
}

func parseRow(line int, record []string, cols map[column]int) Row {
	get := func(c column) string {
		i, ok := cols[c]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	row := Row{Line: line}
	tx := finance.ExtractedTransaction{
		Description: get(colDescription),
		Vendor:      get(colVendor),
		Category:    finance.ParseCategory(get(colCategory)),
		Type:        finance.ParseTxType(get(colType)),
	}

	if cur := strings.ToUpper(get(colCurrency)); len(cur) == 3 {
		tx.Currency = cur
	}
	if raw := get(colDate); raw != "" {
		tx.Date = parseDate(raw)
	}

	amount, ok, err := rowAmount(get(colAmount), get(colDebit), get(colCredit))
	switch {
	case err != nil:
		row.Err = err
	case !ok:
		row.Err = errMissingAmount
	case tx.Description == "":
		row.Err = errMissingDescription
	}

	if row.Err == nil {
		tx.Amount = amount
		tx.Reconcile()
	}

	row.Tx = tx
	return row
}

// rowAmount prefers the amount column, then debit (negative) and credit (positive)
func rowAmount(amount, debit, credit string) (decimal.Decimal, bool, error) {
	if amount != "" {
		d, err := ParseAmount(amount)
		return d, err == nil, err
	}
	if debit != "" {
		d, err := ParseAmount(debit)
		if err != nil {
			return decimal.Zero, false, err
		}
		if !d.IsZero() {
			return d.Abs().Neg(), true, nil
		}
	}
	if credit != "" {
		d, err := ParseAmount(credit)
		if err != nil {
			return decimal.Zero, false, err
		}
		return d.Abs(), true, nil
	}
	return decimal.Zero, false, nil
}

// ParseAmount accepts currency symbols, thousands separators, a decimal
// comma and parentheses for negatives
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = s[1 : len(s)-1]
	}

	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r == '.', r == ',', r == '-', r == '+':
			b.WriteRune(r)
		}
	}
	clean := b.String()
	if clean == "" || strings.Trim(clean, ".,+-") == "" {
		return decimal.Zero, fmt.Errorf("invalid amount %q", s)
	}

	lastDot := strings.LastIndex(clean, ".")
	lastComma := strings.LastIndex(clean, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			// 1.234,56
			clean = strings.ReplaceAll(clean, ".", "")
			clean = strings.Replace(clean, ",", ".", 1)
		} else {
			clean = strings.ReplaceAll(clean, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(clean, ",") == 1 && len(clean)-lastComma-1 <= 2 {
			clean = strings.Replace(clean, ",", ".", 1)
		} else {
			clean = strings.ReplaceAll(clean, ",", "")
		}
	}

	d, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if neg {
		d = d.Abs().Neg()
	}
	return d, nil
}

func parseDate(s string) *time.Time {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

func detectDelimiter(text string) rune {
	first := text
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		first = text[:i]
	}
	switch {
	case strings.Count(first, "\t") > strings.Count(first, ","):
		return '\t'
	case strings.Count(first, ";") > strings.Count(first, ","):
		return ';'
	default:
		return ','
	}
}

func blank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
