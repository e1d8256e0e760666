package importer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gmsas95/moneychat/internal/currency"
	apperrors "github.com/gmsas95/moneychat/internal/errors"
	"github.com/gmsas95/moneychat/internal/extract"
	"github.com/gmsas95/moneychat/internal/finance"
	"github.com/gmsas95/moneychat/internal/llm"
	"github.com/gmsas95/moneychat/internal/metrics"
	"github.com/gmsas95/moneychat/internal/prompts"
)

type memLedger struct {
	saved  []finance.NormalizedTransaction
	failOn string
}

func (l *memLedger) CreateTransaction(ctx context.Context, userID string, tx *finance.NormalizedTransaction) error {
	if l.failOn != "" && tx.Description == l.failOn {
		return apperrors.ErrLedgerWrite
	}
	tx.UserID = userID
	l.saved = append(l.saved, *tx)
	return nil
}

type staticProfiles struct {
	profile *finance.Profile
	err     error
}

func (p staticProfiles) FindByID(ctx context.Context, userID string) (*finance.Profile, error) {
	return p.profile, p.err
}

type halfRate struct{}

func (halfRate) Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	return amount.Div(decimal.NewFromInt(2)), nil
}

type harness struct {
	pipeline  *Pipeline
	ledger    *memLedger
	llmCalls  int
	llmPrompt []string
}

func newHarness(t *testing.T, reply string, llmErr error, profiles Profiles) *harness {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	h := &harness{ledger: &memLedger{}}

	completer := llm.CompleterFunc(func(ctx context.Context, prompt string) (string, error) {
		h.llmCalls++
		h.llmPrompt = append(h.llmPrompt, prompt)
		return reply, llmErr
	})
	catalog := prompts.Default()
	m := metrics.New()

	if profiles == nil {
		profiles = staticProfiles{profile: &finance.Profile{UserID: "u1", DefaultCurrency: "USD"}}
	}

	h.pipeline = NewPipeline(Deps{
		Duplicates: extract.NewExtractor(completer, catalog, logger),
		LLM:        completer,
		Prompts:    catalog,
		Normalizer: currency.NewNormalizer(halfRate{}, time.Second, m, logger),
		Ledger:     h.ledger,
		Profiles:   profiles,
		Metrics:    m,
		Logger:     logger,
	})
	return h
}

const sampleCSV = `Date,Description,Amount,Category
2026-03-01,Coffee,-3.50,Food
2026-03-02,Salary,2500.00,Salary
2026-03-03,Groceries,-64.20,Groceries
2026-03-04,Lost receipt,,Other`

func message(mode finance.Mode, csv string) finance.IncomingMessage {
	return finance.IncomingMessage{
		UserID: "u1",
		Text:   "Please import my statement.\n" + Marker + "\n" + csv,
		Mode:   mode,
	}
}

func TestExtractTableText(t *testing.T) {
	text, err := ExtractTableText("intro\nCSV Data:\na,b\n1,2\nCSV Data: again")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(text, "a,b"))
	assert.Contains(t, text, "CSV Data: again")

	_, err = ExtractTableText("no marker here")
	assert.ErrorIs(t, err, apperrors.ErrInvalidFormat)

	_, err = ExtractTableText("CSV Data:   \n ")
	assert.ErrorIs(t, err, apperrors.ErrInvalidFormat)
}

func TestParseTable(t *testing.T) {
	table, err := ParseTable(sampleCSV)
	require.NoError(t, err)
	require.Len(t, table.Rows, 4)

	coffee := table.Rows[0]
	require.NoError(t, coffee.Err)
	assert.Equal(t, "Coffee", coffee.Tx.Description)
	assert.True(t, coffee.Tx.Amount.Equal(decimal.RequireFromString("-3.50")))
	assert.Equal(t, finance.TypeExpense, coffee.Tx.Type)
	assert.Equal(t, finance.CategoryFood, coffee.Tx.Category)
	require.NotNil(t, coffee.Tx.Date)
	assert.Equal(t, time.March, coffee.Tx.Date.Month())

	assert.Equal(t, finance.TypeIncome, table.Rows[1].Tx.Type)
	assert.ErrorIs(t, table.Rows[3].Err, errMissingAmount)
	assert.Len(t, table.Valid(), 3)
}

func TestParseTable_DebitCreditAndAliases(t *testing.T) {
	csv := "Posted;Memo;Withdrawal;Deposit;CCY;Payee\n" +
		"03/01/2026;Rent;1.200,00;;eur;Landlord\n" +
		"03/02/2026;Refund;;(15,50);EUR;Shop\n" +
		"03/03/2026;;10;;EUR;Nobody\n"

	table, err := ParseTable(csv)
	require.NoError(t, err)
	require.Len(t, table.Rows, 3)

	rent := table.Rows[0].Tx
	assert.True(t, rent.Amount.Equal(decimal.NewFromInt(-1200)), rent.Amount.String())
	assert.Equal(t, "EUR", rent.Currency)
	assert.Equal(t, "Landlord", rent.Vendor)
	require.NotNil(t, rent.Date)
	assert.Equal(t, time.March, rent.Date.Month())

	refund := table.Rows[1].Tx
	assert.True(t, refund.Amount.Equal(decimal.RequireFromString("15.50")))
	assert.Equal(t, finance.TypeIncome, refund.Type)

	assert.ErrorIs(t, table.Rows[2].Err, errMissingDescription)
}

func TestParseTable_TypeColumnForcesSign(t *testing.T) {
	table, err := ParseTable("description,amount,type\nBus ticket,2.80,debit\nGift,-50,income\n")
	require.NoError(t, err)

	assert.True(t, table.Rows[0].Tx.Amount.Equal(decimal.RequireFromString("-2.80")))
	assert.True(t, table.Rows[1].Tx.Amount.Equal(decimal.NewFromInt(50)))
}

func TestParseTable_Unreadable(t *testing.T) {
	for _, text := range []string{
		"",
		"Description,Amount\n",
		"foo,bar\n1,2\n",
		"Amount\n12\n",
	} {
		_, err := ParseTable(text)
		assert.ErrorIs(t, err, apperrors.ErrUnreadableTable, text)
	}
}

type headerMap struct {
	roles map[string]string
	err   error
	calls int
}

func (m *headerMap) MapColumns(ctx context.Context, header []string) (map[string]string, error) {
	m.calls++
	return m.roles, m.err
}

const germanCSV = "Datum;Beschreibung;Betrag\n" +
	"01.03.2026;Kaffee;-3,50\n" +
	"02.03.2026;Gehalt;2.500,00\n" +
	"03.03.2026;Ohne Betrag;\n"

func germanColumns() *headerMap {
	return &headerMap{roles: map[string]string{
		"date":        "datum",
		"description": "Beschreibung",
		"amount":      "Betrag",
	}}
}

func TestParseTable_NonEnglishHeaderUsesMapper(t *testing.T) {
	_, err := ParseTable(germanCSV)
	assert.ErrorIs(t, err, apperrors.ErrUnreadableTable)

	mapper := germanColumns()
	table, err := parseTable(context.Background(), germanCSV, mapper)
	require.NoError(t, err)
	assert.True(t, table.Mapped)
	assert.Equal(t, 1, mapper.calls)
	require.Len(t, table.Rows, 3)

	coffee := table.Rows[0]
	require.NoError(t, coffee.Err)
	assert.Equal(t, "Kaffee", coffee.Tx.Description)
	assert.True(t, coffee.Tx.Amount.Equal(decimal.RequireFromString("-3.50")))
	require.NotNil(t, coffee.Tx.Date)
	assert.Equal(t, time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC), *coffee.Tx.Date)

	assert.True(t, table.Rows[1].Tx.Amount.Equal(decimal.NewFromInt(2500)))
	assert.ErrorIs(t, table.Rows[2].Err, errMissingAmount)
}

func TestParseTable_MapperOnlyForUnknownHeaders(t *testing.T) {
	mapper := germanColumns()
	table, err := parseTable(context.Background(), sampleCSV, mapper)
	require.NoError(t, err)
	assert.False(t, table.Mapped)
	assert.Equal(t, 0, mapper.calls)
}

func TestParseTable_MapperCannotResolve(t *testing.T) {
	_, err := parseTable(context.Background(), germanCSV, &headerMap{err: errors.New("model down")})
	assert.ErrorIs(t, err, apperrors.ErrUnreadableTable)

	_, err = parseTable(context.Background(), germanCSV, &headerMap{roles: map[string]string{"date": "Datum"}})
	assert.ErrorIs(t, err, apperrors.ErrUnreadableTable)

	_, err = parseTable(context.Background(), germanCSV, &headerMap{roles: map[string]string{
		"description": "Beschreibung",
		"amount":      "Summe",
	}})
	assert.ErrorIs(t, err, apperrors.ErrUnreadableTable)
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"12", "12"},
		{"-12.50", "-12.5"},
		{"$1,234.56", "1234.56"},
		{"€ 1.234,56", "1234.56"},
		{"12,5", "12.5"},
		{"1,234", "1234"},
		{"(45.00)", "-45"},
		{"+7", "7"},
	}
	for _, tt := range tests {
		got, err := ParseAmount(tt.in)
		require.NoError(t, err, tt.in)
		assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "%s -> %s", tt.in, got)
	}

	for _, bad := range []string{"", "abc", "--", "1.2.3"} {
		_, err := ParseAmount(bad)
		assert.Error(t, err, bad)
	}
}

func TestPreview(t *testing.T) {
	h := newHarness(t, "", nil, nil)
	msg := message(finance.ModeCSVImport, sampleCSV)
	msg.FileInfo = &finance.FileMeta{Name: "march.csv", SizeBytes: 200, LastModified: 1}

	res, err := h.pipeline.Preview(context.Background(), msg)
	require.NoError(t, err)

	assert.True(t, res.RequiresConfirmation)
	assert.False(t, res.IsDuplicate)
	assert.Equal(t, msg.FileInfo, res.FileInfo)
	assert.Equal(t, 4, res.Summary.RowCount)
	assert.Equal(t, 3, res.Summary.ValidCount)
	assert.Equal(t, 1, res.Summary.InvalidCount)
	assert.True(t, res.Summary.Income.Equal(decimal.NewFromInt(2500)))
	assert.True(t, res.Summary.Expenses.Equal(decimal.RequireFromString("67.70")))
	assert.Contains(t, res.Message, "march.csv")
	assert.Empty(t, h.ledger.saved)
	assert.Equal(t, 0, h.llmCalls)
}

func TestPreview_IdenticalFileIsDuplicate(t *testing.T) {
	h := newHarness(t, "", errors.New("model down"), nil)
	meta := finance.FileMeta{Name: "march.csv", SizeBytes: 200, LastModified: 1710000000000}
	msg := message(finance.ModeCSVImport, "this is not even a table")
	msg.FileInfo = &meta
	prev := meta
	msg.PreviousFile = &prev

	res, err := h.pipeline.Preview(context.Background(), msg)
	require.NoError(t, err)

	assert.True(t, res.IsDuplicate)
	assert.False(t, res.RequiresConfirmation)
	assert.Nil(t, res.Summary, "rows must not be parsed")
	assert.NotEmpty(t, res.Suggestions)
	// warning composition failed, so the canned text carries the explanation
	assert.Contains(t, res.Message, "already imported")
	assert.Contains(t, res.Message, "identical")
}

func TestPreview_DifferentFileIsParsed(t *testing.T) {
	h := newHarness(t, "DIFFERENT: another month", nil, nil)
	msg := message(finance.ModeCSVImport, sampleCSV)
	msg.FileInfo = &finance.FileMeta{Name: "april.csv", SizeBytes: 512, LastModified: 1712000000000}
	msg.PreviousFile = &finance.FileMeta{Name: "march.csv", SizeBytes: 200, LastModified: 1710000000000}

	res, err := h.pipeline.Preview(context.Background(), msg)
	require.NoError(t, err)
	assert.False(t, res.IsDuplicate)
	assert.True(t, res.RequiresConfirmation)
	assert.Equal(t, 1, h.llmCalls)
}

func TestPreview_DuplicateAnalysisFailureProceeds(t *testing.T) {
	h := newHarness(t, "", errors.New("model down"), nil)
	msg := message(finance.ModeCSVImport, sampleCSV)
	msg.FileInfo = &finance.FileMeta{Name: "april.csv", SizeBytes: 512}
	msg.PreviousFile = &finance.FileMeta{Name: "march.csv", SizeBytes: 200}

	res, err := h.pipeline.Preview(context.Background(), msg)
	require.NoError(t, err)
	assert.False(t, res.IsDuplicate)
	assert.True(t, res.RequiresConfirmation)
}

func TestPreview_Errors(t *testing.T) {
	h := newHarness(t, "", nil, nil)

	_, err := h.pipeline.Preview(context.Background(), finance.IncomingMessage{Text: "Date,Amount\n1,2"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidFormat)

	_, err = h.pipeline.Preview(context.Background(), message(finance.ModeCSVImport, "x,y\n1,2"))
	assert.ErrorIs(t, err, apperrors.ErrUnreadableTable)
}

func TestConfirm_ThreeValidOneMissingAmount(t *testing.T) {
	h := newHarness(t, "Imported 3 transactions; 1 row could not be read.", nil, nil)

	res, err := h.pipeline.Confirm(context.Background(), message(finance.ModeCSVImportConfirm, sampleCSV))
	require.NoError(t, err)

	assert.Equal(t, finance.ImportBatchResult{ImportedCount: 3, FailedCount: 1}, res.Result)
	assert.Equal(t, "Imported 3 transactions; 1 row could not be read.", res.Message)
	require.Len(t, h.ledger.saved, 3)
	for _, tx := range h.ledger.saved {
		assert.Equal(t, finance.SourceImport, tx.Source)
		assert.Equal(t, "USD", tx.OriginalCurrency)
		assert.True(t, tx.ConversionRate.Equal(decimal.NewFromInt(1)))
	}
}

func TestConfirm_NonEnglishHeader(t *testing.T) {
	h := newHarness(t, "done", nil, nil)
	h.pipeline.Columns = germanColumns()

	preview, err := h.pipeline.Preview(context.Background(), message(finance.ModeCSVImport, germanCSV))
	require.NoError(t, err)
	assert.Equal(t, 3, preview.Summary.RowCount)
	assert.Equal(t, 2, preview.Summary.ValidCount)
	assert.Equal(t, 1, preview.Summary.InvalidCount)

	res, err := h.pipeline.Confirm(context.Background(), message(finance.ModeCSVImportConfirm, germanCSV))
	require.NoError(t, err)
	assert.Equal(t, finance.ImportBatchResult{ImportedCount: 2, FailedCount: 1}, res.Result)
	require.Len(t, h.ledger.saved, 2)
	assert.Equal(t, "Kaffee", h.ledger.saved[0].Description)
	require.NotNil(t, h.ledger.saved[0].Date)
	assert.Equal(t, time.March, h.ledger.saved[0].Date.Month())
}

func TestConfirm_CountsAlwaysAddUp(t *testing.T) {
	for n := 0; n <= 4; n++ {
		for m := 0; m <= 3; m++ {
			if n+m == 0 {
				continue
			}
			var b strings.Builder
			b.WriteString("description,amount\n")
			for i := 0; i < n; i++ {
				fmt.Fprintf(&b, "item %d,-%d.25\n", i, i+1)
			}
			for i := 0; i < m; i++ {
				fmt.Fprintf(&b, "broken %d,n/a\n", i)
			}

			h := newHarness(t, "", errors.New("no summary"), nil)
			res, err := h.pipeline.Confirm(context.Background(), message(finance.ModeCSVImportConfirm, b.String()))
			require.NoError(t, err)

			assert.Equal(t, n+m, res.Result.Total(), "n=%d m=%d", n, m)
			assert.Equal(t, n, res.Result.ImportedCount, "n=%d m=%d", n, m)
			assert.Contains(t, res.Message, fmt.Sprintf("%d transactions imported, %d rows failed", n, m))
		}
	}
}

func TestConfirm_PersistenceFailureIsIsolated(t *testing.T) {
	h := newHarness(t, "done", nil, nil)
	h.ledger.failOn = "Salary"

	res, err := h.pipeline.Confirm(context.Background(), message(finance.ModeCSVImportConfirm, sampleCSV))
	require.NoError(t, err)

	assert.Equal(t, 2, res.Result.ImportedCount)
	assert.Equal(t, 2, res.Result.FailedCount)
	assert.Len(t, h.ledger.saved, 2)
}

func TestConfirm_ConvertsToProfileCurrency(t *testing.T) {
	profiles := staticProfiles{profile: &finance.Profile{UserID: "u1", DefaultCurrency: "EUR"}}
	h := newHarness(t, "done", nil, profiles)

	_, err := h.pipeline.Confirm(context.Background(), message(finance.ModeCSVImportConfirm, "description,amount\nTaxi,-30\n"))
	require.NoError(t, err)

	require.Len(t, h.ledger.saved, 1)
	tx := h.ledger.saved[0]
	assert.True(t, tx.OriginalAmount.Equal(decimal.NewFromInt(-30)))
	assert.True(t, tx.ConvertedAmount.Equal(decimal.NewFromInt(-15)))
	assert.Equal(t, "EUR", tx.ConvertedCurrency)
}

func TestConfirm_ProfileFailureAssumesUSD(t *testing.T) {
	h := newHarness(t, "done", nil, staticProfiles{err: errors.New("db down")})

	_, err := h.pipeline.Confirm(context.Background(), message(finance.ModeCSVImportConfirm, "description,amount,currency\nHotel,-100,EUR\n"))
	require.NoError(t, err)

	require.Len(t, h.ledger.saved, 1)
	assert.Equal(t, "USD", h.ledger.saved[0].ConvertedCurrency)
	assert.True(t, h.ledger.saved[0].ConvertedAmount.Equal(decimal.NewFromInt(-50)))
}

func TestConfirm_NoProfileUsesConfiguredCurrency(t *testing.T) {
	h := newHarness(t, "done", nil, staticProfiles{})
	h.pipeline.Currency = "GBP"

	_, err := h.pipeline.Confirm(context.Background(), message(finance.ModeCSVImportConfirm, "description,amount\nTaxi,-30\n"))
	require.NoError(t, err)

	require.Len(t, h.ledger.saved, 1)
	assert.Equal(t, "USD", h.ledger.saved[0].OriginalCurrency)
	assert.Equal(t, "GBP", h.ledger.saved[0].ConvertedCurrency)
	assert.True(t, h.ledger.saved[0].ConvertedAmount.Equal(decimal.NewFromInt(-15)))
}

func TestConfirm_InvalidFormat(t *testing.T) {
	h := newHarness(t, "done", nil, nil)

	_, err := h.pipeline.Confirm(context.Background(), finance.IncomingMessage{Text: "just text"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidFormat)
	assert.Empty(t, h.ledger.saved)
}
