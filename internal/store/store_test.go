package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/gmsas95/moneychat/internal/config"
	"github.com/gmsas95/moneychat/internal/finance"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	sqlDB, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	db, err := gorm.Open(sqlite.Dialector{Conn: sqlDB}, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	kv, err := OpenKV("")
	require.NoError(t, err)

	log, _ := zap.NewDevelopment()
	s, err := Open(db, kv, log)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func normalized(desc, amount string, created time.Time) *finance.NormalizedTransaction {
	d := decimal.RequireFromString(amount)
	return &finance.NormalizedTransaction{
		ExtractedTransaction: finance.ExtractedTransaction{
			Description: desc,
			Amount:      d,
			Currency:    "USD",
			Category:    finance.CategoryFood,
			Type:        finance.TypeExpense,
		},
		OriginalAmount:    d,
		OriginalCurrency:  "USD",
		ConvertedAmount:   d,
		ConvertedCurrency: "USD",
		ConversionRate:    decimal.NewFromInt(1),
		Source:            finance.SourceChat,
		CreatedAt:         created,
	}
}

func TestCreateAndListTransactions(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	first := normalized("coffee", "-3.5", base)
	second := normalized("lunch", "-12.5", base.Add(time.Hour))
	require.NoError(t, s.CreateTransaction(ctx, "alice", first))
	require.NoError(t, s.CreateTransaction(ctx, "alice", second))
	require.NoError(t, s.CreateTransaction(ctx, "bob", normalized("rent", "-900", base)))

	assert.NotEmpty(t, first.ID)
	assert.Equal(t, "alice", first.UserID)

	txs, err := s.ListTransactions(ctx, "alice", 10)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, "lunch", txs[0].Description)
	assert.True(t, txs[0].ConvertedAmount.Equal(decimal.RequireFromString("-12.5")))
	assert.Equal(t, finance.CategoryFood, txs[0].Category)
	assert.Equal(t, finance.SourceChat, txs[0].Source)

	limited, err := s.ListTransactions(ctx, "alice", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	count, err := s.CountTransactions(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestCreateTransaction_DefaultsSource(t *testing.T) {
	s := setupTestStore(t)
	tx := normalized("book", "-20", time.Time{})
	tx.Source = ""

	require.NoError(t, s.CreateTransaction(context.Background(), "alice", tx))
	assert.Equal(t, finance.SourceChat, tx.Source)
	assert.False(t, tx.CreatedAt.IsZero())
}

func TestProfiles(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	profile, err := s.FindByID(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, profile)

	require.NoError(t, s.EnsureProfile(ctx, "alice", "Alice", "eur"))
	require.NoError(t, s.EnsureProfile(ctx, "alice", "Other", "USD"))

	profile, err = s.FindByID(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.Equal(t, "EUR", profile.DefaultCurrency)
	assert.Equal(t, "Alice", profile.DisplayName)
}

func TestPing(t *testing.T) {
	s := setupTestStore(t)
	assert.NoError(t, s.Ping(context.Background()))
}

func TestKV(t *testing.T) {
	kv, err := OpenKV("")
	require.NoError(t, err)
	defer kv.Close()

	_, err = kv.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, kv.Set("rate:USD:EUR", []byte("0.92"), time.Hour))
	val, err := kv.Get("rate:USD:EUR")
	require.NoError(t, err)
	assert.Equal(t, "0.92", string(val))

	require.NoError(t, kv.Delete("rate:USD:EUR"))
	_, err = kv.Get("rate:USD:EUR")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, kv.RunGC(0.5))
}

func TestKV_Expiry(t *testing.T) {
	kv, err := OpenKV("")
	require.NoError(t, err)
	defer kv.Close()

	require.NoError(t, kv.Set("short", []byte("x"), time.Second))
	time.Sleep(1100 * time.Millisecond)

	_, err = kv.Get("short")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNew_SQLiteOnDisk(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{}
	cfg.Storage.Driver = "sqlite"
	cfg.Storage.DataDir = dir
	cfg.Ledger.DefaultCurrency = "GBP"

	log, _ := zap.NewDevelopment()
	s, err := New(cfg, log)
	require.NoError(t, err)
	defer s.Close()

	profile, err := s.FindByID(context.Background(), DefaultUserID)
	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.Equal(t, "GBP", profile.DefaultCurrency)
}

func TestOpenDialector(t *testing.T) {
	d, err := openDialector(config.StorageConfig{Driver: "postgres", DSN: "host=localhost user=moneychat dbname=moneychat"})
	require.NoError(t, err)
	assert.Equal(t, "postgres", d.Name())

	_, err = openDialector(config.StorageConfig{Driver: "mysql"})
	assert.Error(t, err)
}
