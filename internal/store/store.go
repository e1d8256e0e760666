// Package store persists the ledger and user profiles with GORM and keeps
// expiring cache entries in BadgerDB
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/glebarez/go-sqlite" // Pure Go SQLite driver
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/gmsas95/moneychat/internal/config"
	apperrors "github.com/gmsas95/moneychat/internal/errors"
	"github.com/gmsas95/moneychat/internal/finance"
)

// DefaultUserID owns the ledger when no user is identified
const DefaultUserID = "default"

// Store provides unified access to the SQL ledger and the Badger KV
type Store struct {
	db     *gorm.DB
	kv     *KV
	logger *zap.Logger
}

// New opens the configured SQL database and BadgerDB, migrates the schema and
// makes sure the default profile exists
func New(cfg *config.Config, log *zap.Logger) (*Store, error) {
	dialector, err := openDialector(cfg.Storage)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
		PrepareStmt:            true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", cfg.Storage.Driver, err)
	}

	badgerPath := cfg.Storage.BadgerPath
	if badgerPath == "" {
		badgerPath = filepath.Join(cfg.Storage.DataDir, "badger")
	}
	kv, err := OpenKV(badgerPath)
	if err != nil {
		return nil, err
	}

	s, err := Open(db, kv, log)
	if err != nil {
		kv.Close()
		return nil, err
	}

	if err := s.EnsureProfile(context.Background(), DefaultUserID, "User", cfg.Ledger.DefaultCurrency); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to create default user: %w", err)
	}

	return s, nil
}

// Open wraps an existing GORM handle and KV and migrates the schema
func Open(db *gorm.DB, kv *KV, log *zap.Logger) (*Store, error) {
	if err := db.AutoMigrate(&User{}, &Transaction{}); err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}
	return &Store{db: db, kv: kv, logger: log}, nil
}

func openDialector(cfg config.StorageConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "postgres":
		return postgres.Open(cfg.DSN), nil
	case "sqlite", "":
		path := cfg.SQLitePath
		if path == "" {
			path = filepath.Join(cfg.DataDir, "moneychat.db")
		}
		if !strings.Contains(path, "?") {
			path += "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
		}

		sqlDB, err := sql.Open("sqlite", path)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite: %w", err)
		}
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(time.Hour)

		return sqlite.Dialector{Conn: sqlDB}, nil
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
}

// Close closes all database connections
func (s *Store) Close() error {
	var errs []error
	if sqlDB, err := s.db.DB(); err == nil {
		errs = append(errs, sqlDB.Close())
	}
	if s.kv != nil {
		errs = append(errs, s.kv.Close())
	}
	return errors.Join(errs...)
}

// DB returns the GORM database instance
func (s *Store) DB() *gorm.DB {
	return s.db
}

// KV returns the Badger key-value store
func (s *Store) KV() *KV {
	return s.kv
}

// Ping checks the SQL connection
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// ==================== Ledger ====================

// ListTransactions returns the user's most recent transactions, newest first
func (s *Store) ListTransactions(ctx context.Context, userID string, limit int) ([]finance.NormalizedTransaction, error) {
	if limit <= 0 {
		limit = 200
	}

	var rows []Transaction
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, apperrors.WithCause(apperrors.ErrLedgerUnavailable, err)
	}

	out := make([]finance.NormalizedTransaction, len(rows))
	for i := range rows {
		out[i] = rows[i].Domain()
	}
	return out, nil
}

// CreateTransaction persists tx for userID and fills in its ID, owner and
// creation time
func (s *Store) CreateTransaction(ctx context.Context, userID string, tx *finance.NormalizedTransaction) error {
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}

	row := transactionFromDomain(userID, tx)
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return apperrors.WithCause(apperrors.ErrLedgerWrite, err)
	}

	tx.ID = row.ID
	tx.UserID = userID
	tx.Source = finance.Source(row.Source)
	return nil
}

// CountTransactions returns how many transactions the user has
func (s *Store) CountTransactions(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&Transaction{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}

// ==================== Profiles ====================

// FindByID returns the user's profile, or nil when there is none
func (s *Store) FindByID(ctx context.Context, userID string) (*finance.Profile, error) {
	var user User
	err := s.db.WithContext(ctx).Where("id = ?", userID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.WithCause(apperrors.ErrLedgerUnavailable, err)
	}

	return &finance.Profile{
		UserID:          user.ID,
		DisplayName:     user.DisplayName,
		DefaultCurrency: user.DefaultCurrency,
	}, nil
}

// EnsureProfile creates the profile if it does not exist yet
func (s *Store) EnsureProfile(ctx context.Context, userID, displayName, currency string) error {
	user := User{
		ID:              userID,
		DisplayName:     displayName,
		DefaultCurrency: strings.ToUpper(currency),
	}
	return s.db.WithContext(ctx).
		Where(User{ID: userID}).
		Attrs(user).
		FirstOrCreate(&User{}).Error
}
