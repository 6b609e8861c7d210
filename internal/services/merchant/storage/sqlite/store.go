// Package sqlite provides a SQLite-backed merchant storage implementation.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/louisbranch/agentpay/internal/mandate"
	sqlitemigrate "github.com/louisbranch/agentpay/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/agentpay/internal/services/merchant/storage"
	"github.com/louisbranch/agentpay/internal/services/merchant/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store persists merchant carts and risk data in SQLite. Cart mandates are
// stored as JSON payloads; the cart id column carries the lookup key.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite merchant store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// PutCart upserts one cart record.
func (s *Store) PutCart(ctx context.Context, record storage.CartRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	cartID := strings.TrimSpace(record.CartID)
	if cartID == "" {
		return fmt.Errorf("cart id is required")
	}
	payload, err := json.Marshal(record.Cart)
	if err != nil {
		return fmt.Errorf("encode cart mandate: %w", err)
	}
	updatedAt := record.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	_, err = s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO carts (cart_id, payload, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(cart_id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		cartID,
		string(payload),
		toMillis(updatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert cart: %w", err)
	}
	return nil
}

// GetCart returns one cart record by cart id.
func (s *Store) GetCart(ctx context.Context, cartID string) (storage.CartRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.CartRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.CartRecord{}, fmt.Errorf("storage is not configured")
	}
	id := strings.TrimSpace(cartID)
	if id == "" {
		return storage.CartRecord{}, fmt.Errorf("cart id is required")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT cart_id, payload, updated_at FROM carts WHERE cart_id = ?`,
		id,
	)
	var record storage.CartRecord
	var payload string
	var updatedAt int64
	err := row.Scan(&record.CartID, &payload, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.CartRecord{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.CartRecord{}, fmt.Errorf("query cart: %w", err)
	}

	var cart mandate.CartMandate
	if err := json.Unmarshal([]byte(payload), &cart); err != nil {
		return storage.CartRecord{}, fmt.Errorf("decode cart mandate: %w", err)
	}
	record.Cart = cart
	record.UpdatedAt = fromMillis(updatedAt)
	return record, nil
}

// PutRiskData upserts the risk payload for a conversation.
func (s *Store) PutRiskData(ctx context.Context, contextID, riskData string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	id := strings.TrimSpace(contextID)
	if id == "" {
		return fmt.Errorf("context id is required")
	}
	if strings.TrimSpace(riskData) == "" {
		return fmt.Errorf("risk data is required")
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO risk_data (context_id, risk_data, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(context_id) DO UPDATE SET risk_data = excluded.risk_data, updated_at = excluded.updated_at`,
		id,
		riskData,
		toMillis(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("upsert risk data: %w", err)
	}
	return nil
}

// GetRiskData returns the risk payload for a conversation.
func (s *Store) GetRiskData(ctx context.Context, contextID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s == nil || s.sqlDB == nil {
		return "", fmt.Errorf("storage is not configured")
	}
	id := strings.TrimSpace(contextID)
	if id == "" {
		return "", fmt.Errorf("context id is required")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT risk_data FROM risk_data WHERE context_id = ?`,
		id,
	)
	var riskData string
	err := row.Scan(&riskData)
	if errors.Is(err, sql.ErrNoRows) {
		return "", storage.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("query risk data: %w", err)
	}
	return riskData, nil
}
