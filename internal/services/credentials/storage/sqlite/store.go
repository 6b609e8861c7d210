// Package sqlite provides a SQLite-backed credentials storage implementation.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sqlitemigrate "github.com/louisbranch/agentpay/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/agentpay/internal/services/credentials/storage"
	"github.com/louisbranch/agentpay/internal/services/credentials/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store persists credential tokens and archived receipts in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite credentials store and applies embedded migrations.
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

// PutToken inserts one issued credential token.
func (s *Store) PutToken(ctx context.Context, token storage.CredentialToken) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	value := strings.TrimSpace(token.Token)
	if value == "" {
		return fmt.Errorf("token is required")
	}
	account := strings.TrimSpace(token.Account)
	if account == "" {
		return fmt.Errorf("account is required")
	}
	createdAt := token.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO credential_tokens (
		   token,
		   account,
		   payment_method_alias,
		   payment_mandate_id,
		   created_at
		 ) VALUES (?, ?, ?, ?, ?)`,
		value,
		account,
		strings.TrimSpace(token.PaymentMethodAlias),
		strings.TrimSpace(token.PaymentMandateID),
		toMillis(createdAt),
	)
	if err != nil {
		return fmt.Errorf("insert credential token: %w", err)
	}
	return nil
}

// GetToken returns one credential token by its opaque value.
func (s *Store) GetToken(ctx context.Context, token string) (storage.CredentialToken, error) {
	if err := ctx.Err(); err != nil {
		return storage.CredentialToken{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.CredentialToken{}, fmt.Errorf("storage is not configured")
	}
	value := strings.TrimSpace(token)
	if value == "" {
		return storage.CredentialToken{}, fmt.Errorf("token is required")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT token, account, payment_method_alias, payment_mandate_id, created_at
		 FROM credential_tokens WHERE token = ?`,
		value,
	)
	var record storage.CredentialToken
	var createdAt int64
	err := row.Scan(
		&record.Token,
		&record.Account,
		&record.PaymentMethodAlias,
		&record.PaymentMandateID,
		&createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.CredentialToken{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.CredentialToken{}, fmt.Errorf("query credential token: %w", err)
	}
	record.CreatedAt = fromMillis(createdAt)
	return record, nil
}

// BindToken binds the payment mandate id unless one is already bound. The
// guarded UPDATE makes concurrent binds resolve to a single winner.
func (s *Store) BindToken(ctx context.Context, token string, paymentMandateID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	value := strings.TrimSpace(token)
	if value == "" {
		return fmt.Errorf("token is required")
	}
	mandateID := strings.TrimSpace(paymentMandateID)
	if mandateID == "" {
		return fmt.Errorf("payment mandate id is required")
	}

	result, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE credential_tokens
		 SET payment_mandate_id = ?
		 WHERE token = ? AND payment_mandate_id = ''`,
		mandateID,
		value,
	)
	if err != nil {
		return fmt.Errorf("bind credential token: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("bind credential token rows: %w", err)
	}
	if affected > 0 {
		return nil
	}

	// Either the token never existed or it is already bound. The latter is
	// a no-op for the caller.
	if _, err := s.GetToken(ctx, value); err != nil {
		return err
	}
	return nil
}

// PutReceipt archives one payment receipt.
func (s *Store) PutReceipt(ctx context.Context, receipt storage.ArchivedReceipt) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	paymentID := strings.TrimSpace(receipt.PaymentID)
	if paymentID == "" {
		return fmt.Errorf("payment id is required")
	}
	receivedAt := receipt.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT OR REPLACE INTO payment_receipts (
		   payment_id,
		   payment_mandate_id,
		   currency,
		   amount,
		   payload,
		   received_at
		 ) VALUES (?, ?, ?, ?, ?, ?)`,
		paymentID,
		strings.TrimSpace(receipt.PaymentMandateID),
		strings.TrimSpace(receipt.Currency),
		receipt.Amount,
		receipt.Payload,
		toMillis(receivedAt),
	)
	if err != nil {
		return fmt.Errorf("insert payment receipt: %w", err)
	}
	return nil
}

// GetReceipt returns one archived receipt by payment id.
func (s *Store) GetReceipt(ctx context.Context, paymentID string) (storage.ArchivedReceipt, error) {
	if err := ctx.Err(); err != nil {
		return storage.ArchivedReceipt{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.ArchivedReceipt{}, fmt.Errorf("storage is not configured")
	}
	id := strings.TrimSpace(paymentID)
	if id == "" {
		return storage.ArchivedReceipt{}, fmt.Errorf("payment id is required")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT payment_id, payment_mandate_id, currency, amount, payload, received_at
		 FROM payment_receipts WHERE payment_id = ?`,
		id,
	)
	var record storage.ArchivedReceipt
	var receivedAt int64
	err := row.Scan(
		&record.PaymentID,
		&record.PaymentMandateID,
		&record.Currency,
		&record.Amount,
		&record.Payload,
		&receivedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ArchivedReceipt{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.ArchivedReceipt{}, fmt.Errorf("query payment receipt: %w", err)
	}
	record.ReceivedAt = fromMillis(receivedAt)
	return record, nil
}
