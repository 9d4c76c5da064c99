package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"attestor/internal/attestation/models"
	"attestor/pkg/platform/sentinel"
)

// Unique constraint names surfaced by lib/pq on 23505.
const (
	constraintWalletAddress = "identities_wallet_address_key"
	constraintAadhaarHash   = "identities_aadhaar_hash_key"
	constraintPANHash       = "identities_pan_hash_key"
)

// PostgresStore persists identity records in PostgreSQL.
// This store is pure I/O; issuance rules live in the service.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed identity store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate applies Schema. Safe to run on every start.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("migrate identities schema: %w", err)
	}
	return nil
}

const selectColumns = `id, wallet_address, aadhaar_hash, pan_hash, is_verified, signature, nonce, created_at, updated_at`

func (s *PostgresStore) FindByAddress(ctx context.Context, addr models.WalletAddress) (*models.IdentityRecord, error) {
	query := `SELECT ` + selectColumns + ` FROM identities WHERE wallet_address = $1`
	record, err := scanIdentity(s.db.QueryRowContext(ctx, query, addr.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find identity by address: %w", err)
	}
	return record, nil
}

func (s *PostgresStore) FindByDocument(ctx context.Context, fingerprint string) (*models.IdentityRecord, error) {
	query := `SELECT ` + selectColumns + ` FROM identities WHERE aadhaar_hash = $1 OR pan_hash = $1 LIMIT 1`
	record, err := scanIdentity(s.db.QueryRowContext(ctx, query, fingerprint))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find identity by document: %w", err)
	}
	return record, nil
}

// CompareAndSwap inserts a first record (expectedNonce == 0) or updates an
// existing one only while its stored nonce still equals expectedNonce. A
// lost race surfaces as sentinel.ErrConflict, a document bound to another
// wallet as sentinel.ErrDuplicate.
func (s *PostgresStore) CompareAndSwap(ctx context.Context, record *models.IdentityRecord, expectedNonce uint64) error {
	signature := sql.NullString{String: record.Signature, Valid: record.Signature != ""}

	// ON CONFLICT only fires on the wallet address; a document collision
	// with another row still raises 23505 and is mapped below.
	insert := `
		INSERT INTO identities (id, wallet_address, aadhaar_hash, pan_hash, is_verified, signature, nonce, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (wallet_address) DO NOTHING
	`
	update := `
		UPDATE identities SET
			aadhaar_hash = $2,
			pan_hash = $3,
			is_verified = $4,
			signature = $5,
			nonce = $6,
			updated_at = $7
		WHERE wallet_address = $1 AND nonce = $8
	`

	if expectedNonce == 0 {
		res, err := s.db.ExecContext(ctx, insert,
			record.ID,
			record.WalletAddress.String(),
			record.Documents.AadhaarHash,
			record.Documents.PANHash,
			record.IsVerified,
			signature,
			record.Nonce,
			record.CreatedAt,
			record.UpdatedAt,
		)
		if err != nil {
			return mapWriteError("insert identity", err)
		}
		if rows, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("insert identity rows affected: %w", err)
		} else if rows == 1 {
			return nil
		}
		// a row already exists; fall through to the guarded update
	}

	res, err := s.db.ExecContext(ctx, update,
		record.WalletAddress.String(),
		record.Documents.AadhaarHash,
		record.Documents.PANHash,
		record.IsVerified,
		signature,
		record.Nonce,
		record.UpdatedAt,
		expectedNonce,
	)
	if err != nil {
		return mapWriteError("update identity", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update identity rows affected: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrConflict
	}
	return nil
}

// Revoke withdraws the credential of addr while its nonce still equals
// expectedNonce. The nonce itself is left untouched.
func (s *PostgresStore) Revoke(ctx context.Context, addr models.WalletAddress, expectedNonce uint64, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE identities SET is_verified = FALSE, signature = NULL, updated_at = $3
		WHERE wallet_address = $1 AND nonce = $2
	`, addr.String(), expectedNonce, at)
	if err != nil {
		return fmt.Errorf("revoke identity: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("revoke identity rows affected: %w", err)
	}
	if rows == 1 {
		return nil
	}
	if _, err := s.FindByAddress(ctx, addr); err != nil {
		return err
	}
	return sentinel.ErrConflict
}

// Count returns the number of stored identities.
func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM identities`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count identities: %w", err)
	}
	return n, nil
}

func mapWriteError(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		switch pqErr.Constraint {
		case constraintAadhaarHash, constraintPANHash:
			return fmt.Errorf("%s: %w", op, sentinel.ErrDuplicate)
		case constraintWalletAddress:
			return fmt.Errorf("%s: %w", op, sentinel.ErrConflict)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIdentity(row rowScanner) (*models.IdentityRecord, error) {
	var (
		record    models.IdentityRecord
		address   string
		signature sql.NullString
		nonce     uint64
	)
	err := row.Scan(
		&record.ID,
		&address,
		&record.Documents.AadhaarHash,
		&record.Documents.PANHash,
		&record.IsVerified,
		&signature,
		&nonce,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	record.WalletAddress = models.WalletAddress(address)
	record.Signature = signature.String
	record.Nonce = nonce
	return &record, nil
}
