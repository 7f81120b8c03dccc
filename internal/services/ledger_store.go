package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/recordvault/backend/internal/models"
)

const maxHistoryLimit = 200

// LedgerStore owns the append-only ledger_entries and audit_records tables.
// Rows are only ever inserted.
type LedgerStore struct {
	db           *sql.DB
	defaultLimit int
}

func NewLedgerStore(db *sql.DB, defaultLimit int) *LedgerStore {
	if defaultLimit <= 0 {
		defaultLimit = 50
	}
	return &LedgerStore{db: db, defaultLimit: defaultLimit}
}

func (s *LedgerStore) insertEntryTx(ctx context.Context, tx *sql.Tx, e *models.LedgerEntry) error {
	err := tx.QueryRowContext(ctx, `
		INSERT INTO ledger_entries (id, account_id, delta, kind, description, reference, idempotency_key, balance_after)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING seq, created_at`,
		e.ID, e.AccountID, e.Delta, e.Kind, e.Description, e.Reference, e.IdempotencyKey, e.BalanceAfter,
	).Scan(&e.Seq, &e.CreatedAt)
	if isUniqueViolation(err) {
		return ErrIdempotencyKeyConflict
	}
	if err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

func (s *LedgerStore) insertAuditTx(ctx context.Context, tx *sql.Tx, a *models.AuditRecord) error {
	err := tx.QueryRowContext(ctx, `
		INSERT INTO audit_records (id, account_id, ledger_entry_id, kind, tokens, balance_before, balance_after, reference)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING seq, created_at`,
		a.ID, a.AccountID, a.LedgerEntryID, a.Kind, a.Tokens, a.BalanceBefore, a.BalanceAfter, a.Reference,
	).Scan(&a.Seq, &a.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

// idempotencyKeyOwnerTx returns the account whose entry of this kind already
// carries key. Keys are unique per kind.
func (s *LedgerStore) idempotencyKeyOwnerTx(ctx context.Context, tx *sql.Tx, kind, key string) (string, bool, error) {
	var accountID string
	err := tx.QueryRowContext(ctx,
		`SELECT account_id FROM ledger_entries WHERE kind = $1 AND idempotency_key = $2`, kind, key,
	).Scan(&accountID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("check idempotency key: %w", err)
	}
	return accountID, true, nil
}

// History returns an account's entries newest first.
func (s *LedgerStore) History(ctx context.Context, accountID string, page models.Page) ([]models.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, seq, account_id, delta, kind, description, reference, balance_after, created_at
		FROM ledger_entries
		WHERE account_id = $1 AND ($2::bigint = 0 OR seq < $2::bigint)
		ORDER BY seq DESC
		LIMIT $3`,
		accountID, page.BeforeSeq, s.limit(page))
	if err != nil {
		return nil, fmt.Errorf("query ledger history: %w", err)
	}
	defer rows.Close()

	entries := make([]models.LedgerEntry, 0)
	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(&e.ID, &e.Seq, &e.AccountID, &e.Delta, &e.Kind, &e.Description,
			&e.Reference, &e.BalanceAfter, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *LedgerStore) AuditHistory(ctx context.Context, accountID string, page models.Page) ([]models.AuditRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, seq, account_id, ledger_entry_id, kind, tokens, balance_before, balance_after, reference, created_at
		FROM audit_records
		WHERE account_id = $1 AND ($2::bigint = 0 OR seq < $2::bigint)
		ORDER BY seq DESC
		LIMIT $3`,
		accountID, page.BeforeSeq, s.limit(page))
	if err != nil {
		return nil, fmt.Errorf("query audit history: %w", err)
	}
	defer rows.Close()

	records := make([]models.AuditRecord, 0)
	for rows.Next() {
		var a models.AuditRecord
		if err := rows.Scan(&a.ID, &a.Seq, &a.AccountID, &a.LedgerEntryID, &a.Kind, &a.Tokens,
			&a.BalanceBefore, &a.BalanceAfter, &a.Reference, &a.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, a)
	}
	return records, rows.Err()
}

func (s *LedgerStore) limit(page models.Page) int {
	switch {
	case page.Limit <= 0:
		return s.defaultLimit
	case page.Limit > maxHistoryLimit:
		return maxHistoryLimit
	}
	return page.Limit
}
