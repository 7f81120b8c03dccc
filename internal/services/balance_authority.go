package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/recordvault/backend/internal/audit"
	"github.com/recordvault/backend/internal/config"
	"github.com/recordvault/backend/internal/events"
	"github.com/recordvault/backend/internal/models"
)

// MutationRequest describes one balance change. Amount is always positive;
// the direction comes from Credit or Debit.
type MutationRequest struct {
	AccountID      string
	Amount         int64
	Kind           string
	IdempotencyKey string
	Reference      string
	Description    string
}

// Mutation is the outcome of a balance change inside a transaction.
// Applied is false when the idempotency key had already been used.
type Mutation struct {
	Entry         *models.LedgerEntry
	Audit         *models.AuditRecord
	Applied       bool
	BalanceBefore int64
	BalanceAfter  int64
}

// BalanceAuthority is the only writer of accounts.balance. Each mutation
// locks the account row and writes the ledger entry, the audit record and
// the new balance in one transaction.
type BalanceAuthority struct {
	db        *sql.DB
	ledger    *LedgerStore
	tx        txRunner
	publisher events.Publisher
	audit     *audit.Logger
}

func NewBalanceAuthority(db *sql.DB, ledger *LedgerStore, cfg config.LedgerConfig, publisher events.Publisher, auditLogger *audit.Logger) *BalanceAuthority {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if auditLogger == nil {
		auditLogger = audit.NewLogger(nil)
	}
	return &BalanceAuthority{
		db:        db,
		ledger:    ledger,
		tx:        txRunner{db: db, maxRetries: cfg.MaxTxRetries, backoff: cfg.RetryBackoff},
		publisher: publisher,
		audit:     auditLogger,
	}
}

var creditKinds = map[string]bool{
	models.KindPurchase:      true,
	models.KindReferralBonus: true,
	models.KindRefund:        true,
}

// Credit adds tokens. A repeated idempotencyKey is a no-op that returns the
// current balance.
func (b *BalanceAuthority) Credit(ctx context.Context, accountID string, amount int64, kind, idempotencyKey, description string) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	req := MutationRequest{
		AccountID:      accountID,
		Amount:         amount,
		Kind:           kind,
		IdempotencyKey: idempotencyKey,
		Description:    description,
	}

	var m *Mutation
	err := b.RunInTx(ctx, func(tx *sql.Tx) error {
		var err error
		m, err = b.CreditTx(ctx, tx, req)
		return err
	})
	if err != nil {
		return 0, err
	}

	b.AfterCommit(m)
	return m.BalanceAfter, nil
}

// Debit removes tokens. The balance never goes below zero.
func (b *BalanceAuthority) Debit(ctx context.Context, accountID string, amount int64, kind, reference, description string) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	req := MutationRequest{
		AccountID:   accountID,
		Amount:      amount,
		Kind:        kind,
		Reference:   reference,
		Description: description,
	}

	var m *Mutation
	err := b.RunInTx(ctx, func(tx *sql.Tx) error {
		var err error
		m, err = b.DebitTx(ctx, tx, req)
		return err
	})
	if err != nil {
		return 0, err
	}

	b.AfterCommit(m)
	return m.BalanceAfter, nil
}

// Refund returns tokens to an account as a refund entry.
func (b *BalanceAuthority) Refund(ctx context.Context, accountID string, amount int64, idempotencyKey, description string) (int64, error) {
	if description == "" {
		description = "Token refund"
	}
	return b.Credit(ctx, accountID, amount, models.KindRefund, idempotencyKey, description)
}

func (b *BalanceAuthority) CreditTx(ctx context.Context, tx *sql.Tx, req MutationRequest) (*Mutation, error) {
	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if !creditKinds[req.Kind] {
		return nil, fmt.Errorf("%w: %q cannot credit", ErrInvalidKind, req.Kind)
	}

	account, err := b.LockAccount(ctx, tx, req.AccountID)
	if err != nil {
		return nil, err
	}
	if m, done, err := b.replayed(ctx, tx, account, req); done || err != nil {
		return m, err
	}
	return b.apply(ctx, tx, account, req.Amount, req)
}

func (b *BalanceAuthority) DebitTx(ctx context.Context, tx *sql.Tx, req MutationRequest) (*Mutation, error) {
	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	account, err := b.LockAccount(ctx, tx, req.AccountID)
	if err != nil {
		return nil, err
	}
	return b.DebitLocked(ctx, tx, account, req)
}

// DebitLocked debits an account whose row the caller already holds with
// LockAccount in the same transaction.
func (b *BalanceAuthority) DebitLocked(ctx context.Context, tx *sql.Tx, account *models.Account, req MutationRequest) (*Mutation, error) {
	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if req.Kind != models.KindUnlock {
		return nil, fmt.Errorf("%w: %q cannot debit", ErrInvalidKind, req.Kind)
	}
	if m, done, err := b.replayed(ctx, tx, account, req); done || err != nil {
		return m, err
	}
	if account.Balance < req.Amount {
		return nil, ErrInsufficientBalance
	}
	return b.apply(ctx, tx, account, -req.Amount, req)
}

// LockAccount takes the row lock that serializes every mutation of one account.
func (b *BalanceAuthority) LockAccount(ctx context.Context, tx *sql.Tx, accountID string) (*models.Account, error) {
	var account models.Account
	err := tx.QueryRowContext(ctx, `
		SELECT id, balance, version, created_at, updated_at
		FROM accounts
		WHERE id = $1
		FOR UPDATE`, accountID,
	).Scan(&account.ID, &account.Balance, &account.Version, &account.CreatedAt, &account.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock account %s: %w", accountID, err)
	}
	return &account, nil
}

// replayed reports whether req's key was already applied to this account.
// A key of the same kind held by another account is a conflict, never a skip.
func (b *BalanceAuthority) replayed(ctx context.Context, tx *sql.Tx, account *models.Account, req MutationRequest) (*Mutation, bool, error) {
	if req.IdempotencyKey == "" {
		return nil, false, nil
	}
	owner, used, err := b.ledger.idempotencyKeyOwnerTx(ctx, tx, req.Kind, req.IdempotencyKey)
	if err != nil || !used {
		return nil, false, err
	}

	logger := log.WithFields(log.Fields{
		"account_id":      account.ID,
		"kind":            req.Kind,
		"idempotency_key": req.IdempotencyKey,
	})
	if owner != account.ID {
		logger.WithField("owner_account_id", owner).Warn("[LEDGER] Idempotency key belongs to another account")
		return nil, false, ErrIdempotencyKeyConflict
	}
	logger.Info("[LEDGER] Idempotency key already applied, skipping")

	return &Mutation{BalanceBefore: account.Balance, BalanceAfter: account.Balance}, true, nil
}

func (b *BalanceAuthority) apply(ctx context.Context, tx *sql.Tx, account *models.Account, delta int64, req MutationRequest) (*Mutation, error) {
	before := account.Balance
	after := before + delta

	entry := &models.LedgerEntry{
		ID:             uuid.NewString(),
		AccountID:      account.ID,
		Delta:          delta,
		Kind:           req.Kind,
		Description:    req.Description,
		Reference:      optional(req.Reference),
		IdempotencyKey: optional(req.IdempotencyKey),
		BalanceAfter:   after,
	}
	if err := b.ledger.insertEntryTx(ctx, tx, entry); err != nil {
		return nil, err
	}

	record := &models.AuditRecord{
		ID:            uuid.NewString(),
		AccountID:     account.ID,
		LedgerEntryID: entry.ID,
		Kind:          req.Kind,
		Tokens:        req.Amount,
		BalanceBefore: before,
		BalanceAfter:  after,
		Reference:     entry.Reference,
	}
	if err := b.ledger.insertAuditTx(ctx, tx, record); err != nil {
		return nil, err
	}

	if err := b.updateBalance(ctx, tx, account.ID, after, account.Version); err != nil {
		return nil, err
	}
	account.Balance = after
	account.Version++

	return &Mutation{
		Entry:         entry,
		Audit:         record,
		Applied:       true,
		BalanceBefore: before,
		BalanceAfter:  after,
	}, nil
}

func (b *BalanceAuthority) updateBalance(ctx context.Context, tx *sql.Tx, accountID string, newBalance int64, version int) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE accounts
		SET balance = $1, version = version + 1, updated_at = $2
		WHERE id = $3 AND version = $4`,
		newBalance, time.Now(), accountID, version)
	if err != nil {
		return fmt.Errorf("update balance: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w for account %s", errVersionConflict, accountID)
	}
	return nil
}

// RunInTx runs fn in a retried transaction. fn must not have side effects
// outside tx since it may run more than once.
func (b *BalanceAuthority) RunInTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return b.tx.run(ctx, fn)
}

// AfterCommit emits the audit line and event for a committed mutation.
func (b *BalanceAuthority) AfterCommit(m *Mutation) {
	if m == nil || !m.Applied {
		return
	}
	e := m.Entry
	reference := ""
	if e.Reference != nil {
		reference = *e.Reference
	} else if e.IdempotencyKey != nil {
		reference = *e.IdempotencyKey
	}

	b.audit.LogMutation(reference, e.AccountID, e.Kind, e.Delta, e.BalanceAfter)
	events.Emit(b.publisher, events.SubjectLedgerEntryCreated, e)

	log.WithFields(log.Fields{
		"account_id":    e.AccountID,
		"kind":          e.Kind,
		"delta":         e.Delta,
		"balance_after": e.BalanceAfter,
	}).Info("[LEDGER] Balance updated")
}

func (b *BalanceAuthority) GetBalance(ctx context.Context, accountID string) (int64, error) {
	var balance int64
	err := b.db.QueryRowContext(ctx, `SELECT balance FROM accounts WHERE id = $1`, accountID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrAccountNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return balance, nil
}

// OpenAccount creates a zero-balance account. Opening an existing account
// returns it unchanged.
func (b *BalanceAuthority) OpenAccount(ctx context.Context, accountID string) (*models.Account, error) {
	if accountID == "" {
		return nil, ErrAccountNotFound
	}
	if _, err := b.db.ExecContext(ctx,
		`INSERT INTO accounts (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, accountID); err != nil {
		return nil, fmt.Errorf("open account: %w", err)
	}

	var account models.Account
	err := b.db.QueryRowContext(ctx, `
		SELECT id, balance, version, created_at, updated_at
		FROM accounts
		WHERE id = $1`, accountID,
	).Scan(&account.ID, &account.Balance, &account.Version, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}
	return &account, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
