package models

import (
	"time"
)

// Ledger entry kinds
const (
	KindPurchase      = "purchase"
	KindUnlock        = "unlock"
	KindReferralBonus = "referral_bonus"
	KindRefund        = "refund"
)

type Account struct {
	ID        string    `json:"id" db:"id"`
	Balance   int64     `json:"balance" db:"balance"`
	Version   int       `json:"version" db:"version"` // for optimistic locking
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// LedgerEntry is append-only. The sum of Delta over an account equals its balance.
type LedgerEntry struct {
	ID             string    `json:"id" db:"id"`
	Seq            int64     `json:"seq" db:"seq"`
	AccountID      string    `json:"account_id" db:"account_id"`
	Delta          int64     `json:"delta" db:"delta"`
	Kind           string    `json:"kind" db:"kind"`
	Description    string    `json:"description" db:"description"`
	Reference      *string   `json:"reference,omitempty" db:"reference"`
	IdempotencyKey *string   `json:"-" db:"idempotency_key"`
	BalanceAfter   int64     `json:"balance_after" db:"balance_after"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// AuditRecord mirrors one LedgerEntry with before/after snapshots for support tooling.
type AuditRecord struct {
	ID            string    `json:"id" db:"id"`
	Seq           int64     `json:"seq" db:"seq"`
	AccountID     string    `json:"account_id" db:"account_id"`
	LedgerEntryID string    `json:"ledger_entry_id" db:"ledger_entry_id"`
	Kind          string    `json:"kind" db:"kind"`
	Tokens        int64     `json:"tokens" db:"tokens"`
	BalanceBefore int64     `json:"balance_before" db:"balance_before"`
	BalanceAfter  int64     `json:"balance_after" db:"balance_after"`
	Reference     *string   `json:"reference,omitempty" db:"reference"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// Page is a keyset cursor for history listings, newest first.
// BeforeSeq of 0 starts from the latest entry.
type Page struct {
	Limit     int
	BeforeSeq int64
}
