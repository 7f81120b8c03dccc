package models

import "time"

// Entitlement records that an account has paid for a protected record.
type Entitlement struct {
	AccountID     string    `json:"account_id" db:"account_id"`
	RecordID      string    `json:"record_id" db:"record_id"`
	LedgerEntryID *string   `json:"ledger_entry_id,omitempty" db:"ledger_entry_id"`
	GrantedAt     time.Time `json:"granted_at" db:"granted_at"`
}

// Unlock workflow states
const (
	UnlockChecking = "checking"
	UnlockCharging = "charging"
	UnlockGranting = "granting"
	UnlockUnlocked = "unlocked"
	UnlockFailed   = "failed"
)

type UnlockResult struct {
	Entitled     bool           `json:"entitled"`
	AlreadyOwned bool           `json:"alreadyOwned"`
	NewBalance   int64          `json:"newBalance"`
	State        string         `json:"state"`
	Fields       map[string]any `json:"fields,omitempty"`
}
