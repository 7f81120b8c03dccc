package services

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/recordvault/backend/internal/audit"
	"github.com/recordvault/backend/internal/config"
)

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(subject string, payload any) error {
	args := m.Called(subject, payload)
	return args.Error(0)
}

type MockCatalog struct {
	mock.Mock
}

func (m *MockCatalog) TokenCost(ctx context.Context, recordID string) (int64, error) {
	args := m.Called(ctx, recordID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockCatalog) ProtectedFields(ctx context.Context, recordID string) (map[string]any, error) {
	args := m.Called(ctx, recordID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]any), args.Error(1)
}

var testLedgerConfig = config.LedgerConfig{
	MaxTxRetries: 3,
	RetryBackoff: time.Millisecond,
	HistoryLimit: 50,
}

func newTestAuthority(t *testing.T) (*BalanceAuthority, *sql.DB, sqlmock.Sqlmock, *MockPublisher) {
	t.Helper()
	db, sqlMock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	pub := &MockPublisher{}
	pub.On("Publish", mock.Anything, mock.Anything).Return(nil).Maybe()

	authority := NewBalanceAuthority(db, NewLedgerStore(db, 50), testLedgerConfig, pub, audit.NewLogger(nil))
	return authority, db, sqlMock, pub
}

var accountColumns = []string{"id", "balance", "version", "created_at", "updated_at"}

func expectLockAccount(m sqlmock.Sqlmock, accountID string, balance int64, version int) {
	m.ExpectQuery("SELECT id, balance, version, created_at, updated_at FROM accounts WHERE id = \\$1 FOR UPDATE").
		WithArgs(accountID).
		WillReturnRows(sqlmock.NewRows(accountColumns).
			AddRow(accountID, balance, version, time.Now(), time.Now()))
}

// expectKeyCheck expects the idempotency lookup for kind and key. An empty
// owner means the key is unused.
func expectKeyCheck(m sqlmock.Sqlmock, kind, key, owner string) {
	rows := sqlmock.NewRows([]string{"account_id"})
	if owner != "" {
		rows.AddRow(owner)
	}
	m.ExpectQuery("SELECT account_id FROM ledger_entries WHERE kind = \\$1 AND idempotency_key = \\$2").
		WithArgs(kind, key).
		WillReturnRows(rows)
}

// expectApply covers the entry insert, the audit insert and the version-checked update.
func expectApply(m sqlmock.Sqlmock, accountID string, delta, balanceAfter int64, version int) {
	m.ExpectQuery("INSERT INTO ledger_entries").
		WithArgs(sqlmock.AnyArg(), accountID, delta, sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), balanceAfter).
		WillReturnRows(sqlmock.NewRows([]string{"seq", "created_at"}).AddRow(1, time.Now()))
	m.ExpectQuery("INSERT INTO audit_records").
		WithArgs(sqlmock.AnyArg(), accountID, sqlmock.AnyArg(), sqlmock.AnyArg(), abs(delta),
			balanceAfter-delta, balanceAfter, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"seq", "created_at"}).AddRow(1, time.Now()))
	m.ExpectExec("UPDATE accounts SET balance = \\$1, version = version \\+ 1, updated_at = \\$2 WHERE id = \\$3 AND version = \\$4").
		WithArgs(balanceAfter, sqlmock.AnyArg(), accountID, version).
		WillReturnResult(sqlmock.NewResult(0, 1))
}

func abs(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
