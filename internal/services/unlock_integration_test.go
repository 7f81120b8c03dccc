package services

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/recordvault/backend/internal/audit"
	"github.com/recordvault/backend/internal/config"
	"github.com/recordvault/backend/internal/database"
	"github.com/recordvault/backend/internal/models"
)

// These tests need a real Postgres to exercise row locking. Set
// TEST_DATABASE_URL to run them.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, database.RunMigrations(ctx, db, "up"))
	return db
}

func newPostgresUnlocks(t *testing.T, db *sql.DB) (*UnlockService, *BalanceAuthority) {
	t.Helper()
	pub := &MockPublisher{}
	pub.On("Publish", mock.Anything, mock.Anything).Return(nil).Maybe()

	authority := NewBalanceAuthority(db, NewLedgerStore(db, 50), config.LedgerConfig{
		MaxTxRetries: 5,
		RetryBackoff: 10 * time.Millisecond,
	}, pub, audit.NewLogger(nil))
	entitlements := NewEntitlementStore(db, nil, time.Hour, pub)

	cat := &MockCatalog{}
	cat.On("ProtectedFields", mock.Anything, mock.Anything).Return(map[string]any{"phone": "+15550100"}, nil).Maybe()

	return NewUnlockService(authority, entitlements, cat, nil, config.RateLimitConfig{}), authority
}

func fundedAccount(t *testing.T, authority *BalanceAuthority, tokens int64) string {
	t.Helper()
	ctx := context.Background()
	accountID := uuid.NewString()
	_, err := authority.OpenAccount(ctx, accountID)
	require.NoError(t, err)
	_, err = authority.Credit(ctx, accountID, tokens, models.KindPurchase, "seed-"+accountID, "seed")
	require.NoError(t, err)
	return accountID
}

func TestUnlockService_ConcurrentUnlocksPostgres(t *testing.T) {
	db := openTestDB(t)
	svc, authority := newPostgresUnlocks(t, db)
	ctx := context.Background()

	t.Run("two unlocks of one record charge once", func(t *testing.T) {
		accountID := fundedAccount(t, authority, 5)

		var wg sync.WaitGroup
		results := make([]*models.UnlockResult, 2)
		errs := make([]error, 2)
		for i := range results {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i], errs[i] = svc.UnlockWithCost(ctx, accountID, "rec-1", 5)
			}(i)
		}
		wg.Wait()

		owned := 0
		for i := range results {
			require.NoError(t, errs[i])
			assert.True(t, results[i].Entitled)
			assert.Equal(t, int64(0), results[i].NewBalance)
			if results[i].AlreadyOwned {
				owned++
			}
		}
		assert.Equal(t, 1, owned)

		balance, err := authority.GetBalance(ctx, accountID)
		require.NoError(t, err)
		assert.Equal(t, int64(0), balance)

		var charges int
		require.NoError(t, db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM ledger_entries WHERE account_id = $1 AND kind = $2`,
			accountID, models.KindUnlock).Scan(&charges))
		assert.Equal(t, 1, charges)
	})

	t.Run("concurrent unlocks never overdraw", func(t *testing.T) {
		accountID := fundedAccount(t, authority, 5)

		const workers = 10
		var wg sync.WaitGroup
		errs := make([]error, workers)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = svc.UnlockWithCost(ctx, accountID, fmt.Sprintf("rec-%d", i), 1)
			}(i)
		}
		wg.Wait()

		ok, short := 0, 0
		for _, err := range errs {
			if err == nil {
				ok++
				continue
			}
			assert.ErrorIs(t, err, ErrInsufficientBalance)
			short++
		}
		assert.Equal(t, 5, ok)
		assert.Equal(t, 5, short)

		balance, err := authority.GetBalance(ctx, accountID)
		require.NoError(t, err)
		assert.Equal(t, int64(0), balance)
	})
}
