package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	log "github.com/sirupsen/logrus"

	"github.com/recordvault/backend/internal/events"
	"github.com/recordvault/backend/internal/models"
)

// EntitlementStore keeps the durable set of (account, record) grants.
// Redis holds positive answers only; a grant is never revoked so a cached
// "yes" cannot go stale.
type EntitlementStore struct {
	db        *sql.DB
	redis     *redis.Client
	ttl       time.Duration
	publisher events.Publisher
}

func NewEntitlementStore(db *sql.DB, rdb *redis.Client, ttl time.Duration, publisher events.Publisher) *EntitlementStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &EntitlementStore{db: db, redis: rdb, ttl: ttl, publisher: publisher}
}

func entitlementKey(accountID, recordID string) string {
	return fmt.Sprintf("entitlement:%s:%s", accountID, recordID)
}

// Grant records an entitlement outside any charge. Granting twice is a no-op.
func (s *EntitlementStore) Grant(ctx context.Context, accountID, recordID string) error {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO entitlements (account_id, record_id, ledger_entry_id)
		VALUES ($1, $2, NULL)
		ON CONFLICT (account_id, record_id) DO NOTHING`,
		accountID, recordID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrAccountNotFound
		}
		if isUniqueViolation(err) {
			return nil
		}
		return fmt.Errorf("grant entitlement: %w", err)
	}

	if n, _ := result.RowsAffected(); n > 0 {
		s.AfterGrant(ctx, &models.Entitlement{AccountID: accountID, RecordID: recordID, GrantedAt: time.Now()})
	} else {
		s.cache(ctx, accountID, recordID)
	}
	return nil
}

// GrantTx inserts the entitlement inside the caller's transaction and
// reports whether this call created it.
func (s *EntitlementStore) GrantTx(ctx context.Context, tx *sql.Tx, accountID, recordID string, ledgerEntryID *string) (bool, error) {
	result, err := tx.ExecContext(ctx, `
		INSERT INTO entitlements (account_id, record_id, ledger_entry_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (account_id, record_id) DO NOTHING`,
		accountID, recordID, ledgerEntryID)
	if err != nil {
		return false, fmt.Errorf("grant entitlement: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ExistsTx is the authoritative check used while the account row is locked.
func (s *EntitlementStore) ExistsTx(ctx context.Context, tx *sql.Tx, accountID, recordID string) (bool, error) {
	var exists bool
	err := tx.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM entitlements WHERE account_id = $1 AND record_id = $2)`,
		accountID, recordID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check entitlement: %w", err)
	}
	return exists, nil
}

// Check answers display-time questions. It may briefly lag a grant that is
// still committing, never the other way round.
func (s *EntitlementStore) Check(ctx context.Context, accountID, recordID string) (bool, error) {
	if s.redis != nil {
		_, err := s.redis.Get(ctx, entitlementKey(accountID, recordID)).Result()
		switch {
		case err == nil:
			return true, nil
		case !errors.Is(err, redis.Nil):
			log.WithError(err).WithField("account_id", accountID).Warn("[ENTITLEMENT] Cache read failed, using database")
		}
	}

	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM entitlements WHERE account_id = $1 AND record_id = $2)`,
		accountID, recordID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check entitlement: %w", err)
	}

	if exists {
		s.cache(ctx, accountID, recordID)
	}
	return exists, nil
}

// ListForAccount returns the most recent grants first.
func (s *EntitlementStore) ListForAccount(ctx context.Context, accountID string, limit int) ([]models.Entitlement, error) {
	if limit <= 0 || limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT account_id, record_id, ledger_entry_id, granted_at
		FROM entitlements
		WHERE account_id = $1
		ORDER BY granted_at DESC, record_id
		LIMIT $2`, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("list entitlements: %w", err)
	}
	defer rows.Close()

	out := make([]models.Entitlement, 0)
	for rows.Next() {
		var e models.Entitlement
		if err := rows.Scan(&e.AccountID, &e.RecordID, &e.LedgerEntryID, &e.GrantedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// AfterGrant warms the cache and announces a committed grant.
func (s *EntitlementStore) AfterGrant(ctx context.Context, e *models.Entitlement) {
	s.cache(ctx, e.AccountID, e.RecordID)
	events.Emit(s.publisher, events.SubjectEntitlementGranted, e)
}

func (s *EntitlementStore) cache(ctx context.Context, accountID, recordID string) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Set(ctx, entitlementKey(accountID, recordID), "1", s.ttl).Err(); err != nil {
		log.WithError(err).WithField("account_id", accountID).Warn("[ENTITLEMENT] Failed to cache entitlement")
	}
}
