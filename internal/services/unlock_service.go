package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	log "github.com/sirupsen/logrus"

	"github.com/recordvault/backend/internal/catalog"
	"github.com/recordvault/backend/internal/config"
	"github.com/recordvault/backend/internal/models"
)

// UnlockService spends tokens to grant permanent access to a protected record.
// The charge and the grant commit together or not at all.
type UnlockService struct {
	authority        *BalanceAuthority
	entitlements     *EntitlementStore
	catalog          catalog.Client
	redis            *redis.Client
	unlocksPerMinute int
	now              func() time.Time
}

func NewUnlockService(authority *BalanceAuthority, entitlements *EntitlementStore, catalogClient catalog.Client, rdb *redis.Client, cfg config.RateLimitConfig) *UnlockService {
	return &UnlockService{
		authority:        authority,
		entitlements:     entitlements,
		catalog:          catalogClient,
		redis:            rdb,
		unlocksPerMinute: cfg.UnlocksPerMinute,
		now:              time.Now,
	}
}

// Unlock prices the record through the catalog, then unlocks it.
func (s *UnlockService) Unlock(ctx context.Context, accountID, recordID string) (*models.UnlockResult, error) {
	if err := s.checkRateLimit(ctx, accountID); err != nil {
		return nil, err
	}

	cost, err := s.catalog.TokenCost(ctx, recordID)
	if err != nil {
		return nil, err
	}
	return s.UnlockWithCost(ctx, accountID, recordID, cost)
}

// UnlockWithCost runs Checking, Charging and Granting in one transaction
// under the account row lock. A zero cost grants without a ledger entry.
func (s *UnlockService) UnlockWithCost(ctx context.Context, accountID, recordID string, cost int64) (*models.UnlockResult, error) {
	if cost < 0 {
		return nil, ErrInvalidAmount
	}
	logger := log.WithFields(log.Fields{
		"account_id": accountID,
		"record_id":  recordID,
		"cost":       cost,
	})

	var (
		result  models.UnlockResult
		charge  *Mutation
		granted bool
		stage   string
	)
	err := s.authority.RunInTx(ctx, func(tx *sql.Tx) error {
		charge, granted = nil, false

		stage = models.UnlockChecking
		account, err := s.authority.LockAccount(ctx, tx, accountID)
		if err != nil {
			return err
		}
		owned, err := s.entitlements.ExistsTx(ctx, tx, accountID, recordID)
		if err != nil {
			return err
		}
		if owned {
			result = models.UnlockResult{
				Entitled:     true,
				AlreadyOwned: true,
				NewBalance:   account.Balance,
				State:        models.UnlockUnlocked,
			}
			return nil
		}

		var ledgerEntryID *string
		if cost > 0 {
			stage = models.UnlockCharging
			charge, err = s.authority.DebitLocked(ctx, tx, account, MutationRequest{
				AccountID:      accountID,
				Amount:         cost,
				Kind:           models.KindUnlock,
				IdempotencyKey: unlockKey(accountID, recordID),
				Reference:      recordID,
				Description:    "Unlock record " + recordID,
			})
			if err != nil {
				return err
			}
			if charge.Applied {
				ledgerEntryID = &charge.Entry.ID
			}
		}

		stage = models.UnlockGranting
		granted, err = s.entitlements.GrantTx(ctx, tx, accountID, recordID, ledgerEntryID)
		if err != nil {
			return err
		}
		if !granted {
			return errConcurrentGrant
		}

		result = models.UnlockResult{
			Entitled:   true,
			NewBalance: account.Balance,
			State:      models.UnlockUnlocked,
		}
		return nil
	})
	if err != nil {
		logger.WithError(err).WithFields(log.Fields{
			"state": models.UnlockFailed,
			"stage": stage,
		}).Warn("[UNLOCK] Unlock failed")
		return nil, err
	}

	s.authority.AfterCommit(charge)
	if granted {
		s.entitlements.AfterGrant(ctx, &models.Entitlement{
			AccountID: accountID,
			RecordID:  recordID,
			GrantedAt: time.Now(),
		})
		logger.WithField("balance", result.NewBalance).Info("[UNLOCK] Record unlocked")
	}

	fields, err := s.catalog.ProtectedFields(ctx, recordID)
	if err != nil {
		logger.WithError(err).Warn("[UNLOCK] Protected fields unavailable, entitlement kept")
	}
	result.Fields = fields
	return &result, nil
}

// CheckEntitlement is the display-time read; it never charges.
func (s *UnlockService) CheckEntitlement(ctx context.Context, accountID, recordID string) (bool, error) {
	return s.entitlements.Check(ctx, accountID, recordID)
}

func unlockKey(accountID, recordID string) string {
	return fmt.Sprintf("unlock:%s:%s", accountID, recordID)
}

// checkRateLimit counts unlock attempts per account in fixed one-minute
// windows. Each window has its own key, so re-arming the expiry on every
// attempt never extends a window. Redis trouble never blocks an unlock.
func (s *UnlockService) checkRateLimit(ctx context.Context, accountID string) error {
	if s.redis == nil || s.unlocksPerMinute <= 0 {
		return nil
	}

	key := rateLimitKey(accountID, s.now())
	var incr *redis.IntCmd
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, 2*time.Minute)
		return nil
	})
	if err != nil {
		log.WithError(err).WithField("account_id", accountID).Warn("[UNLOCK] Rate limit check failed")
		return nil
	}

	if incr.Val() > int64(s.unlocksPerMinute) {
		return ErrRateLimited
	}
	return nil
}

func rateLimitKey(accountID string, now time.Time) string {
	return fmt.Sprintf("ratelimit:unlock:%s:%d", accountID, now.Truncate(time.Minute).Unix())
}
