package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/recordvault/backend/internal/audit"
	"github.com/recordvault/backend/internal/config"
	"github.com/recordvault/backend/internal/events"
	"github.com/recordvault/backend/internal/models"
)

// PaymentService turns verified gateway confirmations into purchase credits.
// The intent id is the idempotency key, so redelivery credits nothing.
type PaymentService struct {
	db         *sql.DB
	authority  *BalanceAuthority
	publisher  events.Publisher
	audit      *audit.Logger
	pendingTTL time.Duration
	tokenPrice int64
}

func NewPaymentService(db *sql.DB, authority *BalanceAuthority, cfg config.PaymentsConfig, publisher events.Publisher, auditLogger *audit.Logger) *PaymentService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if auditLogger == nil {
		auditLogger = audit.NewLogger(nil)
	}
	return &PaymentService{
		db:         db,
		authority:  authority,
		publisher:  publisher,
		audit:      auditLogger,
		pendingTTL: cfg.PendingTTL,
		tokenPrice: cfg.TokenPrice,
	}
}

// CreateIntent records a pending intent when checkout starts. The amount due
// is always priced here from TokenQuantity; any caller-supplied Amount is
// overwritten.
func (s *PaymentService) CreateIntent(ctx context.Context, intent *models.PaymentIntent) error {
	if strings.Contains(intent.ID, ":") {
		return ErrInvalidIntentID
	}
	if intent.TokenQuantity <= 0 || s.tokenPrice <= 0 || intent.TokenQuantity > math.MaxInt64/s.tokenPrice {
		return ErrInvalidAmount
	}
	intent.Amount = intent.TokenQuantity * s.tokenPrice
	intent.Status = models.PaymentPending

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO payment_intents (id, account_id, amount, token_quantity, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		intent.ID, intent.AccountID, intent.Amount, intent.TokenQuantity, intent.Status,
	).Scan(&intent.CreatedAt)
	switch {
	case isUniqueViolation(err):
		return ErrPaymentIntentExists
	case isForeignKeyViolation(err):
		return ErrAccountNotFound
	case err != nil:
		return fmt.Errorf("create payment intent: %w", err)
	}

	log.WithFields(log.Fields{
		"payment_intent_id": intent.ID,
		"account_id":        intent.AccountID,
		"tokens":            intent.TokenQuantity,
	}).Info("[PAYMENT] Intent created")
	return nil
}

func (s *PaymentService) GetIntent(ctx context.Context, id string) (*models.PaymentIntent, error) {
	intent, err := scanIntent(s.db.QueryRowContext(ctx, `
		SELECT id, account_id, amount, token_quantity, status, created_at, completed_at
		FROM payment_intents
		WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUnknownPaymentIntent
	}
	return intent, err
}

// OnPaymentConfirmed flips a pending or failed intent to completed and credits
// its tokens in the same transaction. A completed intent is a no-op. A failed
// intent was expired or reported failed before the gateway settled it; the
// verified payment still credits.
func (s *PaymentService) OnPaymentConfirmed(ctx context.Context, paymentIntentID, accountID string, tokenQuantity, amountPaid int64) (int64, error) {
	logger := log.WithFields(log.Fields{
		"payment_intent_id": paymentIntentID,
		"account_id":        accountID,
	})

	var (
		credit     *Mutation
		newBalance int64
		stored     *models.PaymentIntent
	)
	err := s.authority.RunInTx(ctx, func(tx *sql.Tx) error {
		credit = nil

		intent, err := scanIntent(tx.QueryRowContext(ctx, `
			SELECT id, account_id, amount, token_quantity, status, created_at, completed_at
			FROM payment_intents
			WHERE id = $1
			FOR UPDATE`, paymentIntentID))
		if errors.Is(err, sql.ErrNoRows) {
			return ErrUnknownPaymentIntent
		}
		if err != nil {
			return fmt.Errorf("lock payment intent: %w", err)
		}
		stored = intent

		if intent.AccountID != accountID || intent.TokenQuantity != tokenQuantity || intent.Amount != amountPaid {
			return ErrAmountMismatch
		}

		if intent.Status == models.PaymentCompleted {
			account, err := s.authority.LockAccount(ctx, tx, intent.AccountID)
			if err != nil {
				return err
			}
			newBalance = account.Balance
			return nil
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE payment_intents
			SET status = $1, completed_at = $2
			WHERE id = $3`,
			models.PaymentCompleted, time.Now(), intent.ID); err != nil {
			return fmt.Errorf("complete payment intent: %w", err)
		}

		credit, err = s.authority.CreditTx(ctx, tx, MutationRequest{
			AccountID:      intent.AccountID,
			Amount:         intent.TokenQuantity,
			Kind:           models.KindPurchase,
			IdempotencyKey: intent.ID,
			Reference:      intent.ID,
			Description:    fmt.Sprintf("Purchased %d tokens", intent.TokenQuantity),
		})
		if err != nil {
			return err
		}
		newBalance = credit.BalanceAfter
		return nil
	})
	if err != nil {
		s.reportRejection(paymentIntentID, accountID, tokenQuantity, amountPaid, stored, err)
		return 0, err
	}

	if credit == nil || !credit.Applied {
		logger.Info("[PAYMENT] Confirmation already applied")
		return newBalance, nil
	}

	if stored.Status == models.PaymentFailed {
		s.audit.LogLateConfirmation(paymentIntentID, accountID, tokenQuantity, stored.Status)
	}
	s.authority.AfterCommit(credit)
	events.Emit(s.publisher, events.SubjectPaymentCompleted, map[string]any{
		"paymentIntentId": paymentIntentID,
		"accountId":       accountID,
		"tokenQuantity":   tokenQuantity,
		"newBalance":      newBalance,
	})
	logger.WithField("balance", newBalance).Info("[PAYMENT] Tokens credited")
	return newBalance, nil
}

// OnPaymentFailed marks a pending intent failed. Completed intents are left alone.
func (s *PaymentService) OnPaymentFailed(ctx context.Context, paymentIntentID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE payment_intents
		SET status = $1
		WHERE id = $2 AND status = $3`,
		models.PaymentFailed, paymentIntentID, models.PaymentPending)
	if err != nil {
		return fmt.Errorf("fail payment intent: %w", err)
	}
	if n, _ := result.RowsAffected(); n > 0 {
		log.WithField("payment_intent_id", paymentIntentID).Info("[PAYMENT] Intent marked failed")
		return nil
	}

	_, err = s.GetIntent(ctx, paymentIntentID)
	return err
}

// ExpireStale fails pending intents older than the configured TTL.
func (s *PaymentService) ExpireStale(ctx context.Context) (int64, error) {
	if s.pendingTTL <= 0 {
		return 0, nil
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE payment_intents
		SET status = $1
		WHERE status = $2 AND created_at < $3`,
		models.PaymentFailed, models.PaymentPending, time.Now().Add(-s.pendingTTL))
	if err != nil {
		return 0, fmt.Errorf("expire payment intents: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.WithField("count", n).Info("[PAYMENT] Expired stale intents")
	}
	return n, nil
}

func (s *PaymentService) reportRejection(paymentIntentID, accountID string, tokenQuantity, amountPaid int64, stored *models.PaymentIntent, err error) {
	switch {
	case errors.Is(err, ErrUnknownPaymentIntent):
		s.audit.LogIntegrityViolation(paymentIntentID, accountID, "unknown payment intent", map[string]any{
			"token_quantity": tokenQuantity,
			"amount_paid":    amountPaid,
		})
	case errors.Is(err, ErrAmountMismatch):
		details := map[string]any{
			"token_quantity": tokenQuantity,
			"amount_paid":    amountPaid,
		}
		if stored != nil {
			details["expected_account_id"] = stored.AccountID
			details["expected_token_quantity"] = stored.TokenQuantity
			details["expected_amount"] = stored.Amount
		}
		s.audit.LogIntegrityViolation(paymentIntentID, accountID, "confirmation does not match intent", details)
	default:
		s.audit.LogError(paymentIntentID, accountID, err)
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIntent(row rowScanner) (*models.PaymentIntent, error) {
	var intent models.PaymentIntent
	err := row.Scan(&intent.ID, &intent.AccountID, &intent.Amount, &intent.TokenQuantity,
		&intent.Status, &intent.CreatedAt, &intent.CompletedAt)
	if err != nil {
		return nil, err
	}
	return &intent, nil
}
