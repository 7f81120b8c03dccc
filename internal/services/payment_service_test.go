package services

import (
	"bytes"
	"context"
	"math"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/recordvault/backend/internal/audit"
	"github.com/recordvault/backend/internal/config"
	"github.com/recordvault/backend/internal/events"
	"github.com/recordvault/backend/internal/models"
)

var intentColumns = []string{"id", "account_id", "amount", "token_quantity", "status", "created_at", "completed_at"}

var testPaymentsConfig = config.PaymentsConfig{PendingTTL: time.Hour, TokenPrice: 100}

func newTestPayments(t *testing.T) (*PaymentService, sqlmock.Sqlmock, *MockPublisher) {
	t.Helper()
	authority, db, m, pub := newTestAuthority(t)
	svc := NewPaymentService(db, authority, testPaymentsConfig, pub, audit.NewLogger(nil))
	return svc, m, pub
}

func expectLockIntent(m sqlmock.Sqlmock, id, accountID string, amount, tokens int64, status string) {
	m.ExpectQuery("SELECT id, account_id, amount, token_quantity, status, created_at, completed_at FROM payment_intents WHERE id = \\$1 FOR UPDATE").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(intentColumns).
			AddRow(id, accountID, amount, tokens, status, time.Now(), nil))
}

func TestPaymentService_OnPaymentConfirmed(t *testing.T) {
	ctx := context.Background()

	t.Run("duplicate delivery credits once", func(t *testing.T) {
		svc, m, pub := newTestPayments(t)

		m.ExpectBegin()
		expectLockIntent(m, "pi_1", "acct-1", 2500, 25, models.PaymentPending)
		m.ExpectExec("UPDATE payment_intents SET status = \\$1, completed_at = \\$2 WHERE id = \\$3").
			WithArgs(models.PaymentCompleted, sqlmock.AnyArg(), "pi_1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		expectLockAccount(m, "acct-1", 0, 0)
		expectKeyCheck(m, models.KindPurchase, "pi_1", "")
		expectApply(m, "acct-1", 25, 25, 0)
		m.ExpectCommit()

		m.ExpectBegin()
		expectLockIntent(m, "pi_1", "acct-1", 2500, 25, models.PaymentCompleted)
		expectLockAccount(m, "acct-1", 25, 1)
		m.ExpectCommit()

		first, err := svc.OnPaymentConfirmed(ctx, "pi_1", "acct-1", 25, 2500)
		require.NoError(t, err)
		second, err := svc.OnPaymentConfirmed(ctx, "pi_1", "acct-1", 25, 2500)
		require.NoError(t, err)

		assert.Equal(t, int64(25), first)
		assert.Equal(t, int64(25), second)
		assert.NoError(t, m.ExpectationsWereMet())
		pub.AssertNumberOfCalls(t, "Publish", 2)
		pub.AssertCalled(t, "Publish", events.SubjectPaymentCompleted, mock.Anything)
	})

	t.Run("unknown intent", func(t *testing.T) {
		svc, m, pub := newTestPayments(t)

		m.ExpectBegin()
		m.ExpectQuery("FROM payment_intents").
			WithArgs("pi_404").
			WillReturnRows(sqlmock.NewRows(intentColumns))
		m.ExpectRollback()

		_, err := svc.OnPaymentConfirmed(ctx, "pi_404", "acct-1", 25, 2500)
		assert.ErrorIs(t, err, ErrUnknownPaymentIntent)
		assert.NoError(t, m.ExpectationsWereMet())
		pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
	})

	mismatches := []struct {
		name      string
		accountID string
		tokens    int64
		paid      int64
	}{
		{"wrong quantity", "acct-1", 50, 2500},
		{"wrong amount", "acct-1", 25, 100},
		{"wrong account", "acct-2", 25, 2500},
	}
	for _, tc := range mismatches {
		t.Run(tc.name, func(t *testing.T) {
			svc, m, _ := newTestPayments(t)

			m.ExpectBegin()
			expectLockIntent(m, "pi_1", "acct-1", 2500, 25, models.PaymentPending)
			m.ExpectRollback()

			_, err := svc.OnPaymentConfirmed(ctx, "pi_1", tc.accountID, tc.tokens, tc.paid)
			assert.ErrorIs(t, err, ErrAmountMismatch)
			assert.NoError(t, m.ExpectationsWereMet())
		})
	}

	t.Run("mismatch on a completed intent is still reported", func(t *testing.T) {
		svc, m, _ := newTestPayments(t)

		m.ExpectBegin()
		expectLockIntent(m, "pi_1", "acct-1", 2500, 25, models.PaymentCompleted)
		m.ExpectRollback()

		_, err := svc.OnPaymentConfirmed(ctx, "pi_1", "acct-1", 99, 2500)
		assert.ErrorIs(t, err, ErrAmountMismatch)
	})

	t.Run("late confirmation of a failed intent credits", func(t *testing.T) {
		authority, db, m, pub := newTestAuthority(t)
		var auditBuf bytes.Buffer
		auditLog := log.New()
		auditLog.SetOutput(&auditBuf)
		svc := NewPaymentService(db, authority, testPaymentsConfig, pub, audit.NewLogger(auditLog))

		m.ExpectBegin()
		expectLockIntent(m, "pi_late", "acct-1", 2500, 25, models.PaymentFailed)
		m.ExpectExec("UPDATE payment_intents SET status = \\$1, completed_at = \\$2 WHERE id = \\$3").
			WithArgs(models.PaymentCompleted, sqlmock.AnyArg(), "pi_late").
			WillReturnResult(sqlmock.NewResult(0, 1))
		expectLockAccount(m, "acct-1", 0, 0)
		expectKeyCheck(m, models.KindPurchase, "pi_late", "")
		expectApply(m, "acct-1", 25, 25, 0)
		m.ExpectCommit()

		balance, err := svc.OnPaymentConfirmed(ctx, "pi_late", "acct-1", 25, 2500)
		require.NoError(t, err)
		assert.Equal(t, int64(25), balance)
		assert.NoError(t, m.ExpectationsWereMet())
		pub.AssertCalled(t, "Publish", events.SubjectPaymentCompleted, mock.Anything)
		assert.Contains(t, auditBuf.String(), "LATE_CONFIRMATION")
		assert.NotContains(t, auditBuf.String(), "FAILED")
	})
}

func TestPaymentService_CreateIntent(t *testing.T) {
	ctx := context.Background()
	insert := "INSERT INTO payment_intents \\(id, account_id, amount, token_quantity, status\\)"

	t.Run("records a pending intent", func(t *testing.T) {
		svc, m, _ := newTestPayments(t)
		now := time.Now()

		m.ExpectQuery(insert).
			WithArgs("pi_1", "acct-1", int64(2500), int64(25), models.PaymentPending).
			WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(now))

		// a client-chosen amount is replaced by the configured price
		intent := &models.PaymentIntent{ID: "pi_1", AccountID: "acct-1", Amount: 1, TokenQuantity: 25}
		require.NoError(t, svc.CreateIntent(ctx, intent))
		assert.Equal(t, int64(2500), intent.Amount)
		assert.Equal(t, models.PaymentPending, intent.Status)
		assert.Equal(t, now, intent.CreatedAt)
		assert.NoError(t, m.ExpectationsWereMet())
	})

	t.Run("duplicate id", func(t *testing.T) {
		svc, m, _ := newTestPayments(t)

		m.ExpectQuery(insert).WillReturnError(&pq.Error{Code: pqUniqueViolation})

		err := svc.CreateIntent(ctx, &models.PaymentIntent{ID: "pi_1", AccountID: "acct-1", TokenQuantity: 1})
		assert.ErrorIs(t, err, ErrPaymentIntentExists)
	})

	t.Run("unknown account", func(t *testing.T) {
		svc, m, _ := newTestPayments(t)

		m.ExpectQuery(insert).WillReturnError(&pq.Error{Code: pqForeignKeyViolation})

		err := svc.CreateIntent(ctx, &models.PaymentIntent{ID: "pi_2", AccountID: "ghost", TokenQuantity: 1})
		assert.ErrorIs(t, err, ErrAccountNotFound)
	})

	t.Run("non-positive quantity", func(t *testing.T) {
		svc, m, _ := newTestPayments(t)

		err := svc.CreateIntent(ctx, &models.PaymentIntent{ID: "pi_3", AccountID: "acct-1", TokenQuantity: 0})
		assert.ErrorIs(t, err, ErrInvalidAmount)
		assert.NoError(t, m.ExpectationsWereMet())
	})

	t.Run("quantity that overflows the price", func(t *testing.T) {
		svc, m, _ := newTestPayments(t)

		err := svc.CreateIntent(ctx, &models.PaymentIntent{ID: "pi_4", AccountID: "acct-1", TokenQuantity: math.MaxInt64 / 10})
		assert.ErrorIs(t, err, ErrInvalidAmount)
		assert.NoError(t, m.ExpectationsWereMet())
	})

	t.Run("ids may not look like internal keys", func(t *testing.T) {
		svc, m, _ := newTestPayments(t)

		err := svc.CreateIntent(ctx, &models.PaymentIntent{ID: "unlock:acct-1:rec-1", AccountID: "acct-1", TokenQuantity: 1})
		assert.ErrorIs(t, err, ErrInvalidIntentID)
		assert.NoError(t, m.ExpectationsWereMet())
	})
}

func TestPaymentService_OnPaymentFailed(t *testing.T) {
	ctx := context.Background()
	update := "UPDATE payment_intents SET status = \\$1 WHERE id = \\$2 AND status = \\$3"

	t.Run("pending becomes failed", func(t *testing.T) {
		svc, m, _ := newTestPayments(t)

		m.ExpectExec(update).
			WithArgs(models.PaymentFailed, "pi_1", models.PaymentPending).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, svc.OnPaymentFailed(ctx, "pi_1"))
		assert.NoError(t, m.ExpectationsWereMet())
	})

	t.Run("completed intent is left alone", func(t *testing.T) {
		svc, m, _ := newTestPayments(t)

		m.ExpectExec(update).WillReturnResult(sqlmock.NewResult(0, 0))
		m.ExpectQuery("SELECT id, account_id, amount, token_quantity, status, created_at, completed_at FROM payment_intents WHERE id = \\$1").
			WithArgs("pi_1").
			WillReturnRows(sqlmock.NewRows(intentColumns).
				AddRow("pi_1", "acct-1", 2500, 25, models.PaymentCompleted, time.Now(), time.Now()))

		assert.NoError(t, svc.OnPaymentFailed(ctx, "pi_1"))
		assert.NoError(t, m.ExpectationsWereMet())
	})

	t.Run("unknown intent", func(t *testing.T) {
		svc, m, _ := newTestPayments(t)

		m.ExpectExec(update).WillReturnResult(sqlmock.NewResult(0, 0))
		m.ExpectQuery("FROM payment_intents").WillReturnRows(sqlmock.NewRows(intentColumns))

		assert.ErrorIs(t, svc.OnPaymentFailed(ctx, "pi_404"), ErrUnknownPaymentIntent)
	})
}

func TestPaymentService_ExpireStale(t *testing.T) {
	svc, m, _ := newTestPayments(t)

	m.ExpectExec("UPDATE payment_intents SET status = \\$1 WHERE status = \\$2 AND created_at < \\$3").
		WithArgs(models.PaymentFailed, models.PaymentPending, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := svc.ExpireStale(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, m.ExpectationsWereMet())
}
