package handlers

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	mW "github.com/recordvault/backend/internal/middleware"
	"github.com/recordvault/backend/internal/models"
)

const (
	testJWTSecret     = "jwt-secret"
	testWebhookSecret = "hook-secret"
)

type MockBalances struct{ mock.Mock }

func (m *MockBalances) GetBalance(ctx context.Context, accountID string) (int64, error) {
	args := m.Called(ctx, accountID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockBalances) OpenAccount(ctx context.Context, accountID string) (*models.Account, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Account), args.Error(1)
}

func (m *MockBalances) Refund(ctx context.Context, accountID string, amount int64, idempotencyKey, description string) (int64, error) {
	args := m.Called(ctx, accountID, amount, idempotencyKey, description)
	return args.Get(0).(int64), args.Error(1)
}

type MockHistory struct{ mock.Mock }

func (m *MockHistory) History(ctx context.Context, accountID string, page models.Page) ([]models.LedgerEntry, error) {
	args := m.Called(ctx, accountID, page)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.LedgerEntry), args.Error(1)
}

func (m *MockHistory) AuditHistory(ctx context.Context, accountID string, page models.Page) ([]models.AuditRecord, error) {
	args := m.Called(ctx, accountID, page)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.AuditRecord), args.Error(1)
}

type MockUnlocker struct{ mock.Mock }

func (m *MockUnlocker) Unlock(ctx context.Context, accountID, recordID string) (*models.UnlockResult, error) {
	args := m.Called(ctx, accountID, recordID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.UnlockResult), args.Error(1)
}

func (m *MockUnlocker) CheckEntitlement(ctx context.Context, accountID, recordID string) (bool, error) {
	args := m.Called(ctx, accountID, recordID)
	return args.Bool(0), args.Error(1)
}

type MockEntitlements struct{ mock.Mock }

func (m *MockEntitlements) ListForAccount(ctx context.Context, accountID string, limit int) ([]models.Entitlement, error) {
	args := m.Called(ctx, accountID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Entitlement), args.Error(1)
}

type MockPayments struct{ mock.Mock }

func (m *MockPayments) CreateIntent(ctx context.Context, intent *models.PaymentIntent) error {
	return m.Called(ctx, intent).Error(0)
}

func (m *MockPayments) OnPaymentConfirmed(ctx context.Context, paymentIntentID, accountID string, tokenQuantity, amountPaid int64) (int64, error) {
	args := m.Called(ctx, paymentIntentID, accountID, tokenQuantity, amountPaid)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockPayments) OnPaymentFailed(ctx context.Context, paymentIntentID string) error {
	return m.Called(ctx, paymentIntentID).Error(0)
}

type MockReferrals struct{ mock.Mock }

func (m *MockReferrals) CreateLink(ctx context.Context, referrerID, refereeID string, bonus int64) (*models.ReferralLink, error) {
	args := m.Called(ctx, referrerID, refereeID, bonus)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ReferralLink), args.Error(1)
}

func (m *MockReferrals) OnRefereeQualified(ctx context.Context, referralLinkID string) (bool, error) {
	args := m.Called(ctx, referralLinkID)
	return args.Bool(0), args.Error(1)
}

type testAPI struct {
	handler      http.Handler
	balances     *MockBalances
	history      *MockHistory
	unlocker     *MockUnlocker
	entitlements *MockEntitlements
	payments     *MockPayments
	referrals    *MockReferrals
}

func newTestAPI() *testAPI {
	api := &testAPI{
		balances:     &MockBalances{},
		history:      &MockHistory{},
		unlocker:     &MockUnlocker{},
		entitlements: &MockEntitlements{},
		payments:     &MockPayments{},
		referrals:    &MockReferrals{},
	}
	api.handler = NewRouter(RouterConfig{
		Ledger:        NewLedgerHandler(api.balances, api.history),
		Unlock:        NewUnlockHandler(api.unlocker, api.entitlements),
		Payments:      NewPaymentHandler(api.payments),
		Referrals:     NewReferralHandler(api.referrals),
		Auth:          mW.NewAuthenticator(testJWTSecret),
		WebhookSecret: testWebhookSecret,
	})
	return api
}

func bearer(t *testing.T, accountID string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"user_id": accountID}).
		SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return "Bearer " + token
}

// userRequest sends an authenticated request as accountID.
func (a *testAPI) userRequest(t *testing.T, method, path, accountID, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	r := httptest.NewRequest(method, path, reader)
	r.Header.Set("Authorization", bearer(t, accountID))
	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, r)
	return w
}

// webhookRequest sends a request carrying the shared webhook secret.
func (a *testAPI) webhookRequest(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(method, path, strings.NewReader(body))
	r.Header.Set("X-Webhook-Secret", testWebhookSecret)
	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, r)
	return w
}
