package handlers

import (
	"context"
	"net/http"

	"github.com/recordvault/backend/internal/models"
	"github.com/recordvault/backend/internal/services"
)

// Balances is the part of the balance authority the HTTP layer needs.
type Balances interface {
	GetBalance(ctx context.Context, accountID string) (int64, error)
	OpenAccount(ctx context.Context, accountID string) (*models.Account, error)
	Refund(ctx context.Context, accountID string, amount int64, idempotencyKey, description string) (int64, error)
}

type History interface {
	History(ctx context.Context, accountID string, page models.Page) ([]models.LedgerEntry, error)
	AuditHistory(ctx context.Context, accountID string, page models.Page) ([]models.AuditRecord, error)
}

type LedgerHandler struct {
	balances  Balances
	history   History
	validator *services.ValidationHelper
}

func NewLedgerHandler(balances Balances, history History) *LedgerHandler {
	return &LedgerHandler{
		balances:  balances,
		history:   history,
		validator: services.NewValidationHelper(),
	}
}

// OpenAccount creates the caller's token account
// @Summary Open account
// @Description Create the authenticated user's token account. Opening an existing account returns it unchanged.
// @Tags account
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.Account
// @Failure 401 {object} services.ErrorResponse
// @Router /account [post]
func (h *LedgerHandler) OpenAccount(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccount(w, r)
	if !ok {
		return
	}

	account, err := h.balances.OpenAccount(r.Context(), accountID)
	if err != nil {
		sendServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

// GetBalance returns the caller's token balance
// @Summary Get balance
// @Tags account
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{accountId=string,balance=int64}
// @Failure 404 {object} services.ErrorResponse
// @Router /account/balance [get]
func (h *LedgerHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccount(w, r)
	if !ok {
		return
	}

	balance, err := h.balances.GetBalance(r.Context(), accountID)
	if err != nil {
		sendServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"accountId": accountID,
		"balance":   balance,
	})
}

// GetLedgerHistory lists ledger entries newest first
// @Summary Ledger history
// @Description Keyset paginated. Pass nextBefore from the previous page as before.
// @Tags account
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Page size"
// @Param before query int false "Return entries with seq below this value"
// @Success 200 {object} object{entries=[]models.LedgerEntry,nextBefore=int64}
// @Failure 400 {object} services.ErrorResponse
// @Router /account/ledger [get]
func (h *LedgerHandler) GetLedgerHistory(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccount(w, r)
	if !ok {
		return
	}
	page, err := pageFromQuery(r)
	if err != nil {
		services.SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}

	entries, err := h.history.History(r.Context(), accountID, page)
	if err != nil {
		sendServiceError(w, r, err)
		return
	}

	var next int64
	if len(entries) > 0 {
		next = entries[len(entries)-1].Seq
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries":    entries,
		"nextBefore": next,
	})
}

// GetAuditHistory lists audit records newest first
// @Summary Audit history
// @Tags account
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Page size"
// @Param before query int false "Return records with seq below this value"
// @Success 200 {object} object{records=[]models.AuditRecord,nextBefore=int64}
// @Router /account/audit [get]
func (h *LedgerHandler) GetAuditHistory(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccount(w, r)
	if !ok {
		return
	}
	page, err := pageFromQuery(r)
	if err != nil {
		services.SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}

	records, err := h.history.AuditHistory(r.Context(), accountID, page)
	if err != nil {
		sendServiceError(w, r, err)
		return
	}

	var next int64
	if len(records) > 0 {
		next = records[len(records)-1].Seq
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"records":    records,
		"nextBefore": next,
	})
}

type refundRequest struct {
	AccountID      string `json:"accountId" validate:"required"`
	Amount         int64  `json:"amount" validate:"required,gt=0"`
	IdempotencyKey string `json:"idempotencyKey" validate:"required,max=128"`
	Description    string `json:"description" validate:"max=256"`
}

// Refund credits tokens back to an account
// @Summary Refund tokens
// @Description Support tooling. Repeating an idempotency key refunds once.
// @Tags admin
// @Accept json
// @Produce json
// @Param X-Webhook-Secret header string true "Shared secret"
// @Param request body refundRequest true "Refund"
// @Success 200 {object} object{balance=int64}
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /admin/refunds [post]
func (h *LedgerHandler) Refund(w http.ResponseWriter, r *http.Request) {
	var req refundRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	balance, err := h.balances.Refund(r.Context(), req.AccountID, req.Amount, req.IdempotencyKey, req.Description)
	if err != nil {
		sendServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"balance": balance})
}
