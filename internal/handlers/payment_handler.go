package handlers

import (
	"context"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/recordvault/backend/internal/models"
	"github.com/recordvault/backend/internal/services"
)

type Payments interface {
	CreateIntent(ctx context.Context, intent *models.PaymentIntent) error
	OnPaymentConfirmed(ctx context.Context, paymentIntentID, accountID string, tokenQuantity, amountPaid int64) (int64, error)
	OnPaymentFailed(ctx context.Context, paymentIntentID string) error
}

type PaymentHandler struct {
	payments  Payments
	validator *services.ValidationHelper
}

func NewPaymentHandler(payments Payments) *PaymentHandler {
	return &PaymentHandler{
		payments:  payments,
		validator: services.NewValidationHelper(),
	}
}

type createIntentRequest struct {
	PaymentIntentID string `json:"paymentIntentId" validate:"required,max=128,excludes=:"`
	TokenQuantity   int64  `json:"tokenQuantity" validate:"required,gt=0,max=1000000"`
}

// CreateIntent records a pending checkout
// @Summary Create payment intent
// @Description Registers the gateway order id before the user pays. The amount due is priced server-side.
// @Tags payments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body createIntentRequest true "Intent"
// @Success 201 {object} models.PaymentIntent
// @Failure 400 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /payments/intents [post]
func (h *PaymentHandler) CreateIntent(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccount(w, r)
	if !ok {
		return
	}
	var req createIntentRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	intent := &models.PaymentIntent{
		ID:            req.PaymentIntentID,
		AccountID:     accountID,
		TokenQuantity: req.TokenQuantity,
	}
	if err := h.payments.CreateIntent(r.Context(), intent); err != nil {
		sendServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, intent)
}

// PaymentConfirmed credits a verified payment
// @Summary Payment confirmed callback
// @Description Idempotent on paymentIntentId. Redelivery returns the current balance. A late confirmation of a failed intent still credits.
// @Tags webhooks
// @Accept json
// @Produce json
// @Param X-Webhook-Secret header string true "Shared secret"
// @Param request body models.PaymentConfirmation true "Confirmation"
// @Success 200 {object} object{newBalance=int64}
// @Failure 404 {object} services.ErrorResponse "Unknown payment intent"
// @Failure 409 {object} services.ErrorResponse "Intent id used by another account"
// @Failure 422 {object} services.ErrorResponse "Amount mismatch"
// @Router /webhooks/payments/confirmed [post]
func (h *PaymentHandler) PaymentConfirmed(w http.ResponseWriter, r *http.Request) {
	var req models.PaymentConfirmation
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	balance, err := h.payments.OnPaymentConfirmed(r.Context(), req.PaymentIntentID, req.AccountID, req.TokenQuantity, req.AmountPaid)
	if err != nil {
		sendServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"newBalance": balance})
}

type paymentFailedRequest struct {
	PaymentIntentID string `json:"paymentIntentId" validate:"required"`
	Reason          string `json:"reason"`
}

// PaymentFailed marks a pending intent failed
// @Summary Payment failed callback
// @Tags webhooks
// @Accept json
// @Param X-Webhook-Secret header string true "Shared secret"
// @Param request body paymentFailedRequest true "Failure"
// @Success 204
// @Failure 404 {object} services.ErrorResponse
// @Router /webhooks/payments/failed [post]
func (h *PaymentHandler) PaymentFailed(w http.ResponseWriter, r *http.Request) {
	var req paymentFailedRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	if err := h.payments.OnPaymentFailed(r.Context(), req.PaymentIntentID); err != nil {
		sendServiceError(w, r, err)
		return
	}
	log.WithFields(log.Fields{
		"payment_intent_id": req.PaymentIntentID,
		"reason":            req.Reason,
	}).Info("[PAYMENT] Gateway reported failure")
	w.WriteHeader(http.StatusNoContent)
}
