package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/recordvault/backend/internal/models"
	"github.com/recordvault/backend/internal/services"
)

type Referrals interface {
	CreateLink(ctx context.Context, referrerID, refereeID string, bonus int64) (*models.ReferralLink, error)
	OnRefereeQualified(ctx context.Context, referralLinkID string) (bool, error)
}

type ReferralHandler struct {
	referrals Referrals
	validator *services.ValidationHelper
}

func NewReferralHandler(referrals Referrals) *ReferralHandler {
	return &ReferralHandler{
		referrals: referrals,
		validator: services.NewValidationHelper(),
	}
}

type createLinkRequest struct {
	RefereeID string `json:"refereeId" validate:"required"`
}

// CreateLink records that the caller referred another account
// @Summary Create referral link
// @Tags referrals
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body createLinkRequest true "Referee"
// @Success 201 {object} models.ReferralLink
// @Failure 400 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse "Referee already referred"
// @Router /referrals [post]
func (h *ReferralHandler) CreateLink(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccount(w, r)
	if !ok {
		return
	}
	var req createLinkRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	link, err := h.referrals.CreateLink(r.Context(), accountID, req.RefereeID, 0)
	if err != nil {
		sendServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, link)
}

// Qualify completes a referral and pays the bonus once
// @Summary Referee qualified callback
// @Tags webhooks
// @Produce json
// @Param X-Webhook-Secret header string true "Shared secret"
// @Param id path string true "Referral link ID"
// @Success 200 {object} object{bonusCredited=bool}
// @Failure 404 {object} services.ErrorResponse
// @Router /referrals/{id}/qualify [post]
func (h *ReferralHandler) Qualify(w http.ResponseWriter, r *http.Request) {
	credited, err := h.referrals.OnRefereeQualified(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		sendServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bonusCredited": credited})
}
