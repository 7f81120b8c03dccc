package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/recordvault/backend/internal/models"
	"github.com/recordvault/backend/internal/services"
)

type Unlocker interface {
	Unlock(ctx context.Context, accountID, recordID string) (*models.UnlockResult, error)
	CheckEntitlement(ctx context.Context, accountID, recordID string) (bool, error)
}

type EntitlementLister interface {
	ListForAccount(ctx context.Context, accountID string, limit int) ([]models.Entitlement, error)
}

type UnlockHandler struct {
	unlocker     Unlocker
	entitlements EntitlementLister
}

func NewUnlockHandler(unlocker Unlocker, entitlements EntitlementLister) *UnlockHandler {
	return &UnlockHandler{unlocker: unlocker, entitlements: entitlements}
}

// Unlock spends tokens to reveal a record
// @Summary Unlock record
// @Description Charges the record's token cost once. Unlocking an owned record is free.
// @Tags records
// @Produce json
// @Security BearerAuth
// @Param recordId path string true "Record ID"
// @Success 200 {object} models.UnlockResult
// @Failure 402 {object} services.ErrorResponse "Insufficient balance"
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse "Retry the request"
// @Failure 429 {object} services.ErrorResponse "Too many unlocks"
// @Router /records/{recordId}/unlock [post]
func (h *UnlockHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccount(w, r)
	if !ok {
		return
	}
	recordID := chi.URLParam(r, "recordId")

	result, err := h.unlocker.Unlock(r.Context(), accountID, recordID)
	if err != nil {
		sendServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// CheckEntitlement reports whether the caller owns a record
// @Summary Check entitlement
// @Tags records
// @Produce json
// @Security BearerAuth
// @Param recordId path string true "Record ID"
// @Success 200 {object} object{recordId=string,entitled=bool}
// @Router /records/{recordId}/entitlement [get]
func (h *UnlockHandler) CheckEntitlement(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccount(w, r)
	if !ok {
		return
	}
	recordID := chi.URLParam(r, "recordId")

	entitled, err := h.unlocker.CheckEntitlement(r.Context(), accountID, recordID)
	if err != nil {
		sendServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"recordId": recordID,
		"entitled": entitled,
	})
}

// ListEntitlements lists the records the caller has unlocked
// @Summary Owned records
// @Tags records
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Maximum number of records"
// @Success 200 {object} object{entitlements=[]models.Entitlement}
// @Router /entitlements [get]
func (h *UnlockHandler) ListEntitlements(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccount(w, r)
	if !ok {
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			services.SendErrorResponse(w, "limit must be a non-negative integer", http.StatusBadRequest, nil)
			return
		}
		limit = n
	}

	list, err := h.entitlements.ListForAccount(r.Context(), accountID, limit)
	if err != nil {
		sendServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entitlements": list})
}
