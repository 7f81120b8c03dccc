package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	log "github.com/sirupsen/logrus"

	"github.com/recordvault/backend/internal/middleware"
	"github.com/recordvault/backend/internal/models"
	"github.com/recordvault/backend/internal/services"
)

const maxBodyBytes = 1_048_576

var errorStatus = []struct {
	err    error
	status int
}{
	{services.ErrInsufficientBalance, http.StatusPaymentRequired},
	{services.ErrAccountNotFound, http.StatusNotFound},
	{services.ErrRecordNotFound, http.StatusNotFound},
	{services.ErrUnknownPaymentIntent, http.StatusNotFound},
	{services.ErrReferralNotFound, http.StatusNotFound},
	{services.ErrAmountMismatch, http.StatusUnprocessableEntity},
	{services.ErrTransactionConflict, http.StatusConflict},
	{services.ErrPaymentIntentExists, http.StatusConflict},
	{services.ErrIdempotencyKeyConflict, http.StatusConflict},
	{services.ErrReferralExists, http.StatusConflict},
	{services.ErrInvalidAmount, http.StatusBadRequest},
	{services.ErrInvalidKind, http.StatusBadRequest},
	{services.ErrSelfReferral, http.StatusBadRequest},
	{services.ErrInvalidIntentID, http.StatusBadRequest},
	{services.ErrRateLimited, http.StatusTooManyRequests},
	{context.DeadlineExceeded, http.StatusGatewayTimeout},
}

func statusFor(err error) int {
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			return e.status
		}
	}
	return http.StatusInternalServerError
}

// sendServiceError maps a service error onto the JSON error body. Unknown
// errors are logged and reported without detail.
func sendServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	message := err.Error()

	switch status {
	case http.StatusInternalServerError:
		log.WithError(err).WithField("path", r.URL.Path).Error("Request failed")
		message = "Internal server error"
	case http.StatusConflict, http.StatusTooManyRequests:
		w.Header().Set("Retry-After", "1")
	}
	services.SendErrorResponse(w, message, status, nil)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// decodeJSON reads exactly one JSON object and validates it. It writes the
// error response itself and reports whether the handler should continue.
func decodeJSON(w http.ResponseWriter, r *http.Request, v *services.ValidationHelper, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return false
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return false
	}
	if err := v.ValidateStruct(dst); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return false
	}
	return true
}

func requireAccount(w http.ResponseWriter, r *http.Request) (string, bool) {
	accountID, ok := middleware.AccountID(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return "", false
	}
	return accountID, true
}

// pageFromQuery reads ?limit=&before= into a keyset page.
func pageFromQuery(r *http.Request) (models.Page, error) {
	var page models.Page
	q := r.URL.Query()

	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			return page, errors.New("limit must be a non-negative integer")
		}
		page.Limit = limit
	}
	if v := q.Get("before"); v != "" {
		before, err := strconv.ParseInt(v, 10, 64)
		if err != nil || before < 0 {
			return page, errors.New("before must be a non-negative integer")
		}
		page.BeforeSeq = before
	}
	return page, nil
}
