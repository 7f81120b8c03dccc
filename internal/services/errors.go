package services

import (
	"errors"

	"github.com/lib/pq"

	"github.com/recordvault/backend/internal/catalog"
)

var (
	ErrInvalidAmount       = errors.New("amount must be a positive integer")
	ErrInvalidKind         = errors.New("invalid ledger entry kind")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrAccountNotFound     = errors.New("account not found")
	ErrRecordNotFound      = catalog.ErrRecordNotFound
	ErrRateLimited         = errors.New("too many unlock attempts, slow down")

	// ErrIdempotencyKeyConflict means the key was already used by a different account.
	ErrIdempotencyKeyConflict = errors.New("idempotency key already used by another account")

	ErrUnknownPaymentIntent = errors.New("unknown payment intent")
	ErrAmountMismatch       = errors.New("confirmed payment does not match intent")
	ErrPaymentIntentExists  = errors.New("payment intent already exists")
	ErrInvalidIntentID      = errors.New("payment intent id must not contain ':'")

	ErrReferralNotFound = errors.New("referral link not found")
	ErrReferralExists   = errors.New("referee already has a referral link")
	ErrSelfReferral     = errors.New("an account cannot refer itself")

	// ErrTransactionConflict is returned once retries are exhausted. Callers may retry.
	ErrTransactionConflict = errors.New("transaction conflict, retry the request")
)

// retryable inside the tx runner only
var (
	errVersionConflict = errors.New("optimistic lock failed")
	errConcurrentGrant = errors.New("entitlement granted concurrently")
)

const (
	pqUniqueViolation      = "23505"
	pqForeignKeyViolation  = "23503"
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
)

func pqCode(err error) pq.ErrorCode {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code
	}
	return ""
}

func isUniqueViolation(err error) bool {
	return pqCode(err) == pqUniqueViolation
}

func isForeignKeyViolation(err error) bool {
	return pqCode(err) == pqForeignKeyViolation
}

func isRetryable(err error) bool {
	if errors.Is(err, errVersionConflict) || errors.Is(err, errConcurrentGrant) {
		return true
	}
	switch pqCode(err) {
	case pqSerializationFailure, pqDeadlockDetected:
		return true
	}
	return false
}
