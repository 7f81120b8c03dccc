package models

import "time"

// PaymentIntent status
const (
	PaymentPending   = "pending"
	PaymentCompleted = "completed"
	PaymentFailed    = "failed"
)

// PaymentIntent is keyed by the gateway order id and credits tokens at most once.
type PaymentIntent struct {
	ID            string     `json:"id" db:"id" validate:"required,max=128"`
	AccountID     string     `json:"accountId" db:"account_id" validate:"required"`
	Amount        int64      `json:"amount" db:"amount" validate:"required,gt=0"` // minor currency units
	TokenQuantity int64      `json:"tokenQuantity" db:"token_quantity" validate:"required,gt=0"`
	Status        string     `json:"status" db:"status"`
	CreatedAt     time.Time  `json:"createdAt" db:"created_at"`
	CompletedAt   *time.Time `json:"completedAt,omitempty" db:"completed_at"`
}

// PaymentConfirmation is the verified callback delivered by the gateway integration.
type PaymentConfirmation struct {
	PaymentIntentID string `json:"paymentIntentId" validate:"required"`
	AccountID       string `json:"accountId" validate:"required"`
	TokenQuantity   int64  `json:"tokenQuantity" validate:"required,gt=0"`
	AmountPaid      int64  `json:"amountPaid" validate:"required,gt=0"`
}
