package models

import "time"

// ReferralLink status
const (
	ReferralPending   = "pending"
	ReferralCompleted = "completed"
)

type ReferralLink struct {
	ID          string     `json:"id" db:"id"`
	ReferrerID  string     `json:"referrerId" db:"referrer_id"`
	RefereeID   string     `json:"refereeId" db:"referee_id"`
	Status      string     `json:"status" db:"status"`
	BonusAmount int64      `json:"bonusAmount" db:"bonus_amount"`
	CreatedAt   time.Time  `json:"createdAt" db:"created_at"`
	CompletedAt *time.Time `json:"completedAt,omitempty" db:"completed_at"`
}
