package domain

import "time"

// Withdrawal is a payout request created once the gate passes. Payout is manual.
type Withdrawal struct {
	ID          int64            `db:"id" json:"id"`
	UserID      int64            `db:"user_id" json:"user_id"`
	Amount      float64          `db:"amount" json:"amount"`
	Status      WithdrawalStatus `db:"status" json:"status"`
	Note        string           `db:"note" json:"note,omitempty"`
	CreatedAt   time.Time        `db:"created_at" json:"created_at"`
	ProcessedAt *time.Time       `db:"processed_at" json:"processed_at,omitempty"`
}

// WithdrawalStatus represents withdrawal processing status
type WithdrawalStatus string

const (
	WithdrawalStatusPending  WithdrawalStatus = "pending"
	WithdrawalStatusApproved WithdrawalStatus = "approved"
	WithdrawalStatusRejected WithdrawalStatus = "rejected"
)

// WithdrawEligibility shows the user how far they are from the gate.
type WithdrawEligibility struct {
	Eligible       bool    `json:"eligible"`
	Balance        float64 `json:"balance"`
	MinBalance     float64 `json:"min_balance"`
	Referrals      int     `json:"referrals"`
	MinReferrals   int     `json:"min_referrals"`
	GroupShares    int     `json:"group_shares"`
	MinGroupShares int     `json:"min_group_shares"`
}
