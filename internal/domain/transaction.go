package domain

import "time"

// Transaction types written to the audit ledger.
const (
	TxTaskReward     = "task_reward"
	TxReferralBonus  = "referral_bonus"
	TxCheckIn        = "check_in"
	TxCollect        = "collect"
	TxWithdraw       = "withdraw"
	TxWithdrawRefund = "withdraw_refund"
	TxUpgrade        = "upgrade"
)

type Transaction struct {
	ID        int64                  `db:"id" json:"id"`
	UserID    int64                  `db:"user_id" json:"user_id"`
	Type      string                 `db:"type" json:"type"`
	Amount    float64                `db:"amount" json:"amount"`
	Meta      map[string]interface{} `db:"meta" json:"meta,omitempty"`
	CreatedAt time.Time              `db:"created_at" json:"created_at"`
}
