package domain

import (
	"math"
	"slices"
	"time"
)

// MiningState is the persisted per-user rig state.
type MiningState struct {
	UserID            int64      `db:"user_id" json:"user_id"`
	Balance           float64    `db:"balance" json:"balance"`
	PendingYield      float64    `db:"pending_yield" json:"pending_yield"` // намайнено, но не собрано
	GPUCount          int        `db:"gpu_count" json:"gpu_count"`
	CoolingPower      float64    `db:"cooling_power" json:"cooling_power"`
	Heat              float64    `db:"heat" json:"heat"` // 0..100
	LastObservedAt    time.Time  `db:"last_observed_at" json:"last_observed_at"`
	ReferralCount     int        `db:"referral_count" json:"referral_count"`
	GroupShareCount   int        `db:"group_share_count" json:"group_share_count"`
	CompletedTaskIDs  []string   `db:"completed_task_ids" json:"completed_task_ids"`
	AppliedPaymentIDs []string   `db:"applied_payment_ids" json:"-"`
	CheckInStreak     int        `db:"check_in_streak" json:"check_in_streak"`
	LastCheckInAt     *time.Time `db:"last_check_in_at" json:"last_check_in_at,omitempty"`
	ReferredBy        *int64     `db:"referred_by" json:"referred_by,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

// NewMiningState returns the defaults a user gets on first access.
func NewMiningState(userID int64, now time.Time) *MiningState {
	return &MiningState{
		UserID:            userID,
		GPUCount:          1,
		CoolingPower:      1,
		LastObservedAt:    now,
		CompletedTaskIDs:  []string{},
		AppliedPaymentIDs: []string{},
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// Delta is an increment applied to counters without a full read-modify-write.
type Delta struct {
	Balance     float64
	Referrals   int
	GroupShares int
}

// ApplyDelta adds d to the state counters.
func (s *MiningState) ApplyDelta(d Delta) {
	s.Balance += d.Balance
	s.ReferralCount += d.Referrals
	s.GroupShareCount += d.GroupShares
}

// HasCompleted reports whether taskID was already granted.
func (s *MiningState) HasCompleted(taskID string) bool {
	return slices.Contains(s.CompletedTaskIDs, taskID)
}

// HasPayment reports whether paymentID was already applied.
func (s *MiningState) HasPayment(paymentID string) bool {
	return slices.Contains(s.AppliedPaymentIDs, paymentID)
}

// Clone returns a deep copy.
func (s *MiningState) Clone() *MiningState {
	c := *s
	c.CompletedTaskIDs = slices.Clone(s.CompletedTaskIDs)
	c.AppliedPaymentIDs = slices.Clone(s.AppliedPaymentIDs)
	if s.LastCheckInAt != nil {
		t := *s.LastCheckInAt
		c.LastCheckInAt = &t
	}
	if s.ReferredBy != nil {
		r := *s.ReferredBy
		c.ReferredBy = &r
	}
	return &c
}

// Validate rejects states the accrual engine is not defined for.
func (s *MiningState) Validate() error {
	for _, v := range []float64{s.Balance, s.PendingYield, s.CoolingPower, s.Heat} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Validation("state contains a non-finite value")
		}
	}
	if s.Balance < 0 || s.PendingYield < 0 {
		return Validation("balance must not be negative")
	}
	if s.GPUCount < 1 {
		return Validation("gpu count must be at least 1")
	}
	if s.ReferralCount < 0 || s.GroupShareCount < 0 || s.CheckInStreak < 0 {
		return Validation("counters must not be negative")
	}
	if s.LastObservedAt.IsZero() {
		return Validation("last observation time is missing")
	}
	return nil
}
