// Package ledger applies one-time grants, purchases and payout gates to a
// mining state. Functions mutate the state in place and never touch storage;
// callers run them inside a serialized store update.
package ledger

import (
	"math"
	"strconv"
	"strings"
	"time"

	"voltfarm/internal/domain"
)

// DefaultCoolingMultiplier converts purchased cooling power into cooling units.
const DefaultCoolingMultiplier = 4.0

// Rules gate withdrawals.
type Rules struct {
	MinWithdraw  float64
	MinReferrals int
	MinShares    int
}

// DefaultRules are the thresholds observed in production.
func DefaultRules() Rules {
	return Rules{MinWithdraw: 300, MinReferrals: 10, MinShares: 5}
}

// CheckInRules configure the daily check-in reward.
type CheckInRules struct {
	BaseReward float64
	MaxStreak  int
	Interval   time.Duration
	ResetAfter time.Duration
}

// DefaultCheckInRules pays base × streak, capped at a week.
func DefaultCheckInRules() CheckInRules {
	return CheckInRules{
		BaseReward: 1,
		MaxStreak:  7,
		Interval:   24 * time.Hour,
		ResetAfter: 48 * time.Hour,
	}
}

// CompleteTask grants reward once per task id.
func CompleteTask(st *domain.MiningState, taskID string, reward float64) error {
	if taskID == "" {
		return domain.Validation("task id is required")
	}
	if reward < 0 || math.IsNaN(reward) || math.IsInf(reward, 0) {
		return domain.Validation("task reward must be a non-negative number")
	}
	if st.HasCompleted(taskID) {
		return domain.ErrTaskAlreadyCompleted
	}
	st.Balance += reward
	st.CompletedTaskIDs = append(st.CompletedTaskIDs, taskID)
	return nil
}

// RecordGroupShare counts a completed social-share task.
func RecordGroupShare(st *domain.MiningState) {
	st.ApplyDelta(domain.Delta{GroupShares: 1})
}

// ReferralPrefix prefixes the inviter id in start payloads.
const ReferralPrefix = "ref_"

// ParseInviter extracts the inviter id from a start payload such as "123" or
// "ref_123". ok is false for anything that is not a valid foreign user id.
func ParseInviter(newUserID int64, ref string) (int64, bool) {
	ref = strings.TrimPrefix(strings.TrimSpace(ref), ReferralPrefix)
	if ref == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(ref, 10, 64)
	if err != nil || id <= 0 || id == newUserID {
		return 0, false
	}
	return id, true
}

// ReferralDelta is the counter change an inviter receives per referral.
func ReferralDelta(bonus float64) domain.Delta {
	return domain.Delta{Balance: bonus, Referrals: 1}
}

// GrantReferral credits the inviter for one completed referral.
func GrantReferral(inviter *domain.MiningState, bonus float64) {
	inviter.ApplyDelta(ReferralDelta(bonus))
}

// ApplyUpgrade applies a purchased upgrade.
func ApplyUpgrade(st *domain.MiningState, kind domain.UpgradeKind, power int, coolingMultiplier float64) error {
	if power < 1 {
		return domain.ErrInvalidUpgrade
	}
	switch kind {
	case domain.UpgradeGPU:
		st.GPUCount += power
	case domain.UpgradeCooling:
		if coolingMultiplier <= 0 {
			coolingMultiplier = DefaultCoolingMultiplier
		}
		if st.CoolingPower < 1 {
			st.CoolingPower = 1
		}
		st.CoolingPower += float64(power) * coolingMultiplier
	default:
		return domain.ErrInvalidUpgrade
	}
	return nil
}

// ApplyPayment applies the upgrade bought by paymentID at most once.
// applied is false when the payment was already processed.
func ApplyPayment(st *domain.MiningState, paymentID string, kind domain.UpgradeKind, power int, coolingMultiplier float64) (bool, error) {
	if paymentID == "" {
		return false, domain.Validation("payment id is required")
	}
	if st.HasPayment(paymentID) {
		return false, nil
	}
	if err := ApplyUpgrade(st, kind, power, coolingMultiplier); err != nil {
		return false, err
	}
	st.AppliedPaymentIDs = append(st.AppliedPaymentIDs, paymentID)
	return true, nil
}

// CanWithdraw reports whether st passes the withdrawal gate.
func CanWithdraw(st *domain.MiningState, r Rules) bool {
	return st.Balance >= r.MinWithdraw &&
		st.ReferralCount >= r.MinReferrals &&
		st.GroupShareCount >= r.MinShares
}

// Eligibility describes the gate for display.
func Eligibility(st *domain.MiningState, r Rules) domain.WithdrawEligibility {
	return domain.WithdrawEligibility{
		Eligible:       CanWithdraw(st, r),
		Balance:        st.Balance,
		MinBalance:     r.MinWithdraw,
		Referrals:      st.ReferralCount,
		MinReferrals:   r.MinReferrals,
		GroupShares:    st.GroupShareCount,
		MinGroupShares: r.MinShares,
	}
}

// Withdraw zeroes the balance and returns the withdrawn amount.
// Pending yield is left as is.
func Withdraw(st *domain.MiningState, r Rules) (float64, error) {
	if !CanWithdraw(st, r) {
		return 0, domain.ErrThresholdNotMet
	}
	amount := st.Balance
	st.Balance = 0
	return amount, nil
}

// Collect moves pending yield into the withdrawable balance.
func Collect(st *domain.MiningState) float64 {
	amount := st.PendingYield
	if amount <= 0 {
		return 0
	}
	st.Balance += amount
	st.PendingYield = 0
	return amount
}

// CoolDown resets the thermal throttle. Reconcile first so the heat gained
// up to now is accounted for.
func CoolDown(st *domain.MiningState) {
	st.Heat = 0
}

// CheckIn records a daily check-in and returns the reward credited to balance.
func CheckIn(st *domain.MiningState, now time.Time, r CheckInRules) (float64, error) {
	d := DefaultCheckInRules()
	if r.Interval <= 0 {
		r.Interval = d.Interval
	}
	if r.ResetAfter <= 0 {
		r.ResetAfter = d.ResetAfter
	}
	if r.MaxStreak <= 0 {
		r.MaxStreak = d.MaxStreak
	}

	if st.LastCheckInAt != nil {
		gap := now.Sub(*st.LastCheckInAt)
		if gap < r.Interval {
			return 0, domain.ErrAlreadyCheckedIn
		}
		if gap > r.ResetAfter {
			st.CheckInStreak = 0
		}
	} else {
		st.CheckInStreak = 0
	}

	st.CheckInStreak++
	at := now
	st.LastCheckInAt = &at

	reward := r.BaseReward * float64(min(st.CheckInStreak, r.MaxStreak))
	st.Balance += reward
	return reward, nil
}
