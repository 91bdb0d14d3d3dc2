package ledger

import (
	"errors"
	"testing"
	"time"

	"voltfarm/internal/domain"
)

var now = time.Date(2025, 5, 10, 9, 30, 0, 0, time.UTC)

func newState() *domain.MiningState {
	return domain.NewMiningState(7, now)
}

func TestCompleteTaskOnce(t *testing.T) {
	st := newState()

	if err := CompleteTask(st, "join_channel", 25); err != nil {
		t.Fatalf("first completion: %v", err)
	}
	if st.Balance != 25 {
		t.Fatalf("balance = %v; want 25", st.Balance)
	}

	err := CompleteTask(st, "join_channel", 25)
	if !errors.Is(err, domain.ErrTaskAlreadyCompleted) {
		t.Fatalf("second completion err = %v", err)
	}
	if domain.KindOf(err) != domain.KindConflict {
		t.Fatalf("kind = %s; want conflict", domain.KindOf(err))
	}
	if st.Balance != 25 || len(st.CompletedTaskIDs) != 1 {
		t.Fatalf("duplicate completion mutated state: %+v", st)
	}
}

func TestCompleteTaskValidation(t *testing.T) {
	st := newState()
	if err := CompleteTask(st, "", 1); domain.KindOf(err) != domain.KindValidation {
		t.Fatalf("empty id err = %v", err)
	}
	if err := CompleteTask(st, "x", -1); domain.KindOf(err) != domain.KindValidation {
		t.Fatalf("negative reward err = %v", err)
	}
	if st.Balance != 0 || len(st.CompletedTaskIDs) != 0 {
		t.Fatalf("rejected completion mutated state")
	}
}

func TestParseInviter(t *testing.T) {
	cases := []struct {
		ref  string
		want int64
		ok   bool
	}{
		{"100", 100, true},
		{"ref_100", 100, true},
		{" 55 ", 55, true},
		{"7", 0, false}, // self
		{"", 0, false},
		{"abc", 0, false},
		{"-4", 0, false},
		{"ref_", 0, false},
	}
	for _, tc := range cases {
		got, ok := ParseInviter(7, tc.ref)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("ParseInviter(%q) = %d,%v; want %d,%v", tc.ref, got, ok, tc.want, tc.ok)
		}
	}
}

func TestGrantReferral(t *testing.T) {
	inviter := newState()
	GrantReferral(inviter, 50)
	GrantReferral(inviter, 50)
	if inviter.ReferralCount != 2 || inviter.Balance != 100 {
		t.Fatalf("inviter = %+v", inviter)
	}
}

func TestApplyUpgrade(t *testing.T) {
	st := newState()

	if err := ApplyUpgrade(st, domain.UpgradeGPU, 3, DefaultCoolingMultiplier); err != nil {
		t.Fatal(err)
	}
	if st.GPUCount != 4 {
		t.Fatalf("gpu = %d; want 4", st.GPUCount)
	}

	if err := ApplyUpgrade(st, domain.UpgradeCooling, 2, DefaultCoolingMultiplier); err != nil {
		t.Fatal(err)
	}
	if st.CoolingPower != 9 {
		t.Fatalf("cooling = %v; want 9", st.CoolingPower)
	}

	for _, bad := range []struct {
		kind  domain.UpgradeKind
		power int
	}{{"turbo", 1}, {domain.UpgradeGPU, 0}, {domain.UpgradeCooling, -2}} {
		if err := ApplyUpgrade(st, bad.kind, bad.power, 4); !errors.Is(err, domain.ErrInvalidUpgrade) {
			t.Fatalf("ApplyUpgrade(%s,%d) err = %v", bad.kind, bad.power, err)
		}
	}
	if st.GPUCount != 4 || st.CoolingPower != 9 {
		t.Fatalf("invalid upgrade mutated state")
	}
}

func TestApplyPaymentAtMostOnce(t *testing.T) {
	st := newState()

	applied, err := ApplyPayment(st, "charge-1", domain.UpgradeGPU, 1, 4)
	if err != nil || !applied {
		t.Fatalf("first apply = %v, %v", applied, err)
	}
	applied, err = ApplyPayment(st, "charge-1", domain.UpgradeGPU, 1, 4)
	if err != nil || applied {
		t.Fatalf("replayed apply = %v, %v", applied, err)
	}
	if st.GPUCount != 2 {
		t.Fatalf("gpu = %d; want 2", st.GPUCount)
	}
}

func TestWithdrawGate(t *testing.T) {
	rules := DefaultRules()

	st := newState()
	st.Balance = 299
	st.ReferralCount = 10
	st.GroupShareCount = 5
	st.PendingYield = 4

	if CanWithdraw(st, rules) {
		t.Fatalf("299 should not pass the gate")
	}
	if _, err := Withdraw(st, rules); !errors.Is(err, domain.ErrThresholdNotMet) {
		t.Fatalf("err = %v", err)
	}
	if st.Balance != 299 {
		t.Fatalf("rejected withdrawal mutated balance")
	}

	st.Balance = 300
	amount, err := Withdraw(st, rules)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if amount != 300 || st.Balance != 0 {
		t.Fatalf("amount %v balance %v", amount, st.Balance)
	}
	if st.PendingYield != 4 {
		t.Fatalf("pending yield touched: %v", st.PendingYield)
	}

	if _, err := Withdraw(st, rules); !errors.Is(err, domain.ErrThresholdNotMet) {
		t.Fatalf("double withdrawal err = %v", err)
	}
}

func TestWithdrawGateCounts(t *testing.T) {
	rules := DefaultRules()
	st := newState()
	st.Balance = 1000
	st.ReferralCount = 9
	st.GroupShareCount = 5
	if CanWithdraw(st, rules) {
		t.Fatalf("9 referrals passed the gate")
	}
	st.ReferralCount = 10
	st.GroupShareCount = 4
	if CanWithdraw(st, rules) {
		t.Fatalf("4 shares passed the gate")
	}
	RecordGroupShare(st)
	if !CanWithdraw(st, rules) {
		t.Fatalf("gate should pass: %+v", Eligibility(st, rules))
	}
}

func TestCollect(t *testing.T) {
	st := newState()
	st.PendingYield = 2.5
	st.Balance = 0.5

	if got := Collect(st); got != 2.5 {
		t.Fatalf("collected %v", got)
	}
	if st.Balance != 3 || st.PendingYield != 0 {
		t.Fatalf("state = %+v", st)
	}
	if got := Collect(st); got != 0 {
		t.Fatalf("second collect = %v", got)
	}
}

func TestCheckInStreak(t *testing.T) {
	rules := DefaultCheckInRules()
	st := newState()

	reward, err := CheckIn(st, now, rules)
	if err != nil || reward != 1 || st.CheckInStreak != 1 {
		t.Fatalf("first check-in = %v, %v, streak %d", reward, err, st.CheckInStreak)
	}

	if _, err := CheckIn(st, now.Add(23*time.Hour), rules); !errors.Is(err, domain.ErrAlreadyCheckedIn) {
		t.Fatalf("early check-in err = %v", err)
	}

	reward, err = CheckIn(st, now.Add(25*time.Hour), rules)
	if err != nil || reward != 2 || st.CheckInStreak != 2 {
		t.Fatalf("second check-in = %v, %v, streak %d", reward, err, st.CheckInStreak)
	}

	// gap over 48h restarts the streak
	reward, err = CheckIn(st, now.Add(25*time.Hour+49*time.Hour), rules)
	if err != nil || reward != 1 || st.CheckInStreak != 1 {
		t.Fatalf("after gap = %v, %v, streak %d", reward, err, st.CheckInStreak)
	}
	if st.Balance != 4 {
		t.Fatalf("balance = %v; want 4", st.Balance)
	}
}

func TestCheckInRewardCapped(t *testing.T) {
	rules := DefaultCheckInRules()
	st := newState()
	last := now.Add(-30 * time.Hour)
	st.LastCheckInAt = &last
	st.CheckInStreak = 12

	reward, err := CheckIn(st, now, rules)
	if err != nil {
		t.Fatal(err)
	}
	if reward != 7 || st.CheckInStreak != 13 {
		t.Fatalf("reward %v streak %d", reward, st.CheckInStreak)
	}
}
