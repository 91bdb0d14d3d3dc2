package service

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"voltfarm/internal/domain"
	"voltfarm/internal/ledger"
	"voltfarm/internal/lock"
	"voltfarm/internal/logger"
	"voltfarm/internal/mining"
)

const notifyTimeout = 10 * time.Second

// Options tune the economy and the service runtime.
type Options struct {
	Mining             mining.Params
	Withdraw           ledger.Rules
	CheckIn            ledger.CheckInRules
	CoolingMultiplier  float64
	ReferralBonus      float64
	Offers             []domain.UpgradeOffer
	AutoCollect        bool
	TrustClientBalance bool
	StoreTimeout       time.Duration
	InvoiceTTL         time.Duration
	BotUsername        string
	WebAppShortName    string
}

// DefaultOptions returns production defaults without an upgrade catalog.
func DefaultOptions() Options {
	return Options{
		Mining:            mining.DefaultParams(),
		Withdraw:          ledger.DefaultRules(),
		CheckIn:           ledger.DefaultCheckInRules(),
		CoolingMultiplier: ledger.DefaultCoolingMultiplier,
		ReferralBonus:     50,
		StoreTimeout:      5 * time.Second,
		InvoiceTTL:        time.Hour,
	}
}

// Deps are the collaborators the service drives. Provider and Notifier may be nil.
type Deps struct {
	States       StateStore
	Tasks        TaskStore
	Invoices     InvoiceStore
	Withdrawals  WithdrawalStore
	Transactions TransactionStore
	Provider     InvoiceProvider
	Notifier     Notifier
}

// MiningService orchestrates the accrual engine and the ledger over the stores.
// Mutations of one user are serialized.
type MiningService struct {
	states       StateStore
	tasks        TaskStore
	invoices     InvoiceStore
	withdrawals  WithdrawalStore
	transactions TransactionStore
	provider     InvoiceProvider
	notifier     Notifier

	opts  Options
	locks *lock.Keyed
	now   func() time.Time
	log   *slog.Logger
	wg    sync.WaitGroup
}

func NewMiningService(d Deps, opts Options) *MiningService {
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 5 * time.Second
	}
	if opts.CoolingMultiplier <= 0 {
		opts.CoolingMultiplier = ledger.DefaultCoolingMultiplier
	}
	if opts.InvoiceTTL <= 0 {
		opts.InvoiceTTL = time.Hour
	}
	n := d.Notifier
	if n == nil {
		n = nopNotifier{}
	}
	return &MiningService{
		states:       d.States,
		tasks:        d.Tasks,
		invoices:     d.Invoices,
		withdrawals:  d.Withdrawals,
		transactions: d.Transactions,
		provider:     d.Provider,
		notifier:     n,
		opts:         opts,
		locks:        lock.NewKeyed(),
		now:          func() time.Time { return time.Now().UTC() },
		log:          logger.With("component", "mining_service"),
	}
}

// SetClock replaces the time source. Tests only.
func (s *MiningService) SetClock(now func() time.Time) { s.now = now }

// Wait blocks until in-flight notifications are delivered.
func (s *MiningService) Wait() { s.wg.Wait() }

// Options returns the economy the service runs with.
func (s *MiningService) Options() Options { return s.opts }

// MinerView is a reconciled state with everything the client renders.
type MinerView struct {
	State    *domain.MiningState        `json:"state"`
	Forecast mining.Forecast            `json:"forecast"`
	Withdraw domain.WithdrawEligibility `json:"withdraw"`
	Created  bool                       `json:"created"`
}

func (s *MiningService) view(st *domain.MiningState, created bool) *MinerView {
	return &MinerView{
		State:    st,
		Forecast: mining.Project(*st, s.opts.Mining),
		Withdraw: ledger.Eligibility(st, s.opts.Withdraw),
		Created:  created,
	}
}

// mutate reconciles the user's state to now, then runs fn on it under the
// per-user lock. fn may be nil.
func (s *MiningService) mutate(ctx context.Context, userID int64, fn func(st *domain.MiningState, created bool, now time.Time) error) (*domain.MiningState, bool, error) {
	if fn == nil {
		return s.mutateTx(ctx, userID, nil)
	}
	return s.mutateTx(ctx, userID, func(st *domain.MiningState, created bool, now time.Time, _ Tx) error {
		return fn(st, created, now)
	})
}

// mutateTx is mutate with access to the store transaction, for writes that
// must land together with the state.
func (s *MiningService) mutateTx(ctx context.Context, userID int64, fn func(st *domain.MiningState, created bool, now time.Time, tx Tx) error) (*domain.MiningState, bool, error) {
	if userID <= 0 {
		return nil, false, domain.Validation("invalid user id")
	}

	unlock := s.locks.Lock(userID)
	defer unlock()

	ctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()

	now := s.now()
	st, created, err := s.states.Update(ctx, userID, now, func(st *domain.MiningState, created bool, tx Tx) error {
		next, earned := mining.Reconcile(*st, now, s.opts.Mining)
		*st = next

		ReconcileTotal.Inc()
		if earned > 0 {
			YieldAccrued.Add(earned)
		}
		if st.Heat >= mining.MaxHeat {
			OverheatedReads.Inc()
		}
		if s.opts.AutoCollect {
			ledger.Collect(st)
		}

		if fn != nil {
			if err := fn(st, created, now, tx); err != nil {
				return err
			}
		}
		return st.Validate()
	})
	if err != nil {
		return nil, false, classify("update miner", err)
	}
	return st, created, nil
}

// classify keeps domain errors and wraps everything else as upstream.
func classify(reason string, err error) error {
	var de *domain.Error
	if errors.As(err, &de) {
		if de.Kind != domain.KindUpstream {
			RejectionsTotal.WithLabelValues(string(de.Kind)).Inc()
		}
		return err
	}
	if errors.Is(err, domain.ErrNotFound) {
		return domain.NotFound(reason + ": not found")
	}
	return domain.Upstream(reason, err)
}

func (s *MiningService) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opts.StoreTimeout)
}

// GetState fetches or creates the user's rig and persists the reconciled state.
func (s *MiningService) GetState(ctx context.Context, userID int64) (*MinerView, error) {
	st, created, err := s.mutate(ctx, userID, nil)
	if err != nil {
		return nil, err
	}
	return s.view(st, created), nil
}

// Snapshot is what the client may push. Server-owned fields are never taken
// from it.
type Snapshot struct {
	Balance         *float64 `json:"balance"`
	CompletedTaskID string   `json:"completed_task_id"`
}

// SaveSnapshot reconciles and folds the client snapshot in. Client balance is
// accepted only in trust mode, and never below zero.
func (s *MiningService) SaveSnapshot(ctx context.Context, userID int64, snap Snapshot) (*MinerView, error) {
	var task *domain.Task
	if snap.CompletedTaskID != "" {
		t, err := s.activeTask(ctx, snap.CompletedTaskID)
		if err != nil {
			return nil, err
		}
		task = t
	}

	granted := false
	st, created, err := s.mutate(ctx, userID, func(st *domain.MiningState, _ bool, _ time.Time) error {
		if s.opts.TrustClientBalance && snap.Balance != nil {
			if *snap.Balance < 0 {
				return domain.Validation("balance must not be negative")
			}
			st.Balance = *snap.Balance
		}
		if task != nil {
			err := grantTask(st, task)
			if errors.Is(err, domain.ErrTaskAlreadyCompleted) {
				return nil
			}
			if err != nil {
				return err
			}
			granted = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if granted {
		GrantsTotal.WithLabelValues(domain.TxTaskReward).Inc()
		s.record(ctx, userID, domain.TxTaskReward, task.Reward, map[string]interface{}{"task_id": task.ID})
	}
	return s.view(st, created), nil
}

// Collect moves pending yield into the withdrawable balance.
func (s *MiningService) Collect(ctx context.Context, userID int64) (float64, *MinerView, error) {
	var amount float64
	st, created, err := s.mutate(ctx, userID, func(st *domain.MiningState, _ bool, _ time.Time) error {
		amount = ledger.Collect(st)
		return nil
	})
	if err != nil {
		return 0, nil, err
	}
	if amount > 0 {
		s.record(ctx, userID, domain.TxCollect, amount, nil)
	}
	return amount, s.view(st, created), nil
}

// CoolDown reconciles, then resets the heat so mining resumes.
func (s *MiningService) CoolDown(ctx context.Context, userID int64) (*MinerView, error) {
	st, created, err := s.mutate(ctx, userID, func(st *domain.MiningState, _ bool, _ time.Time) error {
		ledger.CoolDown(st)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.view(st, created), nil
}

// CheckIn credits the daily streak reward.
func (s *MiningService) CheckIn(ctx context.Context, userID int64) (float64, *MinerView, error) {
	var reward float64
	st, created, err := s.mutate(ctx, userID, func(st *domain.MiningState, _ bool, now time.Time) error {
		r, err := ledger.CheckIn(st, now, s.opts.CheckIn)
		reward = r
		return err
	})
	if err != nil {
		return 0, nil, err
	}

	GrantsTotal.WithLabelValues(domain.TxCheckIn).Inc()
	s.record(ctx, userID, domain.TxCheckIn, reward, map[string]interface{}{"streak": st.CheckInStreak})
	return reward, s.view(st, created), nil
}

// Register fetches or creates the user. A referral is granted only when the
// user is created by this call and ref names another existing user.
func (s *MiningService) Register(ctx context.Context, userID int64, ref string) (*MinerView, error) {
	inviterID, ok := ledger.ParseInviter(userID, ref)
	if ok {
		sctx, cancel := s.storeCtx(ctx)
		_, err := s.states.Get(sctx, inviterID)
		cancel()
		switch {
		case errors.Is(err, domain.ErrNotFound):
			s.log.Info("referral to unknown inviter ignored", "user_id", userID, "inviter_id", inviterID)
			ok = false
		case err != nil:
			return nil, domain.Upstream("load inviter", err)
		}
	}

	// The inviter is credited in the same transaction that creates the user,
	// so a failed credit leaves no half-registered referral behind.
	referred := false
	st, created, err := s.mutateTx(ctx, userID, func(st *domain.MiningState, created bool, _ time.Time, tx Tx) error {
		if !created || !ok {
			return nil
		}
		err := tx.Increment(inviterID, ledger.ReferralDelta(s.opts.ReferralBonus))
		if errors.Is(err, domain.ErrNotFound) {
			s.log.Info("referral to unknown inviter ignored", "user_id", userID, "inviter_id", inviterID)
			return nil
		}
		if err != nil {
			return domain.Upstream("credit inviter", err)
		}
		id := inviterID
		st.ReferredBy = &id
		referred = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if referred {
		GrantsTotal.WithLabelValues(domain.TxReferralBonus).Inc()
		s.record(ctx, inviterID, domain.TxReferralBonus, s.opts.ReferralBonus, map[string]interface{}{"referred_user_id": userID})
		s.notify(inviterID, Notification{
			Kind: NotifyReferral,
			Text: "New miner joined with your link! Referral bonus credited.",
			Data: map[string]any{"user_id": userID, "bonus": s.opts.ReferralBonus},
		})
	}
	return s.view(st, created), nil
}

// LeaderboardEntry is one row of the balance ranking.
type LeaderboardEntry struct {
	Rank     int     `json:"rank"`
	UserID   int64   `json:"user_id"`
	Balance  float64 `json:"balance"`
	GPUCount int     `json:"gpu_count"`
}

func (s *MiningService) Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()

	top, err := s.states.Top(ctx, limit)
	if err != nil {
		return nil, domain.Upstream("load leaderboard", err)
	}
	out := make([]LeaderboardEntry, 0, len(top))
	for i, st := range top {
		out = append(out, LeaderboardEntry{Rank: i + 1, UserID: st.UserID, Balance: st.Balance, GPUCount: st.GPUCount})
	}
	return out, nil
}

// ReferralLink is the mini app deep link carrying the inviter id.
func (s *MiningService) ReferralLink(userID int64) string {
	return "https://t.me/" + s.opts.BotUsername + "/" + s.opts.WebAppShortName + "?startapp=" + ledger.ReferralPrefix + strconv.FormatInt(userID, 10)
}

func (s *MiningService) record(ctx context.Context, userID int64, typ string, amount float64, meta map[string]interface{}) {
	if s.transactions == nil {
		return
	}
	ctx, cancel := s.storeCtx(context.WithoutCancel(ctx))
	defer cancel()

	tx := &domain.Transaction{UserID: userID, Type: typ, Amount: amount, Meta: meta, CreatedAt: s.now()}
	if err := s.transactions.Create(ctx, tx); err != nil {
		s.log.Warn("transaction record failed", "user_id", userID, "type", typ, "error", err)
	}
}

func (s *MiningService) notify(userID int64, n Notification) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := s.notifier.Notify(ctx, userID, n); err != nil {
			s.log.Warn("notification failed", "user_id", userID, "kind", n.Kind, "error", err)
		}
	}()
}
