package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"voltfarm/internal/domain"
	"voltfarm/internal/ledger"
)

// Withdraw passes the gate, zeroes the balance and files a pending payout.
// The record is filed in the same transaction that zeroes the balance.
func (s *MiningService) Withdraw(ctx context.Context, userID int64) (*domain.Withdrawal, *MinerView, error) {
	var w *domain.Withdrawal
	st, created, err := s.mutateTx(ctx, userID, func(st *domain.MiningState, _ bool, now time.Time, tx Tx) error {
		amount, err := ledger.Withdraw(st, s.opts.Withdraw)
		if err != nil {
			return err
		}
		w = &domain.Withdrawal{
			UserID:    userID,
			Amount:    amount,
			Status:    domain.WithdrawalStatusPending,
			CreatedAt: now,
		}
		if err := tx.CreateWithdrawal(w); err != nil {
			return domain.Upstream("create withdrawal", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	s.record(ctx, userID, domain.TxWithdraw, -w.Amount, map[string]interface{}{"withdrawal_id": w.ID})
	s.log.Info("withdrawal requested", "withdrawal_id", w.ID, "user_id", userID, "amount", w.Amount)
	return w, s.view(st, created), nil
}

// Withdrawals lists the user's own payout history, newest first.
func (s *MiningService) Withdrawals(ctx context.Context, userID int64, limit int) ([]*domain.Withdrawal, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()

	ws, err := s.withdrawals.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, domain.Upstream("list withdrawals", err)
	}
	return ws, nil
}

func (s *MiningService) PendingWithdrawals(ctx context.Context, limit int) ([]*domain.Withdrawal, error) {
	if limit <= 0 {
		limit = 20
	}
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()

	ws, err := s.withdrawals.ListPending(ctx, limit)
	if err != nil {
		return nil, domain.Upstream("list withdrawals", err)
	}
	return ws, nil
}

// resolve moves a pending withdrawal to status and returns it.
func (s *MiningService) resolve(ctx context.Context, id int64, status domain.WithdrawalStatus, note string) (*domain.Withdrawal, error) {
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()

	ok, err := s.withdrawals.SetStatus(ctx, id, status, note, s.now())
	if err != nil {
		return nil, domain.Upstream("update withdrawal", err)
	}

	w, err := s.withdrawals.Get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrWithdrawalNotFound
	}
	if err != nil {
		return nil, domain.Upstream("load withdrawal", err)
	}
	if !ok {
		return nil, domain.ErrWithdrawalProcessed
	}
	return w, nil
}

// ApproveWithdrawal marks a payout as sent manually.
func (s *MiningService) ApproveWithdrawal(ctx context.Context, id int64) (*domain.Withdrawal, error) {
	w, err := s.resolve(ctx, id, domain.WithdrawalStatusApproved, "")
	if err != nil {
		return nil, err
	}
	s.log.Info("withdrawal approved", "withdrawal_id", id, "user_id", w.UserID)
	s.notify(w.UserID, Notification{
		Kind: NotifyWithdrawal,
		Text: fmt.Sprintf("Withdrawal #%d of %.2f approved.", w.ID, w.Amount),
		Data: map[string]any{"withdrawal_id": w.ID, "status": w.Status},
	})
	return w, nil
}

// RejectWithdrawal refunds the amount to the user's balance. The status
// change and the refund commit together.
func (s *MiningService) RejectWithdrawal(ctx context.Context, id int64, reason string) (*domain.Withdrawal, error) {
	sctx, cancel := s.storeCtx(ctx)
	w, err := s.withdrawals.Get(sctx, id)
	cancel()
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrWithdrawalNotFound
	}
	if err != nil {
		return nil, domain.Upstream("load withdrawal", err)
	}
	if w.Status != domain.WithdrawalStatusPending {
		return nil, domain.ErrWithdrawalProcessed
	}

	_, _, err = s.mutateTx(ctx, w.UserID, func(st *domain.MiningState, _ bool, now time.Time, tx Tx) error {
		ok, err := tx.ResolveWithdrawal(id, domain.WithdrawalStatusRejected, reason, now)
		if err != nil {
			return domain.Upstream("update withdrawal", err)
		}
		if !ok {
			return domain.ErrWithdrawalProcessed
		}
		st.ApplyDelta(domain.Delta{Balance: w.Amount})
		w.Status = domain.WithdrawalStatusRejected
		w.Note = reason
		w.ProcessedAt = &now
		return nil
	})
	if err != nil {
		if domain.KindOf(err) == domain.KindUpstream {
			s.log.Error("withdrawal reject failed", "withdrawal_id", id, "user_id", w.UserID, "error", err)
		}
		return nil, err
	}

	s.record(ctx, w.UserID, domain.TxWithdrawRefund, w.Amount, map[string]interface{}{"withdrawal_id": w.ID, "reason": reason})
	s.log.Info("withdrawal rejected", "withdrawal_id", id, "user_id", w.UserID, "reason", reason)

	text := fmt.Sprintf("Withdrawal #%d rejected, %.2f returned to your balance.", w.ID, w.Amount)
	if reason != "" {
		text += " Reason: " + reason
	}
	s.notify(w.UserID, Notification{
		Kind: NotifyWithdrawal,
		Text: text,
		Data: map[string]any{"withdrawal_id": w.ID, "status": w.Status},
	})
	return w, nil
}
