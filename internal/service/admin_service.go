package service

import (
	"context"

	"voltfarm/internal/domain"
)

// Stats represents platform statistics
type Stats struct {
	TotalMiners      int64 `json:"total_miners"`
	PendingWithdraws int64 `json:"pending_withdraws"`
	ActiveTasks      int   `json:"active_tasks"`
}

// Stats returns platform statistics for the admin bot.
func (s *MiningService) Stats(ctx context.Context) (*Stats, error) {
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()

	stats := &Stats{}
	var err error
	if stats.TotalMiners, err = s.states.Count(ctx); err != nil {
		return nil, domain.Upstream("count miners", err)
	}
	if stats.PendingWithdraws, err = s.withdrawals.CountPending(ctx); err != nil {
		return nil, domain.Upstream("count withdrawals", err)
	}
	tasks, err := s.tasks.List(ctx, true)
	if err != nil {
		return nil, domain.Upstream("list tasks", err)
	}
	stats.ActiveTasks = len(tasks)
	return stats, nil
}

// History returns the user's recent ledger records.
func (s *MiningService) History(ctx context.Context, userID int64, limit int) ([]*domain.Transaction, error) {
	if s.transactions == nil {
		return nil, nil
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()

	txs, err := s.transactions.GetByUserID(ctx, userID, limit)
	if err != nil {
		return nil, domain.Upstream("list transactions", err)
	}
	return txs, nil
}
