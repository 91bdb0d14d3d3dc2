package repository

import (
	"context"
	"errors"
	"time"

	"voltfarm/internal/domain"
	"voltfarm/internal/service"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const minerColumns = `user_id, balance, pending_yield, gpu_count, cooling_power, heat, last_observed_at,
	referral_count, group_share_count, completed_task_ids, applied_payment_ids,
	check_in_streak, last_check_in_at, referred_by, created_at, updated_at`

type MinerRepository struct {
	db *pgxpool.Pool
}

func NewMinerRepository(db *pgxpool.Pool) *MinerRepository {
	return &MinerRepository{db: db}
}

func scanMiner(row pgx.Row) (*domain.MiningState, error) {
	var st domain.MiningState
	err := row.Scan(
		&st.UserID, &st.Balance, &st.PendingYield, &st.GPUCount, &st.CoolingPower, &st.Heat, &st.LastObservedAt,
		&st.ReferralCount, &st.GroupShareCount, &st.CompletedTaskIDs, &st.AppliedPaymentIDs,
		&st.CheckInStreak, &st.LastCheckInAt, &st.ReferredBy, &st.CreatedAt, &st.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if st.CompletedTaskIDs == nil {
		st.CompletedTaskIDs = []string{}
	}
	if st.AppliedPaymentIDs == nil {
		st.AppliedPaymentIDs = []string{}
	}
	return &st, nil
}

func (r *MinerRepository) Get(ctx context.Context, userID int64) (*domain.MiningState, error) {
	return scanMiner(r.db.QueryRow(ctx, `SELECT `+minerColumns+` FROM miners WHERE user_id = $1`, userID))
}

// Update runs fn under a row lock in one transaction. The row is created
// with defaults first if missing. Writes fn makes through its Tx share the
// same transaction.
func (r *MinerRepository) Update(ctx context.Context, userID int64, now time.Time, fn service.UpdateFunc) (*domain.MiningState, bool, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	fresh := domain.NewMiningState(userID, now)
	tag, err := tx.Exec(ctx, `
		INSERT INTO miners (user_id, gpu_count, cooling_power, last_observed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4, $4)
		ON CONFLICT (user_id) DO NOTHING
	`, userID, fresh.GPUCount, fresh.CoolingPower, now)
	if err != nil {
		return nil, false, err
	}
	created := tag.RowsAffected() == 1

	st, err := scanMiner(tx.QueryRow(ctx, `SELECT `+minerColumns+` FROM miners WHERE user_id = $1 FOR UPDATE`, userID))
	if err != nil {
		return nil, false, err
	}

	if err := fn(st, created, &pgTx{ctx: ctx, tx: tx}); err != nil {
		return nil, false, err
	}
	st.UpdatedAt = now

	_, err = tx.Exec(ctx, `
		UPDATE miners SET
			balance = $2, pending_yield = $3, gpu_count = $4, cooling_power = $5, heat = $6,
			last_observed_at = $7, referral_count = $8, group_share_count = $9,
			completed_task_ids = $10, applied_payment_ids = $11, check_in_streak = $12,
			last_check_in_at = $13, referred_by = $14, updated_at = $15
		WHERE user_id = $1
	`, st.UserID, st.Balance, st.PendingYield, st.GPUCount, st.CoolingPower, st.Heat,
		st.LastObservedAt, st.ReferralCount, st.GroupShareCount,
		st.CompletedTaskIDs, st.AppliedPaymentIDs, st.CheckInStreak,
		st.LastCheckInAt, st.ReferredBy, st.UpdatedAt)
	if err != nil {
		return nil, false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, err
	}
	return st, created, nil
}

// Increment adds d in a single statement; ErrNotFound if the user is missing.
func (r *MinerRepository) Increment(ctx context.Context, userID int64, d domain.Delta) (*domain.MiningState, error) {
	return incrementMiner(ctx, r.db, userID, d)
}

func incrementMiner(ctx context.Context, q dbtx, userID int64, d domain.Delta) (*domain.MiningState, error) {
	return scanMiner(q.QueryRow(ctx, `
		UPDATE miners SET
			balance = balance + $2,
			referral_count = referral_count + $3,
			group_share_count = group_share_count + $4,
			updated_at = NOW()
		WHERE user_id = $1
		RETURNING `+minerColumns, userID, d.Balance, d.Referrals, d.GroupShares))
}

// pgTx runs staged writes on the transaction of the enclosing Update.
type pgTx struct {
	ctx context.Context
	tx  pgx.Tx
}

func (t *pgTx) CreateWithdrawal(w *domain.Withdrawal) error {
	return insertWithdrawal(t.ctx, t.tx, w)
}

func (t *pgTx) ResolveWithdrawal(id int64, status domain.WithdrawalStatus, note string, at time.Time) (bool, error) {
	return setWithdrawalStatus(t.ctx, t.tx, id, status, note, at)
}

func (t *pgTx) Increment(userID int64, d domain.Delta) error {
	_, err := incrementMiner(t.ctx, t.tx, userID, d)
	return err
}

func (r *MinerRepository) Top(ctx context.Context, limit int) ([]*domain.MiningState, error) {
	rows, err := r.db.Query(ctx, `SELECT `+minerColumns+` FROM miners ORDER BY balance DESC, user_id ASC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*domain.MiningState
	for rows.Next() {
		st, err := scanMiner(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, st)
	}
	return res, rows.Err()
}

func (r *MinerRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM miners`).Scan(&n)
	return n, err
}
