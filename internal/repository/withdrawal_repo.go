package repository

import (
	"context"
	"errors"
	"time"

	"voltfarm/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const withdrawalColumns = `id, user_id, amount, status, note, created_at, processed_at`

type WithdrawalRepository struct {
	db *pgxpool.Pool
}

func NewWithdrawalRepository(db *pgxpool.Pool) *WithdrawalRepository {
	return &WithdrawalRepository{db: db}
}

// Create creates a new withdrawal request
func (r *WithdrawalRepository) Create(ctx context.Context, w *domain.Withdrawal) error {
	return insertWithdrawal(ctx, r.db, w)
}

func insertWithdrawal(ctx context.Context, q dbtx, w *domain.Withdrawal) error {
	return q.QueryRow(ctx, `
		INSERT INTO withdrawals (user_id, amount, status, note, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, w.UserID, w.Amount, w.Status, w.Note, w.CreatedAt).Scan(&w.ID)
}

// Get retrieves withdrawal by ID
func (r *WithdrawalRepository) Get(ctx context.Context, id int64) (*domain.Withdrawal, error) {
	w, err := scanWithdrawal(r.db.QueryRow(ctx, `SELECT `+withdrawalColumns+` FROM withdrawals WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return w, err
}

func (r *WithdrawalRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]*domain.Withdrawal, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+withdrawalColumns+` FROM withdrawals
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanWithdrawals(rows)
}

// ListPending returns the oldest pending withdrawals first
func (r *WithdrawalRepository) ListPending(ctx context.Context, limit int) ([]*domain.Withdrawal, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+withdrawalColumns+` FROM withdrawals
		WHERE status = 'pending'
		ORDER BY created_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanWithdrawals(rows)
}

func (r *WithdrawalRepository) CountPending(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM withdrawals WHERE status = 'pending'`).Scan(&n)
	return n, err
}

func (r *WithdrawalRepository) SetStatus(ctx context.Context, id int64, status domain.WithdrawalStatus, note string, at time.Time) (bool, error) {
	return setWithdrawalStatus(ctx, r.db, id, status, note, at)
}

func setWithdrawalStatus(ctx context.Context, q dbtx, id int64, status domain.WithdrawalStatus, note string, at time.Time) (bool, error) {
	tag, err := q.Exec(ctx, `
		UPDATE withdrawals SET status = $2, note = $3, processed_at = $4
		WHERE id = $1 AND status = 'pending'
	`, id, status, note, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func scanWithdrawal(row pgx.Row) (*domain.Withdrawal, error) {
	var w domain.Withdrawal
	if err := row.Scan(&w.ID, &w.UserID, &w.Amount, &w.Status, &w.Note, &w.CreatedAt, &w.ProcessedAt); err != nil {
		return nil, err
	}
	return &w, nil
}

func scanWithdrawals(rows pgx.Rows) ([]*domain.Withdrawal, error) {
	var res []*domain.Withdrawal
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, w)
	}
	return res, rows.Err()
}
