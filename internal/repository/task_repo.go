package repository

import (
	"context"
	"errors"

	"voltfarm/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const taskColumns = `id, title, reward, link, kind, active, sort_order, created_at`

type TaskRepository struct {
	db *pgxpool.Pool
}

func NewTaskRepository(db *pgxpool.Pool) *TaskRepository {
	return &TaskRepository{db: db}
}

func scanTask(row pgx.Row) (*domain.Task, error) {
	var t domain.Task
	err := row.Scan(&t.ID, &t.Title, &t.Reward, &t.Link, &t.Kind, &t.Active, &t.SortOrder, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *TaskRepository) List(ctx context.Context, activeOnly bool) ([]*domain.Task, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+taskColumns+` FROM tasks
		WHERE active OR NOT $1
		ORDER BY sort_order ASC, created_at ASC
	`, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r *TaskRepository) Get(ctx context.Context, id string) (*domain.Task, error) {
	return scanTask(r.db.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id))
}

func (r *TaskRepository) Create(ctx context.Context, t *domain.Task) error {
	return r.db.QueryRow(ctx, `
		INSERT INTO tasks (id, title, reward, link, kind, active, sort_order)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, t.ID, t.Title, t.Reward, t.Link, t.Kind, t.Active, t.SortOrder).Scan(&t.CreatedAt)
}

func (r *TaskRepository) Update(ctx context.Context, t *domain.Task) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE tasks SET title = $2, reward = $3, link = $4, kind = $5, active = $6, sort_order = $7
		WHERE id = $1
	`, t.ID, t.Title, t.Reward, t.Link, t.Kind, t.Active, t.SortOrder)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *TaskRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
