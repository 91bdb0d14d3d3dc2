package service

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"voltfarm/internal/domain"
	"voltfarm/internal/ledger"

	"github.com/gosimple/slug"
)

// TaskView is a catalog task with the caller's completion flag.
type TaskView struct {
	*domain.Task
	Completed bool `json:"completed"`
}

func (s *MiningService) activeTask(ctx context.Context, id string) (*domain.Task, error) {
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()

	t, err := s.tasks.Get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrTaskNotFound
	}
	if err != nil {
		return nil, domain.Upstream("load task", err)
	}
	if !t.Active {
		return nil, domain.ErrTaskInactive
	}
	return t, nil
}

func grantTask(st *domain.MiningState, t *domain.Task) error {
	if err := ledger.CompleteTask(st, t.ID, t.Reward); err != nil {
		return err
	}
	if t.Kind == domain.TaskKindGroupShare {
		ledger.RecordGroupShare(st)
	}
	return nil
}

// ListTasks returns the active catalog with completion flags for userID.
func (s *MiningService) ListTasks(ctx context.Context, userID int64) ([]TaskView, error) {
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()

	tasks, err := s.tasks.List(ctx, true)
	if err != nil {
		return nil, domain.Upstream("list tasks", err)
	}

	var st *domain.MiningState
	if userID > 0 {
		st, err = s.states.Get(ctx, userID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return nil, domain.Upstream("load miner", err)
		}
	}

	out := make([]TaskView, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, TaskView{Task: t, Completed: st != nil && st.HasCompleted(t.ID)})
	}
	return out, nil
}

// CompleteTask grants the task reward once. Repeats are a conflict.
func (s *MiningService) CompleteTask(ctx context.Context, userID int64, taskID string) (float64, *MinerView, error) {
	t, err := s.activeTask(ctx, taskID)
	if err != nil {
		return 0, nil, err
	}

	st, created, err := s.mutate(ctx, userID, func(st *domain.MiningState, _ bool, _ time.Time) error {
		return grantTask(st, t)
	})
	if err != nil {
		return 0, nil, err
	}

	GrantsTotal.WithLabelValues(domain.TxTaskReward).Inc()
	s.record(ctx, userID, domain.TxTaskReward, t.Reward, map[string]interface{}{"task_id": t.ID, "kind": string(t.Kind)})
	return t.Reward, s.view(st, created), nil
}

// TaskInput is an admin create or update request.
type TaskInput struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Reward    float64         `json:"reward"`
	Link      string          `json:"link"`
	Kind      domain.TaskKind `json:"kind"`
	Active    *bool           `json:"active"`
	SortOrder int             `json:"sort_order"`
}

func (in TaskInput) validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return domain.Validation("title is required")
	}
	if in.Reward < 0 || math.IsNaN(in.Reward) || math.IsInf(in.Reward, 0) {
		return domain.Validation("reward must be a non-negative number")
	}
	if in.Kind != "" && !in.Kind.Valid() {
		return domain.Validation("unknown task kind")
	}
	return nil
}

func (in TaskInput) apply(t *domain.Task) {
	t.Title = strings.TrimSpace(in.Title)
	t.Reward = in.Reward
	t.Link = in.Link
	t.Kind = in.Kind
	if t.Kind == "" {
		t.Kind = domain.TaskKindGeneric
	}
	if in.Active != nil {
		t.Active = *in.Active
	}
	t.SortOrder = in.SortOrder
}

// AllTasks lists the whole catalog, inactive tasks included.
func (s *MiningService) AllTasks(ctx context.Context) ([]*domain.Task, error) {
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()

	tasks, err := s.tasks.List(ctx, false)
	if err != nil {
		return nil, domain.Upstream("list tasks", err)
	}
	return tasks, nil
}

// CreateTask adds a task. The id is derived from the title when empty.
func (s *MiningService) CreateTask(ctx context.Context, in TaskInput) (*domain.Task, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	id := in.ID
	if id == "" {
		id = slug.Make(in.Title)
	}
	if id == "" {
		return nil, domain.Validation("task id is required")
	}

	t := &domain.Task{ID: id, Active: true, CreatedAt: s.now()}
	in.apply(t)

	ctx, cancel := s.storeCtx(ctx)
	defer cancel()

	if _, err := s.tasks.Get(ctx, id); err == nil {
		return nil, domain.Conflict("task id already exists")
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, domain.Upstream("load task", err)
	}
	if err := s.tasks.Create(ctx, t); err != nil {
		return nil, domain.Upstream("create task", err)
	}
	s.log.Info("task created", "task_id", t.ID, "reward", t.Reward)
	return t, nil
}

func (s *MiningService) UpdateTask(ctx context.Context, id string, in TaskInput) (*domain.Task, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()

	t, err := s.tasks.Get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrTaskNotFound
	}
	if err != nil {
		return nil, domain.Upstream("load task", err)
	}
	in.apply(t)
	if err := s.tasks.Update(ctx, t); err != nil {
		return nil, domain.Upstream("update task", err)
	}
	return t, nil
}

// DeleteTask removes a task from the catalog. Completed ids stay on the states.
func (s *MiningService) DeleteTask(ctx context.Context, id string) error {
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()

	err := s.tasks.Delete(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.ErrTaskNotFound
	}
	if err != nil {
		return domain.Upstream("delete task", err)
	}
	s.log.Info("task deleted", "task_id", id)
	return nil
}
