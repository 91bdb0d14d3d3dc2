package service

import (
	"context"
	"time"

	"voltfarm/internal/domain"
)

// Tx stages writes to other records that commit or roll back together with
// the state update it was handed to.
type Tx interface {
	// CreateWithdrawal files w; w.ID is set once the insert runs.
	CreateWithdrawal(w *domain.Withdrawal) error
	// ResolveWithdrawal moves a pending withdrawal to status; false if it
	// was not pending.
	ResolveWithdrawal(id int64, status domain.WithdrawalStatus, note string, at time.Time) (bool, error)
	// Increment adds d to another existing user; domain.ErrNotFound if the
	// user is missing.
	Increment(userID int64, d domain.Delta) error
}

// UpdateFunc mutates a locked state. created is true when the record was
// inserted by this call. Returning an error discards every change, including
// the ones staged on tx.
type UpdateFunc func(st *domain.MiningState, created bool, tx Tx) error

// StateStore persists mining states keyed by Telegram user id.
type StateStore interface {
	// Get returns domain.ErrNotFound for unknown users.
	Get(ctx context.Context, userID int64) (*domain.MiningState, error)
	// Update loads or creates the record, runs fn while the record is locked
	// and persists the result atomically.
	Update(ctx context.Context, userID int64, now time.Time, fn UpdateFunc) (*domain.MiningState, bool, error)
	// Increment atomically adds d to an existing record's counters.
	Increment(ctx context.Context, userID int64, d domain.Delta) (*domain.MiningState, error)
	// Top lists states ordered by balance.
	Top(ctx context.Context, limit int) ([]*domain.MiningState, error)
	Count(ctx context.Context) (int64, error)
}

type TaskStore interface {
	List(ctx context.Context, activeOnly bool) ([]*domain.Task, error)
	Get(ctx context.Context, id string) (*domain.Task, error)
	Create(ctx context.Context, t *domain.Task) error
	Update(ctx context.Context, t *domain.Task) error
	Delete(ctx context.Context, id string) error
}

type InvoiceStore interface {
	Create(ctx context.Context, inv *domain.Invoice) error
	Get(ctx context.Context, id string) (*domain.Invoice, error)
	// MarkPaid moves a pending invoice to paid; it returns false if the
	// invoice was not pending.
	MarkPaid(ctx context.Context, id, paymentID string, at time.Time) (bool, error)
	// ExpireBefore marks pending invoices created before t as expired.
	ExpireBefore(ctx context.Context, t time.Time) (int64, error)
}

type WithdrawalStore interface {
	Create(ctx context.Context, w *domain.Withdrawal) error
	Get(ctx context.Context, id int64) (*domain.Withdrawal, error)
	ListByUser(ctx context.Context, userID int64, limit int) ([]*domain.Withdrawal, error)
	ListPending(ctx context.Context, limit int) ([]*domain.Withdrawal, error)
	CountPending(ctx context.Context) (int64, error)
	// SetStatus resolves a pending withdrawal; false if it was not pending.
	SetStatus(ctx context.Context, id int64, status domain.WithdrawalStatus, note string, at time.Time) (bool, error)
}

type TransactionStore interface {
	Create(ctx context.Context, tx *domain.Transaction) error
	GetByUserID(ctx context.Context, userID int64, limit int) ([]*domain.Transaction, error)
}

// InvoiceProvider turns an invoice into a payment link the client can open.
type InvoiceProvider interface {
	CreateInvoiceLink(ctx context.Context, inv *domain.Invoice, title string) (string, error)
}
