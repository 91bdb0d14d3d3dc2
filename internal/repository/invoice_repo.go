package repository

import (
	"context"
	"errors"
	"time"

	"voltfarm/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type InvoiceRepository struct {
	db *pgxpool.Pool
}

func NewInvoiceRepository(db *pgxpool.Pool) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

func (r *InvoiceRepository) Create(ctx context.Context, inv *domain.Invoice) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO invoices (id, user_id, offer_id, kind, power, price_stars, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, inv.ID, inv.UserID, inv.OfferID, inv.Kind, inv.Power, inv.PriceStars, inv.Status, inv.CreatedAt)
	return err
}

func (r *InvoiceRepository) Get(ctx context.Context, id string) (*domain.Invoice, error) {
	var inv domain.Invoice
	err := r.db.QueryRow(ctx, `
		SELECT id, user_id, offer_id, kind, power, price_stars, status,
		       COALESCE(payment_id, ''), created_at, paid_at
		FROM invoices
		WHERE id = $1
	`, id).Scan(&inv.ID, &inv.UserID, &inv.OfferID, &inv.Kind, &inv.Power, &inv.PriceStars, &inv.Status,
		&inv.PaymentID, &inv.CreatedAt, &inv.PaidAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// MarkPaid accepts expired invoices too: the provider already charged the user.
func (r *InvoiceRepository) MarkPaid(ctx context.Context, id, paymentID string, at time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE invoices SET status = 'paid', payment_id = $2, paid_at = $3
		WHERE id = $1 AND status <> 'paid'
	`, id, paymentID, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *InvoiceRepository) ExpireBefore(ctx context.Context, t time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE invoices SET status = 'expired'
		WHERE status = 'pending' AND created_at < $1
	`, t)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
