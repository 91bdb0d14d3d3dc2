package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"voltfarm/internal/domain"
	"voltfarm/internal/ledger"

	"github.com/google/uuid"
)

// Offer looks up an upgrade in the catalog.
func (s *MiningService) Offer(id string) (domain.UpgradeOffer, bool) {
	for _, o := range s.opts.Offers {
		if o.ID == id {
			return o, true
		}
	}
	return domain.UpgradeOffer{}, false
}

// CreateInvoice records a purchase intent and asks the provider for a link.
func (s *MiningService) CreateInvoice(ctx context.Context, userID int64, offerID string) (*domain.Invoice, error) {
	if userID <= 0 {
		return nil, domain.Validation("invalid user id")
	}
	offer, ok := s.Offer(offerID)
	if !ok {
		return nil, domain.Validation("unknown offer")
	}

	inv := &domain.Invoice{
		ID:         uuid.NewString(),
		UserID:     userID,
		OfferID:    offer.ID,
		Kind:       offer.Kind,
		Power:      offer.Power,
		PriceStars: offer.PriceStars,
		Status:     domain.InvoiceStatusPending,
		CreatedAt:  s.now(),
	}

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.invoices.Create(sctx, inv); err != nil {
		return nil, domain.Upstream("create invoice", err)
	}

	if s.provider != nil {
		link, err := s.provider.CreateInvoiceLink(ctx, inv, offer.Title)
		if err != nil {
			return nil, domain.Upstream("create invoice link", err)
		}
		inv.Link = link
	}

	s.log.Info("invoice created", "invoice_id", inv.ID, "user_id", userID, "offer_id", offer.ID, "stars", offer.PriceStars)
	return inv, nil
}

// ValidateCheckout answers the provider's pre-checkout question: the invoice
// must be pending, owned by userID and priced at amount.
func (s *MiningService) ValidateCheckout(ctx context.Context, invoiceID string, userID, amount int64) error {
	inv, err := s.loadInvoice(ctx, invoiceID)
	if err != nil {
		return err
	}
	if inv.Status != domain.InvoiceStatusPending {
		return domain.Conflict("invoice is " + string(inv.Status))
	}
	if inv.UserID != userID || inv.PriceStars != amount {
		return domain.ErrInvoiceMismatch
	}
	return nil
}

func (s *MiningService) loadInvoice(ctx context.Context, id string) (*domain.Invoice, error) {
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()

	inv, err := s.invoices.Get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrInvoiceNotFound
	}
	if err != nil {
		return nil, domain.Upstream("load invoice", err)
	}
	return inv, nil
}

// ConfirmPayment applies a confirmed payment at most once per payment id.
// When the event references an invoice the upgrade is taken from it.
func (s *MiningService) ConfirmPayment(ctx context.Context, ev domain.PaymentEvent) (bool, *MinerView, error) {
	if ev.PaymentID == "" {
		return false, nil, domain.Validation("payment id is required")
	}

	var inv *domain.Invoice
	if ev.InvoiceID != "" {
		var err error
		inv, err = s.loadInvoice(ctx, ev.InvoiceID)
		if err != nil {
			return false, nil, err
		}
		if ev.UserID == 0 {
			ev.UserID = inv.UserID
		}
		if inv.UserID != ev.UserID {
			return false, nil, domain.ErrInvoiceMismatch
		}
		if (ev.Kind != "" && ev.Kind != inv.Kind) || (ev.Power != 0 && ev.Power != inv.Power) {
			return false, nil, domain.ErrInvoiceMismatch
		}
		// A replay of the paying event stays idempotent below; any other
		// payment against a paid invoice is refused.
		if inv.Status == domain.InvoiceStatusPaid && inv.PaymentID != ev.PaymentID {
			return false, nil, domain.ErrInvoiceAlreadyPaid
		}
		ev.Kind, ev.Power = inv.Kind, inv.Power
	}

	applied := false
	st, created, err := s.mutate(ctx, ev.UserID, func(st *domain.MiningState, _ bool, _ time.Time) error {
		ok, err := ledger.ApplyPayment(st, ev.PaymentID, ev.Kind, ev.Power, s.opts.CoolingMultiplier)
		applied = ok
		return err
	})
	if err != nil {
		return false, nil, err
	}
	if !applied {
		s.log.Info("duplicate payment ignored", "payment_id", ev.PaymentID, "user_id", ev.UserID)
		return false, s.view(st, created), nil
	}

	if inv != nil {
		sctx, cancel := s.storeCtx(ctx)
		if _, err := s.invoices.MarkPaid(sctx, inv.ID, ev.PaymentID, s.now()); err != nil {
			s.log.Warn("mark invoice paid failed", "invoice_id", inv.ID, "error", err)
		}
		cancel()
	}

	PaymentsApplied.WithLabelValues(string(ev.Kind)).Inc()
	s.record(ctx, ev.UserID, domain.TxUpgrade, 0, map[string]interface{}{
		"payment_id": ev.PaymentID,
		"kind":       string(ev.Kind),
		"power":      ev.Power,
		"stars":      ev.Amount,
	})
	s.log.Info("payment applied", "payment_id", ev.PaymentID, "user_id", ev.UserID, "kind", ev.Kind, "power", ev.Power)
	s.notify(ev.UserID, Notification{
		Kind: NotifyPurchase,
		Text: fmt.Sprintf("Upgrade applied: %s +%d", ev.Kind, ev.Power),
		Data: map[string]any{"kind": ev.Kind, "power": ev.Power},
	})
	return true, s.view(st, created), nil
}

// ExpireInvoices marks pending invoices older than the invoice TTL as expired.
func (s *MiningService) ExpireInvoices(ctx context.Context) (int64, error) {
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()

	n, err := s.invoices.ExpireBefore(ctx, s.now().Add(-s.opts.InvoiceTTL))
	if err != nil {
		return 0, domain.Upstream("expire invoices", err)
	}
	return n, nil
}
