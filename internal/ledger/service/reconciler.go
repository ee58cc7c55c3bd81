package service

import (
	"context"
	"time"

	"github.com/smallbiznis/payline/internal/ledger/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Reconciler applies the invoice-side cascade after a payment status write.
// Webhook ingestion and manual verification both go through it so the two
// paths cannot drift.
type Reconciler struct {
	log  *zap.Logger
	repo domain.Repository
}

type ReconcilerParam struct {
	fx.In

	Log  *zap.Logger
	Repo domain.Repository
}

func NewReconciler(p ReconcilerParam) *Reconciler {
	return &Reconciler{
		log:  p.Log.Named("ledger.reconciler"),
		repo: p.Repo,
	}
}

// CascadeInvoice mutates the invoice to agree with the payment's new status.
// MUST be called inside the same transaction as the payment write; the
// payment row itself is the caller's responsibility.
//
// Rules:
//
//	settlement/capture -> invoice paid (no-op when already paid)
//	deny/cancel/expire -> invoice reopened to issued, unless another
//	                      attempt on it is still live or it is already paid
//	anything else      -> no invoice mutation
func (r *Reconciler) CascadeInvoice(ctx context.Context, tx *gorm.DB, payment *domain.Payment, status domain.PaymentStatus, now time.Time) error {
	switch {
	case status.Settled():
		return r.repo.MarkInvoicePaid(ctx, tx, payment.InvoiceID, now)

	case status.Failed():
		invoice, err := r.repo.FindInvoiceByID(ctx, tx, payment.InvoiceID)
		if err != nil {
			return err
		}
		if invoice == nil {
			return domain.ErrInvoiceNotFound
		}
		if invoice.Status == domain.InvoiceStatusPaid {
			return nil
		}

		live, err := r.repo.CountLivePayments(ctx, tx, payment.InvoiceID, payment.ID)
		if err != nil {
			return err
		}
		if live > 0 {
			r.log.Debug("invoice left open, another attempt is live",
				zap.Int64("invoice_id", int64(payment.InvoiceID)),
				zap.Int64("live_payments", live),
			)
			return nil
		}
		return r.repo.UpdateInvoiceStatus(ctx, tx, payment.InvoiceID, domain.InvoiceStatusIssued, now)

	default:
		return nil
	}
}
