// Package service implements the operator-facing payment lifecycle:
// create, manual verify, void and refund.
package service

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payline/internal/clock"
	customerdomain "github.com/smallbiznis/payline/internal/customer/domain"
	"github.com/smallbiznis/payline/internal/ledger/domain"
	ledgerservice "github.com/smallbiznis/payline/internal/ledger/service"
	"github.com/smallbiznis/payline/internal/payment/gateway"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      domain.Repository
	customers customerdomain.Repository
	ledger    *ledgerservice.Reconciler
	gateway   gateway.Client
}

type ServiceParam struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Repo      domain.Repository
	Customers customerdomain.Repository
	Ledger    *ledgerservice.Reconciler
	Gateway   gateway.Client
}

func NewService(p ServiceParam) *Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("payment.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		customers: p.Customers,
		ledger:    p.Ledger,
		gateway:   p.Gateway,
	}
}

type CreateRequest struct {
	InvoiceID     snowflake.ID `json:"invoice_id"`
	PaymentMethod string       `json:"payment_method"`
	Actor         string       `json:"-"`
}

// Create opens a new charge attempt against an invoice. The gateway call
// happens before any row is written, so a gateway failure leaves no orphan
// payment behind.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*domain.Payment, error) {
	if req.PaymentMethod == "" {
		return nil, domain.ErrInvalidStatus
	}

	invoice, err := s.repo.FindInvoiceByID(ctx, s.db, req.InvoiceID)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, domain.ErrInvoiceNotFound
	}
	if !invoiceChargeable(invoice.Status) {
		return nil, domain.ErrStateConflict
	}

	customer, err := s.customers.FindByID(ctx, s.db, invoice.CustomerID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	id := s.genID.Generate()
	orderID := fmt.Sprintf("PAY-%s-%s", now.Format("20060102"), id.Base36())

	chargeReq := gateway.ChargeRequest{
		OrderID:       orderID,
		Amount:        invoice.Total,
		PaymentMethod: req.PaymentMethod,
	}
	if customer != nil {
		chargeReq.CustomerName = customer.Name
		chargeReq.CustomerEmail = customer.Email
	}

	handles, err := s.gateway.Charge(ctx, chargeReq)
	if err != nil {
		s.log.Error("gateway charge failed",
			zap.String("order_id", orderID),
			zap.Error(err),
		)
		return nil, err
	}

	payment := &domain.Payment{
		ID:            id,
		PaymentCode:   "PAY-" + id.String(),
		OrderID:       orderID,
		InvoiceID:     invoice.ID,
		CustomerID:    invoice.CustomerID,
		PaymentMethod: req.PaymentMethod,
		Amount:        invoice.Total,
		Status:        domain.PaymentStatusPending,
		ExpiryAt:      handles.ExpiryAt,
		Metadata:      map[string]interface{}{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if handles.TransactionID != "" {
		payment.TransactionID = &handles.TransactionID
	}
	if handles.VANumber != "" {
		payment.VANumber = &handles.VANumber
	}
	if handles.QRCodeURL != "" {
		payment.QRCodeURL = &handles.QRCodeURL
	}
	if handles.RedirectURL != "" {
		payment.PaymentURL = &handles.RedirectURL
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Optimistic re-check: another operator may have closed the
		// invoice while the gateway call was in flight.
		current, err := s.repo.FindInvoiceByID(ctx, tx, invoice.ID)
		if err != nil {
			return err
		}
		if current == nil {
			return domain.ErrInvoiceNotFound
		}
		if !invoiceChargeable(current.Status) {
			return domain.ErrStateConflict
		}
		if err := s.repo.InsertPayment(ctx, tx, payment); err != nil {
			return err
		}
		return s.repo.UpdateInvoiceStatus(ctx, tx, invoice.ID, domain.InvoiceStatusPending, now)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("payment created",
		zap.Int64("invoice_id", int64(invoice.ID)),
		zap.String("order_id", orderID),
		zap.String("method", req.PaymentMethod),
		zap.String("actor", req.Actor),
	)
	return payment, nil
}

type VerifyRequest struct {
	PaymentID snowflake.ID         `json:"-"`
	Status    domain.PaymentStatus `json:"status"`
	Notes     string               `json:"notes,omitempty"`
	Actor     string               `json:"-"`
}

// Verify lets an operator settle or fail a pending payment by hand. It
// applies the same invoice cascade as webhook ingestion; the signature check
// is bypassed because this is an authenticated internal action.
func (s *Service) Verify(ctx context.Context, req VerifyRequest) (*domain.Payment, error) {
	switch req.Status {
	case domain.PaymentStatusSettlement, domain.PaymentStatusCapture,
		domain.PaymentStatusDeny, domain.PaymentStatusCancel:
	default:
		return nil, domain.ErrInvalidStatus
	}

	now := s.clock.Now()

	var payment *domain.Payment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		payment, err = s.repo.FindPaymentByID(ctx, tx, req.PaymentID)
		if err != nil {
			return err
		}
		if payment == nil {
			return domain.ErrPaymentNotFound
		}
		if payment.Status != domain.PaymentStatusPending {
			return domain.ErrStateConflict
		}

		payment.Status = req.Status
		payment.VerifiedBy = req.Actor
		payment.VerifiedAt = &now
		if req.Status.Settled() && payment.SettlementAt == nil {
			payment.SettlementAt = &now
		}
		if req.Notes != "" {
			if payment.Metadata == nil {
				payment.Metadata = map[string]interface{}{}
			}
			payment.Metadata["verify_notes"] = req.Notes
		}
		payment.UpdatedAt = now

		if err := s.repo.SavePayment(ctx, tx, payment); err != nil {
			return err
		}
		return s.ledger.CascadeInvoice(ctx, tx, payment, req.Status, now)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("payment verified",
		zap.Int64("payment_id", int64(req.PaymentID)),
		zap.String("status", string(req.Status)),
		zap.String("actor", req.Actor),
	)
	return payment, nil
}

type VoidRequest struct {
	InvoiceID snowflake.ID `json:"-"`
	Reason    string       `json:"reason"`
	Actor     string       `json:"-"`
}

// Void closes an unpaid invoice and cancels every pending payment on it.
func (s *Service) Void(ctx context.Context, req VoidRequest) error {
	if req.Reason == "" {
		return domain.ErrMissingReason
	}

	now := s.clock.Now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.repo.FindInvoiceByID(ctx, tx, req.InvoiceID)
		if err != nil {
			return err
		}
		if invoice == nil {
			return domain.ErrInvoiceNotFound
		}
		switch invoice.Status {
		case domain.InvoiceStatusVoid, domain.InvoiceStatusPaid, domain.InvoiceStatusRefund:
			return domain.ErrStateConflict
		}

		if err := s.repo.VoidInvoice(ctx, tx, invoice.ID, req.Reason, req.Actor, now); err != nil {
			return err
		}
		cancelled, err := s.repo.CancelPendingPayments(ctx, tx, invoice.ID, now)
		if err != nil {
			return err
		}
		s.log.Info("invoice voided",
			zap.Int64("invoice_id", int64(invoice.ID)),
			zap.Int64("payments_cancelled", cancelled),
			zap.String("actor", req.Actor),
		)
		return nil
	})
	return err
}

type RefundRequest struct {
	InvoiceID snowflake.ID `json:"-"`
	Reason    string       `json:"reason"`
	Actor     string       `json:"-"`
}

// Refund reverses a paid invoice through the gateway. A gateway failure
// leaves the invoice paid and untouched.
func (s *Service) Refund(ctx context.Context, req RefundRequest) error {
	if req.Reason == "" {
		return domain.ErrMissingReason
	}

	invoice, err := s.repo.FindInvoiceByID(ctx, s.db, req.InvoiceID)
	if err != nil {
		return err
	}
	if invoice == nil {
		return domain.ErrInvoiceNotFound
	}
	if invoice.Status != domain.InvoiceStatusPaid {
		return domain.ErrStateConflict
	}

	settled, err := s.repo.FindLatestSettledPayment(ctx, s.db, invoice.ID)
	if err != nil {
		return err
	}
	if settled == nil {
		return domain.ErrNoSettledPayment
	}

	if err := s.gateway.Refund(ctx, gateway.RefundRequest{
		OrderID: settled.OrderID,
		Amount:  settled.Amount,
		Reason:  req.Reason,
	}); err != nil {
		s.log.Error("gateway refund failed",
			zap.String("order_id", settled.OrderID),
			zap.Error(err),
		)
		return err
	}

	now := s.clock.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindInvoiceByID(ctx, tx, invoice.ID)
		if err != nil {
			return err
		}
		if current == nil {
			return domain.ErrInvoiceNotFound
		}
		if current.Status != domain.InvoiceStatusPaid {
			return domain.ErrStateConflict
		}

		settled.Status = domain.PaymentStatusRefund
		settled.UpdatedAt = now
		if err := s.repo.SavePayment(ctx, tx, settled); err != nil {
			return err
		}
		return s.repo.RefundInvoice(ctx, tx, invoice.ID, req.Reason, req.Actor, now)
	})
	if err != nil {
		return err
	}

	s.log.Info("invoice refunded",
		zap.Int64("invoice_id", int64(invoice.ID)),
		zap.String("order_id", settled.OrderID),
		zap.String("actor", req.Actor),
	)
	return nil
}

func invoiceChargeable(status domain.InvoiceStatus) bool {
	switch status {
	case domain.InvoiceStatusVoid, domain.InvoiceStatusRefund, domain.InvoiceStatusPaid:
		return false
	default:
		return true
	}
}
