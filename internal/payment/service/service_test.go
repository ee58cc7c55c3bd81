package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/payline/internal/clock"
	customerdomain "github.com/smallbiznis/payline/internal/customer/domain"
	customerrepository "github.com/smallbiznis/payline/internal/customer/repository"
	"github.com/smallbiznis/payline/internal/ledger/domain"
	"github.com/smallbiznis/payline/internal/ledger/repository"
	ledgerservice "github.com/smallbiznis/payline/internal/ledger/service"
	"github.com/smallbiznis/payline/internal/payment/gateway"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) Charge(ctx context.Context, req gateway.ChargeRequest) (*gateway.ChargeResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.ChargeResponse), args.Error(1)
}

func (m *mockGateway) Refund(ctx context.Context, req gateway.RefundRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

type testEnv struct {
	svc     *Service
	db      *gorm.DB
	node    *snowflake.Node
	clock   *clock.FakeClock
	repo    domain.Repository
	gateway *mockGateway
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&domain.Invoice{},
		&domain.Payment{},
		&customerdomain.Customer{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	fakeClock := clock.NewFakeClock(time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC))
	repo := repository.Provide()
	gw := &mockGateway{}

	svc := NewService(ServiceParam{
		DB:        db,
		Log:       zap.NewNop(),
		GenID:     node,
		Clock:     fakeClock,
		Repo:      repo,
		Customers: customerrepository.Provide(),
		Ledger: ledgerservice.NewReconciler(ledgerservice.ReconcilerParam{
			Log:  zap.NewNop(),
			Repo: repo,
		}),
		Gateway: gw,
	})

	return &testEnv{svc: svc, db: db, node: node, clock: fakeClock, repo: repo, gateway: gw}
}

func (e *testEnv) seedCustomer(t *testing.T) *customerdomain.Customer {
	t.Helper()
	customer := &customerdomain.Customer{
		ID:     e.node.Generate(),
		Name:   "Budi Santoso",
		Email:  "budi@example.com",
		Phone:  "+628123456789",
		Active: true,
	}
	require.NoError(t, e.db.Create(customer).Error)
	return customer
}

func (e *testEnv) seedInvoice(t *testing.T, customerID snowflake.ID, status domain.InvoiceStatus) *domain.Invoice {
	t.Helper()
	invoice := &domain.Invoice{
		ID:            e.node.Generate(),
		InvoiceNumber: fmt.Sprintf("INV-%d", e.node.Generate()),
		OrderID:       fmt.Sprintf("ORD-%d", e.node.Generate()),
		CustomerID:    customerID,
		Total:         150000,
		Status:        status,
		Active:        true,
		CreatedAt:     e.clock.Now(),
		UpdatedAt:     e.clock.Now(),
	}
	require.NoError(t, e.db.Create(invoice).Error)
	return invoice
}

func (e *testEnv) seedPayment(t *testing.T, invoice *domain.Invoice, status domain.PaymentStatus) *domain.Payment {
	t.Helper()
	id := e.node.Generate()
	payment := &domain.Payment{
		ID:            id,
		PaymentCode:   "PAY-" + id.String(),
		OrderID:       fmt.Sprintf("PAY-20250101-%d", id),
		InvoiceID:     invoice.ID,
		CustomerID:    invoice.CustomerID,
		PaymentMethod: "bca",
		Amount:        invoice.Total,
		Status:        status,
		Metadata:      map[string]interface{}{},
		CreatedAt:     e.clock.Now(),
		UpdatedAt:     e.clock.Now(),
	}
	if status.Settled() {
		settledAt := e.clock.Now()
		payment.SettlementAt = &settledAt
	}
	require.NoError(t, e.db.Create(payment).Error)
	return payment
}

func TestCreate_IssuesChargeAndMarksInvoicePending(t *testing.T) {
	e := setupEnv(t)
	customer := e.seedCustomer(t)
	invoice := e.seedInvoice(t, customer.ID, domain.InvoiceStatusIssued)

	e.gateway.On("Charge", mock.Anything, mock.MatchedBy(func(req gateway.ChargeRequest) bool {
		return req.Amount == invoice.Total && req.CustomerEmail == customer.Email
	})).Return(&gateway.ChargeResponse{
		TransactionID: "mid-777",
		VANumber:      "8808123456789",
	}, nil)

	payment, err := e.svc.Create(context.Background(), CreateRequest{
		InvoiceID:     invoice.ID,
		PaymentMethod: "bca",
		Actor:         "ops@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPending, payment.Status)
	require.NotNil(t, payment.VANumber)
	assert.Equal(t, "8808123456789", *payment.VANumber)

	inv, err := e.repo.FindInvoiceByID(context.Background(), e.db, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusPending, inv.Status)
	e.gateway.AssertExpectations(t)
}

func TestCreate_GatewayFailureLeavesNoOrphan(t *testing.T) {
	e := setupEnv(t)
	customer := e.seedCustomer(t)
	invoice := e.seedInvoice(t, customer.ID, domain.InvoiceStatusIssued)

	e.gateway.On("Charge", mock.Anything, mock.Anything).
		Return(nil, fmt.Errorf("%w: connection timed out", gateway.ErrGatewayFailed))

	_, err := e.svc.Create(context.Background(), CreateRequest{
		InvoiceID:     invoice.ID,
		PaymentMethod: "qris",
		Actor:         "ops@example.com",
	})
	assert.ErrorIs(t, err, gateway.ErrGatewayFailed)

	var paymentCount int64
	require.NoError(t, e.db.Model(&domain.Payment{}).Count(&paymentCount).Error)
	assert.Equal(t, int64(0), paymentCount)

	inv, err := e.repo.FindInvoiceByID(context.Background(), e.db, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusIssued, inv.Status)
}

func TestCreate_RejectedOnClosedInvoice(t *testing.T) {
	e := setupEnv(t)
	customer := e.seedCustomer(t)

	for _, status := range []domain.InvoiceStatus{
		domain.InvoiceStatusPaid,
		domain.InvoiceStatusVoid,
		domain.InvoiceStatusRefund,
	} {
		invoice := e.seedInvoice(t, customer.ID, status)
		_, err := e.svc.Create(context.Background(), CreateRequest{
			InvoiceID:     invoice.ID,
			PaymentMethod: "bca",
			Actor:         "ops@example.com",
		})
		assert.ErrorIs(t, err, domain.ErrStateConflict, "status %s", status)
	}
}

func TestVerify_SettlementCascadesToInvoice(t *testing.T) {
	e := setupEnv(t)
	customer := e.seedCustomer(t)
	invoice := e.seedInvoice(t, customer.ID, domain.InvoiceStatusPending)
	payment := e.seedPayment(t, invoice, domain.PaymentStatusPending)

	verified, err := e.svc.Verify(context.Background(), VerifyRequest{
		PaymentID: payment.ID,
		Status:    domain.PaymentStatusSettlement,
		Notes:     "bank statement checked",
		Actor:     "ops@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusSettlement, verified.Status)
	assert.Equal(t, "ops@example.com", verified.VerifiedBy)
	require.NotNil(t, verified.VerifiedAt)
	require.NotNil(t, verified.SettlementAt)

	inv, err := e.repo.FindInvoiceByID(context.Background(), e.db, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusPaid, inv.Status)
}

func TestVerify_RejectsNonPendingPayment(t *testing.T) {
	e := setupEnv(t)
	customer := e.seedCustomer(t)
	invoice := e.seedInvoice(t, customer.ID, domain.InvoiceStatusPaid)
	payment := e.seedPayment(t, invoice, domain.PaymentStatusSettlement)

	_, err := e.svc.Verify(context.Background(), VerifyRequest{
		PaymentID: payment.ID,
		Status:    domain.PaymentStatusSettlement,
		Actor:     "ops@example.com",
	})
	assert.ErrorIs(t, err, domain.ErrStateConflict)
}

func TestVerify_RejectsNonTerminalStatus(t *testing.T) {
	e := setupEnv(t)
	customer := e.seedCustomer(t)
	invoice := e.seedInvoice(t, customer.ID, domain.InvoiceStatusPending)
	payment := e.seedPayment(t, invoice, domain.PaymentStatusPending)

	_, err := e.svc.Verify(context.Background(), VerifyRequest{
		PaymentID: payment.ID,
		Status:    domain.PaymentStatusChallenge,
		Actor:     "ops@example.com",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)
}

func TestVoid_CancelsPendingPayments(t *testing.T) {
	e := setupEnv(t)
	customer := e.seedCustomer(t)
	invoice := e.seedInvoice(t, customer.ID, domain.InvoiceStatusIssued)
	pending := e.seedPayment(t, invoice, domain.PaymentStatusPending)

	err := e.svc.Void(context.Background(), VoidRequest{
		InvoiceID: invoice.ID,
		Reason:    "customer cancelled the order",
		Actor:     "ops@example.com",
	})
	require.NoError(t, err)

	inv, err := e.repo.FindInvoiceByID(context.Background(), e.db, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusVoid, inv.Status)
	assert.Equal(t, "ops@example.com", inv.VoidedBy)
	require.NotNil(t, inv.VoidedAt)

	got, err := e.repo.FindPaymentByID(context.Background(), e.db, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusCancel, got.Status)
}

func TestVoid_RejectedOnPaidInvoice(t *testing.T) {
	e := setupEnv(t)
	customer := e.seedCustomer(t)
	invoice := e.seedInvoice(t, customer.ID, domain.InvoiceStatusPaid)

	err := e.svc.Void(context.Background(), VoidRequest{
		InvoiceID: invoice.ID,
		Reason:    "mistake",
		Actor:     "ops@example.com",
	})
	assert.ErrorIs(t, err, domain.ErrStateConflict)

	inv, findErr := e.repo.FindInvoiceByID(context.Background(), e.db, invoice.ID)
	require.NoError(t, findErr)
	assert.Equal(t, domain.InvoiceStatusPaid, inv.Status)
}

func TestVoid_RequiresReason(t *testing.T) {
	e := setupEnv(t)
	customer := e.seedCustomer(t)
	invoice := e.seedInvoice(t, customer.ID, domain.InvoiceStatusIssued)

	err := e.svc.Void(context.Background(), VoidRequest{
		InvoiceID: invoice.ID,
		Actor:     "ops@example.com",
	})
	assert.ErrorIs(t, err, domain.ErrMissingReason)
}

func TestRefund_HappyPath(t *testing.T) {
	e := setupEnv(t)
	customer := e.seedCustomer(t)
	invoice := e.seedInvoice(t, customer.ID, domain.InvoiceStatusPaid)
	settled := e.seedPayment(t, invoice, domain.PaymentStatusSettlement)

	e.gateway.On("Refund", mock.Anything, mock.MatchedBy(func(req gateway.RefundRequest) bool {
		return req.OrderID == settled.OrderID && req.Amount == settled.Amount
	})).Return(nil)

	err := e.svc.Refund(context.Background(), RefundRequest{
		InvoiceID: invoice.ID,
		Reason:    "double charge",
		Actor:     "ops@example.com",
	})
	require.NoError(t, err)

	inv, err := e.repo.FindInvoiceByID(context.Background(), e.db, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusRefund, inv.Status)
	assert.Equal(t, "double charge", inv.RefundReason)
	require.NotNil(t, inv.RefundedAt)

	got, err := e.repo.FindPaymentByID(context.Background(), e.db, settled.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusRefund, got.Status)
	e.gateway.AssertExpectations(t)
}

func TestRefund_RejectedWhenNotPaid(t *testing.T) {
	e := setupEnv(t)
	customer := e.seedCustomer(t)
	invoice := e.seedInvoice(t, customer.ID, domain.InvoiceStatusIssued)

	err := e.svc.Refund(context.Background(), RefundRequest{
		InvoiceID: invoice.ID,
		Reason:    "refund please",
		Actor:     "ops@example.com",
	})
	assert.ErrorIs(t, err, domain.ErrStateConflict)
}

func TestRefund_RejectedWithoutSettledPayment(t *testing.T) {
	e := setupEnv(t)
	customer := e.seedCustomer(t)
	invoice := e.seedInvoice(t, customer.ID, domain.InvoiceStatusPaid)

	err := e.svc.Refund(context.Background(), RefundRequest{
		InvoiceID: invoice.ID,
		Reason:    "refund please",
		Actor:     "ops@example.com",
	})
	assert.ErrorIs(t, err, domain.ErrNoSettledPayment)
}

func TestRefund_GatewayFailureLeavesInvoicePaid(t *testing.T) {
	e := setupEnv(t)
	customer := e.seedCustomer(t)
	invoice := e.seedInvoice(t, customer.ID, domain.InvoiceStatusPaid)
	settled := e.seedPayment(t, invoice, domain.PaymentStatusSettlement)

	e.gateway.On("Refund", mock.Anything, mock.Anything).
		Return(fmt.Errorf("%w: status 500", gateway.ErrGatewayFailed))

	err := e.svc.Refund(context.Background(), RefundRequest{
		InvoiceID: invoice.ID,
		Reason:    "refund please",
		Actor:     "ops@example.com",
	})
	assert.ErrorIs(t, err, gateway.ErrGatewayFailed)

	inv, findErr := e.repo.FindInvoiceByID(context.Background(), e.db, invoice.ID)
	require.NoError(t, findErr)
	assert.Equal(t, domain.InvoiceStatusPaid, inv.Status)

	got, findErr := e.repo.FindPaymentByID(context.Background(), e.db, settled.ID)
	require.NoError(t, findErr)
	assert.Equal(t, domain.PaymentStatusSettlement, got.Status)
}
