package notification

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/payline/internal/clock"
	"github.com/smallbiznis/payline/internal/config"
	customerdomain "github.com/smallbiznis/payline/internal/customer/domain"
	customerrepository "github.com/smallbiznis/payline/internal/customer/repository"
	"github.com/smallbiznis/payline/internal/ledger/domain"
	"github.com/smallbiznis/payline/internal/ledger/repository"
	"github.com/smallbiznis/payline/internal/observability/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type sentMail struct {
	To      string
	Subject string
	Body    string
}

type fakeEmail struct {
	sent    []sentMail
	failErr error
}

func (f *fakeEmail) Send(ctx context.Context, to, subject, body string) error {
	if f.failErr != nil {
		return f.failErr
	}
	f.sent = append(f.sent, sentMail{To: to, Subject: subject, Body: body})
	return nil
}

type fakeMessaging struct {
	sent    int
	failErr error
}

func (f *fakeMessaging) Send(ctx context.Context, recipient, message string) error {
	if f.failErr != nil {
		return f.failErr
	}
	f.sent++
	return nil
}

type testEnv struct {
	dispatcher *Dispatcher
	db         *gorm.DB
	node       *snowflake.Node
	clock      *clock.FakeClock
	email      *fakeEmail
	messaging  *fakeMessaging
	repo       domain.Repository
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&domain.Invoice{},
		&domain.NotificationLog{},
		&customerdomain.Customer{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	fakeClock := clock.NewFakeClock(time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC))
	mail := &fakeEmail{}
	chat := &fakeMessaging{}
	repo := repository.Provide()

	dispatcher := NewDispatcher(DispatcherParam{
		DB:        db,
		Log:       zap.NewNop(),
		GenID:     node,
		Clock:     fakeClock,
		Repo:      repo,
		Customers: customerrepository.Provide(),
		Email:     mail,
		Messaging: chat,
		Metrics:   metrics.NewWithRegisterer(prometheus.NewRegistry(), config.Config{}),
	})

	return &testEnv{
		dispatcher: dispatcher,
		db:         db,
		node:       node,
		clock:      fakeClock,
		email:      mail,
		messaging:  chat,
		repo:       repo,
	}
}

func (e *testEnv) seedCustomer(t *testing.T) *customerdomain.Customer {
	t.Helper()
	customer := &customerdomain.Customer{
		ID:     e.node.Generate(),
		Name:   "Siti Rahma",
		Email:  "siti@example.com",
		Phone:  "+628111222333",
		Active: true,
	}
	require.NoError(t, e.db.Create(customer).Error)
	return customer
}

func (e *testEnv) seedInvoice(t *testing.T, customerID snowflake.ID) domain.Invoice {
	t.Helper()
	due := e.clock.Now().AddDate(0, 0, 3)
	invoice := domain.Invoice{
		ID:            e.node.Generate(),
		InvoiceNumber: fmt.Sprintf("INV-%d", e.node.Generate()),
		OrderID:       fmt.Sprintf("ORD-%d", e.node.Generate()),
		CustomerID:    customerID,
		Total:         250000,
		Status:        domain.InvoiceStatusIssued,
		DueDate:       &due,
		Active:        true,
	}
	require.NoError(t, e.db.Create(&invoice).Error)
	return invoice
}

func TestSendDunning_DeliversAndMarksSent(t *testing.T) {
	e := setupEnv(t)
	customer := e.seedCustomer(t)
	invoice := e.seedInvoice(t, customer.ID)

	created, err := e.dispatcher.SendDunning(context.Background(), invoice, "T-3")
	require.NoError(t, err)
	assert.True(t, created)

	require.Len(t, e.email.sent, 1)
	assert.Equal(t, customer.Email, e.email.sent[0].To)
	assert.Contains(t, e.email.sent[0].Body, invoice.InvoiceNumber)
	assert.Contains(t, e.email.sent[0].Body, "Rp 250.000")
	assert.Equal(t, 1, e.messaging.sent)

	var log domain.NotificationLog
	require.NoError(t, e.db.First(&log).Error)
	assert.Equal(t, domain.NotificationStatusSent, log.Status)
	assert.Equal(t, "T-3", log.Stage)
	assert.Equal(t, domain.EntityKindInvoice, log.NotifiableType)
	assert.Equal(t, invoice.ID, log.NotifiableID)
	require.NotNil(t, log.SentAt)
}

func TestSendDunning_PrimaryFailureIsFatal(t *testing.T) {
	e := setupEnv(t)
	customer := e.seedCustomer(t)
	invoice := e.seedInvoice(t, customer.ID)
	e.email.failErr = errors.New("smtp: connection refused")

	created, err := e.dispatcher.SendDunning(context.Background(), invoice, "T-3")
	assert.Error(t, err)
	assert.True(t, created)

	var log domain.NotificationLog
	require.NoError(t, e.db.First(&log).Error)
	assert.Equal(t, domain.NotificationStatusFailed, log.Status)
	assert.Contains(t, log.ErrorMessage, "connection refused")
	assert.Nil(t, log.SentAt)
}

func TestSendDunning_SecondaryFailureIsSwallowed(t *testing.T) {
	e := setupEnv(t)
	customer := e.seedCustomer(t)
	invoice := e.seedInvoice(t, customer.ID)
	e.messaging.failErr = errors.New("webhook unreachable")

	created, err := e.dispatcher.SendDunning(context.Background(), invoice, "T-1")
	require.NoError(t, err)
	assert.True(t, created)

	var log domain.NotificationLog
	require.NoError(t, e.db.First(&log).Error)
	assert.Equal(t, domain.NotificationStatusSent, log.Status)
}

func TestSendDunning_MissingCustomerWritesNoLog(t *testing.T) {
	e := setupEnv(t)
	invoice := e.seedInvoice(t, e.node.Generate())

	created, err := e.dispatcher.SendDunning(context.Background(), invoice, "T-3")
	require.NoError(t, err)
	assert.False(t, created)

	var count int64
	require.NoError(t, e.db.Model(&domain.NotificationLog{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
	assert.Empty(t, e.email.sent)
}

func TestSendDunning_StageAlreadyCovered(t *testing.T) {
	e := setupEnv(t)
	customer := e.seedCustomer(t)
	invoice := e.seedInvoice(t, customer.ID)

	created, err := e.dispatcher.SendDunning(context.Background(), invoice, "T-3")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = e.dispatcher.SendDunning(context.Background(), invoice, "T-3")
	require.NoError(t, err)
	assert.False(t, created)

	var count int64
	require.NoError(t, e.db.Model(&domain.NotificationLog{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
	assert.Len(t, e.email.sent, 1)
}

func TestResend_ReusesStoredMessage(t *testing.T) {
	e := setupEnv(t)
	customer := e.seedCustomer(t)
	invoice := e.seedInvoice(t, customer.ID)
	e.email.failErr = errors.New("smtp: temporary failure")

	_, err := e.dispatcher.SendDunning(context.Background(), invoice, "T-3")
	require.Error(t, err)

	var log domain.NotificationLog
	require.NoError(t, e.db.First(&log).Error)
	require.Equal(t, domain.NotificationStatusFailed, log.Status)

	e.email.failErr = nil
	require.NoError(t, e.dispatcher.Resend(context.Background(), log.ID))

	var after domain.NotificationLog
	require.NoError(t, e.db.First(&after, "id = ?", log.ID).Error)
	assert.Equal(t, domain.NotificationStatusSent, after.Status)
	assert.Equal(t, 1, after.RetryCount)
	assert.Empty(t, after.ErrorMessage)
	require.Len(t, e.email.sent, 1)
	assert.Equal(t, log.Subject, e.email.sent[0].Subject)
}

func TestResend_UnknownLog(t *testing.T) {
	e := setupEnv(t)
	err := e.dispatcher.Resend(context.Background(), e.node.Generate())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestComposeDunning_OverdueWording(t *testing.T) {
	due := time.Date(2025, 6, 4, 0, 0, 0, 0, time.UTC)
	invoice := domain.Invoice{InvoiceNumber: "INV-42", Total: 1500000, DueDate: &due}

	subject, body := ComposeDunning(invoice, "T+3", "Siti")
	assert.Contains(t, subject, "overdue")
	assert.Contains(t, body, "Rp 1.500.000")
	assert.Contains(t, body, "4 June 2025")

	subject, body = ComposeDunning(invoice, "T-7", "Siti")
	assert.Contains(t, subject, "reminder")
	assert.Contains(t, body, "due on 4 June 2025")
}
