package dunning

import (
	"context"
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
	"github.com/smallbiznis/payline/internal/jobs"
	"github.com/smallbiznis/payline/internal/ledger/domain"
	"github.com/smallbiznis/payline/internal/ledger/repository"
	"github.com/smallbiznis/payline/internal/notification"
	"github.com/smallbiznis/payline/internal/observability/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// inlineJobs executes dispatched tasks synchronously so runs are observable
// without a worker pool.
type inlineJobs struct {
	executed int
}

func (d *inlineJobs) Dispatch(task jobs.Task) error {
	d.executed++
	return task.Run(context.Background())
}

type fakeEmail struct {
	sent int
}

func (f *fakeEmail) Send(ctx context.Context, to, subject, body string) error {
	f.sent++
	return nil
}

type fakeMessaging struct{}

func (fakeMessaging) Send(ctx context.Context, recipient, message string) error {
	return nil
}

type testEnv struct {
	sched *Scheduler
	db    *gorm.DB
	node  *snowflake.Node
	clock *clock.FakeClock
	email *fakeEmail
	jobs  *inlineJobs
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

	fakeClock := clock.NewFakeClock(time.Date(2025, 6, 1, 6, 0, 0, 0, time.UTC))
	repo := repository.Provide()
	mail := &fakeEmail{}
	runner := &inlineJobs{}
	m := metrics.NewWithRegisterer(prometheus.NewRegistry(), config.Config{})

	notifier := notification.NewDispatcher(notification.DispatcherParam{
		DB:        db,
		Log:       zap.NewNop(),
		GenID:     node,
		Clock:     fakeClock,
		Repo:      repo,
		Customers: customerrepository.Provide(),
		Email:     mail,
		Messaging: fakeMessaging{},
		Metrics:   m,
	})

	sched := New(Params{
		DB:       db,
		Log:      zap.NewNop(),
		Clock:    fakeClock,
		Repo:     repo,
		Jobs:     runner,
		Notifier: notifier,
		Metrics:  m,
	})

	return &testEnv{sched: sched, db: db, node: node, clock: fakeClock, email: mail, jobs: runner}
}

func (e *testEnv) seedCustomer(t *testing.T) *customerdomain.Customer {
	t.Helper()
	customer := &customerdomain.Customer{
		ID:     e.node.Generate(),
		Name:   "Agus Wijaya",
		Email:  "agus@example.com",
		Active: true,
	}
	require.NoError(t, e.db.Create(customer).Error)
	return customer
}

func (e *testEnv) seedInvoice(t *testing.T, customerID snowflake.ID, status domain.InvoiceStatus, dueInDays int) domain.Invoice {
	t.Helper()
	due := e.clock.Now().AddDate(0, 0, dueInDays)
	invoice := domain.Invoice{
		ID:            e.node.Generate(),
		InvoiceNumber: fmt.Sprintf("INV-%d", e.node.Generate()),
		OrderID:       fmt.Sprintf("ORD-%d", e.node.Generate()),
		CustomerID:    customerID,
		Total:         100000,
		Status:        status,
		DueDate:       &due,
		Active:        true,
	}
	require.NoError(t, e.db.Create(&invoice).Error)
	return invoice
}

func stageReport(t *testing.T, report *RunReport, stage string) StageReport {
	t.Helper()
	for _, sr := range report.Stages {
		if sr.Stage == stage {
			return sr
		}
	}
	t.Fatalf("stage %s missing from report", stage)
	return StageReport{}
}

func TestRunOnce_DispatchesOneStagePerInvoice(t *testing.T) {
	e := setupEnv(t)
	customer := e.seedCustomer(t)
	invoice := e.seedInvoice(t, customer.ID, domain.InvoiceStatusIssued, 3)

	report, err := e.sched.RunOnce(context.Background())
	require.NoError(t, err)

	sr := stageReport(t, report, "T-3")
	assert.Equal(t, 1, sr.Candidates)
	assert.Equal(t, 1, sr.Dispatched)
	assert.Equal(t, 0, sr.Skipped)

	var logs []domain.NotificationLog
	require.NoError(t, e.db.Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.Equal(t, "T-3", logs[0].Stage)
	assert.Equal(t, invoice.ID, logs[0].NotifiableID)
	assert.Equal(t, "T-3", logs[0].Metadata["stage"])
	assert.Equal(t, 1, e.email.sent)
}

func TestRunOnce_SecondRunSameDaySkips(t *testing.T) {
	e := setupEnv(t)
	customer := e.seedCustomer(t)
	e.seedInvoice(t, customer.ID, domain.InvoiceStatusIssued, 3)

	_, err := e.sched.RunOnce(context.Background())
	require.NoError(t, err)

	report, err := e.sched.RunOnce(context.Background())
	require.NoError(t, err)

	sr := stageReport(t, report, "T-3")
	assert.Equal(t, 0, sr.Dispatched)
	assert.Equal(t, 1, sr.Skipped)

	var count int64
	require.NoError(t, e.db.Model(&domain.NotificationLog{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, 1, e.email.sent)
}

func TestRunOnce_OverdueStage(t *testing.T) {
	e := setupEnv(t)
	customer := e.seedCustomer(t)
	e.seedInvoice(t, customer.ID, domain.InvoiceStatusPending, -3)

	report, err := e.sched.RunOnce(context.Background())
	require.NoError(t, err)

	sr := stageReport(t, report, "T+3")
	assert.Equal(t, 1, sr.Dispatched)

	var log domain.NotificationLog
	require.NoError(t, e.db.First(&log).Error)
	assert.Equal(t, "T+3", log.Stage)
}

func TestRunOnce_IgnoresSettledAndArchivedInvoices(t *testing.T) {
	e := setupEnv(t)
	customer := e.seedCustomer(t)
	e.seedInvoice(t, customer.ID, domain.InvoiceStatusPaid, 3)
	e.seedInvoice(t, customer.ID, domain.InvoiceStatusVoid, 3)

	archived := e.seedInvoice(t, customer.ID, domain.InvoiceStatusIssued, 3)
	require.NoError(t, e.db.Model(&domain.Invoice{}).
		Where("id = ?", archived.ID).
		Update("active", false).Error)

	report, err := e.sched.RunOnce(context.Background())
	require.NoError(t, err)

	sr := stageReport(t, report, "T-3")
	assert.Equal(t, 0, sr.Candidates)
	assert.Equal(t, 0, e.jobs.executed)
}

func TestRunOnce_StageLadderMovesWithClock(t *testing.T) {
	e := setupEnv(t)
	customer := e.seedCustomer(t)
	e.seedInvoice(t, customer.ID, domain.InvoiceStatusIssued, 7)

	report, err := e.sched.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stageReport(t, report, "T-7").Dispatched)

	// Four days later the same invoice is three days from due.
	e.clock.Advance(4 * 24 * time.Hour)
	report, err = e.sched.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stageReport(t, report, "T-3").Dispatched)
	assert.Equal(t, 0, stageReport(t, report, "T-7").Dispatched)

	var count int64
	require.NoError(t, e.db.Model(&domain.NotificationLog{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}
