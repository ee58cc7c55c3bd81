package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository is the ledger store. Every method receives the database handle
// so services can run several writes inside one transaction.
type Repository interface {
	// Invoices.
	InsertInvoice(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	FindInvoiceByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Invoice, error)
	UpdateInvoiceStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status InvoiceStatus, now time.Time) error
	// MarkInvoicePaid is idempotent: an already-paid invoice is untouched.
	MarkInvoicePaid(ctx context.Context, db *gorm.DB, id snowflake.ID, paidAt time.Time) error
	VoidInvoice(ctx context.Context, db *gorm.DB, id snowflake.ID, reason, actor string, at time.Time) error
	RefundInvoice(ctx context.Context, db *gorm.DB, id snowflake.ID, reason, actor string, at time.Time) error
	ArchiveDraftInvoice(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error)
	ListInvoicesDueOn(ctx context.Context, db *gorm.DB, dueDate time.Time, statuses []InvoiceStatus) ([]Invoice, error)

	// Payments.
	InsertPayment(ctx context.Context, db *gorm.DB, payment *Payment) error
	FindPaymentByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Payment, error)
	FindPaymentByOrderID(ctx context.Context, db *gorm.DB, orderID string) (*Payment, error)
	SavePayment(ctx context.Context, db *gorm.DB, payment *Payment) error
	CountLivePayments(ctx context.Context, db *gorm.DB, invoiceID, excludePaymentID snowflake.ID) (int64, error)
	CancelPendingPayments(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID, now time.Time) (int64, error)
	FindLatestSettledPayment(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) (*Payment, error)

	// Webhook events. InsertEvent reports false when the event key already
	// exists (duplicate delivery).
	InsertEvent(ctx context.Context, db *gorm.DB, event *WebhookEvent) (bool, error)
	FindEventByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*WebhookEvent, error)
	FindEventByKey(ctx context.Context, db *gorm.DB, eventKey string) (*WebhookEvent, error)
	MarkEventProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) error
	RecordEventError(ctx context.Context, db *gorm.DB, id snowflake.ID, processingError string) error
	ListStalledEvents(ctx context.Context, db *gorm.DB, maxRetries int, afterID snowflake.ID, limit int) ([]WebhookEvent, error)

	// Notification logs. InsertNotificationLog reports false when the
	// per-stage unique index rejected the row (already notified).
	InsertNotificationLog(ctx context.Context, db *gorm.DB, log *NotificationLog) (bool, error)
	FindNotificationLogByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*NotificationLog, error)
	HasNotification(ctx context.Context, db *gorm.DB, ref NotifiableRef, notificationType, stage string) (bool, error)
	MarkNotificationSent(ctx context.Context, db *gorm.DB, id snowflake.ID, sentAt time.Time) error
	MarkNotificationFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, errorMessage string, now time.Time) error
	PrepareNotificationResend(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) error
	ListFailedNotifications(ctx context.Context, db *gorm.DB, limit int) ([]NotificationLog, error)
}
