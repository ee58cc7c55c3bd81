package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payline/internal/ledger/domain"
	"github.com/smallbiznis/payline/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertInvoice(ctx context.Context, conn *gorm.DB, invoice *domain.Invoice) error {
	return conn.WithContext(ctx).Create(invoice).Error
}

func (r *repo) FindInvoiceByID(ctx context.Context, conn *gorm.DB, id snowflake.ID) (*domain.Invoice, error) {
	var item domain.Invoice
	err := conn.WithContext(ctx).Raw(
		`SELECT * FROM invoices WHERE id = ? LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) UpdateInvoiceStatus(ctx context.Context, conn *gorm.DB, id snowflake.ID, status domain.InvoiceStatus, now time.Time) error {
	return conn.WithContext(ctx).Exec(
		`UPDATE invoices SET status = ?, updated_at = ? WHERE id = ?`,
		status,
		now,
		id,
	).Error
}

func (r *repo) MarkInvoicePaid(ctx context.Context, conn *gorm.DB, id snowflake.ID, paidAt time.Time) error {
	// Re-applying on an already-paid invoice is a no-op.
	return conn.WithContext(ctx).Exec(
		`UPDATE invoices
		 SET status = ?, paid_at = ?, updated_at = ?
		 WHERE id = ? AND status <> ?`,
		domain.InvoiceStatusPaid,
		paidAt,
		paidAt,
		id,
		domain.InvoiceStatusPaid,
	).Error
}

func (r *repo) VoidInvoice(ctx context.Context, conn *gorm.DB, id snowflake.ID, reason, actor string, at time.Time) error {
	return conn.WithContext(ctx).Exec(
		`UPDATE invoices
		 SET status = ?, void_reason = ?, voided_by = ?, voided_at = ?, updated_at = ?
		 WHERE id = ?`,
		domain.InvoiceStatusVoid,
		reason,
		actor,
		at,
		at,
		id,
	).Error
}

func (r *repo) RefundInvoice(ctx context.Context, conn *gorm.DB, id snowflake.ID, reason, actor string, at time.Time) error {
	return conn.WithContext(ctx).Exec(
		`UPDATE invoices
		 SET status = ?, refund_reason = ?, refunded_by = ?, refunded_at = ?, updated_at = ?
		 WHERE id = ?`,
		domain.InvoiceStatusRefund,
		reason,
		actor,
		at,
		at,
		id,
	).Error
}

func (r *repo) ArchiveDraftInvoice(ctx context.Context, conn *gorm.DB, id snowflake.ID, now time.Time) (bool, error) {
	res := conn.WithContext(ctx).Exec(
		`UPDATE invoices
		 SET active = ?, updated_at = ?
		 WHERE id = ? AND status = ? AND active = ?`,
		false,
		now,
		id,
		domain.InvoiceStatusDraft,
		true,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) ListInvoicesDueOn(ctx context.Context, conn *gorm.DB, dueDate time.Time, statuses []domain.InvoiceStatus) ([]domain.Invoice, error) {
	dayStart := time.Date(dueDate.Year(), dueDate.Month(), dueDate.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.AddDate(0, 0, 1)

	var items []domain.Invoice
	err := conn.WithContext(ctx).
		Where("status IN ?", statuses).
		Where("active = ?", true).
		Where("due_date >= ? AND due_date < ?", dayStart, dayEnd).
		Order("id").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) InsertPayment(ctx context.Context, conn *gorm.DB, payment *domain.Payment) error {
	return conn.WithContext(ctx).Create(payment).Error
}

func (r *repo) FindPaymentByID(ctx context.Context, conn *gorm.DB, id snowflake.ID) (*domain.Payment, error) {
	var item domain.Payment
	err := conn.WithContext(ctx).Raw(
		`SELECT * FROM payments WHERE id = ? LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindPaymentByOrderID(ctx context.Context, conn *gorm.DB, orderID string) (*domain.Payment, error) {
	var item domain.Payment
	err := conn.WithContext(ctx).Raw(
		`SELECT * FROM payments WHERE order_id = ? LIMIT 1`,
		orderID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) SavePayment(ctx context.Context, conn *gorm.DB, payment *domain.Payment) error {
	return conn.WithContext(ctx).Save(payment).Error
}

func (r *repo) CountLivePayments(ctx context.Context, conn *gorm.DB, invoiceID, excludePaymentID snowflake.ID) (int64, error) {
	var count int64
	err := conn.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM payments
		 WHERE invoice_id = ? AND id <> ? AND status IN (?, ?)`,
		invoiceID,
		excludePaymentID,
		domain.PaymentStatusPending,
		domain.PaymentStatusChallenge,
	).Scan(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *repo) CancelPendingPayments(ctx context.Context, conn *gorm.DB, invoiceID snowflake.ID, now time.Time) (int64, error) {
	res := conn.WithContext(ctx).Exec(
		`UPDATE payments
		 SET status = ?, updated_at = ?
		 WHERE invoice_id = ? AND status = ?`,
		domain.PaymentStatusCancel,
		now,
		invoiceID,
		domain.PaymentStatusPending,
	)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *repo) FindLatestSettledPayment(ctx context.Context, conn *gorm.DB, invoiceID snowflake.ID) (*domain.Payment, error) {
	var item domain.Payment
	err := conn.WithContext(ctx).Raw(
		`SELECT * FROM payments
		 WHERE invoice_id = ? AND status IN (?, ?)
		 ORDER BY settlement_time DESC, created_at DESC
		 LIMIT 1`,
		invoiceID,
		domain.PaymentStatusSettlement,
		domain.PaymentStatusCapture,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) InsertEvent(ctx context.Context, conn *gorm.DB, event *domain.WebhookEvent) (bool, error) {
	res := conn.WithContext(ctx).Exec(
		`INSERT INTO webhook_events (
			id, event_key, order_id, transaction_status, transaction_time,
			payload, is_verified, is_processed, processed_at, processing_error,
			retry_count, received_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (event_key) DO NOTHING`,
		event.ID,
		event.EventKey,
		event.OrderID,
		event.TransactionStatus,
		event.TransactionTime,
		event.Payload,
		event.IsVerified,
		event.IsProcessed,
		event.ProcessedAt,
		event.ProcessingError,
		event.RetryCount,
		event.ReceivedAt,
	)
	if res.Error != nil {
		if db.IsDuplicateKeyErr(res.Error) {
			return false, nil
		}
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindEventByID(ctx context.Context, conn *gorm.DB, id snowflake.ID) (*domain.WebhookEvent, error) {
	var item domain.WebhookEvent
	err := conn.WithContext(ctx).Raw(
		`SELECT * FROM webhook_events WHERE id = ? LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindEventByKey(ctx context.Context, conn *gorm.DB, eventKey string) (*domain.WebhookEvent, error) {
	var item domain.WebhookEvent
	err := conn.WithContext(ctx).Raw(
		`SELECT * FROM webhook_events WHERE event_key = ? LIMIT 1`,
		eventKey,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) MarkEventProcessed(ctx context.Context, conn *gorm.DB, id snowflake.ID, processedAt time.Time) error {
	return conn.WithContext(ctx).Exec(
		`UPDATE webhook_events
		 SET is_processed = ?, processed_at = ?, processing_error = ''
		 WHERE id = ?`,
		true,
		processedAt,
		id,
	).Error
}

func (r *repo) RecordEventError(ctx context.Context, conn *gorm.DB, id snowflake.ID, processingError string) error {
	return conn.WithContext(ctx).Exec(
		`UPDATE webhook_events
		 SET processing_error = ?, retry_count = retry_count + 1
		 WHERE id = ?`,
		processingError,
		id,
	).Error
}

func (r *repo) ListStalledEvents(ctx context.Context, conn *gorm.DB, maxRetries int, afterID snowflake.ID, limit int) ([]domain.WebhookEvent, error) {
	var items []domain.WebhookEvent
	err := conn.WithContext(ctx).Raw(
		`SELECT * FROM webhook_events
		 WHERE is_processed = ? AND retry_count >= ? AND id > ?
		 ORDER BY id
		 LIMIT ?`,
		false,
		maxRetries,
		afterID,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) InsertNotificationLog(ctx context.Context, conn *gorm.DB, log *domain.NotificationLog) (bool, error) {
	err := conn.WithContext(ctx).Create(log).Error
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *repo) FindNotificationLogByID(ctx context.Context, conn *gorm.DB, id snowflake.ID) (*domain.NotificationLog, error) {
	var item domain.NotificationLog
	err := conn.WithContext(ctx).Raw(
		`SELECT * FROM notification_logs WHERE id = ? LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) HasNotification(ctx context.Context, conn *gorm.DB, ref domain.NotifiableRef, notificationType, stage string) (bool, error) {
	var count int64
	err := conn.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM notification_logs
		 WHERE notifiable_type = ? AND notifiable_id = ? AND type = ? AND stage = ?`,
		ref.Kind,
		ref.ID,
		notificationType,
		stage,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) MarkNotificationSent(ctx context.Context, conn *gorm.DB, id snowflake.ID, sentAt time.Time) error {
	return conn.WithContext(ctx).Exec(
		`UPDATE notification_logs
		 SET status = ?, sent_at = ?, error_message = '', updated_at = ?
		 WHERE id = ?`,
		domain.NotificationStatusSent,
		sentAt,
		sentAt,
		id,
	).Error
}

func (r *repo) MarkNotificationFailed(ctx context.Context, conn *gorm.DB, id snowflake.ID, errorMessage string, now time.Time) error {
	return conn.WithContext(ctx).Exec(
		`UPDATE notification_logs
		 SET status = ?, error_message = ?, updated_at = ?
		 WHERE id = ?`,
		domain.NotificationStatusFailed,
		errorMessage,
		now,
		id,
	).Error
}

func (r *repo) PrepareNotificationResend(ctx context.Context, conn *gorm.DB, id snowflake.ID, now time.Time) error {
	return conn.WithContext(ctx).Exec(
		`UPDATE notification_logs
		 SET status = ?, retry_count = retry_count + 1, sent_at = NULL, error_message = '', updated_at = ?
		 WHERE id = ?`,
		domain.NotificationStatusPending,
		now,
		id,
	).Error
}

func (r *repo) ListFailedNotifications(ctx context.Context, conn *gorm.DB, limit int) ([]domain.NotificationLog, error) {
	var items []domain.NotificationLog
	err := conn.WithContext(ctx).Raw(
		`SELECT * FROM notification_logs
		 WHERE status = ?
		 ORDER BY updated_at
		 LIMIT ?`,
		domain.NotificationStatusFailed,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
