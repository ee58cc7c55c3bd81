// Package notification executes outbound delivery work dispatched by the
// dunning scheduler and the operator resend action.
package notification

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/smallbiznis/payline/internal/clock"
	customerdomain "github.com/smallbiznis/payline/internal/customer/domain"
	"github.com/smallbiznis/payline/internal/ledger/domain"
	"github.com/smallbiznis/payline/internal/observability/metrics"
	"github.com/smallbiznis/payline/internal/providers/email"
	"github.com/smallbiznis/payline/internal/providers/messaging"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	ChannelEmail     = "email"
	ChannelMessaging = "messaging"
)

type Dispatcher struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      domain.Repository
	customers customerdomain.Repository
	email     email.Provider
	messaging messaging.Provider
	metrics   *metrics.Metrics
}

type DispatcherParam struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Repo      domain.Repository
	Customers customerdomain.Repository
	Email     email.Provider
	Messaging messaging.Provider
	Metrics   *metrics.Metrics
}

func NewDispatcher(p DispatcherParam) *Dispatcher {
	return &Dispatcher{
		db:        p.DB,
		log:       p.Log.Named("notification.dispatcher"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		customers: p.Customers,
		email:     p.Email,
		messaging: p.Messaging,
		metrics:   p.Metrics,
	}
}

// SendDunning delivers one dunning reminder for (invoice, stage). The
// pending NotificationLog row is written before any delivery attempt; it is
// both the audit trail and the per-stage idempotency marker. Returns true
// when a new log row was created, false when the stage was already covered.
func (d *Dispatcher) SendDunning(ctx context.Context, invoice domain.Invoice, stage string) (bool, error) {
	customer, err := d.customers.FindByID(ctx, d.db, invoice.CustomerID)
	if err != nil {
		return false, err
	}
	if customer == nil {
		// Nothing to notify; no log row is written for a dangling
		// customer reference.
		d.log.Warn("customer not found for dunning notice",
			zap.Int64("invoice_id", int64(invoice.ID)),
			zap.Int64("customer_id", int64(invoice.CustomerID)),
		)
		return false, nil
	}

	subject, body := ComposeDunning(invoice, stage, customer.Name)
	now := d.clock.Now()

	log := &domain.NotificationLog{
		ID:             d.genID.Generate(),
		NotificationID: uuid.NewString(),
		Type:           domain.NotificationTypeInvoiceDunning,
		NotifiableType: domain.EntityKindInvoice,
		NotifiableID:   invoice.ID,
		Stage:          stage,
		Channel:        ChannelEmail,
		Recipient:      customer.Email,
		Subject:        subject,
		Message:        body,
		Metadata: map[string]interface{}{
			"stage": stage,
			"total": invoice.Total,
		},
		Status:    domain.NotificationStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if invoice.DueDate != nil {
		log.Metadata["due_date"] = invoice.DueDate.Format("2006-01-02")
	}

	inserted, err := d.repo.InsertNotificationLog(ctx, d.db, log)
	if err != nil {
		return false, err
	}
	if !inserted {
		// A concurrent run won the per-stage unique index.
		return false, nil
	}

	if err := d.deliver(ctx, log, customer.Phone); err != nil {
		return true, err
	}
	return true, nil
}

// Resend re-attempts delivery of an existing log row using its stored
// recipient and message, not a fresh composition.
func (d *Dispatcher) Resend(ctx context.Context, logID snowflake.ID) error {
	log, err := d.repo.FindNotificationLogByID(ctx, d.db, logID)
	if err != nil {
		return err
	}
	if log == nil {
		return domain.ErrNotFound
	}

	if err := d.repo.PrepareNotificationResend(ctx, d.db, log.ID, d.clock.Now()); err != nil {
		return err
	}
	return d.deliver(ctx, log, "")
}

// deliver runs the primary channel (fatal on failure) then the secondary
// (best-effort), and records the outcome on the log row.
func (d *Dispatcher) deliver(ctx context.Context, log *domain.NotificationLog, phone string) error {
	now := d.clock.Now()

	if err := d.email.Send(ctx, log.Recipient, log.Subject, log.Message); err != nil {
		d.metrics.ObserveNotification(ChannelEmail, "failed")
		if markErr := d.repo.MarkNotificationFailed(ctx, d.db, log.ID, err.Error(), now); markErr != nil {
			d.log.Error("failed to mark notification failed",
				zap.Int64("notification_log_id", int64(log.ID)),
				zap.Error(markErr),
			)
		}
		return fmt.Errorf("send %s notification: %w", log.Channel, err)
	}

	secondaryTo := phone
	if secondaryTo == "" {
		secondaryTo = log.Recipient
	}
	if err := d.messaging.Send(ctx, secondaryTo, log.Message); err != nil {
		d.metrics.ObserveNotification(ChannelMessaging, "failed")
		d.log.Warn("secondary channel delivery failed",
			zap.Int64("notification_log_id", int64(log.ID)),
			zap.Error(err),
		)
	} else {
		d.metrics.ObserveNotification(ChannelMessaging, "sent")
	}

	if err := d.repo.MarkNotificationSent(ctx, d.db, log.ID, now); err != nil {
		return err
	}
	d.metrics.ObserveNotification(ChannelEmail, "sent")
	return nil
}
