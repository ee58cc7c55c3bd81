// Package webhook is the ingestion gate for gateway payment callbacks.
package webhook

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payline/internal/clock"
	"github.com/smallbiznis/payline/internal/config"
	"github.com/smallbiznis/payline/internal/ledger/domain"
	ledgerservice "github.com/smallbiznis/payline/internal/ledger/service"
	"github.com/smallbiznis/payline/internal/observability/metrics"
	"github.com/smallbiznis/payline/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// MaxRetries is the ceiling on reprocessing attempts for one stored event.
const MaxRetries = 5

const settlementTimeLayout = "2006-01-02 15:04:05"

// Notification is the gateway callback body. The gateway sends more fields
// than these; unrecognized ones ride along in the raw payload only.
type Notification struct {
	OrderID           string `json:"order_id"`
	TransactionStatus string `json:"transaction_status"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	SignatureKey      string `json:"signature_key"`
	TransactionID     string `json:"transaction_id"`
	PaymentType       string `json:"payment_type"`
	FraudStatus       string `json:"fraud_status"`
	TransactionTime   string `json:"transaction_time"`
	SettlementTime    string `json:"settlement_time"`
}

// EventKey derives the idempotency key for one logical delivery.
func (n Notification) EventKey() string {
	return n.OrderID + ":" + n.TransactionStatus + ":" + n.TransactionTime
}

// IngestResult reports what one delivery did.
type IngestResult struct {
	EventID   snowflake.ID         `json:"event_id"`
	Duplicate bool                 `json:"duplicate"`
	Status    domain.PaymentStatus `json:"status,omitempty"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    domain.Repository
	ledger  *ledgerservice.Reconciler
	metrics *metrics.Metrics

	serverKey string
}

type ServiceParam struct {
	fx.In

	Config  config.Config
	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    domain.Repository
	Ledger  *ledgerservice.Reconciler
	Metrics *metrics.Metrics
}

func NewService(p ServiceParam) *Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("webhook.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		ledger:    p.Ledger,
		metrics:   p.Metrics,
		serverKey: p.Config.Gateway.ServerKey,
	}
}

// VerifySignature recomputes SHA-512(order_id ++ status_code ++ gross_amount
// ++ server_key) and compares it to the supplied signature.
func (s *Service) VerifySignature(n Notification) bool {
	sum := sha512.Sum512([]byte(n.OrderID + n.StatusCode + n.GrossAmount + s.serverKey))
	return strings.EqualFold(hex.EncodeToString(sum[:]), n.SignatureKey)
}

// Ingest runs one raw callback through the full gate: signature, required
// fields, storage-level dedup, then payment update and invoice cascade in
// one transaction.
func (s *Service) Ingest(ctx context.Context, raw []byte) (*IngestResult, error) {
	var n Notification
	if err := json.Unmarshal(raw, &n); err != nil {
		s.metrics.ObserveWebhook(metrics.WebhookResultRejected)
		return nil, domain.ErrMalformedPayload
	}
	if n.OrderID == "" || n.TransactionStatus == "" {
		s.metrics.ObserveWebhook(metrics.WebhookResultRejected)
		return nil, domain.ErrMalformedPayload
	}
	if !s.VerifySignature(n) {
		s.metrics.ObserveWebhook(metrics.WebhookResultRejected)
		s.log.Warn("signature mismatch", zap.String("order_id", n.OrderID))
		return nil, domain.ErrSignatureInvalid
	}

	event := &domain.WebhookEvent{
		ID:                s.genID.Generate(),
		EventKey:          n.EventKey(),
		OrderID:           n.OrderID,
		TransactionStatus: n.TransactionStatus,
		TransactionTime:   n.TransactionTime,
		Payload:           raw,
		IsVerified:        true,
		ReceivedAt:        s.clock.Now(),
	}

	// The unique constraint on event_key is the authoritative dedup; a
	// losing concurrent insert lands here too and is treated as a
	// duplicate, not an error.
	inserted, err := s.repo.InsertEvent(ctx, s.db, event)
	if err != nil {
		return nil, err
	}
	if !inserted {
		s.metrics.ObserveWebhook(metrics.WebhookResultDuplicate)
		s.log.Info("duplicate delivery ignored", zap.String("event_key", event.EventKey))
		existing, err := s.repo.FindEventByKey(ctx, s.db, event.EventKey)
		if err != nil {
			return nil, err
		}
		res := &IngestResult{Duplicate: true}
		if existing != nil {
			res.EventID = existing.ID
		}
		return res, nil
	}

	status, err := s.process(ctx, event, n)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveWebhook(metrics.WebhookResultProcessed)
	return &IngestResult{EventID: event.ID, Status: status}, nil
}

// Retry re-submits a stored event through the processing path. Events past
// the retry ceiling are permanently stalled and rejected here.
func (s *Service) Retry(ctx context.Context, eventID snowflake.ID) (*IngestResult, error) {
	event, err := s.repo.FindEventByID(ctx, s.db, eventID)
	if err != nil {
		return nil, err
	}
	if event == nil {
		return nil, domain.ErrEventNotFound
	}
	if event.IsProcessed {
		return nil, domain.ErrAlreadyProcessed
	}
	if event.RetryCount >= MaxRetries {
		return nil, domain.ErrMaxRetriesReached
	}

	var n Notification
	if err := json.Unmarshal(event.Payload, &n); err != nil {
		return nil, domain.ErrMalformedPayload
	}

	status, err := s.process(ctx, event, n)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveWebhook(metrics.WebhookResultProcessed)
	return &IngestResult{EventID: event.ID, Status: status}, nil
}

// ListStalled pages through unprocessed events that exhausted the retry
// ceiling, for the operator queue.
func (s *Service) ListStalled(ctx context.Context, page pagination.Pagination) ([]domain.WebhookEvent, pagination.PageInfo, error) {
	size := page.PageSize
	if size <= 0 {
		size = 50
	}

	var afterID snowflake.ID
	if page.PageToken != "" {
		cursor, err := pagination.DecodeCursor(page.PageToken)
		if err != nil {
			return nil, pagination.PageInfo{}, domain.ErrMalformedPayload
		}
		parsed, err := strconv.ParseInt(cursor.ID, 10, 64)
		if err != nil {
			return nil, pagination.PageInfo{}, domain.ErrMalformedPayload
		}
		afterID = snowflake.ID(parsed)
	}

	events, err := s.repo.ListStalledEvents(ctx, s.db, MaxRetries, afterID, size+1)
	if err != nil {
		return nil, pagination.PageInfo{}, err
	}

	var info pagination.PageInfo
	if len(events) > size {
		events = events[:size]
		token, err := pagination.EncodeCursor(pagination.Cursor{ID: events[len(events)-1].ID.String()})
		if err != nil {
			return nil, pagination.PageInfo{}, err
		}
		info = pagination.PageInfo{NextPageToken: token, HasMore: true}
	}
	return events, info, nil
}

// process applies the payment update and invoice cascade for a stored event
// inside one transaction. A failure rolls everything back and is recorded on
// the event in a separate follow-up write so the event stays retryable.
func (s *Service) process(ctx context.Context, event *domain.WebhookEvent, n Notification) (domain.PaymentStatus, error) {
	now := s.clock.Now()

	var applied domain.PaymentStatus
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payment, err := s.repo.FindPaymentByOrderID(ctx, tx, n.OrderID)
		if err != nil {
			return err
		}
		if payment == nil {
			return domain.ErrPaymentNotFound
		}

		status, known := domain.MapGatewayStatus(n.TransactionStatus, n.FraudStatus)
		if !known {
			s.log.Warn("unrecognized gateway status, defaulting to pending",
				zap.String("order_id", n.OrderID),
				zap.String("transaction_status", n.TransactionStatus),
			)
		}

		payment.Status = status
		if n.TransactionID != "" {
			payment.TransactionID = &n.TransactionID
		}
		if n.PaymentType != "" {
			payment.PaymentType = n.PaymentType
		}
		if status.Settled() && payment.SettlementAt == nil {
			settledAt := now
			if ts, err := time.Parse(settlementTimeLayout, n.SettlementTime); err == nil {
				settledAt = ts.UTC()
			}
			payment.SettlementAt = &settledAt
		}
		if payment.Metadata == nil {
			payment.Metadata = map[string]interface{}{}
		}
		var snapshot map[string]interface{}
		if err := json.Unmarshal(event.Payload, &snapshot); err == nil {
			payment.Metadata["gateway_response"] = snapshot
		}
		payment.UpdatedAt = now

		if err := s.repo.SavePayment(ctx, tx, payment); err != nil {
			return err
		}
		if err := s.ledger.CascadeInvoice(ctx, tx, payment, status, now); err != nil {
			return err
		}
		if err := s.repo.MarkEventProcessed(ctx, tx, event.ID, now); err != nil {
			return err
		}

		applied = status
		return nil
	})
	if err != nil {
		s.metrics.ObserveWebhook(metrics.WebhookResultFailed)
		if recErr := s.repo.RecordEventError(ctx, s.db, event.ID, err.Error()); recErr != nil {
			s.log.Error("failed to record processing error",
				zap.Int64("event_id", int64(event.ID)),
				zap.Error(recErr),
			)
		}
		return "", fmt.Errorf("process webhook event %d: %w", event.ID, err)
	}
	return applied, nil
}
