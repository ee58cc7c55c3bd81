// Package domain contains persistence models for the payment ledger.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// InvoiceStatus represents invoice lifecycle states.
type InvoiceStatus string

const (
	InvoiceStatusDraft   InvoiceStatus = "draft"
	InvoiceStatusIssued  InvoiceStatus = "issued"
	InvoiceStatusPending InvoiceStatus = "pending"
	InvoiceStatusPaid    InvoiceStatus = "paid"
	InvoiceStatusPartial InvoiceStatus = "partial"
	InvoiceStatusOverdue InvoiceStatus = "overdue"
	InvoiceStatusVoid    InvoiceStatus = "void"
	InvoiceStatusRefund  InvoiceStatus = "refund"
)

// Invoice is the internally-owned billing record. Status is mutated only by
// the payment lifecycle service and the webhook ingestion gate.
type Invoice struct {
	ID             snowflake.ID  `gorm:"primaryKey" json:"id"`
	InvoiceNumber  string        `gorm:"type:text;not null;uniqueIndex" json:"invoice_number"`
	OrderID        string        `gorm:"type:text;not null;uniqueIndex" json:"order_id"`
	CustomerID     snowflake.ID  `gorm:"not null;index" json:"customer_id"`
	SubscriptionID *snowflake.ID `gorm:"index" json:"subscription_id,omitempty"`
	Subtotal       int64         `gorm:"not null;default:0" json:"subtotal"`
	Tax            int64         `gorm:"not null;default:0" json:"tax"`
	Discount       int64         `gorm:"not null;default:0" json:"discount"`
	Total          int64         `gorm:"not null;default:0" json:"total"`
	Status         InvoiceStatus `gorm:"type:text;not null;default:'draft';index" json:"status"`
	DueDate        *time.Time    `gorm:"index" json:"due_date,omitempty"`
	PaidAt         *time.Time    `json:"paid_at,omitempty"`
	VoidedAt       *time.Time    `json:"voided_at,omitempty"`
	RefundedAt     *time.Time    `json:"refunded_at,omitempty"`
	VoidReason     string        `gorm:"type:text" json:"void_reason,omitempty"`
	RefundReason   string        `gorm:"type:text" json:"refund_reason,omitempty"`
	VoidedBy       string        `gorm:"type:text" json:"voided_by,omitempty"`
	RefundedBy     string        `gorm:"type:text" json:"refunded_by,omitempty"`
	// Soft delete: archived invoices keep their rows for audit continuity.
	Active    bool      `gorm:"not null;default:true;index" json:"active"`
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Invoice) TableName() string { return "invoices" }

// PaymentStatus represents internal payment states after gateway mapping.
type PaymentStatus string

const (
	PaymentStatusPending       PaymentStatus = "pending"
	PaymentStatusSettlement    PaymentStatus = "settlement"
	PaymentStatusCapture       PaymentStatus = "capture"
	PaymentStatusChallenge     PaymentStatus = "challenge"
	PaymentStatusDeny          PaymentStatus = "deny"
	PaymentStatusCancel        PaymentStatus = "cancel"
	PaymentStatusExpire        PaymentStatus = "expire"
	PaymentStatusRefund        PaymentStatus = "refund"
	PaymentStatusPartialRefund PaymentStatus = "partial_refund"
)

// Settled reports whether the status means funds have definitively moved.
func (s PaymentStatus) Settled() bool {
	return s == PaymentStatusSettlement || s == PaymentStatusCapture
}

// Failed reports whether the status means the attempt is dead.
func (s PaymentStatus) Failed() bool {
	return s == PaymentStatusDeny || s == PaymentStatusCancel || s == PaymentStatusExpire
}

// Live reports whether the attempt could still settle.
func (s PaymentStatus) Live() bool {
	return s == PaymentStatusPending || s == PaymentStatusChallenge
}

// Payment is one charge attempt against an invoice. OrderID is the gateway
// correlation key; one invoice may carry several attempts but only one may
// be settled in normal operation.
type Payment struct {
	ID            snowflake.ID  `gorm:"primaryKey" json:"id"`
	PaymentCode   string        `gorm:"type:text;not null;uniqueIndex" json:"payment_code"`
	OrderID       string        `gorm:"type:text;not null;uniqueIndex" json:"order_id"`
	InvoiceID     snowflake.ID  `gorm:"not null;index" json:"invoice_id"`
	CustomerID    snowflake.ID  `gorm:"not null;index" json:"customer_id"`
	TransactionID *string       `gorm:"type:text" json:"transaction_id,omitempty"`
	PaymentMethod string        `gorm:"type:text;not null" json:"payment_method"`
	PaymentType   string        `gorm:"type:text" json:"payment_type,omitempty"`
	Amount        int64         `gorm:"not null" json:"amount"`
	Status        PaymentStatus `gorm:"type:text;not null;default:'pending';index" json:"status"`
	VANumber      *string       `gorm:"type:text" json:"va_number,omitempty"`
	QRCodeURL     *string       `gorm:"type:text" json:"qr_code_url,omitempty"`
	PaymentURL    *string       `gorm:"type:text" json:"payment_url,omitempty"`
	SettlementAt  *time.Time    `gorm:"column:settlement_time" json:"settlement_time,omitempty"`
	ExpiryAt      *time.Time    `gorm:"column:expiry_time" json:"expiry_time,omitempty"`
	// Metadata is schemaless; the only key the engine maintains is
	// "gateway_response", the last-seen raw callback for this payment.
	Metadata   datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"metadata,omitempty"`
	VerifiedBy string            `gorm:"type:text" json:"verified_by,omitempty"`
	VerifiedAt *time.Time        `json:"verified_at,omitempty"`
	CreatedAt  time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt  time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Payment) TableName() string { return "payments" }

// WebhookEvent is the append-only record of one inbound gateway callback.
// EventKey (order_id ++ transaction_status ++ transaction_time) is the
// idempotency key; the unique constraint on it is the authoritative dedup.
type WebhookEvent struct {
	ID                snowflake.ID   `gorm:"primaryKey" json:"id"`
	EventKey          string         `gorm:"type:text;not null;uniqueIndex" json:"event_key"`
	OrderID           string         `gorm:"type:text;not null;index" json:"order_id"`
	TransactionStatus string         `gorm:"type:text;not null" json:"transaction_status"`
	TransactionTime   string         `gorm:"type:text" json:"transaction_time,omitempty"`
	Payload           datatypes.JSON `gorm:"type:jsonb;not null" json:"payload"`
	IsVerified        bool           `gorm:"not null;default:false" json:"is_verified"`
	IsProcessed       bool           `gorm:"not null;default:false;index" json:"is_processed"`
	ProcessedAt       *time.Time     `json:"processed_at,omitempty"`
	ProcessingError   string         `gorm:"type:text" json:"processing_error,omitempty"`
	RetryCount        int            `gorm:"not null;default:0" json:"retry_count"`
	ReceivedAt        time.Time      `gorm:"not null" json:"received_at"`
}

func (WebhookEvent) TableName() string { return "webhook_events" }

// NotificationStatus represents outbound message delivery states.
type NotificationStatus string

const (
	NotificationStatusPending NotificationStatus = "pending"
	NotificationStatusSent    NotificationStatus = "sent"
	NotificationStatusFailed  NotificationStatus = "failed"
	NotificationStatusBounced NotificationStatus = "bounced"
)

// EntityKind tags the polymorphic subject of a notification.
type EntityKind string

const (
	EntityKindInvoice  EntityKind = "invoice"
	EntityKindCustomer EntityKind = "customer"
)

// NotifiableRef identifies the subject of a notification without embedding
// an object reference; resolution goes through a per-kind lookup.
type NotifiableRef struct {
	Kind EntityKind
	ID   snowflake.ID
}

const NotificationTypeInvoiceDunning = "invoice.dunning"

// NotificationLog is one attempted outbound message. For dunning the Stage
// column plus the unique index is the per-stage idempotency marker; Metadata
// additionally carries {stage, due_date, total} on dunning rows.
type NotificationLog struct {
	ID             snowflake.ID       `gorm:"primaryKey" json:"id"`
	NotificationID string             `gorm:"type:text;not null;uniqueIndex" json:"notification_id"`
	Type           string             `gorm:"type:text;not null;uniqueIndex:ux_notification_stage" json:"type"`
	NotifiableType EntityKind         `gorm:"type:text;not null;uniqueIndex:ux_notification_stage" json:"notifiable_type"`
	NotifiableID   snowflake.ID       `gorm:"not null;uniqueIndex:ux_notification_stage" json:"notifiable_id"`
	Stage          string             `gorm:"type:text;not null;default:'';uniqueIndex:ux_notification_stage" json:"stage,omitempty"`
	Channel        string             `gorm:"type:text;not null" json:"channel"`
	Recipient      string             `gorm:"type:text;not null" json:"recipient"`
	Subject        string             `gorm:"type:text" json:"subject,omitempty"`
	Message        string             `gorm:"type:text" json:"message"`
	Metadata       datatypes.JSONMap  `gorm:"type:jsonb;not null;default:'{}'" json:"metadata,omitempty"`
	Status         NotificationStatus `gorm:"type:text;not null;default:'pending';index" json:"status"`
	ErrorMessage   string             `gorm:"type:text" json:"error_message,omitempty"`
	RetryCount     int                `gorm:"not null;default:0" json:"retry_count"`
	SentAt         *time.Time         `json:"sent_at,omitempty"`
	CreatedAt      time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt      time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (NotificationLog) TableName() string { return "notification_logs" }
