// Package gateway is the client for the external payment provider. Only the
// response contract matters here; charge and refund computation is the
// provider's business.
package gateway

import (
	"context"
	"errors"
	"time"
)

// ErrGatewayFailed wraps every provider-side failure, timeouts included. The
// caller's entities are left in their last-known-good state.
var ErrGatewayFailed = errors.New("gateway_failed")

type ChargeRequest struct {
	OrderID       string
	Amount        int64
	PaymentMethod string
	CustomerName  string
	CustomerEmail string
}

// ChargeResponse carries the channel-specific payment handles. Which fields
// are set depends on the method: VA number for bank transfer, QR code URL
// for QRIS, redirect URL for wallet flows.
type ChargeResponse struct {
	TransactionID string
	VANumber      string
	QRCodeURL     string
	RedirectURL   string
	ExpiryAt      *time.Time
}

type RefundRequest struct {
	OrderID string
	Amount  int64
	Reason  string
}

type Client interface {
	Charge(ctx context.Context, req ChargeRequest) (*ChargeResponse, error)
	Refund(ctx context.Context, req RefundRequest) error
}
