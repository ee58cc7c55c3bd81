package domain

// Gateway transaction statuses and fraud flags as delivered by callbacks.
const (
	GatewayStatusCapture    = "capture"
	GatewayStatusSettlement = "settlement"
	GatewayStatusPending    = "pending"
	GatewayStatusDeny       = "deny"
	GatewayStatusCancel     = "cancel"
	GatewayStatusExpire     = "expire"
	GatewayStatusRefund     = "refund"

	FraudStatusAccept    = "accept"
	FraudStatusChallenge = "challenge"
)

// MapGatewayStatus maps a gateway transaction status plus fraud flag to the
// internal payment status. The second return is false when the gateway
// status is unrecognized and the pending default was applied; callers log
// that case.
func MapGatewayStatus(transactionStatus, fraudStatus string) (PaymentStatus, bool) {
	switch transactionStatus {
	case GatewayStatusCapture:
		switch fraudStatus {
		case FraudStatusAccept:
			return PaymentStatusCapture, true
		case FraudStatusChallenge:
			return PaymentStatusChallenge, true
		default:
			return PaymentStatusDeny, true
		}
	case GatewayStatusSettlement:
		return PaymentStatusSettlement, true
	case GatewayStatusPending:
		return PaymentStatusPending, true
	case GatewayStatusDeny:
		return PaymentStatusDeny, true
	case GatewayStatusCancel, GatewayStatusExpire:
		return PaymentStatusCancel, true
	case GatewayStatusRefund:
		return PaymentStatusRefund, true
	default:
		return PaymentStatusPending, false
	}
}
