package domain

import "errors"

var (
	ErrSignatureInvalid  = errors.New("signature_invalid")
	ErrMalformedPayload  = errors.New("malformed_payload")
	ErrAlreadyProcessed  = errors.New("already_processed")
	ErrPaymentNotFound   = errors.New("payment_not_found")
	ErrInvoiceNotFound   = errors.New("invoice_not_found")
	ErrEventNotFound     = errors.New("event_not_found")
	ErrNotFound          = errors.New("not_found")
	ErrStateConflict     = errors.New("state_conflict")
	ErrMissingReason     = errors.New("missing_reason")
	ErrMaxRetriesReached = errors.New("max_retries_reached")
	ErrNoSettledPayment  = errors.New("no_settled_payment")
	ErrInvalidAmount     = errors.New("invalid_amount")
	ErrInvalidStatus     = errors.New("invalid_status")
)
