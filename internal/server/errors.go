package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/payline/internal/ledger/domain"
	"github.com/smallbiznis/payline/internal/payment/gateway"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

// ErrorHandlingMiddleware converts errors attached to the gin context into a
// single JSON error response.
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	switch {
	case errors.Is(err, domain.ErrSignatureInvalid):
		return http.StatusUnauthorized, errorPayload{
			Type:    "signature_invalid",
			Message: "signature verification failed",
		}

	case errors.Is(err, domain.ErrMalformedPayload),
		errors.Is(err, domain.ErrMissingReason),
		errors.Is(err, domain.ErrInvalidStatus),
		errors.Is(err, domain.ErrInvalidAmount):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "validation_error",
			Message: err.Error(),
		}

	case errors.Is(err, domain.ErrStateConflict),
		errors.Is(err, domain.ErrAlreadyProcessed),
		errors.Is(err, domain.ErrMaxRetriesReached),
		errors.Is(err, domain.ErrNoSettledPayment):
		return http.StatusConflict, errorPayload{
			Type:    "state_conflict",
			Message: err.Error(),
		}

	case errors.Is(err, domain.ErrPaymentNotFound),
		errors.Is(err, domain.ErrInvoiceNotFound),
		errors.Is(err, domain.ErrEventNotFound),
		errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: err.Error(),
		}

	case errors.Is(err, gateway.ErrGatewayFailed):
		return http.StatusBadGateway, errorPayload{
			Type:    "gateway_error",
			Message: "payment gateway failed",
		}

	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "persistence_error",
			Message: "internal server error",
		}
	}
}
