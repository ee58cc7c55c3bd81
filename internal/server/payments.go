package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/payline/internal/ledger/domain"
	paymentservice "github.com/smallbiznis/payline/internal/payment/service"
)

func (s *Server) createPayment(c *gin.Context) {
	invoiceID, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, domain.ErrInvoiceNotFound)
		return
	}

	var body struct {
		PaymentMethod string `json:"payment_method"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, domain.ErrMalformedPayload)
		return
	}

	payment, err := s.paymentsvc.Create(c.Request.Context(), paymentservice.CreateRequest{
		InvoiceID:     invoiceID,
		PaymentMethod: body.PaymentMethod,
		Actor:         actor(c),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, payment)
}

func (s *Server) verifyPayment(c *gin.Context) {
	paymentID, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, domain.ErrPaymentNotFound)
		return
	}

	var body struct {
		Status string `json:"status"`
		Notes  string `json:"notes"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, domain.ErrMalformedPayload)
		return
	}

	payment, err := s.paymentsvc.Verify(c.Request.Context(), paymentservice.VerifyRequest{
		PaymentID: paymentID,
		Status:    domain.PaymentStatus(body.Status),
		Notes:     body.Notes,
		Actor:     actor(c),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, payment)
}

func (s *Server) voidInvoice(c *gin.Context) {
	invoiceID, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, domain.ErrInvoiceNotFound)
		return
	}

	var body struct {
		Reason string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, domain.ErrMalformedPayload)
		return
	}

	if err := s.paymentsvc.Void(c.Request.Context(), paymentservice.VoidRequest{
		InvoiceID: invoiceID,
		Reason:    body.Reason,
		Actor:     actor(c),
	}); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) refundInvoice(c *gin.Context) {
	invoiceID, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, domain.ErrInvoiceNotFound)
		return
	}

	var body struct {
		Reason string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, domain.ErrMalformedPayload)
		return
	}

	if err := s.paymentsvc.Refund(c.Request.Context(), paymentservice.RefundRequest{
		InvoiceID: invoiceID,
		Reason:    body.Reason,
		Actor:     actor(c),
	}); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
