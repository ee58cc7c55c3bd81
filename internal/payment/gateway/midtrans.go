package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/smallbiznis/payline/internal/config"
	"go.uber.org/zap"
)

const expiryTimeLayout = "2006-01-02 15:04:05"

type midtransClient struct {
	baseURL   string
	serverKey string
	client    *http.Client
	log       *zap.Logger
}

func NewMidtransClient(cfg config.Config, log *zap.Logger) Client {
	return &midtransClient{
		baseURL:   strings.TrimRight(cfg.Gateway.BaseURL, "/"),
		serverKey: strings.TrimSpace(cfg.Gateway.ServerKey),
		client:    &http.Client{Timeout: cfg.Gateway.Timeout},
		log:       log.Named("gateway.midtrans"),
	}
}

type chargeBody struct {
	PaymentType        string             `json:"payment_type"`
	TransactionDetails transactionDetails `json:"transaction_details"`
	CustomerDetails    *customerDetails   `json:"customer_details,omitempty"`
	BankTransfer       *bankTransfer      `json:"bank_transfer,omitempty"`
}

type transactionDetails struct {
	OrderID     string `json:"order_id"`
	GrossAmount int64  `json:"gross_amount"`
}

type customerDetails struct {
	FirstName string `json:"first_name,omitempty"`
	Email     string `json:"email,omitempty"`
}

type bankTransfer struct {
	Bank string `json:"bank"`
}

type chargeResult struct {
	TransactionID string `json:"transaction_id"`
	StatusCode    string `json:"status_code"`
	StatusMessage string `json:"status_message"`
	ExpiryTime    string `json:"expiry_time"`
	RedirectURL   string `json:"redirect_url"`
	VANumbers     []struct {
		Bank     string `json:"bank"`
		VANumber string `json:"va_number"`
	} `json:"va_numbers"`
	Actions []struct {
		Name string `json:"name"`
		URL  string `json:"url"`
	} `json:"actions"`
}

func (c *midtransClient) Charge(ctx context.Context, req ChargeRequest) (*ChargeResponse, error) {
	body := chargeBody{
		TransactionDetails: transactionDetails{
			OrderID:     req.OrderID,
			GrossAmount: req.Amount,
		},
	}
	if req.CustomerName != "" || req.CustomerEmail != "" {
		body.CustomerDetails = &customerDetails{
			FirstName: req.CustomerName,
			Email:     req.CustomerEmail,
		}
	}

	switch method := strings.ToLower(req.PaymentMethod); method {
	case "qris", "gopay":
		body.PaymentType = method
	case "bca", "bni", "bri", "permata", "cimb":
		body.PaymentType = "bank_transfer"
		body.BankTransfer = &bankTransfer{Bank: method}
	default:
		body.PaymentType = "bank_transfer"
		body.BankTransfer = &bankTransfer{Bank: "bca"}
	}

	var result chargeResult
	if err := c.post(ctx, "/v2/charge", body, &result); err != nil {
		return nil, err
	}

	resp := &ChargeResponse{
		TransactionID: result.TransactionID,
		RedirectURL:   result.RedirectURL,
	}
	if len(result.VANumbers) > 0 {
		resp.VANumber = result.VANumbers[0].VANumber
	}
	for _, action := range result.Actions {
		if action.Name == "generate-qr-code" {
			resp.QRCodeURL = action.URL
			break
		}
	}
	if result.ExpiryTime != "" {
		if ts, err := time.Parse(expiryTimeLayout, result.ExpiryTime); err == nil {
			expiry := ts.UTC()
			resp.ExpiryAt = &expiry
		}
	}
	return resp, nil
}

func (c *midtransClient) Refund(ctx context.Context, req RefundRequest) error {
	body := map[string]interface{}{
		"reason": req.Reason,
	}
	if req.Amount > 0 {
		body["amount"] = req.Amount
	}
	var result struct {
		StatusCode    string `json:"status_code"`
		StatusMessage string `json:"status_message"`
	}
	return c.post(ctx, "/v2/"+req.OrderID+"/refund", body, &result)
}

func (c *midtransClient) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.serverKey, "")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		// Timeouts land here and count as gateway failures.
		c.log.Error("gateway request failed", zap.String("path", path), zap.Error(err))
		return fmt.Errorf("%w: %v", ErrGatewayFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		c.log.Error("gateway rejected request",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
		)
		return fmt.Errorf("%w: status %d", ErrGatewayFailed, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrGatewayFailed, err)
	}
	return nil
}
