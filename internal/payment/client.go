// Package payment charges student meal accounts through an external
// payment processor's HTTP API.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"school-meals/internal/config"
	"school-meals/internal/domain"
)

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewClient(cfg config.PaymentConfig) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: cfg.Timeout},
	}
}

type chargeRequest struct {
	StudentID string  `json:"student_id"`
	Amount    float64 `json:"amount"`
	OrderID   string  `json:"order_id"`
}

type chargeResponse struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

// Charge debits the student's account. A declined charge is returned as
// domain.PaymentError; transport failures are returned as plain errors so
// the caller can distinguish "declined" from "unreachable".
func (c *Client) Charge(ctx context.Context, studentID, orderID string, amount float64) error {
	body, err := json.Marshal(chargeRequest{StudentID: studentID, Amount: amount, OrderID: orderID})
	if err != nil {
		return fmt.Errorf("marshal charge request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/charges", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build charge request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	// Repeated charges for the same order must not double-bill.
	req.Header.Set("Idempotency-Key", orderID)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("payment request: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))

	switch {
	case resp.StatusCode == http.StatusOK:
		var cr chargeResponse
		if err := json.Unmarshal(raw, &cr); err != nil {
			return fmt.Errorf("decode charge response: %w", err)
		}
		if cr.Status != "succeeded" {
			return &domain.PaymentError{Reason: cr.Reason}
		}
		return nil
	case resp.StatusCode == http.StatusPaymentRequired || resp.StatusCode == http.StatusUnprocessableEntity:
		var cr chargeResponse
		reason := "declined"
		if json.Unmarshal(raw, &cr) == nil && cr.Reason != "" {
			reason = cr.Reason
		}
		return &domain.PaymentError{Reason: reason}
	default:
		return fmt.Errorf("payment processor returned status %d", resp.StatusCode)
	}
}
