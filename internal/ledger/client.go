// Package ledger implements the REST client for the credit ledger service,
// the system of record for customer obligations and settlements.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Obligation is one outstanding customer obligation as reported by the
// ledger service.
type Obligation struct {
	ID                int64
	CustomerID        int64
	Number            string
	DueDate           time.Time
	OutstandingAmount float64
}

// StatusError reports a non-2xx response from the ledger service. A 4xx
// status means the ledger rejected the request permanently; callers use
// Permanent to decide whether a retry can help.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("ledger: status %d: %s", e.StatusCode, e.Body)
}

// Permanent reports whether retrying the same request is pointless.
func (e *StatusError) Permanent() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// Client wraps interactions with the credit ledger API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient constructs a new client.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type obligationDTO struct {
	ID                int64       `json:"id"`
	Number            string      `json:"number"`
	DueDate           string      `json:"dueDate"`
	OutstandingAmount json.Number `json:"outstandingAmount"`
}

// SettlementAllocation is one line of a settlement submission.
type SettlementAllocation struct {
	ObligationID int64   `json:"obligationId"`
	Amount       float64 `json:"amount"`
}

// SettlementPayload is the finalized allocation handed to the ledger's
// settlement endpoint after user confirmation.
type SettlementPayload struct {
	CustomerID  int64                  `json:"customerId"`
	Number      string                 `json:"number"`
	Method      string                 `json:"method"`
	Note        string                 `json:"note,omitempty"`
	Allocations []SettlementAllocation `json:"allocations"`
}

// Ping checks if the ledger service is available.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/healthz", c.baseURL), nil)
	if err != nil {
		return err
	}
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return &StatusError{StatusCode: resp.StatusCode}
	}
	return nil
}

// ListObligations fetches a customer's outstanding obligations. The ledger
// serializes amounts as numbers or numeric strings; both are accepted.
func (c *Client) ListObligations(ctx context.Context, customerID int64) ([]Obligation, error) {
	url := fmt.Sprintf("%s/customers/%d/obligations", c.baseURL, customerID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return nil, statusError(resp)
	}

	var dtos []obligationDTO
	if err := json.NewDecoder(resp.Body).Decode(&dtos); err != nil {
		return nil, fmt.Errorf("ledger: decode obligations: %w", err)
	}

	obligations := make([]Obligation, 0, len(dtos))
	for _, dto := range dtos {
		dueDate, err := time.Parse("2006-01-02", dto.DueDate)
		if err != nil {
			return nil, fmt.Errorf("ledger: obligation %d: parse due date %q: %w", dto.ID, dto.DueDate, err)
		}
		amount, err := dto.OutstandingAmount.Float64()
		if err != nil {
			return nil, fmt.Errorf("ledger: obligation %d: parse amount %q: %w", dto.ID, dto.OutstandingAmount, err)
		}
		obligations = append(obligations, Obligation{
			ID:                dto.ID,
			CustomerID:        customerID,
			Number:            dto.Number,
			DueDate:           dueDate,
			OutstandingAmount: amount,
		})
	}
	return obligations, nil
}

// SubmitSettlement posts a confirmed settlement to the ledger service.
func (c *Client) SubmitSettlement(ctx context.Context, payload SettlementPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/settlements", c.baseURL), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return statusError(resp)
	}
	return nil
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return c.httpClient.Do(req)
}

func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &StatusError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(body))}
}
