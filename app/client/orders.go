package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrOrderNotFound    = errors.New("order not found")
	ErrInvalidOrderData = errors.New("invalid order data")
)

// OrdersClient reads payable amounts from the orders service.
type OrdersClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewOrdersClient(baseURL, apiKey string, timeout time.Duration) *OrdersClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &OrdersClient{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

type orderResponse struct {
	Amount *decimal.Decimal `json:"amount"`
}

// Amount returns the order amount in minor units. The orders service may send
// the amount as a JSON number or a decimal string.
func (c *OrdersClient) Amount(ctx context.Context, orderID string) (int64, error) {
	endpoint := c.baseURL + "/" + url.PathEscape(strings.TrimSpace(orderID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, err
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return 0, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return 0, fmt.Errorf("orders service returned status %d", resp.StatusCode)
	}

	var payload orderResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidOrderData, err)
	}
	if payload.Amount == nil {
		return 0, fmt.Errorf("%w: amount is missing", ErrInvalidOrderData)
	}
	if !payload.Amount.Equal(payload.Amount.Truncate(0)) {
		return 0, fmt.Errorf("%w: fractional amount %s", ErrInvalidOrderData, payload.Amount.String())
	}
	if !payload.Amount.IsPositive() {
		return 0, fmt.Errorf("%w: amount must be positive", ErrInvalidOrderData)
	}

	return payload.Amount.IntPart(), nil
}
