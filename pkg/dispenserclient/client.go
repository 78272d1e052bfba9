/**
 * @description
 * This package provides a client for the cash dispenser hardware controller.
 * The controller exposes a single dispense endpoint; a controller-reported
 * fault (jam, empty cassette, shutter failure) is surfaced as ErrHardwareFault
 * so the session core can roll the balance debit back.
 *
 * @dependencies
 * - bytes, context, encoding/json, fmt, net/http, time: Standard Go libraries.
 */
package dispenserclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrHardwareFault is returned when the controller reports a hardware fault.
var ErrHardwareFault = errors.New("dispenser hardware fault")

// Client is a client for the dispenser controller API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new dispenser controller client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type dispenseRequest struct {
	Amount int64 `json:"amount"`
}

type dispenseResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Dispense asks the controller to release amount (in minor units) of cash.
func (c *Client) Dispense(ctx context.Context, amount int64) error {
	if c.baseURL == "" {
		return fmt.Errorf("dispenser base URL is not configured")
	}

	body, err := json.Marshal(dispenseRequest{Amount: amount})
	if err != nil {
		return fmt.Errorf("failed to marshal dispense payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/dispense", bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach dispenser controller: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	var faultBody dispenseResponse
	if decodeErr := json.NewDecoder(resp.Body).Decode(&faultBody); decodeErr == nil && faultBody.Message != "" {
		return fmt.Errorf("%w: %s", ErrHardwareFault, faultBody.Message)
	}
	return fmt.Errorf("%w: controller returned status %d", ErrHardwareFault, resp.StatusCode)
}
