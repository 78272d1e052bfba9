/**
 * @description
 * This package implements the admin-panel form submit contract against the
 * customer API. The payload always carries first_name, last_name, email and
 * date_of_birth, and omits the phone key entirely when the field is blank.
 * A rejection never raises an error to the form: it is returned as a typed
 * SubmitResult carrying the server's message verbatim, so the presentation
 * layer can render it without translation.
 *
 * @dependencies
 * - bytes, context, encoding/json, fmt, net/http, time: Standard Go libraries.
 */
package customerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// CreateCustomerRequest is the admin form payload. Phone is a pointer with
// omitempty so a blank phone drops the key from the serialized payload.
type CreateCustomerRequest struct {
	FirstName   string  `json:"first_name"`
	LastName    string  `json:"last_name"`
	Email       string  `json:"email"`
	Phone       *string `json:"phone,omitempty"`
	DateOfBirth string  `json:"date_of_birth"`
}

// SubmitResult is the typed outcome of a form submit. On rejection, Message
// holds the server's human-readable message verbatim.
type SubmitResult struct {
	OK      bool
	Message string
}

type rejectionBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// Client is a client for the admin customer API.
type Client struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
}

// NewClient creates a new admin customer API client.
func NewClient(baseURL, authToken string) *Client {
	return &Client{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		authToken: authToken,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// BuildPayload normalizes a form submission into the wire payload: required
// fields are trimmed, and a blank phone becomes nil so the key is omitted.
func BuildPayload(firstName, lastName, email, phone, dateOfBirth string) CreateCustomerRequest {
	req := CreateCustomerRequest{
		FirstName:   strings.TrimSpace(firstName),
		LastName:    strings.TrimSpace(lastName),
		Email:       strings.TrimSpace(email),
		DateOfBirth: strings.TrimSpace(dateOfBirth),
	}
	if p := strings.TrimSpace(phone); p != "" {
		req.Phone = &p
	}
	return req
}

// CreateCustomer submits the form payload. Transport failures return an
// error; an HTTP rejection is a normal SubmitResult with OK=false.
func (c *Client) CreateCustomer(ctx context.Context, payload CreateCustomerRequest) (SubmitResult, error) {
	if c.baseURL == "" {
		return SubmitResult{}, fmt.Errorf("customer API base URL is not configured")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("failed to marshal customer payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/admin/customers", bytes.NewBuffer(body))
	if err != nil {
		return SubmitResult{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("failed to reach customer API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return SubmitResult{OK: true}, nil
	}

	var rejection rejectionBody
	if decodeErr := json.NewDecoder(resp.Body).Decode(&rejection); decodeErr == nil {
		if rejection.Message != "" {
			return SubmitResult{OK: false, Message: rejection.Message}, nil
		}
		if rejection.Error != "" {
			return SubmitResult{OK: false, Message: rejection.Error}, nil
		}
	}
	return SubmitResult{OK: false, Message: fmt.Sprintf("Request failed with status %d", resp.StatusCode)}, nil
}
