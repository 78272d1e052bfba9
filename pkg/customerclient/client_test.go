package customerclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestBuildPayload_BlankPhoneOmitsKey(t *testing.T) {
	payload := BuildPayload("Ada", "Lovelace", "ada@example.com", "   ", "1990-01-01")

	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("failed to marshal payload: %v", err)
	}
	if strings.Contains(string(body), "phone") {
		t.Fatalf("expected phone key omitted for blank phone, got %s", body)
	}
}

func TestBuildPayload_PhoneIncludedWhenProvided(t *testing.T) {
	payload := BuildPayload("Ada", "Lovelace", "ada@example.com", " +2348012345678 ", "1990-01-01")

	if payload.Phone == nil || *payload.Phone != "+2348012345678" {
		t.Fatalf("expected trimmed phone on payload, got %v", payload.Phone)
	}
}

func TestBuildPayload_TrimsRequiredFields(t *testing.T) {
	payload := BuildPayload(" Ada ", " Lovelace ", " ada@example.com ", "", " 1990-01-01 ")

	if payload.FirstName != "Ada" || payload.LastName != "Lovelace" {
		t.Fatalf("expected trimmed names, got %q %q", payload.FirstName, payload.LastName)
	}
	if payload.Email != "ada@example.com" || payload.DateOfBirth != "1990-01-01" {
		t.Fatalf("expected trimmed email and date of birth, got %q %q", payload.Email, payload.DateOfBirth)
	}
}

func TestCreateCustomer_SuccessClosesWithOK(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/admin/customers" {
			t.Fatalf("unexpected path %q", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		if strings.Contains(string(body), "phone") {
			t.Fatalf("expected no phone key in payload, got %s", body)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := NewClient(server.URL, "token")
	result, err := client.CreateCustomer(context.Background(), BuildPayload("Ada", "Lovelace", "ada@example.com", "", "1990-01-01"))
	if err != nil {
		t.Fatalf("CreateCustomer returned error: %v", err)
	}
	if !result.OK {
		t.Fatalf("expected OK result, got %+v", result)
	}
}

func TestCreateCustomer_RejectionCarriesServerMessageVerbatim(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"Duplicate email"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "token")
	result, err := client.CreateCustomer(context.Background(), BuildPayload("Ada", "Lovelace", "ada@example.com", "", "1990-01-01"))
	if err != nil {
		t.Fatalf("expected rejection to be a result, not an error, got %v", err)
	}
	if result.OK {
		t.Fatalf("expected rejection result")
	}
	if result.Message != "Duplicate email" {
		t.Fatalf("expected server message verbatim, got %q", result.Message)
	}
}

func TestCreateCustomer_UnparsableRejectionFallsBackToStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream dead"))
	}))
	defer server.Close()

	client := NewClient(server.URL, "")
	result, err := client.CreateCustomer(context.Background(), BuildPayload("Ada", "Lovelace", "ada@example.com", "", "1990-01-01"))
	if err != nil {
		t.Fatalf("CreateCustomer returned error: %v", err)
	}
	if result.OK || result.Message != "Request failed with status 502" {
		t.Fatalf("expected status fallback message, got %+v", result)
	}
}
