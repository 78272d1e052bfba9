/**
 * @description
 * This file defines the HTTP handlers for the ATM service's API endpoints.
 * Handlers are responsible for parsing requests, calling the appropriate
 * manager or repository method, and writing the response.
 *
 * The kiosk surface is a thin adapter over the session manager: every input
 * route maps one physical event (card insert, key press, side button press)
 * onto one manager call and answers with the resulting screen snapshot.
 *
 * @dependencies
 * - Standard Go libraries for HTTP, JSON, etc.
 * - Chi router for URL parameter handling.
 * - The service's internal packages for app logic and data access.
 */
package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tellerworks/atm-service/internal/app"
	"github.com/tellerworks/atm-service/internal/domain"
	"github.com/tellerworks/atm-service/internal/store"
)

// KioskHandler holds the dependencies for kiosk-surface handlers.
type KioskHandler struct {
	manager *app.Manager
}

// NewKioskHandler creates a new KioskHandler.
func NewKioskHandler(manager *app.Manager) *KioskHandler {
	return &KioskHandler{manager: manager}
}

// InsertCardRequest defines the expected JSON body for a card insertion.
type InsertCardRequest struct {
	CardNumber string `json:"card_number"`
}

// InsertCard handles a card being presented to the reader.
func (h *KioskHandler) InsertCard(w http.ResponseWriter, r *http.Request) {
	var req InsertCardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	_, err := h.manager.InsertCard(r.Context(), req.CardNumber)
	if err != nil {
		writeKioskError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, h.manager.Snapshot())
}

// PressKey handles a keypad press. The key path parameter is one of the
// digits 0-9 or the function keys "enter", "clear" and "cancel".
func (h *KioskHandler) PressKey(w http.ResponseWriter, r *http.Request) {
	key := strings.ToLower(chi.URLParam(r, "key"))
	sess := h.manager.Current()

	var err error
	switch key {
	case "enter":
		_, err = h.manager.PressEnter(r.Context(), sess)
	case "clear":
		_, err = h.manager.PressClear(r.Context(), sess)
	case "cancel":
		_, err = h.manager.PressCancel(r.Context(), sess)
	default:
		d, convErr := strconv.Atoi(key)
		if convErr != nil || len(key) != 1 || d < 0 || d > 9 {
			writeError(w, http.StatusBadRequest, "Unknown key")
			return
		}
		_, err = h.manager.PressDigit(r.Context(), sess, d)
	}
	if err != nil {
		writeKioskError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, h.manager.Snapshot())
}

// PressButton handles a physical side-button press. Presses on empty,
// padded or disabled slots are absorbed by the manager as no-ops.
func (h *KioskHandler) PressButton(w http.ResponseWriter, r *http.Request) {
	side := strings.ToLower(chi.URLParam(r, "side"))
	if side != app.SideLeft && side != app.SideRight {
		writeError(w, http.StatusBadRequest, "Unknown side")
		return
	}

	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 || index >= app.SlotsPerSide {
		writeError(w, http.StatusBadRequest, "Slot index out of range")
		return
	}

	if _, err := h.manager.PressButton(r.Context(), h.manager.Current(), side, index); err != nil {
		writeKioskError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, h.manager.Snapshot())
}

// GetScreen returns the current screen snapshot.
func (h *KioskHandler) GetScreen(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.manager.Snapshot())
}

// GetButtons returns the current side-button rows, including disabled slots.
func (h *KioskHandler) GetButtons(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.manager.Snapshot().Slots)
}

// AdminHandler holds the dependencies for customer-administration handlers.
type AdminHandler struct {
	repo store.Repository
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(repo store.Repository) *AdminHandler {
	return &AdminHandler{repo: repo}
}

// CustomerRequest defines the expected JSON body for creating or updating a customer.
type CustomerRequest struct {
	FirstName   string  `json:"first_name"`
	LastName    string  `json:"last_name"`
	Email       string  `json:"email"`
	Phone       *string `json:"phone,omitempty"`
	DateOfBirth string  `json:"date_of_birth"`
	IsActive    *bool   `json:"is_active,omitempty"`
}

func (req *CustomerRequest) validate() string {
	if strings.TrimSpace(req.FirstName) == "" {
		return "first_name is required"
	}
	if strings.TrimSpace(req.LastName) == "" {
		return "last_name is required"
	}
	if strings.TrimSpace(req.Email) == "" {
		return "email is required"
	}
	if strings.TrimSpace(req.DateOfBirth) == "" {
		return "date_of_birth is required"
	}
	return ""
}

// CreateCustomer handles the creation of a new customer record.
func (h *AdminHandler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req CustomerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	customer := &domain.Customer{
		FirstName:   strings.TrimSpace(req.FirstName),
		LastName:    strings.TrimSpace(req.LastName),
		Email:       strings.TrimSpace(req.Email),
		Phone:       req.Phone,
		DateOfBirth: strings.TrimSpace(req.DateOfBirth),
		IsActive:    true,
	}

	created, err := h.repo.CreateCustomer(r.Context(), customer)
	if err != nil {
		writeAdminError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

// ListCustomers handles listing all customer records.
func (h *AdminHandler) ListCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := h.repo.ListCustomers(r.Context())
	if err != nil {
		writeAdminError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, customers)
}

// UpdateCustomer handles updating an existing customer record.
func (h *AdminHandler) UpdateCustomer(w http.ResponseWriter, r *http.Request) {
	customerID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid customer ID")
		return
	}

	var req CustomerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	customer := &domain.Customer{
		ID:          customerID,
		FirstName:   strings.TrimSpace(req.FirstName),
		LastName:    strings.TrimSpace(req.LastName),
		Email:       strings.TrimSpace(req.Email),
		Phone:       req.Phone,
		DateOfBirth: strings.TrimSpace(req.DateOfBirth),
		IsActive:    true,
	}
	if req.IsActive != nil {
		customer.IsActive = *req.IsActive
	}

	updated, err := h.repo.UpdateCustomer(r.Context(), customer)
	if err != nil {
		writeAdminError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

// writeKioskError maps session-manager errors onto HTTP status codes.
func writeKioskError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrInvalidCardFormat),
		errors.Is(err, app.ErrPinIncomplete),
		errors.Is(err, app.ErrInvalidNewPIN),
		errors.Is(err, app.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrPinMismatch):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, app.ErrAccountInactive):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, store.ErrCardNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, app.ErrSessionAlreadyActive):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, app.ErrWithdrawalLimitExceeded),
		errors.Is(err, store.ErrInsufficientFunds),
		errors.Is(err, app.ErrOperationNotAllowed):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, app.ErrCardRetained):
		writeError(w, http.StatusLocked, err.Error())
	case errors.Is(err, app.ErrTooManyInsertAttempts):
		writeError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, app.ErrStoreUnavailable),
		errors.Is(err, app.ErrDispenseFailed):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, app.ErrNoActiveSession):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// writeAdminError maps repository errors onto HTTP status codes. Duplicate
// email keeps its short, fixed message so admin forms can show it verbatim.
func writeAdminError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrDuplicateEmail):
		writeError(w, http.StatusConflict, "Duplicate email")
	case errors.Is(err, store.ErrCustomerNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// writeJSON is a helper to write JSON responses.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// The status line is already on the wire; all we can do is log.
		log.Printf("level=error component=api msg=\"failed to encode response\" err=%v", err)
	}
}

// writeError writes a JSON error envelope.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
