/**
 * @description
 * This file defines the Account domain model. An account holds the balance a
 * card transacts against, the bcrypt hash of the cardholder PIN, and the
 * failed-attempt counter used for card retention.
 *
 * @notes
 * - Balance is stored in integer minor units and never goes negative; debits
 *   are applied conditionally at the store layer.
 * - `IsActive=false` blocks every kiosk operation on the account.
 */
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Account represents a customer's account as stored in our database.
type Account struct {
	ID                uuid.UUID `json:"id"`
	CustomerID        uuid.UUID `json:"customer_id"`
	PINHash           string    `json:"-"`
	Balance           int64     `json:"balance"` // minor units
	IsActive          bool      `json:"is_active"`
	FailedPINAttempts int       `json:"failed_pin_attempts"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}
