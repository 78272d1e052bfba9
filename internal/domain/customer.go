/**
 * @description
 * This file defines the Customer domain model owned by the admin subsystem.
 * The kiosk core only reads the account linkage; customer records are created
 * and edited through the admin API.
 */
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Customer represents an admin-managed customer record.
type Customer struct {
	ID           uuid.UUID `json:"id"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Email        string    `json:"email"`
	Phone        *string   `json:"phone,omitempty"`
	DateOfBirth  string    `json:"date_of_birth"`
	IsActive     bool      `json:"is_active"`
	AccountCount int       `json:"account_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
