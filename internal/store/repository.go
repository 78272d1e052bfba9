/**
 * @description
 * This file defines the `Repository` interface, the contract for all data
 * access the ATM service needs. The session manager and the admin API depend
 * on this interface rather than on PostgreSQL directly, which keeps the core
 * testable with hand-written stubs.
 *
 * @dependencies
 * - context: Standard Go library.
 * - github.com/google/uuid: For UUID handling.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/tellerworks/atm-service/internal/domain"
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Card and account methods
	FindCardByNumber(ctx context.Context, cardNumber string) (*domain.Card, error)
	MarkCardRetained(ctx context.Context, cardNumber string) error
	FindAccountByID(ctx context.Context, accountID uuid.UUID) (*domain.Account, error)
	UpdatePINHash(ctx context.Context, accountID uuid.UUID, pinHash string) error
	RecordFailedPINAttempt(ctx context.Context, accountID uuid.UUID) (int, error)
	ResetFailedPINAttempts(ctx context.Context, accountID uuid.UUID) error

	// Balance methods. DebitBalance is conditional: it only applies when the
	// account holds at least the requested amount, so a balance can never go
	// negative.
	DebitBalance(ctx context.Context, accountID uuid.UUID, amount int64) error
	CreditBalance(ctx context.Context, accountID uuid.UUID, amount int64) error

	// Customer methods (admin subsystem)
	CreateCustomer(ctx context.Context, customer *domain.Customer) (*domain.Customer, error)
	ListCustomers(ctx context.Context) ([]domain.Customer, error)
	UpdateCustomer(ctx context.Context, customer *domain.Customer) (*domain.Customer, error)
}
