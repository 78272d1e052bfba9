/**
 * @description
 * This file contains the PostgreSQL implementation of the Repository
 * interface. It uses the pgx connection pool for all queries and maps
 * database-level failures to the sentinel errors the application layer
 * branches on.
 *
 * Key features:
 * - Conditional balance debit so an account balance can never go negative.
 * - Atomic failed-PIN attempt counting with the new count returned in the
 *   same statement.
 * - Unique-email enforcement surfaced as ErrDuplicateEmail so the admin API
 *   can render the rejection message verbatim.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: PostgreSQL driver and connection pool.
 * - internal/domain: Domain models.
 */

package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tellerworks/atm-service/internal/domain"
)

// Sentinel errors returned by the repository.
var (
	ErrCardNotFound      = errors.New("card not found")
	ErrAccountNotFound   = errors.New("account not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrCustomerNotFound  = errors.New("customer not found")
	ErrDuplicateEmail    = errors.New("duplicate email")
)

// uniqueViolation is the PostgreSQL SQLSTATE for unique constraint failures.
const uniqueViolation = "23505"

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// FindCardByNumber retrieves an issued card by its formatted number.
func (r *PostgresRepository) FindCardByNumber(ctx context.Context, cardNumber string) (*domain.Card, error) {
	var card domain.Card
	query := `SELECT card_number, account_id, retained FROM cards WHERE card_number = $1`
	err := r.db.QueryRow(ctx, query, cardNumber).Scan(&card.Number, &card.AccountID, &card.Retained)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrCardNotFound
		}
		return nil, err
	}
	return &card, nil
}

// MarkCardRetained flags a card as swallowed by the kiosk. A retained card is
// never returned and cannot open another session.
func (r *PostgresRepository) MarkCardRetained(ctx context.Context, cardNumber string) error {
	tag, err := r.db.Exec(ctx, `UPDATE cards SET retained = TRUE WHERE card_number = $1`, cardNumber)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCardNotFound
	}
	return nil
}

// FindAccountByID retrieves an account from the database by its ID.
func (r *PostgresRepository) FindAccountByID(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	var account domain.Account
	query := `
		SELECT id, customer_id, pin_hash, balance, is_active, failed_pin_attempts, created_at, updated_at
		FROM accounts
		WHERE id = $1
	`
	err := r.db.QueryRow(ctx, query, accountID).Scan(
		&account.ID,
		&account.CustomerID,
		&account.PINHash,
		&account.Balance,
		&account.IsActive,
		&account.FailedPINAttempts,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// UpdatePINHash writes a freshly generated PIN hash after a PIN change.
func (r *PostgresRepository) UpdatePINHash(ctx context.Context, accountID uuid.UUID, pinHash string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE accounts SET pin_hash = $2, updated_at = NOW() WHERE id = $1`,
		accountID, pinHash,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// RecordFailedPINAttempt atomically increments the failed-attempt counter and
// returns the new count so the caller can decide whether to retain the card.
func (r *PostgresRepository) RecordFailedPINAttempt(ctx context.Context, accountID uuid.UUID) (int, error) {
	var attempts int
	query := `
		UPDATE accounts
		SET failed_pin_attempts = failed_pin_attempts + 1, updated_at = NOW()
		WHERE id = $1
		RETURNING failed_pin_attempts
	`
	err := r.db.QueryRow(ctx, query, accountID).Scan(&attempts)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, ErrAccountNotFound
		}
		return 0, err
	}
	return attempts, nil
}

// ResetFailedPINAttempts clears the failed-attempt counter after a successful
// PIN verification.
func (r *PostgresRepository) ResetFailedPINAttempts(ctx context.Context, accountID uuid.UUID) error {
	_, err := r.db.Exec(ctx,
		`UPDATE accounts SET failed_pin_attempts = 0, updated_at = NOW() WHERE id = $1`,
		accountID,
	)
	return err
}

// DebitBalance subtracts amount from an account, but only when the account
// holds at least that much. A zero-row update means insufficient funds.
func (r *PostgresRepository) DebitBalance(ctx context.Context, accountID uuid.UUID, amount int64) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE accounts SET balance = balance - $2, updated_at = NOW() WHERE id = $1 AND balance >= $2`,
		accountID, amount,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInsufficientFunds
	}
	return nil
}

// CreditBalance adds amount to an account. Used for dispense-failure rollback.
func (r *PostgresRepository) CreditBalance(ctx context.Context, accountID uuid.UUID, amount int64) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE accounts SET balance = balance + $2, updated_at = NOW() WHERE id = $1`,
		accountID, amount,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// CreateCustomer inserts a new admin-managed customer record. The customers
// table enforces a unique email; violations surface as ErrDuplicateEmail.
func (r *PostgresRepository) CreateCustomer(ctx context.Context, customer *domain.Customer) (*domain.Customer, error) {
	if customer.ID == uuid.Nil {
		customer.ID = uuid.New()
	}
	query := `
		INSERT INTO customers (id, first_name, last_name, email, phone, date_of_birth, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		customer.ID,
		customer.FirstName,
		customer.LastName,
		customer.Email,
		customer.Phone,
		customer.DateOfBirth,
		customer.IsActive,
	).Scan(&customer.CreatedAt, &customer.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateEmail
		}
		return nil, err
	}
	return customer, nil
}

// ListCustomers returns all customer records with their linked account counts.
func (r *PostgresRepository) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	query := `
		SELECT c.id, c.first_name, c.last_name, c.email, c.phone, c.date_of_birth,
		       c.is_active, COUNT(a.id) AS account_count, c.created_at, c.updated_at
		FROM customers c
		LEFT JOIN accounts a ON a.customer_id = c.id
		GROUP BY c.id
		ORDER BY c.created_at DESC
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var customers []domain.Customer
	for rows.Next() {
		var c domain.Customer
		if err := rows.Scan(
			&c.ID, &c.FirstName, &c.LastName, &c.Email, &c.Phone, &c.DateOfBirth,
			&c.IsActive, &c.AccountCount, &c.CreatedAt, &c.UpdatedAt,
		); err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

// UpdateCustomer edits an existing customer record. Email uniqueness is
// enforced here as well.
func (r *PostgresRepository) UpdateCustomer(ctx context.Context, customer *domain.Customer) (*domain.Customer, error) {
	query := `
		UPDATE customers
		SET first_name = $2, last_name = $3, email = $4, phone = $5,
		    date_of_birth = $6, is_active = $7, updated_at = NOW()
		WHERE id = $1
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		customer.ID,
		customer.FirstName,
		customer.LastName,
		customer.Email,
		customer.Phone,
		customer.DateOfBirth,
		customer.IsActive,
	).Scan(&customer.CreatedAt, &customer.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrCustomerNotFound
		}
		if isUniqueViolation(err) {
			return nil, ErrDuplicateEmail
		}
		return nil, err
	}
	return customer, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
