/**
 * @description
 * Hardware signal payloads published to RabbitMQ for the rendering layer and
 * peripheral controllers (card slot indicator, dispenser, monitoring).
 */
package domain

import (
	"time"

	"github.com/google/uuid"
)

// CardPresentEvent is published when a card is accepted by the reader.
type CardPresentEvent struct {
	CardNumber string    `json:"card_number"`
	SessionID  uuid.UUID `json:"session_id"`
	Timestamp  time.Time `json:"timestamp"`
}

// CardEjectedEvent is published whenever a card is returned to the customer.
type CardEjectedEvent struct {
	CardNumber string    `json:"card_number"`
	Reason     string    `json:"reason"`
	Timestamp  time.Time `json:"timestamp"`
}

// CardRetainedEvent is published when the kiosk swallows a card after the
// failed-PIN attempt limit is reached.
type CardRetainedEvent struct {
	CardNumber     string    `json:"card_number"`
	FailedAttempts int       `json:"failed_attempts"`
	Timestamp      time.Time `json:"timestamp"`
}

// CashDispensedEvent is published after a successful withdrawal.
type CashDispensedEvent struct {
	AccountID uuid.UUID `json:"account_id"`
	Amount    int64     `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionExpiredEvent is published when the idle timeout forces a session
// back to idle.
type SessionExpiredEvent struct {
	SessionID uuid.UUID `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`
}
