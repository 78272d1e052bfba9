/**
 * @description
 * This file defines the Card domain model for the ATM service. A card is the
 * physical token a customer inserts into the kiosk; it carries a formatted
 * card number and links to exactly one account.
 *
 * @notes
 * - Cards are issued by the admin subsystem and are read-only to the kiosk
 *   core, with the single exception of the `retained` flag which is set when
 *   a card is swallowed after too many failed PIN attempts.
 */
package domain

import (
	"regexp"

	"github.com/google/uuid"
)

// cardNumberPattern matches the issued card number format, e.g. "1000-0001-0001".
var cardNumberPattern = regexp.MustCompile(`^\d{4}-\d{4}-\d{4}$`)

// Card represents an issued ATM card linked to an account.
type Card struct {
	Number    string    `json:"card_number"`
	AccountID uuid.UUID `json:"account_id"`
	Retained  bool      `json:"retained"`
}

// IsValidCardNumber reports whether the raw input matches the NNNN-NNNN-NNNN format.
func IsValidCardNumber(raw string) bool {
	return cardNumberPattern.MatchString(raw)
}
