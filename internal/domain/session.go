/**
 * @description
 * This file defines the Session domain model and its state enum. A session is
 * the lifecycle of one card-insertion-to-logout interaction; exactly one may
 * be active at a time on the kiosk.
 *
 * @notes
 * - State transitions happen only through the session manager; the struct
 *   itself carries no transition logic.
 * - Any transition back to Idle clears the digit buffer and discards the
 *   authenticated account.
 */
package domain

import (
	"time"

	"github.com/google/uuid"
)

// SessionState identifies where a session is in the authentication lifecycle.
type SessionState string

const (
	StateIdle                SessionState = "idle"
	StateCardInserted        SessionState = "card_inserted"
	StatePinEntry            SessionState = "pin_entry"
	StateAuthenticated       SessionState = "authenticated"
	StateOperationInProgress SessionState = "operation_in_progress"
)

// OperationKind identifies the sub-flow a side button invokes.
type OperationKind string

const (
	OpBalance   OperationKind = "balance"
	OpPinChange OperationKind = "pin_change"
	OpWithdraw  OperationKind = "withdrawal"
	OpLogout    OperationKind = "logout"
)

// FlowStep tracks progress through a multi-prompt operation sub-flow.
type FlowStep string

const (
	StepNone             FlowStep = ""
	StepPinChangeOld     FlowStep = "pin_change_old"
	StepPinChangeNew     FlowStep = "pin_change_new"
	StepPinChangeConfirm FlowStep = "pin_change_confirm"
	StepWithdrawAmount   FlowStep = "withdraw_amount"
)

// Session represents one active card-insertion-to-logout interaction.
type Session struct {
	ID        uuid.UUID     `json:"id"`
	State     SessionState  `json:"state"`
	Card      *Card         `json:"card,omitempty"`
	Buffer    *DigitBuffer  `json:"-"`
	Account   *Account      `json:"account,omitempty"`
	PendingOp OperationKind `json:"pending_operation,omitempty"`
	Step      FlowStep      `json:"-"`
	// PendingNewPIN holds the first entry of a new PIN between the entry and
	// confirmation prompts of the PIN-change flow. Never serialized.
	PendingNewPIN string    `json:"-"`
	StartedAt     time.Time `json:"started_at"`
	LastInputAt   time.Time `json:"last_input_at"`
}
