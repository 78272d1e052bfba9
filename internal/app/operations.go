/**
 * @description
 * Operation executors: balance inquiry, PIN change and cash withdrawal.
 * Executors run only from the authenticated state, synchronously from the
 * state machine's point of view; the session sits in OperationInProgress for
 * the whole duration and accepts nothing but cancel. Every executor returns
 * an explicit error the manager maps to a transition, and a recoverable
 * failure always lands the session back on the main menu.
 *
 * @dependencies
 * - golang.org/x/crypto/bcrypt: Old-PIN confirmation and new-PIN hashing.
 * - internal/domain, internal/store: Domain models and data access.
 * - pkg/dispenserclient: Hardware fault sentinel from the dispenser.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"

	"golang.org/x/crypto/bcrypt"

	"github.com/tellerworks/atm-service/internal/domain"
	"github.com/tellerworks/atm-service/internal/store"
	"github.com/tellerworks/atm-service/pkg/dispenserclient"
)

// selectOperationLocked begins (and for the read-only balance inquiry,
// completes) an operation sub-flow from the authenticated state.
func (m *Manager) selectOperationLocked(ctx context.Context, op domain.OperationKind) (*domain.Session, error) {
	sess := m.active

	switch op {
	case domain.OpLogout:
		m.endSessionLocked(ctx, "logout", true)
		return nil, nil

	case domain.OpBalance:
		sess.State = domain.StateOperationInProgress
		sess.PendingOp = domain.OpBalance
		return m.executeBalanceLocked(ctx)

	case domain.OpPinChange:
		sess.State = domain.StateOperationInProgress
		sess.PendingOp = domain.OpPinChange
		sess.Step = domain.StepPinChangeOld
		sess.Buffer.Clear()
		sess.Buffer.SetLimit(domain.PINLength)
		m.touchLocked()
		m.setMessageLocked("")
		m.notifyLocked()
		return sess, nil

	case domain.OpWithdraw:
		sess.State = domain.StateOperationInProgress
		sess.PendingOp = domain.OpWithdraw
		sess.Step = domain.StepWithdrawAmount
		sess.Buffer.Clear()
		sess.Buffer.SetLimit(m.opts.AmountMaxDigits)
		m.touchLocked()
		m.setMessageLocked("")
		m.notifyLocked()
		return sess, nil
	}

	return sess, ErrOperationNotAllowed
}

// executeBalanceLocked performs the pure-read balance inquiry. A store
// failure is fatal to the operation but never to the session.
func (m *Manager) executeBalanceLocked(ctx context.Context) (*domain.Session, error) {
	sess := m.active

	account, err := m.repo.FindAccountByID(ctx, sess.Account.ID)
	if err != nil {
		m.returnToMenuLocked("Service temporarily unavailable")
		return sess, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	sess.Account = account
	balance := account.Balance
	m.lastBalance = &balance
	m.returnToMenuLocked("Available balance")
	return sess, nil
}

// operationSubmitLocked dispatches an enter press while an operation
// sub-flow is consuming the keypad.
func (m *Manager) operationSubmitLocked(ctx context.Context) (*domain.Session, error) {
	switch m.active.Step {
	case domain.StepPinChangeOld:
		return m.pinChangeOldSubmitLocked()
	case domain.StepPinChangeNew:
		return m.pinChangeNewSubmitLocked()
	case domain.StepPinChangeConfirm:
		return m.pinChangeConfirmSubmitLocked(ctx)
	case domain.StepWithdrawAmount:
		return m.withdrawSubmitLocked(ctx)
	default:
		m.active.Buffer.Clear()
		m.touchLocked()
		return m.active, nil
	}
}

// pinChangeOldSubmitLocked checks the old-PIN confirmation. A failed check
// surfaces PinMismatch and aborts the flow without mutating anything.
func (m *Manager) pinChangeOldSubmitLocked() (*domain.Session, error) {
	sess := m.active

	if sess.Buffer.Len() < domain.PINLength {
		sess.Buffer.Clear()
		m.touchLocked()
		m.setMessageLocked("Enter your current 4-digit PIN")
		m.notifyLocked()
		return sess, ErrPinIncomplete
	}

	entry := sess.Buffer.Drain()
	if bcrypt.CompareHashAndPassword([]byte(sess.Account.PINHash), []byte(entry)) != nil {
		m.returnToMenuLocked("Incorrect PIN")
		return sess, ErrPinMismatch
	}

	sess.Step = domain.StepPinChangeNew
	m.touchLocked()
	m.setMessageLocked("")
	m.notifyLocked()
	return sess, nil
}

// pinChangeNewSubmitLocked accepts the first entry of the new PIN. A
// malformed entry stays on the prompt for another try.
func (m *Manager) pinChangeNewSubmitLocked() (*domain.Session, error) {
	sess := m.active

	entry := sess.Buffer.Drain()
	if len(entry) != domain.PINLength {
		m.touchLocked()
		m.setMessageLocked("PIN must be exactly 4 digits")
		m.notifyLocked()
		return sess, ErrInvalidNewPIN
	}

	sess.PendingNewPIN = entry
	sess.Step = domain.StepPinChangeConfirm
	m.touchLocked()
	m.setMessageLocked("")
	m.notifyLocked()
	return sess, nil
}

// pinChangeConfirmSubmitLocked compares the confirmation entry with the
// pending new PIN and, on match, writes the new hash.
func (m *Manager) pinChangeConfirmSubmitLocked(ctx context.Context) (*domain.Session, error) {
	sess := m.active

	entry := sess.Buffer.Drain()
	pending := sess.PendingNewPIN
	sess.PendingNewPIN = ""

	if entry != pending {
		m.returnToMenuLocked("PIN entries did not match")
		return sess, ErrPinMismatch
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(entry), bcrypt.DefaultCost)
	if err != nil {
		m.returnToMenuLocked("Service temporarily unavailable")
		return sess, fmt.Errorf("failed to hash new pin: %w", err)
	}

	if err := m.repo.UpdatePINHash(ctx, sess.Account.ID, string(hash)); err != nil {
		// The old PIN stays valid; nothing was written.
		m.returnToMenuLocked("Service temporarily unavailable")
		return sess, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	sess.Account.PINHash = string(hash)
	m.returnToMenuLocked("PIN changed")
	return sess, nil
}

// withdrawSubmitLocked executes a withdrawal: validate the amount, debit,
// then dispense. A dispenser hardware fault rolls the debit back before the
// failure is surfaced.
func (m *Manager) withdrawSubmitLocked(ctx context.Context) (*domain.Session, error) {
	sess := m.active

	digits := sess.Buffer.Drain()
	amount, err := strconv.ParseInt(digits, 10, 64)
	if err != nil || amount <= 0 {
		m.touchLocked()
		m.setMessageLocked("Enter a valid amount")
		m.notifyLocked()
		return sess, ErrInvalidAmount
	}

	if amount > m.opts.WithdrawalLimit {
		m.returnToMenuLocked("Amount exceeds the per-transaction limit")
		return sess, ErrWithdrawalLimitExceeded
	}

	accountID := sess.Account.ID
	if err := m.repo.DebitBalance(ctx, accountID, amount); err != nil {
		if errors.Is(err, store.ErrInsufficientFunds) {
			m.returnToMenuLocked("Insufficient funds")
			return sess, store.ErrInsufficientFunds
		}
		m.returnToMenuLocked("Service temporarily unavailable")
		return sess, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if err := m.dispenser.Dispense(ctx, amount); err != nil {
		if refundErr := m.repo.CreditBalance(ctx, accountID, amount); refundErr != nil {
			log.Printf("level=error component=session_manager msg=\"CRITICAL: failed to roll back debit after dispense fault\" account_id=%s amount=%d err=%v", accountID, amount, refundErr)
		}
		if errors.Is(err, dispenserclient.ErrHardwareFault) {
			log.Printf("level=warn component=session_manager msg=\"dispense failed; debit rolled back\" account_id=%s amount=%d err=%v", accountID, amount, err)
			m.returnToMenuLocked("Unable to dispense cash")
			return sess, ErrDispenseFailed
		}
		m.returnToMenuLocked("Unable to dispense cash")
		return sess, fmt.Errorf("%w: %v", ErrDispenseFailed, err)
	}

	// The conditional debit succeeded for exactly this amount; mirror it on
	// the session rather than re-reading the store.
	sess.Account.Balance -= amount

	m.publish(ctx, "cash.dispensed", domain.CashDispensedEvent{
		AccountID: accountID,
		Amount:    amount,
		Timestamp: m.now(),
	})

	m.returnToMenuLocked("Please take your cash")
	return sess, nil
}
