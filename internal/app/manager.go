/**
 * @description
 * This file contains the session manager, the core state machine of the ATM
 * service. It owns the authentication lifecycle: card inserted, PIN entry,
 * authenticated main menu, operation in progress, and back to idle on
 * logout, cancel, timeout or card retention.
 *
 * Key features:
 * - Exactly one active session at a time, enforced by an explicit guard.
 * - Input events are serialized under a single mutex, so they are processed
 *   one at a time in arrival order and operations never interleave mutations
 *   on the same account.
 * - Every input method takes the session value and returns the resulting
 *   session; there is no hidden mutable singleton beyond the active-session
 *   guard itself.
 * - Each state change emits a screen snapshot to subscribers; rendering
 *   layers redraw from snapshots and own no logic.
 *
 * @dependencies
 * - github.com/google/uuid: Session IDs.
 * - golang.org/x/crypto/bcrypt: PIN verification and hashing.
 * - internal/domain, internal/store: Domain models and data access.
 * - pkg/rabbitmq: Hardware signal publishing.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/tellerworks/atm-service/internal/domain"
	"github.com/tellerworks/atm-service/internal/store"
	"github.com/tellerworks/atm-service/pkg/rabbitmq"
)

// Sentinel errors surfaced by the session manager. Every executor failure is
// returned as an explicit error value; nothing is thrown past the manager.
var (
	ErrInvalidCardFormat       = errors.New("invalid card number format")
	ErrSessionAlreadyActive    = errors.New("a session is already active")
	ErrNoActiveSession         = errors.New("no active session")
	ErrCardRetained            = errors.New("card retained")
	ErrAccountInactive         = errors.New("account is inactive")
	ErrPinMismatch             = errors.New("incorrect pin")
	ErrPinIncomplete           = errors.New("pin entry incomplete")
	ErrInvalidNewPIN           = errors.New("new pin must be exactly 4 digits")
	ErrInvalidAmount           = errors.New("invalid withdrawal amount")
	ErrWithdrawalLimitExceeded = errors.New("withdrawal limit exceeded")
	ErrStoreUnavailable        = errors.New("account store unavailable")
	ErrDispenseFailed          = errors.New("cash dispenser failure")
	ErrTooManyInsertAttempts   = errors.New("too many card insert attempts")
	ErrOperationNotAllowed     = errors.New("operation not available in current state")
)

// Dispenser abstracts the cash dispenser controller.
type Dispenser interface {
	Dispense(ctx context.Context, amount int64) error
}

// RateLimiter throttles repeated card-insert attempts. Implementations must
// be nil-safe from the caller's perspective: a nil limiter disables limiting.
type RateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// Options carries the externally supplied constants of the state machine.
// None of these are hard-coded in the core.
type Options struct {
	MaxPINAttempts           int
	IdleTimeout              time.Duration
	WithdrawalLimit          int64
	AmountMaxDigits          int
	CardInsertLimitPerMinute int
}

func (o Options) withDefaults() Options {
	if o.MaxPINAttempts <= 0 {
		o.MaxPINAttempts = 3
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = 60 * time.Second
	}
	if o.WithdrawalLimit <= 0 {
		o.WithdrawalLimit = 50000
	}
	if o.AmountMaxDigits <= 0 {
		o.AmountMaxDigits = 8
	}
	return o
}

// Manager is the kiosk session state machine.
type Manager struct {
	mu        sync.Mutex
	repo      store.Repository
	dispenser Dispenser
	events    rabbitmq.Publisher
	limiter   RateLimiter
	panel     *ButtonPanel
	opts      Options

	active      *domain.Session
	lastMessage string
	lastBalance *int64
	subscribers []func(Snapshot)
	pending     []Snapshot

	now func() time.Time
}

// NewManager creates a new session manager. The limiter may be nil, in which
// case card-insert throttling is disabled.
func NewManager(repo store.Repository, dispenser Dispenser, events rabbitmq.Publisher, limiter RateLimiter, panel *ButtonPanel, opts Options) *Manager {
	return &Manager{
		repo:      repo,
		dispenser: dispenser,
		events:    events,
		limiter:   limiter,
		panel:     panel,
		opts:      opts.withDefaults(),
		now:       time.Now,
	}
}

// Subscribe registers a callback invoked with a fresh screen snapshot after
// every state change. Snapshots are delivered in transition order, outside
// the manager's lock, so a callback may call back into the manager.
func (m *Manager) Subscribe(fn func(Snapshot)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = append(m.subscribers, fn)
}

// Current returns the active session, or nil when the kiosk is idle.
func (m *Manager) Current() *domain.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// InsertCard validates a raw card token and opens a session. Re-insertion
// while a session is active fails fast with ErrSessionAlreadyActive.
func (m *Manager) InsertCard(ctx context.Context, raw string) (*domain.Session, error) {
	m.mu.Lock()
	defer m.flushNotifications()
	defer m.mu.Unlock()

	m.expireIfIdleLocked(ctx)

	if m.active != nil {
		return nil, ErrSessionAlreadyActive
	}
	if !domain.IsValidCardNumber(raw) {
		return nil, ErrInvalidCardFormat
	}

	if m.limiter != nil && m.opts.CardInsertLimitPerMinute > 0 {
		count, _, err := m.limiter.ConsumeRateLimit(ctx, "card_insert", raw, m.opts.CardInsertLimitPerMinute, time.Minute)
		if err != nil {
			log.Printf("level=warn component=session_manager msg=\"card insert rate limiter unavailable\" err=%v", err)
		} else if count > m.opts.CardInsertLimitPerMinute {
			return nil, ErrTooManyInsertAttempts
		}
	}

	card, err := m.repo.FindCardByNumber(ctx, raw)
	if err != nil {
		if errors.Is(err, store.ErrCardNotFound) {
			return nil, store.ErrCardNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if card.Retained {
		return nil, ErrCardRetained
	}

	account, err := m.repo.FindAccountByID(ctx, card.AccountID)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			// A card without a linked account behaves as an unknown card.
			return nil, store.ErrCardNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !account.IsActive {
		return nil, ErrAccountInactive
	}

	now := m.now()
	sess := &domain.Session{
		ID:          uuid.New(),
		State:       domain.StateCardInserted,
		Card:        card,
		Buffer:      domain.NewDigitBuffer(domain.PINLength),
		StartedAt:   now,
		LastInputAt: now,
	}
	m.active = sess

	m.publish(ctx, "card.present", domain.CardPresentEvent{
		CardNumber: card.Number,
		SessionID:  sess.ID,
		Timestamp:  now,
	})

	// CardInserted auto-transitions to PinEntry; there is no timeout between
	// the two.
	sess.State = domain.StatePinEntry
	m.lastMessage = ""
	m.notifyLocked()

	return sess, nil
}

// PressDigit appends a digit to the session's buffer. Digits arriving in a
// state with no keypad consumer are rejected locally with no state change.
func (m *Manager) PressDigit(ctx context.Context, sess *domain.Session, d int) (*domain.Session, error) {
	m.mu.Lock()
	defer m.flushNotifications()
	defer m.mu.Unlock()

	m.expireIfIdleLocked(ctx)
	if err := m.checkActiveLocked(sess); err != nil {
		return m.active, err
	}

	if !m.keypadActiveLocked() {
		return m.active, nil
	}

	m.active.Buffer.Push(d)
	m.touchLocked()
	m.notifyLocked()
	return m.active, nil
}

// PressClear empties the buffer without submitting.
func (m *Manager) PressClear(ctx context.Context, sess *domain.Session) (*domain.Session, error) {
	m.mu.Lock()
	defer m.flushNotifications()
	defer m.mu.Unlock()

	m.expireIfIdleLocked(ctx)
	if err := m.checkActiveLocked(sess); err != nil {
		return m.active, err
	}

	m.active.Buffer.Clear()
	m.touchLocked()
	m.notifyLocked()
	return m.active, nil
}

// PressEnter submits the buffer to whichever consumer is active. The buffer
// is always drained, whatever the outcome.
func (m *Manager) PressEnter(ctx context.Context, sess *domain.Session) (*domain.Session, error) {
	m.mu.Lock()
	defer m.flushNotifications()
	defer m.mu.Unlock()

	m.expireIfIdleLocked(ctx)
	if err := m.checkActiveLocked(sess); err != nil {
		return m.active, err
	}

	switch m.active.State {
	case domain.StatePinEntry:
		return m.pinEntrySubmitLocked(ctx)
	case domain.StateOperationInProgress:
		return m.operationSubmitLocked(ctx)
	default:
		// Enter with no active consumer still clears the buffer.
		m.active.Buffer.Clear()
		m.touchLocked()
		return m.active, nil
	}
}

// PressCancel aborts the current sub-flow and returns the session to the
// nearest stable state: main menu when authenticated, idle otherwise.
// Cancelling with no active session is a no-op.
func (m *Manager) PressCancel(ctx context.Context, sess *domain.Session) (*domain.Session, error) {
	m.mu.Lock()
	defer m.flushNotifications()
	defer m.mu.Unlock()

	m.expireIfIdleLocked(ctx)
	if m.active == nil {
		return nil, nil
	}
	if sess != nil && sess.ID != m.active.ID {
		return m.active, ErrNoActiveSession
	}

	switch m.active.State {
	case domain.StateOperationInProgress:
		m.returnToMenuLocked("Operation cancelled")
		return m.active, nil
	case domain.StateAuthenticated:
		// Already at the nearest stable state; just drop any buffered digits.
		m.active.Buffer.Clear()
		m.touchLocked()
		m.notifyLocked()
		return m.active, nil
	default:
		m.endSessionLocked(ctx, "cancel", true)
		return nil, nil
	}
}

// Logout ends an authenticated session, ejecting the card. Logout with no
// active session is a no-op.
func (m *Manager) Logout(ctx context.Context, sess *domain.Session) (*domain.Session, error) {
	m.mu.Lock()
	defer m.flushNotifications()
	defer m.mu.Unlock()

	m.expireIfIdleLocked(ctx)
	if m.active == nil {
		return nil, nil
	}
	if sess != nil && sess.ID != m.active.ID {
		return m.active, ErrNoActiveSession
	}

	m.endSessionLocked(ctx, "logout", true)
	return nil, nil
}

// PressButton routes a physical side-button press. Empty, padded, or
// state-unavailable slots are inert: pressing them changes nothing.
func (m *Manager) PressButton(ctx context.Context, sess *domain.Session, side string, index int) (*domain.Session, error) {
	m.mu.Lock()
	defer m.flushNotifications()
	defer m.mu.Unlock()

	m.expireIfIdleLocked(ctx)
	if err := m.checkActiveLocked(sess); err != nil {
		return m.active, err
	}

	slot := m.panel.Slot(side, index)
	if slot == nil || !opAllowed(m.active.State, slot.Op) {
		return m.active, nil
	}
	return m.selectOperationLocked(ctx, slot.Op)
}

// SelectOperation invokes an operation directly, bypassing the button panel.
// Unlike a button press, selecting an unavailable operation is an error.
func (m *Manager) SelectOperation(ctx context.Context, sess *domain.Session, op domain.OperationKind) (*domain.Session, error) {
	m.mu.Lock()
	defer m.flushNotifications()
	defer m.mu.Unlock()

	m.expireIfIdleLocked(ctx)
	if err := m.checkActiveLocked(sess); err != nil {
		return m.active, err
	}
	if !opAllowed(m.active.State, op) {
		return m.active, ErrOperationNotAllowed
	}
	return m.selectOperationLocked(ctx, op)
}

// ExpireIdle forces an idle-timed-out session back to idle exactly as cancel
// or logout would. It reports whether a session was expired and is
// idempotent: a late call after the session already ended is a no-op.
func (m *Manager) ExpireIdle(ctx context.Context) bool {
	m.mu.Lock()
	defer m.flushNotifications()
	defer m.mu.Unlock()
	return m.expireIfIdleLocked(ctx)
}

// pinEntrySubmitLocked compares a complete 4-digit buffer against the
// account's stored PIN hash. Comparison only happens at full length.
func (m *Manager) pinEntrySubmitLocked(ctx context.Context) (*domain.Session, error) {
	sess := m.active

	if sess.Buffer.Len() < domain.PINLength {
		sess.Buffer.Clear()
		m.touchLocked()
		m.setMessageLocked("Enter your 4-digit PIN")
		m.notifyLocked()
		return sess, ErrPinIncomplete
	}

	pin := sess.Buffer.Drain()

	account, err := m.repo.FindAccountByID(ctx, sess.Card.AccountID)
	if err != nil {
		m.touchLocked()
		m.setMessageLocked("Service temporarily unavailable")
		m.notifyLocked()
		return sess, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if bcrypt.CompareHashAndPassword([]byte(account.PINHash), []byte(pin)) == nil {
		if err := m.repo.ResetFailedPINAttempts(ctx, account.ID); err != nil {
			log.Printf("level=warn component=session_manager msg=\"failed to reset pin attempt counter\" account_id=%s err=%v", account.ID, err)
		}
		account.FailedPINAttempts = 0
		sess.Account = account
		sess.State = domain.StateAuthenticated
		m.touchLocked()
		m.setMessageLocked("")
		m.notifyLocked()
		return sess, nil
	}

	attempts, err := m.repo.RecordFailedPINAttempt(ctx, account.ID)
	if err != nil {
		log.Printf("level=warn component=session_manager msg=\"failed to record pin attempt\" account_id=%s err=%v", account.ID, err)
		attempts = account.FailedPINAttempts + 1
	}

	if attempts >= m.opts.MaxPINAttempts {
		cardNumber := sess.Card.Number
		if err := m.repo.MarkCardRetained(ctx, cardNumber); err != nil {
			log.Printf("level=error component=session_manager msg=\"failed to flag card retained\" card=%s err=%v", cardNumber, err)
		}
		m.publish(ctx, "card.retained", domain.CardRetainedEvent{
			CardNumber:     cardNumber,
			FailedAttempts: attempts,
			Timestamp:      m.now(),
		})
		log.Printf("level=info component=session_manager msg=\"card retained after failed pin attempts\" card=%s attempts=%d", cardNumber, attempts)
		// The card is swallowed, not returned.
		m.endSessionLocked(ctx, "retained", false)
		return nil, ErrCardRetained
	}

	m.touchLocked()
	m.setMessageLocked("Incorrect PIN")
	m.notifyLocked()
	return sess, ErrPinMismatch
}

// keypadActiveLocked reports whether the current state consumes digits.
func (m *Manager) keypadActiveLocked() bool {
	switch m.active.State {
	case domain.StatePinEntry:
		return true
	case domain.StateOperationInProgress:
		switch m.active.Step {
		case domain.StepPinChangeOld, domain.StepPinChangeNew, domain.StepPinChangeConfirm, domain.StepWithdrawAmount:
			return true
		}
	}
	return false
}

// opAllowed reports whether the session state permits invoking an operation.
func opAllowed(state domain.SessionState, op domain.OperationKind) bool {
	if state != domain.StateAuthenticated {
		return false
	}
	switch op {
	case domain.OpBalance, domain.OpPinChange, domain.OpWithdraw, domain.OpLogout:
		return true
	}
	return false
}

// checkActiveLocked enforces the single-session guard: the caller must hold
// the session the kiosk considers active.
func (m *Manager) checkActiveLocked(sess *domain.Session) error {
	if m.active == nil {
		return ErrNoActiveSession
	}
	if sess == nil || sess.ID != m.active.ID {
		return ErrNoActiveSession
	}
	return nil
}

// expireIfIdleLocked ends the active session if its idle window has elapsed.
func (m *Manager) expireIfIdleLocked(ctx context.Context) bool {
	if m.active == nil {
		return false
	}
	if m.now().Sub(m.active.LastInputAt) < m.opts.IdleTimeout {
		return false
	}

	m.publish(ctx, "session.expired", domain.SessionExpiredEvent{
		SessionID: m.active.ID,
		Timestamp: m.now(),
	})
	log.Printf("level=info component=session_manager msg=\"session expired after idle timeout\" session_id=%s", m.active.ID)
	m.endSessionLocked(ctx, "timeout", true)
	return true
}

// returnToMenuLocked aborts the in-flight sub-flow and restores the
// authenticated main menu.
func (m *Manager) returnToMenuLocked(message string) {
	sess := m.active
	sess.State = domain.StateAuthenticated
	sess.PendingOp = ""
	sess.Step = domain.StepNone
	sess.PendingNewPIN = ""
	sess.Buffer.Clear()
	sess.Buffer.SetLimit(domain.PINLength)
	m.touchLocked()
	m.setMessageLocked(message)
	m.notifyLocked()
}

// endSessionLocked tears the active session down to idle. Every path out of
// PinEntry, Authenticated or OperationInProgress funnels through here, so
// the buffer is always cleared and the authenticated account discarded.
func (m *Manager) endSessionLocked(ctx context.Context, reason string, eject bool) {
	sess := m.active
	if sess == nil {
		return
	}

	if eject && sess.Card != nil {
		m.publish(ctx, "card.ejected", domain.CardEjectedEvent{
			CardNumber: sess.Card.Number,
			Reason:     reason,
			Timestamp:  m.now(),
		})
	}

	sess.Buffer.Clear()
	sess.Account = nil
	sess.PendingOp = ""
	sess.Step = domain.StepNone
	sess.PendingNewPIN = ""
	sess.State = domain.StateIdle

	m.active = nil
	m.lastBalance = nil
	m.lastMessage = ""
	m.notifyLocked()
}

func (m *Manager) touchLocked() {
	if m.active != nil {
		m.active.LastInputAt = m.now()
	}
}

func (m *Manager) setMessageLocked(message string) {
	m.lastMessage = message
}

// publish sends a hardware signal; delivery failures are logged, never fatal
// to the session.
func (m *Manager) publish(ctx context.Context, routingKey string, body interface{}) {
	if m.events == nil {
		return
	}
	if err := m.events.Publish(ctx, rabbitmq.SignalExchange, routingKey, body); err != nil {
		log.Printf("level=warn component=session_manager msg=\"hardware signal publish failed\" routing_key=%s err=%v", routingKey, err)
	}
}
