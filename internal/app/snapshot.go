/**
 * @description
 * Screen snapshots. The session manager is a pure state machine: on every
 * transition it emits a Snapshot describing the whole screen, and any
 * rendering layer redraws from it without owning logic. Snapshots also carry
 * the stable identifiers the rendering contract relies on (per-side slot IDs
 * built from the lower-cased label).
 */
package app

import "github.com/tellerworks/atm-service/internal/domain"

// SlotView is the renderable form of one side button.
type SlotView struct {
	ID      string `json:"id"`
	Side    string `json:"side"`
	Index   int    `json:"index"`
	Label   string `json:"label,omitempty"`
	Enabled bool   `json:"enabled"`
}

// Snapshot describes the full screen at one instant.
type Snapshot struct {
	State     domain.SessionState `json:"state"`
	Title     string              `json:"title"`
	Message   string              `json:"message,omitempty"`
	BufferLen int                 `json:"buffer_len"`
	Balance   *int64              `json:"balance,omitempty"`
	Slots     []SlotView          `json:"slots"`
}

// Snapshot returns the current screen state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() Snapshot {
	state := domain.StateIdle
	bufferLen := 0
	if m.active != nil {
		state = m.active.State
		bufferLen = m.active.Buffer.Len()
	}

	return Snapshot{
		State:     state,
		Title:     m.titleLocked(state),
		Message:   m.lastMessage,
		BufferLen: bufferLen,
		Balance:   m.lastBalance,
		Slots:     m.slotViewsLocked(state),
	}
}

func (m *Manager) titleLocked(state domain.SessionState) string {
	switch state {
	case domain.StateIdle:
		return "Insert Card"
	case domain.StateCardInserted, domain.StatePinEntry:
		return "Enter PIN"
	case domain.StateAuthenticated:
		return "Main Menu"
	case domain.StateOperationInProgress:
		switch m.active.Step {
		case domain.StepPinChangeOld:
			return "Enter Current PIN"
		case domain.StepPinChangeNew:
			return "Enter New PIN"
		case domain.StepPinChangeConfirm:
			return "Confirm New PIN"
		case domain.StepWithdrawAmount:
			return "Enter Amount"
		}
		return "Please Wait"
	}
	return ""
}

// slotViewsLocked renders both button rows. A row always has exactly four
// slots per side; unconfigured positions render as disabled.
func (m *Manager) slotViewsLocked(state domain.SessionState) []SlotView {
	views := make([]SlotView, 0, 2*SlotsPerSide)
	for _, side := range []string{SideLeft, SideRight} {
		row := m.panel.Row(side)
		for i, slot := range row {
			view := SlotView{Side: side, Index: i}
			if slot != nil {
				view.ID = SlotID(side, slot.Label)
				view.Label = slot.Label
				view.Enabled = opAllowed(state, slot.Op)
			}
			views = append(views, view)
		}
	}
	return views
}

// notifyLocked queues a snapshot of the just-completed transition. Delivery
// happens in flushNotifications once the manager's lock is released, so a
// subscriber callback may safely call back into the manager.
func (m *Manager) notifyLocked() {
	if len(m.subscribers) == 0 {
		return
	}
	m.pending = append(m.pending, m.snapshotLocked())
}

// flushNotifications delivers queued snapshots outside the lock. Every public
// input method defers a flush after its unlock.
func (m *Manager) flushNotifications() {
	m.mu.Lock()
	pending := m.pending
	m.pending = nil
	subscribers := make([]func(Snapshot), len(m.subscribers))
	copy(subscribers, m.subscribers)
	m.mu.Unlock()

	for _, snap := range pending {
		for _, fn := range subscribers {
			fn(snap)
		}
	}
}
