package app

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/tellerworks/atm-service/internal/domain"
	"github.com/tellerworks/atm-service/internal/store"
	"github.com/tellerworks/atm-service/pkg/dispenserclient"
)

func pressDigits(t *testing.T, m *Manager, sess *domain.Session, digits ...int) {
	t.Helper()
	for _, d := range digits {
		if _, err := m.PressDigit(context.Background(), sess, d); err != nil {
			t.Fatalf("PressDigit returned error: %v", err)
		}
	}
}

func TestBalanceInquiry_ShowsBalanceAndReturnsToMenu(t *testing.T) {
	repo := newSessionRepoStub(t)
	repo.account.Balance = 4200
	m, _ := newTestManager(t, repo, &dispenserStub{})

	sess := authenticate(t, m)
	sess, err := m.SelectOperation(context.Background(), sess, domain.OpBalance)
	if err != nil {
		t.Fatalf("SelectOperation returned error: %v", err)
	}
	if sess.State != domain.StateAuthenticated {
		t.Fatalf("expected balance inquiry to land back on the menu, got state %q", sess.State)
	}

	snap := m.Snapshot()
	if snap.Balance == nil || *snap.Balance != 4200 {
		t.Fatalf("expected snapshot balance 4200, got %v", snap.Balance)
	}
	if snap.Message != "Available balance" {
		t.Fatalf("expected balance message, got %q", snap.Message)
	}
}

func TestBalanceInquiry_StoreFailureReturnsToMenu(t *testing.T) {
	repo := newSessionRepoStub(t)
	m, _ := newTestManager(t, repo, &dispenserStub{})

	sess := authenticate(t, m)
	repo.accountErr = errors.New("connection reset")

	sess, err := m.SelectOperation(context.Background(), sess, domain.OpBalance)
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if sess.State != domain.StateAuthenticated {
		t.Fatalf("expected session to survive a failed inquiry, got state %q", sess.State)
	}
}

func TestSelectOperation_NotAllowedBeforeAuthentication(t *testing.T) {
	repo := newSessionRepoStub(t)
	m, _ := newTestManager(t, repo, &dispenserStub{})

	sess, err := m.InsertCard(context.Background(), testCardNumber)
	if err != nil {
		t.Fatalf("InsertCard returned error: %v", err)
	}
	if _, err := m.SelectOperation(context.Background(), sess, domain.OpBalance); !errors.Is(err, ErrOperationNotAllowed) {
		t.Fatalf("expected ErrOperationNotAllowed before authentication, got %v", err)
	}
}

func TestPinChange_FullFlowUpdatesHash(t *testing.T) {
	repo := newSessionRepoStub(t)
	m, _ := newTestManager(t, repo, &dispenserStub{})
	ctx := context.Background()

	sess := authenticate(t, m)
	sess, err := m.SelectOperation(ctx, sess, domain.OpPinChange)
	if err != nil {
		t.Fatalf("SelectOperation returned error: %v", err)
	}
	if sess.Step != domain.StepPinChangeOld {
		t.Fatalf("expected old-PIN prompt, got step %q", sess.Step)
	}

	// Confirm the current PIN.
	pressDigits(t, m, sess, 1, 2, 3, 4)
	if sess, err = m.PressEnter(ctx, sess); err != nil {
		t.Fatalf("old-PIN confirmation failed: %v", err)
	}
	if sess.Step != domain.StepPinChangeNew {
		t.Fatalf("expected new-PIN prompt, got step %q", sess.Step)
	}

	// Enter and confirm the new PIN.
	pressDigits(t, m, sess, 5, 6, 7, 8)
	if sess, err = m.PressEnter(ctx, sess); err != nil {
		t.Fatalf("new-PIN entry failed: %v", err)
	}
	pressDigits(t, m, sess, 5, 6, 7, 8)
	if sess, err = m.PressEnter(ctx, sess); err != nil {
		t.Fatalf("new-PIN confirmation failed: %v", err)
	}

	if sess.State != domain.StateAuthenticated {
		t.Fatalf("expected return to menu after pin change, got state %q", sess.State)
	}
	if repo.updatedPINHash == "" {
		t.Fatalf("expected new pin hash persisted")
	}
	if bcrypt.CompareHashAndPassword([]byte(repo.updatedPINHash), []byte("5678")) != nil {
		t.Fatalf("persisted hash does not verify the new pin")
	}
	if got := m.Snapshot().Message; got != "PIN changed" {
		t.Fatalf("expected confirmation message, got %q", got)
	}
}

func TestPinChange_WrongOldPINAbortsWithoutMutation(t *testing.T) {
	repo := newSessionRepoStub(t)
	m, _ := newTestManager(t, repo, &dispenserStub{})
	ctx := context.Background()

	sess := authenticate(t, m)
	sess, err := m.SelectOperation(ctx, sess, domain.OpPinChange)
	if err != nil {
		t.Fatalf("SelectOperation returned error: %v", err)
	}

	pressDigits(t, m, sess, 9, 9, 9, 9)
	if sess, err = m.PressEnter(ctx, sess); !errors.Is(err, ErrPinMismatch) {
		t.Fatalf("expected ErrPinMismatch, got %v", err)
	}
	if sess.State != domain.StateAuthenticated {
		t.Fatalf("expected abort back to menu, got state %q", sess.State)
	}
	if repo.updatedPINHash != "" {
		t.Fatalf("expected no hash written on a failed confirmation")
	}
}

func TestPinChange_ConfirmationMismatchLeavesOldPINValid(t *testing.T) {
	repo := newSessionRepoStub(t)
	m, _ := newTestManager(t, repo, &dispenserStub{})
	ctx := context.Background()

	sess := authenticate(t, m)
	sess, err := m.SelectOperation(ctx, sess, domain.OpPinChange)
	if err != nil {
		t.Fatalf("SelectOperation returned error: %v", err)
	}

	pressDigits(t, m, sess, 1, 2, 3, 4)
	if sess, err = m.PressEnter(ctx, sess); err != nil {
		t.Fatalf("old-PIN confirmation failed: %v", err)
	}
	pressDigits(t, m, sess, 5, 6, 7, 8)
	if sess, err = m.PressEnter(ctx, sess); err != nil {
		t.Fatalf("new-PIN entry failed: %v", err)
	}
	pressDigits(t, m, sess, 8, 7, 6, 5)
	if sess, err = m.PressEnter(ctx, sess); !errors.Is(err, ErrPinMismatch) {
		t.Fatalf("expected ErrPinMismatch on confirmation mismatch, got %v", err)
	}

	if repo.updatedPINHash != "" {
		t.Fatalf("expected no hash written after mismatch")
	}
	if sess.PendingNewPIN != "" {
		t.Fatalf("expected pending pin discarded after mismatch")
	}
	if bcrypt.CompareHashAndPassword([]byte(repo.account.PINHash), []byte(testPIN)) != nil {
		t.Fatalf("expected old pin to remain valid")
	}
}

func TestPinChange_CancelMidFlowLeavesOldPINValid(t *testing.T) {
	repo := newSessionRepoStub(t)
	m, _ := newTestManager(t, repo, &dispenserStub{})
	ctx := context.Background()

	sess := authenticate(t, m)
	sess, err := m.SelectOperation(ctx, sess, domain.OpPinChange)
	if err != nil {
		t.Fatalf("SelectOperation returned error: %v", err)
	}

	pressDigits(t, m, sess, 1, 2, 3, 4)
	if sess, err = m.PressEnter(ctx, sess); err != nil {
		t.Fatalf("old-PIN confirmation failed: %v", err)
	}
	pressDigits(t, m, sess, 5, 6)
	if sess, err = m.PressCancel(ctx, sess); err != nil {
		t.Fatalf("PressCancel returned error: %v", err)
	}

	if sess.State != domain.StateAuthenticated {
		t.Fatalf("expected cancel to return to the menu, got state %q", sess.State)
	}
	if sess.Step != domain.StepNone || sess.PendingOp != "" {
		t.Fatalf("expected sub-flow fully unwound")
	}
	if sess.Buffer.Len() != 0 {
		t.Fatalf("expected buffered digits discarded")
	}
	if repo.updatedPINHash != "" {
		t.Fatalf("expected no hash written on cancel")
	}
	if bcrypt.CompareHashAndPassword([]byte(repo.account.PINHash), []byte(testPIN)) != nil {
		t.Fatalf("expected old pin to remain valid after cancel")
	}
}

func TestPinChange_MalformedNewPINStaysOnPrompt(t *testing.T) {
	repo := newSessionRepoStub(t)
	m, _ := newTestManager(t, repo, &dispenserStub{})
	ctx := context.Background()

	sess := authenticate(t, m)
	sess, err := m.SelectOperation(ctx, sess, domain.OpPinChange)
	if err != nil {
		t.Fatalf("SelectOperation returned error: %v", err)
	}
	pressDigits(t, m, sess, 1, 2, 3, 4)
	if sess, err = m.PressEnter(ctx, sess); err != nil {
		t.Fatalf("old-PIN confirmation failed: %v", err)
	}

	pressDigits(t, m, sess, 5, 6)
	if sess, err = m.PressEnter(ctx, sess); !errors.Is(err, ErrInvalidNewPIN) {
		t.Fatalf("expected ErrInvalidNewPIN, got %v", err)
	}
	if sess.Step != domain.StepPinChangeNew {
		t.Fatalf("expected prompt retry on malformed entry, got step %q", sess.Step)
	}
}

func TestWithdrawal_SuccessDebitsExactlyOnce(t *testing.T) {
	repo := newSessionRepoStub(t)
	repo.account.Balance = 10000
	dispenser := &dispenserStub{}
	m, events := newTestManager(t, repo, dispenser)
	ctx := context.Background()

	sess := authenticate(t, m)
	sess, err := m.SelectOperation(ctx, sess, domain.OpWithdraw)
	if err != nil {
		t.Fatalf("SelectOperation returned error: %v", err)
	}
	if sess.Step != domain.StepWithdrawAmount {
		t.Fatalf("expected amount prompt, got step %q", sess.Step)
	}

	pressDigits(t, m, sess, 3, 0, 0, 0)
	if sess, err = m.PressEnter(ctx, sess); err != nil {
		t.Fatalf("withdrawal failed: %v", err)
	}

	if repo.debitAmount != 3000 {
		t.Fatalf("expected debit of 3000, got %d", repo.debitAmount)
	}
	if repo.account.Balance != 7000 {
		t.Fatalf("expected balance 7000 after withdrawal, got %d", repo.account.Balance)
	}
	if len(dispenser.amounts) != 1 || dispenser.amounts[0] != 3000 {
		t.Fatalf("expected one dispense of 3000, got %v", dispenser.amounts)
	}
	if !events.published("cash.dispensed") {
		t.Fatalf("expected cash.dispensed signal")
	}
	if sess.State != domain.StateAuthenticated {
		t.Fatalf("expected return to menu after withdrawal, got state %q", sess.State)
	}
	if got := m.Snapshot().Message; got != "Please take your cash" {
		t.Fatalf("expected dispense message, got %q", got)
	}
}

// staleReadRepoStub hands out account reads with a fixed balance, simulating
// a replica lagging behind the debit.
type staleReadRepoStub struct {
	*sessionRepoStub
	staleBalance int64
}

func (s *staleReadRepoStub) FindAccountByID(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	account, err := s.sessionRepoStub.FindAccountByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	stale := *account
	stale.Balance = s.staleBalance
	return &stale, nil
}

func TestWithdrawal_SessionBalanceMirrorsDebitNotReads(t *testing.T) {
	base := newSessionRepoStub(t)
	base.account.Balance = 10000
	repo := &staleReadRepoStub{sessionRepoStub: base, staleBalance: 10000}
	m, _ := newTestManager(t, repo, &dispenserStub{})
	ctx := context.Background()

	sess := authenticate(t, m)
	sess, err := m.SelectOperation(ctx, sess, domain.OpWithdraw)
	if err != nil {
		t.Fatalf("SelectOperation returned error: %v", err)
	}

	pressDigits(t, m, sess, 3, 0, 0, 0)
	if sess, err = m.PressEnter(ctx, sess); err != nil {
		t.Fatalf("withdrawal failed: %v", err)
	}

	// The session's view of the balance follows the accepted debit, not a
	// store read that may not reflect it yet.
	if sess.Account.Balance != 7000 {
		t.Fatalf("expected session balance 7000 after the debit, got %d", sess.Account.Balance)
	}
}

func TestWithdrawal_InsufficientFundsLeavesBalanceUntouched(t *testing.T) {
	repo := newSessionRepoStub(t)
	repo.account.Balance = 1000
	repo.debitErr = store.ErrInsufficientFunds
	dispenser := &dispenserStub{}
	m, _ := newTestManager(t, repo, dispenser)
	ctx := context.Background()

	sess := authenticate(t, m)
	sess, err := m.SelectOperation(ctx, sess, domain.OpWithdraw)
	if err != nil {
		t.Fatalf("SelectOperation returned error: %v", err)
	}

	pressDigits(t, m, sess, 5, 0, 0, 0)
	if sess, err = m.PressEnter(ctx, sess); !errors.Is(err, store.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if repo.account.Balance != 1000 {
		t.Fatalf("expected balance untouched, got %d", repo.account.Balance)
	}
	if len(dispenser.amounts) != 0 {
		t.Fatalf("expected no dispense attempt, got %v", dispenser.amounts)
	}
	if sess.State != domain.StateAuthenticated {
		t.Fatalf("expected session to survive the failure, got state %q", sess.State)
	}
}

func TestWithdrawal_AmountAboveLimitRejectedBeforeDebit(t *testing.T) {
	repo := newSessionRepoStub(t)
	m, _ := newTestManager(t, repo, &dispenserStub{})
	ctx := context.Background()

	sess := authenticate(t, m)
	sess, err := m.SelectOperation(ctx, sess, domain.OpWithdraw)
	if err != nil {
		t.Fatalf("SelectOperation returned error: %v", err)
	}

	pressDigits(t, m, sess, 9, 9, 9, 9, 9, 9)
	if _, err = m.PressEnter(ctx, sess); !errors.Is(err, ErrWithdrawalLimitExceeded) {
		t.Fatalf("expected ErrWithdrawalLimitExceeded, got %v", err)
	}
	if repo.debitCalled {
		t.Fatalf("expected no debit for an over-limit amount")
	}
}

func TestWithdrawal_ZeroAmountRejected(t *testing.T) {
	repo := newSessionRepoStub(t)
	m, _ := newTestManager(t, repo, &dispenserStub{})
	ctx := context.Background()

	sess := authenticate(t, m)
	sess, err := m.SelectOperation(ctx, sess, domain.OpWithdraw)
	if err != nil {
		t.Fatalf("SelectOperation returned error: %v", err)
	}

	pressDigits(t, m, sess, 0)
	if sess, err = m.PressEnter(ctx, sess); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if sess.Step != domain.StepWithdrawAmount {
		t.Fatalf("expected amount prompt retry, got step %q", sess.Step)
	}
	if repo.debitCalled {
		t.Fatalf("expected no debit for a zero amount")
	}
}

func TestWithdrawal_DispenseFaultRollsDebitBack(t *testing.T) {
	repo := newSessionRepoStub(t)
	repo.account.Balance = 10000
	dispenser := &dispenserStub{err: dispenserclient.ErrHardwareFault}
	m, events := newTestManager(t, repo, dispenser)
	ctx := context.Background()

	sess := authenticate(t, m)
	sess, err := m.SelectOperation(ctx, sess, domain.OpWithdraw)
	if err != nil {
		t.Fatalf("SelectOperation returned error: %v", err)
	}

	pressDigits(t, m, sess, 3, 0, 0, 0)
	if sess, err = m.PressEnter(ctx, sess); !errors.Is(err, ErrDispenseFailed) {
		t.Fatalf("expected ErrDispenseFailed, got %v", err)
	}

	if !repo.debitCalled || !repo.creditCalled {
		t.Fatalf("expected debit then rollback credit, got debit=%t credit=%t", repo.debitCalled, repo.creditCalled)
	}
	if repo.creditAmount != 3000 {
		t.Fatalf("expected rollback of the debited amount, got %d", repo.creditAmount)
	}
	if repo.account.Balance != 10000 {
		t.Fatalf("expected balance restored to 10000, got %d", repo.account.Balance)
	}
	if events.published("cash.dispensed") {
		t.Fatalf("no cash.dispensed signal expected on a hardware fault")
	}
	if sess.State != domain.StateAuthenticated {
		t.Fatalf("expected session back on the menu, got state %q", sess.State)
	}
}

func TestWithdrawal_CancelAtAmountPromptReturnsToMenu(t *testing.T) {
	repo := newSessionRepoStub(t)
	m, _ := newTestManager(t, repo, &dispenserStub{})
	ctx := context.Background()

	sess := authenticate(t, m)
	sess, err := m.SelectOperation(ctx, sess, domain.OpWithdraw)
	if err != nil {
		t.Fatalf("SelectOperation returned error: %v", err)
	}

	pressDigits(t, m, sess, 2, 5)
	if sess, err = m.PressCancel(ctx, sess); err != nil {
		t.Fatalf("PressCancel returned error: %v", err)
	}
	if sess.State != domain.StateAuthenticated {
		t.Fatalf("expected cancel back to the menu, got state %q", sess.State)
	}
	if repo.debitCalled {
		t.Fatalf("expected no debit on cancel")
	}
}
