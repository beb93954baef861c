package statemachine

import (
	"context"
	"fmt"

	"github.com/looplab/fsm"
	"github.com/sjperalta/lendcore-api/internal/models"
)

// Loan lifecycle events
const (
	EventSubmit   = "submit"
	EventApprove  = "approve"
	EventActivate = "activate"
	EventComplete = "complete"
	EventReopen   = "reopen"
	EventDefault  = "default"
	EventWriteOff = "write_off"
	EventCancel   = "cancel"
)

// LoanFSM wraps a loan with its state machine
type LoanFSM struct {
	loan *models.Loan
	fsm  *fsm.FSM
}

// NewLoanFSM creates a new loan state machine
func NewLoanFSM(loan *models.Loan) *LoanFSM {
	lfsm := &LoanFSM{
		loan: loan,
	}

	lfsm.fsm = fsm.NewFSM(
		loan.Status,
		fsm.Events{
			// draft → pending approval
			{Name: EventSubmit, Src: []string{models.LoanStatusDraft}, Dst: models.LoanStatusPendingApproval},

			// pending approval → approved
			{Name: EventApprove, Src: []string{models.LoanStatusPendingApproval}, Dst: models.LoanStatusApproved},

			// approved → active (disbursed, schedule generated)
			{Name: EventActivate, Src: []string{models.LoanStatusApproved}, Dst: models.LoanStatusActive},

			// active → completed (every installment paid)
			{Name: EventComplete, Src: []string{models.LoanStatusActive}, Dst: models.LoanStatusCompleted},

			// completed → active (a reversal left an installment unpaid)
			{Name: EventReopen, Src: []string{models.LoanStatusCompleted}, Dst: models.LoanStatusActive},

			// active → defaulted → written off
			{Name: EventDefault, Src: []string{models.LoanStatusActive}, Dst: models.LoanStatusDefaulted},
			{Name: EventWriteOff, Src: []string{models.LoanStatusDefaulted}, Dst: models.LoanStatusWrittenOff},

			// anything before disbursement can be canceled
			{Name: EventCancel, Src: []string{models.LoanStatusDraft, models.LoanStatusPendingApproval, models.LoanStatusApproved}, Dst: models.LoanStatusCanceled},
		},
		fsm.Callbacks{},
	)

	return lfsm
}

// Fire runs event and copies the resulting state onto the loan
func (l *LoanFSM) Fire(ctx context.Context, event string) error {
	if !l.fsm.Can(event) {
		return fmt.Errorf("loan cannot %s in current state: %s", event, l.loan.Status)
	}

	if err := l.fsm.Event(ctx, event); err != nil {
		return fmt.Errorf("failed to %s loan: %w", event, err)
	}

	l.loan.Status = l.fsm.Current()
	return nil
}

// Complete transitions an active loan to completed
func (l *LoanFSM) Complete(ctx context.Context) error {
	return l.Fire(ctx, EventComplete)
}

// Reopen transitions a completed loan back to active
func (l *LoanFSM) Reopen(ctx context.Context) error {
	return l.Fire(ctx, EventReopen)
}

// Activate transitions an approved loan to active
func (l *LoanFSM) Activate(ctx context.Context) error {
	return l.Fire(ctx, EventActivate)
}

// Current returns the current state
func (l *LoanFSM) Current() string {
	return l.fsm.Current()
}

// Can checks if a transition is possible
func (l *LoanFSM) Can(event string) bool {
	return l.fsm.Can(event)
}

// IsKnownEvent reports whether event is part of the loan lifecycle
func IsKnownEvent(event string) bool {
	switch event {
	case EventSubmit, EventApprove, EventActivate, EventComplete,
		EventReopen, EventDefault, EventWriteOff, EventCancel:
		return true
	}
	return false
}
