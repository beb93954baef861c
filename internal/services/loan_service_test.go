package services

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sjperalta/lendcore-api/internal/models"
	"github.com/sjperalta/lendcore-api/internal/statemachine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type loanFixture struct {
	db    *memDB
	audit *recordingAuditor
	svc   *LoanService
	clock time.Time
}

func newLoanFixture() *loanFixture {
	db := newMemDB()
	db.branches[1] = models.Branch{ID: 1, Code: "CTR", Name: "Centro"}
	db.branches[2] = models.Branch{ID: 2, Code: "NTE", Name: "Norte"}

	f := &loanFixture{
		db:    db,
		audit: &recordingAuditor{},
		clock: time.Date(2026, 1, 31, 15, 30, 0, 0, time.UTC),
	}
	f.svc = NewLoanService(
		&fakeUoW{db: db},
		&memLoanRepo{db: db},
		&memScheduleRepo{db: db},
		&memBranchRepo{db: db},
		NewScheduleService(),
		f.audit,
	)
	f.svc.now = func() time.Time { return f.clock }
	return f
}

func branchActor(userID uint, role string, branch uint) Actor {
	return Actor{UserID: userID, Role: role, BranchID: &branch}
}

func (f *loanFixture) create(t *testing.T, actor Actor) *models.Loan {
	t.Helper()
	loan, err := f.svc.Create(context.Background(), actor, CreateLoanInput{
		CustomerName: " Ana Torres ",
		Principal:    decimal.NewFromInt(1200),
		InterestRate: decimal.NewFromInt(12),
		TermMonths:   3,
	})
	require.NoError(t, err)
	return loan
}

func TestLoanService_Create_ScopesBranch(t *testing.T) {
	f := newLoanFixture()
	officer := branchActor(7, models.RoleOfficer, 1)

	other := uint(2)
	loan, err := f.svc.Create(context.Background(), officer, CreateLoanInput{
		BranchID:     &other,
		OfficerID:    &other,
		CustomerName: "Luis",
		Principal:    decimal.NewFromInt(500),
		TermMonths:   6,
	})
	require.NoError(t, err)
	assert.Equal(t, uint(1), loan.BranchID)
	assert.Equal(t, uint(7), loan.OfficerID)
	assert.Equal(t, models.LoanStatusDraft, loan.Status)
	assert.Equal(t, []string{"Loan:CREATE"}, f.audit.actions())

	admin := Actor{UserID: 1, Role: models.RoleAdmin}
	loan, err = f.svc.Create(context.Background(), admin, CreateLoanInput{
		BranchID:     &other,
		CustomerName: "Marta",
		Principal:    decimal.NewFromInt(500),
		TermMonths:   6,
	})
	require.NoError(t, err)
	assert.Equal(t, uint(2), loan.BranchID)
}

func TestLoanService_Create_Validation(t *testing.T) {
	f := newLoanFixture()
	officer := branchActor(7, models.RoleOfficer, 1)
	unknown := uint(99)

	tests := []struct {
		name  string
		actor Actor
		in    CreateLoanInput
	}{
		{"admin without branch", Actor{UserID: 1, Role: models.RoleAdmin}, CreateLoanInput{CustomerName: "A", Principal: decimal.NewFromInt(10), TermMonths: 1}},
		{"unknown branch", Actor{UserID: 1, Role: models.RoleAdmin}, CreateLoanInput{BranchID: &unknown, CustomerName: "A", Principal: decimal.NewFromInt(10), TermMonths: 1}},
		{"blank customer", officer, CreateLoanInput{CustomerName: "  ", Principal: decimal.NewFromInt(10), TermMonths: 1}},
		{"zero principal", officer, CreateLoanInput{CustomerName: "A", Principal: decimal.Zero, TermMonths: 1}},
		{"negative rate", officer, CreateLoanInput{CustomerName: "A", Principal: decimal.NewFromInt(10), InterestRate: decimal.NewFromInt(-1), TermMonths: 1}},
		{"zero term", officer, CreateLoanInput{CustomerName: "A", Principal: decimal.NewFromInt(10)}},
		{"term too long", officer, CreateLoanInput{CustomerName: "A", Principal: decimal.NewFromInt(10), TermMonths: 361}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(context.Background(), tt.actor, tt.in)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
	assert.Empty(t, f.db.loans)
}

func TestLoanService_Transition(t *testing.T) {
	f := newLoanFixture()
	officer := branchActor(7, models.RoleOfficer, 1)
	manager := branchActor(8, models.RoleManager, 1)

	loan := f.create(t, officer)

	updated, err := f.svc.Transition(context.Background(), officer, loan.ID, statemachine.EventSubmit)
	require.NoError(t, err)
	assert.Equal(t, models.LoanStatusPendingApproval, updated.Status)

	_, err = f.svc.Transition(context.Background(), officer, loan.ID, statemachine.EventApprove)
	assert.ErrorIs(t, err, ErrForbidden)

	updated, err = f.svc.Transition(context.Background(), manager, loan.ID, statemachine.EventApprove)
	require.NoError(t, err)
	assert.Equal(t, models.LoanStatusApproved, updated.Status)

	_, err = f.svc.Transition(context.Background(), manager, loan.ID, statemachine.EventApprove)
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = f.svc.Transition(context.Background(), manager, loan.ID, statemachine.EventComplete)
	assert.ErrorIs(t, err, ErrInvalidInput)

	stranger := branchActor(9, models.RoleManager, 2)
	_, err = f.svc.Transition(context.Background(), stranger, loan.ID, statemachine.EventCancel)
	assert.ErrorIs(t, err, ErrLoanNotFound)

	updated, err = f.svc.Transition(context.Background(), officer, loan.ID, statemachine.EventCancel)
	require.NoError(t, err)
	assert.Equal(t, models.LoanStatusCanceled, updated.Status)
	require.NotNil(t, updated.ClosedAt)
	assert.Equal(t, f.clock, *updated.ClosedAt)
	assert.Equal(t, models.LoanStatusCanceled, f.db.loan(loan.ID).Status)
}

func (f *loanFixture) approved(t *testing.T) *models.Loan {
	t.Helper()
	manager := branchActor(8, models.RoleManager, 1)
	loan := f.create(t, manager)
	_, err := f.svc.Transition(context.Background(), manager, loan.ID, statemachine.EventSubmit)
	require.NoError(t, err)
	_, err = f.svc.Transition(context.Background(), manager, loan.ID, statemachine.EventApprove)
	require.NoError(t, err)
	return loan
}

func TestLoanService_Activate_GeneratesSchedule(t *testing.T) {
	f := newLoanFixture()
	loan := f.approved(t)
	manager := branchActor(8, models.RoleManager, 1)

	activated, err := f.svc.Activate(context.Background(), manager, loan.ID, nil)
	require.NoError(t, err)

	assert.Equal(t, models.LoanStatusActive, activated.Status)
	require.NotNil(t, activated.ActivatedAt)
	require.Len(t, activated.Schedule, 3)

	// Activated on Jan 31: the first installment clamps to Feb 28
	assert.Equal(t, time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC), activated.Schedule[0].DueDate)
	assert.Equal(t, time.Date(2026, 3, 28, 0, 0, 0, 0, time.UTC), activated.Schedule[1].DueDate)
	assert.Equal(t, time.Date(2026, 4, 28, 0, 0, 0, 0, time.UTC), activated.Schedule[2].DueDate)

	total := decimal.Zero
	for _, item := range activated.Schedule {
		assert.Equal(t, models.ScheduleStatusPending, item.Status)
		assert.Equal(t, loan.ID, item.LoanID)
		total = total.Add(item.TotalDue)
	}
	// 1200 + 1200*12%*3/12
	assert.True(t, decimal.NewFromInt(1236).Equal(total), total.String())

	_, err = f.svc.Activate(context.Background(), manager, loan.ID, nil)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Len(t, f.db.items, 3)
}

func TestLoanService_Activate_Rules(t *testing.T) {
	f := newLoanFixture()
	loan := f.approved(t)

	officer := branchActor(7, models.RoleOfficer, 1)
	_, err := f.svc.Activate(context.Background(), officer, loan.ID, nil)
	assert.ErrorIs(t, err, ErrForbidden)

	manager := branchActor(8, models.RoleManager, 1)
	past := f.clock.AddDate(0, 0, -1)
	_, err = f.svc.Activate(context.Background(), manager, loan.ID, &past)
	assert.ErrorIs(t, err, ErrInvalidInput)

	first := time.Date(2026, 2, 15, 10, 0, 0, 0, time.UTC)
	activated, err := f.svc.Activate(context.Background(), manager, loan.ID, &first)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC), activated.Schedule[0].DueDate)
	assert.Equal(t, []string{"Loan:CREATE", "Loan:UPDATE", "Loan:UPDATE", "Loan:ACTIVATE"}, f.audit.actions())
}

func TestLoanService_Delete(t *testing.T) {
	f := newLoanFixture()
	loan, ids := f.db.seedLoan(1, "50", "50")

	manager := branchActor(8, models.RoleManager, 1)
	assert.ErrorIs(t, f.svc.Delete(context.Background(), manager, loan.ID), ErrForbidden)

	admin := Actor{UserID: 1, Role: models.RoleAdmin}
	require.NoError(t, f.svc.Delete(context.Background(), admin, loan.ID))

	assert.NotNil(t, f.db.loan(loan.ID).DeletedAt)
	for _, id := range ids {
		assert.NotNil(t, f.db.item(id).DeletedAt)
	}

	_, err := f.svc.FindByID(context.Background(), admin, loan.ID)
	assert.ErrorIs(t, err, ErrLoanNotFound)
	assert.ErrorIs(t, f.svc.Delete(context.Background(), admin, loan.ID), ErrLoanNotFound)
}

func TestLoanService_MarkOverdueItems(t *testing.T) {
	f := newLoanFixture()
	f.clock = time.Date(2026, 2, 5, 8, 0, 0, 0, time.UTC)

	loan, ids := f.db.seedLoan(1, "50", "50")
	partial := f.db.items[ids[0]]
	partial.Status = models.ScheduleStatusPartial
	f.db.items[ids[0]] = partial

	closed, closedIDs := f.db.seedLoan(1, "50")
	stored := f.db.loans[closed.ID]
	stored.Status = models.LoanStatusDefaulted
	f.db.loans[closed.ID] = stored

	marked, err := f.svc.MarkOverdueItems(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), marked)

	assert.Equal(t, models.ScheduleStatusOverdue, f.db.item(ids[0]).Status)
	// Due today is not yet overdue
	assert.Equal(t, models.ScheduleStatusPending, f.db.item(ids[1]).Status)
	assert.Equal(t, models.ScheduleStatusPending, f.db.item(closedIDs[0]).Status)
	assert.Equal(t, models.LoanStatusActive, f.db.loan(loan.ID).Status)
}

func TestLoanService_TinyLoanCompletesOnFullPayment(t *testing.T) {
	f := newLoanFixture()
	manager := branchActor(8, models.RoleManager, 1)

	loan, err := f.svc.Create(context.Background(), manager, CreateLoanInput{
		CustomerName: "Rosa",
		Principal:    decimal.RequireFromString("0.02"),
		TermMonths:   3,
	})
	require.NoError(t, err)
	for _, event := range []string{statemachine.EventSubmit, statemachine.EventApprove} {
		_, err = f.svc.Transition(context.Background(), manager, loan.ID, event)
		require.NoError(t, err)
	}
	_, err = f.svc.Activate(context.Background(), manager, loan.ID, nil)
	require.NoError(t, err)

	repayments := NewRepaymentService(&fakeUoW{db: f.db}, &memRepaymentRepo{db: f.db}, &memLoanRepo{db: f.db}, f.audit, 24*time.Hour)
	repayments.now = func() time.Time { return f.clock }

	rep, err := repayments.RecordPayment(context.Background(), RecordPaymentInput{
		LoanID:     loan.ID,
		Amount:     decimal.RequireFromString("0.02"),
		Method:     models.RepaymentMethodCash,
		ReceivedBy: 8,
	})
	require.NoError(t, err)
	require.Len(t, rep.Allocations, 1)

	assert.Equal(t, models.LoanStatusCompleted, f.db.loan(loan.ID).Status)
	for _, item := range f.db.items {
		assert.Equal(t, models.ScheduleStatusPaid, item.Status, "installment %d", item.Sequence)
	}

	// Settled installments are never flagged overdue
	f.clock = f.clock.AddDate(1, 0, 0)
	marked, err := f.svc.MarkOverdueItems(context.Background())
	require.NoError(t, err)
	assert.Zero(t, marked)
}
