package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sjperalta/lendcore-api/internal/models"
	"github.com/sjperalta/lendcore-api/internal/repository"
	"github.com/sjperalta/lendcore-api/internal/statemachine"
	"github.com/sjperalta/lendcore-api/pkg/logger"
	"gorm.io/gorm"
)

const maxTermMonths = 360

// LoanService handles the loan lifecycle up to and after disbursement
type LoanService struct {
	uow      repository.UnitOfWork
	loans    repository.LoanRepository
	schedule repository.ScheduleRepository
	branches repository.BranchRepository
	planner  *ScheduleService
	audit    Auditor
	now      func() time.Time
}

// NewLoanService creates a new loan service
func NewLoanService(
	uow repository.UnitOfWork,
	loans repository.LoanRepository,
	schedule repository.ScheduleRepository,
	branches repository.BranchRepository,
	planner *ScheduleService,
	audit Auditor,
) *LoanService {
	return &LoanService{
		uow:      uow,
		loans:    loans,
		schedule: schedule,
		branches: branches,
		planner:  planner,
		audit:    audit,
		now:      time.Now,
	}
}

// CreateLoanInput describes a new loan application
type CreateLoanInput struct {
	BranchID      *uint
	OfficerID     *uint
	CustomerName  string
	CustomerPhone string
	Principal     decimal.Decimal
	InterestRate  decimal.Decimal
	TermMonths    int
}

// Create registers a DRAFT loan. Non-admins always create in their own
// branch and default to being the loan officer.
func (s *LoanService) Create(ctx context.Context, actor Actor, in CreateLoanInput) (*models.Loan, error) {
	branchID := actor.ScopeBranch(in.BranchID)
	if branchID == nil {
		return nil, fmt.Errorf("%w: branch_id is required", ErrInvalidInput)
	}
	if _, err := s.branches.FindByID(ctx, *branchID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: unknown branch %d", ErrInvalidInput, *branchID)
		}
		return nil, err
	}

	name := strings.TrimSpace(in.CustomerName)
	if name == "" {
		return nil, fmt.Errorf("%w: customer_name is required", ErrInvalidInput)
	}
	if err := ValidateAmount(in.Principal); err != nil {
		return nil, fmt.Errorf("%w: principal must be positive with at most two decimal places", ErrInvalidInput)
	}
	if in.InterestRate.IsNegative() {
		return nil, fmt.Errorf("%w: interest_rate must not be negative", ErrInvalidInput)
	}
	if in.TermMonths < 1 || in.TermMonths > maxTermMonths {
		return nil, fmt.Errorf("%w: term_months must be between 1 and %d", ErrInvalidInput, maxTermMonths)
	}

	officerID := actor.UserID
	if in.OfficerID != nil && actor.IsManager() {
		officerID = *in.OfficerID
	}

	loan := &models.Loan{
		BranchID:      *branchID,
		OfficerID:     officerID,
		CustomerName:  name,
		CustomerPhone: strings.TrimSpace(in.CustomerPhone),
		Principal:     in.Principal,
		InterestRate:  in.InterestRate,
		TermMonths:    in.TermMonths,
		Status:        models.LoanStatusDraft,
	}
	if err := s.loans.Create(ctx, loan); err != nil {
		return nil, fmt.Errorf("create loan: %w", err)
	}

	s.audit.Record(AuditEntry{
		Actor:    actor,
		Action:   models.AuditActionCreate,
		Entity:   models.AuditEntityLoan,
		EntityID: loan.ID,
		Details: fmt.Sprintf("Loan for %s: %s over %d months at %s%%",
			loan.CustomerName, loan.Principal.StringFixed(2), loan.TermMonths, loan.InterestRate.String()),
	})
	return loan, nil
}

// FindByID returns a loan with its schedule if actor may see it
func (s *LoanService) FindByID(ctx context.Context, actor Actor, id uint) (*models.Loan, error) {
	loan, err := s.loans.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLoanNotFound
		}
		return nil, err
	}
	if !actor.CanAccessBranch(loan.BranchID) {
		return nil, ErrLoanNotFound
	}
	return loan, nil
}

// List returns loans in the actor's branch scope
func (s *LoanService) List(ctx context.Context, actor Actor, query *repository.LoanQuery) ([]models.Loan, int64, error) {
	query.BranchID = actor.ScopeBranch(query.BranchID)
	return s.loans.List(ctx, query)
}

// managerEvents need a manager or admin to fire
var managerEvents = map[string]bool{
	statemachine.EventApprove:  true,
	statemachine.EventDefault:  true,
	statemachine.EventWriteOff: true,
}

// Transition fires a lifecycle event that does not involve money. Activation
// and completion have their own entry points.
func (s *LoanService) Transition(ctx context.Context, actor Actor, id uint, event string) (*models.Loan, error) {
	switch event {
	case statemachine.EventSubmit, statemachine.EventApprove, statemachine.EventCancel,
		statemachine.EventDefault, statemachine.EventWriteOff:
	default:
		return nil, fmt.Errorf("%w: unsupported loan event %q", ErrInvalidInput, event)
	}
	if managerEvents[event] && !actor.IsManager() {
		return nil, ErrForbidden
	}

	var updated *models.Loan
	err := s.uow.Do(ctx, func(store repository.Store) error {
		loan, err := s.lockVisible(ctx, store, actor, id)
		if err != nil {
			return err
		}

		from := loan.Status
		if err := statemachine.NewLoanFSM(loan).Fire(ctx, event); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidState, err)
		}
		switch loan.Status {
		case models.LoanStatusCanceled, models.LoanStatusWrittenOff:
			closed := s.now()
			loan.ClosedAt = &closed
		}

		if err := store.Loans().Update(ctx, loan); err != nil {
			return fmt.Errorf("update loan: %w", err)
		}

		logger.Info("Loan transitioned", "loan_id", loan.ID, "from", from, "to", loan.Status, "event", event)
		updated = loan
		return nil
	})
	if err != nil {
		return nil, translateTxError(err)
	}

	s.audit.Record(AuditEntry{
		Actor:    actor,
		Action:   models.AuditActionUpdate,
		Entity:   models.AuditEntityLoan,
		EntityID: updated.ID,
		Details:  fmt.Sprintf("Loan %s: now %s", event, updated.Status),
	})
	return updated, nil
}

// Activate disburses an approved loan and generates its repayment schedule.
// The first installment is due on firstDue, or one month after activation
// when firstDue is nil.
func (s *LoanService) Activate(ctx context.Context, actor Actor, id uint, firstDue *time.Time) (*models.Loan, error) {
	if !actor.IsManager() {
		return nil, ErrForbidden
	}

	now := s.now()
	due := addMonths(startOfDay(now), 1)
	if firstDue != nil {
		due = startOfDay(*firstDue)
		if due.Before(startOfDay(now)) {
			return nil, fmt.Errorf("%w: first_due_date must not be in the past", ErrInvalidInput)
		}
	}

	err := s.uow.Do(ctx, func(store repository.Store) error {
		loan, err := s.lockVisible(ctx, store, actor, id)
		if err != nil {
			return err
		}

		if err := statemachine.NewLoanFSM(loan).Activate(ctx); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidState, err)
		}
		activated := now
		loan.ActivatedAt = &activated

		items, err := s.planner.Generate(loan, due)
		if err != nil {
			return err
		}
		if err := store.Schedule().CreateBatch(ctx, items); err != nil {
			return fmt.Errorf("create schedule: %w", err)
		}
		if err := store.Loans().Update(ctx, loan); err != nil {
			return fmt.Errorf("activate loan: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, translateTxError(err)
	}

	s.audit.Record(AuditEntry{
		Actor:    actor,
		Action:   models.AuditActionActivate,
		Entity:   models.AuditEntityLoan,
		EntityID: id,
		Details:  fmt.Sprintf("Loan activated, first installment due %s", due.Format("2006-01-02")),
	})
	return s.FindByID(ctx, actor, id)
}

// Delete soft-deletes a loan together with its schedule. Repayments and
// allocations stay as history.
func (s *LoanService) Delete(ctx context.Context, actor Actor, id uint) error {
	if !actor.IsAdmin() {
		return ErrForbidden
	}

	err := s.uow.Do(ctx, func(store repository.Store) error {
		loan, err := s.lockVisible(ctx, store, actor, id)
		if err != nil {
			return err
		}

		now := s.now()
		if err := store.Schedule().SoftDeleteByLoan(ctx, loan.ID, now); err != nil {
			return fmt.Errorf("delete schedule: %w", err)
		}
		if err := store.Loans().SoftDelete(ctx, loan.ID, now); err != nil {
			return fmt.Errorf("delete loan: %w", err)
		}
		return nil
	})
	if err != nil {
		return translateTxError(err)
	}

	s.audit.Record(AuditEntry{
		Actor:    actor,
		Action:   models.AuditActionDelete,
		Entity:   models.AuditEntityLoan,
		EntityID: id,
		Details:  "Loan deleted with its schedule",
	})
	return nil
}

// MarkOverdueItems flags unpaid installments of active loans that fell due
// before today
func (s *LoanService) MarkOverdueItems(ctx context.Context) (int64, error) {
	today := startOfDay(s.now())
	marked, err := s.schedule.MarkOverdue(ctx, today)
	if err != nil {
		return 0, fmt.Errorf("mark overdue installments: %w", err)
	}
	if marked > 0 {
		logger.Info("Installments marked overdue", "count", marked, "as_of", today.Format("2006-01-02"))
	}
	return marked, nil
}

// lockVisible locks a live loan the actor may act on
func (s *LoanService) lockVisible(ctx context.Context, store repository.Store, actor Actor, id uint) (*models.Loan, error) {
	loan, err := store.Loans().FindByIDForUpdate(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLoanNotFound
		}
		return nil, fmt.Errorf("lock loan: %w", err)
	}
	if loan.IsDeleted() || !actor.CanAccessBranch(loan.BranchID) {
		return nil, ErrLoanNotFound
	}
	return loan, nil
}
