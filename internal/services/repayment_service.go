package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sjperalta/lendcore-api/internal/allocation"
	"github.com/sjperalta/lendcore-api/internal/models"
	"github.com/sjperalta/lendcore-api/internal/repository"
	"github.com/sjperalta/lendcore-api/internal/statemachine"
	"github.com/sjperalta/lendcore-api/pkg/logger"
	"gorm.io/gorm"
)

// RepaymentService records payments against loans and reverses them
type RepaymentService struct {
	uow        repository.UnitOfWork
	repayments repository.RepaymentRepository
	loans      repository.LoanRepository
	audit      Auditor
	editWindow time.Duration
	now        func() time.Time
}

// NewRepaymentService creates a new repayment service
func NewRepaymentService(
	uow repository.UnitOfWork,
	repayments repository.RepaymentRepository,
	loans repository.LoanRepository,
	audit Auditor,
	editWindow time.Duration,
) *RepaymentService {
	return &RepaymentService{
		uow:        uow,
		repayments: repayments,
		loans:      loans,
		audit:      audit,
		editWindow: editWindow,
		now:        time.Now,
	}
}

// RecordPaymentInput describes money received against a loan
type RecordPaymentInput struct {
	LoanID     uint
	Amount     decimal.Decimal
	PaidAt     time.Time
	Method     string
	Reference  *string
	Notes      *string
	ReceivedBy uint
}

// RepaymentDetailsInput carries the editable metadata of a repayment. Nil
// fields are left unchanged.
type RepaymentDetailsInput struct {
	Method    *string
	Reference *string
	Notes     *string
}

// ValidateAmount rejects non-positive amounts and amounts with sub-cent
// precision. Amounts are never truncated.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() || !amount.Equal(amount.Round(2)) {
		return ErrInvalidAmount
	}
	return nil
}

func normalizeMethod(method string) (string, error) {
	m := strings.ToUpper(strings.TrimSpace(method))
	if !models.IsValidRepaymentMethod(m) {
		return "", ErrInvalidMethod
	}
	return m, nil
}

// RecordPayment stores a repayment and distributes it over the loan's
// outstanding installments, oldest due date first. Money beyond what the
// schedule still owes is kept on the repayment but not allocated. The loan
// completes once no installment is left unpaid. Everything happens in one
// transaction.
func (s *RepaymentService) RecordPayment(ctx context.Context, in RecordPaymentInput) (*models.Repayment, error) {
	if err := ValidateAmount(in.Amount); err != nil {
		return nil, err
	}
	method, err := normalizeMethod(in.Method)
	if err != nil {
		return nil, err
	}

	paidAt := in.PaidAt
	if paidAt.IsZero() {
		paidAt = s.now()
	}

	var recorded *models.Repayment
	err = s.uow.Do(ctx, func(store repository.Store) error {
		loan, err := store.Loans().FindByIDForUpdate(ctx, in.LoanID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrLoanNotFound
			}
			return fmt.Errorf("lock loan: %w", err)
		}
		if loan.IsDeleted() {
			return ErrLoanNotFound
		}
		if !loan.AcceptsRepayments() {
			return ErrInvalidLoanState
		}

		repayment := &models.Repayment{
			LoanID:       loan.ID,
			Amount:       in.Amount,
			ReceivedByID: in.ReceivedBy,
			Method:       method,
			Reference:    in.Reference,
			Notes:        in.Notes,
			PaidAt:       paidAt,
		}
		if err := store.Repayments().Create(ctx, repayment); err != nil {
			return fmt.Errorf("create repayment: %w", err)
		}

		items, err := store.Schedule().FindOutstandingForUpdate(ctx, loan.ID)
		if err != nil {
			return fmt.Errorf("lock schedule: %w", err)
		}

		now := s.now()
		result := allocation.Allocate(in.Amount, items, now)

		allocations := make([]models.RepaymentAllocation, 0, len(result.Lines))
		for _, line := range result.Lines {
			if err := store.Schedule().UpdateBalance(ctx, line.Item); err != nil {
				return fmt.Errorf("update installment %d: %w", line.Item.ID, err)
			}
			allocations = append(allocations, models.RepaymentAllocation{
				RepaymentID:    repayment.ID,
				ScheduleItemID: line.Item.ID,
				Amount:         line.Amount,
				ScheduleItem:   *line.Item,
			})
		}
		if err := store.Repayments().CreateAllocations(ctx, allocations); err != nil {
			return fmt.Errorf("create allocations: %w", err)
		}
		repayment.Allocations = allocations

		if err := s.completeIfSettled(ctx, store, loan, now); err != nil {
			return err
		}

		if result.Remaining.IsPositive() {
			logger.Warn("Repayment exceeds outstanding schedule",
				"loan_id", loan.ID,
				"repayment_id", repayment.ID,
				"unallocated", result.Remaining.String(),
			)
		}

		recorded = repayment
		return nil
	})
	if err != nil {
		return nil, translateTxError(err)
	}

	logger.Info("Repayment recorded",
		"repayment_id", recorded.ID,
		"loan_id", recorded.LoanID,
		"amount", recorded.Amount.String(),
		"installments", len(recorded.Allocations),
	)
	return recorded, nil
}

// completeIfSettled moves an active loan to COMPLETED when none of its
// installments is left unpaid
func (s *RepaymentService) completeIfSettled(ctx context.Context, store repository.Store, loan *models.Loan, now time.Time) error {
	if loan.Status != models.LoanStatusActive {
		return nil
	}

	unpaid, err := store.Schedule().CountUnpaid(ctx, loan.ID)
	if err != nil {
		return fmt.Errorf("count unpaid installments: %w", err)
	}
	if unpaid > 0 {
		return nil
	}

	if err := statemachine.NewLoanFSM(loan).Complete(ctx); err != nil {
		return err
	}
	closed := now
	loan.ClosedAt = &closed

	if err := store.Loans().Update(ctx, loan); err != nil {
		return fmt.Errorf("complete loan: %w", err)
	}
	return nil
}

// ReverseRepayment undoes every allocation of a repayment, soft-deletes it
// and reopens the loan if it had completed. Allocation rows are kept.
func (s *RepaymentService) ReverseRepayment(ctx context.Context, repaymentID uint) error {
	err := s.uow.Do(ctx, func(store repository.Store) error {
		// Unlocked read to find the loan; the loan lock is always taken first
		current, err := store.Repayments().FindByID(ctx, repaymentID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRepaymentNotFound
			}
			return fmt.Errorf("find repayment: %w", err)
		}

		loan, err := store.Loans().FindByIDForUpdate(ctx, current.LoanID)
		if err != nil {
			return fmt.Errorf("lock loan: %w", err)
		}

		// A concurrent reversal may have won the loan lock
		repayment, err := store.Repayments().FindByIDForUpdate(ctx, repaymentID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRepaymentNotFound
			}
			return fmt.Errorf("lock repayment: %w", err)
		}

		ids := make([]uint, 0, len(repayment.Allocations))
		for _, a := range repayment.Allocations {
			ids = append(ids, a.ScheduleItemID)
		}
		items, err := store.Schedule().FindByIDsForUpdate(ctx, ids)
		if err != nil {
			return fmt.Errorf("lock schedule: %w", err)
		}

		byID := make(map[uint]*models.RepaymentScheduleItem, len(items))
		for _, item := range items {
			byID[item.ID] = item
		}

		now := s.now()
		for _, a := range repayment.Allocations {
			item, ok := byID[a.ScheduleItemID]
			if !ok {
				return fmt.Errorf("installment %d of repayment %d not found", a.ScheduleItemID, repayment.ID)
			}
			allocation.Reverse(item, a.Amount, now)
		}

		for _, item := range items {
			if err := store.Schedule().UpdateBalance(ctx, item); err != nil {
				return fmt.Errorf("update installment %d: %w", item.ID, err)
			}
		}

		if err := store.Repayments().MarkDeleted(ctx, repayment.ID, now); err != nil {
			return fmt.Errorf("delete repayment: %w", err)
		}

		return s.reopenIfUnsettled(ctx, store, loan)
	})
	if err != nil {
		return translateTxError(err)
	}

	logger.Info("Repayment reversed", "repayment_id", repaymentID)
	return nil
}

// reopenIfUnsettled moves a completed loan back to ACTIVE when any of its
// installments is unpaid again
func (s *RepaymentService) reopenIfUnsettled(ctx context.Context, store repository.Store, loan *models.Loan) error {
	if loan.Status != models.LoanStatusCompleted {
		return nil
	}

	unpaid, err := store.Schedule().CountUnpaid(ctx, loan.ID)
	if err != nil {
		return fmt.Errorf("count unpaid installments: %w", err)
	}
	if unpaid == 0 {
		return nil
	}

	if err := statemachine.NewLoanFSM(loan).Reopen(ctx); err != nil {
		return err
	}
	loan.ClosedAt = nil
	if err := store.Loans().Update(ctx, loan); err != nil {
		return fmt.Errorf("reopen loan: %w", err)
	}
	return nil
}

// translateTxError maps exhausted conflict retries to ErrTransient
func translateTxError(err error) error {
	if errors.Is(err, repository.ErrTxConflict) || repository.IsRetryable(err) {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	return err
}

// Create records a repayment on behalf of actor after checking the loan is
// in the actor's branch
func (s *RepaymentService) Create(ctx context.Context, actor Actor, in RecordPaymentInput) (*models.Repayment, error) {
	loan, err := s.loans.FindByID(ctx, in.LoanID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLoanNotFound
		}
		return nil, err
	}
	if !actor.CanAccessBranch(loan.BranchID) {
		return nil, ErrForbidden
	}

	in.ReceivedBy = actor.UserID
	repayment, err := s.RecordPayment(ctx, in)
	if err != nil {
		return nil, err
	}

	s.audit.Record(AuditEntry{
		Actor:    actor,
		Action:   models.AuditActionCreate,
		Entity:   models.AuditEntityRepayment,
		EntityID: repayment.ID,
		Details: fmt.Sprintf("Repayment of %s via %s on loan %d (%d installments, %s unallocated)",
			repayment.Amount.StringFixed(2), repayment.Method, repayment.LoanID,
			len(repayment.Allocations), repayment.ToResponse().Unallocated.StringFixed(2)),
	})
	return repayment, nil
}

// FindByID returns a live repayment visible to actor
func (s *RepaymentService) FindByID(ctx context.Context, actor Actor, id uint) (*models.Repayment, error) {
	repayment, err := s.repayments.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRepaymentNotFound
		}
		return nil, err
	}
	if !actor.CanAccessBranch(repayment.Loan.BranchID) {
		return nil, ErrRepaymentNotFound
	}
	return repayment, nil
}

// ListByLoan returns the live repayments of a loan visible to actor
func (s *RepaymentService) ListByLoan(ctx context.Context, actor Actor, loanID uint, query *repository.ListQuery) ([]models.Repayment, int64, error) {
	loan, err := s.loans.FindByID(ctx, loanID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, 0, ErrLoanNotFound
		}
		return nil, 0, err
	}
	if !actor.CanAccessBranch(loan.BranchID) {
		return nil, 0, ErrLoanNotFound
	}
	return s.repayments.ListByLoan(ctx, loanID, query)
}

// checkModifiable enforces who may change a repayment and until when.
// The receiver, a manager of the branch or an admin may act; only admins
// may act after the edit window closed.
func (s *RepaymentService) checkModifiable(actor Actor, repayment *models.Repayment) error {
	if !actor.CanAccessBranch(repayment.Loan.BranchID) {
		return ErrRepaymentNotFound
	}
	if actor.UserID != repayment.ReceivedByID && !actor.IsManager() {
		return ErrForbidden
	}
	if !actor.IsAdmin() && s.now().Sub(repayment.CreatedAt) > s.editWindow {
		return ErrEditWindowExpired
	}
	return nil
}

// UpdateDetails edits method, reference or notes of a repayment
func (s *RepaymentService) UpdateDetails(ctx context.Context, actor Actor, id uint, in RepaymentDetailsInput) (*models.Repayment, error) {
	repayment, err := s.repayments.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRepaymentNotFound
		}
		return nil, err
	}
	if err := s.checkModifiable(actor, repayment); err != nil {
		return nil, err
	}

	if in.Method != nil {
		method, err := normalizeMethod(*in.Method)
		if err != nil {
			return nil, err
		}
		repayment.Method = method
	}
	if in.Reference != nil {
		repayment.Reference = in.Reference
	}
	if in.Notes != nil {
		repayment.Notes = in.Notes
	}

	if err := s.repayments.UpdateDetails(ctx, repayment); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRepaymentNotFound
		}
		return nil, err
	}

	s.audit.Record(AuditEntry{
		Actor:    actor,
		Action:   models.AuditActionUpdate,
		Entity:   models.AuditEntityRepayment,
		EntityID: repayment.ID,
		Details:  fmt.Sprintf("Repayment details updated (method %s)", repayment.Method),
	})
	return repayment, nil
}

// Delete reverses a repayment on behalf of actor
func (s *RepaymentService) Delete(ctx context.Context, actor Actor, id uint) error {
	repayment, err := s.repayments.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrRepaymentNotFound
		}
		return err
	}
	if err := s.checkModifiable(actor, repayment); err != nil {
		return err
	}

	if err := s.ReverseRepayment(ctx, id); err != nil {
		return err
	}

	s.audit.Record(AuditEntry{
		Actor:    actor,
		Action:   models.AuditActionDelete,
		Entity:   models.AuditEntityRepayment,
		EntityID: id,
		Details: fmt.Sprintf("Repayment of %s on loan %d reversed",
			repayment.Amount.StringFixed(2), repayment.LoanID),
	})
	return nil
}
