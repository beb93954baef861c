package services

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sjperalta/lendcore-api/internal/allocation"
	"github.com/sjperalta/lendcore-api/internal/models"
)

var (
	hundred      = decimal.NewFromInt(100)
	monthsInYear = decimal.NewFromInt(12)
)

// ScheduleService builds repayment plans for loans being disbursed
type ScheduleService struct{}

// NewScheduleService creates a new schedule service
func NewScheduleService() *ScheduleService {
	return &ScheduleService{}
}

// Generate builds equal monthly installments with flat interest:
// interest = principal × rate% × term/12. Principal and interest per
// installment are rounded down to cents and the first installment carries
// the remainder, so the plan sums exactly to principal + interest.
// Installments that round to zero are created already PAID.
func (s *ScheduleService) Generate(loan *models.Loan, firstDue time.Time) ([]models.RepaymentScheduleItem, error) {
	if !loan.Principal.IsPositive() {
		return nil, fmt.Errorf("%w: principal must be positive", ErrInvalidInput)
	}
	if loan.InterestRate.IsNegative() {
		return nil, fmt.Errorf("%w: interest rate must not be negative", ErrInvalidInput)
	}
	if loan.TermMonths <= 0 {
		return nil, fmt.Errorf("%w: term must be at least one month", ErrInvalidInput)
	}

	term := decimal.NewFromInt(int64(loan.TermMonths))
	totalInterest := loan.Principal.
		Mul(loan.InterestRate).Div(hundred).
		Mul(term).Div(monthsInYear).
		Round(2)

	basePrincipal := loan.Principal.Div(term).RoundFloor(2)
	baseInterest := totalInterest.Div(term).RoundFloor(2)

	others := decimal.NewFromInt(int64(loan.TermMonths - 1))
	firstPrincipal := loan.Principal.Sub(basePrincipal.Mul(others))
	firstInterest := totalInterest.Sub(baseInterest.Mul(others))

	settledAt := firstDue
	if loan.ActivatedAt != nil {
		settledAt = *loan.ActivatedAt
	}

	items := make([]models.RepaymentScheduleItem, 0, loan.TermMonths)
	for i := 0; i < loan.TermMonths; i++ {
		principal, interest := basePrincipal, baseInterest
		if i == 0 {
			principal, interest = firstPrincipal, firstInterest
		}

		item := models.RepaymentScheduleItem{
			LoanID:       loan.ID,
			Sequence:     i + 1,
			DueDate:      addMonths(firstDue, i),
			PrincipalDue: principal,
			InterestDue:  interest,
			TotalDue:     principal.Add(interest),
			PaidAmount:   decimal.Zero,
		}
		allocation.Apply(&item, decimal.Zero, settledAt)
		items = append(items, item)
	}

	return items, nil
}

// addMonths moves t forward n calendar months, clamping to the last day of
// the target month (Jan 31 + 1 month = Feb 28/29)
func addMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	target := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
	lastDay := target.AddDate(0, 1, -1).Day()
	if d > lastDay {
		d = lastDay
	}
	return time.Date(target.Year(), target.Month(), d, 0, 0, 0, 0, time.UTC)
}

// startOfDay truncates t to midnight UTC of its calendar day
func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
