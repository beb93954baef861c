// Package allocation distributes repayments across loan installments and
// reverses those distributions. It only mutates the schedule items it is
// given; persistence and locking belong to the caller.
package allocation

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sjperalta/lendcore-api/internal/models"
)

// Line is the portion of a payment applied to one installment
type Line struct {
	Item   *models.RepaymentScheduleItem
	Amount decimal.Decimal
}

// Result describes how a payment was distributed
type Result struct {
	Lines     []Line
	Allocated decimal.Decimal
	// Remaining is the part of the payment that found no outstanding
	// installment. It is not credited anywhere.
	Remaining decimal.Decimal
}

// Touched returns the schedule items that received money
func (r Result) Touched() []*models.RepaymentScheduleItem {
	items := make([]*models.RepaymentScheduleItem, 0, len(r.Lines))
	for _, l := range r.Lines {
		items = append(items, l.Item)
	}
	return items
}

// Order sorts items oldest obligation first: due date ascending, then
// sequence ascending.
func Order(items []*models.RepaymentScheduleItem) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if !a.DueDate.Equal(b.DueDate) {
			return a.DueDate.Before(b.DueDate)
		}
		return a.Sequence < b.Sequence
	})
}

// Eligible reports whether an item may receive money
func Eligible(item *models.RepaymentScheduleItem) bool {
	if item.IsDeleted() {
		return false
	}
	switch item.Status {
	case models.ScheduleStatusPending, models.ScheduleStatusPartial, models.ScheduleStatusOverdue:
		return true
	}
	return false
}

// Allocate walks the eligible items in due order and applies amount to them
// until it is exhausted. Items are updated in place.
func Allocate(amount decimal.Decimal, items []*models.RepaymentScheduleItem, now time.Time) Result {
	ordered := make([]*models.RepaymentScheduleItem, 0, len(items))
	for _, item := range items {
		if Eligible(item) {
			ordered = append(ordered, item)
		}
	}
	Order(ordered)

	res := Result{Allocated: decimal.Zero, Remaining: amount}
	for _, item := range ordered {
		if !res.Remaining.IsPositive() {
			break
		}

		outstanding := item.Outstanding()
		if !outstanding.IsPositive() {
			continue
		}

		allocated := decimal.Min(res.Remaining, outstanding)
		Apply(item, allocated, now)

		res.Lines = append(res.Lines, Line{Item: item, Amount: allocated})
		res.Allocated = res.Allocated.Add(allocated)
		res.Remaining = res.Remaining.Sub(allocated)
	}

	return res
}

// Apply adds amount to the item's paid amount and recomputes its status
func Apply(item *models.RepaymentScheduleItem, amount decimal.Decimal, now time.Time) {
	item.PaidAmount = item.PaidAmount.Add(amount)
	settle(item, now)
}

// Reverse removes amount from the item's paid amount and recomputes its
// status. The paid amount never drops below zero.
func Reverse(item *models.RepaymentScheduleItem, amount decimal.Decimal, now time.Time) {
	paid := item.PaidAmount.Sub(amount)
	if paid.IsNegative() {
		paid = decimal.Zero
	}
	item.PaidAmount = paid
	settle(item, now)
}

// Status derives an installment status from its paid and due amounts
func Status(paid, totalDue decimal.Decimal) string {
	switch {
	case paid.GreaterThanOrEqual(totalDue):
		return models.ScheduleStatusPaid
	case paid.IsPositive():
		return models.ScheduleStatusPartial
	default:
		return models.ScheduleStatusPending
	}
}

func settle(item *models.RepaymentScheduleItem, now time.Time) {
	item.Status = Status(item.PaidAmount, item.TotalDue)
	if item.Status == models.ScheduleStatusPaid {
		if item.ClosedAt == nil {
			closed := now
			item.ClosedAt = &closed
		}
		return
	}
	item.ClosedAt = nil
}

// AllPaid reports whether every non-deleted item is PAID
func AllPaid(items []*models.RepaymentScheduleItem) bool {
	for _, item := range items {
		if item.IsDeleted() {
			continue
		}
		if !item.IsPaid() {
			return false
		}
	}
	return true
}
