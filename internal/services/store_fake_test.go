package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sjperalta/lendcore-api/internal/allocation"
	"github.com/sjperalta/lendcore-api/internal/models"
	"github.com/sjperalta/lendcore-api/internal/repository"
	"gorm.io/gorm"
)

// memDB is an in-memory stand-in for the loan tables. Repositories hand out
// copies so that only explicit writes change stored state, like a database.
type memDB struct {
	loans       map[uint]models.Loan
	items       map[uint]models.RepaymentScheduleItem
	repayments  map[uint]models.Repayment
	allocations []models.RepaymentAllocation
	branches    map[uint]models.Branch
	nextID      uint

	// failOn makes the named write fail inside a transaction
	failOn string
	// conflict makes every transaction fail as if retries ran out
	conflict bool
}

var errInjected = errors.New("injected failure")

func newMemDB() *memDB {
	return &memDB{
		loans:      make(map[uint]models.Loan),
		items:      make(map[uint]models.RepaymentScheduleItem),
		repayments: make(map[uint]models.Repayment),
		branches:   make(map[uint]models.Branch),
		nextID:     100,
	}
}

func (db *memDB) id() uint {
	db.nextID++
	return db.nextID
}

func (db *memDB) clone() *memDB {
	c := &memDB{
		loans:       make(map[uint]models.Loan, len(db.loans)),
		items:       make(map[uint]models.RepaymentScheduleItem, len(db.items)),
		repayments:  make(map[uint]models.Repayment, len(db.repayments)),
		allocations: append([]models.RepaymentAllocation(nil), db.allocations...),
		branches:    db.branches,
		nextID:      db.nextID,
	}
	for k, v := range db.loans {
		c.loans[k] = v
	}
	for k, v := range db.items {
		c.items[k] = v
	}
	for k, v := range db.repayments {
		c.repayments[k] = v
	}
	return c
}

func (db *memDB) restore(snap *memDB) {
	db.loans = snap.loans
	db.items = snap.items
	db.repayments = snap.repayments
	db.allocations = snap.allocations
	db.nextID = snap.nextID
}

// seedLoan stores an ACTIVE loan with installments of the given totals, due
// one month apart starting 2026-01-05
func (db *memDB) seedLoan(branchID uint, totals ...string) (models.Loan, []uint) {
	loan := models.Loan{
		ID:        db.id(),
		BranchID:  branchID,
		OfficerID: 1,
		Principal: decimal.NewFromInt(1000),
		Status:    models.LoanStatusActive,
	}
	db.loans[loan.ID] = loan

	ids := make([]uint, 0, len(totals))
	for i, total := range totals {
		item := models.RepaymentScheduleItem{
			ID:         db.id(),
			LoanID:     loan.ID,
			Sequence:   i + 1,
			DueDate:    time.Date(2026, time.Month(i+1), 5, 0, 0, 0, 0, time.UTC),
			TotalDue:   decimal.RequireFromString(total),
			PaidAmount: decimal.Zero,
			Status:     models.ScheduleStatusPending,
		}
		db.items[item.ID] = item
		ids = append(ids, item.ID)
	}
	return loan, ids
}

func (db *memDB) item(id uint) models.RepaymentScheduleItem {
	return db.items[id]
}

func (db *memDB) loan(id uint) models.Loan {
	return db.loans[id]
}

// allocatedTo sums allocations of live repayments for an installment
func (db *memDB) allocatedTo(itemID uint) decimal.Decimal {
	total := decimal.Zero
	for _, a := range db.allocations {
		if a.ScheduleItemID != itemID {
			continue
		}
		if r, ok := db.repayments[a.RepaymentID]; ok && r.DeletedAt == nil {
			total = total.Add(a.Amount)
		}
	}
	return total
}

type fakeUoW struct {
	mu sync.Mutex
	db *memDB
}

func (u *fakeUoW) Do(ctx context.Context, fn func(store repository.Store) error) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.db.conflict {
		return repository.ErrTxConflict
	}

	snap := u.db.clone()
	if err := fn(&memStore{db: u.db}); err != nil {
		u.db.restore(snap)
		return err
	}
	return nil
}

type memStore struct {
	db *memDB
}

func (s *memStore) Loans() repository.LoanRepository { return &memLoanRepo{db: s.db} }

func (s *memStore) Schedule() repository.ScheduleRepository { return &memScheduleRepo{db: s.db} }

func (s *memStore) Repayments() repository.RepaymentRepository { return &memRepaymentRepo{db: s.db} }

type memLoanRepo struct {
	repository.LoanRepository
	db *memDB
}

func (r *memLoanRepo) FindByID(ctx context.Context, id uint) (*models.Loan, error) {
	loan, ok := r.db.loans[id]
	if !ok || loan.DeletedAt != nil {
		return nil, gorm.ErrRecordNotFound
	}
	loan.Schedule = nil
	for _, item := range r.db.items {
		if item.LoanID == id && item.DeletedAt == nil {
			loan.Schedule = append(loan.Schedule, item)
		}
	}
	sort.Slice(loan.Schedule, func(i, j int) bool { return loan.Schedule[i].Sequence < loan.Schedule[j].Sequence })
	return &loan, nil
}

func (r *memLoanRepo) FindByIDForUpdate(ctx context.Context, id uint) (*models.Loan, error) {
	loan, ok := r.db.loans[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &loan, nil
}

func (r *memLoanRepo) Create(ctx context.Context, loan *models.Loan) error {
	loan.ID = r.db.id()
	loan.CreatedAt = time.Now()
	r.db.loans[loan.ID] = *loan
	return nil
}

func (r *memLoanRepo) Update(ctx context.Context, loan *models.Loan) error {
	if r.db.failOn == "update_loan" {
		return errInjected
	}
	stored := *loan
	stored.Schedule = nil
	r.db.loans[loan.ID] = stored
	return nil
}

func (r *memLoanRepo) SoftDelete(ctx context.Context, id uint, at time.Time) error {
	loan := r.db.loans[id]
	loan.DeletedAt = &at
	r.db.loans[id] = loan
	return nil
}

type memScheduleRepo struct {
	repository.ScheduleRepository
	db *memDB
}

func (r *memScheduleRepo) FindOutstandingForUpdate(ctx context.Context, loanID uint) ([]*models.RepaymentScheduleItem, error) {
	var out []*models.RepaymentScheduleItem
	for _, item := range r.db.items {
		item := item
		if item.LoanID == loanID && allocation.Eligible(&item) {
			out = append(out, &item)
		}
	}
	allocation.Order(out)
	return out, nil
}

func (r *memScheduleRepo) FindByIDsForUpdate(ctx context.Context, ids []uint) ([]*models.RepaymentScheduleItem, error) {
	var out []*models.RepaymentScheduleItem
	for _, id := range ids {
		if item, ok := r.db.items[id]; ok {
			out = append(out, &item)
		}
	}
	return out, nil
}

func (r *memScheduleRepo) CountUnpaid(ctx context.Context, loanID uint) (int64, error) {
	var n int64
	for _, item := range r.db.items {
		if item.LoanID == loanID && item.DeletedAt == nil && item.Status != models.ScheduleStatusPaid {
			n++
		}
	}
	return n, nil
}

func (r *memScheduleRepo) CreateBatch(ctx context.Context, items []models.RepaymentScheduleItem) error {
	for i := range items {
		items[i].ID = r.db.id()
		r.db.items[items[i].ID] = items[i]
	}
	return nil
}

func (r *memScheduleRepo) UpdateBalance(ctx context.Context, item *models.RepaymentScheduleItem) error {
	if r.db.failOn == "update_balance" {
		return errInjected
	}
	r.db.items[item.ID] = *item
	return nil
}

func (r *memScheduleRepo) SoftDeleteByLoan(ctx context.Context, loanID uint, at time.Time) error {
	for id, item := range r.db.items {
		if item.LoanID == loanID && item.DeletedAt == nil {
			item.DeletedAt = &at
			r.db.items[id] = item
		}
	}
	return nil
}

func (r *memScheduleRepo) MarkOverdue(ctx context.Context, asOf time.Time) (int64, error) {
	var n int64
	for id, item := range r.db.items {
		loan := r.db.loans[item.LoanID]
		if loan.Status != models.LoanStatusActive || loan.DeletedAt != nil || item.DeletedAt != nil {
			continue
		}
		if item.Status != models.ScheduleStatusPending && item.Status != models.ScheduleStatusPartial {
			continue
		}
		if item.DueDate.Before(asOf) {
			item.Status = models.ScheduleStatusOverdue
			r.db.items[id] = item
			n++
		}
	}
	return n, nil
}

type memRepaymentRepo struct {
	repository.RepaymentRepository
	db *memDB
}

func (r *memRepaymentRepo) withAllocations(rep models.Repayment) models.Repayment {
	rep.Allocations = nil
	for _, a := range r.db.allocations {
		if a.RepaymentID == rep.ID {
			a.ScheduleItem = r.db.items[a.ScheduleItemID]
			rep.Allocations = append(rep.Allocations, a)
		}
	}
	return rep
}

func (r *memRepaymentRepo) FindByID(ctx context.Context, id uint) (*models.Repayment, error) {
	rep, ok := r.db.repayments[id]
	if !ok || rep.DeletedAt != nil {
		return nil, gorm.ErrRecordNotFound
	}
	rep = r.withAllocations(rep)
	rep.Loan = r.db.loans[rep.LoanID]
	return &rep, nil
}

func (r *memRepaymentRepo) FindByIDForUpdate(ctx context.Context, id uint) (*models.Repayment, error) {
	rep, ok := r.db.repayments[id]
	if !ok || rep.DeletedAt != nil {
		return nil, gorm.ErrRecordNotFound
	}
	rep = r.withAllocations(rep)
	return &rep, nil
}

func (r *memRepaymentRepo) Create(ctx context.Context, rep *models.Repayment) error {
	rep.ID = r.db.id()
	if rep.CreatedAt.IsZero() {
		rep.CreatedAt = time.Now()
	}
	stored := *rep
	stored.Allocations = nil
	r.db.repayments[rep.ID] = stored
	return nil
}

func (r *memRepaymentRepo) CreateAllocations(ctx context.Context, allocations []models.RepaymentAllocation) error {
	if r.db.failOn == "create_allocations" {
		return errInjected
	}
	for i := range allocations {
		allocations[i].ID = r.db.id()
		stored := allocations[i]
		stored.ScheduleItem = models.RepaymentScheduleItem{}
		r.db.allocations = append(r.db.allocations, stored)
	}
	return nil
}

func (r *memRepaymentRepo) UpdateDetails(ctx context.Context, rep *models.Repayment) error {
	stored, ok := r.db.repayments[rep.ID]
	if !ok || stored.DeletedAt != nil {
		return gorm.ErrRecordNotFound
	}
	stored.Method = rep.Method
	stored.Reference = rep.Reference
	stored.Notes = rep.Notes
	r.db.repayments[rep.ID] = stored
	return nil
}

func (r *memRepaymentRepo) MarkDeleted(ctx context.Context, id uint, at time.Time) error {
	rep := r.db.repayments[id]
	if rep.DeletedAt == nil {
		rep.DeletedAt = &at
		r.db.repayments[id] = rep
	}
	return nil
}

func (r *memRepaymentRepo) ListByLoan(ctx context.Context, loanID uint, query *repository.ListQuery) ([]models.Repayment, int64, error) {
	var out []models.Repayment
	for _, rep := range r.db.repayments {
		if rep.LoanID == loanID && rep.DeletedAt == nil {
			out = append(out, r.withAllocations(rep))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, int64(len(out)), nil
}

type memBranchRepo struct {
	repository.BranchRepository
	db *memDB
}

func (r *memBranchRepo) FindByID(ctx context.Context, id uint) (*models.Branch, error) {
	b, ok := r.db.branches[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &b, nil
}

type recordingAuditor struct {
	mu      sync.Mutex
	entries []AuditEntry
}

func (a *recordingAuditor) Record(entry AuditEntry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entry)
}

func (a *recordingAuditor) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.entries))
	for _, e := range a.entries {
		out = append(out, e.Entity+":"+e.Action)
	}
	return out
}
