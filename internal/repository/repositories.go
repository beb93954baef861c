package repository

import (
	"gorm.io/gorm"
)

// Repositories holds all repository instances
type Repositories struct {
	User         UserRepository
	Branch       BranchRepository
	RefreshToken RefreshTokenRepository
	Loan         LoanRepository
	Schedule     ScheduleRepository
	Repayment    RepaymentRepository
	Analytics    AnalyticsRepository
	UnitOfWork   UnitOfWork
}

// NewRepositories creates all repository instances
func NewRepositories(db *gorm.DB, txMaxRetries int) *Repositories {
	return &Repositories{
		User:         NewUserRepository(db),
		Branch:       NewBranchRepository(db),
		RefreshToken: NewRefreshTokenRepository(db),
		Loan:         NewLoanRepository(db),
		Schedule:     NewScheduleRepository(db),
		Repayment:    NewRepaymentRepository(db),
		Analytics:    NewAnalyticsRepository(db),
		UnitOfWork:   NewUnitOfWork(db, txMaxRetries),
	}
}

// ListQuery holds the paging, search and sort parameters shared by list
// endpoints
type ListQuery struct {
	Page    int
	PerPage int
	Search  string
	SortBy  string
	SortDir string
	Filters map[string]string
}

// NewListQuery creates a ListQuery with defaults
func NewListQuery() *ListQuery {
	return &ListQuery{
		Page:    1,
		PerPage: 20,
		Filters: make(map[string]string),
	}
}
