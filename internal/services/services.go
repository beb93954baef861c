package services

import (
	"github.com/sjperalta/lendcore-api/internal/config"
	"github.com/sjperalta/lendcore-api/internal/jobs"
	"github.com/sjperalta/lendcore-api/internal/repository"
	"gorm.io/gorm"
)

// Services holds all service instances
type Services struct {
	Auth      *AuthService
	User      *UserService
	Loan      *LoanService
	Repayment *RepaymentService
	Schedule  *ScheduleService
	Audit     *AuditService
	Analytics *AnalyticsService
	Export    *ExportService
	Job       *JobService
}

// NewServices creates all service instances
func NewServices(repos *repository.Repositories, worker *jobs.Worker, cfg *config.Config, db *gorm.DB) *Services {
	auditSvc := NewAuditService(db, worker)
	scheduleSvc := NewScheduleService()
	loanSvc := NewLoanService(repos.UnitOfWork, repos.Loan, repos.Schedule, repos.Branch, scheduleSvc, auditSvc)

	return &Services{
		Auth:      NewAuthService(repos.User, repos.RefreshToken, cfg),
		User:      NewUserService(repos.User, repos.Branch, auditSvc),
		Loan:      loanSvc,
		Repayment: NewRepaymentService(repos.UnitOfWork, repos.Repayment, repos.Loan, auditSvc, cfg.RepaymentEditWindow),
		Schedule:  scheduleSvc,
		Audit:     auditSvc,
		Analytics: NewAnalyticsService(repos.Analytics),
		Export:    NewExportService(),
		Job:       NewJobService(worker, loanSvc),
	}
}
