package services

import (
	"context"

	"github.com/sjperalta/lendcore-api/internal/jobs"
)

type JobService struct {
	worker *jobs.Worker
	loans  *LoanService
}

func NewJobService(worker *jobs.Worker, loans *LoanService) *JobService {
	return &JobService{
		worker: worker,
		loans:  loans,
	}
}

func (s *JobService) GetStatus() jobs.WorkerStats {
	return s.worker.GetStats()
}

// TriggerOverdueCheck queues an immediate overdue pass
func (s *JobService) TriggerOverdueCheck() {
	s.worker.Enqueue(func(ctx context.Context) error {
		_, err := s.loans.MarkOverdueItems(ctx)
		return err
	})
}
