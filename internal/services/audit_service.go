package services

import (
	"context"

	"github.com/sjperalta/lendcore-api/internal/jobs"
	"github.com/sjperalta/lendcore-api/internal/models"
	"github.com/sjperalta/lendcore-api/internal/repository"
	"gorm.io/gorm"
)

// AuditEntry is one audit record to be written
type AuditEntry struct {
	Actor    Actor
	Action   string
	Entity   string
	EntityID uint
	Details  string
}

// Auditor records audit entries without blocking the caller
type Auditor interface {
	Record(entry AuditEntry)
}

type AuditService struct {
	db     *gorm.DB
	worker *jobs.Worker
}

func NewAuditService(db *gorm.DB, worker *jobs.Worker) *AuditService {
	return &AuditService{db: db, worker: worker}
}

// Log writes an audit entry synchronously
func (s *AuditService) Log(ctx context.Context, entry AuditEntry) error {
	logEntry := &models.AuditLog{
		UserID:    entry.Actor.UserID,
		Action:    entry.Action,
		Entity:    entry.Entity,
		EntityID:  entry.EntityID,
		Details:   entry.Details,
		IPAddress: entry.Actor.IP,
		UserAgent: entry.Actor.UserAgent,
	}
	return s.db.WithContext(ctx).Omit("User").Create(logEntry).Error
}

// Record writes the entry on the background worker
func (s *AuditService) Record(entry AuditEntry) {
	s.worker.EnqueueAsync(func(ctx context.Context) error {
		return s.Log(ctx, entry)
	})
}

// List retrieves audit logs newest first. Supported filters: entity,
// entity_id, user_id, action.
func (s *AuditService) List(ctx context.Context, query *repository.ListQuery) ([]models.AuditLog, int64, error) {
	var logs []models.AuditLog
	var total int64

	db := s.db.WithContext(ctx).Model(&models.AuditLog{})
	for _, column := range []string{"entity", "entity_id", "user_id", "action"} {
		if v := query.Filters[column]; v != "" {
			db = db.Where(column+" = ?", v)
		}
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := db.Preload("User").
		Order("created_at DESC, id DESC").
		Limit(query.PerPage).
		Offset((query.Page - 1) * query.PerPage).
		Find(&logs).Error
	return logs, total, err
}
