package models

import (
	"time"
)

// AuditLog represents a system audit entry
type AuditLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	Action    string    `gorm:"size:50;not null" json:"action"`                        // CREATE, UPDATE, DELETE, LOGIN, ACTIVATE
	Entity    string    `gorm:"size:50;not null;index:idx_audit_entity" json:"entity"` // Loan, Repayment, User
	EntityID  uint      `gorm:"index:idx_audit_entity" json:"entity_id"`
	Details   string    `gorm:"type:text" json:"details"`
	IPAddress string    `gorm:"size:45" json:"ip_address"`
	UserAgent string    `gorm:"size:255" json:"user_agent"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`

	// Associations
	User User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

// TableName specifies the table name for AuditLog
func (AuditLog) TableName() string {
	return "audit_logs"
}

// Audit action constants
const (
	AuditActionCreate   = "CREATE"
	AuditActionUpdate   = "UPDATE"
	AuditActionDelete   = "DELETE"
	AuditActionActivate = "ACTIVATE"
	AuditActionLogin    = "LOGIN"
)

// Audit entity constants
const (
	AuditEntityLoan      = "Loan"
	AuditEntityRepayment = "Repayment"
	AuditEntityUser      = "User"
)
