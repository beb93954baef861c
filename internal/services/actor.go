package services

import "github.com/sjperalta/lendcore-api/internal/models"

// Actor is the authenticated caller of a service operation, as established
// by the HTTP middleware
type Actor struct {
	UserID    uint
	Role      string
	BranchID  *uint
	IP        string
	UserAgent string
}

// IsAdmin returns true for the admin role
func (a Actor) IsAdmin() bool {
	return a.Role == models.RoleAdmin
}

// IsManager returns true for managers and admins
func (a Actor) IsManager() bool {
	return a.Role == models.RoleManager || a.Role == models.RoleAdmin
}

// CanAccessBranch reports whether the actor may act on records of branchID.
// Admins see every branch; everyone else only their own.
func (a Actor) CanAccessBranch(branchID uint) bool {
	if a.IsAdmin() {
		return true
	}
	return a.BranchID != nil && *a.BranchID == branchID
}

// ScopeBranch returns the branch filter to apply for the actor. Admins may
// pick any branch, or none.
func (a Actor) ScopeBranch(requested *uint) *uint {
	if a.IsAdmin() {
		return requested
	}
	return a.BranchID
}
