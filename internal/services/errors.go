package services

import "errors"

// Common service errors
var (
	ErrNotFound        = errors.New("record not found")
	ErrInvalidPassword = errors.New("invalid password")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrInvalidState    = errors.New("invalid state transition")
	ErrDuplicate       = errors.New("duplicate record")
	ErrInvalidInput    = errors.New("invalid input")
)

// Repayment engine errors
var (
	ErrLoanNotFound      = errors.New("loan not found")
	ErrInvalidLoanState  = errors.New("loan does not accept repayments in its current state")
	ErrInvalidAmount     = errors.New("amount must be positive with at most two decimal places")
	ErrInvalidMethod     = errors.New("unsupported repayment method")
	ErrRepaymentNotFound = errors.New("repayment not found")
	ErrTransient         = errors.New("temporary conflict, please retry")
)

// Policy errors raised above the engine
var (
	ErrEditWindowExpired = errors.New("repayment can no longer be modified")
	ErrForbidden         = errors.New("not allowed to act on this resource")
)
