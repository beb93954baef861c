package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/sjperalta/lendcore-api/internal/models"
	"github.com/sjperalta/lendcore-api/internal/repository"
	"gorm.io/gorm"
)

const minPasswordLength = 8

// UserService handles staff accounts and branches
type UserService struct {
	repo     repository.UserRepository
	branches repository.BranchRepository
	audit    Auditor
}

func NewUserService(repo repository.UserRepository, branches repository.BranchRepository, audit Auditor) *UserService {
	return &UserService{
		repo:     repo,
		branches: branches,
		audit:    audit,
	}
}

// CreateUserInput describes a new staff account
type CreateUserInput struct {
	Email    string
	Password string
	FullName string
	Phone    string
	Role     string
	BranchID *uint
}

func (s *UserService) FindByID(ctx context.Context, id uint) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return user, err
}

// List returns staff visible to the actor. Non-admins only ever see their
// own branch, whatever branch the query asks for.
func (s *UserService) List(ctx context.Context, actor Actor, query *repository.UserQuery) ([]models.User, int64, error) {
	query.BranchID = actor.ScopeBranch(query.BranchID)
	if query.Role != "" && !models.IsValidRole(query.Role) {
		return nil, 0, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, query.Role)
	}
	return s.repo.List(ctx, query)
}

// Create validates and stores a new user. Officers and managers must belong
// to a branch.
func (s *UserService) Create(ctx context.Context, actor Actor, in CreateUserInput) (*models.User, error) {
	user, err := s.build(ctx, in)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, fmt.Errorf("%w: %v", ErrDuplicate, err)
		}
		return nil, err
	}

	if s.audit != nil {
		s.audit.Record(AuditEntry{
			Actor:    actor,
			Action:   models.AuditActionCreate,
			Entity:   models.AuditEntityUser,
			EntityID: user.ID,
			Details:  fmt.Sprintf("User created: %s (%s), role %s", user.FullName, user.Email, user.Role),
		})
	}
	return user, nil
}

func (s *UserService) build(ctx context.Context, in CreateUserInput) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: invalid email", ErrInvalidInput)
	}
	if len(in.Password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must have at least %d characters", ErrInvalidInput, minPasswordLength)
	}

	role := strings.ToLower(strings.TrimSpace(in.Role))
	if role == "" {
		role = models.RoleOfficer
	}
	if !models.IsValidRole(role) {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, in.Role)
	}
	if role != models.RoleAdmin && in.BranchID == nil {
		return nil, fmt.Errorf("%w: branch_id is required for %s users", ErrInvalidInput, role)
	}
	if in.BranchID != nil {
		if _, err := s.branches.FindByID(ctx, *in.BranchID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, fmt.Errorf("%w: unknown branch %d", ErrInvalidInput, *in.BranchID)
			}
			return nil, err
		}
	}

	hashed, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	return &models.User{
		Email:             email,
		EncryptedPassword: hashed,
		FullName:          strings.TrimSpace(in.FullName),
		Phone:             strings.TrimSpace(in.Phone),
		Role:              role,
		BranchID:          in.BranchID,
		Status:            models.StatusActive,
	}, nil
}

// ListBranches returns every branch
func (s *UserService) ListBranches(ctx context.Context) ([]models.Branch, error) {
	return s.branches.List(ctx)
}

// CreateBranch registers a branch, or returns the existing one with the
// same code
func (s *UserService) CreateBranch(ctx context.Context, code, name string, address *string) (*models.Branch, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	name = strings.TrimSpace(name)
	if code == "" || name == "" {
		return nil, fmt.Errorf("%w: code and name are required", ErrInvalidInput)
	}

	if existing, err := s.branches.FindByCode(ctx, code); err == nil {
		return existing, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	branch := &models.Branch{Code: code, Name: name, Address: address}
	if err := s.branches.Create(ctx, branch); err != nil {
		return nil, err
	}
	return branch, nil
}
