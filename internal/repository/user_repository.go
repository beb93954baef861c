package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sjperalta/lendcore-api/internal/models"
	"gorm.io/gorm"
)

// ErrDuplicateEmail is returned when a user with the same email exists
var ErrDuplicateEmail = errors.New("a user with this email already exists")

const sqlStateUniqueViolation = "23505"

type UserRepository interface {
	FindByID(ctx context.Context, id uint) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	List(ctx context.Context, query *UserQuery) ([]models.User, int64, error)
}

// UserQuery extends ListQuery with staff filters
type UserQuery struct {
	*ListQuery
	BranchID *uint
	Role     string
	Status   string
}

type userRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

// staff selects live accounts together with their branch
func (r *userRepository) staff(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(&models.User{}).
		Joins("Branch").
		Where("users.discarded_at IS NULL")
}

func (r *userRepository) FindByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := r.staff(ctx).First(&user, "users.id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByEmail matches case-insensitively; tokens issued at login carry the
// branch loaded here
func (r *userRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.staff(ctx).First(&user, "LOWER(users.email) = LOWER(?)", email).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	err := r.db.WithContext(ctx).Omit("Branch").Create(user).Error
	if isDuplicateKeyError(err, "idx_users_email") {
		return ErrDuplicateEmail
	}
	return err
}

func (r *userRepository) List(ctx context.Context, query *UserQuery) ([]models.User, int64, error) {
	var users []models.User
	var total int64

	db := r.staff(ctx)
	if query.BranchID != nil {
		db = db.Where("users.branch_id = ?", *query.BranchID)
	}
	if query.Role != "" {
		db = db.Where("users.role = ?", query.Role)
	}
	if query.Status != "" {
		db = db.Where("users.status = ?", query.Status)
	}
	if query.Search != "" {
		search := "%" + query.Search + "%"
		db = db.Where("users.full_name ILIKE ? OR users.email ILIKE ?", search, search)
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	order := "users.created_at DESC"
	switch query.SortBy {
	case "full_name", "email", "role", "created_at":
		order = "users." + query.SortBy
		if query.SortDir == "desc" {
			order += " DESC"
		}
	}

	db = db.Order(order)
	if query.PerPage > 0 {
		db = db.Offset((query.Page - 1) * query.PerPage).Limit(query.PerPage)
	}

	err := db.Find(&users).Error
	return users, total, err
}

func isDuplicateKeyError(err error, constraintName string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == sqlStateUniqueViolation && pgErr.ConstraintName == constraintName
	}
	return false
}
