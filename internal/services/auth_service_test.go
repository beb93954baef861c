package services

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sjperalta/lendcore-api/internal/config"
	"github.com/sjperalta/lendcore-api/internal/models"
	"github.com/sjperalta/lendcore-api/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type mockUserRepo struct {
	repository.UserRepository
	mockFindByEmail func(ctx context.Context, email string) (*models.User, error)
	mockFindByID    func(ctx context.Context, id uint) (*models.User, error)
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return m.mockFindByEmail(ctx, email)
}

func (m *mockUserRepo) FindByID(ctx context.Context, id uint) (*models.User, error) {
	return m.mockFindByID(ctx, id)
}

type mockRTRepo struct {
	repository.RefreshTokenRepository
	created        []*models.RefreshToken
	deleted        []string
	mockFindByHash func(ctx context.Context, hash string) (*models.RefreshToken, error)
}

func (m *mockRTRepo) FindByHash(ctx context.Context, hash string) (*models.RefreshToken, error) {
	return m.mockFindByHash(ctx, hash)
}

func (m *mockRTRepo) Create(ctx context.Context, rt *models.RefreshToken) error {
	m.created = append(m.created, rt)
	return nil
}

func (m *mockRTRepo) DeleteByHash(ctx context.Context, hash string) error {
	m.deleted = append(m.deleted, hash)
	return nil
}

func testConfig() *config.Config {
	return &config.Config{JWTSecret: "test-secret", JWTExpirationHours: 1, RefreshTokenDays: 7}
}

func TestAuthService_Login_InactiveUser(t *testing.T) {
	mockRepo := &mockUserRepo{}
	service := NewAuthService(mockRepo, nil, nil)

	mockRepo.mockFindByEmail = func(ctx context.Context, email string) (*models.User, error) {
		return &models.User{
			Email:  email,
			Status: models.StatusInactive,
		}, nil
	}

	result, err := service.Login(context.Background(), "inactive@example.com", "password")
	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrAccountInactive)
}

func TestAuthService_Login_UnknownUser(t *testing.T) {
	mockRepo := &mockUserRepo{
		mockFindByEmail: func(ctx context.Context, email string) (*models.User, error) {
			return nil, gorm.ErrRecordNotFound
		},
	}
	service := NewAuthService(mockRepo, nil, nil)

	_, err := service.Login(context.Background(), "nobody@example.com", "password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthService_Login_IssuesBranchScopedToken(t *testing.T) {
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)

	branchID := uint(4)
	mockRepo := &mockUserRepo{
		mockFindByEmail: func(ctx context.Context, email string) (*models.User, error) {
			return &models.User{
				ID:                12,
				Email:             email,
				EncryptedPassword: hash,
				Role:              models.RoleOfficer,
				BranchID:          &branchID,
				Status:            models.StatusActive,
			}, nil
		},
	}
	rtRepo := &mockRTRepo{}
	cfg := testConfig()
	service := NewAuthService(mockRepo, rtRepo, cfg)

	result, err := service.Login(context.Background(), "officer@example.com", "s3cret")
	require.NoError(t, err)

	claims := jwt.MapClaims{}
	_, err = jwt.ParseWithClaims(result.Token, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(cfg.JWTSecret), nil
	})
	require.NoError(t, err)
	assert.Equal(t, float64(12), claims["user_id"])
	assert.Equal(t, models.RoleOfficer, claims["role"])
	assert.Equal(t, float64(4), claims["branch_id"])

	require.Len(t, rtRepo.created, 1)
	assert.Equal(t, hashToken(result.RefreshToken), rtRepo.created[0].TokenHash)
	assert.NotEqual(t, result.RefreshToken, rtRepo.created[0].TokenHash)
	assert.WithinDuration(t, time.Now().Add(time.Hour), result.ExpiresAt, time.Minute)
}

func TestAuthService_Login_WrongPassword(t *testing.T) {
	hash, err := HashPassword("right")
	require.NoError(t, err)

	mockRepo := &mockUserRepo{
		mockFindByEmail: func(ctx context.Context, email string) (*models.User, error) {
			return &models.User{Email: email, EncryptedPassword: hash, Status: models.StatusActive}, nil
		},
	}
	service := NewAuthService(mockRepo, &mockRTRepo{}, testConfig())

	_, err = service.Login(context.Background(), "user@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthService_RefreshToken_InactiveUser(t *testing.T) {
	mockRepo := &mockUserRepo{}
	rtRepo := &mockRTRepo{}
	service := NewAuthService(mockRepo, rtRepo, nil)

	rtRepo.mockFindByHash = func(ctx context.Context, hash string) (*models.RefreshToken, error) {
		return &models.RefreshToken{UserID: 1}, nil
	}
	mockRepo.mockFindByID = func(ctx context.Context, id uint) (*models.User, error) {
		return &models.User{
			ID:     id,
			Status: models.StatusInactive,
		}, nil
	}

	result, err := service.RefreshToken(context.Background(), "token")
	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrAccountInactive)
}

func TestAuthService_RefreshToken_Expired(t *testing.T) {
	rtRepo := &mockRTRepo{}
	service := NewAuthService(&mockUserRepo{}, rtRepo, nil)

	past := time.Now().Add(-time.Hour)
	rtRepo.mockFindByHash = func(ctx context.Context, hash string) (*models.RefreshToken, error) {
		return &models.RefreshToken{UserID: 1, ExpiresAt: &past}, nil
	}

	_, err := service.RefreshToken(context.Background(), "stale")
	assert.ErrorIs(t, err, ErrTokenExpired)
	assert.Equal(t, []string{hashToken("stale")}, rtRepo.deleted)
}

func TestAuthService_RefreshToken_RotatesToken(t *testing.T) {
	rtRepo := &mockRTRepo{}
	mockRepo := &mockUserRepo{
		mockFindByID: func(ctx context.Context, id uint) (*models.User, error) {
			return &models.User{ID: id, Role: models.RoleManager, Status: models.StatusActive}, nil
		},
	}
	service := NewAuthService(mockRepo, rtRepo, testConfig())

	rtRepo.mockFindByHash = func(ctx context.Context, hash string) (*models.RefreshToken, error) {
		return &models.RefreshToken{UserID: 3}, nil
	}

	result, err := service.RefreshToken(context.Background(), "old-token")
	require.NoError(t, err)
	assert.NotEmpty(t, result.Token)
	assert.Equal(t, []string{hashToken("old-token")}, rtRepo.deleted)
	assert.Len(t, rtRepo.created, 1)
}
