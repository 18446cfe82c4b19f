package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/scantrack/attendance-api/internal/models"
	"github.com/scantrack/attendance-api/pkg/config"
	appErrors "github.com/scantrack/attendance-api/pkg/errors"
)

type mockUserRepo struct {
	users      map[string]*models.User
	lastLogins []string
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	m.lastLogins = append(m.lastLogins, id)
	return nil
}

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{Secret: "test_secret", Expiration: time.Hour, Issuer: "attendance-api"}
}

func testUser(t *testing.T, active bool) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	return &models.User{
		ID:           "user-1",
		Email:        "teacher@school.test",
		FullName:     "Sana Malik",
		PasswordHash: string(hash),
		Role:         models.RoleTeacher,
		Active:       active,
	}
}

func TestAuthServiceLogin(t *testing.T) {
	repo := &mockUserRepo{users: map[string]*models.User{"user-1": testUser(t, true)}}
	svc := NewAuthService(repo, nil, nil, testJWTConfig())

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "teacher@school.test", Password: "s3cret"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, models.RoleTeacher, resp.User.Role)
	assert.Equal(t, []string{"user-1"}, repo.lastLogins)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, models.RoleTeacher, claims.Role)
}

func TestAuthServiceLoginWrongPassword(t *testing.T) {
	repo := &mockUserRepo{users: map[string]*models.User{"user-1": testUser(t, true)}}
	svc := NewAuthService(repo, nil, nil, testJWTConfig())

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "teacher@school.test", Password: "wrong"})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidCredentials))
}

func TestAuthServiceLoginUnknownEmail(t *testing.T) {
	repo := &mockUserRepo{users: map[string]*models.User{}}
	svc := NewAuthService(repo, nil, nil, testJWTConfig())

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "ghost@school.test", Password: "s3cret"})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidCredentials))
}

func TestAuthServiceLoginInactiveAccount(t *testing.T) {
	repo := &mockUserRepo{users: map[string]*models.User{"user-1": testUser(t, false)}}
	svc := NewAuthService(repo, nil, nil, testJWTConfig())

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "teacher@school.test", Password: "s3cret"})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInactiveAccount))
}

func TestAuthServiceValidateTokenRejectsGarbage(t *testing.T) {
	svc := NewAuthService(&mockUserRepo{}, nil, nil, testJWTConfig())

	_, err := svc.ValidateToken("not.a.token")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))
}

func TestAuthServiceValidateTokenWrongSecret(t *testing.T) {
	repo := &mockUserRepo{users: map[string]*models.User{"user-1": testUser(t, true)}}
	issuer := NewAuthService(repo, nil, nil, config.JWTConfig{Secret: "other", Expiration: time.Hour, Issuer: "attendance-api"})
	verifier := NewAuthService(repo, nil, nil, testJWTConfig())

	resp, err := issuer.Login(context.Background(), models.LoginRequest{Email: "teacher@school.test", Password: "s3cret"})
	require.NoError(t, err)

	_, err = verifier.ValidateToken(resp.AccessToken)
	require.Error(t, err)
}
