package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/arlev/storefront-api/internal/dto"
	"github.com/arlev/storefront-api/internal/model"
)

type mockUserRepo struct {
	users map[uuid.UUID]*model.User
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[uuid.UUID]*model.User)}
}

func (m *mockUserRepo) Create(_ context.Context, user *model.User) error {
	user.ID = uuid.New()
	user.CreatedAt = time.Now()
	m.users[user.ID] = user
	return nil
}

func (m *mockUserRepo) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	if u, ok := m.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (m *mockUserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockUserRepo) GetByUsername(_ context.Context, username string) (*model.User, error) {
	for _, u := range m.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockUserRepo) GetByResetToken(_ context.Context, token string) (*model.User, error) {
	for _, u := range m.users {
		if u.ResetToken != "" && u.ResetToken == token &&
			u.ResetExpiresAt != nil && u.ResetExpiresAt.After(time.Now()) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockUserRepo) Update(_ context.Context, user *model.User) error {
	if existing, ok := m.users[user.ID]; ok {
		*existing = *user
	}
	return nil
}

func (m *mockUserRepo) UpdateRole(_ context.Context, id uuid.UUID, role model.Role) error {
	if u, ok := m.users[id]; ok {
		u.Role = role
	}
	return nil
}

func (m *mockUserRepo) SetResetToken(_ context.Context, id uuid.UUID, token string, expiresAt time.Time) error {
	if u, ok := m.users[id]; ok {
		u.ResetToken = token
		u.ResetExpiresAt = &expiresAt
	}
	return nil
}

func (m *mockUserRepo) ClearResetToken(_ context.Context, id uuid.UUID) error {
	if u, ok := m.users[id]; ok {
		u.ResetToken = ""
		u.ResetExpiresAt = nil
	}
	return nil
}

func (m *mockUserRepo) UpdatePassword(_ context.Context, id uuid.UUID, hashed string) error {
	if u, ok := m.users[id]; ok {
		u.Password = hashed
	}
	return nil
}

func (m *mockUserRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.users, id)
	return nil
}

type mockTokenRepo struct {
	tokens map[uuid.UUID]*model.RefreshToken
}

func newMockTokenRepo() *mockTokenRepo {
	return &mockTokenRepo{tokens: make(map[uuid.UUID]*model.RefreshToken)}
}

func (m *mockTokenRepo) Create(_ context.Context, token *model.RefreshToken) error {
	token.ID = uuid.New()
	token.CreatedAt = time.Now()
	m.tokens[token.ID] = token
	return nil
}

func (m *mockTokenRepo) GetByHash(_ context.Context, hash string) (*model.RefreshToken, error) {
	for _, t := range m.tokens {
		if t.TokenHash == hash {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockTokenRepo) Revoke(_ context.Context, id uuid.UUID) error {
	if t, ok := m.tokens[id]; ok {
		now := time.Now()
		t.RevokedAt = &now
	}
	return nil
}

func (m *mockTokenRepo) RevokeAllForUser(_ context.Context, userID uuid.UUID) error {
	now := time.Now()
	for _, t := range m.tokens {
		if t.UserID == userID && t.RevokedAt == nil {
			t.RevokedAt = &now
		}
	}
	return nil
}

func (m *mockTokenRepo) activeCount(userID uuid.UUID) int {
	n := 0
	for _, t := range m.tokens {
		if t.UserID == userID && t.RevokedAt == nil {
			n++
		}
	}
	return n
}

func newAuthService(userRepo *mockUserRepo, tokenRepo *mockTokenRepo) *AuthService {
	return NewAuthService(userRepo, tokenRepo, "test-secret", 15*time.Minute, 7*24*time.Hour)
}

var registerReq = dto.RegisterRequest{
	Email: "ada@example.com", Username: "ada", Password: "hunter22",
	FirstName: "Ada", LastName: "Lovelace",
}

func TestAuthService_Register(t *testing.T) {
	userRepo := newMockUserRepo()
	svc := newAuthService(userRepo, newMockTokenRepo())

	resp, err := svc.Register(context.Background(), registerReq)
	require.NoError(t, err)

	assert.NotEmpty(t, resp.Token)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, "ada@example.com", resp.User.Email)
	assert.Equal(t, model.RoleUser, resp.User.Role)

	stored, err := userRepo.GetByEmail(context.Background(), "ada@example.com")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.NotEqual(t, "hunter22", stored.Password, "password must be stored hashed")
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.Password), []byte("hunter22")))
}

func TestAuthService_Register_DuplicateEmail(t *testing.T) {
	svc := newAuthService(newMockUserRepo(), newMockTokenRepo())
	_, err := svc.Register(context.Background(), registerReq)
	require.NoError(t, err)

	dup := registerReq
	dup.Username = "other"
	_, err = svc.Register(context.Background(), dup)
	assert.ErrorIs(t, err, ErrUserAlreadyExists)
}

func TestAuthService_Register_DuplicateUsername(t *testing.T) {
	svc := newAuthService(newMockUserRepo(), newMockTokenRepo())
	_, err := svc.Register(context.Background(), registerReq)
	require.NoError(t, err)

	dup := registerReq
	dup.Email = "other@example.com"
	_, err = svc.Register(context.Background(), dup)
	assert.ErrorIs(t, err, ErrUserAlreadyExists)
}

func TestAuthService_Login(t *testing.T) {
	svc := newAuthService(newMockUserRepo(), newMockTokenRepo())
	_, err := svc.Register(context.Background(), registerReq)
	require.NoError(t, err)

	resp, err := svc.Login(context.Background(), dto.LoginRequest{
		Email: "ada@example.com", Password: "hunter22",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Token)
}

func TestAuthService_Login_WrongPassword(t *testing.T) {
	svc := newAuthService(newMockUserRepo(), newMockTokenRepo())
	_, err := svc.Register(context.Background(), registerReq)
	require.NoError(t, err)

	_, err = svc.Login(context.Background(), dto.LoginRequest{
		Email: "ada@example.com", Password: "wrong",
	})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthService_Login_UnknownEmail(t *testing.T) {
	svc := newAuthService(newMockUserRepo(), newMockTokenRepo())
	_, err := svc.Login(context.Background(), dto.LoginRequest{
		Email: "nobody@example.com", Password: "hunter22",
	})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthService_Refresh_RotatesToken(t *testing.T) {
	tokenRepo := newMockTokenRepo()
	svc := newAuthService(newMockUserRepo(), tokenRepo)

	reg, err := svc.Register(context.Background(), registerReq)
	require.NoError(t, err)

	refreshed, err := svc.Refresh(context.Background(), reg.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, reg.RefreshToken, refreshed.RefreshToken)

	// The old token was revoked by the rotation.
	_, err = svc.Refresh(context.Background(), reg.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// The new one still works.
	_, err = svc.Refresh(context.Background(), refreshed.RefreshToken)
	assert.NoError(t, err)
}

func TestAuthService_Refresh_UnknownToken(t *testing.T) {
	svc := newAuthService(newMockUserRepo(), newMockTokenRepo())
	_, err := svc.Refresh(context.Background(), "deadbeef")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthService_Logout(t *testing.T) {
	svc := newAuthService(newMockUserRepo(), newMockTokenRepo())
	reg, err := svc.Register(context.Background(), registerReq)
	require.NoError(t, err)

	require.NoError(t, svc.Logout(context.Background(), reg.RefreshToken))
	_, err = svc.Refresh(context.Background(), reg.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// Logging out twice is harmless.
	assert.NoError(t, svc.Logout(context.Background(), reg.RefreshToken))
}

func TestAuthService_ResetPassword(t *testing.T) {
	userRepo := newMockUserRepo()
	tokenRepo := newMockTokenRepo()
	svc := newAuthService(userRepo, tokenRepo)

	reg, err := svc.Register(context.Background(), registerReq)
	require.NoError(t, err)

	token, err := svc.ForgotPassword(context.Background(), "ada@example.com")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	require.NoError(t, svc.ResetPassword(context.Background(), token, "newpassword"))

	// Old sessions are revoked and the token is single use.
	assert.Equal(t, 0, tokenRepo.activeCount(reg.User.ID))
	assert.ErrorIs(t, svc.ResetPassword(context.Background(), token, "again"), ErrInvalidToken)

	_, err = svc.Login(context.Background(), dto.LoginRequest{Email: "ada@example.com", Password: "newpassword"})
	assert.NoError(t, err)
	_, err = svc.Login(context.Background(), dto.LoginRequest{Email: "ada@example.com", Password: "hunter22"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthService_ForgotPassword_UnknownEmail(t *testing.T) {
	svc := newAuthService(newMockUserRepo(), newMockTokenRepo())
	token, err := svc.ForgotPassword(context.Background(), "nobody@example.com")
	assert.NoError(t, err, "existence of the account is never disclosed")
	assert.Empty(t, token)
}
