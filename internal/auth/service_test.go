package auth

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"groupchat/internal/config"
	"groupchat/internal/database"
	"groupchat/internal/models"
)

type memoryUsers struct {
	mu    sync.Mutex
	users map[int]*models.User
}

func newMemoryUsers() *memoryUsers {
	return &memoryUsers{users: map[int]*models.User{}}
}

func (m *memoryUsers) GetUserByUsername(_ context.Context, username string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, database.ErrNotFound
}

func (m *memoryUsers) GetUserByID(_ context.Context, id int) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *u
	cp.PasswordHash = ""
	return &cp, nil
}

func (m *memoryUsers) CreateUser(_ context.Context, username, passwordHash string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == username {
			return nil, database.ErrUsernameTaken
		}
	}
	u := &models.User{ID: len(m.users) + 1, Username: username, PasswordHash: passwordHash, CreatedAt: time.Now()}
	m.users[u.ID] = u
	cp := *u
	return &cp, nil
}

func (m *memoryUsers) SetNickname(_ context.Context, userID int, nickname string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return database.ErrNotFound
	}
	u.Nickname = nickname
	return nil
}

func newTestService(t *testing.T) (*Service, *memoryUsers) {
	t.Helper()
	users := newMemoryUsers()
	cfg := &config.Config{JWT: config.JWTConfig{Secret: []byte("test-secret"), ExpiresIn: time.Hour}}
	return NewService(users, cfg), users
}

func seedUser(t *testing.T, users *memoryUsers, username, password string) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	u, err := users.CreateUser(context.Background(), username, string(hash))
	require.NoError(t, err)
	return u
}

func TestLoginAndTokenRoundTrip(t *testing.T) {
	svc, users := newTestService(t)
	ctx := context.Background()
	seeded := seedUser(t, users, "admin1", "password1")

	resp, err := svc.Login(ctx, &models.LoginRequest{Username: "admin1", Password: "password1"})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Token)
	require.Equal(t, seeded.ID, resp.User.ID)
	require.Empty(t, resp.User.PasswordHash)

	user, err := svc.UserFromToken(ctx, resp.Token)
	require.NoError(t, err)
	require.Equal(t, "admin1", user.Username)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc, users := newTestService(t)
	ctx := context.Background()
	seedUser(t, users, "admin1", "password1")

	tests := []struct {
		name string
		req  models.LoginRequest
	}{
		{"wrong password", models.LoginRequest{Username: "admin1", Password: "password2"}},
		{"unknown user", models.LoginRequest{Username: "ghost", Password: "password1"}},
		{"missing fields", models.LoginRequest{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Login(ctx, &tt.req)
			require.ErrorIs(t, err, ErrInvalidCredentials)
		})
	}
}

func TestRegister(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	resp, err := svc.Register(ctx, &models.RegisterRequest{Username: "  carol ", Password: "longenough"})
	require.NoError(t, err)
	require.Equal(t, "carol", resp.User.Username)
	require.NotEmpty(t, resp.Token)

	_, err = svc.Register(ctx, &models.RegisterRequest{Username: "carol", Password: "longenough"})
	require.ErrorIs(t, err, database.ErrUsernameTaken)

	_, err = svc.Register(ctx, &models.RegisterRequest{Username: "dave", Password: "short"})
	require.Error(t, err)

	_, err = svc.VerifyCredentials(ctx, "carol", "longenough")
	require.NoError(t, err)
}

func TestSetPresenceName(t *testing.T) {
	svc, users := newTestService(t)
	ctx := context.Background()
	u := seedUser(t, users, "admin1", "password1")

	name, err := svc.SetPresenceName(ctx, u.ID, "  Alice  ")
	require.NoError(t, err)
	require.Equal(t, "Alice", name)

	stored, err := users.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, "Alice", stored.Nickname)

	_, err = svc.SetPresenceName(ctx, u.ID, "   ")
	require.ErrorIs(t, err, ErrInvalidNickname)
	_, err = svc.SetPresenceName(ctx, u.ID, strings.Repeat("é", MaxPresenceNameChars+1))
	require.ErrorIs(t, err, ErrInvalidNickname)

	name, err = svc.SetPresenceName(ctx, u.ID, strings.Repeat("é", MaxPresenceNameChars))
	require.NoError(t, err)
	require.Len(t, []rune(name), MaxPresenceNameChars)
}

func TestUserFromTokenRejectsForgedTokens(t *testing.T) {
	svc, users := newTestService(t)
	ctx := context.Background()
	u := seedUser(t, users, "admin1", "password1")

	forged := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": u.ID,
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	signed, err := forged.SignedString([]byte("other-secret"))
	require.NoError(t, err)
	_, err = svc.UserFromToken(ctx, signed)
	require.ErrorIs(t, err, ErrInvalidToken)

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": u.ID,
		"exp":     time.Now().Add(-time.Hour).Unix(),
	})
	signed, err = expired.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	_, err = svc.UserFromToken(ctx, signed)
	require.ErrorIs(t, err, ErrInvalidToken)

	orphan := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": 999,
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	signed, err = orphan.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	_, err = svc.UserFromToken(ctx, signed)
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.UserFromToken(ctx, "not-a-token")
	require.ErrorIs(t, err, ErrInvalidToken)
}
