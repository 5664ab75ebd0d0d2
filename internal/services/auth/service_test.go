package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/stash/internal/common"
	"github.com/ternarybob/stash/internal/models"
)

type memoryUserStore struct {
	users map[string]*models.User
}

func newMemoryUserStore() *memoryUserStore {
	return &memoryUserStore{users: make(map[string]*models.User)}
}

func (s *memoryUserStore) Init(ctx context.Context) error { return nil }

func (s *memoryUserStore) Create(ctx context.Context, user *models.User) error {
	s.users[user.Username] = user
	return nil
}

func (s *memoryUserStore) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	for _, user := range s.users {
		if user.ID == id {
			return user, nil
		}
	}
	return nil, errors.New("user not found")
}

func (s *memoryUserStore) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	user, ok := s.users[username]
	if !ok {
		return nil, errors.New("user not found")
	}
	return user, nil
}

func (s *memoryUserStore) Update(ctx context.Context, user *models.User) error {
	s.users[user.Username] = user
	return nil
}

func (s *memoryUserStore) Delete(ctx context.Context, id uuid.UUID) error { return nil }

func (s *memoryUserStore) Close() error { return nil }

func newTestService(t *testing.T) (*Service, *memoryUserStore) {
	t.Helper()
	config := common.NewDefaultConfig()
	config.Auth.SecretKey = "test-secret"
	store := newMemoryUserStore()
	return New(config, store, arbor.NewLogger()), store
}

func addUser(t *testing.T, store *memoryUserStore, username, password string, disabled bool) {
	t.Helper()
	hash, err := HashPassword(password)
	require.NoError(t, err)
	store.Create(context.Background(), &models.User{
		ID:             uuid.New(),
		Username:       username,
		Disabled:       disabled,
		HashedPassword: hash,
	})
}

func TestTokenRoundTrip(t *testing.T) {
	service, store := newTestService(t)
	addUser(t, store, "alice", "hunter2-secure", false)

	response, err := service.GenerateToken(context.Background(), &models.LoginRequest{
		Username: "alice",
		Password: "hunter2-secure",
	})
	require.NoError(t, err)
	assert.Equal(t, "alice", response.Username)
	assert.NotEmpty(t, response.Token)

	user, err := service.VerifyToken(context.Background(), CookieValue(response.Token))
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
}

func TestWrongPassword(t *testing.T) {
	service, store := newTestService(t)
	addUser(t, store, "alice", "hunter2-secure", false)

	_, err := service.GenerateToken(context.Background(), &models.LoginRequest{
		Username: "alice",
		Password: "wrong",
	})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestUnknownUser(t *testing.T) {
	service, _ := newTestService(t)

	_, err := service.GenerateToken(context.Background(), &models.LoginRequest{
		Username: "nobody",
		Password: "whatever",
	})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestDisabledUser(t *testing.T) {
	service, store := newTestService(t)
	addUser(t, store, "mallory", "hunter2-secure", true)

	_, err := service.GenerateToken(context.Background(), &models.LoginRequest{
		Username: "mallory",
		Password: "hunter2-secure",
	})
	assert.ErrorIs(t, err, ErrUserDisabled)
}

func TestVerifyRejectsMissingScheme(t *testing.T) {
	service, store := newTestService(t)
	addUser(t, store, "alice", "hunter2-secure", false)

	response, err := service.GenerateToken(context.Background(), &models.LoginRequest{
		Username: "alice",
		Password: "hunter2-secure",
	})
	require.NoError(t, err)

	// The raw token without the Bearer prefix is rejected.
	_, err = service.VerifyToken(context.Background(), response.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	service, store := newTestService(t)
	addUser(t, store, "alice", "hunter2-secure", false)

	response, err := service.GenerateToken(context.Background(), &models.LoginRequest{
		Username: "alice",
		Password: "hunter2-secure",
	})
	require.NoError(t, err)

	_, err = service.VerifyToken(context.Background(), CookieValue(response.Token+"x"))
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	service, store := newTestService(t)
	addUser(t, store, "alice", "hunter2-secure", false)

	response, err := service.GenerateToken(context.Background(), &models.LoginRequest{
		Username: "alice",
		Password: "hunter2-secure",
	})
	require.NoError(t, err)

	otherConfig := common.NewDefaultConfig()
	otherConfig.Auth.SecretKey = "different-secret"
	other := New(otherConfig, store, arbor.NewLogger())

	_, err = other.VerifyToken(context.Background(), CookieValue(response.Token))
	assert.ErrorIs(t, err, ErrInvalidToken)
}
