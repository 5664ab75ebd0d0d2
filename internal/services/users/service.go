package users

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/stash/internal/interfaces"
	"github.com/ternarybob/stash/internal/models"
	"github.com/ternarybob/stash/internal/services/auth"
)

// Service manages user accounts on top of the user store.
type Service struct {
	store    interfaces.UserStore
	logger   arbor.ILogger
	validate *validator.Validate
}

// New creates the user service.
func New(store interfaces.UserStore, logger arbor.ILogger) *Service {
	return &Service{
		store:    store,
		logger:   logger,
		validate: validator.New(),
	}
}

// Create validates the request, hashes the password and persists the
// account.
func (s *Service) Create(ctx context.Context, req *models.NewUserRequest) (*models.User, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid user request: %w", err)
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		ID:             uuid.New(),
		Username:       req.Username,
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		Email:          req.Email,
		HashedPassword: hash,
	}

	if err := s.store.Create(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info().Str("username", user.Username).Str("user_id", user.ID.String()).Msg("User created")
	return user, nil
}

// Get returns the user with the given id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return s.store.GetByID(ctx, id)
}

// Update applies the non-nil fields of the request to the stored
// account. A non-empty password is rehashed before persisting.
func (s *Service) Update(ctx context.Context, id uuid.UUID, req *models.UpdateUserRequest) (*models.User, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid user request: %w", err)
	}

	user, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.FirstName != nil {
		user.FirstName = *req.FirstName
	}
	if req.LastName != nil {
		user.LastName = *req.LastName
	}
	if req.Email != nil {
		user.Email = *req.Email
	}
	if req.Disabled != nil {
		user.Disabled = *req.Disabled
	}
	if req.Password != "" {
		hash, err := auth.HashPassword(req.Password)
		if err != nil {
			return nil, err
		}
		user.HashedPassword = hash
	}

	if err := s.store.Update(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info().Str("username", user.Username).Str("user_id", user.ID.String()).Msg("User updated")
	return user, nil
}

// Delete removes the user with the given id.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Str("user_id", id.String()).Msg("User deleted")
	return nil
}
