package interfaces

import (
	"context"

	"github.com/google/uuid"

	"github.com/ternarybob/stash/internal/models"
)

// AuthService issues and verifies session tokens.
type AuthService interface {
	GenerateToken(ctx context.Context, login *models.LoginRequest) (*models.AuthResponse, error)
	VerifyToken(ctx context.Context, cookieValue string) (*models.User, error)
}

// UserService manages user accounts.
type UserService interface {
	Create(ctx context.Context, req *models.NewUserRequest) (*models.User, error)
	Get(ctx context.Context, id uuid.UUID) (*models.User, error)
	Update(ctx context.Context, id uuid.UUID, req *models.UpdateUserRequest) (*models.User, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// MemoryStats is a point-in-time memory sample.
type MemoryStats struct {
	UsedPercent float64 `json:"used_percent"`
	TotalBytes  uint64  `json:"total_bytes"`
	UsedBytes   uint64  `json:"used_bytes"`
	OverLimit   bool    `json:"over_limit"`
}

// MonitorService samples process and system memory in the background.
type MonitorService interface {
	Start()
	Stats() MemoryStats
	Close()
}
