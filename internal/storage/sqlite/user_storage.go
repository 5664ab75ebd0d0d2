package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/stash/internal/models"
)

// ErrUserNotFound is returned when no user matches the lookup.
var ErrUserNotFound = errors.New("user not found")

const userColumns = "id, username, first_name, last_name, email, disabled, hashed_password"

// UserStorage persists user accounts in the users table.
type UserStorage struct {
	conn   *DB
	logger arbor.ILogger
}

// NewUserStorage creates the store.
func NewUserStorage(conn *DB, logger arbor.ILogger) *UserStorage {
	return &UserStorage{conn: conn, logger: logger}
}

// Init creates the users table if it does not exist.
func (u *UserStorage) Init(ctx context.Context) error {
	if _, err := u.conn.DB().ExecContext(ctx, createUsersTable); err != nil {
		return fmt.Errorf("failed to initialize users table: %w", err)
	}
	return nil
}

// Create inserts a new user row.
func (u *UserStorage) Create(ctx context.Context, user *models.User) error {
	_, err := u.conn.DB().ExecContext(ctx,
		fmt.Sprintf("INSERT INTO users (%s) VALUES (?, ?, ?, ?, ?, ?, ?)", userColumns),
		user.ID.String(), user.Username, user.FirstName, user.LastName,
		user.Email, boolToInt(user.Disabled), user.HashedPassword)
	if err != nil {
		return fmt.Errorf("failed to create user %s: %w", user.Username, err)
	}
	return nil
}

// GetByID returns the user with the given id.
func (u *UserStorage) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	row := u.conn.DB().QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM users WHERE id = ?", userColumns), id.String())
	return scanUser(row)
}

// GetByUsername returns the user with the given username.
func (u *UserStorage) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	row := u.conn.DB().QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM users WHERE username = ?", userColumns), username)
	return scanUser(row)
}

// Update rewrites the user row matched by id.
func (u *UserStorage) Update(ctx context.Context, user *models.User) error {
	result, err := u.conn.DB().ExecContext(ctx,
		`UPDATE users SET username = ?, first_name = ?, last_name = ?, email = ?,
			disabled = ?, hashed_password = ? WHERE id = ?`,
		user.Username, user.FirstName, user.LastName, user.Email,
		boolToInt(user.Disabled), user.HashedPassword, user.ID.String())
	if err != nil {
		return fmt.Errorf("failed to update user %s: %w", user.Username, err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Delete removes the user row matched by id.
func (u *UserStorage) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := u.conn.DB().ExecContext(ctx, "DELETE FROM users WHERE id = ?", id.String())
	if err != nil {
		return fmt.Errorf("failed to delete user %s: %w", id, err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Close is a no-op; the shared connection is owned by the manager.
func (u *UserStorage) Close() error {
	return nil
}

func scanUser(row *sql.Row) (*models.User, error) {
	var (
		user     models.User
		id       string
		disabled int
	)
	err := row.Scan(&id, &user.Username, &user.FirstName, &user.LastName,
		&user.Email, &disabled, &user.HashedPassword)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read user: %w", err)
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid user id %q: %w", id, err)
	}
	user.ID = parsed
	user.Disabled = disabled != 0
	return &user, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
