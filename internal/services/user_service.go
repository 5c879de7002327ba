package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/docchat-ai/docchat/internal/core"
	"github.com/docchat-ai/docchat/internal/models"
)

type UserService struct {
	db core.DbClient
}

func NewUserService(db core.DbClient) *UserService {
	return &UserService{db: db}
}

// Create registers a user. Emails are normalized to lower case so login
// lookups are case-insensitive.
func (s *UserService) Create(ctx context.Context, u *models.User) error {
	if u == nil {
		return core.ErrInvalidUser
	}
	u.Email = normalizeEmail(u.Email)
	if u.Email == "" {
		return fmt.Errorf("%w: missing email", core.ErrInvalidUser)
	}
	if u.PasswordHash == "" {
		return fmt.Errorf("%w: missing password hash", core.ErrInvalidUser)
	}
	return s.db.CreateUser(ctx, u)
}

func (s *UserService) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.db.GetUserByEmail(ctx, normalizeEmail(email))
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
