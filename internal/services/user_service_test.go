package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docchat-ai/docchat/internal/core"
	"github.com/docchat-ai/docchat/internal/models"
)

func TestUserService_CreateNormalizesEmail(t *testing.T) {
	db := newFakeDB()
	svc := NewUserService(db)

	u := &models.User{ID: "u1", Email: "  Ada@Example.COM ", PasswordHash: "hash"}
	require.NoError(t, svc.Create(context.Background(), u))
	assert.Equal(t, "ada@example.com", u.Email)

	got, err := svc.GetByEmail(context.Background(), "ADA@example.com")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "u1", got.ID)
}

func TestUserService_CreateRejectsInvalidPayload(t *testing.T) {
	svc := NewUserService(newFakeDB())

	assert.ErrorIs(t, svc.Create(context.Background(), nil), core.ErrInvalidUser)
	assert.ErrorIs(t, svc.Create(context.Background(), &models.User{PasswordHash: "hash"}), core.ErrInvalidUser)
	assert.ErrorIs(t, svc.Create(context.Background(), &models.User{Email: "a@b.c"}), core.ErrInvalidUser)
}
