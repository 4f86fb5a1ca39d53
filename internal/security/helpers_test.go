package security

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"salon/internal/domain/model"
	repo "salon/internal/repository"
	"salon/internal/repository/memory"

	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func strPtr(s string) *string { return &s }

func seedUser(t *testing.T, users repo.UserRepository, email string) *model.User {
	t.Helper()
	u := &model.User{
		Email:        email,
		PasswordHash: strPtr("x"),
		Role:         model.RoleUser,
		IsActive:     true,
		IsConfirmed:  true,
	}
	require.NoError(t, users.Create(context.Background(), u))
	return u
}

func mustFind(t *testing.T, users repo.UserRepository, id int64) *model.User {
	t.Helper()
	u, err := users.FindByID(context.Background(), id)
	require.NoError(t, err)
	return u
}

// DBエラーを返すユーザーリポジトリ
type brokenUsers struct {
	repo.UserRepository
}

var errDBDown = errors.New("db down")

func (brokenUsers) FindByID(context.Context, int64) (*model.User, error) {
	return nil, errDBDown
}

func (brokenUsers) FindByEmail(context.Context, string) (*model.User, error) {
	return nil, errDBDown
}

func newStore() *memory.Store {
	return memory.NewStore()
}
