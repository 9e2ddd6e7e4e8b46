package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lwald/semgrade/internal/model"
	appErr "github.com/lwald/semgrade/internal/pkg/errors"
	"github.com/lwald/semgrade/internal/pkg/jwt"
	"github.com/lwald/semgrade/internal/repo"
)

func TestAuthService_LoginRoundTrip(t *testing.T) {
	db, err := repo.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, repo.ApplyMigrations(db))
	t.Cleanup(func() { _ = db.Close() })

	secret := []byte("test-secret")
	auth := NewAuthService(repo.NewUserRepo(db), secret, time.Hour)
	ctx := context.Background()

	user, err := auth.CreateUser(ctx, "alice", "s3cret", model.RoleInstructor)
	require.NoError(t, err)
	require.Equal(t, model.RoleInstructor, user.Role)

	token, loggedIn, err := auth.Login(ctx, "alice", "s3cret")
	require.NoError(t, err)
	require.Equal(t, user.ID, loggedIn.ID)

	claims, err := jwt.ParseToken(token, secret)
	require.NoError(t, err)
	require.Equal(t, user.ID, claims.UserID)
	require.Equal(t, model.RoleInstructor, claims.Role)

	_, _, err = auth.Login(ctx, "alice", "wrong")
	require.ErrorIs(t, err, appErr.ErrUnauthorized)

	_, _, err = auth.Login(ctx, "nobody", "s3cret")
	require.ErrorIs(t, err, appErr.ErrUnauthorized)

	_, err = auth.CreateUser(ctx, "bob", "pw", "student")
	require.True(t, appErr.IsInvalid(err))
}
