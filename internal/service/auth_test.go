package service

import (
	"context"
	"testing"
	"time"

	"mnemosyne-api/internal/model"
	"mnemosyne-api/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestAuth(t *testing.T) (*AuthService, *DataService) {
	t.Helper()
	svc, repo, _ := newTestService(t)
	sessions := session.NewManager([]byte("secret"), time.Hour, session.NewMemoryStore(time.Minute), nil)
	auth := NewAuthService(repo, sessions, svc, nil)
	auth.SetHashCost(bcrypt.MinCost)
	return auth, svc
}

func TestSignupAndLogin(t *testing.T) {
	auth, _ := newTestAuth(t)
	ctx := context.Background()

	s, err := auth.Signup(ctx, " Ada@Example.com ", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", s.Email)
	assert.NotEmpty(t, s.Token)

	id, err := auth.Authenticate(ctx, s.Token)
	require.NoError(t, err)
	assert.Equal(t, s.UserID, id.UserID)

	_, err = auth.Signup(ctx, "ada@example.com", "another password")
	assert.ErrorIs(t, err, ErrEmailTaken)

	login, err := auth.Login(ctx, "ADA@example.com", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, s.UserID, login.UserID)

	_, err = auth.Login(ctx, "ada@example.com", "wrong password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = auth.Login(ctx, "nobody@example.com", "whatever1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestSignup_Validation(t *testing.T) {
	auth, _ := newTestAuth(t)
	var verr *ValidationError

	_, err := auth.Signup(context.Background(), "not-an-email", "longenough")
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "email", verr.Field)

	_, err = auth.Signup(context.Background(), "a@example.com", "short")
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "password", verr.Field)
}

func TestLogout_RevokesAndForgets(t *testing.T) {
	auth, svc := newTestAuth(t)
	ctx := context.Background()

	s, err := auth.Signup(ctx, "ada@example.com", "correct horse")
	require.NoError(t, err)

	svc.profiles.Set(s.UserID, model.Profile{ID: s.UserID})
	svc.userPosts.Set(s.UserID, nil)

	require.NoError(t, auth.Logout(ctx, s.Token))

	_, err = auth.Authenticate(ctx, s.Token)
	assert.ErrorIs(t, err, session.ErrRevoked)
	assert.False(t, svc.profiles.Has(s.UserID))
	assert.False(t, svc.userPosts.Has(s.UserID))

	assert.ErrorIs(t, auth.Logout(ctx, "garbage"), session.ErrInvalidToken)
}

func TestRefresh(t *testing.T) {
	auth, _ := newTestAuth(t)
	ctx := context.Background()

	s, err := auth.Signup(ctx, "ada@example.com", "correct horse")
	require.NoError(t, err)

	next, err := auth.Refresh(ctx, s.Token)
	require.NoError(t, err)
	assert.Equal(t, s.UserID, next.UserID)

	_, err = auth.Refresh(ctx, s.Token)
	assert.ErrorIs(t, err, session.ErrRevoked)
}
