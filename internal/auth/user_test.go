package auth_test

import (
	"context"
	"testing"

	"tasktimer/internal/auth"
	"tasktimer/internal/db/dbtest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndAuthenticate(t *testing.T) {
	users := &auth.Users{DB: dbtest.Open(t)}
	ctx := context.Background()

	u, err := users.Register(ctx, "  Ada@Example.com ", "correct horse")
	require.NoError(t, err)
	assert.NotZero(t, u.ID)
	assert.Equal(t, "ada@example.com", u.Email)
	assert.NotEqual(t, "correct horse", u.PasswordHash)

	got, err := users.Authenticate(ctx, "ada@example.com", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = users.Authenticate(ctx, "ada@example.com", "wrong password")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	_, err = users.Authenticate(ctx, "nobody@example.com", "correct horse")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
}

func TestRegisterValidation(t *testing.T) {
	users := &auth.Users{DB: dbtest.Open(t)}
	ctx := context.Background()

	_, err := users.Register(ctx, "not-an-email", "longenough")
	assert.ErrorIs(t, err, auth.ErrInvalidInput)

	_, err = users.Register(ctx, "a@b.c", "short")
	assert.ErrorIs(t, err, auth.ErrInvalidInput)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	users := &auth.Users{DB: dbtest.Open(t)}
	ctx := context.Background()

	_, err := users.Register(ctx, "dup@example.com", "password1")
	require.NoError(t, err)

	_, err = users.Register(ctx, "DUP@example.com", "password2")
	assert.ErrorIs(t, err, auth.ErrEmailTaken)
}
