package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestAuth(t *testing.T) *AdminAuth {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	require.NoError(t, err)
	return NewAdminAuth("admin", string(hash), "test-secret")
}

func TestAdminAuth_LoginRoundTrip(t *testing.T) {
	auth := newTestAuth(t)

	token, err := auth.Login("admin", "hunter2")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	assert.NoError(t, auth.VerifyToken(token))
}

func TestAdminAuth_LoginRejectsBadCredentials(t *testing.T) {
	auth := newTestAuth(t)

	_, err := auth.Login("admin", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = auth.Login("root", "hunter2")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAdminAuth_LoginDisabledWithoutHash(t *testing.T) {
	auth := NewAdminAuth("admin", "", "test-secret")

	_, err := auth.Login("admin", "anything")
	assert.ErrorIs(t, err, ErrLoginDisabled)
}

func TestAdminAuth_VerifyRejectsGarbage(t *testing.T) {
	auth := newTestAuth(t)

	assert.ErrorIs(t, auth.VerifyToken(""), ErrInvalidToken)
	assert.ErrorIs(t, auth.VerifyToken("not-a-jwt"), ErrInvalidToken)
}

func TestAdminAuth_VerifyRejectsTamperedToken(t *testing.T) {
	auth := newTestAuth(t)

	token, err := auth.Login("admin", "hunter2")
	require.NoError(t, err)

	other := NewAdminAuth("admin", "", "other-secret")
	assert.ErrorIs(t, other.VerifyToken(token), ErrInvalidToken)
}

func TestAdminAuth_TokenExpiresAfter24Hours(t *testing.T) {
	auth := newTestAuth(t)

	issued := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	auth.now = func() time.Time { return issued }

	token, err := auth.Login("admin", "hunter2")
	require.NoError(t, err)

	auth.now = func() time.Time { return issued.Add(23 * time.Hour) }
	assert.NoError(t, auth.VerifyToken(token))

	auth.now = func() time.Time { return issued.Add(25 * time.Hour) }
	assert.ErrorIs(t, auth.VerifyToken(token), ErrInvalidToken)
}
