// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// Tests for the auth service and token codec

package auth

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/TrajectoryStudio/services/studio/storage/badger"
)

func testService(t *testing.T) *Service {
	t.Helper()
	db, err := badger.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewService(NewUserStore(db), "test-secret", "@turing")
}

// =============================================================================
// Tokens
// =============================================================================

func TestTokenRoundTrip(t *testing.T) {
	secret := []byte("secret")
	claims := Claims{
		Sub:   "user-1",
		Email: "a@turing",
		JTI:   "jti-1",
		Exp:   time.Now().Add(time.Hour).Unix(),
	}

	token, err := IssueToken(secret, claims)
	require.NoError(t, err)

	got, err := ParseToken(secret, token)
	require.NoError(t, err)
	assert.Equal(t, claims, got)
}

func TestTokenRejectsWrongSecret(t *testing.T) {
	token, err := IssueToken([]byte("secret"), Claims{
		Sub: "u", Email: "e@turing", JTI: "j", Exp: time.Now().Add(time.Hour).Unix(),
	})
	require.NoError(t, err)

	_, err = ParseToken([]byte("other"), token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenRejectsMalformed(t *testing.T) {
	for _, token := range []string{"", "one-part", "a.b.c", "!!!.???"} {
		_, err := ParseToken([]byte("secret"), token)
		assert.ErrorIs(t, err, ErrInvalidToken, token)
	}
}

func TestTokenRejectsExpired(t *testing.T) {
	secret := []byte("secret")
	token, err := IssueToken(secret, Claims{
		Sub: "u", Email: "e@turing", JTI: "j", Exp: time.Now().Add(-time.Minute).Unix(),
	})
	require.NoError(t, err)

	_, err = ParseToken(secret, token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

// =============================================================================
// Signup and Login
// =============================================================================

func TestSignUpAndLogin(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()

	user, err := svc.SignUp(ctx, "Annotator@Turing", "hunter2hunter2")
	require.NoError(t, err)
	assert.Equal(t, "annotator@turing", user.Email, "email is normalized to lowercase")
	assert.NotEmpty(t, user.ID)

	token, loggedIn, err := svc.Login(ctx, "annotator@turing", "hunter2hunter2")
	require.NoError(t, err)
	assert.Equal(t, user.ID, loggedIn.ID)

	claims, err := ParseToken(svc.Secret(), token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.Sub)
	assert.Equal(t, user.Email, claims.Email)

	resolved, err := svc.CurrentUser(ctx, claims)
	require.NoError(t, err)
	assert.Equal(t, user.Email, resolved.Email)
}

func TestSignUpEnforcesEmailSuffix(t *testing.T) {
	svc := testService(t)

	_, err := svc.SignUp(context.Background(), "someone@example.com", "hunter2hunter2")
	assert.ErrorIs(t, err, ErrEmailSuffix)
}

func TestSignUpRejectsShortPassword(t *testing.T) {
	svc := testService(t)

	_, err := svc.SignUp(context.Background(), "a@turing", "short")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 8 characters")
}

func TestSignUpRejectsDuplicateEmail(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()

	_, err := svc.SignUp(ctx, "a@turing", "hunter2hunter2")
	require.NoError(t, err)

	_, err = svc.SignUp(ctx, "A@TURING", "otherpassword")
	assert.ErrorIs(t, err, ErrUserExists)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()

	_, _, err := svc.Login(ctx, "ghost@turing", "hunter2hunter2")
	assert.ErrorIs(t, err, ErrBadCredentials)

	_, err = svc.SignUp(ctx, "a@turing", "hunter2hunter2")
	require.NoError(t, err)

	_, _, err = svc.Login(ctx, "a@turing", "wrong-password")
	assert.ErrorIs(t, err, ErrBadCredentials)
}

func TestUserNeverMarshalsPasswordHash(t *testing.T) {
	svc := testService(t)
	user, err := svc.SignUp(context.Background(), "a@turing", "hunter2hunter2")
	require.NoError(t, err)
	require.NotEmpty(t, user.PasswordHash)

	data, err := json.Marshal(user)
	require.NoError(t, err)
	assert.NotContains(t, string(data), user.PasswordHash)
	assert.NotContains(t, string(data), "password")
}
