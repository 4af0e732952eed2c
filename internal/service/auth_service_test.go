package service

import (
	"context"
	"testing"
	"time"

	"tutor-payment-engine/config"
	"tutor-payment-engine/pkg/apperror"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAuthService(t *testing.T) (*AuthServiceImpl, string) {
	t.Helper()
	hashSvc := NewArgon2HashService()
	hash, err := hashSvc.Hash("operator-password")
	require.NoError(t, err)

	tokenSvc := NewJWTTokenService("test-secret", time.Hour, "tutor-payment-engine")
	svc := NewAuthService(config.DashboardConfig{
		Username:     "operator",
		PasswordHash: hash,
	}, hashSvc, tokenSvc)
	return svc, "operator-password"
}

func TestAuthService_Login_Success(t *testing.T) {
	svc, password := testAuthService(t)

	token, expiry, err := svc.Login(context.Background(), "operator", password)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.True(t, expiry.After(time.Now()))
}

func TestAuthService_Login_WrongPassword(t *testing.T) {
	svc, _ := testAuthService(t)

	_, _, err := svc.Login(context.Background(), "operator", "wrong")

	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "AUTH_001", appErr.Code)
}

func TestAuthService_Login_WrongUsername(t *testing.T) {
	svc, password := testAuthService(t)

	_, _, err := svc.Login(context.Background(), "admin", password)

	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "AUTH_001", appErr.Code)
}

func TestAuthService_Login_Unconfigured(t *testing.T) {
	hashSvc := NewArgon2HashService()
	tokenSvc := NewJWTTokenService("test-secret", time.Hour, "tutor-payment-engine")
	svc := NewAuthService(config.DashboardConfig{}, hashSvc, tokenSvc)

	_, _, err := svc.Login(context.Background(), "operator", "anything")

	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "AUTH_001", appErr.Code)
}
