package service

import (
	"context"
	"crypto/subtle"
	"fmt"
	"time"

	"tutor-payment-engine/config"
	"tutor-payment-engine/internal/core/ports"
	"tutor-payment-engine/pkg/apperror"
)

// AuthServiceImpl implements ports.AuthService for the single operator
// dashboard credential. The credential lives in configuration as an
// Argon2id hash; there is no user store.
type AuthServiceImpl struct {
	cfg      config.DashboardConfig
	hashSvc  ports.HashService
	tokenSvc ports.TokenService
}

// NewAuthService creates a new AuthServiceImpl.
func NewAuthService(cfg config.DashboardConfig, hashSvc ports.HashService, tokenSvc ports.TokenService) *AuthServiceImpl {
	return &AuthServiceImpl{
		cfg:      cfg,
		hashSvc:  hashSvc,
		tokenSvc: tokenSvc,
	}
}

// Login validates the operator credential and returns a JWT token.
func (s *AuthServiceImpl) Login(ctx context.Context, username, password string) (string, time.Time, error) {
	if s.cfg.Username == "" || s.cfg.PasswordHash == "" {
		return "", time.Time{}, apperror.ErrInvalidCredentials()
	}
	if subtle.ConstantTimeCompare([]byte(username), []byte(s.cfg.Username)) != 1 {
		return "", time.Time{}, apperror.ErrInvalidCredentials()
	}

	valid, err := s.hashSvc.Verify(password, s.cfg.PasswordHash)
	if err != nil {
		return "", time.Time{}, apperror.InternalError(fmt.Errorf("verify password: %w", err))
	}
	if !valid {
		return "", time.Time{}, apperror.ErrInvalidCredentials()
	}

	token, expiry, err := s.tokenSvc.Generate(username)
	if err != nil {
		return "", time.Time{}, apperror.InternalError(fmt.Errorf("generate token: %w", err))
	}

	return token, expiry, nil
}
