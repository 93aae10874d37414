// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const tokenLifetime = 24 * time.Hour

// DefaultEmailSuffix gates signups when ALLOWED_EMAIL_SUFFIX is unset.
const DefaultEmailSuffix = "@turing"

// Service provides email/password authentication. Signups are
// restricted to a configured email-domain suffix.
type Service struct {
	store       *UserStore
	tokenSecret []byte
	emailSuffix string
}

var (
	ErrBadCredentials = errors.New("invalid credentials")
	ErrEmailSuffix    = errors.New("email domain not allowed")
)

func NewService(store *UserStore, tokenSecret, emailSuffix string) *Service {
	if emailSuffix == "" {
		emailSuffix = DefaultEmailSuffix
	}
	return &Service{
		store:       store,
		tokenSecret: []byte(tokenSecret),
		emailSuffix: emailSuffix,
	}
}

// EmailSuffix returns the suffix signups must carry, for error messages.
func (s *Service) EmailSuffix() string {
	return s.emailSuffix
}

// SignUp creates a new account. Email is normalized to lowercase so
// logins are case-insensitive.
func (s *Service) SignUp(ctx context.Context, email, password string) (User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return User{}, errors.New("email and password are required")
	}
	if len(password) < 8 {
		return User{}, errors.New("password must be at least 8 characters")
	}
	if !strings.HasSuffix(email, s.emailSuffix) {
		return User{}, fmt.Errorf("%w: must end with %s", ErrEmailSuffix, s.emailSuffix)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}

	user := User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return User{}, err
	}
	return user, nil
}

// Login verifies credentials and issues an access token.
func (s *Service) Login(ctx context.Context, email, password string) (string, User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return "", User{}, ErrBadCredentials
		}
		return "", User{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return "", User{}, ErrBadCredentials
	}

	token, err := IssueToken(s.tokenSecret, Claims{
		Sub:   user.ID,
		Email: user.Email,
		JTI:   uuid.NewString(),
		Exp:   time.Now().Add(tokenLifetime).Unix(),
	})
	if err != nil {
		return "", User{}, err
	}
	return token, user, nil
}

// CurrentUser resolves token claims back to a stored account.
func (s *Service) CurrentUser(ctx context.Context, claims Claims) (User, error) {
	return s.store.GetUserByID(ctx, claims.Sub)
}

// Secret exposes the signing secret to the auth middleware.
func (s *Service) Secret() []byte {
	return s.tokenSecret
}
