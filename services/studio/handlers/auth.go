// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/TrajectoryStudio/services/studio/auth"
	"github.com/AleutianAI/TrajectoryStudio/services/studio/datatypes"
	"github.com/AleutianAI/TrajectoryStudio/services/studio/middleware"
)

// HandleSignup creates a new account, enforcing the configured
// email-domain policy.
func HandleSignup(svc *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.SignupRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Email and password are required"})
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		_, err := svc.SignUp(c.Request.Context(), req.Email, req.Password)
		switch {
		case errors.Is(err, auth.ErrEmailSuffix):
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Email must end with %s", svc.EmailSuffix())})
		case errors.Is(err, auth.ErrUserExists):
			c.JSON(http.StatusConflict, gin.H{"error": "User with this email already exists"})
		case err != nil:
			slog.Error("Signup failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		default:
			c.JSON(http.StatusCreated, gin.H{"message": "User created successfully"})
		}
	}
}

// HandleLogin exchanges credentials for an access token.
func HandleLogin(svc *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.LoginRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Email and password are required"})
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		token, user, err := svc.Login(c.Request.Context(), req.Email, req.Password)
		if err != nil {
			if errors.Is(err, auth.ErrBadCredentials) {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
				return
			}
			slog.Error("Login failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"access_token": token,
			"user": gin.H{
				"id":    user.ID,
				"email": user.Email,
			},
		})
	}
}

// HandleMe returns the account behind the presented token.
func HandleMe(svc *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := middleware.GetClaims(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization token is required"})
			return
		}

		user, err := svc.CurrentUser(c.Request.Context(), claims)
		if err != nil {
			if errors.Is(err, auth.ErrUserNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
				return
			}
			slog.Error("Current user lookup failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"id":         user.ID,
			"email":      user.Email,
			"created_at": user.CreatedAt.Format(time.RFC3339),
		})
	}
}

// HandleLogout exists for API symmetry; tokens are discarded
// client-side.
func HandleLogout() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
	}
}
