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
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/TrajectoryStudio/services/studio/datatypes"
	"github.com/AleutianAI/TrajectoryStudio/services/studio/middleware"
	"github.com/AleutianAI/TrajectoryStudio/services/studio/state"
)

// HandleGetState hydrates the caller's saved session. A user with no
// saved session gets 404; the client treats that as a fresh start.
func HandleGetState(store *state.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := middleware.GetClaims(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization token is required"})
			return
		}

		st, err := store.Load(c.Request.Context(), claims.Sub)
		if err != nil {
			if errors.Is(err, state.ErrNoSession) {
				c.JSON(http.StatusNotFound, gin.H{"error": "no saved session"})
				return
			}
			slog.Error("Session load failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}
		c.JSON(http.StatusOK, st)
	}
}

// HandlePutState overwrites the caller's saved session.
func HandlePutState(store *state.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := middleware.GetClaims(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization token is required"})
			return
		}

		var st datatypes.SessionState
		if err := c.BindJSON(&st); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		if err := store.Save(c.Request.Context(), claims.Sub, &st); err != nil {
			slog.Error("Session save failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Session saved"})
	}
}

// HandleClearState deletes the caller's saved session without
// touching anything in flight on the client.
func HandleClearState(store *state.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := middleware.GetClaims(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization token is required"})
			return
		}

		if err := store.Clear(c.Request.Context(), claims.Sub); err != nil {
			slog.Error("Session clear failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Session cleared"})
	}
}
