// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/TrajectoryStudio/services/llm"
	"github.com/AleutianAI/TrajectoryStudio/services/studio/auth"
	"github.com/AleutianAI/TrajectoryStudio/services/studio/handlers"
	"github.com/AleutianAI/TrajectoryStudio/services/studio/middleware"
	"github.com/AleutianAI/TrajectoryStudio/services/studio/observability"
	"github.com/AleutianAI/TrajectoryStudio/services/studio/state"
)

// Deps bundles everything the route handlers need.
type Deps struct {
	ChatClient  llm.ChatClient
	ChatLimiter *rate.Limiter
	AuthService *auth.Service
	StateStore  *state.Store
	Metrics     *observability.StudioMetrics
	DataDir     string
}

func SetupRoutes(router *gin.Engine, deps Deps) {
	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Auth endpoints keep their legacy paths for frontend compatibility.
	authGroup := router.Group("/api/auth")
	{
		authGroup.POST("/signup", handlers.HandleSignup(deps.AuthService))
		authGroup.POST("/login", handlers.HandleLogin(deps.AuthService))
		authGroup.POST("/logout", handlers.HandleLogout())
		authGroup.GET("/me",
			middleware.RequireAuth(deps.AuthService.Secret()),
			handlers.HandleMe(deps.AuthService))
	}

	// Collaborator endpoints used by the editor during a session.
	router.POST("/chat", handlers.HandleChat(deps.ChatClient, deps.ChatLimiter, deps.Metrics))
	router.POST("/replace", handlers.HandleReplace(deps.Metrics))
	router.POST("/save", handlers.HandleSave(deps.DataDir, deps.Metrics))

	// API version 1 group
	v1 := router.Group("/v1")
	{
		traj := v1.Group("/trajectory")
		{
			traj.POST("/load", handlers.HandleLoad(deps.Metrics))
			traj.POST("/export", handlers.HandleExport(deps.Metrics))
			traj.POST("/filter", handlers.HandleFilter(deps.Metrics))
			traj.POST("/op", handlers.HandleOp(deps.Metrics))
			traj.POST("/convert", handlers.HandleConvert(deps.Metrics))
		}

		session := v1.Group("/state", middleware.RequireAuth(deps.AuthService.Secret()))
		{
			session.GET("", handlers.HandleGetState(deps.StateStore))
			session.PUT("", handlers.HandlePutState(deps.StateStore))
			session.DELETE("", handlers.HandleClearState(deps.StateStore))
		}
	}
}
