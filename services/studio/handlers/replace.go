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
	"log/slog"
	"net/http"
	"regexp"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/TrajectoryStudio/services/studio/datatypes"
	"github.com/AleutianAI/TrajectoryStudio/services/studio/observability"
)

// HandleReplace performs a global, case-sensitive regex replacement
// over the whole document. The caller re-parses the trajectory from
// the modified content afterward.
func HandleReplace(metrics *observability.StudioMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.ReplaceRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := req.Validate(); err != nil {
			metrics.RequestsTotal.WithLabelValues("replace", "error").Inc()
			c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required fields"})
			return
		}

		pattern, err := regexp.Compile(req.SearchTerm)
		if err != nil {
			slog.Error("Invalid search pattern", "error", err)
			metrics.RequestsTotal.WithLabelValues("replace", "error").Inc()
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		modified := pattern.ReplaceAllString(req.Content, req.ReplaceTerm)
		metrics.RequestsTotal.WithLabelValues("replace", "success").Inc()
		c.JSON(http.StatusOK, gin.H{"modified_content": modified})
	}
}
