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
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/TrajectoryStudio/services/studio/datatypes"
	"github.com/AleutianAI/TrajectoryStudio/services/studio/observability"
)

// HandleSave writes a document into dataDir. Filenames with path
// separators or parent references are rejected outright instead of
// being sanitized.
func HandleSave(dataDir string, metrics *observability.StudioMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.SaveRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		slog.Info("Save request", "filename", req.Filename, "content_length", len(req.Content))

		if err := req.Validate(); err != nil {
			metrics.RequestsTotal.WithLabelValues("save", "error").Inc()
			c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required fields"})
			return
		}
		if strings.Contains(req.Filename, "..") ||
			strings.ContainsAny(req.Filename, `/\`) {
			metrics.RequestsTotal.WithLabelValues("save", "error").Inc()
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid filename"})
			return
		}

		if err := os.MkdirAll(dataDir, 0750); err != nil {
			slog.Error("Could not create data directory", "dir", dataDir, "error", err)
			metrics.RequestsTotal.WithLabelValues("save", "error").Inc()
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		path := filepath.Join(dataDir, req.Filename)
		if err := os.WriteFile(path, []byte(req.Content), 0644); err != nil {
			slog.Error("Could not write file", "path", path, "error", err)
			metrics.RequestsTotal.WithLabelValues("save", "error").Inc()
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		slog.Info("File saved successfully", "path", path)
		metrics.RequestsTotal.WithLabelValues("save", "success").Inc()
		c.JSON(http.StatusOK, gin.H{"message": fmt.Sprintf("File saved successfully to %s", path)})
	}
}
