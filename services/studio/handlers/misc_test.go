// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// Tests for miscellaneous handlers

package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/TrajectoryStudio/services/studio/observability"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// newTestMetrics returns metrics bound to a throwaway registry so
// tests never double-register collectors.
func newTestMetrics() *observability.StudioMetrics {
	return observability.NewStudioMetrics(prometheus.NewRegistry())
}

func TestHealthCheck(t *testing.T) {
	router := gin.New()
	router.GET("/health", HealthCheck)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}
