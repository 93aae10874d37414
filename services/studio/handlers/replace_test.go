// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// Tests for the regex replace handler

package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func postJSON(t *testing.T, router *gin.Engine, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	return w
}

func replaceRouter() *gin.Engine {
	router := gin.New()
	router.POST("/replace", HandleReplace(newTestMetrics()))
	return router
}

func TestHandleReplace(t *testing.T) {
	w := postJSON(t, replaceRouter(), "/replace", gin.H{
		"content":      "/testbed/old_name.py and /testbed/old_name.py again",
		"search_term":  "old_name",
		"replace_term": "new_name",
	})

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "/testbed/new_name.py and /testbed/new_name.py again", body["modified_content"])
}

func TestHandleReplaceSupportsRegex(t *testing.T) {
	w := postJSON(t, replaceRouter(), "/replace", gin.H{
		"content":      "step 12 then step 345",
		"search_term":  `step (\d+)`,
		"replace_term": "entry $1",
	})

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "entry 12 then entry 345", body["modified_content"])
}

func TestHandleReplaceMissingFields(t *testing.T) {
	w := postJSON(t, replaceRouter(), "/replace", gin.H{
		"content": "abc",
	})

	require.Equal(t, http.StatusBadRequest, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Missing required fields", body["error"])
}

func TestHandleReplaceBadPattern(t *testing.T) {
	w := postJSON(t, replaceRouter(), "/replace", gin.H{
		"content":      "abc",
		"search_term":  "(unclosed",
		"replace_term": "x",
	})

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
