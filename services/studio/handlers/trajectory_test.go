// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// Tests for the trajectory engine handlers

package handlers

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func trajectoryRouter() *gin.Engine {
	metrics := newTestMetrics()
	router := gin.New()
	router.POST("/load", HandleLoad(metrics))
	router.POST("/export", HandleExport(metrics))
	router.POST("/filter", HandleFilter(metrics))
	router.POST("/op", HandleOp(metrics))
	router.POST("/convert", HandleConvert(metrics))
	return router
}

const legacyDocument = `[
	{"thought": "look around", "action": "ls", "observation": "main.go"},
	{"thought": "inspect", "action": "cat main.go", "observation": "package main"}
]`

const annotationDocument = `[
	{"action": "begin_interaction", "details": {"repoName": "acme/widget", "userPrompt": "fix it"}, "timestamp": "2025-06-01T10:00:00.000Z"},
	{"action": "execute_terminal_command", "details": {"command": "ls", "output": "main.go"}, "thought": "look"}
]`

// =============================================================================
// Load
// =============================================================================

func TestHandleLoadLegacy(t *testing.T) {
	w := postJSON(t, trajectoryRouter(), "/load", gin.H{
		"content":  legacyDocument,
		"filename": "acme__widget-42.json",
	})

	require.Equal(t, http.StatusOK, w.Code)
	body := gjson.ParseBytes(w.Body.Bytes())
	assert.Equal(t, "legacy-array", body.Get("format").String())
	assert.Len(t, body.Get("trajectory").Array(), 2)
	assert.Equal(t, int64(1), body.Get("trajectory.0.originalIndex").Int())
	assert.False(t, body.Get("indexMap").Exists() && body.Get("indexMap").Type != gjson.Null)
}

func TestHandleLoadAnnotation(t *testing.T) {
	w := postJSON(t, trajectoryRouter(), "/load", gin.H{
		"content":  annotationDocument,
		"filename": "upload.json",
	})

	require.Equal(t, http.StatusOK, w.Code)
	body := gjson.ParseBytes(w.Body.Bytes())
	assert.Equal(t, "annotationTrace-array", body.Get("format").String())
	assert.Equal(t, int64(1), body.Get("indexMap.1").Int())

	// begin_interaction became the step zero.
	assert.True(t, body.Get("trajectory.0.isStepZero").Bool())
	assert.Equal(t, "acme/widget", body.Get("trajectory.0.repo").String())
}

func TestHandleLoadUnknownFormat(t *testing.T) {
	w := postJSON(t, trajectoryRouter(), "/load", gin.H{
		"content": `{"not": "a trajectory"}`,
	})

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, gjson.GetBytes(w.Body.Bytes(), "error").String(), "unknown trajectory format")
}

func TestHandleLoadMissingContent(t *testing.T) {
	w := postJSON(t, trajectoryRouter(), "/load", gin.H{"filename": "x.json"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// =============================================================================
// Export
// =============================================================================

func loadTrajectory(t *testing.T, content string) json.RawMessage {
	t.Helper()
	w := postJSON(t, trajectoryRouter(), "/load", gin.H{"content": content})
	require.Equal(t, http.StatusOK, w.Code)
	return json.RawMessage(gjson.GetBytes(w.Body.Bytes(), "trajectory").Raw)
}

func TestHandleExportValidationErrors(t *testing.T) {
	traj := loadTrajectory(t, legacyDocument)

	w := postJSON(t, trajectoryRouter(), "/export", gin.H{
		"trajectory": traj,
		"content":    legacyDocument,
	})

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	problems := gjson.GetBytes(w.Body.Bytes(), "errors").Array()
	require.NotEmpty(t, problems)
	assert.Contains(t, problems[0].String(), "start timestamp is not set")
}

func TestHandleExportAnnotation(t *testing.T) {
	router := trajectoryRouter()
	traj := loadTrajectory(t, annotationDocument)

	// Assign the missing partition through the op endpoint first.
	w := postJSON(t, router, "/op", gin.H{
		"trajectory": traj,
		"op":         "set_partition",
		"args":       gin.H{"originalIndex": 1, "partition": "Solution"},
	})
	require.Equal(t, http.StatusOK, w.Code)
	edited := json.RawMessage(gjson.GetBytes(w.Body.Bytes(), "trajectory").Raw)

	// The index map is deliberately omitted; the server rebuilds it.
	w = postJSON(t, router, "/export", gin.H{
		"trajectory": edited,
		"content":    annotationDocument,
	})

	require.Equal(t, http.StatusOK, w.Code)
	body := gjson.ParseBytes(w.Body.Bytes())
	assert.Equal(t, "updated_annotation_trace.json", body.Get("filename").String())

	doc := body.Get("document")
	require.True(t, doc.IsArray())
	assert.Equal(t, "Solution", doc.Get("1.partition").String())
	assert.Equal(t, "ls", doc.Get("1.details.command").String(), "source fields survive the round trip")
}

func TestHandleExportBadContent(t *testing.T) {
	traj := loadTrajectory(t, legacyDocument)
	w := postJSON(t, trajectoryRouter(), "/export", gin.H{
		"trajectory": traj,
		"content":    `"not a document"`,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

// =============================================================================
// Filter
// =============================================================================

func TestHandleFilterKeyword(t *testing.T) {
	traj := loadTrajectory(t, legacyDocument)

	w := postJSON(t, trajectoryRouter(), "/filter", gin.H{
		"trajectory": traj,
		"keyword":    "inspect",
	})

	require.Equal(t, http.StatusOK, w.Code)
	visible := gjson.GetBytes(w.Body.Bytes(), "trajectory").Array()
	require.Len(t, visible, 1)
	assert.Equal(t, int64(2), visible[0].Get("originalIndex").Int())
}

func TestHandleFilterSemantic(t *testing.T) {
	traj := loadTrajectory(t, legacyDocument)

	w := postJSON(t, trajectoryRouter(), "/filter", gin.H{
		"trajectory": traj,
		"semantic": []gin.H{
			{"originalIndex": 1, "reasoning": "explores the repo"},
		},
	})

	require.Equal(t, http.StatusOK, w.Code)
	visible := gjson.GetBytes(w.Body.Bytes(), "trajectory").Array()
	require.Len(t, visible, 1)
	assert.Equal(t, int64(1), visible[0].Get("originalIndex").Int())
	assert.Equal(t, "explores the repo", visible[0].Get("reasoning").String())
}

func TestHandleFilterBadSemantic(t *testing.T) {
	traj := loadTrajectory(t, legacyDocument)

	w := postJSON(t, trajectoryRouter(), "/filter", gin.H{
		"trajectory": traj,
		"semantic":   gin.H{"not": "an array"},
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// =============================================================================
// Ops
// =============================================================================

func TestHandleOpEditThought(t *testing.T) {
	traj := loadTrajectory(t, legacyDocument)

	w := postJSON(t, trajectoryRouter(), "/op", gin.H{
		"trajectory": traj,
		"op":         "edit_thought",
		"args":       gin.H{"originalIndex": 1, "text": "revised thought"},
	})

	require.Equal(t, http.StatusOK, w.Code)
	body := gjson.ParseBytes(w.Body.Bytes())
	assert.True(t, body.Get("dirty").Bool())
	assert.Equal(t, "revised thought", body.Get("trajectory.0.thought").String())
}

func TestHandleOpClusterAndUncluster(t *testing.T) {
	router := trajectoryRouter()
	traj := loadTrajectory(t, legacyDocument)

	w := postJSON(t, router, "/op", gin.H{
		"trajectory": traj,
		"op":         "cluster",
		"args":       gin.H{"selected": []int{1, 2}},
	})
	require.Equal(t, http.StatusOK, w.Code)
	body := gjson.ParseBytes(w.Body.Bytes())
	clustered := body.Get("trajectory").Array()
	require.Len(t, clustered, 1)
	assert.True(t, clustered[0].Get("clustered").Bool())
	assert.Equal(t, "look around | inspect", clustered[0].Get("summary").String())

	w = postJSON(t, router, "/op", gin.H{
		"trajectory": json.RawMessage(body.Get("trajectory").Raw),
		"op":         "uncluster",
		"args":       gin.H{"originalIndex": 1},
	})
	require.Equal(t, http.StatusOK, w.Code)
	body = gjson.ParseBytes(w.Body.Bytes())
	assert.Len(t, body.Get("trajectory").Array(), 2)
	assert.False(t, body.Get("dirty").Bool(), "unclustering does not mark unsaved changes")
}

func TestHandleOpInsertStep(t *testing.T) {
	traj := loadTrajectory(t, legacyDocument)

	w := postJSON(t, trajectoryRouter(), "/op", gin.H{
		"trajectory": traj,
		"op":         "insert_step",
		"args": gin.H{
			"afterIndex": 1,
			"step":       gin.H{"thought": "wedge", "action": "manual", "observation": ""},
		},
	})

	require.Equal(t, http.StatusOK, w.Code)
	entries := gjson.GetBytes(w.Body.Bytes(), "trajectory").Array()
	require.Len(t, entries, 3)
	assert.Equal(t, int64(2), entries[1].Get("originalIndex").Int())
	assert.True(t, entries[1].Get("isNewStep").Bool())
	assert.Equal(t, int64(3), entries[2].Get("originalIndex").Int(), "the old step 2 shifted up")
}

func TestHandleOpSetStartTimestamp(t *testing.T) {
	traj := loadTrajectory(t, legacyDocument)

	w := postJSON(t, trajectoryRouter(), "/op", gin.H{
		"trajectory": traj,
		"op":         "set_start_timestamp",
		"args":       gin.H{"timestamp": "2025-06-01T10:00:00.000Z"},
	})

	require.Equal(t, http.StatusOK, w.Code)
	body := gjson.ParseBytes(w.Body.Bytes())
	assert.Equal(t, "2025-06-01T10:00:00.000Z", body.Get("trajectory.0.startTimestamp").String())
	assert.Equal(t, "2025-06-01T10:00:10.000Z", body.Get("trajectory.2.timestamp").String())
}

func TestHandleOpNotFound(t *testing.T) {
	traj := loadTrajectory(t, legacyDocument)

	w := postJSON(t, trajectoryRouter(), "/op", gin.H{
		"trajectory": traj,
		"op":         "mark_stale",
		"args":       gin.H{"originalIndex": 99},
	})

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleOpNonContiguousCluster(t *testing.T) {
	traj := loadTrajectory(t, `[
		{"thought": "a", "action": "x", "observation": ""},
		{"thought": "b", "action": "y", "observation": ""},
		{"thought": "c", "action": "z", "observation": ""}
	]`)

	w := postJSON(t, trajectoryRouter(), "/op", gin.H{
		"trajectory": traj,
		"op":         "cluster",
		"args":       gin.H{"selected": []int{1, 3}},
	})

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, gjson.GetBytes(w.Body.Bytes(), "error").String(), "not contiguous")
}

func TestHandleOpUnknown(t *testing.T) {
	traj := loadTrajectory(t, legacyDocument)

	w := postJSON(t, trajectoryRouter(), "/op", gin.H{
		"trajectory": traj,
		"op":         "explode",
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// =============================================================================
// Convert
// =============================================================================

func TestHandleConvert(t *testing.T) {
	traj := loadTrajectory(t, legacyDocument)

	w := postJSON(t, trajectoryRouter(), "/convert", gin.H{"trajectory": traj})

	require.Equal(t, http.StatusOK, w.Code)
	entries := gjson.GetBytes(w.Body.Bytes(), "entries").Array()
	require.Len(t, entries, 2)
	assert.Equal(t, int64(0), entries[0].Get("id").Int())
	assert.Equal(t, "executeCmd", entries[0].Get("actions.0.name").String())
	assert.Equal(t, int64(0), entries[1].Get("parent").Int())
}
