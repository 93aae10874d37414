// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// Tests for the chat copilot handler

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/TrajectoryStudio/services/llm"
	"github.com/AleutianAI/TrajectoryStudio/services/trajectory"
)

// stubChatClient records the request and plays back a canned completion.
type stubChatClient struct {
	completion *llm.Completion
	err        error

	gotMessages []llm.Message
	gotTools    []llm.Tool
}

func (s *stubChatClient) Chat(_ context.Context, messages []llm.Message, tools []llm.Tool) (*llm.Completion, error) {
	s.gotMessages = messages
	s.gotTools = tools
	if s.err != nil {
		return nil, s.err
	}
	return s.completion, nil
}

func chatRouter(client llm.ChatClient, limiter *rate.Limiter) *gin.Engine {
	router := gin.New()
	router.POST("/chat", HandleChat(client, limiter, newTestMetrics()))
	return router
}

func generousLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Inf, 1)
}

func TestHandleChatAnswersQuestion(t *testing.T) {
	stub := &stubChatClient{completion: &llm.Completion{Content: "The agent fixed the renderer."}}

	w := postJSON(t, chatRouter(stub, generousLimiter()), "/chat", gin.H{
		"messages":   []llm.Message{{Role: "user", Content: "what happened here?"}},
		"trajectory": json.RawMessage(`[{"originalIndex": 1, "thought": "fix renderer", "action": "edit", "observation": "done", "clustered": false, "partition": null, "stale": false}]`),
	})

	require.Equal(t, http.StatusOK, w.Code)
	body := gjson.ParseBytes(w.Body.Bytes())
	assert.Equal(t, "assistant", body.Get("role").String())
	assert.Equal(t, "The agent fixed the renderer.", body.Get("content").String())
	assert.False(t, body.Get("tool_calls").Exists())

	// The trajectory is embedded in the system prompt, sanitized to
	// the surfaced fields.
	require.NotEmpty(t, stub.gotMessages)
	system := stub.gotMessages[0]
	assert.Equal(t, "system", system.Role)
	assert.Contains(t, system.Content, "fix renderer")
	assert.Contains(t, system.Content, "# Trajectory")

	require.Len(t, stub.gotTools, 1)
	assert.Equal(t, SemanticFilterTool, stub.gotTools[0].Name)
}

func TestHandleChatReturnsToolCalls(t *testing.T) {
	stub := &stubChatClient{completion: &llm.Completion{
		ToolCalls: []llm.ToolCall{{
			Name:      SemanticFilterTool,
			Arguments: `{"filtered_steps": [{"originalIndex": 4, "reasoning": "runs the failing test"}]}`,
		}},
	}}

	w := postJSON(t, chatRouter(stub, generousLimiter()), "/chat", gin.H{
		"messages": []llm.Message{{Role: "user", Content: "show me the test steps"}},
	})

	require.Equal(t, http.StatusOK, w.Code)
	body := gjson.ParseBytes(w.Body.Bytes())
	calls := body.Get("tool_calls").Array()
	require.Len(t, calls, 1)
	assert.Equal(t, SemanticFilterTool, calls[0].Get("function.name").String())

	var args struct {
		FilteredSteps []struct {
			OriginalIndex int    `json:"originalIndex"`
			Reasoning     string `json:"reasoning"`
		} `json:"filtered_steps"`
	}
	require.NoError(t, json.Unmarshal([]byte(calls[0].Get("function.arguments").String()), &args))
	require.Len(t, args.FilteredSteps, 1)
	assert.Equal(t, 4, args.FilteredSteps[0].OriginalIndex)
}

func TestHandleChatRateLimited(t *testing.T) {
	stub := &stubChatClient{completion: &llm.Completion{Content: "ok"}}
	limiter := rate.NewLimiter(rate.Limit(0.001), 1)
	router := chatRouter(stub, limiter)

	payload := gin.H{"messages": []llm.Message{{Role: "user", Content: "hi"}}}

	w := postJSON(t, router, "/chat", payload)
	require.Equal(t, http.StatusOK, w.Code)

	w = postJSON(t, router, "/chat", payload)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestHandleChatBackendError(t *testing.T) {
	stub := &stubChatClient{err: errors.New("backend unreachable")}

	w := postJSON(t, chatRouter(stub, generousLimiter()), "/chat", gin.H{
		"messages": []llm.Message{{Role: "user", Content: "hi"}},
	})

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestHandleChatRequiresMessages(t *testing.T) {
	stub := &stubChatClient{completion: &llm.Completion{Content: "ok"}}

	w := postJSON(t, chatRouter(stub, generousLimiter()), "/chat", gin.H{
		"messages": []llm.Message{},
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSanitizeTrajectory(t *testing.T) {
	traj := &trajectory.Trajectory{
		Zero: &trajectory.StepZero{Content: json.RawMessage(`"fix the widget"`)},
		Entries: []trajectory.Entry{
			&trajectory.Step{OriginalIndex: 1, Thought: "look", Action: "ls", Observation: "main.go"},
			&trajectory.Cluster{
				StepIDs: []int{2, 3},
				Steps: []*trajectory.Step{
					{OriginalIndex: 2, Action: "go test", Observation: "FAIL"},
					{OriginalIndex: 3, Action: "edit", Observation: "ok"},
				},
				Summary: "test and fix",
			},
		},
	}

	steps := sanitizeTrajectory(traj)
	require.Len(t, steps, 3)

	assert.Equal(t, 0, steps[0].Step)
	assert.Equal(t, "fix the widget", steps[0].Content)

	assert.Equal(t, 1, steps[1].Step)
	assert.Equal(t, "look", steps[1].Thought)

	assert.Equal(t, 2, steps[2].Step)
	assert.Equal(t, "test and fix", steps[2].Thought)
	assert.Equal(t, strings.Join([]string{"go test", "edit"}, "\n"), steps[2].Action)
	assert.Equal(t, strings.Join([]string{"FAIL", "ok"}, "\n"), steps[2].Observation)
}
