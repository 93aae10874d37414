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
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/TrajectoryStudio/services/llm"
	"github.com/AleutianAI/TrajectoryStudio/services/studio/datatypes"
	"github.com/AleutianAI/TrajectoryStudio/services/studio/observability"
	"github.com/AleutianAI/TrajectoryStudio/services/trajectory"
)

var chatTracer = otel.Tracer("trajectorystudio.studio.handlers")

// systemPromptTemplate frames the copilot's role. The serialized
// trajectory replaces the %s placeholder.
const systemPromptTemplate = `# Identity, Goals, and Setting

You are part of an LLM-based system designed to audit, fix, and improve SWE-bench agentic trajectories with a human-in-the-loop.
In these trajectories, an agent attempts to resolve a GitHub issue by interacting with the repository inside a containerized environment.

# Instructions

You will be provided with a list of agentic steps.
- Step 0 contains the initial system prompt from the agent's history, if available.
- Subsequent steps (1, 2, 3...) are from the agent's trajectory.

Each trajectory step is a dictionary with the format:
[{"step": <int>, "thought": <str>, "action": <str>, "observation": <str>}]

Note that the thought comes after the action and the observation is the result of the action.

The human may interact with you in two ways:

1. General Questions
   The human may ask general questions about the trajectory. Respond clearly and accurately.

2. Filtering Requests
   The human may ask you to filter for certain types of steps (e.g., all steps involving file reads, test invocations, etc.).
   In these cases, call the appropriate filter function.

Use your best judgement to decide between answering general questions and filtering requests.
For example, if the human asks "what are the steps that..." this is a filtering request.
If the human says "help me understand the issue", this is a general question.

# Trajectory
%s`

// SemanticFilterTool is the single tool exposed to the model. The
// frontend applies the returned selection as a semantic filter.
const SemanticFilterTool = "apply_semantic_filter"

var semanticFilterSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"filtered_steps": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"originalIndex": {"type": "integer"},
					"reasoning": {"type": "string"}
				},
				"required": ["originalIndex", "reasoning"]
			}
		}
	},
	"required": ["filtered_steps"]
}`)

// sanitizedStep is the per-step view offered to the model: index and
// surfaced text only, no tool metadata.
type sanitizedStep struct {
	Step        int    `json:"step"`
	Content     string `json:"content,omitempty"`
	Thought     string `json:"thought,omitempty"`
	Action      string `json:"action,omitempty"`
	Observation string `json:"observation,omitempty"`
}

func sanitizeTrajectory(traj *trajectory.Trajectory) []sanitizedStep {
	out := make([]sanitizedStep, 0, len(traj.Entries)+1)
	if traj.Zero != nil {
		out = append(out, sanitizedStep{Step: 0, Content: traj.Zero.Text()})
	}
	for _, e := range traj.Entries {
		switch v := e.(type) {
		case *trajectory.Step:
			out = append(out, sanitizedStep{
				Step:        v.OriginalIndex,
				Thought:     v.Thought,
				Action:      v.Action,
				Observation: v.Observation,
			})
		case *trajectory.Cluster:
			var actions, observations []string
			for _, m := range v.Steps {
				actions = append(actions, m.Action)
				observations = append(observations, m.Observation)
			}
			out = append(out, sanitizedStep{
				Step:        v.Index(),
				Thought:     v.Narrative(),
				Action:      strings.Join(actions, "\n"),
				Observation: strings.Join(observations, "\n"),
			})
		}
	}
	return out
}

// toolCallView mirrors the OpenAI wire shape the frontend expects.
type toolCallView struct {
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

// HandleChat proxies the conversation to the configured LLM backend
// with the trajectory embedded in the system prompt. A rate limiter
// guards the upstream API; over-limit requests get 429 rather than
// queuing.
func HandleChat(client llm.ChatClient, limiter *rate.Limiter, metrics *observability.StudioMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := chatTracer.Start(c.Request.Context(), "HandleChat")
		defer span.End()

		var req datatypes.ChatRequest
		if err := c.BindJSON(&req); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Failed to parse the chat request", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := req.Validate(); err != nil {
			metrics.RequestsTotal.WithLabelValues("chat", "error").Inc()
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if !limiter.Allow() {
			metrics.RequestsTotal.WithLabelValues("chat", "error").Inc()
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many chat requests, slow down"})
			return
		}

		var traj trajectory.Trajectory
		if len(req.Trajectory) > 0 {
			if err := json.Unmarshal(req.Trajectory, &traj); err != nil {
				metrics.RequestsTotal.WithLabelValues("chat", "error").Inc()
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid trajectory"})
				return
			}
		}

		sanitized, err := json.MarshalIndent(sanitizeTrajectory(&traj), "", "  ")
		if err != nil {
			metrics.RequestsTotal.WithLabelValues("chat", "error").Inc()
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		messages := make([]llm.Message, 0, len(req.Messages)+1)
		messages = append(messages, llm.Message{
			Role:    "system",
			Content: fmt.Sprintf(systemPromptTemplate, sanitized),
		})
		messages = append(messages, req.Messages...)

		tools := []llm.Tool{{
			Name:        SemanticFilterTool,
			Description: "Filters the trajectory based on a semantic query and returns the filtered steps along with reasoning.",
			Parameters:  semanticFilterSchema,
		}}

		metrics.ActiveChats.Inc()
		started := time.Now()
		completion, err := client.Chat(ctx, messages, tools)
		metrics.ActiveChats.Dec()
		metrics.ChatDurationSeconds.Observe(time.Since(started).Seconds())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Chat backend call failed", "error", err)
			metrics.RequestsTotal.WithLabelValues("chat", "error").Inc()
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		resp := gin.H{
			"role":    "assistant",
			"content": completion.Content,
		}
		if len(completion.ToolCalls) > 0 {
			views := make([]toolCallView, 0, len(completion.ToolCalls))
			for _, tc := range completion.ToolCalls {
				metrics.ChatToolCallsTotal.WithLabelValues(tc.Name).Inc()
				var v toolCallView
				v.Function.Name = tc.Name
				v.Function.Arguments = tc.Arguments
				views = append(views, v)
			}
			resp["tool_calls"] = views
		}
		metrics.RequestsTotal.WithLabelValues("chat", "success").Inc()
		c.JSON(http.StatusOK, resp)
	}
}
