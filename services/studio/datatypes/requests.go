// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides request and response types for the studio
// service.
package datatypes

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/TrajectoryStudio/services/llm"
)

// =============================================================================
// Constants for Security Compliance
// =============================================================================

const (
	// MaxDocumentBytes is the maximum size of an uploaded trajectory
	// document. Unbounded uploads would let a single request pin the
	// whole parse pipeline in memory.
	MaxDocumentBytes = 32 * 1024 * 1024 // 32MB

	// MaxMessagesPerRequest is the maximum number of chat messages in
	// a single request.
	MaxMessagesPerRequest = 100

	// MaxFilenameLength bounds user-supplied filenames.
	MaxFilenameLength = 255
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// studioValidate is the validator instance for studio datatypes.
var studioValidate = validator.New()

// =============================================================================
// Request Types
// =============================================================================

// ChatRequest asks the trajectory copilot a question. Trajectory is
// the canonical serialized trajectory the conversation is about.
type ChatRequest struct {
	Messages   []llm.Message   `json:"messages" validate:"required,min=1,max=100"`
	Trajectory json.RawMessage `json:"trajectory"`
}

// Validate checks the request against size and shape constraints.
func (r *ChatRequest) Validate() error {
	if err := studioValidate.Struct(r); err != nil {
		return fmt.Errorf("invalid chat request: %w", err)
	}
	if len(r.Trajectory) > MaxDocumentBytes {
		return fmt.Errorf("trajectory exceeds %d bytes", MaxDocumentBytes)
	}
	return nil
}

// ReplaceRequest performs a whole-content regex replacement.
type ReplaceRequest struct {
	Content     string `json:"content" validate:"required"`
	SearchTerm  string `json:"search_term" validate:"required"`
	ReplaceTerm string `json:"replace_term" validate:"required"`
}

func (r *ReplaceRequest) Validate() error {
	if err := studioValidate.Struct(r); err != nil {
		return fmt.Errorf("invalid replace request: %w", err)
	}
	return nil
}

// SaveRequest persists a document under the server's data directory.
type SaveRequest struct {
	Content  string `json:"content" validate:"required"`
	Filename string `json:"filename" validate:"required,max=255"`
}

func (r *SaveRequest) Validate() error {
	if err := studioValidate.Struct(r); err != nil {
		return fmt.Errorf("invalid save request: %w", err)
	}
	return nil
}

// LoadRequest parses an uploaded trajectory document.
type LoadRequest struct {
	Content  string `json:"content" validate:"required"`
	Filename string `json:"filename" validate:"max=255"`
}

func (r *LoadRequest) Validate() error {
	if err := studioValidate.Struct(r); err != nil {
		return fmt.Errorf("invalid load request: %w", err)
	}
	if len(r.Content) > MaxDocumentBytes {
		return fmt.Errorf("content exceeds %d bytes", MaxDocumentBytes)
	}
	return nil
}

// ExportRequest serializes an edited trajectory back into its source
// format. Content is the originally uploaded document; it is required
// for annotation-trace sources, whose export is a round-trip patch.
type ExportRequest struct {
	Trajectory json.RawMessage `json:"trajectory" validate:"required"`
	Content    string          `json:"content"`
	IndexMap   map[int]int     `json:"indexMap"`
}

func (r *ExportRequest) Validate() error {
	if err := studioValidate.Struct(r); err != nil {
		return fmt.Errorf("invalid export request: %w", err)
	}
	return nil
}

// FilterRequest computes the visible subset of a trajectory.
type FilterRequest struct {
	Trajectory json.RawMessage `json:"trajectory" validate:"required"`
	Keyword    string          `json:"keyword"`
	Semantic   json.RawMessage `json:"semantic"`
}

func (r *FilterRequest) Validate() error {
	if err := studioValidate.Struct(r); err != nil {
		return fmt.Errorf("invalid filter request: %w", err)
	}
	return nil
}

// OpRequest applies a single mutation to a trajectory and returns the
// mutated document. Args is interpreted per Op.
type OpRequest struct {
	Trajectory json.RawMessage `json:"trajectory" validate:"required"`
	Op         string          `json:"op" validate:"required"`
	Args       json.RawMessage `json:"args"`
}

func (r *OpRequest) Validate() error {
	if err := studioValidate.Struct(r); err != nil {
		return fmt.Errorf("invalid op request: %w", err)
	}
	return nil
}

// =============================================================================
// Auth Types
// =============================================================================

// SignupRequest creates a new user account. The email is NOT checked
// against a full address grammar here: the allowed-suffix policy in
// the auth service covers internal domains a strict validator rejects.
type SignupRequest struct {
	Email    string `json:"email" validate:"required,contains=@"`
	Password string `json:"password" validate:"required,min=8"`
}

func (r *SignupRequest) Validate() error {
	if err := studioValidate.Struct(r); err != nil {
		return fmt.Errorf("invalid signup request: %w", err)
	}
	return nil
}

// LoginRequest exchanges credentials for an access token.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,contains=@"`
	Password string `json:"password" validate:"required"`
}

func (r *LoginRequest) Validate() error {
	if err := studioValidate.Struct(r); err != nil {
		return fmt.Errorf("invalid login request: %w", err)
	}
	return nil
}
