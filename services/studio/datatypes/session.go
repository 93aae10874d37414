// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import "encoding/json"

// SessionState is the per-user editing session snapshot. The client
// writes it after every relevant change and reads it back on mount, so
// the whole thing is stored as one record. Most fields are opaque to
// the server; only the client interprets them.
type SessionState struct {
	Trajectory         json.RawMessage `json:"trajectory,omitempty"`
	FilteredTrajectory json.RawMessage `json:"filteredTrajectory,omitempty"`
	CurrentIndex       int             `json:"currentIndex"`
	FileName           string          `json:"fileName,omitempty"`
	SearchQuery        string          `json:"searchQuery,omitempty"`
	SemanticFilter     json.RawMessage `json:"semanticFilter,omitempty"`
	ChatKey            string          `json:"chatKey,omitempty"`
	FileContent        string          `json:"fileContent,omitempty"`
	ModifiedContent    string          `json:"modifiedContent,omitempty"`
	ReplaceSearch      string          `json:"replaceSearch,omitempty"`
	ReplaceWith        string          `json:"replaceWith,omitempty"`
	EditingStep        *int            `json:"editingStep,omitempty"`
	EditedThought      string          `json:"editedThought,omitempty"`
	HasUnsavedChanges  bool            `json:"hasUnsavedChanges"`
	SelectedSteps      []int           `json:"selectedSteps,omitempty"`
	Clusters           json.RawMessage `json:"clusters,omitempty"`
	StartTimestamp     string          `json:"startTimestamp,omitempty"`
}
