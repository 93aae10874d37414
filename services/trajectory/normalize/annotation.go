// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package normalize converts detected source documents into the
// canonical trajectory model. Two independent conversion paths exist,
// selected by the detected format family: the annotation-trace path
// (rich action kinds with structured details) and the legacy path
// (plain action/observation/thought strings, possibly pre-clustered).
package normalize

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/AleutianAI/TrajectoryStudio/services/trajectory"
	"github.com/tidwall/gjson"
)

// IndexMap maps an assigned originalIndex to the entry's position in
// the original annotation-trace array. Export needs it to patch edits
// back onto the original document.
type IndexMap map[int]int

const (
	actionBeginInteraction = "begin_interaction"
	actionEndInteraction   = "end_interaction"
)

// Annotation converts an annotation-trace array into a flat step
// sequence. Clusters are never reconstructed from this format;
// annotation-trace sources are always consumed flat.
//
// A begin_interaction entry, when present, is synthesized into the
// StepZero (repo name, problem statement and user prompt concatenated
// into one instructional text; its timestamp becomes the start
// timestamp). begin_interaction and end_interaction entries are
// skipped when assigning step indexes, but their positions still count
// in the returned IndexMap, which is keyed against the ORIGINAL array.
func Annotation(trace []byte) (*trajectory.Trajectory, IndexMap, error) {
	arr := gjson.ParseBytes(trace)
	if !arr.IsArray() {
		return nil, nil, fmt.Errorf("annotation trace is not an array")
	}

	traj := &trajectory.Trajectory{}
	indexMap := IndexMap{}
	next := 1

	entries := arr.Array()
	for pos, item := range entries {
		kind := item.Get("action").String()
		switch kind {
		case actionBeginInteraction:
			traj.Zero = zeroFromBegin(item)
			continue
		case actionEndInteraction:
			continue
		}

		action, observation := FormatAction(kind, item.Get("details"))
		step := &trajectory.Step{
			OriginalIndex: next,
			Thought:       item.Get("thought").String(),
			Action:        action,
			Observation:   observation,
			Partition:     trajectory.Partition(item.Get("partition").String()),
			Timestamp:     item.Get("timestamp").String(),
			ActionType:    kind,
		}
		if details := item.Get("details"); details.Exists() {
			step.Details = json.RawMessage(details.Raw)
		}
		traj.Entries = append(traj.Entries, step)
		indexMap[next] = pos
		next++
	}

	traj.Sort()
	return traj, indexMap, nil
}

// zeroFromBegin synthesizes the StepZero from a begin_interaction
// entry: repoName, problemStatement and userPrompt joined into one
// instruction text, timestamp carried over as the start timestamp.
func zeroFromBegin(item gjson.Result) *trajectory.StepZero {
	details := item.Get("details")
	var parts []string
	if repo := details.Get("repoName").String(); repo != "" {
		parts = append(parts, "Repository: "+repo)
	}
	if problem := details.Get("problemStatement").String(); problem != "" {
		parts = append(parts, problem)
	}
	if prompt := details.Get("userPrompt").String(); prompt != "" {
		parts = append(parts, prompt)
	}

	content, _ := json.Marshal(strings.Join(parts, "\n\n"))
	return &trajectory.StepZero{
		Content:        content,
		StartTimestamp: item.Get("timestamp").String(),
		Repo:           details.Get("repoName").String(),
	}
}

// =============================================================================
// Action Formatting Table
// =============================================================================

// FormatAction converts an annotation-trace action kind plus its
// structured details into the human-readable action string and the
// derived observation string shown in the viewer.
//
// The table is fixed per action kind:
//
//   - terminal commands surface the command text, with the error (or
//     output) as observation
//   - file operations surface "File: <path>"
//   - searches surface the result count and the first few results
//   - code edits surface the change count
//   - unknown kinds fall back to the kind with underscores replaced
//     by spaces
func FormatAction(kind string, details gjson.Result) (action, observation string) {
	humanized := strings.ReplaceAll(kind, "_", " ")

	switch kind {
	case "execute_terminal_command", "run_terminal_command":
		action = details.Get("command").String()
		if action == "" {
			action = humanized
		}
		if errText := details.Get("error").String(); errText != "" {
			observation = errText
		} else {
			observation = details.Get("output").String()
		}

	case "open_file", "create_file", "read_file", "write_file", "delete_file", "close_file":
		action = humanized
		if path := detailPath(details); path != "" {
			observation = "File: " + path
		}

	case "string_search", "web_search", "search_files":
		term := details.Get("searchTerm").String()
		if term == "" {
			term = details.Get("query").String()
		}
		action = humanized
		if term != "" {
			action = fmt.Sprintf("%s: %q", humanized, term)
		}
		observation = summarizeResults(details.Get("results"))

	case "edit_code", "code_edit", "replace_code":
		action = humanized
		if path := detailPath(details); path != "" {
			action = humanized + " " + path
		}
		n := len(details.Get("changes").Array())
		observation = fmt.Sprintf("%d change(s)", n)

	default:
		action = humanized
	}

	return action, observation
}

// maxSurfacedResults bounds how many search results the observation
// string carries.
const maxSurfacedResults = 5

func summarizeResults(results gjson.Result) string {
	items := results.Array()
	if len(items) == 0 {
		return "Found 0 results"
	}
	surfaced := make([]string, 0, maxSurfacedResults)
	for i, item := range items {
		if i == maxSurfacedResults {
			break
		}
		surfaced = append(surfaced, item.String())
	}
	return fmt.Sprintf("Found %d results: %s", len(items), strings.Join(surfaced, "; "))
}

func detailPath(details gjson.Result) string {
	for _, key := range []string{"filePath", "file_path", "path", "file"} {
		if v := details.Get(key); v.Exists() {
			return v.String()
		}
	}
	return ""
}
