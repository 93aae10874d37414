// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package convert lowers an edited trajectory into the structured
// interaction format consumed by downstream training pipelines: a flat
// list of parent-linked entries whose raw action/observation text has
// been parsed into typed tool invocations (executeCmd, openFile,
// createFile, replaceCodeString, selectCodeBlock, endInteraction).
package convert

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/AleutianAI/TrajectoryStudio/services/trajectory"
)

// Entry is one node of the converted interaction tree. The tree is a
// chain: each entry's parent is the entry before it.
type Entry struct {
	ID       int            `json:"id"`
	Parent   *int           `json:"parent"`
	Actions  []any          `json:"actions"`
	Thought  *string        `json:"thought"`
	Metadata map[string]any `json:"metadata"`
}

// Action is a typed tool invocation parsed out of raw action text.
type Action struct {
	Name     string         `json:"name"`
	Input    map[string]any `json:"input"`
	Output   map[string]any `json:"output"`
	Metadata map[string]any `json:"metadata"`
}

const emptyWorkspace = "<workspace>\n</workspace>"

var (
	problemPattern     = regexp.MustCompile(`(?s)<pr_description>(.*?)</pr_description>`)
	createPattern      = regexp.MustCompile(`(?s)str_replace_editor\s+create\s+(.+?)\s+--file_text\s+(.+)`)
	strReplacePattern  = regexp.MustCompile(`(?s)str_replace_editor\s+str_replace\s+(.+?)\s+--old_str\s+(.+?)\s+--new_str\s+(.+)`)
	viewRangePattern   = regexp.MustCompile(`^str_replace_editor\s+view\s+(.+?)\s+--view_range\s+(\d+)\s+(\d+)`)
	viewPattern        = regexp.MustCompile(`^str_replace_editor\s+view\s+(.+)`)
	lineNumberPattern  = regexp.MustCompile(`\n\s*(\d+)`)
	directoryListingAt = "Here's the files and directories up to 2 levels deep in /testbed, excluding hidden items:"
)

var errorPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:\w+):\d+:\d+: error: .*`),
	regexp.MustCompile(`(?i)\b(failed|exception|undefined|denied)\b`),
	regexp.MustCompile(`(?i)\berror\b.*?(?::|;|$)`),
	regexp.MustCompile(`(?i)(?:command|process|operation|task)\s+(?:failed|error)`),
	regexp.MustCompile(`(?i)(?:permission|access)\s+denied`),
	regexp.MustCompile(`(?i)(?:file|directory|path).*(?:not found|does not exist)`),
}

// excludePatterns suppress lines that merely mention error-looking
// words in paths or filenames.
var excludePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^[/\\].*[/\\].*(?:error|fail|exception)`),
	regexp.MustCompile(`(?i)\w*(?:error|fail|exception)\w*\.(py|js|java|cpp|c|h|txt|log|md)$`),
	regexp.MustCompile(`(?i)^\s*[\w/\\.-]*(?:error|fail|exception)[\w/\\.-]*\s*$`),
}

const clippedEnding = "<response clipped><NOTE>To save on context only part of this file has been shown to you. You should retry this tool after you have searched inside the file with `grep -n` in order to find the line numbers of what you are looking for.</NOTE>\n<IMPORTANT><NOTE>The above file has been abbreviated. Please use `str_replace editor view` with `view_range` to look at relevant files in detail.</NOTE></IMPORTANT>"

const reviewEnding = "\nReview the changes and make sure they are as expected. Edit the file again if necessary.\n"

// ExtractProblem pulls the problem statement out of step-zero content,
// looking for a <pr_description> block.
func ExtractProblem(text string) string {
	m := problemPattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// ExtractErrors scans command output line by line and returns the
// lines that look like real errors rather than paths that happen to
// contain error-ish words.
func ExtractErrors(output string) []string {
	if output == "" {
		return nil
	}
	var errs []string
line:
	for _, raw := range strings.Split(output, "\n") {
		ln := strings.TrimSpace(raw)
		for _, ex := range excludePatterns {
			if ex.MatchString(ln) {
				continue line
			}
		}
		for _, p := range errorPatterns {
			if p.MatchString(ln) {
				errs = append(errs, ln)
				continue line
			}
		}
	}
	return errs
}

func cleanOpenFileObservation(obs string) string {
	if strings.Contains(obs, clippedEnding) {
		return strings.TrimRight(strings.ReplaceAll(obs, clippedEnding, ""), " \t\r\n")
	}
	return obs
}

// workspaceFromObservation rewraps file-tool output as a workspace
// block. The first line of the observation is the tool's own banner
// and is dropped.
func workspaceFromObservation(obs, filePath string) string {
	var b strings.Builder
	b.WriteString("<workspace>\n")
	b.WriteString(filePath)
	b.WriteString("\n=========FILE CONTENT=======")
	if obs == "" {
		b.WriteString("\n\n=========FILE CONTENT=======\n</workspace>")
		return b.String()
	}
	if i := strings.Index(obs, "\n"); i != -1 {
		b.WriteString(obs[i:])
	} else {
		b.WriteString("\n")
		b.WriteString(obs)
	}
	b.WriteString("\n=========FILE CONTENT=======\n</workspace>")
	return b.String()
}

func workspaceOf(a any) string {
	act, ok := a.(Action)
	if !ok {
		return ""
	}
	ws, _ := act.Output["workspace"].(string)
	return ws
}

// ParseAction parses raw action text into typed tool invocations. Raw
// text that matches no known tool shape falls through to executeCmd.
func ParseAction(actionText, observationText string) []any {
	if actionText == "" {
		return []any{"<actions>"}
	}
	trimmed := strings.TrimSpace(actionText)

	if trimmed == "submit" {
		return []any{Action{
			Name:     "endInteraction",
			Input:    map[string]any{"answer": observationText},
			Output:   nil,
			Metadata: map[string]any{},
		}}
	}

	if m := createPattern.FindStringSubmatch(trimmed); m != nil {
		filePath := strings.TrimSpace(m[1])
		fileContent := strings.TrimSpace(m[2])
		return []any{Action{
			Name: "createFile",
			Input: map[string]any{
				"file_path":    filePath,
				"file_content": fileContent,
			},
			Output: map[string]any{
				"workspace": "<workspace>\n" + filePath + "\n=========FILE CONTENT=======\n" + fileContent + "\n=========FILE CONTENT=======\n</workspace>",
			},
			Metadata: map[string]any{},
		}}
	}

	if m := strReplacePattern.FindStringSubmatch(trimmed); m != nil {
		filePath := strings.TrimSpace(m[1])
		oldStr := strings.TrimSpace(m[2])
		newStr := strings.TrimSpace(m[3])

		var startLine, endLine any
		if nums := lineNumberPattern.FindAllStringSubmatch(observationText, -1); nums != nil {
			minN, maxN := 0, 0
			for i, nm := range nums {
				n, _ := strconv.Atoi(nm[1])
				if i == 0 || n < minN {
					minN = n
				}
				if i == 0 || n > maxN {
					maxN = n
				}
			}
			// The editor prints 4 lines of context above and below the
			// replaced region.
			startLine = minN + 4
			endLine = maxN - 4
		}

		cleaned := observationText
		if strings.Contains(cleaned, reviewEnding) {
			cleaned = strings.TrimRight(strings.ReplaceAll(cleaned, reviewEnding, ""), " \t\r\n")
		}

		return []any{Action{
			Name: "replaceCodeString",
			Input: map[string]any{
				"file_path":          filePath,
				"find":               oldStr,
				"replace":            newStr,
				"replace_start_line": startLine,
				"replace_end_line":   endLine,
			},
			Output: map[string]any{
				"workspace": workspaceFromObservation(cleaned, filePath),
			},
			Metadata: map[string]any{},
		}}
	}

	if m := viewRangePattern.FindStringSubmatch(trimmed); m != nil {
		filePath := strings.TrimSpace(m[1])
		start, _ := strconv.Atoi(m[2])
		end, _ := strconv.Atoi(m[3])
		return []any{Action{
			Name: "selectCodeBlock",
			Input: map[string]any{
				"file_path":   filePath,
				"line_ranges": []any{[]any{start, end}},
			},
			Output: map[string]any{
				"workspace": workspaceFromObservation(observationText, filePath),
			},
			Metadata: map[string]any{},
		}}
	}

	if m := viewPattern.FindStringSubmatch(trimmed); m != nil {
		path := strings.TrimSpace(m[1])
		if idx := strings.Index(observationText, directoryListingAt); idx != -1 {
			stdout := strings.TrimSpace(observationText[idx+len(directoryListingAt):])
			return []any{Action{
				Name: "executeCmd",
				Input: map[string]any{
					"cmd": "find " + path + ` -maxdepth 2 -not -path '*/\.*'`,
				},
				Output:   map[string]any{"stdout": stdout},
				Metadata: map[string]any{},
			}}
		}
		cleaned := cleanOpenFileObservation(observationText)
		return []any{Action{
			Name:  "openFile",
			Input: map[string]any{"file_path": path},
			Output: map[string]any{
				"workspace": workspaceFromObservation(cleaned, path),
			},
			Metadata: map[string]any{},
		}}
	}

	out := map[string]any{"stdout": observationText}
	if errs := ExtractErrors(observationText); len(errs) > 0 {
		out["errors"] = errs
	}
	return []any{Action{
		Name:     "executeCmd",
		Input:    map[string]any{"cmd": actionText},
		Output:   out,
		Metadata: map[string]any{},
	}}
}

// Convert lowers a normalized trajectory into the interaction format.
// Step zero becomes a beginInteraction entry carrying the prompt,
// repository, and extracted problem statement; every following entry
// parents onto its predecessor. Workspace metadata threads forward: an
// entry inherits the most recent workspace any earlier action emitted.
func Convert(traj *trajectory.Trajectory) []Entry {
	traj.Sort()
	result := make([]Entry, 0, len(traj.Entries)+1)
	workspace := emptyWorkspace

	if traj.Zero != nil {
		repo := traj.Zero.Repo
		if repo == "" {
			repo = "unknown/unknown"
		}
		var lastObservation any
		if steps := traj.Steps(); len(steps) > 0 {
			lastObservation = steps[len(steps)-1].Observation
		}
		var content any
		if len(traj.Zero.Content) == 0 || json.Unmarshal(traj.Zero.Content, &content) != nil {
			content = traj.Zero.Text()
		}
		result = append(result, Entry{
			ID:     0,
			Parent: nil,
			Actions: []any{Action{
				Name:  "beginInteraction",
				Input: map[string]any{},
				Output: map[string]any{
					"user_prompt": content,
					"repo":        repo,
					"problem":     nullable(ExtractProblem(traj.Zero.Text())),
				},
				Metadata: map[string]any{},
			}},
			Thought: nil,
			Metadata: map[string]any{
				"patch":      lastObservation,
				"hints_text": "NA",
				"stage":      "MAIN",
			},
		})
	}

	for _, e := range traj.Entries {
		id := len(result)
		var parent *int
		if id > 0 {
			p := id - 1
			parent = &p
		}

		switch v := e.(type) {
		case *trajectory.Step:
			actions := ParseAction(v.Action, v.Observation)
			for _, a := range actions {
				if ws := workspaceOf(a); ws != "" {
					workspace = ws
					break
				}
			}
			thought := v.Thought
			result = append(result, Entry{
				ID:      id,
				Parent:  parent,
				Actions: actions,
				Thought: &thought,
				Metadata: map[string]any{
					"workspace": workspace,
					"stage":     "TESTING",
				},
			})

		case *trajectory.Cluster:
			var actions []any
			for _, m := range v.Steps {
				actions = append(actions, ParseAction(m.Action, m.Observation)...)
			}
			for i := len(actions) - 1; i >= 0; i-- {
				if ws := workspaceOf(actions[i]); ws != "" {
					workspace = ws
					break
				}
			}
			thought := v.Narrative()
			result = append(result, Entry{
				ID:      id,
				Parent:  parent,
				Actions: actions,
				Thought: &thought,
				Metadata: map[string]any{
					"workspace": workspace,
					"stage":     "TESTING",
				},
			})
		}
	}

	return result
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
