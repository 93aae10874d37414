// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package filter computes the visible subsequence of a trajectory from
// keyword and semantic criteria. Filtering is read-only: it never
// mutates the trajectory and composes independently of the store's
// mutation operations.
package filter

import (
	"strings"

	"github.com/AleutianAI/TrajectoryStudio/services/trajectory"
)

// Selection picks one entry by identity, with the model's reasoning
// for why it matched.
type Selection struct {
	OriginalIndex int    `json:"originalIndex"`
	Reasoning     string `json:"reasoning"`
}

// Semantic is a model-computed filter: either an identity selection
// with per-entry reasoning, or a verbatim cluster list (the "Cluster
// Overview" toggle, a canned filter selecting exactly the current
// clusters). Clusters wins when both are set.
type Semantic struct {
	Selections []Selection
	Clusters   []*trajectory.Cluster
}

// Result is the computed visible subsequence. Zero is nil when the
// trajectory has no StepZero or the keyword filter excluded it.
type Result struct {
	Zero    *trajectory.StepZero
	Entries []trajectory.Entry
}

// Visible computes the displayed subsequence. Keyword terms are
// whitespace-split and lowercased; an entry matches if ANY term is a
// substring of its lowercased searchable text. Keyword and semantic
// criteria compose by intersection (keyword first, then identity
// intersection), and output order follows the trajectory's own order.
func Visible(traj *trajectory.Trajectory, keyword string, semantic *Semantic) Result {
	terms := splitTerms(keyword)

	res := Result{Zero: traj.Zero}
	if traj.Zero != nil && len(terms) > 0 && !matches(traj.Zero.Text(), terms) {
		res.Zero = nil
	}

	if semantic != nil && len(semantic.Clusters) > 0 {
		// Cluster Overview: the cluster list is the visible set,
		// still subject to an active keyword filter.
		for _, c := range semantic.Clusters {
			if len(terms) == 0 || matches(clusterText(c), terms) {
				res.Entries = append(res.Entries, c)
			}
		}
		return res
	}

	var reasonings map[int]string
	if semantic != nil && semantic.Selections != nil {
		reasonings = make(map[int]string, len(semantic.Selections))
		for _, sel := range semantic.Selections {
			reasonings[sel.OriginalIndex] = sel.Reasoning
		}
	}

	for _, e := range traj.Entries {
		if len(terms) > 0 && !matches(entryText(e), terms) {
			continue
		}
		if reasonings != nil {
			reasoning, ok := reasonings[e.Index()]
			if !ok {
				continue
			}
			attachReasoning(e, reasoning)
		}
		res.Entries = append(res.Entries, e)
	}
	return res
}

func splitTerms(keyword string) []string {
	var terms []string
	for _, t := range strings.Fields(keyword) {
		terms = append(terms, strings.ToLower(t))
	}
	return terms
}

func matches(text string, terms []string) bool {
	lowered := strings.ToLower(text)
	for _, t := range terms {
		if strings.Contains(lowered, t) {
			return true
		}
	}
	return false
}

// entryText builds the searchable text for an entry. For clusters only
// the surfaced fields (summary and cluster thought) participate;
// member-step text is intentionally not searched, matching the viewer
// which treats a cluster as opaque for keyword filtering.
func entryText(e trajectory.Entry) string {
	switch v := e.(type) {
	case *trajectory.Step:
		return v.Thought + " " + v.Action + " " + v.Observation
	case *trajectory.Cluster:
		return clusterText(v)
	}
	return ""
}

func clusterText(c *trajectory.Cluster) string {
	return c.Summary + " " + c.Thought
}

func attachReasoning(e trajectory.Entry, reasoning string) {
	switch v := e.(type) {
	case *trajectory.Step:
		v.Reasoning = reasoning
	case *trajectory.Cluster:
		v.Reasoning = reasoning
	}
}
