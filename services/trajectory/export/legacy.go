// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package export

import (
	"encoding/json"
	"time"

	"github.com/AleutianAI/TrajectoryStudio/services/trajectory"
)

// Legacy wire shapes. Partition marshals "" to null, which the strict
// pipeline treats as "unset" rather than omitting the key.

type legacyZero struct {
	IsStepZero     bool            `json:"isStepZero"`
	Content        json.RawMessage `json:"content"`
	StartTimestamp string          `json:"startTimestamp,omitempty"`
	Repo           string          `json:"repo,omitempty"`
}

type legacyStep struct {
	Action        string               `json:"action"`
	Observation   string               `json:"observation"`
	Thought       string               `json:"thought"`
	OriginalIndex int                  `json:"originalIndex"`
	Clustered     bool                 `json:"clustered"`
	Stale         bool                 `json:"stale"`
	Partition     trajectory.Partition `json:"partition"`
	Timestamp     string               `json:"timestamp,omitempty"`
}

type legacyCluster struct {
	OriginalIndex int                    `json:"originalIndex"`
	Clustered     bool                   `json:"clustered"`
	StepIDs       []int                  `json:"stepIds"`
	Thought       string                 `json:"thought"`
	Summary       string                 `json:"summary,omitempty"`
	Actions       []string               `json:"actions"`
	Observations  []string               `json:"observations"`
	Stale         bool                   `json:"stale"`
	Partition     trajectory.Partition   `json:"partition"`
	Partitions    []trajectory.Partition `json:"partitions"`
	Timestamp     string                 `json:"timestamp,omitempty"`
	Timestamps    []string               `json:"timestamps,omitempty"`
}

// Legacy re-renders the trajectory into the canonical legacy array.
//
// Timestamps are regenerated deterministically from the start
// timestamp rather than reusing stored values, so the exported
// document is consistent even if cached timestamps drifted. The caller
// is expected to have run Validate first; Legacy itself only needs the
// start timestamp to be parseable when present.
func Legacy(traj *trajectory.Trajectory) ([]byte, error) {
	var start time.Time
	haveStart := false
	if traj.Zero != nil && traj.Zero.StartTimestamp != "" {
		t, err := trajectory.ParseTimestamp(traj.Zero.StartTimestamp)
		if err != nil {
			return nil, err
		}
		start, haveStart = t, true
	}

	items := make([]any, 0, len(traj.Entries)+1)
	if traj.Zero != nil {
		items = append(items, legacyZero{
			IsStepZero:     true,
			Content:        traj.Zero.Content,
			StartTimestamp: traj.Zero.StartTimestamp,
			Repo:           traj.Zero.Repo,
		})
	}

	for _, e := range traj.Entries {
		switch v := e.(type) {
		case *trajectory.Step:
			item := legacyStep{
				Action:        v.Action,
				Observation:   v.Observation,
				Thought:       v.Thought,
				OriginalIndex: v.OriginalIndex,
				Stale:         v.Stale,
				Partition:     v.Partition,
			}
			if haveStart {
				item.Timestamp = trajectory.DeriveTimestamp(start, v.OriginalIndex)
			}
			items = append(items, item)

		case *trajectory.Cluster:
			item := legacyCluster{
				OriginalIndex: v.Index(),
				Clustered:     true,
				StepIDs:       v.StepIDs,
				Thought:       v.Narrative(),
				Summary:       v.Summary,
				Stale:         v.Stale,
				Partition:     v.Partition,
			}
			for _, m := range v.Steps {
				item.Actions = append(item.Actions, m.Action)
				item.Observations = append(item.Observations, m.Observation)
				item.Partitions = append(item.Partitions, m.Partition)
				if haveStart {
					item.Timestamps = append(item.Timestamps, trajectory.DeriveTimestamp(start, m.OriginalIndex))
				}
			}
			if haveStart {
				item.Timestamp = trajectory.DeriveTimestamp(start, v.Index())
			}
			items = append(items, item)
		}
	}

	return json.MarshalIndent(items, "", "  ")
}
