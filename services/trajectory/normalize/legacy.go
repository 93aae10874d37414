// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package normalize

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/AleutianAI/TrajectoryStudio/services/trajectory"
	"github.com/AleutianAI/TrajectoryStudio/services/trajectory/format"
	"github.com/tidwall/gjson"
)

// repoFilePattern extracts owner and repo from uploaded filenames of
// the form <owner>__<name>-<issueId>.<ext>.
var repoFilePattern = regexp.MustCompile(`^(.+?)__(.+?)-(\d+)\.`)

// Legacy converts a legacy-format document (bare array or
// {history, trajectory} wrapper) into the canonical model.
//
// Wrapper documents with a history of length > 1 get a StepZero
// synthesized from history[1].content, with the repo parsed from the
// uploaded filename. A bare array whose first element is a
// pre-existing step zero reuses it verbatim, start timestamp included.
func Legacy(det *format.Detection, filename string) (*trajectory.Trajectory, error) {
	traj := &trajectory.Trajectory{}

	if det.Format == format.LegacyWrapper {
		history := gjson.GetBytes(det.Document, "history")
		if items := history.Array(); len(items) > 1 {
			traj.Zero = &trajectory.StepZero{
				Content: json.RawMessage(items[1].Get("content").Raw),
				Repo:    RepoFromFilename(filename),
			}
		}
	}

	items := gjson.ParseBytes(det.Trace).Array()
	if len(items) > 0 && items[0].Get("isStepZero").Bool() {
		zero := items[0]
		traj.Zero = &trajectory.StepZero{
			Content:        json.RawMessage(zero.Get("content").Raw),
			StartTimestamp: zero.Get("startTimestamp").String(),
			Repo:           zero.Get("repo").String(),
		}
		items = items[1:]
	}

	for pos, item := range items {
		if isClusterElement(item) {
			cluster, err := clusterFromLegacy(item)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", pos, err)
			}
			traj.Entries = append(traj.Entries, cluster)
			continue
		}
		traj.Entries = append(traj.Entries, stepFromLegacy(item, pos+1))
	}

	traj.Sort()
	return traj, nil
}

// RepoFromFilename parses "owner/name" out of an uploaded filename, or
// returns "" when the filename does not match the pattern.
func RepoFromFilename(filename string) string {
	m := repoFilePattern.FindStringSubmatch(filepath.Base(filename))
	if m == nil {
		return ""
	}
	return m[1] + "/" + m[2]
}

// isClusterElement applies the legacy cluster discriminator:
// clustered==true plus a stepIds array plus either materialized steps
// or the parallel actions/observations arrays.
func isClusterElement(item gjson.Result) bool {
	if !item.Get("clustered").Bool() {
		return false
	}
	if !item.Get("stepIds").IsArray() {
		return false
	}
	if item.Get("steps").IsArray() {
		return true
	}
	return item.Get("actions").IsArray() && item.Get("observations").IsArray()
}

func stepFromLegacy(item gjson.Result, defaultIndex int) *trajectory.Step {
	idx := defaultIndex
	if v := item.Get("originalIndex"); v.Exists() {
		idx = int(v.Int())
	}
	step := &trajectory.Step{
		OriginalIndex: idx,
		Thought:       trajectory.TextOf(json.RawMessage(item.Get("thought").Raw)),
		Action:        trajectory.TextOf(json.RawMessage(item.Get("action").Raw)),
		Observation:   trajectory.TextOf(json.RawMessage(item.Get("observation").Raw)),
		Partition:     trajectory.Partition(item.Get("partition").String()),
		Stale:         item.Get("stale").Bool(),
		Timestamp:     item.Get("timestamp").String(),
		ActionType:    item.Get("actionType").String(),
		IsNew:         item.Get("isNewStep").Bool(),
	}
	if details := item.Get("details"); details.Exists() {
		step.Details = json.RawMessage(details.Raw)
	}
	return step
}

func clusterFromLegacy(item gjson.Result) (*trajectory.Cluster, error) {
	idResults := item.Get("stepIds").Array()
	if len(idResults) == 0 {
		return nil, fmt.Errorf("cluster has empty stepIds")
	}
	stepIDs := make([]int, len(idResults))
	for i, r := range idResults {
		stepIDs[i] = int(r.Int())
	}
	sort.Ints(stepIDs)

	cluster := &trajectory.Cluster{
		StepIDs:   stepIDs,
		Summary:   item.Get("summary").String(),
		Thought:   item.Get("thought").String(),
		Partition: trajectory.Partition(item.Get("partition").String()),
		Stale:     item.Get("stale").Bool(),
		Timestamp: item.Get("timestamp").String(),
	}
	if cluster.Summary == "" {
		cluster.Summary = cluster.Thought
	}

	if stepItems := item.Get("steps").Array(); len(stepItems) > 0 {
		for _, si := range stepItems {
			cluster.Steps = append(cluster.Steps, stepFromLegacy(si, 0))
		}
	} else {
		// Compatibility fallback: reconstruct members from the
		// parallel actions/observations/partitions arrays.
		actions := item.Get("actions").Array()
		observations := item.Get("observations").Array()
		partitions := item.Get("partitions").Array()
		timestamps := item.Get("timestamps").Array()
		for i, id := range stepIDs {
			step := &trajectory.Step{OriginalIndex: id}
			if i < len(actions) {
				step.Action = actions[i].String()
			}
			if i < len(observations) {
				step.Observation = observations[i].String()
			}
			if i < len(partitions) {
				step.Partition = trajectory.Partition(partitions[i].String())
			}
			if i < len(timestamps) {
				step.Timestamp = timestamps[i].String()
			}
			cluster.Steps = append(cluster.Steps, step)
		}
	}

	sort.SliceStable(cluster.Steps, func(i, j int) bool {
		return cluster.Steps[i].OriginalIndex < cluster.Steps[j].OriginalIndex
	})
	if cluster.Timestamp == "" && len(cluster.Steps) > 0 {
		cluster.Timestamp = cluster.Steps[0].Timestamp
	}
	return cluster, nil
}

// Result bundles a normalized trajectory with the annotation-trace
// index map (nil for legacy sources).
type Result struct {
	Trajectory *trajectory.Trajectory
	IndexMap   IndexMap
}

// Normalize dispatches on the detected format family.
func Normalize(det *format.Detection, filename string) (*Result, error) {
	if det.Format.Annotation() {
		traj, indexMap, err := Annotation(det.Trace)
		if err != nil {
			return nil, err
		}
		return &Result{Trajectory: traj, IndexMap: indexMap}, nil
	}
	traj, err := Legacy(det, filename)
	if err != nil {
		return nil, err
	}
	return &Result{Trajectory: traj}, nil
}
