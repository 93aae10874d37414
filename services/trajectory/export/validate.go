// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package export validates a trajectory against format-specific rules
// and re-renders it into the originally detected wire format. Legacy
// sources get a full re-render; annotation-trace sources get a
// round-trip patch applied onto the original document.
package export

import (
	"fmt"

	"github.com/AleutianAI/TrajectoryStudio/services/trajectory"
)

// ValidationError carries the itemized, human-readable list of export
// rule violations. It is non-fatal: the store is untouched and the
// caller corrects the flagged steps and retries.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("export validation failed with %d problem(s)", len(e.Problems))
}

// Validate checks the trajectory against the rules of the target
// format family and returns a *ValidationError listing every violation
// found, or nil when the trajectory is exportable.
//
// The legacy pipeline is strict: a start timestamp must be set, every
// plain step needs a partition and a non-empty thought, and every
// cluster needs a partition, a narrative (thought or summary) and a
// partition on each member. The annotation-trace pipeline relaxes the
// thought and start-timestamp requirements but keeps every partition
// requirement.
func Validate(traj *trajectory.Trajectory, annotation bool) error {
	var problems []string

	if !annotation {
		if traj.Zero == nil || traj.Zero.StartTimestamp == "" {
			problems = append(problems, "start timestamp is not set")
		}
	}

	for _, e := range traj.Entries {
		switch v := e.(type) {
		case *trajectory.Step:
			problems = append(problems, stepProblems(v, annotation)...)
		case *trajectory.Cluster:
			problems = append(problems, clusterProblems(v, annotation)...)
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

func stepProblems(s *trajectory.Step, annotation bool) []string {
	var problems []string
	if s.Partition == trajectory.PartitionNone {
		problems = append(problems, fmt.Sprintf("step %d: partition is required", s.OriginalIndex))
	} else if !s.Partition.Valid() {
		problems = append(problems, fmt.Sprintf("step %d: unknown partition %q", s.OriginalIndex, string(s.Partition)))
	}
	if !annotation && s.Thought == "" {
		problems = append(problems, fmt.Sprintf("step %d: thought is empty", s.OriginalIndex))
	}
	return problems
}

func clusterProblems(c *trajectory.Cluster, annotation bool) []string {
	var problems []string
	if c.Partition == trajectory.PartitionNone {
		problems = append(problems, fmt.Sprintf("cluster %d: partition is required", c.Index()))
	} else if !c.Partition.Valid() {
		problems = append(problems, fmt.Sprintf("cluster %d: unknown partition %q", c.Index(), string(c.Partition)))
	}
	if !annotation && c.Narrative() == "" {
		problems = append(problems, fmt.Sprintf("cluster %d: summary or thought is required", c.Index()))
	}
	for _, m := range c.Steps {
		if m.Partition == trajectory.PartitionNone {
			problems = append(problems, fmt.Sprintf("cluster %d, step %d: partition is required", c.Index(), m.OriginalIndex))
		}
	}
	return problems
}
