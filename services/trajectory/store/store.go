// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store owns the canonical mutable trajectory and every
// mutation operation over it: thought edits, partition updates,
// stale marking, clustering, unclustering, step insertion and
// deterministic retimestamping.
//
// # Invariants
//
// Every mutator is a total function over the current store plus its
// arguments: it either fully succeeds or returns an error and leaves
// the trajectory exactly as it was. After any successful mutation the
// top-level entries remain unique by originalIndex and sorted by it,
// and at most one StepZero exists at the conceptual head.
//
// # Concurrency
//
// The store has exactly one writer at a time. Mutations are
// synchronous and must not be issued concurrently; callers serialize
// access (the HTTP layer applies one operation batch per request).
package store

import (
	"fmt"
	"sort"

	"github.com/AleutianAI/TrajectoryStudio/services/trajectory"
)

// Store wraps the canonical trajectory with unsaved-changes tracking.
type Store struct {
	traj  *trajectory.Trajectory
	dirty bool
}

// New wraps a normalized trajectory. The store takes ownership; the
// caller must not mutate traj afterwards.
func New(traj *trajectory.Trajectory) *Store {
	if traj == nil {
		traj = &trajectory.Trajectory{}
	}
	traj.Sort()
	return &Store{traj: traj}
}

// Trajectory returns the canonical sequence. Callers must treat it as
// read-only; all mutation goes through store operations.
func (s *Store) Trajectory() *trajectory.Trajectory { return s.traj }

// Dirty reports whether the store holds unsaved changes.
func (s *Store) Dirty() bool { return s.dirty }

// MarkSaved clears the unsaved-changes flag after a successful export.
func (s *Store) MarkSaved() { s.dirty = false }

// =============================================================================
// Step-Level Edits
// =============================================================================

// EditThought replaces the thought text of the addressed step. The
// step may be top-level or a cluster member; a cluster itself is never
// addressed directly (its narrative is the summary).
func (s *Store) EditThought(originalIndex int, text string) error {
	step := s.traj.FindStep(originalIndex)
	if step == nil {
		return fmt.Errorf("%w: step %d", trajectory.ErrNotFound, originalIndex)
	}
	step.Thought = text
	s.dirty = true
	return nil
}

// EditSummary replaces a cluster's summary text.
func (s *Store) EditSummary(originalIndex int, text string) error {
	entry := s.traj.Find(originalIndex)
	if entry == nil {
		return fmt.Errorf("%w: entry %d", trajectory.ErrNotFound, originalIndex)
	}
	cluster, ok := entry.(*trajectory.Cluster)
	if !ok {
		return fmt.Errorf("%w: entry %d", trajectory.ErrNotCluster, originalIndex)
	}
	cluster.Summary = text
	s.dirty = true
	return nil
}

// SetPartition updates the partition of the addressed step or cluster.
// Cluster members are reachable by their own index.
func (s *Store) SetPartition(originalIndex int, p trajectory.Partition) error {
	if !p.Valid() {
		return fmt.Errorf("invalid partition %q", string(p))
	}
	if entry := s.traj.Find(originalIndex); entry != nil {
		switch v := entry.(type) {
		case *trajectory.Step:
			v.Partition = p
		case *trajectory.Cluster:
			v.Partition = p
		}
		s.dirty = true
		return nil
	}
	if step := s.traj.FindStep(originalIndex); step != nil {
		step.Partition = p
		s.dirty = true
		return nil
	}
	return fmt.Errorf("%w: entry %d", trajectory.ErrNotFound, originalIndex)
}

// MarkStale marks the addressed top-level entry as logically
// superseded. The entry stays in storage for audit and stops blocking
// cluster contiguity.
func (s *Store) MarkStale(originalIndex int) error {
	return s.setStale(originalIndex, true)
}

// Restore clears the stale flag. Restoring is corrective rather than
// new content, so it intentionally does not mark unsaved changes
// (mirrors the observed viewer behavior; see DESIGN.md).
func (s *Store) Restore(originalIndex int) error {
	return s.setStale(originalIndex, false)
}

func (s *Store) setStale(originalIndex int, stale bool) error {
	entry := s.traj.Find(originalIndex)
	if entry == nil {
		return fmt.Errorf("%w: entry %d", trajectory.ErrNotFound, originalIndex)
	}
	switch v := entry.(type) {
	case *trajectory.Step:
		v.Stale = stale
	case *trajectory.Cluster:
		v.Stale = stale
	}
	if stale {
		s.dirty = true
	}
	return nil
}

// =============================================================================
// Clustering
// =============================================================================

// Cluster groups the selected top-level entries into a single Cluster.
//
// The selection must be non-empty and contiguous over the sorted
// top-level sequence: between the first and last selected position no
// entry may sit that is neither selected nor stale. Stale gaps are
// allowed, which lets a user cluster past superseded steps. Selected
// entries that are themselves clusters are flattened into the new one.
func (s *Store) Cluster(selected []int) (*trajectory.Cluster, error) {
	if len(selected) == 0 {
		return nil, trajectory.ErrEmptySelection
	}

	chosen := make(map[int]bool, len(selected))
	for _, idx := range selected {
		if s.traj.Find(idx) == nil {
			return nil, fmt.Errorf("%w: entry %d", trajectory.ErrNotFound, idx)
		}
		chosen[idx] = true
	}

	if blocker, ok := s.blockingEntry(chosen); ok {
		return nil, fmt.Errorf("%w: blocked by step %d", trajectory.ErrNotContiguous, blocker)
	}

	// Gather member steps in ascending index order, flattening any
	// selected clusters.
	var members []*trajectory.Step
	remaining := s.traj.Entries[:0:0]
	for _, e := range s.traj.Entries {
		if !chosen[e.Index()] {
			remaining = append(remaining, e)
			continue
		}
		switch v := e.(type) {
		case *trajectory.Step:
			members = append(members, v)
		case *trajectory.Cluster:
			members = append(members, v.Steps...)
		}
	}
	sort.SliceStable(members, func(i, j int) bool {
		return members[i].OriginalIndex < members[j].OriginalIndex
	})

	ids := make([]int, len(members))
	thoughts := make([]string, 0, len(members))
	for i, m := range members {
		ids[i] = m.OriginalIndex
		if m.Thought != "" {
			thoughts = append(thoughts, m.Thought)
		}
	}

	cluster := &trajectory.Cluster{
		StepIDs:   ids,
		Steps:     members,
		Summary:   joinThoughts(thoughts),
		Timestamp: members[0].Timestamp,
	}

	s.traj.Entries = append(remaining, cluster)
	s.traj.Sort()
	s.dirty = true
	return cluster, nil
}

// blockingEntry maps the selection onto the sorted top-level sequence
// and returns the index of the first entry between the selection's
// extremes that is neither selected nor stale.
func (s *Store) blockingEntry(chosen map[int]bool) (int, bool) {
	first, last := -1, -1
	for pos, e := range s.traj.Entries {
		if chosen[e.Index()] {
			if first == -1 {
				first = pos
			}
			last = pos
		}
	}
	for pos := first + 1; pos < last; pos++ {
		e := s.traj.Entries[pos]
		if !chosen[e.Index()] && !e.IsStale() {
			return e.Index(), true
		}
	}
	return 0, false
}

// Uncluster dissolves the addressed cluster, restoring its member
// steps to the top level. Members whose index is already present
// top-level are dropped rather than duplicated.
func (s *Store) Uncluster(originalIndex int) error {
	entry := s.traj.Find(originalIndex)
	if entry == nil {
		return fmt.Errorf("%w: entry %d", trajectory.ErrNotFound, originalIndex)
	}
	cluster, ok := entry.(*trajectory.Cluster)
	if !ok {
		return fmt.Errorf("%w: entry %d", trajectory.ErrNotCluster, originalIndex)
	}

	remaining := s.traj.Entries[:0:0]
	for _, e := range s.traj.Entries {
		if e != entry {
			remaining = append(remaining, e)
		}
	}
	present := make(map[int]bool, len(remaining))
	for _, e := range remaining {
		present[e.Index()] = true
	}
	for _, member := range cluster.Steps {
		if present[member.OriginalIndex] {
			continue
		}
		present[member.OriginalIndex] = true
		remaining = append(remaining, member)
	}

	s.traj.Entries = remaining
	s.traj.Sort()
	return nil
}

// UpdateCluster upserts a cluster keyed on its immutable stepIds
// signature: an existing cluster with the same signature is replaced
// in place, otherwise the cluster is inserted.
func (s *Store) UpdateCluster(updated *trajectory.Cluster) error {
	if updated == nil || len(updated.StepIDs) == 0 {
		return trajectory.ErrEmptySelection
	}
	key := updated.Signature()
	for i, e := range s.traj.Entries {
		c, ok := e.(*trajectory.Cluster)
		if ok && c.Signature() == key {
			s.traj.Entries[i] = updated
			s.dirty = true
			return nil
		}
	}
	s.traj.Entries = append(s.traj.Entries, updated)
	s.traj.Sort()
	s.dirty = true
	return nil
}

// =============================================================================
// Insertion
// =============================================================================

// InsertStep adds a user-created step immediately after the given
// index. Every step with a higher index — top-level, cluster ids and
// cluster members alike — shifts up by one, and the new step takes
// afterIndex+1. The step is flagged as new so export can splice it
// into annotation-trace documents.
func (s *Store) InsertStep(afterIndex int, step *trajectory.Step) error {
	if step == nil {
		return fmt.Errorf("step must not be nil")
	}

	for _, existing := range s.traj.Steps() {
		if existing.OriginalIndex > afterIndex {
			existing.OriginalIndex++
		}
	}
	for _, e := range s.traj.Entries {
		if c, ok := e.(*trajectory.Cluster); ok {
			for i, id := range c.StepIDs {
				if id > afterIndex {
					c.StepIDs[i] = id + 1
				}
			}
		}
	}

	step.OriginalIndex = afterIndex + 1
	step.IsNew = true
	s.traj.Entries = append(s.traj.Entries, step)
	s.traj.Sort()
	s.dirty = true
	return nil
}

// =============================================================================
// Timestamps
// =============================================================================

// SetStartTimestamp anchors the trajectory at the given start and
// deterministically retimestamps every step (and every cluster and its
// members) at 10-second increments by originalIndex. A StepZero is
// created when the trajectory has none.
func (s *Store) SetStartTimestamp(ts string) error {
	start, err := trajectory.ParseTimestamp(ts)
	if err != nil {
		return err
	}
	if s.traj.Zero == nil {
		s.traj.Zero = &trajectory.StepZero{}
	}
	s.traj.Zero.StartTimestamp = ts

	for _, e := range s.traj.Entries {
		switch v := e.(type) {
		case *trajectory.Step:
			v.Timestamp = trajectory.DeriveTimestamp(start, v.OriginalIndex)
		case *trajectory.Cluster:
			v.Timestamp = trajectory.DeriveTimestamp(start, v.Index())
			for _, m := range v.Steps {
				m.Timestamp = trajectory.DeriveTimestamp(start, m.OriginalIndex)
			}
		}
	}
	s.dirty = true
	return nil
}

// ClearStartTimestamp removes the start anchor and every derived
// timestamp.
func (s *Store) ClearStartTimestamp() {
	if s.traj.Zero != nil {
		s.traj.Zero.StartTimestamp = ""
	}
	for _, e := range s.traj.Entries {
		switch v := e.(type) {
		case *trajectory.Step:
			v.Timestamp = ""
		case *trajectory.Cluster:
			v.Timestamp = ""
			for _, m := range v.Steps {
				m.Timestamp = ""
			}
		}
	}
	s.dirty = true
}

// joinThoughts builds the default cluster summary.
func joinThoughts(thoughts []string) string {
	out := ""
	for i, t := range thoughts {
		if i > 0 {
			out += " | "
		}
		out += t
	}
	return out
}
