// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package trajectory defines the canonical in-memory model for
// agent-trajectory records: the Step|Cluster entry union, the StepZero
// pseudo-step that carries the original task instructions, and the
// Trajectory container that keeps top-level entries ordered by their
// stable originalIndex identity.
//
// # Identity Model
//
// Every top-level entry carries an originalIndex assigned at
// normalization time (or on insertion). The index survives clustering,
// unclustering and filtering: a Step absorbed into a Cluster keeps its
// own index inside cluster.Steps, and the Cluster itself is addressed
// by the minimum index of its members. Indexes are unique among
// top-level entries but are not required to stay dense.
//
// # Thread Safety
//
// Types in this package are plain data and are NOT safe for concurrent
// mutation. The store package enforces a single-writer discipline.
package trajectory

import (
	"encoding/json"
	"sort"

	"github.com/tidwall/gjson"
)

// =============================================================================
// Partition
// =============================================================================

// Partition classifies the role a step plays in the trajectory.
// The zero value means "unset" and serializes to JSON null.
type Partition string

const (
	// PartitionNone is the unset partition.
	PartitionNone Partition = ""

	// PartitionEnvironmentSetup marks environment preparation steps.
	PartitionEnvironmentSetup Partition = "EnvironmentSetup"

	// PartitionFailToPassTest marks fail-to-pass unit test steps.
	PartitionFailToPassTest Partition = "FailtoPassUnitTest"

	// PartitionSolution marks solution steps.
	PartitionSolution Partition = "Solution"
)

// Valid reports whether p is one of the known partition labels or unset.
func (p Partition) Valid() bool {
	switch p {
	case PartitionNone, PartitionEnvironmentSetup, PartitionFailToPassTest, PartitionSolution:
		return true
	}
	return false
}

// MarshalJSON renders the unset partition as null rather than "".
func (p Partition) MarshalJSON() ([]byte, error) {
	if p == PartitionNone {
		return []byte("null"), nil
	}
	return json.Marshal(string(p))
}

// UnmarshalJSON accepts null, a known label, or any string (foreign
// documents occasionally carry labels we do not know; they are kept
// verbatim so export can flag them).
func (p *Partition) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*p = PartitionNone
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*p = Partition(s)
	return nil
}

// =============================================================================
// Entry Union
// =============================================================================

// Entry is the Step|Cluster tagged union. It is sealed: the only
// implementations are *Step and *Cluster. Callers switch on the
// concrete type instead of sniffing a boolean flag.
type Entry interface {
	// Index returns the stable originalIndex identity of the entry.
	// For clusters this is the minimum member index.
	Index() int

	// Clustered reports whether the entry is a Cluster. This mirrors
	// the wire-format discriminator.
	Clustered() bool

	// IsStale reports whether the entry is marked logically superseded.
	IsStale() bool

	sealed()
}

// Step is one agent turn: a thought/action/observation triple with a
// stable index and optional annotation-trace metadata.
type Step struct {
	OriginalIndex int
	Thought       string
	Action        string
	Observation   string
	Partition     Partition
	Stale         bool

	// Timestamp is an ISO-8601 string; empty means absent.
	Timestamp string

	// ActionType preserves the source action kind verbatim for
	// annotation-trace documents (e.g. "execute_terminal_command").
	ActionType string

	// Details preserves the structured action parameters verbatim.
	Details json.RawMessage

	// IsNew marks a step created in-session via insert. Export uses it
	// to reconstruct format-specific fields for spliced entries.
	IsNew bool

	// Reasoning is attached by the semantic filter for display. It is
	// presentation state and never exported.
	Reasoning string
}

func (s *Step) Index() int      { return s.OriginalIndex }
func (s *Step) Clustered() bool { return false }
func (s *Step) IsStale() bool   { return s.Stale }
func (s *Step) sealed()         {}

// Cluster is an ordered grouping of one or more Steps presented and
// exported as a single unit.
type Cluster struct {
	// StepIDs holds the member originalIndex values, ascending.
	StepIDs []int

	// Steps holds the materialized members, sorted by OriginalIndex.
	Steps []*Step

	// Summary is the synthesized (or human-edited) description.
	Summary string

	// Thought is an optional cluster-level narrative; export uses
	// Thought when set, falling back to Summary.
	Thought string

	Partition Partition
	Stale     bool

	// Timestamp is the timestamp of the member with the minimum index.
	Timestamp string

	Reasoning string
}

// Index returns the minimum member index, the cluster's identity.
func (c *Cluster) Index() int {
	if len(c.StepIDs) == 0 {
		return 0
	}
	return c.StepIDs[0]
}

func (c *Cluster) Clustered() bool { return true }
func (c *Cluster) IsStale() bool   { return c.Stale }
func (c *Cluster) sealed()         {}

// Narrative returns the cluster's thought when set, else its summary.
func (c *Cluster) Narrative() string {
	if c.Thought != "" {
		return c.Thought
	}
	return c.Summary
}

// Signature returns the immutable stepIds key used to address a
// cluster across field updates.
func (c *Cluster) Signature() string {
	return intsKey(c.StepIDs)
}

// =============================================================================
// StepZero
// =============================================================================

// StepZero is the distinguished pseudo-step holding the original task
// instructions. It sits conceptually before step 1 and anchors
// relative-timestamp generation via StartTimestamp.
type StepZero struct {
	// Content preserves the instruction payload verbatim; legacy
	// documents sometimes carry structured content ([{text: ...}]).
	Content json.RawMessage

	// StartTimestamp is an ISO-8601 string; empty means absent.
	StartTimestamp string

	// Repo is "owner/name", parsed from the uploaded filename when it
	// matches the <owner>__<name>-<issue>.<ext> pattern.
	Repo string
}

// Text extracts the plain instruction text from Content, accepting a
// bare string, an object with a text field, or an array of such
// objects (first element wins).
func (z *StepZero) Text() string {
	return TextOf(z.Content)
}

// TextOf extracts display text from a free-form JSON value: a string is
// returned as-is, an object yields its "text" field, and an array
// yields the first element's "text" field.
func TextOf(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	v := gjson.ParseBytes(raw)
	switch {
	case v.Type == gjson.String:
		return v.String()
	case v.IsObject():
		return v.Get("text").String()
	case v.IsArray():
		return v.Get("0.text").String()
	}
	return ""
}

// =============================================================================
// Trajectory
// =============================================================================

// Trajectory is the canonical sequence: an optional StepZero followed
// by top-level entries ordered by originalIndex.
type Trajectory struct {
	Zero    *StepZero
	Entries []Entry
}

// Sort orders Entries by originalIndex in place.
func (t *Trajectory) Sort() {
	sort.SliceStable(t.Entries, func(i, j int) bool {
		return t.Entries[i].Index() < t.Entries[j].Index()
	})
}

// Find returns the top-level entry with the given originalIndex, or
// nil if none exists.
func (t *Trajectory) Find(originalIndex int) Entry {
	for _, e := range t.Entries {
		if e.Index() == originalIndex {
			return e
		}
	}
	return nil
}

// FindStep returns the Step with the given originalIndex, searching
// top-level steps first and then cluster members.
func (t *Trajectory) FindStep(originalIndex int) *Step {
	for _, e := range t.Entries {
		if s, ok := e.(*Step); ok && s.OriginalIndex == originalIndex {
			return s
		}
	}
	for _, e := range t.Entries {
		if c, ok := e.(*Cluster); ok {
			for _, s := range c.Steps {
				if s.OriginalIndex == originalIndex {
					return s
				}
			}
		}
	}
	return nil
}

// Steps returns every Step in the trajectory, top-level and cluster
// members alike, sorted by originalIndex.
func (t *Trajectory) Steps() []*Step {
	var out []*Step
	for _, e := range t.Entries {
		switch v := e.(type) {
		case *Step:
			out = append(out, v)
		case *Cluster:
			out = append(out, v.Steps...)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].OriginalIndex < out[j].OriginalIndex
	})
	return out
}

// MaxIndex returns the largest originalIndex among all steps, cluster
// members included, or 0 for an empty trajectory.
func (t *Trajectory) MaxIndex() int {
	max := 0
	for _, s := range t.Steps() {
		if s.OriginalIndex > max {
			max = s.OriginalIndex
		}
	}
	return max
}
