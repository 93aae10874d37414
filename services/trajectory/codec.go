// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package trajectory

import (
	"encoding/json"
	"fmt"
)

// Canonical JSON codec for the API and the persisted session cache.
// The canonical shape is a superset of the legacy wire format: the
// familiar step/cluster fields plus the annotation-trace extras
// (actionType, details, isNewStep) so nothing is lost between the
// service and its clients. The strict legacy export render lives in
// the export package.

type stepWire struct {
	IsStepZero    bool            `json:"isStepZero,omitempty"`
	OriginalIndex int             `json:"originalIndex"`
	Thought       string          `json:"thought"`
	Action        string          `json:"action"`
	Observation   string          `json:"observation"`
	Partition     Partition       `json:"partition"`
	Stale         bool            `json:"stale"`
	Clustered     bool            `json:"clustered"`
	Timestamp     string          `json:"timestamp,omitempty"`
	ActionType    string          `json:"actionType,omitempty"`
	Details       json.RawMessage `json:"details,omitempty"`
	IsNew         bool            `json:"isNewStep,omitempty"`
	Reasoning     string          `json:"reasoning,omitempty"`
}

type clusterWire struct {
	OriginalIndex int        `json:"originalIndex"`
	Clustered     bool       `json:"clustered"`
	StepIDs       []int      `json:"stepIds"`
	Steps         []stepWire `json:"steps"`
	Summary       string     `json:"summary"`
	Thought       string     `json:"thought,omitempty"`
	Partition     Partition  `json:"partition"`
	Stale         bool       `json:"stale"`
	Timestamp     string     `json:"timestamp,omitempty"`
	Reasoning     string     `json:"reasoning,omitempty"`
}

type zeroWire struct {
	IsStepZero     bool            `json:"isStepZero"`
	Content        json.RawMessage `json:"content"`
	StartTimestamp string          `json:"startTimestamp,omitempty"`
	Repo           string          `json:"repo,omitempty"`
}

func stepToWire(s *Step) stepWire {
	return stepWire{
		OriginalIndex: s.OriginalIndex,
		Thought:       s.Thought,
		Action:        s.Action,
		Observation:   s.Observation,
		Partition:     s.Partition,
		Stale:         s.Stale,
		Timestamp:     s.Timestamp,
		ActionType:    s.ActionType,
		Details:       s.Details,
		IsNew:         s.IsNew,
		Reasoning:     s.Reasoning,
	}
}

func stepFromWire(w stepWire) *Step {
	return &Step{
		OriginalIndex: w.OriginalIndex,
		Thought:       w.Thought,
		Action:        w.Action,
		Observation:   w.Observation,
		Partition:     w.Partition,
		Stale:         w.Stale,
		Timestamp:     w.Timestamp,
		ActionType:    w.ActionType,
		Details:       w.Details,
		IsNew:         w.IsNew,
		Reasoning:     w.Reasoning,
	}
}

// MarshalJSON renders a Step in the canonical shape.
func (s *Step) MarshalJSON() ([]byte, error) {
	return json.Marshal(stepToWire(s))
}

// UnmarshalJSON decodes a canonical step.
func (s *Step) UnmarshalJSON(data []byte) error {
	var w stepWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*s = *stepFromWire(w)
	return nil
}

// MarshalJSON renders a Cluster in the canonical shape, with members
// materialized under steps.
func (c *Cluster) MarshalJSON() ([]byte, error) {
	steps := make([]stepWire, len(c.Steps))
	for i, s := range c.Steps {
		steps[i] = stepToWire(s)
	}
	return json.Marshal(clusterWire{
		OriginalIndex: c.Index(),
		Clustered:     true,
		StepIDs:       c.StepIDs,
		Steps:         steps,
		Summary:       c.Summary,
		Thought:       c.Thought,
		Partition:     c.Partition,
		Stale:         c.Stale,
		Timestamp:     c.Timestamp,
		Reasoning:     c.Reasoning,
	})
}

// UnmarshalJSON decodes a canonical cluster.
func (c *Cluster) UnmarshalJSON(data []byte) error {
	var w clusterWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	steps := make([]*Step, len(w.Steps))
	for i, sw := range w.Steps {
		steps[i] = stepFromWire(sw)
	}
	*c = Cluster{
		StepIDs:   w.StepIDs,
		Steps:     steps,
		Summary:   w.Summary,
		Thought:   w.Thought,
		Partition: w.Partition,
		Stale:     w.Stale,
		Timestamp: w.Timestamp,
		Reasoning: w.Reasoning,
	}
	return nil
}

// MarshalJSON renders the trajectory as a flat JSON array: the
// StepZero wire object first when present, then every entry in order.
func (t *Trajectory) MarshalJSON() ([]byte, error) {
	items := make([]any, 0, len(t.Entries)+1)
	if t.Zero != nil {
		items = append(items, zeroWire{
			IsStepZero:     true,
			Content:        t.Zero.Content,
			StartTimestamp: t.Zero.StartTimestamp,
			Repo:           t.Zero.Repo,
		})
	}
	for _, e := range t.Entries {
		items = append(items, e)
	}
	return json.Marshal(items)
}

// UnmarshalJSON decodes a canonical trajectory array, dispatching each
// element on its isStepZero/clustered discriminators.
func (t *Trajectory) UnmarshalJSON(data []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return fmt.Errorf("trajectory must be a JSON array: %w", err)
	}
	*t = Trajectory{}
	for i, raw := range raws {
		var probe struct {
			IsStepZero bool `json:"isStepZero"`
			Clustered  bool `json:"clustered"`
		}
		if err := json.Unmarshal(raw, &probe); err != nil {
			return fmt.Errorf("entry %d: %w", i, err)
		}
		switch {
		case probe.IsStepZero:
			var w zeroWire
			if err := json.Unmarshal(raw, &w); err != nil {
				return fmt.Errorf("entry %d: %w", i, err)
			}
			t.Zero = &StepZero{
				Content:        w.Content,
				StartTimestamp: w.StartTimestamp,
				Repo:           w.Repo,
			}
		case probe.Clustered:
			c := &Cluster{}
			if err := json.Unmarshal(raw, c); err != nil {
				return fmt.Errorf("entry %d: %w", i, err)
			}
			t.Entries = append(t.Entries, c)
		default:
			s := &Step{}
			if err := json.Unmarshal(raw, s); err != nil {
				return fmt.Errorf("entry %d: %w", i, err)
			}
			t.Entries = append(t.Entries, s)
		}
	}
	t.Sort()
	return nil
}
