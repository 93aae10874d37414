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
	"fmt"
	"sort"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/AleutianAI/TrajectoryStudio/services/trajectory"
	"github.com/AleutianAI/TrajectoryStudio/services/trajectory/format"
	"github.com/AleutianAI/TrajectoryStudio/services/trajectory/normalize"
)

// Annotation patches the trajectory's edits back onto the original
// annotation trace instead of re-rendering it, so fields this editor
// never surfaces (tool metadata, token counts, raw model output)
// survive the round trip untouched.
//
// The patch proceeds in three passes over the original array: apply
// thought/partition edits to existing entries through the index map,
// splice inserted steps in at their assigned positions, and finally
// regenerate timestamps from the start timestamp when one is set.
func Annotation(traj *trajectory.Trajectory, det *format.Detection, indexMap normalize.IndexMap) ([]byte, error) {
	parsed := gjson.ParseBytes(det.Trace)
	if !parsed.IsArray() {
		return nil, fmt.Errorf("%w: annotation trace is not an array", trajectory.ErrUnknownFormat)
	}

	entries := make([]json.RawMessage, 0, len(parsed.Array()))
	for _, item := range parsed.Array() {
		entries = append(entries, json.RawMessage(item.Raw))
	}
	offset := 0
	if len(entries) > 0 && gjson.GetBytes(entries[0], "action").String() == "begin_interaction" {
		offset = 1
	}

	steps := traj.Steps()

	// Inserted steps shift every later index up by one, so a surviving
	// original step's assigned index at load time was its current index
	// minus the number of inserted steps that precede it.
	newBefore := func(idx int) int {
		n := 0
		for _, s := range steps {
			if s.IsNew && s.OriginalIndex < idx {
				n++
			}
		}
		return n
	}

	for _, s := range steps {
		if s.IsNew {
			continue
		}
		loadIndex := s.OriginalIndex - newBefore(s.OriginalIndex)
		pos, ok := indexMap[loadIndex]
		if !ok || pos < 0 || pos >= len(entries) {
			continue
		}
		patched, err := patchEntry(entries[pos], s)
		if err != nil {
			return nil, err
		}
		entries[pos] = patched
	}

	inserted := make([]*trajectory.Step, 0)
	for _, s := range steps {
		if s.IsNew {
			inserted = append(inserted, s)
		}
	}
	sort.Slice(inserted, func(i, j int) bool {
		return inserted[i].OriginalIndex < inserted[j].OriginalIndex
	})
	for _, s := range inserted {
		entry, err := newEntry(s)
		if err != nil {
			return nil, err
		}
		pos := offset + s.OriginalIndex - 1
		if pos < offset {
			pos = offset
		}
		if pos > len(entries) {
			pos = len(entries)
		}
		entries = append(entries, nil)
		copy(entries[pos+1:], entries[pos:])
		entries[pos] = entry
	}

	if traj.Zero != nil && traj.Zero.StartTimestamp != "" {
		start, err := trajectory.ParseTimestamp(traj.Zero.StartTimestamp)
		if err != nil {
			return nil, err
		}
		if err := retime(entries, start); err != nil {
			return nil, err
		}
	}

	arr, err := joinArray(entries)
	if err != nil {
		return nil, err
	}
	if det.Format == format.AnnotationWrapper {
		return sjson.SetRawBytes(det.Document, "annotationTrace", arr)
	}
	return arr, nil
}

func patchEntry(raw json.RawMessage, s *trajectory.Step) (json.RawMessage, error) {
	out, err := sjson.SetBytes(raw, "thought", s.Thought)
	if err != nil {
		return nil, err
	}
	if s.Partition != "" {
		out, err = sjson.SetBytes(out, "partition", string(s.Partition))
		if err != nil {
			return nil, err
		}
	}
	if s.Timestamp != "" {
		out, err = sjson.SetBytes(out, "timestamp", s.Timestamp)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func newEntry(s *trajectory.Step) (json.RawMessage, error) {
	action := s.ActionType
	if action == "" {
		action = "manual_step"
	}
	out := json.RawMessage(`{}`)
	var err error
	if out, err = sjson.SetBytes(out, "action", action); err != nil {
		return nil, err
	}
	if len(s.Details) > 0 {
		if out, err = sjson.SetRawBytes(out, "details", s.Details); err != nil {
			return nil, err
		}
	} else {
		if out, err = sjson.SetRawBytes(out, "details", []byte(`{}`)); err != nil {
			return nil, err
		}
	}
	if out, err = sjson.SetBytes(out, "thought", s.Thought); err != nil {
		return nil, err
	}
	if s.Partition != "" {
		if out, err = sjson.SetBytes(out, "partition", string(s.Partition)); err != nil {
			return nil, err
		}
	}
	if s.Timestamp != "" {
		if out, err = sjson.SetBytes(out, "timestamp", s.Timestamp); err != nil {
			return nil, err
		}
	}
	if out, err = sjson.SetBytes(out, "elapsed_seconds", 0); err != nil {
		return nil, err
	}
	if out, err = sjson.SetBytes(out, "duration_seconds", 0); err != nil {
		return nil, err
	}
	return out, nil
}

// retime pins begin_interaction to the start timestamp and places the
// j-th remaining entry 10 seconds per step after it.
func retime(entries []json.RawMessage, start time.Time) error {
	j := 0
	for i, raw := range entries {
		var (
			stamp string
			err   error
		)
		if gjson.GetBytes(raw, "action").String() == "begin_interaction" {
			stamp = trajectory.FormatTimestamp(start)
		} else {
			j++
			stamp = trajectory.FormatTimestamp(start.Add(trajectory.StepInterval * time.Duration(j)))
		}
		entries[i], err = sjson.SetBytes(raw, "timestamp", stamp)
		if err != nil {
			return err
		}
	}
	return nil
}

func joinArray(entries []json.RawMessage) ([]byte, error) {
	arr := make([]json.RawMessage, len(entries))
	copy(arr, entries)
	return json.MarshalIndent(arr, "", "  ")
}
