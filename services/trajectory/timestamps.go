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
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimestampLayout is the ISO-8601 layout used on the wire:
// millisecond precision, UTC, trailing Z.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// StepInterval is the deterministic spacing between derived step
// timestamps: step N sits StepInterval x (N-1) after the start.
const StepInterval = 10 * time.Second

// ParseTimestamp parses an ISO-8601 timestamp string.
func ParseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrBadTimestamp, s)
	}
	return t, nil
}

// FormatTimestamp renders t in the wire layout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// DeriveTimestamp returns the deterministic timestamp for a step with
// the given originalIndex relative to the start timestamp: start plus
// 10 seconds per index above 1.
func DeriveTimestamp(start time.Time, originalIndex int) string {
	return FormatTimestamp(start.Add(StepInterval * time.Duration(originalIndex-1)))
}

// intsKey joins indexes into a composite key ("3,4,5").
func intsKey(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ",")
}
