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

import "errors"

// Sentinel errors for trajectory reconciliation. Every store mutator
// either fully succeeds or returns one of these and leaves the
// trajectory untouched.
var (
	// ErrUnknownFormat indicates an uploaded document matched none of
	// the known wire shapes.
	ErrUnknownFormat = errors.New("unknown trajectory format")

	// ErrEmptySelection indicates a cluster operation with no steps selected.
	ErrEmptySelection = errors.New("no steps selected")

	// ErrNotContiguous indicates the selected steps are blocked by an
	// unselected, non-stale entry between the first and last selection.
	ErrNotContiguous = errors.New("selection is not contiguous")

	// ErrNotFound indicates no top-level entry carries the requested index.
	ErrNotFound = errors.New("entry not found")

	// ErrNotCluster indicates the addressed entry is a plain step.
	ErrNotCluster = errors.New("entry is not a cluster")

	// ErrBadTimestamp indicates a timestamp string failed ISO-8601 parsing.
	ErrBadTimestamp = errors.New("invalid timestamp")
)
