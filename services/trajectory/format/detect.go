// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package format classifies uploaded trajectory documents into one of
// the four known wire shapes and extracts the raw step sequence.
//
// Detection is a pure function over the parsed JSON value:
//
//   - array whose first element has both action and details fields
//     -> annotation-trace array
//   - any other array -> legacy array
//   - object with an annotationTrace array field -> annotation-trace
//     wrapper (whole document retained for round-trip export)
//   - object with a trajectory array field -> legacy wrapper
//   - anything else -> trajectory.ErrUnknownFormat
package format

import (
	"fmt"

	"github.com/AleutianAI/TrajectoryStudio/services/trajectory"
	"github.com/tidwall/gjson"
)

// Format identifies a detected source wire format.
type Format string

const (
	// AnnotationArray is a bare array of annotation-trace entries.
	AnnotationArray Format = "annotationTrace-array"

	// AnnotationWrapper is an object carrying an annotationTrace array.
	AnnotationWrapper Format = "annotationTrace-wrapper"

	// LegacyArray is a bare array of legacy steps (possibly with a
	// pre-existing step zero at the head).
	LegacyArray Format = "legacy-array"

	// LegacyWrapper is an object carrying a trajectory array (and
	// usually a history array the step zero is synthesized from).
	LegacyWrapper Format = "legacy-wrapper"
)

// Annotation reports whether f belongs to the annotation-trace family.
func (f Format) Annotation() bool {
	return f == AnnotationArray || f == AnnotationWrapper
}

// Detection is the result of classifying an uploaded document.
type Detection struct {
	Format Format

	// Trace is the raw JSON of the step sequence: the annotationTrace
	// array for annotation formats, the bare array for legacy-array,
	// and the trajectory field for legacy-wrapper.
	Trace []byte

	// Document is the whole original document, retained for wrapper
	// formats so export can round-trip unknown sibling fields.
	Document []byte
}

// Detect classifies a parsed JSON document. It returns
// trajectory.ErrUnknownFormat when the document matches none of the
// known shapes; the caller must abort the load.
func Detect(raw []byte) (*Detection, error) {
	doc := gjson.ParseBytes(raw)

	switch {
	case doc.IsArray():
		first := doc.Get("0")
		if first.Exists() && first.Get("action").Exists() && first.Get("details").Exists() {
			return &Detection{Format: AnnotationArray, Trace: raw}, nil
		}
		return &Detection{Format: LegacyArray, Trace: raw}, nil

	case doc.IsObject():
		if at := doc.Get("annotationTrace"); at.IsArray() {
			return &Detection{
				Format:   AnnotationWrapper,
				Trace:    []byte(at.Raw),
				Document: raw,
			}, nil
		}
		if tr := doc.Get("trajectory"); tr.IsArray() {
			return &Detection{
				Format:   LegacyWrapper,
				Trace:    []byte(tr.Raw),
				Document: raw,
			}, nil
		}
	}

	return nil, fmt.Errorf("%w: document is neither a step array nor a known wrapper", trajectory.ErrUnknownFormat)
}
