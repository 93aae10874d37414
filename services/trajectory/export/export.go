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
	"github.com/AleutianAI/TrajectoryStudio/services/trajectory"
	"github.com/AleutianAI/TrajectoryStudio/services/trajectory/format"
	"github.com/AleutianAI/TrajectoryStudio/services/trajectory/normalize"
)

// Filenames suggested for the browser download.
const (
	LegacyFilename     = "updated_trajectory.json"
	AnnotationFilename = "updated_annotation_trace.json"
)

// Serialize validates and exports the trajectory in its source format.
// It returns the document and the suggested download filename, or a
// *ValidationError listing every violation when the trajectory is not
// yet exportable.
func Serialize(traj *trajectory.Trajectory, det *format.Detection, indexMap normalize.IndexMap) ([]byte, string, error) {
	annotation := det.Format.Annotation()
	if err := Validate(traj, annotation); err != nil {
		return nil, "", err
	}
	if annotation {
		doc, err := Annotation(traj, det, indexMap)
		if err != nil {
			return nil, "", err
		}
		return doc, AnnotationFilename, nil
	}
	doc, err := Legacy(traj)
	if err != nil {
		return nil, "", err
	}
	return doc, LegacyFilename, nil
}
