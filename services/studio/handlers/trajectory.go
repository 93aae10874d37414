// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/TrajectoryStudio/services/studio/datatypes"
	"github.com/AleutianAI/TrajectoryStudio/services/studio/observability"
	"github.com/AleutianAI/TrajectoryStudio/services/trajectory"
	"github.com/AleutianAI/TrajectoryStudio/services/trajectory/convert"
	"github.com/AleutianAI/TrajectoryStudio/services/trajectory/export"
	"github.com/AleutianAI/TrajectoryStudio/services/trajectory/filter"
	"github.com/AleutianAI/TrajectoryStudio/services/trajectory/format"
	"github.com/AleutianAI/TrajectoryStudio/services/trajectory/normalize"
	"github.com/AleutianAI/TrajectoryStudio/services/trajectory/store"
)

// HandleLoad detects and normalizes an uploaded document and returns
// the canonical trajectory plus the metadata export needs later.
func HandleLoad(metrics *observability.StudioMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.LoadRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := req.Validate(); err != nil {
			metrics.RequestsTotal.WithLabelValues("load", "error").Inc()
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		det, err := format.Detect([]byte(req.Content))
		if err != nil {
			metrics.RequestsTotal.WithLabelValues("load", "error").Inc()
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		res, err := normalize.Normalize(det, req.Filename)
		if err != nil {
			metrics.RequestsTotal.WithLabelValues("load", "error").Inc()
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}

		metrics.RequestsTotal.WithLabelValues("load", "success").Inc()
		c.JSON(http.StatusOK, gin.H{
			"trajectory": res.Trajectory,
			"format":     det.Format,
			"indexMap":   res.IndexMap,
		})
	}
}

// HandleExport validates and serializes an edited trajectory back
// into its source format. Validation failures return the itemized
// problem list with 422 so the client can surface every violation at
// once.
func HandleExport(metrics *observability.StudioMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.ExportRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := req.Validate(); err != nil {
			metrics.RequestsTotal.WithLabelValues("export", "error").Inc()
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		var traj trajectory.Trajectory
		if err := json.Unmarshal(req.Trajectory, &traj); err != nil {
			metrics.RequestsTotal.WithLabelValues("export", "error").Inc()
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid trajectory"})
			return
		}

		det, err := format.Detect([]byte(req.Content))
		if err != nil {
			metrics.RequestsTotal.WithLabelValues("export", "error").Inc()
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}

		indexMap := normalize.IndexMap(req.IndexMap)
		if len(indexMap) == 0 && det.Format.Annotation() {
			// The client did not keep the map from load time; rebuild it.
			res, err := normalize.Normalize(det, "")
			if err != nil {
				metrics.RequestsTotal.WithLabelValues("export", "error").Inc()
				c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
				return
			}
			indexMap = res.IndexMap
		}

		family := "legacy"
		if det.Format.Annotation() {
			family = "annotation"
		}

		doc, filename, err := export.Serialize(&traj, det, indexMap)
		if err != nil {
			var verr *export.ValidationError
			if errors.As(err, &verr) {
				metrics.ExportsTotal.WithLabelValues(family, "validation_error").Inc()
				c.JSON(http.StatusUnprocessableEntity, gin.H{"errors": verr.Problems})
				return
			}
			slog.Error("Export failed", "error", err)
			metrics.ExportsTotal.WithLabelValues(family, "error").Inc()
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		metrics.ExportsTotal.WithLabelValues(family, "success").Inc()
		metrics.RequestsTotal.WithLabelValues("export", "success").Inc()
		c.JSON(http.StatusOK, gin.H{
			"document": json.RawMessage(doc),
			"filename": filename,
		})
	}
}

// HandleFilter computes the visible subset for a keyword query plus an
// optional semantic filter.
func HandleFilter(metrics *observability.StudioMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.FilterRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := req.Validate(); err != nil {
			metrics.RequestsTotal.WithLabelValues("filter", "error").Inc()
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		var traj trajectory.Trajectory
		if err := json.Unmarshal(req.Trajectory, &traj); err != nil {
			metrics.RequestsTotal.WithLabelValues("filter", "error").Inc()
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid trajectory"})
			return
		}

		semantic, err := parseSemantic(req.Semantic)
		if err != nil {
			metrics.RequestsTotal.WithLabelValues("filter", "error").Inc()
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		res := filter.Visible(&traj, req.Keyword, semantic)
		visible := trajectory.Trajectory{Zero: res.Zero, Entries: res.Entries}
		metrics.RequestsTotal.WithLabelValues("filter", "success").Inc()
		c.JSON(http.StatusOK, gin.H{"trajectory": &visible})
	}
}

// parseSemantic accepts either a selection list or a materialized
// cluster list, discriminated by "clustered" on the first element.
func parseSemantic(raw json.RawMessage) (*filter.Semantic, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var probe []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, errors.New("semantic filter must be an array")
	}
	if len(probe) == 0 {
		return &filter.Semantic{}, nil
	}
	if _, ok := probe[0]["clustered"]; ok {
		var clusters []*trajectory.Cluster
		if err := json.Unmarshal(raw, &clusters); err != nil {
			return nil, errors.New("invalid cluster filter")
		}
		return &filter.Semantic{Clusters: clusters}, nil
	}
	var selections []filter.Selection
	if err := json.Unmarshal(raw, &selections); err != nil {
		return nil, errors.New("invalid semantic filter")
	}
	return &filter.Semantic{Selections: selections}, nil
}

// opArgs is the union of arguments across trajectory operations.
type opArgs struct {
	OriginalIndex int                  `json:"originalIndex"`
	Text          string               `json:"text"`
	Partition     trajectory.Partition `json:"partition"`
	Selected      []int                `json:"selected"`
	AfterIndex    int                  `json:"afterIndex"`
	Step          *trajectory.Step     `json:"step"`
	Cluster       *trajectory.Cluster  `json:"cluster"`
	Timestamp     string               `json:"timestamp"`
}

// HandleOp applies one named mutation to a trajectory and returns the
// mutated document along with whether the operation marked unsaved
// changes.
func HandleOp(metrics *observability.StudioMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.OpRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := req.Validate(); err != nil {
			metrics.RequestsTotal.WithLabelValues("op", "error").Inc()
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		var traj trajectory.Trajectory
		if err := json.Unmarshal(req.Trajectory, &traj); err != nil {
			metrics.RequestsTotal.WithLabelValues("op", "error").Inc()
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid trajectory"})
			return
		}
		var args opArgs
		if len(req.Args) > 0 {
			if err := json.Unmarshal(req.Args, &args); err != nil {
				metrics.RequestsTotal.WithLabelValues("op", "error").Inc()
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid op args"})
				return
			}
		}

		st := store.New(&traj)
		var err error
		switch req.Op {
		case "edit_thought":
			err = st.EditThought(args.OriginalIndex, args.Text)
		case "edit_summary":
			err = st.EditSummary(args.OriginalIndex, args.Text)
		case "set_partition":
			err = st.SetPartition(args.OriginalIndex, args.Partition)
		case "mark_stale":
			err = st.MarkStale(args.OriginalIndex)
		case "restore":
			err = st.Restore(args.OriginalIndex)
		case "cluster":
			_, err = st.Cluster(args.Selected)
		case "uncluster":
			err = st.Uncluster(args.OriginalIndex)
		case "update_cluster":
			if args.Cluster == nil {
				err = errors.New("cluster is required")
			} else {
				err = st.UpdateCluster(args.Cluster)
			}
		case "insert_step":
			if args.Step == nil {
				err = errors.New("step is required")
			} else {
				err = st.InsertStep(args.AfterIndex, args.Step)
			}
		case "set_start_timestamp":
			err = st.SetStartTimestamp(args.Timestamp)
		case "clear_start_timestamp":
			st.ClearStartTimestamp()
		default:
			metrics.RequestsTotal.WithLabelValues("op", "error").Inc()
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown op: " + req.Op})
			return
		}
		if err != nil {
			metrics.RequestsTotal.WithLabelValues("op", "error").Inc()
			status := http.StatusUnprocessableEntity
			if errors.Is(err, trajectory.ErrNotFound) {
				status = http.StatusNotFound
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}

		metrics.RequestsTotal.WithLabelValues("op", "success").Inc()
		c.JSON(http.StatusOK, gin.H{
			"trajectory": st.Trajectory(),
			"dirty":      st.Dirty(),
		})
	}
}

// HandleConvert lowers a trajectory into the structured interaction
// format used by downstream pipelines.
func HandleConvert(metrics *observability.StudioMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Trajectory json.RawMessage `json:"trajectory"`
		}
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		var traj trajectory.Trajectory
		if err := json.Unmarshal(req.Trajectory, &traj); err != nil {
			metrics.RequestsTotal.WithLabelValues("convert", "error").Inc()
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid trajectory"})
			return
		}

		entries := convert.Convert(&traj)
		metrics.RequestsTotal.WithLabelValues("convert", "success").Inc()
		c.JSON(http.StatusOK, gin.H{"entries": entries})
	}
}
