// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// Tests for keyword and semantic filtering

package filter

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/TrajectoryStudio/services/trajectory"
)

func sampleTrajectory() *trajectory.Trajectory {
	return &trajectory.Trajectory{
		Zero: &trajectory.StepZero{Content: json.RawMessage(`"fix the widget renderer"`)},
		Entries: []trajectory.Entry{
			&trajectory.Step{OriginalIndex: 1, Thought: "inspect repo", Action: "ls", Observation: "main.go widget.go"},
			&trajectory.Step{OriginalIndex: 2, Thought: "read widget", Action: "cat widget.go", Observation: "package widget"},
			&trajectory.Cluster{
				StepIDs: []int{3, 4},
				Steps: []*trajectory.Step{
					{OriginalIndex: 3, Thought: "run tests", Action: "go test"},
					{OriginalIndex: 4, Thought: "fix failure", Action: "edit"},
				},
				Summary: "test and fix cycle",
			},
			&trajectory.Step{OriginalIndex: 5, Thought: "final check", Action: "go test ./...", Observation: "ok"},
		},
	}
}

func visibleIndexes(res Result) []int {
	out := make([]int, len(res.Entries))
	for i, e := range res.Entries {
		out[i] = e.Index()
	}
	return out
}

func TestVisibleNoFilters(t *testing.T) {
	traj := sampleTrajectory()
	res := Visible(traj, "", nil)
	assert.NotNil(t, res.Zero)
	assert.Equal(t, []int{1, 2, 3, 5}, visibleIndexes(res))
}

func TestKeywordAnyTermMatches(t *testing.T) {
	traj := sampleTrajectory()

	// Terms are OR'd: an entry matches when any term is a substring.
	res := Visible(traj, "widget inspect", nil)
	assert.Equal(t, []int{1, 2}, visibleIndexes(res))
	assert.NotNil(t, res.Zero, "step zero text mentions widget")

	res = Visible(traj, "WIDGET", nil)
	assert.Equal(t, []int{1, 2}, visibleIndexes(res), "matching is case-insensitive")
}

func TestKeywordExcludesStepZero(t *testing.T) {
	traj := sampleTrajectory()
	res := Visible(traj, "final", nil)
	assert.Nil(t, res.Zero)
	assert.Equal(t, []int{5}, visibleIndexes(res))
}

func TestKeywordSearchesClusterSurfacedFieldsOnly(t *testing.T) {
	traj := sampleTrajectory()

	res := Visible(traj, "cycle", nil)
	assert.Equal(t, []int{3}, visibleIndexes(res), "summary text matches")

	// Member-step text does not participate in keyword matching.
	res = Visible(traj, "failure", nil)
	assert.Empty(t, visibleIndexes(res))
}

func TestSemanticSelectionAttachesReasoning(t *testing.T) {
	traj := sampleTrajectory()
	sem := &Semantic{Selections: []Selection{
		{OriginalIndex: 2, Reasoning: "touches the widget"},
		{OriginalIndex: 5, Reasoning: "verifies the fix"},
	}}

	res := Visible(traj, "", sem)
	assert.Equal(t, []int{2, 5}, visibleIndexes(res))

	step := res.Entries[0].(*trajectory.Step)
	assert.Equal(t, "touches the widget", step.Reasoning)
}

func TestKeywordAndSemanticIntersect(t *testing.T) {
	traj := sampleTrajectory()
	sem := &Semantic{Selections: []Selection{
		{OriginalIndex: 2, Reasoning: "r2"},
		{OriginalIndex: 5, Reasoning: "r5"},
	}}

	res := Visible(traj, "widget", sem)
	assert.Equal(t, []int{2}, visibleIndexes(res))
}

func TestEmptySemanticSelectionHidesEverything(t *testing.T) {
	traj := sampleTrajectory()
	sem := &Semantic{Selections: []Selection{}}

	res := Visible(traj, "", sem)
	assert.Empty(t, res.Entries)
}

func TestClusterOverview(t *testing.T) {
	traj := sampleTrajectory()
	cluster := traj.Entries[2].(*trajectory.Cluster)
	sem := &Semantic{Clusters: []*trajectory.Cluster{cluster}}

	res := Visible(traj, "", sem)
	require.Len(t, res.Entries, 1)
	assert.Same(t, trajectory.Entry(cluster), res.Entries[0])

	// An active keyword still filters the overview.
	res = Visible(traj, "nomatch", sem)
	assert.Empty(t, res.Entries)
}

func TestVisibleDoesNotMutateOrder(t *testing.T) {
	traj := sampleTrajectory()
	sem := &Semantic{Selections: []Selection{
		{OriginalIndex: 5, Reasoning: "last"},
		{OriginalIndex: 1, Reasoning: "first"},
	}}

	res := Visible(traj, "", sem)
	assert.Equal(t, []int{1, 5}, visibleIndexes(res), "output follows trajectory order, not selection order")
}
