// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// Tests for interaction-format conversion

package convert

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/TrajectoryStudio/services/trajectory"
)

func singleAction(t *testing.T, actionText, observationText string) Action {
	t.Helper()
	actions := ParseAction(actionText, observationText)
	require.Len(t, actions, 1)
	act, ok := actions[0].(Action)
	require.True(t, ok)
	return act
}

func TestParseActionEmpty(t *testing.T) {
	actions := ParseAction("", "whatever")
	assert.Equal(t, []any{"<actions>"}, actions)
}

func TestParseActionSubmit(t *testing.T) {
	act := singleAction(t, "submit", "diff --git a/x b/x")
	assert.Equal(t, "endInteraction", act.Name)
	assert.Equal(t, "diff --git a/x b/x", act.Input["answer"])
	assert.Nil(t, act.Output)
}

func TestParseActionCreateFile(t *testing.T) {
	act := singleAction(t,
		"str_replace_editor create /testbed/reproduce.py --file_text import widget\nwidget.render()",
		"File created successfully at: /testbed/reproduce.py")

	assert.Equal(t, "createFile", act.Name)
	assert.Equal(t, "/testbed/reproduce.py", act.Input["file_path"])
	assert.Equal(t, "import widget\nwidget.render()", act.Input["file_content"])

	ws, _ := act.Output["workspace"].(string)
	assert.True(t, strings.HasPrefix(ws, "<workspace>\n/testbed/reproduce.py\n"))
	assert.Contains(t, ws, "import widget")
}

func TestParseActionStrReplaceLineNumbers(t *testing.T) {
	obs := "The file /testbed/widget.py has been edited.\n" +
		"    10\tdef render(self):\n" +
		"    11\t    flip = False\n" +
		"    12\t    return draw(flip)\n" +
		reviewEnding

	act := singleAction(t,
		"str_replace_editor str_replace /testbed/widget.py --old_str flip = True --new_str flip = False",
		obs)

	assert.Equal(t, "replaceCodeString", act.Name)
	assert.Equal(t, "/testbed/widget.py", act.Input["file_path"])
	assert.Equal(t, "flip = True", act.Input["find"])
	assert.Equal(t, "flip = False", act.Input["replace"])
	// 4 lines of editor context above and below the printed window.
	assert.Equal(t, 14, act.Input["replace_start_line"])
	assert.Equal(t, 8, act.Input["replace_end_line"])

	ws, _ := act.Output["workspace"].(string)
	assert.NotContains(t, ws, "Review the changes")
}

func TestParseActionStrReplaceWithoutLineNumbers(t *testing.T) {
	act := singleAction(t,
		"str_replace_editor str_replace /testbed/widget.py --old_str a --new_str b",
		"The file /testbed/widget.py has been edited.")

	assert.Nil(t, act.Input["replace_start_line"])
	assert.Nil(t, act.Input["replace_end_line"])
}

func TestParseActionViewRange(t *testing.T) {
	act := singleAction(t,
		"str_replace_editor view /testbed/widget.py --view_range 10 40",
		"Here's the result of running `cat -n`:\n    10\tdef render(self):")

	assert.Equal(t, "selectCodeBlock", act.Name)
	assert.Equal(t, "/testbed/widget.py", act.Input["file_path"])
	assert.Equal(t, []any{[]any{10, 40}}, act.Input["line_ranges"])
}

func TestParseActionViewDirectory(t *testing.T) {
	obs := directoryListingAt + "\n/testbed\n/testbed/widget.py\n/testbed/tests"
	act := singleAction(t, "str_replace_editor view /testbed", obs)

	assert.Equal(t, "executeCmd", act.Name)
	assert.Equal(t, `find /testbed -maxdepth 2 -not -path '*/\.*'`, act.Input["cmd"])
	assert.Equal(t, "/testbed\n/testbed/widget.py\n/testbed/tests", act.Output["stdout"])
}

func TestParseActionViewFile(t *testing.T) {
	obs := "Here's the result of running `cat -n` on /testbed/widget.py:\n     1\timport draw\n" + clippedEnding
	act := singleAction(t, "str_replace_editor view /testbed/widget.py", obs)

	assert.Equal(t, "openFile", act.Name)
	assert.Equal(t, "/testbed/widget.py", act.Input["file_path"])

	ws, _ := act.Output["workspace"].(string)
	assert.Contains(t, ws, "import draw")
	assert.NotContains(t, ws, "response clipped")
	assert.NotContains(t, ws, "Here's the result", "the tool banner line is dropped")
}

func TestParseActionDefaultCommand(t *testing.T) {
	act := singleAction(t, "python reproduce.py", "Traceback\nValueError: render failed")

	assert.Equal(t, "executeCmd", act.Name)
	assert.Equal(t, "python reproduce.py", act.Input["cmd"])
	assert.Equal(t, "Traceback\nValueError: render failed", act.Output["stdout"])
	assert.Equal(t, []string{"ValueError: render failed"}, act.Output["errors"])
}

func TestParseActionCleanCommandHasNoErrors(t *testing.T) {
	act := singleAction(t, "ls /testbed", "widget.py\ntests")
	_, present := act.Output["errors"]
	assert.False(t, present)
}

func TestExtractProblem(t *testing.T) {
	text := "Please fix this.\n<pr_description>\nWidgets render upside down.\n</pr_description>\nThanks."
	assert.Equal(t, "Widgets render upside down.", ExtractProblem(text))
	assert.Equal(t, "", ExtractProblem("no description here"))
}

func TestExtractErrors(t *testing.T) {
	output := strings.Join([]string{
		"collecting tests",
		"widget.py:12:5: error: bad type",
		"/testbed/errors/handler.py",
		"test_failures.py",
		"Permission denied",
	}, "\n")

	errs := ExtractErrors(output)
	assert.Equal(t, []string{
		"widget.py:12:5: error: bad type",
		"Permission denied",
	}, errs)

	assert.Nil(t, ExtractErrors(""))
}

func TestConvertChainsEntries(t *testing.T) {
	traj := &trajectory.Trajectory{
		Zero: &trajectory.StepZero{
			Content: json.RawMessage(`"<pr_description>fix the widget</pr_description>"`),
			Repo:    "acme/widget",
		},
		Entries: []trajectory.Entry{
			&trajectory.Step{OriginalIndex: 1, Thought: "look", Action: "ls", Observation: "widget.py"},
			&trajectory.Step{OriginalIndex: 2, Thought: "ship it", Action: "submit", Observation: "diff --git"},
		},
	}

	entries := Convert(traj)
	require.Len(t, entries, 3)

	begin := entries[0]
	assert.Equal(t, 0, begin.ID)
	assert.Nil(t, begin.Parent)
	assert.Nil(t, begin.Thought)
	beginAction := begin.Actions[0].(Action)
	assert.Equal(t, "beginInteraction", beginAction.Name)
	assert.Equal(t, "acme/widget", beginAction.Output["repo"])
	assert.Equal(t, "fix the widget", beginAction.Output["problem"])
	assert.Equal(t, "diff --git", begin.Metadata["patch"], "the last observation becomes the patch")
	assert.Equal(t, "MAIN", begin.Metadata["stage"])

	first := entries[1]
	require.NotNil(t, first.Parent)
	assert.Equal(t, 0, *first.Parent)
	require.NotNil(t, first.Thought)
	assert.Equal(t, "look", *first.Thought)
	assert.Equal(t, emptyWorkspace, first.Metadata["workspace"])

	second := entries[2]
	require.NotNil(t, second.Parent)
	assert.Equal(t, 1, *second.Parent)
}

func TestConvertDefaultsRepoAndProblem(t *testing.T) {
	traj := &trajectory.Trajectory{
		Zero: &trajectory.StepZero{Content: json.RawMessage(`"just fix it"`)},
	}
	entries := Convert(traj)
	require.Len(t, entries, 1)
	out := entries[0].Actions[0].(Action).Output
	assert.Equal(t, "unknown/unknown", out["repo"])
	assert.Nil(t, out["problem"])
	assert.Equal(t, "just fix it", out["user_prompt"])
}

func TestConvertThreadsWorkspace(t *testing.T) {
	traj := &trajectory.Trajectory{
		Entries: []trajectory.Entry{
			&trajectory.Step{
				OriginalIndex: 1,
				Action:        "str_replace_editor create /testbed/x.py --file_text print(1)",
				Observation:   "File created",
			},
			&trajectory.Step{OriginalIndex: 2, Action: "python x.py", Observation: "1"},
		},
	}

	entries := Convert(traj)
	require.Len(t, entries, 2)

	ws1, _ := entries[0].Metadata["workspace"].(string)
	assert.Contains(t, ws1, "/testbed/x.py")

	// A command emits no workspace, so the previous one carries forward.
	ws2, _ := entries[1].Metadata["workspace"].(string)
	assert.Equal(t, ws1, ws2)
}

func TestConvertClusterCollectsMemberActions(t *testing.T) {
	traj := &trajectory.Trajectory{
		Entries: []trajectory.Entry{
			&trajectory.Cluster{
				StepIDs: []int{1, 2},
				Steps: []*trajectory.Step{
					{OriginalIndex: 1, Action: "ls", Observation: "x.py"},
					{OriginalIndex: 2, Action: "cat x.py", Observation: "print(1)"},
				},
				Summary: "explore",
			},
		},
	}

	entries := Convert(traj)
	require.Len(t, entries, 1)
	assert.Len(t, entries[0].Actions, 2)
	require.NotNil(t, entries[0].Thought)
	assert.Equal(t, "explore", *entries[0].Thought)
}
