package guard_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sharnoff/guard"
)

func concatLines(lines ...string) string {
	return strings.Join(lines, "\n")
}

func TestStackFormatVarieties(t *testing.T) {
	t.Parallel()

	expected := concatLines(
		"guard.deposit(...)",
		"\t/src/guard/harness.go:37",
		"guard.withdraw(...)",
		"\t/src/guard/harness.go",
		"guard.report(...)",
		"\t<unknown file>",
		"guard.join(...)",
		"\t<unknown file>",
		"<unknown function>",
		"\t/src/guard/group.go:45",
		"<unknown function>",
		"\t<unknown file>",
		"",
	)

	st := guard.StackTrace{
		Frames: []guard.StackFrame{
			{Function: "guard.deposit", File: "/src/guard/harness.go", Line: 37},
			{Function: "guard.withdraw", File: "/src/guard/harness.go"},
			{Function: "guard.report"},
			{Function: "guard.join", Line: 29}, // Line should have no effect if File is missing.
			{File: "/src/guard/group.go", Line: 45},
			{},
		},
	}

	assert.Equal(t, expected, st.String())
}

func TestStackParentsFormat(t *testing.T) {
	t.Parallel()

	expected := concatLines(
		"worker.Run(...)",
		"\t/src/worker.go:10",
		"<empty stack>",
		"harness.Start(...)",
		"\t/src/harness.go:20",
		"",
	)

	st := guard.StackTrace{
		Frames: []guard.StackFrame{
			{Function: "worker.Run", File: "/src/worker.go", Line: 10},
		},
		Parent: &guard.StackTrace{
			Parent: &guard.StackTrace{
				Frames: []guard.StackFrame{
					{Function: "harness.Start", File: "/src/harness.go", Line: 20},
				},
			},
		},
	}

	assert.Equal(t, expected, st.String())
}

//go:noinline
func captureFromHelper(parent *guard.StackTrace, skip uint) guard.StackTrace {
	return guard.CaptureStack(parent, skip)
}

func TestCaptureStack(t *testing.T) {
	t.Parallel()

	st := guard.CaptureStack(nil, 0)
	require.NotEmpty(t, st.Frames)
	assert.Equal(t, "github.com/sharnoff/guard_test.TestCaptureStack", st.Frames[0].Function)
	assert.True(t, strings.HasSuffix(st.Frames[0].File, "stack_test.go"))
	assert.NotZero(t, st.Frames[0].Line)
	assert.Nil(t, st.Parent)

	// skipping one frame from inside the helper starts at this test
	child := captureFromHelper(&st, 1)
	require.NotEmpty(t, child.Frames)
	assert.Equal(t, "github.com/sharnoff/guard_test.TestCaptureStack", child.Frames[0].Function)
	assert.Same(t, &st, child.Parent)

	inner := captureFromHelper(nil, 0)
	require.NotEmpty(t, inner.Frames)
	assert.Equal(t, "github.com/sharnoff/guard_test.captureFromHelper", inner.Frames[0].Function)
}
