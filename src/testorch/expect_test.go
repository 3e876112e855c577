package testorch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderLiteralSingleLine(t *testing.T) {
	assert.Equal(t, `"3"`, RenderLiteral("3", 0))
	assert.Equal(t, `"a\tb"`, RenderLiteral("a\tb", 0))
}

func TestRenderLiteralEscapesBackslashesAndSendsQuotesMultiline(t *testing.T) {
	assert.Equal(t, `"a \\ b"`, RenderLiteral(`a \ b`, 0))
	assert.Equal(t, `  #|he said "hi" \ ok`, RenderLiteral(`he said "hi" \ ok`, 0))
}

func TestRenderLiteralMultilineUsesPipePrefix(t *testing.T) {
	got := RenderLiteral("line one\nline two", 2)
	assert.Equal(t, "    #|line one\n    #|line two", got)
}

func TestExpectFailureKindTrivialWhenExistingLiteralPresent(t *testing.T) {
	f := ExpectFailure{
		Loc:     &SourceLoc{Path: "a.mbt", Start: 0, End: 14},
		ArgsLoc: [4]*SourceLoc{{Path: "a.mbt", Start: 8, End: 9}, {Path: "a.mbt", Start: 10, End: 13}},
	}
	assert.Equal(t, PatchTrivial, f.Kind())
}

func TestExpectFailureKindPipeWhenActualPrecedesCall(t *testing.T) {
	f := ExpectFailure{
		Loc:     &SourceLoc{Path: "a.mbt", Start: 10, End: 20},
		ArgsLoc: [4]*SourceLoc{{Path: "a.mbt", Start: 0, End: 5}},
	}
	assert.Equal(t, PatchPipe, f.Kind())
}

func TestExpectFailureKindCallWhenActualIsInsideCall(t *testing.T) {
	f := ExpectFailure{
		Loc:     &SourceLoc{Path: "a.mbt", Start: 0, End: 14},
		ArgsLoc: [4]*SourceLoc{{Path: "a.mbt", Start: 8, End: 13}},
	}
	assert.Equal(t, PatchCall, f.Kind())
}

func TestBuildPatchTrivialReplacesExistingLiteralSpan(t *testing.T) {
	f := ExpectFailure{
		Loc:     &SourceLoc{Path: "a.mbt", Start: 0, End: 20},
		ArgsLoc: [4]*SourceLoc{{Path: "a.mbt", Start: 8, End: 9}, {Path: "a.mbt", Start: 17, End: 18}},
		Actual:  "3",
	}
	p := f.BuildPatch(0)
	assert.Equal(t, patch{Path: "a.mbt", Start: 17, End: 18, Text: `"3"`}, p)
}

func TestBuildPatchCallInsertsCommaBeforeClosingParen(t *testing.T) {
	f := ExpectFailure{
		Loc:     &SourceLoc{Path: "a.mbt", Start: 0, End: 14},
		ArgsLoc: [4]*SourceLoc{{Path: "a.mbt", Start: 8, End: 13}},
		Actual:  "3",
	}
	p := f.BuildPatch(0)
	assert.Equal(t, `, content="3"`, p.Text)
	assert.Equal(t, 13, p.Start)
	assert.Equal(t, 13, p.End)
}

func TestBuildPatchPipeInsertsBeforeClosingParen(t *testing.T) {
	f := ExpectFailure{
		Loc:     &SourceLoc{Path: "a.mbt", Start: 10, End: 20},
		ArgsLoc: [4]*SourceLoc{{Path: "a.mbt", Start: 0, End: 5}},
		Actual:  "3",
	}
	p := f.BuildPatch(0)
	assert.Equal(t, `content="3"`, p.Text)
	assert.Equal(t, 19, p.Start)
	assert.Equal(t, 19, p.End)
}

func TestApplyPatchesSinglePass(t *testing.T) {
	content := `inspect(1 + 2)
inspect(3 + 4)
`
	patches := []patch{
		{Start: 13, End: 13, Text: `, content="3"`},
		{Start: 28, End: 28, Text: `, content="7"`},
	}
	got, err := ApplyPatches(content, patches)
	require.NoError(t, err)
	assert.Equal(t, `inspect(1 + 2, content="3")
inspect(3 + 4, content="7")
`, got)
}

func TestApplyPatchesRejectsOverlap(t *testing.T) {
	_, err := ApplyPatches("abcdef", []patch{{Start: 3, End: 5}, {Start: 4, End: 6}})
	assert.Error(t, err)
}

func TestGroupAndSortByFileOrdersByPosition(t *testing.T) {
	failures := []ExpectFailure{
		{Loc: &SourceLoc{Path: "a.mbt", Start: 20, End: 22}, Actual: "b"},
		{Loc: &SourceLoc{Path: "a.mbt", Start: 5, End: 6}, Actual: "a"},
	}
	byFile := GroupAndSortByFile(failures, func(ExpectFailure) int { return 0 })
	require.Len(t, byFile["a.mbt"], 2)
	assert.Equal(t, 5, byFile["a.mbt"][0].Start)
	assert.Equal(t, 21, byFile["a.mbt"][1].Start)
}

func TestApplyAllRewritesFileOnDisk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.mbt")
	require.NoError(t, os.WriteFile(path, []byte(`inspect(1 + 2)`), 0644))

	failures := []ExpectFailure{{
		Loc:     &SourceLoc{Path: path, Start: 0, End: 14},
		ArgsLoc: [4]*SourceLoc{{Path: path, Start: 8, End: 13}},
		Actual:  "3",
	}}
	require.NoError(t, applyAll(failures, func(ExpectFailure) int { return 0 }))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `inspect(1 + 2, content="3")`, string(got))
}
