package testorch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunAutoUpdateConvergesInOnePass(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.mbt")
	require.NoError(t, os.WriteFile(path, []byte(`inspect(1 + 2)`), 0644))

	calls := 0
	run := func() ([]Outcome, error) {
		calls++
		if calls == 1 {
			return []Outcome{{
				Status: StatusExpectFailed,
				Expect: &ExpectFailure{
					Loc:     &SourceLoc{Path: path, Start: 0, End: 14},
					ArgsLoc: [4]*SourceLoc{{Path: path, Start: 8, End: 13}},
					Actual:  "3",
				},
			}}, nil
		}
		return []Outcome{{Status: StatusPass}}, nil
	}

	result, err := RunAutoUpdate(run, func(ExpectFailure) int { return 0 }, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Iterations)
	assert.False(t, result.Exhausted)
	assert.True(t, result.Results.OK())

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `inspect(1 + 2, content="3")`, string(got))
}

func TestRunAutoUpdateExhaustsIterationLimit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.mbt")
	require.NoError(t, os.WriteFile(path, []byte(`inspect(1 + 2)`), 0644))

	run := func() ([]Outcome, error) {
		return []Outcome{{
			Status: StatusExpectFailed,
			Expect: &ExpectFailure{
				Loc:    &SourceLoc{Path: path, Start: 8, End: 9},
				Expect: "1",
				Actual: "3",
			},
		}}, nil
	}

	result, err := RunAutoUpdate(run, func(ExpectFailure) int { return 0 }, 3)
	require.Error(t, err)
	assert.Equal(t, 3, result.Iterations)
	assert.True(t, result.Exhausted)
	assert.NotEmpty(t, result.LastDiff)
}

func TestRunAutoUpdatePropagatesRunError(t *testing.T) {
	run := func() ([]Outcome, error) { return nil, assert.AnError }
	_, err := RunAutoUpdate(run, func(ExpectFailure) int { return 0 }, 5)
	assert.Error(t, err)
}
