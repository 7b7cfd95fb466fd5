package plandiff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samestrin/diskbalancer/internal/planner"
	"github.com/samestrin/diskbalancer/internal/scanner"
)

func TestCompareIdenticalPlansReportsNoChange(t *testing.T) {
	p := planner.Plan{
		Moves: []planner.Move{
			{Unit: scanner.Unit{Share: "movies", RelPath: "a", SourceDisk: "disk1", SizeBytes: 100}, DestinationDisk: "disk2"},
		},
		Summary: planner.Summary{TotalMoves: 1, TotalBytes: 100},
	}

	result, err := Compare(p, p)
	require.NoError(t, err)
	assert.False(t, result.Changed)
	assert.Empty(t, result.Report)
}

func TestCompareDifferentPlansReportsChange(t *testing.T) {
	oldPlan := planner.Plan{
		Moves: []planner.Move{
			{Unit: scanner.Unit{Share: "movies", RelPath: "a", SourceDisk: "disk1", SizeBytes: 100}, DestinationDisk: "disk2"},
		},
		Summary: planner.Summary{TotalMoves: 1, TotalBytes: 100},
	}
	newPlan := planner.Plan{
		Moves: []planner.Move{
			{Unit: scanner.Unit{Share: "movies", RelPath: "a", SourceDisk: "disk1", SizeBytes: 100}, DestinationDisk: "disk3"},
		},
		Summary: planner.Summary{TotalMoves: 1, TotalBytes: 100},
	}

	result, err := Compare(oldPlan, newPlan)
	require.NoError(t, err)
	assert.True(t, result.Changed)
	assert.NotEmpty(t, result.Report)
}
