package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePriority(t *testing.T) {
	p, err := ParsePriority("")
	require.NoError(t, err)
	assert.Equal(t, PriorityMedium, p)

	p, err = ParsePriority(" URGENT ")
	require.NoError(t, err)
	assert.Equal(t, PriorityUrgent, p)

	_, err = ParsePriority("critical")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestPriorityRank(t *testing.T) {
	assert.Less(t, PriorityUrgent.Rank(), PriorityHigh.Rank())
	assert.Less(t, PriorityHigh.Rank(), PriorityMedium.Rank())
	assert.Less(t, PriorityMedium.Rank(), PriorityLow.Rank())
	assert.False(t, Priority("x").Valid())
}

func TestComputeStats(t *testing.T) {
	empty := ComputeStats(nil)
	assert.Zero(t, empty.TotalTasks)
	assert.Zero(t, empty.CompletionRate)

	s := ComputeStats([]Task{
		{ID: 1, Priority: PriorityHigh, Completed: true},
		{ID: 2, Priority: PriorityHigh},
		{ID: 3, Priority: PriorityLow},
	})
	assert.Equal(t, 3, s.TotalTasks)
	assert.Equal(t, 1, s.CompletedTasks)
	assert.Equal(t, 2, s.PendingTasks)
	assert.Equal(t, 33.3, s.CompletionRate)
	assert.Equal(t, map[Priority]int{PriorityHigh: 2, PriorityLow: 1}, s.PriorityBreakdown)
}

func TestFilters(t *testing.T) {
	open := Task{ID: 1, Priority: PriorityHigh}
	done := Task{ID: 2, Priority: PriorityLow, Completed: true}

	assert.True(t, AllTasks().Match(done))
	assert.True(t, PendingTasks().Match(open))
	assert.False(t, PendingTasks().Match(done))
	assert.True(t, CompletedTasks().Match(done))
	assert.True(t, ByPriority(PriorityHigh).Match(open))
	assert.False(t, ByPriority(PriorityHigh).Match(done))
	assert.True(t, ByID(2).Match(done))

	assert.Equal(t, "priority:high", ByPriority(PriorityHigh).String())
	assert.Equal(t, "id:7", ByID(7).String())

	assert.ErrorIs(t, ByPriority("nope").Validate(), ErrInvalidArgument)
	assert.ErrorIs(t, ByID(0).Validate(), ErrInvalidArgument)
	assert.NoError(t, PendingTasks().Validate())

	f, err := ParseStatusFilter("Completed")
	require.NoError(t, err)
	assert.Equal(t, FilterCompleted, f.Kind)
	_, err = ParseStatusFilter("archived")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}
