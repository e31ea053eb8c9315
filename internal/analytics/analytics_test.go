package analytics

import (
	"testing"
	"time"

	"tasktimer/internal/progress"
	"tasktimer/internal/task"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Wednesday
var now = time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC)

func at(day, hour int) time.Time { return time.Date(2024, 5, day, hour, 0, 0, 0, time.UTC) }

func tp(t time.Time) *time.Time { return &t }

func TestWindowStart(t *testing.T) {
	assert.Equal(t, at(9, 0), WindowStart(now, 1))
	assert.Equal(t, at(6, 0), WindowStart(now, 2))
	assert.Equal(t, WindowStart(now, DefaultWeeks), WindowStart(now, 0))
}

func TestSummarizeTotalsAndPriorities(t *testing.T) {
	tasks := []task.Task{
		{Priority: task.PriorityHigh, Completed: true},
		{Priority: task.PriorityHigh},
		{Priority: task.PriorityLow, Completed: true},
	}

	s := Summarize(tasks, nil, now, 1)
	assert.Equal(t, 3, s.TotalTasks)
	assert.Equal(t, 2, s.CompletedTasks)
	assert.Equal(t, 66.7, s.CompletionRate)
	assert.Equal(t, []PriorityCount{
		{Name: task.PriorityHigh, Value: 2},
		{Name: task.PriorityMedium, Value: 0},
		{Name: task.PriorityLow, Value: 1},
	}, s.PriorityDistribution)

	empty := Summarize(nil, nil, now, 1)
	assert.Zero(t, empty.CompletionRate)
	assert.Len(t, empty.PriorityDistribution, 3)
	assert.Len(t, empty.WeeklyCompletion, 7)
}

func TestWeeklyCompletion(t *testing.T) {
	events := []progress.CompletionEvent{
		{Type: "COMPLETED", OccurredAt: at(15, 9)},
		{Type: "COMPLETED", OccurredAt: at(15, 10)},
		{Type: "UNCOMPLETED", OccurredAt: at(15, 11)},
		{Type: "COMPLETED", OccurredAt: at(13, 8)},
		{Type: "COMPLETED", OccurredAt: at(9, 8)},
		// older than seven days
		{Type: "COMPLETED", OccurredAt: at(8, 8)},
	}

	s := Summarize(nil, events, now, 1)
	byDay := map[string]int{}
	for _, d := range s.WeeklyCompletion {
		byDay[d.Day] = d.Tasks
	}
	assert.Equal(t, 1, byDay["Wed"])
	assert.Equal(t, 1, byDay["Mon"])
	assert.Equal(t, 1, byDay["Thu"])
	assert.Equal(t, 0, byDay["Tue"])
	assert.Equal(t, 3, s.ActiveDays)
}

func TestProductivityTrend(t *testing.T) {
	tasks := []task.Task{
		// last week: done on time
		{CreatedAt: at(7, 9), Completed: true, CompletedAt: tp(at(8, 9)), Deadline: tp(at(9, 0))},
		// last week: done late
		{CreatedAt: at(7, 9), Completed: true, CompletedAt: tp(at(10, 9)), Deadline: tp(at(9, 0))},
		// this week: open and overdue
		{CreatedAt: at(13, 9), Deadline: tp(at(14, 0))},
		// this week: open, due later
		{CreatedAt: at(14, 9), Deadline: tp(at(17, 0))},
	}

	s := Summarize(tasks, nil, now, 2)
	require.Len(t, s.ProductivityTrend, 2)

	prev, cur := s.ProductivityTrend[0], s.ProductivityTrend[1]
	assert.Equal(t, "2024-05-06", prev.Week)
	assert.Equal(t, 100.0, prev.Completion)
	assert.Equal(t, 50.0, prev.Efficiency)
	assert.Equal(t, 0, prev.Overdue)

	assert.Equal(t, "2024-05-13", cur.Week)
	assert.Equal(t, 0.0, cur.Completion)
	assert.Equal(t, 0.0, cur.Efficiency)
	assert.Equal(t, 1, cur.Overdue)
}

func TestWeeksAreClamped(t *testing.T) {
	s := Summarize(nil, nil, now, 100)
	assert.Len(t, s.ProductivityTrend, MaxWeeks)
}
