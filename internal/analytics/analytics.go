package analytics

import (
	"math"
	"time"

	"tasktimer/internal/ledger"
	"tasktimer/internal/progress"
	"tasktimer/internal/task"
)

const (
	DefaultWeeks = 4
	MaxWeeks     = 26
)

type PriorityCount struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

type DayCount struct {
	Day   string `json:"day"`
	Tasks int    `json:"tasks"`
}

type WeekPoint struct {
	Week       string  `json:"week"`
	Completion float64 `json:"completion"`
	Efficiency float64 `json:"efficiency"`
	Overdue    int     `json:"overdue"`
}

type Summary struct {
	TotalTasks           int             `json:"total_tasks"`
	CompletedTasks       int             `json:"completed_tasks"`
	CompletionRate       float64         `json:"completion_rate"`
	ActiveDays           int             `json:"active_days"`
	PriorityDistribution []PriorityCount `json:"priority_distribution"`
	WeeklyCompletion     []DayCount      `json:"weekly_completion"`
	ProductivityTrend    []WeekPoint     `json:"productivity_trend"`
}

var weekdays = []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

// WindowStart is the earliest instant Summarize reads events from.
func WindowStart(now time.Time, weeks int) time.Time {
	weeks = clampWeeks(weeks)
	trend := weekStart(now).AddDate(0, 0, -7*(weeks-1))
	last7 := startOfDay(now).AddDate(0, 0, -6)
	if last7.Before(trend) {
		return last7
	}
	return trend
}

// Summarize derives the dashboard numbers from a user's tasks and the
// completion log since WindowStart.
func Summarize(tasks []task.Task, events []progress.CompletionEvent, now time.Time, weeks int) Summary {
	now = now.UTC()
	weeks = clampWeeks(weeks)

	s := Summary{TotalTasks: len(tasks)}
	for _, t := range tasks {
		if t.Completed {
			s.CompletedTasks++
		}
	}
	s.CompletionRate = percent(s.CompletedTasks, s.TotalTasks)
	s.PriorityDistribution = priorityDistribution(tasks)
	s.WeeklyCompletion, s.ActiveDays = lastSevenDays(events, now)
	s.ProductivityTrend = trend(tasks, now, weeks)
	return s
}

func priorityDistribution(tasks []task.Task) []PriorityCount {
	out := []PriorityCount{
		{Name: task.PriorityHigh},
		{Name: task.PriorityMedium},
		{Name: task.PriorityLow},
	}
	for _, t := range tasks {
		for i := range out {
			if out[i].Name == t.Priority {
				out[i].Value++
			}
		}
	}
	return out
}

// lastSevenDays counts net completions per weekday over today and the six
// days before it, and the number of days with at least one completion.
func lastSevenDays(events []progress.CompletionEvent, now time.Time) ([]DayCount, int) {
	from := startOfDay(now).AddDate(0, 0, -6)
	to := startOfDay(now).AddDate(0, 0, 1)

	net := make([]int, 7)
	active := map[time.Time]struct{}{}
	for _, e := range events {
		at := e.OccurredAt.UTC()
		if at.Before(from) || !at.Before(to) {
			continue
		}
		i := weekdayIndex(at)
		switch ledger.EventType(e.Type) {
		case ledger.EventCompleted:
			net[i]++
			active[startOfDay(at)] = struct{}{}
		case ledger.EventUncompleted:
			net[i]--
		}
	}

	out := make([]DayCount, 7)
	for i, d := range weekdays {
		out[i] = DayCount{Day: d, Tasks: max(0, net[i])}
	}
	return out, len(active)
}

func trend(tasks []task.Task, now time.Time, weeks int) []WeekPoint {
	first := weekStart(now).AddDate(0, 0, -7*(weeks-1))
	out := make([]WeekPoint, 0, weeks)

	for w := 0; w < weeks; w++ {
		from := first.AddDate(0, 0, 7*w)
		to := from.AddDate(0, 0, 7)

		var created, createdDone, done, onTime, overdue int
		for _, t := range tasks {
			if within(t.CreatedAt, from, to) {
				created++
				if t.Completed {
					createdDone++
				}
			}
			if t.CompletedAt != nil && within(*t.CompletedAt, from, to) {
				done++
				if t.Deadline == nil || !t.CompletedAt.After(*t.Deadline) {
					onTime++
				}
			}
			if !t.Completed && t.Deadline != nil && within(*t.Deadline, from, to) && t.Deadline.Before(now) {
				overdue++
			}
		}

		out = append(out, WeekPoint{
			Week:       from.Format("2006-01-02"),
			Completion: percent(createdDone, created),
			Efficiency: percent(onTime, done),
			Overdue:    overdue,
		})
	}
	return out
}

func clampWeeks(weeks int) int {
	if weeks <= 0 {
		return DefaultWeeks
	}
	if weeks > MaxWeeks {
		return MaxWeeks
	}
	return weeks
}

func percent(n, of int) float64 {
	if of == 0 {
		return 0
	}
	return math.Round(float64(n)/float64(of)*1000) / 10
}

func within(t, from, to time.Time) bool {
	t = t.UTC()
	return !t.Before(from) && t.Before(to)
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// weekStart is the Monday 00:00 UTC of t's week.
func weekStart(t time.Time) time.Time {
	d := startOfDay(t)
	return d.AddDate(0, 0, -weekdayIndex(d))
}

func weekdayIndex(t time.Time) int {
	return (int(t.UTC().Weekday()) + 6) % 7
}
