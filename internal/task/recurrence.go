package task

import "time"

func validRecurrence(r string) bool {
	switch r {
	case "", RecurrenceDaily, RecurrenceWeekly, RecurrenceMonthly:
		return true
	}
	return false
}

// NextPeriodStart is the UTC midnight at which the period following the one
// containing at begins.
func NextPeriodStart(at time.Time, recurrence string) time.Time {
	at = at.UTC()
	day := time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, time.UTC)

	switch recurrence {
	case RecurrenceWeekly:
		// weeks start on Monday
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, 7-offset)
	case RecurrenceMonthly:
		return time.Date(at.Year(), at.Month()+1, 1, 0, 0, 0, 0, time.UTC)
	default:
		return day.AddDate(0, 0, 1)
	}
}

// nextStreak returns the recurring streak after a completion at at. The
// streak continues when the previous completion fell in the period right
// before the current one, and is unchanged by a second completion in the
// same period.
func nextStreak(streak int, lastDone *time.Time, at time.Time, recurrence string) int {
	if lastDone == nil || streak == 0 {
		return 1
	}
	boundary := NextPeriodStart(*lastDone, recurrence)
	switch {
	case at.Before(boundary):
		return streak
	case at.Before(NextPeriodStart(boundary, recurrence)):
		return streak + 1
	default:
		return 1
	}
}
