package task

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextPeriodStart(t *testing.T) {
	// Wednesday
	at := time.Date(2024, 5, 15, 18, 30, 0, 0, time.UTC)

	assert.Equal(t, time.Date(2024, 5, 16, 0, 0, 0, 0, time.UTC), NextPeriodStart(at, RecurrenceDaily))
	assert.Equal(t, time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC), NextPeriodStart(at, RecurrenceWeekly))
	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), NextPeriodStart(at, RecurrenceMonthly))

	monday := time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 5, 27, 0, 0, 0, 0, time.UTC), NextPeriodStart(monday, RecurrenceWeekly))

	dec := time.Date(2024, 12, 31, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), NextPeriodStart(dec, RecurrenceMonthly))
}

func TestNextStreak(t *testing.T) {
	last := time.Date(2024, 5, 15, 8, 0, 0, 0, time.UTC)

	assert.Equal(t, 1, nextStreak(0, nil, last, RecurrenceDaily))
	assert.Equal(t, 3, nextStreak(3, &last, last.Add(2*time.Hour), RecurrenceDaily))
	assert.Equal(t, 4, nextStreak(3, &last, last.Add(30*time.Hour), RecurrenceDaily))
	assert.Equal(t, 1, nextStreak(3, &last, last.Add(60*time.Hour), RecurrenceDaily))

	assert.Equal(t, 3, nextStreak(3, &last, last.Add(72*time.Hour), RecurrenceWeekly))
	assert.Equal(t, 4, nextStreak(3, &last, last.Add(7*24*time.Hour), RecurrenceWeekly))
}

func TestInflightGate(t *testing.T) {
	var f inflight

	assert.True(t, f.acquire(1))
	assert.False(t, f.acquire(1))
	assert.True(t, f.acquire(2))

	f.release(1)
	assert.True(t, f.acquire(1))
}
