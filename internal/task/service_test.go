package task_test

import (
	"context"
	"testing"
	"time"

	"tasktimer/internal/db/dbtest"
	"tasktimer/internal/jobs"
	"tasktimer/internal/ledger"
	"tasktimer/internal/progress"
	"tasktimer/internal/task"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var t0 = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func newService(t *testing.T) (*task.Service, *clock) {
	t.Helper()
	gdb := dbtest.Open(t)
	repo := &jobs.Repo{DB: gdb}
	prog := &progress.Service{DB: gdb, Jobs: repo}
	_, err := prog.SeedCatalog(context.Background(), progress.DefaultCatalog)
	require.NoError(t, err)

	c := &clock{now: t0}
	return &task.Service{DB: gdb, Progress: prog, Jobs: repo, Now: c.Now}, c
}

func mustCreate(t *testing.T, svc *task.Service, uid uint64, in task.Input) *task.Task {
	t.Helper()
	tk, err := svc.Create(context.Background(), uid, in)
	require.NoError(t, err)
	return tk
}

func TestCreateDefaultsAndValidation(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	tk := mustCreate(t, svc, 1, task.Input{Title: "  Write report ", DurationMinutes: 30})
	assert.Equal(t, "Write report", tk.Title)
	assert.Equal(t, task.PriorityMedium, tk.Priority)
	assert.False(t, tk.Completed)
	assert.Empty(t, tk.Labels)

	tk = mustCreate(t, svc, 1, task.Input{Title: "Gym", Priority: "high", Recurrence: "Daily"})
	assert.Equal(t, task.PriorityHigh, tk.Priority)
	assert.Equal(t, task.RecurrenceDaily, tk.Recurrence)

	bad := []task.Input{
		{Title: ""},
		{Title: "x", Priority: "urgent"},
		{Title: "x", DurationMinutes: -1},
		{Title: "x", Recurrence: "hourly"},
	}
	for _, in := range bad {
		_, err := svc.Create(ctx, 1, in)
		assert.ErrorIs(t, err, task.ErrInvalidTask, "%+v", in)
	}
}

func TestGetIsScopedToUser(t *testing.T) {
	svc, _ := newService(t)
	tk := mustCreate(t, svc, 1, task.Input{Title: "mine"})

	_, err := svc.Get(context.Background(), 2, tk.ID)
	assert.ErrorIs(t, err, task.ErrNotFound)

	got, err := svc.Get(context.Background(), 1, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, "mine", got.Title)
}

func TestUpdatePatch(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	deadline := t0.Add(48 * time.Hour)
	tk := mustCreate(t, svc, 1, task.Input{Title: "draft", Deadline: &deadline})

	title := "final"
	low := "low"
	got, err := svc.Update(ctx, 1, tk.ID, task.Patch{Title: &title, Priority: &low})
	require.NoError(t, err)
	assert.Equal(t, "final", got.Title)
	assert.Equal(t, task.PriorityLow, got.Priority)
	require.NotNil(t, got.Deadline)

	got, err = svc.Update(ctx, 1, tk.ID, task.Patch{ClearDeadline: true})
	require.NoError(t, err)
	assert.Nil(t, got.Deadline)

	empty := ""
	_, err = svc.Update(ctx, 1, tk.ID, task.Patch{Title: &empty})
	assert.ErrorIs(t, err, task.ErrInvalidTask)

	_, err = svc.Update(ctx, 2, tk.ID, task.Patch{Title: &title})
	assert.ErrorIs(t, err, task.ErrNotFound)
}

func TestListFilters(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	a := mustCreate(t, svc, 1, task.Input{Title: "Buy milk", Priority: task.PriorityLow})
	mustCreate(t, svc, 1, task.Input{Title: "Ship release", Priority: task.PriorityHigh})
	mustCreate(t, svc, 2, task.Input{Title: "Someone else"})

	_, err := svc.SetCompleted(ctx, 1, a.ID, true, nil)
	require.NoError(t, err)

	all, err := svc.List(ctx, 1, task.Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	done := true
	got, err := svc.List(ctx, 1, task.Filter{Completed: &done})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, a.ID, got[0].ID)

	got, err = svc.List(ctx, 1, task.Filter{Priority: "HIGH"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Ship release", got[0].Title)

	got, err = svc.List(ctx, 1, task.Filter{Query: "MILK"})
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestSetCompletedRunsLedger(t *testing.T) {
	svc, c := newService(t)
	ctx := context.Background()

	a := mustCreate(t, svc, 1, task.Input{Title: "a"})
	b := mustCreate(t, svc, 1, task.Input{Title: "b"})

	res, err := svc.SetCompleted(ctx, 1, a.ID, true, nil)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.True(t, res.Task.Completed)
	require.NotNil(t, res.Task.CompletedAt)
	assert.Equal(t, 1, res.Stats.TotalTasksCompleted)
	assert.Equal(t, 10, res.Stats.Points)
	require.Len(t, res.NewAchievements, 1)
	assert.Equal(t, "first_task", res.NewAchievements[0].Code)

	c.now = t0.Add(30 * time.Hour)
	res, err = svc.SetCompleted(ctx, 1, b.ID, true, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Stats.TotalTasksCompleted)
	assert.Equal(t, 1, res.Stats.CurrentStreak)
	assert.Equal(t, 1, res.Stats.LongestStreak)
	assert.Empty(t, res.NewAchievements)
	assert.NotNil(t, res.NewAchievements)

	res, err = svc.SetCompleted(ctx, 1, b.ID, false, nil)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.False(t, res.Task.Completed)
	assert.Nil(t, res.Task.CompletedAt)
	assert.Equal(t, 1, res.Stats.TotalTasksCompleted)
	assert.Equal(t, 10, res.Stats.Points)
}

func TestSetCompletedSameStateIsNoop(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	tk := mustCreate(t, svc, 1, task.Input{Title: "a"})

	res, err := svc.SetCompleted(ctx, 1, tk.ID, false, nil)
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Zero(t, res.Stats.TotalTasksCompleted)

	_, err = svc.SetCompleted(ctx, 1, tk.ID, true, nil)
	require.NoError(t, err)
	res, err = svc.SetCompleted(ctx, 1, tk.ID, true, nil)
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Equal(t, 1, res.Stats.TotalTasksCompleted)
	assert.Equal(t, 10, res.Stats.Points)
}

func TestSetCompletedIdempotencyKey(t *testing.T) {
	svc, c := newService(t)
	ctx := context.Background()
	tk := mustCreate(t, svc, 1, task.Input{Title: "a"})
	key := "req-1"

	first, err := svc.SetCompleted(ctx, 1, tk.ID, true, &key)
	require.NoError(t, err)
	assert.True(t, first.Changed)

	_, err = svc.SetCompleted(ctx, 1, tk.ID, false, nil)
	require.NoError(t, err)

	// replaying the first request must not complete the task again
	c.now = t0.Add(time.Hour)
	replay, err := svc.SetCompleted(ctx, 1, tk.ID, true, &key)
	require.NoError(t, err)
	assert.False(t, replay.Changed)
	assert.False(t, replay.Task.Completed)
	assert.Zero(t, replay.Stats.TotalTasksCompleted)
}

func TestSetCompletedUnknownTask(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.SetCompleted(context.Background(), 1, 999, true, nil)
	assert.ErrorIs(t, err, task.ErrNotFound)

	st, err := svc.Progress.Stats(context.Background(), 1)
	require.NoError(t, err)
	assert.Zero(t, st.TotalTasksCompleted)
}

func TestSetCompletedKeyReusedOnOtherTask(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	a := mustCreate(t, svc, 1, task.Input{Title: "a"})
	b := mustCreate(t, svc, 1, task.Input{Title: "b"})
	key := "req-1"

	_, err := svc.SetCompleted(ctx, 1, a.ID, true, &key)
	require.NoError(t, err)

	_, err = svc.SetCompleted(ctx, 1, b.ID, true, &key)
	assert.ErrorIs(t, err, task.ErrIdempotencyConflict)

	got, err := svc.Get(ctx, 1, b.ID)
	require.NoError(t, err)
	assert.False(t, got.Completed)

	st, err := svc.Progress.Stats(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, st.TotalTasksCompleted)
}

func TestSetCompletedLosesKeyRace(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	tk := mustCreate(t, svc, 1, task.Input{Title: "a"})
	key := "req-1"

	// another request commits the same key between our lookup and our insert
	inserted := false
	err := svc.DB.Callback().Query().After("gorm:query").Register("test:competing_event", func(db *gorm.DB) {
		if inserted || db.Statement.Table != "completion_events" {
			return
		}
		inserted = true
		_, err := db.Statement.ConnPool.ExecContext(db.Statement.Context,
			"INSERT INTO completion_events (user_id, task_id, type, idempotency_key, occurred_at) VALUES (?, ?, ?, ?, ?)",
			1, tk.ID, string(ledger.EventCompleted), key, t0)
		require.NoError(t, err)
	})
	require.NoError(t, err)

	res, err := svc.SetCompleted(ctx, 1, tk.ID, true, &key)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.False(t, res.Changed)
	assert.Zero(t, res.Stats.TotalTasksCompleted)
	assert.NotNil(t, res.NewAchievements)

	var n int64
	require.NoError(t, svc.DB.Model(&progress.CompletionEvent{}).Count(&n).Error)
	assert.EqualValues(t, 1, n)
}

func TestSetCompletedRollsBackOnStoreFailure(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	tk := mustCreate(t, svc, 1, task.Input{Title: "a"})

	// awarding the first achievement fails after the event and stats writes
	require.NoError(t, svc.DB.Migrator().DropTable(&progress.EarnedAchievement{}))

	_, err := svc.SetCompleted(ctx, 1, tk.ID, true, nil)
	require.Error(t, err)

	got, err := svc.Get(ctx, 1, tk.ID)
	require.NoError(t, err)
	assert.False(t, got.Completed)
	assert.Nil(t, got.CompletedAt)

	st, err := svc.Progress.Stats(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, st.TotalTasksCompleted)
	assert.Zero(t, st.Points)
	assert.Nil(t, st.LastCompletedAt)

	var n int64
	require.NoError(t, svc.DB.Model(&progress.CompletionEvent{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestRecurringTaskSchedulesReopen(t *testing.T) {
	svc, c := newService(t)
	ctx := context.Background()
	tk := mustCreate(t, svc, 1, task.Input{Title: "Stretch", Recurrence: task.RecurrenceDaily})

	res, err := svc.SetCompleted(ctx, 1, tk.ID, true, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Task.Streak)

	var queued []jobs.Job
	require.NoError(t, svc.DB.Where("type = ?", jobs.TypeTaskReopen).Find(&queued).Error)
	require.Len(t, queued, 1)
	assert.True(t, queued[0].RunAt.Equal(time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)))

	// the next period starts
	reopened, err := svc.Reopen(ctx, 1, tk.ID)
	require.NoError(t, err)
	assert.True(t, reopened)
	got, err := svc.Get(ctx, 1, tk.ID)
	require.NoError(t, err)
	assert.False(t, got.Completed)

	reopened, err = svc.Reopen(ctx, 1, tk.ID)
	require.NoError(t, err)
	assert.False(t, reopened, "already open")

	st, err := svc.Progress.Stats(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, st.TotalTasksCompleted)

	c.now = time.Date(2024, 5, 2, 8, 0, 0, 0, time.UTC)
	res, err = svc.SetCompleted(ctx, 1, tk.ID, true, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Task.Streak)
	assert.Equal(t, 2, res.Stats.CurrentStreak)
}

func TestUncompletingRecurringTaskCancelsReopen(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	tk := mustCreate(t, svc, 1, task.Input{Title: "Read", Recurrence: task.RecurrenceWeekly})

	_, err := svc.SetCompleted(ctx, 1, tk.ID, true, nil)
	require.NoError(t, err)
	_, err = svc.SetCompleted(ctx, 1, tk.ID, false, nil)
	require.NoError(t, err)

	var n int64
	require.NoError(t, svc.DB.Model(&jobs.Job{}).Where("type = ?", jobs.TypeTaskReopen).Count(&n).Error)
	assert.Zero(t, n)
}

func TestDeleteKeepsLedger(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	tk := mustCreate(t, svc, 1, task.Input{Title: "gone soon"})

	_, err := svc.SetCompleted(ctx, 1, tk.ID, true, nil)
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, 1, tk.ID))

	_, err = svc.Get(ctx, 1, tk.ID)
	assert.ErrorIs(t, err, task.ErrNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, 1, tk.ID), task.ErrNotFound)

	st, err := svc.Progress.Stats(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, st.TotalTasksCompleted)
}
