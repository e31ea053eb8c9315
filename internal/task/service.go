package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"tasktimer/internal/jobs"
	"tasktimer/internal/progress"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidTask    = errors.New("invalid task")
	ErrToggleInFlight = errors.New("completion toggle already in progress")

	ErrIdempotencyConflict = errors.New("idempotency key already used for another task")
)

const maxTitleLen = 200

type Service struct {
	DB       *gorm.DB
	Progress *progress.Service
	Jobs     *jobs.Repo
	Now      func() time.Time

	inflight inflight
}

type Input struct {
	Title           string
	Description     string
	DurationMinutes int
	Priority        string
	Deadline        *time.Time
	Recurrence      string
}

// Patch holds optional updates; ClearDeadline removes the deadline.
type Patch struct {
	Title           *string
	Description     *string
	DurationMinutes *int
	Priority        *string
	Deadline        *time.Time
	ClearDeadline   bool
	Recurrence      *string
}

type Filter struct {
	Completed *bool
	Priority  string
	LabelID   uint64
	Query     string
	Limit     int
}

// ToggleResult is what the presentation layer needs after a toggle: the
// task, the user's stats and any achievements to announce.
type ToggleResult struct {
	Task            Task                   `json:"task"`
	Stats           progress.UserStats     `json:"stats"`
	NewAchievements []progress.Achievement `json:"new_achievements"`
	Changed         bool                   `json:"changed"`
}

func (s *Service) Create(ctx context.Context, userID uint64, in Input) (*Task, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.Priority = normalizePriority(in.Priority)
	in.Recurrence = strings.ToLower(strings.TrimSpace(in.Recurrence))
	if err := validate(in); err != nil {
		return nil, err
	}

	t := Task{
		UserID:          userID,
		Title:           in.Title,
		Description:     in.Description,
		DurationMinutes: in.DurationMinutes,
		Priority:        in.Priority,
		Deadline:        utcPtr(in.Deadline),
		Recurrence:      in.Recurrence,
	}
	if err := s.DB.WithContext(ctx).Create(&t).Error; err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	t.Labels = []Label{}
	return &t, nil
}

func (s *Service) Get(ctx context.Context, userID, id uint64) (*Task, error) {
	gdb := s.DB.WithContext(ctx)
	t, err := findTask(gdb, userID, id, false)
	if err != nil {
		return nil, err
	}
	if err := attachLabels(gdb, userID, []*Task{t}); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Service) List(ctx context.Context, userID uint64, f Filter) ([]Task, error) {
	gdb := s.DB.WithContext(ctx)
	q := gdb.Model(&Task{}).Where("tasks.user_id = ?", userID)

	if f.Completed != nil {
		q = q.Where("tasks.completed = ?", *f.Completed)
	}
	if p := strings.TrimSpace(f.Priority); p != "" {
		q = q.Where("tasks.priority = ?", normalizePriority(p))
	}
	if f.LabelID != 0 {
		q = q.Joins("JOIN task_labels tl ON tl.task_id = tasks.id AND tl.label_id = ?", f.LabelID)
	}
	if text := strings.TrimSpace(f.Query); text != "" {
		like := "%" + strings.ToLower(text) + "%"
		q = q.Where("LOWER(tasks.title) LIKE ? OR LOWER(tasks.description) LIKE ?", like, like)
	}

	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var rows []Task
	if err := q.Order("tasks.completed asc").Order("tasks.updated_at desc").Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	ptrs := make([]*Task, len(rows))
	for i := range rows {
		ptrs[i] = &rows[i]
	}
	if err := attachLabels(gdb, userID, ptrs); err != nil {
		return nil, err
	}
	return rows, nil
}

// All returns every task of the user without labels, for analytics.
func (s *Service) All(ctx context.Context, userID uint64) ([]Task, error) {
	var rows []Task
	if err := s.DB.WithContext(ctx).Where("user_id = ?", userID).Order("id asc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return rows, nil
}

func (s *Service) Update(ctx context.Context, userID, id uint64, p Patch) (*Task, error) {
	var out *Task
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := findTask(tx, userID, id, true)
		if err != nil {
			return err
		}

		in := Input{
			Title:           t.Title,
			Description:     t.Description,
			DurationMinutes: t.DurationMinutes,
			Priority:        t.Priority,
			Deadline:        t.Deadline,
			Recurrence:      t.Recurrence,
		}
		if p.Title != nil {
			in.Title = strings.TrimSpace(*p.Title)
		}
		if p.Description != nil {
			in.Description = strings.TrimSpace(*p.Description)
		}
		if p.DurationMinutes != nil {
			in.DurationMinutes = *p.DurationMinutes
		}
		if p.Priority != nil {
			in.Priority = normalizePriority(*p.Priority)
		}
		if p.Deadline != nil {
			in.Deadline = p.Deadline
		}
		if p.ClearDeadline {
			in.Deadline = nil
		}
		if p.Recurrence != nil {
			in.Recurrence = strings.ToLower(strings.TrimSpace(*p.Recurrence))
		}
		if err := validate(in); err != nil {
			return err
		}

		var deadline any
		if in.Deadline != nil {
			deadline = in.Deadline.UTC()
		}
		if err := tx.Model(&Task{}).Where("id = ? AND user_id = ?", id, userID).Updates(map[string]any{
			"title":            in.Title,
			"description":      in.Description,
			"duration_minutes": in.DurationMinutes,
			"priority":         in.Priority,
			"deadline":         deadline,
			"recurrence":       in.Recurrence,
			"updated_at":       s.now(),
		}).Error; err != nil {
			return fmt.Errorf("update task: %w", err)
		}

		if in.Recurrence == "" && t.Recurrence != "" && s.Jobs != nil {
			if err := s.Jobs.CancelPending(tx, userID, jobs.TypeTaskReopen, reopenFor(id)); err != nil {
				return err
			}
		}

		out, err = findTask(tx, userID, id, false)
		if err != nil {
			return err
		}
		return attachLabels(tx, userID, []*Task{out})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes the task and its label links. Its completion history stays
// in the ledger log.
func (s *Service) Delete(ctx context.Context, userID, id uint64) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND user_id = ?", id, userID).Delete(&Task{})
		if res.Error != nil {
			return fmt.Errorf("delete task: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		if err := tx.Where("task_id = ? AND user_id = ?", id, userID).Delete(&TaskLabel{}).Error; err != nil {
			return fmt.Errorf("delete task labels: %w", err)
		}
		if s.Jobs != nil {
			return s.Jobs.CancelPending(tx, userID, jobs.TypeTaskReopen, reopenFor(id))
		}
		return nil
	})
}

// SetCompleted moves a task between Incomplete and Complete and runs the
// matching ledger operation in the same transaction, so a failure rolls back
// both the flag and the stats. Requesting the current state changes nothing.
// A repeated idemKey returns the current state without applying anything;
// reusing it for a different task is ErrIdempotencyConflict.
func (s *Service) SetCompleted(ctx context.Context, userID, id uint64, completed bool, idemKey *string) (*ToggleResult, error) {
	if !s.inflight.acquire(id) {
		return nil, ErrToggleInFlight
	}
	defer s.inflight.release(id)

	now := s.now()
	var res ToggleResult

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if idemKey != nil {
			seen, err := s.Progress.FindByIdempotencyKey(tx, userID, *idemKey)
			if err != nil {
				return err
			}
			if seen != nil {
				return s.replayed(tx, userID, id, seen, &res)
			}
		}

		t, err := findTask(tx, userID, id, true)
		if err != nil {
			return err
		}
		if t.Completed == completed {
			return s.current(tx, userID, id, &res)
		}

		out, err := s.Progress.Record(tx, progress.Toggle{
			UserID:    userID,
			TaskID:    id,
			Completed: completed,
			At:        now,
			IdemKey:   idemKey,
		})
		if errors.Is(err, progress.ErrDuplicateIdempotencyKey) {
			// a concurrent request with the same key committed first
			seen, ferr := s.Progress.FindByIdempotencyKey(tx, userID, *idemKey)
			if ferr != nil {
				return ferr
			}
			if seen == nil {
				return err
			}
			return s.replayed(tx, userID, id, seen, &res)
		}
		if err != nil {
			return err
		}

		updates := map[string]any{
			"completed":  completed,
			"updated_at": now,
		}
		if completed {
			updates["completed_at"] = now
			if t.Recurrence != "" {
				updates["streak"] = nextStreak(t.Streak, t.LastDoneAt, now, t.Recurrence)
				updates["last_done_at"] = now
			}
		} else {
			updates["completed_at"] = nil
			if t.Recurrence != "" {
				updates["streak"] = max(0, t.Streak-1)
			}
		}
		if err := tx.Model(&Task{}).Where("id = ? AND user_id = ?", id, userID).Updates(updates).Error; err != nil {
			return fmt.Errorf("update task completion: %w", err)
		}

		if t.Recurrence != "" && s.Jobs != nil {
			if err := s.Jobs.CancelPending(tx, userID, jobs.TypeTaskReopen, reopenFor(id)); err != nil {
				return err
			}
			if completed {
				if err := s.Jobs.Enqueue(tx, userID, jobs.TypeTaskReopen, jobs.ReopenPayload{TaskID: id}, NextPeriodStart(now, t.Recurrence)); err != nil {
					return err
				}
			}
		}

		updated, err := findTask(tx, userID, id, false)
		if err != nil {
			return err
		}
		if err := attachLabels(tx, userID, []*Task{updated}); err != nil {
			return err
		}

		res = ToggleResult{
			Task:            *updated,
			Stats:           out.Stats,
			NewAchievements: out.Unlocked,
			Changed:         true,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if res.NewAchievements == nil {
		res.NewAchievements = []progress.Achievement{}
	}
	return &res, nil
}

// Reopen starts the next occurrence of a completed recurring task and
// reports whether the task changed. The ledger is not touched: the earlier
// completion stands.
func (s *Service) Reopen(ctx context.Context, userID, id uint64) (bool, error) {
	if !s.inflight.acquire(id) {
		return false, ErrToggleInFlight
	}
	defer s.inflight.release(id)

	reopened := false
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := findTask(tx, userID, id, true)
		if err != nil {
			return err
		}
		if !t.Completed || t.Recurrence == "" {
			return nil
		}
		res := tx.Model(&Task{}).Where("id = ? AND user_id = ? AND completed = ?", id, userID, true).Updates(map[string]any{
			"completed":    false,
			"completed_at": nil,
			"updated_at":   s.now(),
		})
		if res.Error != nil {
			return fmt.Errorf("reopen task: %w", res.Error)
		}
		reopened = res.RowsAffected > 0
		return nil
	})
	if err != nil {
		return false, err
	}
	return reopened, nil
}

// replayed answers a request whose idempotency key was already recorded.
func (s *Service) replayed(tx *gorm.DB, userID, id uint64, seen *progress.CompletionEvent, res *ToggleResult) error {
	if seen.TaskID != id {
		return ErrIdempotencyConflict
	}
	return s.current(tx, userID, id, res)
}

func (s *Service) current(tx *gorm.DB, userID, id uint64, res *ToggleResult) error {
	t, err := findTask(tx, userID, id, false)
	if err != nil {
		return err
	}
	if err := attachLabels(tx, userID, []*Task{t}); err != nil {
		return err
	}
	stats, err := s.Progress.StatsTx(tx, userID)
	if err != nil {
		return err
	}
	*res = ToggleResult{Task: *t, Stats: stats}
	return nil
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func findTask(tx *gorm.DB, userID, id uint64, lock bool) (*Task, error) {
	q := tx
	if lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var t Task
	if err := q.Where("id = ? AND user_id = ?", id, userID).First(&t).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get task: %w", err)
	}
	return &t, nil
}

func validate(in Input) error {
	if in.Title == "" {
		return fmt.Errorf("%w: title required", ErrInvalidTask)
	}
	if len(in.Title) > maxTitleLen {
		return fmt.Errorf("%w: title too long", ErrInvalidTask)
	}
	if in.DurationMinutes < 0 {
		return fmt.Errorf("%w: duration must not be negative", ErrInvalidTask)
	}
	switch in.Priority {
	case PriorityHigh, PriorityMedium, PriorityLow:
	default:
		return fmt.Errorf("%w: unsupported priority %s", ErrInvalidTask, in.Priority)
	}
	if !validRecurrence(in.Recurrence) {
		return fmt.Errorf("%w: unsupported recurrence %s", ErrInvalidTask, in.Recurrence)
	}
	return nil
}

// normalizePriority accepts any casing and defaults to Medium.
func normalizePriority(p string) string {
	p = strings.ToLower(strings.TrimSpace(p))
	switch p {
	case "":
		return PriorityMedium
	case "high":
		return PriorityHigh
	case "medium":
		return PriorityMedium
	case "low":
		return PriorityLow
	}
	return p
}

func reopenFor(taskID uint64) func([]byte) bool {
	return func(payload []byte) bool {
		var p jobs.ReopenPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return false
		}
		return p.TaskID == taskID
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
