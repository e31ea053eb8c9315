package progress

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tasktimer/internal/jobs"
	"tasktimer/internal/ledger"
	"tasktimer/internal/metrics"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrDuplicateIdempotencyKey reports that another transition already claimed
// the idempotency key. Record leaves tx usable when it returns it.
var ErrDuplicateIdempotencyKey = errors.New("idempotency key already recorded")

type Service struct {
	DB   *gorm.DB
	Jobs *jobs.Repo
}

// Toggle is one completion flag transition of a task.
type Toggle struct {
	UserID    uint64
	TaskID    uint64
	Completed bool
	At        time.Time
	IdemKey   *string
}

type Outcome struct {
	Stats    UserStats     `json:"stats"`
	Unlocked []Achievement `json:"new_achievements"`
}

// Record applies one transition to the user's stats inside tx: the event is
// appended, the stats row is rewritten in a single update and newly reached
// achievements are awarded with one notification job each.
func (s *Service) Record(tx *gorm.DB, in Toggle) (Outcome, error) {
	at := in.At.UTC()

	row, err := lockStats(tx, in.UserID, at)
	if err != nil {
		return Outcome{}, fmt.Errorf("load stats: %w", err)
	}

	typ := ledger.EventUncompleted
	next := ledger.ApplyUncompletion(row.Ledger())
	if in.Completed {
		typ = ledger.EventCompleted
		next = ledger.ApplyCompletion(row.Ledger(), at)
	}

	ev := CompletionEvent{
		UserID:         in.UserID,
		TaskID:         in.TaskID,
		Type:           string(typ),
		IdempotencyKey: in.IdemKey,
		OccurredAt:     at,
	}
	if err := appendEvent(tx, &ev); err != nil {
		return Outcome{}, err
	}

	row.apply(next)
	if err := saveStats(tx, &row, at); err != nil {
		return Outcome{}, err
	}
	metrics.CompletionsTotal.WithLabelValues(string(typ)).Inc()

	unlocked, err := s.award(tx, row, at)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Stats: row, Unlocked: unlocked}, nil
}

// FindByIdempotencyKey returns the event recorded under key, or nil.
func (s *Service) FindByIdempotencyKey(tx *gorm.DB, userID uint64, key string) (*CompletionEvent, error) {
	var ev CompletionEvent
	err := tx.Where("user_id = ? AND idempotency_key = ?", userID, key).First(&ev).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

// Stats returns the user's snapshot, or a zero record if none exists yet.
func (s *Service) Stats(ctx context.Context, userID uint64) (UserStats, error) {
	return s.StatsTx(s.DB.WithContext(ctx), userID)
}

func (s *Service) StatsTx(tx *gorm.DB, userID uint64) (UserStats, error) {
	var row UserStats
	err := tx.Where("user_id = ?", userID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return UserStats{UserID: userID}, nil
	}
	if err != nil {
		return UserStats{}, fmt.Errorf("get stats: %w", err)
	}
	return row, nil
}

// Achievements lists the catalog with the user's earned status.
func (s *Service) Achievements(ctx context.Context, userID uint64) ([]AchievementStatus, error) {
	gdb := s.DB.WithContext(ctx)

	var catalog []Achievement
	if err := gdb.Order("id asc").Find(&catalog).Error; err != nil {
		return nil, fmt.Errorf("list achievements: %w", err)
	}

	var earned []EarnedAchievement
	if err := gdb.Where("user_id = ?", userID).Find(&earned).Error; err != nil {
		return nil, fmt.Errorf("list earned achievements: %w", err)
	}
	at := make(map[uint64]time.Time, len(earned))
	for _, e := range earned {
		at[e.AchievementID] = e.EarnedAt
	}

	out := make([]AchievementStatus, 0, len(catalog))
	for _, a := range catalog {
		st := AchievementStatus{Achievement: a}
		if t, ok := at[a.ID]; ok {
			st.Earned = true
			st.EarnedAt = &t
		}
		out = append(out, st)
	}
	return out, nil
}

// Events returns the user's completion log from since onwards, oldest first.
func (s *Service) Events(ctx context.Context, userID uint64, since time.Time) ([]CompletionEvent, error) {
	var evs []CompletionEvent
	if err := s.DB.WithContext(ctx).
		Where("user_id = ? AND occurred_at >= ?", userID, since.UTC()).
		Order("occurred_at asc").Order("id asc").
		Find(&evs).Error; err != nil {
		return nil, fmt.Errorf("list completion events: %w", err)
	}
	return evs, nil
}

// Rebuild recomputes the snapshot by replaying the whole completion log.
// Earned achievements are kept; any newly reached ones are awarded.
func (s *Service) Rebuild(ctx context.Context, userID uint64, now time.Time) (Outcome, error) {
	now = now.UTC()
	var out Outcome
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := lockStats(tx, userID, now)
		if err != nil {
			return err
		}

		var evs []CompletionEvent
		if err := tx.Where("user_id = ?", userID).Order("id asc").Find(&evs).Error; err != nil {
			return err
		}
		history := make([]ledger.Event, 0, len(evs))
		for _, e := range evs {
			history = append(history, ledger.Event{Type: ledger.EventType(e.Type), At: e.OccurredAt})
		}

		row.apply(ledger.Replay(history))
		if err := saveStats(tx, &row, now); err != nil {
			return err
		}

		unlocked, err := s.award(tx, row, now)
		if err != nil {
			return err
		}
		out = Outcome{Stats: row, Unlocked: unlocked}
		return nil
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("rebuild stats: %w", err)
	}
	return out, nil
}

// UserIDs returns every user with a completion log, for bulk rebuilds.
func (s *Service) UserIDs(ctx context.Context) ([]uint64, error) {
	var ids []uint64
	err := s.DB.WithContext(ctx).Model(&CompletionEvent{}).Distinct("user_id").Order("user_id asc").Pluck("user_id", &ids).Error
	return ids, err
}

func (s *Service) award(tx *gorm.DB, row UserStats, now time.Time) ([]Achievement, error) {
	var candidates []Achievement
	if err := tx.Where(
		"(required_tasks IS NOT NULL AND required_tasks <= ?) OR (required_streak IS NOT NULL AND required_streak <= ?)",
		row.TotalTasksCompleted, row.CurrentStreak,
	).Order("id asc").Find(&candidates).Error; err != nil {
		return nil, fmt.Errorf("load achievement catalog: %w", err)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	var earnedIDs []uint64
	if err := tx.Model(&EarnedAchievement{}).Where("user_id = ?", row.UserID).Pluck("achievement_id", &earnedIDs).Error; err != nil {
		return nil, fmt.Errorf("load earned achievements: %w", err)
	}
	earned := make(map[uint64]bool, len(earnedIDs))
	for _, id := range earnedIDs {
		earned[id] = true
	}

	catalog := make([]ledger.Achievement, 0, len(candidates))
	byID := make(map[uint64]Achievement, len(candidates))
	for _, a := range candidates {
		catalog = append(catalog, a.Ledger())
		byID[a.ID] = a
	}

	var unlocked []Achievement
	for _, id := range ledger.CheckAchievements(row.Ledger(), catalog, earned) {
		rec := EarnedAchievement{UserID: row.UserID, AchievementID: id, EarnedAt: now}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rec)
		if res.Error != nil {
			return nil, fmt.Errorf("insert earned achievement: %w", res.Error)
		}
		// lost a race with another session
		if res.RowsAffected == 0 {
			continue
		}

		a := byID[id]
		if s.Jobs != nil {
			if err := s.Jobs.Enqueue(tx, row.UserID, jobs.TypeAchievementNotify, jobs.AchievementPayload{
				AchievementID: a.ID,
				Name:          a.Name,
				Description:   a.Description,
				BadgeIcon:     a.BadgeIcon,
				EarnedAt:      now,
			}, now); err != nil {
				return nil, fmt.Errorf("enqueue achievement notification: %w", err)
			}
		}
		metrics.AchievementsUnlocked.Inc()
		unlocked = append(unlocked, a)
	}
	return unlocked, nil
}

// appendEvent inserts ev. A keyed insert runs under a savepoint so a
// duplicate key can be rolled back without aborting tx.
func appendEvent(tx *gorm.DB, ev *CompletionEvent) error {
	if ev.IdempotencyKey == nil {
		if err := tx.Create(ev).Error; err != nil {
			return fmt.Errorf("append completion event: %w", err)
		}
		return nil
	}

	const sp = "completion_event"
	if err := tx.SavePoint(sp).Error; err != nil {
		return fmt.Errorf("savepoint: %w", err)
	}
	err := tx.Create(ev).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		if rerr := tx.RollbackTo(sp).Error; rerr != nil {
			return fmt.Errorf("rollback to savepoint: %w", rerr)
		}
		return ErrDuplicateIdempotencyKey
	}
	if err != nil {
		return fmt.Errorf("append completion event: %w", err)
	}
	return nil
}

func lockStats(tx *gorm.DB, userID uint64, now time.Time) (UserStats, error) {
	var row UserStats
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("user_id = ?", userID).First(&row).Error
	if err == nil {
		return row, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return row, err
	}

	row = UserStats{UserID: userID, UpdatedAt: now}
	if err := tx.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).Create(&row).Error; err != nil {
		return row, err
	}

	// re-read under lock; a concurrent first completion may have inserted it
	row = UserStats{}
	err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("user_id = ?", userID).First(&row).Error
	return row, err
}

func saveStats(tx *gorm.DB, row *UserStats, now time.Time) error {
	row.UpdatedAt = now
	var last any
	if row.LastCompletedAt != nil {
		last = row.LastCompletedAt.UTC()
	}
	if err := tx.Model(&UserStats{}).Where("id = ?", row.ID).Updates(map[string]any{
		"total_tasks_completed": row.TotalTasksCompleted,
		"current_streak":        row.CurrentStreak,
		"longest_streak":        row.LongestStreak,
		"points":                row.Points,
		"last_completed_at":     last,
		"updated_at":            now,
	}).Error; err != nil {
		return fmt.Errorf("update stats: %w", err)
	}
	return nil
}
