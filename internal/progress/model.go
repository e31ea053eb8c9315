package progress

import (
	"time"

	"tasktimer/internal/ledger"
)

// UserStats is the per-user snapshot maintained by the ledger.
type UserStats struct {
	ID                  uint64     `gorm:"primaryKey" json:"-"`
	UserID              uint64     `gorm:"uniqueIndex;not null" json:"user_id"`
	TotalTasksCompleted int        `gorm:"not null;default:0" json:"total_tasks_completed"`
	CurrentStreak       int        `gorm:"not null;default:0" json:"current_streak"`
	LongestStreak       int        `gorm:"not null;default:0" json:"longest_streak"`
	Points              int        `gorm:"not null;default:0" json:"points"`
	LastCompletedAt     *time.Time `json:"last_completed_at"`
	UpdatedAt           time.Time  `gorm:"not null" json:"updated_at"`
}

func (u UserStats) Ledger() ledger.Stats {
	return ledger.Stats{
		TotalTasksCompleted: u.TotalTasksCompleted,
		CurrentStreak:       u.CurrentStreak,
		LongestStreak:       u.LongestStreak,
		Points:              u.Points,
		LastCompletedAt:     u.LastCompletedAt,
	}
}

func (u *UserStats) apply(s ledger.Stats) {
	u.TotalTasksCompleted = s.TotalTasksCompleted
	u.CurrentStreak = s.CurrentStreak
	u.LongestStreak = s.LongestStreak
	u.Points = s.Points
	u.LastCompletedAt = s.LastCompletedAt
}

// Achievement is a catalog row. Code keeps seeding idempotent.
type Achievement struct {
	ID             uint64    `gorm:"primaryKey" json:"id"`
	Code           string    `gorm:"uniqueIndex;not null" json:"code"`
	Name           string    `gorm:"not null" json:"name"`
	Description    string    `gorm:"not null;default:''" json:"description"`
	BadgeIcon      string    `gorm:"not null;default:''" json:"badge_icon"`
	RequiredTasks  *int      `json:"required_tasks,omitempty"`
	RequiredStreak *int      `json:"required_streak,omitempty"`
	CreatedAt      time.Time `gorm:"not null" json:"-"`
}

func (a Achievement) Ledger() ledger.Achievement {
	return ledger.Achievement{
		ID:             a.ID,
		Name:           a.Name,
		Description:    a.Description,
		BadgeIcon:      a.BadgeIcon,
		RequiredTasks:  a.RequiredTasks,
		RequiredStreak: a.RequiredStreak,
	}
}

// EarnedAchievement is created once per (user, achievement) and never changed.
type EarnedAchievement struct {
	ID            uint64    `gorm:"primaryKey"`
	UserID        uint64    `gorm:"not null;uniqueIndex:uq_earned_user_achievement"`
	AchievementID uint64    `gorm:"not null;uniqueIndex:uq_earned_user_achievement"`
	EarnedAt      time.Time `gorm:"not null"`
}

// CompletionEvent is append-only.
type CompletionEvent struct {
	ID             uint64    `gorm:"primaryKey" json:"id"`
	UserID         uint64    `gorm:"index;not null" json:"user_id"`
	TaskID         uint64    `gorm:"index;not null" json:"task_id"`
	Type           string    `gorm:"not null" json:"type"`
	IdempotencyKey *string   `json:"idempotency_key,omitempty"`
	OccurredAt     time.Time `gorm:"index;not null" json:"occurred_at"`
}

// AchievementStatus is a catalog entry as seen by one user.
type AchievementStatus struct {
	Achievement
	Earned   bool       `json:"earned"`
	EarnedAt *time.Time `json:"earned_at,omitempty"`
}
