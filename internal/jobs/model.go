package jobs

import "time"

const (
	TypeAchievementNotify = "ACHIEVEMENT_NOTIFY"
	TypeTaskReopen        = "TASK_REOPEN"
)

const (
	StatusPending = "PENDING"
	StatusRunning = "RUNNING"
	StatusDone    = "DONE"
	StatusFailed  = "FAILED"
)

type Job struct {
	ID     uint64 `gorm:"primaryKey"`
	UserID uint64 `gorm:"index;not null"`

	Type    string `gorm:"type:text;not null"` // ACHIEVEMENT_NOTIFY / TASK_REOPEN
	Payload []byte `gorm:"type:jsonb;not null"`

	RunAt  time.Time `gorm:"index;not null"`
	Status string    `gorm:"index;not null;default:'PENDING'"` // PENDING/RUNNING/DONE/FAILED

	Attempts    int `gorm:"not null;default:0"`
	MaxAttempts int `gorm:"not null;default:8"`

	LockedBy *string `gorm:"type:text"`
	LockedAt *time.Time

	LastError *string `gorm:"type:text"`

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// AchievementPayload is carried by ACHIEVEMENT_NOTIFY jobs.
type AchievementPayload struct {
	AchievementID uint64    `json:"achievement_id"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	BadgeIcon     string    `json:"badge_icon"`
	EarnedAt      time.Time `json:"earned_at"`
}

// ReopenPayload is carried by TASK_REOPEN jobs.
type ReopenPayload struct {
	TaskID uint64 `json:"task_id"`
}
