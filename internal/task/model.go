package task

import "time"

const (
	PriorityHigh   = "High"
	PriorityMedium = "Medium"
	PriorityLow    = "Low"
)

const (
	RecurrenceDaily   = "daily"
	RecurrenceWeekly  = "weekly"
	RecurrenceMonthly = "monthly"
)

type Task struct {
	ID              uint64     `gorm:"primaryKey" json:"id"`
	UserID          uint64     `gorm:"index;not null" json:"user_id"`
	Title           string     `gorm:"not null" json:"title"`
	Description     string     `gorm:"type:text;not null;default:''" json:"description"`
	DurationMinutes int        `gorm:"not null;default:0" json:"duration_minutes"`
	Priority        string     `gorm:"not null;default:'Medium'" json:"priority"`
	Deadline        *time.Time `json:"deadline"`
	Completed       bool       `gorm:"not null;default:false" json:"completed"`
	CompletedAt     *time.Time `json:"completed_at"`

	// Recurrence is empty for one-off tasks.
	Recurrence string `gorm:"not null;default:''" json:"recurrence,omitempty"`
	// Streak counts consecutive periods a recurring task was done in.
	Streak     int        `gorm:"not null;default:0" json:"streak"`
	LastDoneAt *time.Time `json:"-"`

	Labels []Label `gorm:"-" json:"labels"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

type Label struct {
	ID        uint64    `gorm:"primaryKey" json:"id"`
	UserID    uint64    `gorm:"index;not null" json:"-"`
	Name      string    `gorm:"not null" json:"name"`
	Color     string    `gorm:"not null;default:'#6B9080'" json:"color"`
	CreatedAt time.Time `gorm:"not null" json:"-"`
}

// TaskLabel is the join table between tasks and labels.
type TaskLabel struct {
	TaskID  uint64 `gorm:"primaryKey"`
	LabelID uint64 `gorm:"primaryKey;index"`
	UserID  uint64 `gorm:"index;not null"`
}
