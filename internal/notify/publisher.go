package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"tasktimer/internal/jobs"

	"gorm.io/gorm"
)

const DefaultChannel = "tasktimer_notify"

// Publisher sends notifications through Postgres NOTIFY when UseNotify is
// set, so every instance's Listener relays them, and straight into the local
// hub otherwise.
type Publisher struct {
	DB        *gorm.DB
	Hub       *Hub
	Channel   string
	UseNotify bool
}

func (p *Publisher) Publish(ctx context.Context, n Notification) error {
	if !p.UseNotify {
		p.Hub.Publish(n)
		return nil
	}

	b, err := json.Marshal(n)
	if err != nil {
		return err
	}
	if err := p.DB.WithContext(ctx).Exec("select pg_notify(?, ?)", p.channel(), string(b)).Error; err != nil {
		return fmt.Errorf("pg_notify: %w", err)
	}
	return nil
}

func (p *Publisher) channel() string {
	if p.Channel == "" {
		return DefaultChannel
	}
	return p.Channel
}

// Achievement builds the notification for an unlocked achievement.
func Achievement(userID uint64, a jobs.AchievementPayload) Notification {
	data, _ := json.Marshal(a)
	return Notification{
		UserID: userID,
		Kind:   KindAchievementUnlocked,
		Title:  "Achievement unlocked: " + a.Name,
		Body:   a.Description,
		Data:   data,
		At:     a.EarnedAt,
	}
}

// TaskReopened builds the notification for a recurring task's new occurrence.
func TaskReopened(userID, taskID uint64, title string, at time.Time) Notification {
	data, _ := json.Marshal(map[string]any{"task_id": taskID})
	return Notification{
		UserID: userID,
		Kind:   KindTaskReopened,
		Title:  "Task is due again",
		Body:   title,
		Data:   data,
		At:     at,
	}
}
