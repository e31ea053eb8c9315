package progress

import (
	"context"
	"fmt"

	"gorm.io/gorm/clause"
)

func intp(v int) *int { return &v }

// DefaultCatalog is seeded on startup.
var DefaultCatalog = []Achievement{
	{Code: "first_task", Name: "First Step", Description: "Complete your first task", BadgeIcon: "footprints", RequiredTasks: intp(1)},
	{Code: "tasks_10", Name: "Getting Things Done", Description: "Complete 10 tasks", BadgeIcon: "check-circle", RequiredTasks: intp(10)},
	{Code: "tasks_50", Name: "Productivity Pro", Description: "Complete 50 tasks", BadgeIcon: "rocket", RequiredTasks: intp(50)},
	{Code: "tasks_100", Name: "Task Master", Description: "Complete 100 tasks", BadgeIcon: "trophy", RequiredTasks: intp(100)},
	{Code: "streak_3", Name: "On a Roll", Description: "Reach a 3 task streak", BadgeIcon: "flame", RequiredStreak: intp(3)},
	{Code: "streak_7", Name: "Week Warrior", Description: "Reach a 7 task streak", BadgeIcon: "calendar-check", RequiredStreak: intp(7)},
	{Code: "streak_30", Name: "Unstoppable", Description: "Reach a 30 task streak", BadgeIcon: "zap", RequiredStreak: intp(30)},
}

// SeedCatalog inserts catalog entries missing by code and returns how many
// were added. Existing rows are left untouched.
func (s *Service) SeedCatalog(ctx context.Context, entries []Achievement) (int, error) {
	added := 0
	for _, a := range entries {
		a.ID = 0
		res := s.DB.WithContext(ctx).
			Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "code"}}, DoNothing: true}).
			Create(&a)
		if res.Error != nil {
			return added, fmt.Errorf("seed achievement %s: %w", a.Code, res.Error)
		}
		added += int(res.RowsAffected)
	}
	return added, nil
}
