package task

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrInvalidLabel = errors.New("invalid label")
	ErrLabelExists  = errors.New("label already exists")
)

const (
	defaultLabelColor = "#6B9080"
	maxLabelLen       = 32
)

var colorRe = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

func (s *Service) CreateLabel(ctx context.Context, userID uint64, name, color string) (*Label, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxLabelLen {
		return nil, fmt.Errorf("%w: name must be 1-%d characters", ErrInvalidLabel, maxLabelLen)
	}
	color = strings.TrimSpace(color)
	if color == "" {
		color = defaultLabelColor
	}
	if !colorRe.MatchString(color) {
		return nil, fmt.Errorf("%w: color must be #RRGGBB", ErrInvalidLabel)
	}

	l := Label{UserID: userID, Name: name, Color: strings.ToUpper(color)}
	if err := s.DB.WithContext(ctx).Create(&l).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrLabelExists
		}
		return nil, fmt.Errorf("create label: %w", err)
	}
	return &l, nil
}

func (s *Service) ListLabels(ctx context.Context, userID uint64) ([]Label, error) {
	var out []Label
	if err := s.DB.WithContext(ctx).Where("user_id = ?", userID).Order("name asc").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list labels: %w", err)
	}
	return out, nil
}

func (s *Service) DeleteLabel(ctx context.Context, userID, id uint64) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND user_id = ?", id, userID).Delete(&Label{})
		if res.Error != nil {
			return fmt.Errorf("delete label: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.Where("label_id = ? AND user_id = ?", id, userID).Delete(&TaskLabel{}).Error
	})
}

// AssignLabel links a label to a task; assigning twice is a no-op.
func (s *Service) AssignLabel(ctx context.Context, userID, taskID, labelID uint64) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ownsBoth(tx, userID, taskID, labelID); err != nil {
			return err
		}
		link := TaskLabel{TaskID: taskID, LabelID: labelID, UserID: userID}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&link).Error
	})
}

func (s *Service) UnassignLabel(ctx context.Context, userID, taskID, labelID uint64) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ownsBoth(tx, userID, taskID, labelID); err != nil {
			return err
		}
		return tx.Where("task_id = ? AND label_id = ? AND user_id = ?", taskID, labelID, userID).Delete(&TaskLabel{}).Error
	})
}

func ownsBoth(tx *gorm.DB, userID, taskID, labelID uint64) error {
	if _, err := findTask(tx, userID, taskID, false); err != nil {
		return err
	}
	var n int64
	if err := tx.Model(&Label{}).Where("id = ? AND user_id = ?", labelID, userID).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func attachLabels(tx *gorm.DB, userID uint64, tasks []*Task) error {
	if len(tasks) == 0 {
		return nil
	}
	ids := make([]uint64, 0, len(tasks))
	byID := make(map[uint64]*Task, len(tasks))
	for _, t := range tasks {
		t.Labels = []Label{}
		ids = append(ids, t.ID)
		byID[t.ID] = t
	}

	type row struct {
		TaskID uint64
		Label
	}
	var rows []row
	if err := tx.Table("task_labels").
		Select("task_labels.task_id, labels.id, labels.user_id, labels.name, labels.color, labels.created_at").
		Joins("JOIN labels ON labels.id = task_labels.label_id").
		Where("task_labels.user_id = ? AND task_labels.task_id IN ?", userID, ids).
		Order("labels.name asc").
		Scan(&rows).Error; err != nil {
		return fmt.Errorf("load task labels: %w", err)
	}
	for _, r := range rows {
		if t, ok := byID[r.TaskID]; ok {
			t.Labels = append(t.Labels, r.Label)
		}
	}
	return nil
}
