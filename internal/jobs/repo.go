package jobs

import (
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultMaxAttempts = 8
	stuckAfter         = 5 * time.Minute
)

type Repo struct {
	DB *gorm.DB
}

// Enqueue inserts a pending job using tx, so it commits together with the
// change that caused it. A nil tx uses the repo's own handle.
func (r *Repo) Enqueue(tx *gorm.DB, userID uint64, typ string, payload any, runAt time.Time) error {
	if tx == nil {
		tx = r.DB
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	j := Job{
		UserID:      userID,
		Type:        typ,
		Payload:     b,
		RunAt:       runAt.UTC(),
		Status:      StatusPending,
		MaxAttempts: defaultMaxAttempts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return tx.Create(&j).Error
}

// Claim one due job. On Postgres the row is taken with FOR UPDATE SKIP LOCKED
// so concurrent workers never double-claim; SQLite ignores the locking clause.
func (r *Repo) Claim(workerID string, now time.Time) (*Job, error) {
	now = now.UTC()
	var job Job
	err := r.DB.Transaction(func(tx *gorm.DB) error {
		// requeue stuck RUNNING jobs
		if err := tx.Model(&Job{}).
			Where("status = ? AND locked_at IS NOT NULL AND locked_at < ?", StatusRunning, now.Add(-stuckAfter)).
			Updates(map[string]any{
				"status":     StatusPending,
				"locked_by":  nil,
				"locked_at":  nil,
				"updated_at": now,
			}).Error; err != nil {
			return err
		}

		err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ? AND run_at <= ?", StatusPending, now).
			Order("run_at asc").
			Order("id asc").
			First(&job).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			job = Job{}
			return nil
		}
		if err != nil {
			return err
		}

		if err := tx.Model(&Job{}).Where("id = ?", job.ID).Updates(map[string]any{
			"status":     StatusRunning,
			"locked_by":  workerID,
			"locked_at":  now,
			"updated_at": now,
		}).Error; err != nil {
			return err
		}
		job.Status = StatusRunning
		job.LockedBy = &workerID
		job.LockedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	if job.ID == 0 {
		return nil, nil
	}
	return &job, nil
}

func (r *Repo) MarkDone(id uint64) error {
	return r.DB.Model(&Job{}).Where("id = ?", id).Updates(map[string]any{
		"status":     StatusDone,
		"updated_at": time.Now().UTC(),
	}).Error
}

func (r *Repo) MarkFailed(id uint64, errMsg string) error {
	return r.DB.Model(&Job{}).Where("id = ?", id).Updates(map[string]any{
		"status":     StatusFailed,
		"last_error": errMsg,
		"updated_at": time.Now().UTC(),
	}).Error
}

func (r *Repo) RetryLater(id uint64, attempts int, runAt time.Time, errMsg string) error {
	return r.DB.Model(&Job{}).Where("id = ?", id).Updates(map[string]any{
		"status":     StatusPending,
		"attempts":   attempts,
		"run_at":     runAt.UTC(),
		"locked_by":  nil,
		"locked_at":  nil,
		"last_error": errMsg,
		"updated_at": time.Now().UTC(),
	}).Error
}

// CancelPending deletes pending jobs of one type whose payload matches.
func (r *Repo) CancelPending(tx *gorm.DB, userID uint64, typ string, match func(payload []byte) bool) error {
	if tx == nil {
		tx = r.DB
	}
	var pending []Job
	if err := tx.Where("user_id = ? AND type = ? AND status = ?", userID, typ, StatusPending).Find(&pending).Error; err != nil {
		return err
	}
	var ids []uint64
	for _, j := range pending {
		if match(j.Payload) {
			ids = append(ids, j.ID)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	return tx.Where("id IN ?", ids).Delete(&Job{}).Error
}
