package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"tasktimer/internal/jobs"
	"tasktimer/internal/notify"
	"tasktimer/internal/task"
)

func jobHandlers(tasks *task.Service, pub *notify.Publisher) map[string]jobs.Handler {
	return map[string]jobs.Handler{
		jobs.TypeAchievementNotify: func(ctx context.Context, job *jobs.Job) error {
			var p jobs.AchievementPayload
			if err := json.Unmarshal(job.Payload, &p); err != nil {
				return fmt.Errorf("%w: bad payload: %v", jobs.ErrPermanent, err)
			}
			return pub.Publish(ctx, notify.Achievement(job.UserID, p))
		},

		jobs.TypeTaskReopen: func(ctx context.Context, job *jobs.Job) error {
			var p jobs.ReopenPayload
			if err := json.Unmarshal(job.Payload, &p); err != nil {
				return fmt.Errorf("%w: bad payload: %v", jobs.ErrPermanent, err)
			}

			reopened, err := tasks.Reopen(ctx, job.UserID, p.TaskID)
			if errors.Is(err, task.ErrNotFound) {
				return fmt.Errorf("%w: task %d is gone", jobs.ErrPermanent, p.TaskID)
			}
			if err != nil || !reopened {
				return err
			}

			t, err := tasks.Get(ctx, job.UserID, p.TaskID)
			if err != nil {
				return err
			}
			return pub.Publish(ctx, notify.TaskReopened(job.UserID, t.ID, t.Title, t.UpdatedAt))
		},
	}
}
