package db

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"tasktimer/internal/auth"
	"tasktimer/internal/jobs"
	"tasktimer/internal/progress"
	"tasktimer/internal/task"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const sqlitePrefix = "sqlite://"

// Connect opens Postgres, or SQLite when dsn starts with sqlite://.
func Connect(dsn string, logSQL bool) (*gorm.DB, error) {
	level := logger.Silent
	if logSQL {
		level = logger.Info
	}
	cfg := &gorm.Config{
		TranslateError: true,
		Logger: logger.New(log.New(os.Stdout, "", log.LstdFlags), logger.Config{
			SlowThreshold:             500 * time.Millisecond,
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
		}),
		NowFunc: func() time.Time { return time.Now().UTC() },
	}

	if strings.HasPrefix(dsn, sqlitePrefix) {
		gdb, err := gorm.Open(sqlite.Open(strings.TrimPrefix(dsn, sqlitePrefix)), cfg)
		if err != nil {
			return nil, err
		}
		sqlDB, err := gdb.DB()
		if err != nil {
			return nil, err
		}
		// single writer; also keeps in-memory databases alive
		sqlDB.SetMaxOpenConns(1)
		return gdb, nil
	}

	gdb, err := gorm.Open(postgres.Open(dsn), cfg)
	if err != nil {
		return nil, err
	}
	return gdb, nil
}

func IsPostgres(gdb *gorm.DB) bool {
	return gdb.Dialector.Name() == "postgres"
}

func AutoMigrateAndIndexes(gdb *gorm.DB) error {
	// Tables
	if err := gdb.AutoMigrate(
		&auth.User{},
		&task.Task{},
		&task.Label{},
		&task.TaskLabel{},
		&progress.UserStats{},
		&progress.Achievement{},
		&progress.EarnedAchievement{},
		&progress.CompletionEvent{},
		&jobs.Job{},
	); err != nil {
		return err
	}

	// Completion idempotency: unique per user + idempotency_key where not null
	stmts := []string{
		`create unique index if not exists uq_completion_events_user_idem
on completion_events(user_id, idempotency_key)
where idempotency_key is not null;`,
		`create unique index if not exists uq_labels_user_name on labels(user_id, name);`,
		`create index if not exists idx_completion_events_user_at on completion_events(user_id, occurred_at);`,
		`create index if not exists idx_tasks_user_updated on tasks(user_id, updated_at);`,
		`create index if not exists idx_jobs_due on jobs(status, run_at);`,
		`create index if not exists idx_jobs_lock on jobs(status, locked_at);`,
	}
	if IsPostgres(gdb) {
		stmts = append(stmts,
			`create index if not exists idx_tasks_fts on tasks using gin (to_tsvector('simple', title || ' ' || description));`,
		)
	}
	for _, s := range stmts {
		if err := gdb.Exec(s).Error; err != nil {
			return fmt.Errorf("index exec failed: %w (sql=%s)", err, s)
		}
	}

	return nil
}
