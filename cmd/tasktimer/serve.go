package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"tasktimer/internal/auth"
	"tasktimer/internal/config"
	"tasktimer/internal/db"
	httpx "tasktimer/internal/http"
	mw "tasktimer/internal/http/middleware"
	"tasktimer/internal/jobs"
	"tasktimer/internal/metrics"
	"tasktimer/internal/notify"
	"tasktimer/internal/progress"
	"tasktimer/internal/task"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, job worker and notification listener",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.RequireJWT(); err != nil {
		return err
	}

	gdb, err := db.Connect(cfg.DatabaseURL, cfg.LogSQL)
	if err != nil {
		return err
	}
	if err := db.AutoMigrateAndIndexes(gdb); err != nil {
		return err
	}

	metrics.Init()

	jobsRepo := &jobs.Repo{DB: gdb}
	progressSvc := &progress.Service{DB: gdb, Jobs: jobsRepo}
	added, err := progressSvc.SeedCatalog(parent, progress.DefaultCatalog)
	if err != nil {
		return err
	}
	if added > 0 {
		log.Printf("[SEED] added %d achievements\n", added)
	}
	taskSvc := &task.Service{DB: gdb, Progress: progressSvc, Jobs: jobsRepo}

	hub := notify.NewHub()
	usePG := db.IsPostgres(gdb)
	pub := &notify.Publisher{DB: gdb, Hub: hub, UseNotify: usePG}

	worker := &jobs.Worker{
		ID:       "worker-" + uuid.NewString(),
		Repo:     jobsRepo,
		Handlers: jobHandlers(taskSvc, pub),
		Interval: cfg.WorkerPollInterval,
	}

	limiter := mw.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	jwtSvc := auth.NewJWT(cfg.JWTSecret)
	r := httpx.NewRouter(cfg, httpx.Deps{
		Users:    &auth.Users{DB: gdb},
		JWT:      jwtSvc,
		Tasks:    taskSvc,
		Progress: progressSvc,
		Hub:      hub,
		Limiter:  limiter,
	})

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	srv := httpx.NewServer(cfg.HTTPAddr, r, gctx)

	g.Go(func() error {
		log.Printf("listening on %s\n", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return worker.Run(gctx)
	})
	g.Go(func() error {
		limiter.Cleanup(gctx, 3*time.Minute)
		return nil
	})
	if usePG {
		ln := &notify.Listener{DSN: cfg.DatabaseURL, Hub: hub}
		g.Go(func() error {
			return ln.Run(gctx)
		})
	}

	return g.Wait()
}
