package main

import (
	"context"
	"fmt"
	"time"

	"tasktimer/internal/config"
	"tasktimer/internal/db"
	"tasktimer/internal/jobs"
	"tasktimer/internal/progress"

	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := open(); err != nil {
				return err
			}
			fmt.Println("schema up to date")
			return nil
		},
	}
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Insert the default achievement catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			gdb, err := open()
			if err != nil {
				return err
			}
			svc := &progress.Service{DB: gdb, Jobs: &jobs.Repo{DB: gdb}}
			n, err := svc.SeedCatalog(cmdContext(cmd), progress.DefaultCatalog)
			if err != nil {
				return err
			}
			fmt.Printf("added %d achievements\n", n)
			return nil
		},
	}
}

func rebuildStatsCmd() *cobra.Command {
	var userID uint64

	cmd := &cobra.Command{
		Use:   "rebuild-stats",
		Short: "Recompute user stats from the completion log",
		RunE: func(cmd *cobra.Command, args []string) error {
			gdb, err := open()
			if err != nil {
				return err
			}
			svc := &progress.Service{DB: gdb, Jobs: &jobs.Repo{DB: gdb}}

			ids := []uint64{userID}
			if userID == 0 {
				if ids, err = svc.UserIDs(cmdContext(cmd)); err != nil {
					return err
				}
			}

			for _, id := range ids {
				out, err := svc.Rebuild(cmdContext(cmd), id, time.Now())
				if err != nil {
					return fmt.Errorf("user %d: %w", id, err)
				}
				fmt.Printf("user=%d total=%d streak=%d longest=%d points=%d unlocked=%d\n",
					id, out.Stats.TotalTasksCompleted, out.Stats.CurrentStreak,
					out.Stats.LongestStreak, out.Stats.Points, len(out.Unlocked))
			}
			return nil
		},
	}

	cmd.Flags().Uint64Var(&userID, "user", 0, "Only rebuild this user (default all)")
	return cmd
}

func open() (*gorm.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	gdb, err := db.Connect(cfg.DatabaseURL, cfg.LogSQL)
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrateAndIndexes(gdb); err != nil {
		return nil, err
	}
	return gdb, nil
}

func cmdContext(cmd *cobra.Command) context.Context {
	if c := cmd.Context(); c != nil {
		return c
	}
	return context.Background()
}
