package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/fieldline/automation/httpapi"
	"github.com/fieldline/automation/pkg/action"
	"github.com/fieldline/automation/pkg/bus"
	"github.com/fieldline/automation/pkg/core"
	"github.com/fieldline/automation/pkg/engine"
	"github.com/fieldline/automation/pkg/statemachine"
	"github.com/fieldline/automation/pkg/storage"
)

func serveCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the automation engine and HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")
	return cmd
}

func migrateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			if err := store.Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			color.Green("schema up to date: %s", cfg.Database.Path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")
	return cmd
}

func openStore(cfg Config) (*storage.GormStore, error) {
	db, err := gorm.Open(sqlite.Open(cfg.Database.Path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", cfg.Database.Path, err)
	}
	return storage.NewGormStore(db), nil
}

func runServe(ctx context.Context, cfg Config) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log := slog.Default()

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	exec := action.NewExecutor(store,
		action.WithSendTimeout(time.Duration(cfg.Actions.SendTimeoutSeconds)*time.Second),
		action.WithLogger(log),
	)
	eng := engine.New(store, exec, engine.WithLogger(log))
	machine := statemachine.New(store, statemachine.WithLogger(log))

	events := bus.New(bus.WithLogger(log))
	events.Subscribe(func(ctx context.Context, e core.BusinessEvent) {
		eng.HandleEvent(ctx, e)
	})

	sched := engine.NewScheduler(eng,
		engine.WithPollInterval(time.Duration(cfg.Scheduler.PollIntervalSeconds)*time.Second),
		engine.WithBatchSize(cfg.Scheduler.BatchSize),
		engine.WithSchedulerLogger(log),
	)
	go func() {
		if err := sched.Start(ctx); err != nil && ctx.Err() == nil {
			log.Error("scheduler stopped", "error", err)
		}
	}()

	api := httpapi.New(machine, eng, store, httpapi.WithLogger(log))
	srv := &http.Server{
		Addr:    cfg.Listen,
		Handler: api.Handler(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		events.Wait()
	}()

	color.Cyan("automationd listening on %s (db: %s)", cfg.Listen, cfg.Database.Path)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
