package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gemihub/gemiflow/internal/engine"
	"github.com/gemihub/gemiflow/internal/scheduler"
	"github.com/gemihub/gemiflow/internal/server"
	"github.com/gemihub/gemiflow/internal/store"
	"github.com/gemihub/gemiflow/internal/streaming"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}
}

func serve(ctx context.Context) error {
	cfg := loadConfig()
	logger := newLogger(cfg.LogLevel)

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	st, err := store.NewLibSQLStore("file:" + cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := streaming.NewMemoryHub()
	broker := engine.NewPromptBroker()
	executions := engine.NewExecutionStore(10*time.Minute, 24*time.Hour)
	executions.StartJanitor(runCtx, time.Minute)

	svcs := buildServices(cfg)
	interp := engine.NewInterpreter(buildRegistry(), hub, broker, svcs, st, st, logger, engine.Config{
		MaxLoopIterations: cfg.MaxLoopIterations,
		MaxWorkflowDepth:  cfg.MaxWorkflowDepth,
	})
	launcher := engine.NewLauncher(interp, executions, st)

	var sched *scheduler.Scheduler
	if cfg.Scheduler {
		sched = scheduler.New(st, launcher, logger)
		if err := sched.Start(runCtx); err != nil {
			return err
		}
		defer sched.Stop()
	}

	srv := server.New(cfg.ListenAddr, server.Deps{
		Store:      st,
		Launcher:   launcher,
		Executions: executions,
		Broker:     broker,
		Hub:        hub,
		Scheduler:  sched,
		Logger:     logger,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-runCtx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
