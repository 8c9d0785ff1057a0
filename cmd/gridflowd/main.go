package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"gridflow/internal/config"
	"gridflow/internal/daemon"
	"gridflow/internal/ipc"
	"gridflow/internal/jobs"
	"gridflow/internal/logging"
	"gridflow/internal/notifications"
	"gridflow/internal/queue"
	"gridflow/internal/taskrunner"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load("")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("prepare directories: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	store, err := queue.Open(cfg)
	if err != nil {
		log.Fatalf("open queue store: %v", err)
	}

	notifier := notifications.NewService(cfg)
	manager := jobs.NewManager(cfg, store, notifier, logger)
	executor := taskrunner.New(cfg, logger)
	pool := daemon.NewPool(cfg, store, executor, manager, notifier, logger)

	sup, err := daemon.NewSupervisor(cfg, store, pool, manager, notifier, logger)
	if err != nil {
		log.Fatalf("create supervisor: %v", err)
	}
	defer sup.Close()

	socketPath := buildSocketPath(cfg)
	ipcServer, err := ipc.NewServer(ctx, socketPath, sup, logger)
	if err != nil {
		logger.Error("start IPC server failed", logging.Error(err))
		return
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if err := sup.Start(ctx); err != nil {
		logger.Error("daemon start failed", logging.Error(err))
		return
	}

	<-ctx.Done()
	logger.Info("gridflowd shutting down")
}
