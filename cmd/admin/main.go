package main

import (
	"context"
	"log"
	"os"

	"go.uber.org/zap"

	"deptattendance/internal/attendance"
	"deptattendance/internal/config"
	"deptattendance/internal/logging"
	"deptattendance/internal/store"
)

func main() {
	cfg := config.Load()

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("building logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()
	kv, err := store.Open(ctx, cfg.StoreBackend, store.Options{
		DatabaseURL: cfg.DatabaseURL,
		SQLitePath:  cfg.SQLitePath,
		RedisAddr:   cfg.RedisAddr,
	})
	if err != nil {
		logger.Fatal("opening store", zap.String("backend", cfg.StoreBackend), zap.Error(err))
	}
	defer func() { _ = kv.Close() }()

	cli := &commandLine{
		store: attendance.NewStore(attendance.NewRepository(kv, cfg.DataKey)),
		out:   os.Stdout,
	}
	if err := cli.run(ctx, os.Args); err != nil {
		if err != errHelp {
			logger.Error("command failed", zap.Error(err))
		}
		_ = kv.Close()
		os.Exit(1)
	}
}
