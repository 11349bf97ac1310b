package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"ArchiveKeeper/internal/cli/bootstrap"
	"ArchiveKeeper/internal/cli/commands"
	"ArchiveKeeper/internal/config"
)

func main() {
	cfg := config.NewConfig()

	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	sugar := logger.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	code := commands.Dispatch(ctx, func() (*bootstrap.App, func() error, error) {
		return bootstrap.Open(cfg, sugar)
	}, flag.Args())
	stop()
	os.Exit(code)
}
