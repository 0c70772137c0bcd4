// Command gridctl is a terminal client for the salesgrid server.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/okian/salesgrid/internal/cli"
	"github.com/okian/salesgrid/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	level := os.Getenv("SALESGRID_LOG_LEVEL")
	if level == "" {
		level = "warn"
	}
	if err := logger.Init(logger.WithWriter(os.Stderr), logger.WithLevel(level)); err != nil {
		os.Stderr.WriteString("gridctl: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	a := cli.New(cli.WithLogger(logger.Named("gridctl")))
	if err := cli.NewRootCommand(a).ExecuteContext(ctx); err != nil {
		os.Stderr.WriteString("gridctl: " + err.Error() + "\n")
		stop()
		os.Exit(1)
	}
}
