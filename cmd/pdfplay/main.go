package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/a3tai/pdf-playground/internal/cli"
)

var version = "dev" // This will be set by build flags

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := cli.NewApp(os.Stdin, os.Stdout, os.Stderr, version).RunContext(ctx, os.Args)
	stop()

	cli.Report(os.Stderr, err)
	os.Exit(cli.ExitCode(err))
}
