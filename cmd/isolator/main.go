// Package main is the isolator command.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/isolatorcalc/isolator/cli"
	"github.com/isolatorcalc/isolator/logging"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := cli.NewApp(os.Stdout, os.Stderr).RunContext(ctx, os.Args); err != nil {
		logging.Global().Error(err)
		cancel()
		os.Exit(1)
	}
}
