package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"canvas-backend/interfaces/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	code := cli.Execute(ctx, os.Stdout, os.Args[1:])
	stop()
	os.Exit(code)
}
